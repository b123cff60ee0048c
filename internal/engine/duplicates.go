package engine

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/untoldecay/tmsync/internal/github"
)

// DuplicateGroup is a set of board items sharing one identity marker value.
// Items keeps board order, which is creation order; the first item is the
// one a re-anchor would adopt.
type DuplicateGroup struct {
	TMID  string
	Items []github.Item
}

// DuplicateClient is the slice of the GitHub client duplicate cleanup needs.
type DuplicateClient interface {
	ListItems(ctx context.Context, projectID string) ([]github.Item, error)
	DeleteItem(ctx context.Context, projectID, itemID string) error
}

// ScanDuplicates finds identity markers carried by more than one board item.
func ScanDuplicates(ctx context.Context, client DuplicateClient, projectID string) ([]DuplicateGroup, error) {
	items, err := client.ListItems(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list board items: %w", err)
	}
	byTMID := make(map[string][]github.Item)
	for _, it := range items {
		if tmid := it.TMID(); tmid != "" {
			byTMID[tmid] = append(byTMID[tmid], it)
		}
	}
	var groups []DuplicateGroup
	for tmid, its := range byTMID {
		if len(its) > 1 {
			groups = append(groups, DuplicateGroup{TMID: tmid, Items: its})
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].TMID < groups[j].TMID })
	return groups, nil
}

// CleanDuplicates deletes every duplicate except the earliest-created item
// of each group. With remove false it only reports. Returns the number of
// items deleted (or that would be deleted).
func CleanDuplicates(ctx context.Context, client DuplicateClient, projectID string, remove bool, log *zap.Logger) (int, error) {
	groups, err := ScanDuplicates(ctx, client, projectID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, g := range groups {
		for _, it := range g.Items[1:] {
			count++
			if !remove {
				log.Info("duplicate item",
					zap.String("tm_id", g.TMID),
					zap.String("item", it.ID),
					zap.String("title", it.Title))
				continue
			}
			if err := client.DeleteItem(ctx, projectID, it.ID); err != nil {
				return count, fmt.Errorf("delete duplicate %s (%s): %w", it.ID, g.TMID, err)
			}
			log.Info("deleted duplicate item",
				zap.String("tm_id", g.TMID),
				zap.String("item", it.ID))
		}
	}
	return count, nil
}
