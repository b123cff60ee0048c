package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/untoldecay/tmsync/internal/github"
	"github.com/untoldecay/tmsync/internal/state"
	"github.com/untoldecay/tmsync/internal/subtasks"
	"github.com/untoldecay/tmsync/internal/tasks"
)

// reanchor rebuilds identity records from the board when the state file is
// missing or empty. Items are matched on their identity marker field; items
// with a marker outside the loaded task set are left alone. An item with no
// marker at all is adopted when its title matches exactly one task, covering
// a crash between creating the item and stamping it. A marker seen on two
// items keeps the first (board order is creation order) and records an error
// for the other so duplicates never get mutated blind.
func (e *Engine) reanchor(ctx context.Context, set *tasks.LoadedTaskSet, mode subtasks.Mode, stats *statsCollector, now time.Time) error {
	items, err := e.client.ListItems(ctx, e.projectID)
	if err != nil {
		return fmt.Errorf("list board items: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	live := liveKeys(set, mode)
	anchored := 0

	// Items that never got their marker written (a crash between creation and
	// the first field update) are adoptable by exact title, but only when the
	// title identifies a single item.
	unmarked := make(map[string][]*github.Item)
	for i := range items {
		if items[i].TMID() == "" {
			unmarked[items[i].Title] = append(unmarked[items[i].Title], &items[i])
		}
	}

	for i := range items {
		it := &items[i]
		tmid := it.TMID()
		if tmid == "" || !live[tmid] {
			continue
		}
		if _, exists := e.store.Get(tmid); exists {
			stats.addError(tmid, PhasePlan,
				fmt.Errorf("duplicate %s on board item %s; keeping earlier item", tmid, it.ID))
			continue
		}
		// No fingerprint is recoverable from the board; the empty hash makes
		// the planner refresh the item on this run.
		e.store.Put(tmid, state.Record{
			RemoteItemID: it.ID,
			ContentID:    it.ContentID,
			ContentKind:  it.ContentKind,
			LastSeen:     now,
		})
		anchored++
	}

	for i := range set.Tasks {
		t := &set.Tasks[i]
		if _, exists := e.store.Get(t.ID); exists {
			continue
		}
		candidates := unmarked[t.Title]
		if len(candidates) != 1 {
			continue
		}
		it := candidates[0]
		e.log.Info("adopting unmarked item by title",
			zap.String("task", t.ID), zap.String("item", it.ID))
		e.store.Put(t.ID, state.Record{
			RemoteItemID: it.ID,
			ContentID:    it.ContentID,
			ContentKind:  it.ContentKind,
			LastSeen:     now,
		})
		anchored++
	}

	e.log.Info("re-anchored from board",
		zap.Int("board_items", len(items)),
		zap.Int("anchored", anchored))
	return nil
}

// liveKeys collects every identity key this run will claim: task ids plus,
// in separate mode, child keys.
func liveKeys(set *tasks.LoadedTaskSet, mode subtasks.Mode) map[string]bool {
	live := make(map[string]bool)
	for i := range set.Tasks {
		t := &set.Tasks[i]
		live[t.ID] = true
		if mode == subtasks.ModeSeparate {
			for _, st := range t.Subtasks {
				live[subtasks.ChildKey(t.ID, st.ID)] = true
			}
		}
	}
	return live
}
