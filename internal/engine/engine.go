// Package engine plans and executes the reconciliation of a loaded task set
// against a remote project board.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/untoldecay/tmsync/internal/agents"
	"github.com/untoldecay/tmsync/internal/fields"
	"github.com/untoldecay/tmsync/internal/github"
	"github.com/untoldecay/tmsync/internal/state"
	"github.com/untoldecay/tmsync/internal/subtasks"
	"github.com/untoldecay/tmsync/internal/tasks"
)

// Remote is the slice of the GitHub client the engine drives.
type Remote interface {
	ListItems(ctx context.Context, projectID string) ([]github.Item, error)
	CreateDraftItem(ctx context.Context, projectID, title, body string) (*github.CreateItemResult, error)
	CreateIssueItem(ctx context.Context, projectID, repositoryID, title, body string) (*github.CreateItemResult, error)
	UpdateItemFieldValue(ctx context.Context, projectID, itemID, fieldID string, value github.FieldValue) error
	UpdateDraftBody(ctx context.Context, contentID, title, body string) error
	UpdateIssueBody(ctx context.Context, contentID, title, body string) error
	DeleteItem(ctx context.Context, projectID, itemID string) error
}

// Options tune one sync run.
type Options struct {
	DryRun        bool
	FullSync      bool
	SubtaskMode   subtasks.Mode
	ItemKind      github.ContentKind
	DeleteOrphans bool
	Workers       int
}

// DefaultWorkers matches the remote client's concurrency cap; a larger pool
// would only queue on the client's semaphore.
const DefaultWorkers = 8

// Engine reconciles one tag against one board.
type Engine struct {
	client       Remote
	catalog      *fields.Catalog
	store        *state.Store
	resolver     *agents.Resolver
	log          *zap.Logger
	projectID    string
	repositoryID string // required only for issue-backed items
}

// New wires an engine. repositoryID may be empty when item kind is draft.
func New(client Remote, catalog *fields.Catalog, store *state.Store, resolver *agents.Resolver, projectID, repositoryID string, log *zap.Logger) *Engine {
	return &Engine{
		client:       client,
		catalog:      catalog,
		store:        store,
		resolver:     resolver,
		projectID:    projectID,
		repositoryID: repositoryID,
		log:          log,
	}
}

// Sync runs one reconciliation pass and returns its statistics. Item-level
// failures are recorded and do not abort the run; only setup failures
// (schema resolution, state commit) return an error.
func (e *Engine) Sync(ctx context.Context, set *tasks.LoadedTaskSet, opts Options) (Statistics, error) {
	stats := &statsCollector{}
	now := time.Now()

	if err := e.catalog.Resolve(ctx, e.resolver.OptionNames()); err != nil {
		return stats.snapshot(), err
	}

	if e.store.Empty() {
		if err := e.reanchor(ctx, set, opts.SubtaskMode, stats, now); err != nil {
			return stats.snapshot(), err
		}
	}

	plan := buildPlan(set, e.store, opts.SubtaskMode, opts.FullSync, opts.DeleteOrphans)
	e.log.Info("plan built",
		zap.Int("items", len(plan.Items)),
		zap.Int("deletes", len(plan.Deletes)),
		zap.Bool("dry_run", opts.DryRun))

	if opts.DryRun {
		e.reportDryRun(plan, stats)
		return stats.snapshot(), nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range plan.Items {
		op := plan.Items[i]
		g.Go(func() error {
			e.executeItem(gctx, op, opts, stats, now)
			return gctx.Err()
		})
	}
	runErr := g.Wait()

	// Deletes run last so a re-keyed task is created before its old item
	// disappears from the board.
	if runErr == nil {
		for _, op := range plan.Deletes {
			if op.Kind != OpDelete {
				stats.addSkipped()
				continue
			}
			if err := e.client.DeleteItem(ctx, e.projectID, op.Record.RemoteItemID); err != nil {
				stats.addError(op.Key, PhaseDelete, err)
				continue
			}
			e.store.Delete(op.Key)
			stats.addDeleted()
		}
	}

	// Commit what was actually applied, even after cancellation.
	if err := e.store.Commit(); err != nil {
		return stats.snapshot(), fmt.Errorf("commit state: %w", err)
	}
	if runErr != nil {
		return stats.snapshot(), runErr
	}
	return stats.snapshot(), nil
}

func (e *Engine) reportDryRun(plan Plan, stats *statsCollector) {
	for _, op := range plan.Items {
		switch op.Kind {
		case OpCreate:
			e.log.Info("would create", zap.String("task", op.Key), zap.String("title", op.Title))
			stats.addCreated()
		case OpUpdate:
			e.log.Info("would update", zap.String("task", op.Key),
				zap.Bool("fields", op.FieldsChanged), zap.Bool("body", op.BodyChanged))
			stats.addUpdated()
		default:
			stats.addSkipped()
		}
	}
	for _, op := range plan.Deletes {
		if op.Kind == OpDelete {
			e.log.Info("would delete", zap.String("task", op.Key),
				zap.String("item", op.Record.RemoteItemID))
			stats.addDeleted()
		} else {
			stats.addSkipped()
		}
	}
}

// executeItem runs the full lifecycle for one planned item. All failures are
// recorded as item errors; the identity record only ever reflects confirmed
// remote state.
func (e *Engine) executeItem(ctx context.Context, op Operation, opts Options, stats *statsCollector, now time.Time) {
	switch op.Kind {
	case OpSkip:
		e.store.MarkSeen(op.Key, now)
		stats.addSkipped()

	case OpCreate:
		res, err := e.createItem(ctx, op, opts.ItemKind)
		if err != nil {
			stats.addError(op.Key, PhaseCreate, err)
			return
		}
		rec := state.Record{
			RemoteItemID: res.ItemID,
			ContentID:    res.ContentID,
			ContentKind:  res.ContentKind,
			BodyHash:     op.Fingerprint.Body, // body was written at creation
			LastSeen:     now,
		}
		if err := e.writeFields(ctx, res.ItemID, op); err != nil {
			// The item exists; keep the record so the next run retries the
			// fields instead of creating a duplicate.
			e.store.Put(op.Key, rec)
			stats.addError(op.Key, PhaseUpdateFields, err)
			return
		}
		rec.Fingerprint = op.Fingerprint.Full
		rec.FieldsHash = op.Fingerprint.Fields
		e.store.Put(op.Key, rec)
		stats.addCreated()

	case OpUpdate:
		rec := op.Record
		failed := false
		if op.FieldsChanged {
			if err := e.writeFields(ctx, rec.RemoteItemID, op); err != nil {
				stats.addError(op.Key, PhaseUpdateFields, err)
				failed = true
			} else {
				rec.FieldsHash = op.Fingerprint.Fields
			}
		}
		if op.BodyChanged {
			if err := e.writeBody(ctx, rec, op.Title, op.Body); err != nil {
				stats.addError(op.Key, PhaseUpdateBody, err)
				failed = true
			} else {
				rec.BodyHash = op.Fingerprint.Body
			}
		}
		if failed {
			// Clear the full fingerprint; component hashes drive the retry.
			rec.Fingerprint = ""
		} else {
			rec.Fingerprint = op.Fingerprint.Full
			stats.addUpdated()
		}
		rec.LastSeen = now
		e.store.Put(op.Key, rec)
	}
}

func (e *Engine) createItem(ctx context.Context, op Operation, kind github.ContentKind) (*github.CreateItemResult, error) {
	if kind == github.ContentIssue {
		if e.repositoryID == "" {
			return nil, fmt.Errorf("issue-backed items need a repository (set TMS_REPOSITORY or a git remote)")
		}
		return e.client.CreateIssueItem(ctx, e.projectID, e.repositoryID, op.Title, op.Body)
	}
	return e.client.CreateDraftItem(ctx, e.projectID, op.Title, op.Body)
}

// writeFields pushes every tracked field value for one item. The identity
// marker goes first: if the remaining updates fail, the item can still be
// re-anchored on the next run.
func (e *Engine) writeFields(ctx context.Context, itemID string, op Operation) error {
	t := op.Task

	tmidField, err := e.catalog.FieldID(fields.FieldTMID)
	if err != nil {
		return err
	}
	if err := e.client.UpdateItemFieldValue(ctx, e.projectID, itemID, tmidField, github.TextValue(op.Key)); err != nil {
		return fmt.Errorf("set %s: %w", fields.FieldTMID, err)
	}

	statusOption := e.catalog.StatusOption(t.Status)
	statusID, err := e.catalog.OptionID(fields.FieldStatus, statusOption)
	if err != nil {
		return err
	}
	statusField, _ := e.catalog.FieldID(fields.FieldStatus)
	if err := e.client.UpdateItemFieldValue(ctx, e.projectID, itemID, statusField, github.OptionValue(statusID)); err != nil {
		return fmt.Errorf("set status: %w", err)
	}

	if t.Priority != "" {
		prioID, err := e.catalog.OptionID(fields.FieldPriority, fields.PriorityOption(t.Priority))
		if err != nil {
			return err
		}
		prioField, _ := e.catalog.FieldID(fields.FieldPriority)
		if err := e.client.UpdateItemFieldValue(ctx, e.projectID, itemID, prioField, github.OptionValue(prioID)); err != nil {
			return fmt.Errorf("set priority: %w", err)
		}
	}

	depsField, _ := e.catalog.FieldID(fields.FieldDependencies)
	deps := strings.Join(t.Dependencies, ", ")
	if err := e.client.UpdateItemFieldValue(ctx, e.projectID, itemID, depsField, github.TextValue(deps)); err != nil {
		return fmt.Errorf("set dependencies: %w", err)
	}

	tsField, _ := e.catalog.FieldID(fields.FieldTestStrategy)
	if err := e.client.UpdateItemFieldValue(ctx, e.projectID, itemID, tsField, github.TextValue(t.TestStrategy)); err != nil {
		return fmt.Errorf("set test strategy: %w", err)
	}

	if assign := e.resolver.Resolve(t); assign.OptionName != "" {
		agentID, err := e.catalog.EnsureAgentOption(ctx, assign.OptionName)
		if err != nil {
			return fmt.Errorf("agent option: %w", err)
		}
		agentField, _ := e.catalog.FieldID(fields.FieldAgent)
		if err := e.client.UpdateItemFieldValue(ctx, e.projectID, itemID, agentField, github.OptionValue(agentID)); err != nil {
			return fmt.Errorf("set agent: %w", err)
		}
	}
	return nil
}

// writeBody updates an item's title and body through the mutation matching
// its content kind. The kind was fixed at creation and never changes.
func (e *Engine) writeBody(ctx context.Context, rec state.Record, title, body string) error {
	if rec.ContentKind == github.ContentIssue {
		return e.client.UpdateIssueBody(ctx, rec.ContentID, title, body)
	}
	return e.client.UpdateDraftBody(ctx, rec.ContentID, title, body)
}
