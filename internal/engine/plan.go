package engine

import (
	"sort"

	"github.com/untoldecay/tmsync/internal/state"
	"github.com/untoldecay/tmsync/internal/subtasks"
	"github.com/untoldecay/tmsync/internal/tasks"
)

// OpKind is the planned action for one item.
type OpKind int

const (
	OpCreate OpKind = iota
	OpUpdate
	OpDelete
	OpSkip
)

func (k OpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "skip"
	}
}

// Operation is one planned unit of work: either a whole item lifecycle
// (create with initial fields, or update) or a deletion.
type Operation struct {
	Kind OpKind
	// Key is the identity-store key: the task id, or parent::child for
	// separate-mode children.
	Key  string
	Task *tasks.Task // nil for deletes

	Record      state.Record // prior record; zero for creates
	Fingerprint tasks.Fingerprint
	Title       string
	Body        string

	// For updates: which halves of the item actually changed.
	FieldsChanged bool
	BodyChanged   bool
}

// Plan is the ordered work for one run. Items (creates, updates, skips) are
// independent of each other; Deletes run after all items complete so a
// re-keyed task is created before its stale record is removed.
type Plan struct {
	Items   []Operation
	Deletes []Operation
}

// buildPlan classifies every task (and, in separate mode, every subtask)
// against the store and derives the operations for this run.
func buildPlan(set *tasks.LoadedTaskSet, store *state.Store, mode subtasks.Mode, fullSync bool, deleteOrphans bool) Plan {
	var plan Plan
	live := make(map[string]bool)

	for i := range set.Tasks {
		t := &set.Tasks[i]
		live[t.ID] = true

		var section string
		var children []subtasks.ChildSpec
		switch mode {
		case subtasks.ModeSeparate:
			children, section = subtasks.RenderSeparate(t)
		default:
			section = subtasks.RenderNested(t)
		}

		plan.Items = append(plan.Items, classify(
			store, t.ID, t,
			t.Title,
			subtasks.ComposeBody(t.Body(), section),
			tasks.ComputeFingerprint(t, section),
			fullSync,
		))

		for _, child := range children {
			st := child.Subtask
			live[child.Key] = true
			plan.Items = append(plan.Items, classify(
				store, child.Key, &st,
				subtasks.ChildTitle(t, &st),
				subtasks.ChildBody(t, &st),
				tasks.ComputeFingerprint(&st, ""),
				fullSync,
			))
		}
	}

	for _, key := range store.Orphans(live) {
		r, _ := store.Get(key)
		op := Operation{Kind: OpSkip, Key: key, Record: r}
		if deleteOrphans {
			op.Kind = OpDelete
		}
		plan.Deletes = append(plan.Deletes, op)
	}

	// Deterministic order keeps logs and dry-run output stable.
	sort.SliceStable(plan.Items, func(i, j int) bool { return plan.Items[i].Key < plan.Items[j].Key })
	return plan
}

func classify(store *state.Store, key string, t *tasks.Task, title, body string, fp tasks.Fingerprint, fullSync bool) Operation {
	op := Operation{
		Key:         key,
		Task:        t,
		Fingerprint: fp,
		Title:       title,
		Body:        body,
	}
	d := store.Diff(key, fp)
	op.Record = d.Record
	switch d.Class {
	case state.NewTask:
		op.Kind = OpCreate
	case state.UnchangedTask:
		if fullSync {
			op.Kind = OpUpdate
			op.FieldsChanged = true
			op.BodyChanged = true
		} else {
			op.Kind = OpSkip
		}
	case state.ChangedTask:
		op.Kind = OpUpdate
		op.FieldsChanged = d.FieldsChanged || fullSync
		op.BodyChanged = d.BodyChanged || fullSync
	}
	return op
}
