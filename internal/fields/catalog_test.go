package fields

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/untoldecay/tmsync/internal/github"
	"github.com/untoldecay/tmsync/internal/tasks"
)

// fakeRemote implements the catalog's client slice in memory.
type fakeRemote struct {
	fields  map[string]github.Field
	nextID  int
	created []string
}

func newFakeRemote(existing ...github.Field) *fakeRemote {
	f := &fakeRemote{fields: make(map[string]github.Field), nextID: 100}
	for _, fld := range existing {
		f.fields[fld.Name] = fld
	}
	return f
}

func (f *fakeRemote) GetFields(ctx context.Context, projectID string) ([]github.Field, error) {
	out := make([]github.Field, 0, len(f.fields))
	for _, fld := range f.fields {
		out = append(out, fld)
	}
	return out, nil
}

func (f *fakeRemote) CreateField(ctx context.Context, projectID, name, dataType string, options []github.SelectOptionInput) (*github.Field, error) {
	f.nextID++
	fld := github.Field{ID: fmt.Sprintf("F_%d", f.nextID), Name: name, DataType: dataType}
	if dataType == github.FieldTypeSingleSelect {
		for _, o := range options {
			f.nextID++
			fld.Options = append(fld.Options, github.FieldOption{ID: fmt.Sprintf("O_%d", f.nextID), Name: o.Name})
		}
	}
	f.fields[name] = fld
	f.created = append(f.created, name)
	return &fld, nil
}

func (f *fakeRemote) AddFieldOptions(ctx context.Context, fieldID, name string, options []github.SelectOptionInput) (*github.Field, error) {
	fld := f.fields[name]
	fld.Options = nil
	for _, o := range options {
		f.nextID++
		fld.Options = append(fld.Options, github.FieldOption{ID: fmt.Sprintf("O_%d", f.nextID), Name: o.Name})
	}
	f.fields[name] = fld
	return &fld, nil
}

func statusField(options ...string) github.Field {
	fld := github.Field{ID: "F_STATUS", Name: FieldStatus, DataType: github.FieldTypeSingleSelect}
	for i, name := range options {
		fld.Options = append(fld.Options, github.FieldOption{ID: fmt.Sprintf("SO_%d", i), Name: name})
	}
	return fld
}

func resolvedCatalog(t *testing.T, remote *fakeRemote) *Catalog {
	t.Helper()
	c := NewCatalog(remote, "PVT_1", zap.NewNop())
	if err := c.Resolve(context.Background(), []string{"claude", "human"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return c
}

func TestResolveCreatesMissingFields(t *testing.T) {
	remote := newFakeRemote(statusField(OptionTodo, OptionInProgress, OptionDone))
	c := resolvedCatalog(t, remote)

	for _, name := range []string{FieldTMID, FieldDependencies, FieldTestStrategy, FieldPriority, FieldAgent} {
		if _, ok := c.Field(name); !ok {
			t.Errorf("field %q not created", name)
		}
	}
	// Status existed but lacked QA Review; it must have been added.
	if !c.HasOption(FieldStatus, OptionQAReview) {
		t.Error("QA Review option not added to existing Status field")
	}
	// Existing options survive the option rewrite.
	if !c.HasOption(FieldStatus, OptionDone) {
		t.Error("existing Done option lost")
	}
}

func TestResolveIdempotent(t *testing.T) {
	remote := newFakeRemote(statusField(OptionTodo, OptionInProgress, OptionQAReview, OptionDone))
	c := resolvedCatalog(t, remote)
	created := len(remote.created)

	// Second resolve hits the cache; nothing new is created.
	if err := c.Resolve(context.Background(), []string{"claude"}); err != nil {
		t.Fatal(err)
	}
	if len(remote.created) != created {
		t.Errorf("cached resolve created fields: %v", remote.created[created:])
	}
}

func TestOptionIDCaseInsensitive(t *testing.T) {
	c := resolvedCatalog(t, newFakeRemote())
	want, err := c.OptionID(FieldStatus, OptionQAReview)
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.OptionID(FieldStatus, "qa review")
	if err != nil {
		t.Fatalf("lowercase lookup failed: %v", err)
	}
	if got != want {
		t.Errorf("case-insensitive lookup returned %q, want %q", got, want)
	}

	if _, err := c.OptionID(FieldStatus, "Nonexistent"); !errors.Is(err, ErrOptionUnknown) {
		t.Errorf("unknown option: got %v, want ErrOptionUnknown", err)
	}
}

func TestStatusOptionQAGate(t *testing.T) {
	c := resolvedCatalog(t, newFakeRemote())
	cases := []struct {
		status string
		want   string
	}{
		{tasks.StatusPending, OptionTodo},
		{tasks.StatusInProgress, OptionInProgress},
		{tasks.StatusDone, OptionQAReview},
		{tasks.StatusReview, OptionQAReview},
		{tasks.StatusQA, OptionQAReview},
		{tasks.StatusDeferred, OptionTodo}, // no Deferred option on the board
		{"mystery", OptionTodo},
	}
	for _, tc := range cases {
		if got := c.StatusOption(tc.status); got != tc.want {
			t.Errorf("StatusOption(%q) = %q, want %q", tc.status, got, tc.want)
		}
	}
	// Under no circumstance does a local status map to Done.
	for _, status := range []string{tasks.StatusDone, tasks.StatusReview, tasks.StatusQA, "done"} {
		if got := c.StatusOption(status); got == OptionDone {
			t.Fatalf("StatusOption(%q) mapped to Done", status)
		}
	}
}

func TestStatusOptionBlocked(t *testing.T) {
	// Board with a Blocked option uses it; without one, falls back to Todo.
	withBlocked := resolvedCatalog(t, newFakeRemote(statusField(OptionTodo, OptionInProgress, OptionQAReview, OptionDone, OptionBlocked)))
	if got := withBlocked.StatusOption(tasks.StatusBlocked); got != OptionBlocked {
		t.Errorf("StatusOption(blocked) = %q, want Blocked", got)
	}
	without := resolvedCatalog(t, newFakeRemote())
	if got := without.StatusOption(tasks.StatusBlocked); got != OptionTodo {
		t.Errorf("StatusOption(blocked) without option = %q, want Todo", got)
	}
}

func TestPriorityOption(t *testing.T) {
	cases := map[string]string{
		tasks.PriorityHigh:   OptionHigh,
		tasks.PriorityMedium: OptionMedium,
		tasks.PriorityLow:    OptionLow,
		"":                   OptionMedium,
	}
	for in, want := range cases {
		if got := PriorityOption(in); got != want {
			t.Errorf("PriorityOption(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnsureAgentOptionGrows(t *testing.T) {
	c := resolvedCatalog(t, newFakeRemote())
	id, err := c.EnsureAgentOption(context.Background(), "new-agent")
	if err != nil {
		t.Fatalf("EnsureAgentOption: %v", err)
	}
	if id == "" {
		t.Fatal("empty option id")
	}
	// Cache reflects the new option without a re-resolve.
	got, err := c.OptionID(FieldAgent, "new-agent")
	if err != nil || got != id {
		t.Errorf("OptionID after grow = %q, %v; want %q", got, err, id)
	}
}

func TestEnsureAgentOptionConcurrentGrowth(t *testing.T) {
	// The update mutation replaces the whole option set, so two growers must
	// never race read-modify-write: the loser's option would vanish from the
	// board while its items point at the deleted id.
	c := resolvedCatalog(t, newFakeRemote())

	names := []string{"alice", "bob", "carol", "dave"}
	ids := make([]string, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := c.EnsureAgentOption(context.Background(), name)
			if err != nil {
				t.Errorf("EnsureAgentOption(%s): %v", name, err)
				return
			}
			ids[i] = id
		}()
	}
	wg.Wait()

	for i, name := range names {
		got, err := c.OptionID(FieldAgent, name)
		if err != nil {
			t.Errorf("option %q lost: %v", name, err)
			continue
		}
		if got != ids[i] {
			t.Errorf("option %q id changed: returned %q, catalog has %q", name, ids[i], got)
		}
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	remote := newFakeRemote()
	c := resolvedCatalog(t, remote)
	c.Invalidate()
	if _, ok := c.Field(FieldTMID); ok {
		t.Fatal("cache should be empty after Invalidate")
	}
	if err := c.Resolve(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Field(FieldTMID); !ok {
		t.Error("re-resolve did not rebuild the cache")
	}
}
