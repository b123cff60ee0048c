package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(StaticTokenProvider("tok"), zap.NewNop(), WithEndpoint(srv.URL))
}

func respond(w http.ResponseWriter, data string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"data": %s}`, data)
}

func respondErr(w http.ResponseWriter, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"errors": [{"type": %q, "message": %q}]}`, code, msg)
}

func TestExecuteRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		respond(w, `{"ok": true}`)
	})

	var out struct {
		OK bool `json:"ok"`
	}
	if err := c.execute(context.Background(), "Test", "", "query {}", nil, &out, false); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !out.OK {
		t.Error("response not decoded")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("got %d attempts, want 3", got)
	}
}

func TestExecuteRetriesRateLimited(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			respondErr(w, "RATE_LIMITED", "slow down")
			return
		}
		respond(w, `{}`)
	})
	if err := c.execute(context.Background(), "Test", "", "query {}", nil, nil, false); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("got %d attempts, want 2", calls.Load())
	}
}

func TestExecuteTerminalNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		respondErr(w, "NOT_FOUND", "no such node")
	})
	err := c.execute(context.Background(), "Test", "", "query {}", nil, nil, false)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("NOT_FOUND should unwrap to ErrNotFound, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("terminal error retried: %d attempts", calls.Load())
	}
}

func TestExecuteAuthRejection(t *testing.T) {
	invalidated := false
	tokens := &fakeTokens{invalidate: func() { invalidated = true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	c := NewClient(tokens, zap.NewNop(), WithEndpoint(srv.URL))

	err := c.execute(context.Background(), "Test", "", "query {}", nil, nil, false)
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("got %v, want ErrAuth", err)
	}
	if !invalidated {
		t.Error("401 should invalidate the cached token")
	}
}

type fakeTokens struct {
	invalidate func()
}

func (f *fakeTokens) Token(context.Context) (string, error) { return "tok", nil }
func (f *fakeTokens) Invalidate()                           { f.invalidate() }

func TestMutationCounter(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, `{}`)
	})
	ctx := context.Background()
	_ = c.execute(ctx, "Query", "", "query {}", nil, nil, false)
	_ = c.execute(ctx, "Mutation", "", "mutation {}", nil, nil, true)
	_ = c.execute(ctx, "Mutation", "", "mutation {}", nil, nil, true)
	if got := c.Mutations(); got != 2 {
		t.Errorf("Mutations() = %d, want 2", got)
	}
}

func TestListItemsPagination(t *testing.T) {
	// 101 items: first page full, second page carries one.
	makePage := func(start, count int, hasNext bool) string {
		items := make([]map[string]any, count)
		for i := range items {
			id := start + i
			items[i] = map[string]any{
				"id": fmt.Sprintf("PVTI_%d", id),
				"content": map[string]any{
					"__typename": "DraftIssue",
					"id":         fmt.Sprintf("DI_%d", id),
					"title":      fmt.Sprintf("Task %d", id),
					"body":       "",
				},
				"fieldValues": map[string]any{
					"nodes": []map[string]any{
						{
							"__typename": "ProjectV2ItemFieldTextValue",
							"text":       fmt.Sprintf("%d", id),
							"field":      map[string]any{"name": "TM_ID"},
						},
					},
				},
			}
		}
		page := map[string]any{
			"node": map[string]any{
				"items": map[string]any{
					"pageInfo": map[string]any{"hasNextPage": hasNext, "endCursor": "cur"},
					"nodes":    items,
				},
			},
		}
		b, _ := json.Marshal(page)
		return string(b)
	}

	var calls atomic.Int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Variables map[string]any `json:"variables"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if first, _ := req.Variables["first"].(float64); first != 100 {
			t.Errorf("page size = %v, want 100", req.Variables["first"])
		}
		if calls.Add(1) == 1 {
			if _, ok := req.Variables["after"]; ok {
				t.Error("first page should have no cursor")
			}
			respond(w, makePage(0, 100, true))
			return
		}
		if req.Variables["after"] != "cur" {
			t.Errorf("second page cursor = %v, want cur", req.Variables["after"])
		}
		respond(w, makePage(100, 1, false))
	})

	items, err := c.ListItems(context.Background(), "PVT_1")
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 101 {
		t.Fatalf("got %d items, want 101", len(items))
	}
	if calls.Load() != 2 {
		t.Errorf("got %d pages, want 2", calls.Load())
	}
	if items[100].TMID() != "100" {
		t.Errorf("last item TM_ID = %q, want 100", items[100].TMID())
	}
	if items[0].ContentKind != ContentDraft {
		t.Errorf("draft content kind = %q", items[0].ContentKind)
	}
}

func TestGetProjectFallsBackToOrg(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch {
		case strings.Contains(req.Query, "user("):
			respondErr(w, "NOT_FOUND", "no user project")
		case strings.Contains(req.Query, "organization("):
			respond(w, `{"organization": {"projectV2": {"id": "PVT_9", "number": 9, "title": "Board", "url": "u"}}}`)
		default:
			t.Errorf("unexpected query: %s", req.Query)
		}
	})

	p, err := c.GetProject(context.Background(), "acme", 9)
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if p.ID != "PVT_9" {
		t.Errorf("project id = %q", p.ID)
	}
}

func TestGetProjectNotFoundAnywhere(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		respondErr(w, "NOT_FOUND", "nope")
	})
	_, err := c.GetProject(context.Background(), "acme", 9)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
