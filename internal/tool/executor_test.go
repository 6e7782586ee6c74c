package tool

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ngoclaw/toolorch/internal/apperr"
)

type flakyTool struct {
	name        string
	failCount   int
	calls       int
}

func (f *flakyTool) Name() string        { return f.name }
func (f *flakyTool) Description() string { return "flaky" }
func (f *flakyTool) Schema() map[string]interface{} { return nil }
func (f *flakyTool) Execute(ctx context.Context, args map[string]interface{}, rc RunContext) (*Result, error) {
	f.calls++
	if f.calls <= f.failCount {
		return &Result{Success: false, Content: fmt.Sprintf("boom %d", f.calls)}, nil
	}
	return &Result{Success: true, Content: "ok"}, nil
}

type alwaysBlockedTool struct {
	name  string
	calls int
}

func (b *alwaysBlockedTool) Name() string                  { return b.name }
func (b *alwaysBlockedTool) Description() string            { return "blocked" }
func (b *alwaysBlockedTool) Schema() map[string]interface{} { return nil }
func (b *alwaysBlockedTool) Execute(ctx context.Context, args map[string]interface{}, rc RunContext) (*Result, error) {
	b.calls++
	return nil, apperr.NewSecurityError("Blocked cloud metadata endpoint")
}

func newTestExecutor(registry *Registry) *Executor {
	e := NewExecutor(registry, nil, 4)
	e.sleep = func(time.Duration) {} // no real sleeping in tests
	return e
}

func TestExecuteAllUnknownToolNoRetries(t *testing.T) {
	r := New("")
	e := newTestExecutor(r)

	results, err := e.ExecuteAll(context.Background(), []Invocation{{ToolName: "missing"}}, RunContext{}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Success {
		t.Fatal("expected failure for unknown tool")
	}
	if !strings.Contains(results[0].Content, "Tool 'missing' not found") {
		t.Errorf("unexpected content: %q", results[0].Content)
	}
}

func TestExecuteAllRetriesExhaustedReturnsFormattedError(t *testing.T) {
	r := New("")
	ft := &flakyTool{name: "flaky", failCount: 10}
	r.Register(ft)
	e := newTestExecutor(r)

	results, err := e.ExecuteAll(context.Background(), []Invocation{{ToolName: "flaky"}}, RunContext{}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Success {
		t.Fatal("expected failure after retries exhausted")
	}
	want := "Tool execution failed after 2 attempts:"
	if !strings.HasPrefix(results[0].Content, want) {
		t.Errorf("expected content to start with %q, got %q", want, results[0].Content)
	}
}

func TestExecuteAllSucceedsWithinRetryBudget(t *testing.T) {
	r := New("")
	ft := &flakyTool{name: "flaky", failCount: 2}
	r.Register(ft)
	e := newTestExecutor(r)

	results, err := e.ExecuteAll(context.Background(), []Invocation{{ToolName: "flaky"}}, RunContext{}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !results[0].Success || results[0].Content != "ok" {
		t.Fatalf("expected success on 3rd attempt, got %+v", results[0])
	}
}

func TestExecuteAllPreservesPositionalOrder(t *testing.T) {
	r := New("")
	r.Register(&flakyTool{name: "a", failCount: 0})
	r.Register(&flakyTool{name: "b", failCount: 0})
	r.Register(&flakyTool{name: "c", failCount: 0})
	e := newTestExecutor(r)

	calls := []Invocation{{ToolName: "c"}, {ToolName: "a"}, {ToolName: "missing"}, {ToolName: "b"}}
	results, err := e.ExecuteAll(context.Background(), calls, RunContext{}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if !results[0].Success || !results[1].Success || results[2].Success || !results[3].Success {
		t.Fatalf("unexpected success pattern: %+v", results)
	}
}

func TestExecuteAllSecurityErrorIsNotRetriedAndPropagatesAsError(t *testing.T) {
	r := New("")
	bt := &alwaysBlockedTool{name: "web_fetch"}
	r.Register(bt)
	e := newTestExecutor(r)

	_, err := e.ExecuteAll(context.Background(), []Invocation{{ToolName: "web_fetch"}}, RunContext{}, 5)
	if err == nil {
		t.Fatal("expected a propagated error for a blocked URL")
	}
	if !apperr.Is(err, apperr.CodeSecurity) {
		t.Fatalf("expected a SecurityError, got %v", err)
	}
	if bt.calls != 1 {
		t.Fatalf("expected exactly 1 call (no retries), got %d", bt.calls)
	}
}

func TestExecuteAllSiblingFailureDoesNotCancelOthers(t *testing.T) {
	r := New("")
	r.Register(&flakyTool{name: "ok", failCount: 0})
	r.Register(&flakyTool{name: "bad", failCount: 99})
	e := newTestExecutor(r)

	results, err := e.ExecuteAll(context.Background(), []Invocation{{ToolName: "bad"}, {ToolName: "ok"}}, RunContext{}, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Success {
		t.Error("expected bad tool to fail")
	}
	if !results[1].Success {
		t.Error("expected ok tool to succeed independently of sibling failure")
	}
}
