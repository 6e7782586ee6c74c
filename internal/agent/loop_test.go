package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/ngoclaw/toolorch/internal/apperr"
	"github.com/ngoclaw/toolorch/internal/llm"
	"github.com/ngoclaw/toolorch/internal/session"
	"github.com/ngoclaw/toolorch/internal/tool"
	"go.uber.org/zap"
)

type scriptedLLM struct {
	turns []string
	calls int
}

func (s *scriptedLLM) Query(ctx context.Context, prompt string, opts llm.Options, parts []llm.Part) (string, error) {
	if s.calls >= len(s.turns) {
		return s.turns[len(s.turns)-1], nil
	}
	out := s.turns[s.calls]
	s.calls++
	return out, nil
}

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes input" }
func (echoTool) Schema() map[string]interface{} { return nil }
func (echoTool) Execute(ctx context.Context, args map[string]interface{}, rc tool.RunContext) (*tool.Result, error) {
	return &tool.Result{Success: true, Content: fmt.Sprintf("%v", args["msg"])}, nil
}

type blockedTool struct{ calls int }

func (b *blockedTool) Name() string                  { return "web_fetch" }
func (b *blockedTool) Description() string           { return "blocked" }
func (b *blockedTool) Schema() map[string]interface{} { return nil }
func (b *blockedTool) Execute(ctx context.Context, args map[string]interface{}, rc tool.RunContext) (*tool.Result, error) {
	b.calls++
	return nil, apperr.NewSecurityError("Blocked cloud metadata endpoint")
}

func newTestLoop(client *scriptedLLM, cfg Config) *Loop {
	reg := tool.New("")
	reg.Register(echoTool{})
	reg.Register(&blockedTool{})
	ex := tool.NewExecutor(reg, zap.NewNop(), 4)
	store := session.New(10, 0, zap.NewNop())
	return New(client, reg, ex, store, zap.NewNop(), cfg)
}

func TestRunReturnsFinalTextWithNoToolCalls(t *testing.T) {
	client := &scriptedLLM{turns: []string{"the answer is 42"}}
	loop := newTestLoop(client, Config{MaxIterations: 3})

	res, err := loop.Run(context.Background(), "", "what is the answer?", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "the answer is 42" || res.BoundedExhausted {
		t.Fatalf("unexpected result: %+v", res)
	}
	if client.calls != 1 {
		t.Fatalf("expected exactly 1 LLM call, got %d", client.calls)
	}
}

func TestRunExecutesToolThenReturnsFinalText(t *testing.T) {
	client := &scriptedLLM{turns: []string{
		"TOOL_CALL: echo\nARGUMENTS: {\"msg\": \"hi\"}\n",
		"done: hi",
	}}
	loop := newTestLoop(client, Config{MaxIterations: 3})

	res, err := loop.Run(context.Background(), "", "say hi", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "done: hi" {
		t.Fatalf("unexpected final text: %q", res.Text)
	}
	if client.calls != 2 {
		t.Fatalf("expected 2 LLM calls, got %d", client.calls)
	}
}

func TestRunTerminatesAtMaxIterationsBoundedExhausted(t *testing.T) {
	client := &scriptedLLM{turns: []string{
		"TOOL_CALL: echo\nARGUMENTS: {\"msg\": \"a\"}\n",
		"TOOL_CALL: echo\nARGUMENTS: {\"msg\": \"b\"}\n",
	}}
	loop := newTestLoop(client, Config{MaxIterations: 2})

	res, err := loop.Run(context.Background(), "", "loop forever", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.BoundedExhausted {
		t.Fatal("expected bounded-exhausted result")
	}
	if client.calls != 2 {
		t.Fatalf("expected exactly max_iterations LLM calls, got %d", client.calls)
	}
}

func TestRunCancelledContextStopsBeforeNextLLMCall(t *testing.T) {
	client := &scriptedLLM{turns: []string{"some text"}}
	loop := newTestLoop(client, Config{MaxIterations: 3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := loop.Run(ctx, "", "hello", nil)
	if err == nil {
		t.Fatal("expected a cancellation error")
	}
	if client.calls != 0 {
		t.Fatalf("expected no LLM calls after cancellation, got %d", client.calls)
	}
}

func TestRunSecurityErrorAbortsWithoutRetryOrToolErrorContext(t *testing.T) {
	client := &scriptedLLM{turns: []string{
		"TOOL_CALL: web_fetch\nARGUMENTS: {\"url\": \"http://169.254.169.254/\"}\n",
		"should never be reached",
	}}
	loop := newTestLoop(client, Config{MaxIterations: 3, MaxToolRetries: 5})

	_, err := loop.Run(context.Background(), "", "fetch metadata", nil)
	if err == nil {
		t.Fatal("expected a SecurityError to propagate")
	}
	if !apperr.Is(err, apperr.CodeSecurity) {
		t.Fatalf("expected a SecurityError, got %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("expected exactly 1 LLM call (no second turn), got %d", client.calls)
	}
}

func TestRunMalformedToolCallPropagatesModelBehaviorError(t *testing.T) {
	client := &scriptedLLM{turns: []string{"TOOL_CALL: echo\nARGUMENTS: {bad json\n"}}
	loop := newTestLoop(client, Config{MaxIterations: 3})

	_, err := loop.Run(context.Background(), "", "break it", nil)
	if err == nil {
		t.Fatal("expected an error for malformed tool call")
	}
}
