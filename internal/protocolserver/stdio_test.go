package protocolserver

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ngoclaw/toolorch/internal/agent"
	"github.com/ngoclaw/toolorch/internal/docstore"
	"github.com/ngoclaw/toolorch/internal/llm"
	"github.com/ngoclaw/toolorch/internal/session"
	"github.com/ngoclaw/toolorch/internal/tool"
	"go.uber.org/zap"
)

func TestServeStdioEchoesOneResponsePerRequestLine(t *testing.T) {
	client := &llm.StaticClient{Response: "final answer"}
	reg := tool.New("")
	store := session.New(10, time.Hour, zap.NewNop())
	ex := tool.NewExecutor(reg, zap.NewNop(), 4)
	loop := agent.New(client, reg, ex, store, zap.NewNop(), agent.Config{MaxIterations: 2})
	d := New(loop, reg, store, docstore.New(), client, zap.NewNop())

	in := strings.NewReader(`{"method":"query","prompt":"hi"}` + "\n" + `{"method":"bogus"}` + "\n")
	var out bytes.Buffer

	if err := ServeStdio(context.Background(), d, in, &out, zap.NewNop()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 response lines, got %d: %q", len(lines), out.String())
	}
	if !strings.Contains(lines[0], `"final answer"`) {
		t.Errorf("expected first response to carry the final answer, got %q", lines[0])
	}
	if !strings.Contains(lines[1], `unknown method`) {
		t.Errorf("expected second response to report the unknown method, got %q", lines[1])
	}
}

func TestServeStdioDiscardsMalformedLineWithoutStopping(t *testing.T) {
	client := &llm.StaticClient{Response: "ok"}
	reg := tool.New("")
	store := session.New(10, time.Hour, zap.NewNop())
	ex := tool.NewExecutor(reg, zap.NewNop(), 4)
	loop := agent.New(client, reg, ex, store, zap.NewNop(), agent.Config{MaxIterations: 2})
	d := New(loop, reg, store, docstore.New(), client, zap.NewNop())

	in := strings.NewReader("not json\n" + `{"method":"query","prompt":"hi"}` + "\n")
	var out bytes.Buffer

	if err := ServeStdio(context.Background(), d, in, &out, zap.NewNop()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly 1 response line (malformed line discarded), got %d", len(lines))
	}
}
