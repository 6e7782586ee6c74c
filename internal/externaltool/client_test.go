package externaltool

import (
	"context"
	"fmt"
	"testing"

	"github.com/ngoclaw/toolorch/internal/rpc"
	"github.com/ngoclaw/toolorch/internal/tool"
)

type fakeTransport struct {
	tools []rpc.ToolDescriptor
	calls map[string]string
	err   error
}

func (f *fakeTransport) ListTools(ctx context.Context) ([]rpc.ToolDescriptor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tools, nil
}

func (f *fakeTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	if v, ok := f.calls[name]; ok {
		return v, nil
	}
	return "", fmt.Errorf("no stub for %s", name)
}

func TestDiscoverNamesInvocablesWithServerPrefix(t *testing.T) {
	c := New(nil)
	c.http["news"] = &fakeTransport{
		tools: []rpc.ToolDescriptor{{Name: "get_news", Description: "fetch news"}},
	}

	tools := c.Discover(context.Background())
	if len(tools) != 1 {
		t.Fatalf("expected 1 discovered tool, got %d", len(tools))
	}
	if tools[0].Name() != "mcp_news_get_news" {
		t.Errorf("expected name mcp_news_get_news, got %q", tools[0].Name())
	}
}

func TestDiscoverFallsBackToDefaultDescription(t *testing.T) {
	c := New(nil)
	c.http["srv"] = &fakeTransport{tools: []rpc.ToolDescriptor{{Name: "noop"}}}

	tools := c.Discover(context.Background())
	if tools[0].Description() != "Tool noop from srv" {
		t.Errorf("expected fallback description, got %q", tools[0].Description())
	}
}

func TestDiscoverSkipsFailingServerWithoutFailingOthers(t *testing.T) {
	c := New(nil)
	c.http["bad"] = &fakeTransport{err: fmt.Errorf("boom")}
	c.http["good"] = &fakeTransport{tools: []rpc.ToolDescriptor{{Name: "ok"}}}

	tools := c.Discover(context.Background())
	if len(tools) != 1 || tools[0].Name() != "mcp_good_ok" {
		t.Fatalf("expected only the good server's tool, got %+v", tools)
	}
}

func TestInvocableExecuteDelegatesToCallTool(t *testing.T) {
	c := New(nil)
	c.http["srv"] = &fakeTransport{
		tools: []rpc.ToolDescriptor{{Name: "echo"}},
		calls: map[string]string{"echo": "hello"},
	}

	tools := c.Discover(context.Background())
	res, err := tools[0].Execute(context.Background(), nil, tool.RunContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.Content != "hello" {
		t.Fatalf("expected success with content 'hello', got %+v", res)
	}
}
