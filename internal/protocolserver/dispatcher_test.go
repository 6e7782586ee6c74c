package protocolserver

import (
	"context"
	"encoding/json"
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

func newTestDispatcher(t *testing.T, client llm.Client) *Dispatcher {
	t.Helper()
	reg := tool.New("")
	cache := docstore.New()
	reg.Register(tool.NewSearchTool(client, cache, "test-model"))
	reg.Register(tool.NewFetchTool(cache))

	ex := tool.NewExecutor(reg, zap.NewNop(), 4)
	store := session.New(10, time.Hour, zap.NewNop())
	loop := agent.New(client, reg, ex, store, zap.NewNop(), agent.Config{MaxIterations: 3})

	return New(loop, reg, store, cache, client, zap.NewNop())
}

func soleText(t *testing.T, resp Response) string {
	t.Helper()
	if len(resp.Content) != 1 || resp.Content[0].Type != "text" {
		t.Fatalf("expected a single text content block, got %+v", resp.Content)
	}
	return resp.Content[0].Text
}

func TestDispatchUnknownMethodReturnsErrorEnvelope(t *testing.T) {
	d := newTestDispatcher(t, &llm.StaticClient{Response: "hi"})
	resp := d.Handle(context.Background(), Request{Method: "bogus"})
	text := soleText(t, resp)
	if !strings.Contains(text, "unknown method") {
		t.Fatalf("expected an unknown-method error, got %q", text)
	}
}

func TestDispatchQueryReturnsFinalText(t *testing.T) {
	d := newTestDispatcher(t, &llm.StaticClient{Response: "the final answer"})
	resp := d.Handle(context.Background(), Request{Method: "query", Prompt: "hi"})
	text := soleText(t, resp)
	if text != "the final answer" {
		t.Fatalf("expected the final answer text, got %q", text)
	}
	if resp.SessionID == "" {
		t.Fatal("expected a generated sessionId when none was supplied")
	}
}

func TestDispatchSearchThenFetchRoundTrips(t *testing.T) {
	d := newTestDispatcher(t, &llm.StaticClient{Response: "This is a sufficiently long search result line."})

	searchResp := d.Handle(context.Background(), Request{Method: "search", Query: "test query"})
	searchText := soleText(t, searchResp)

	var results []map[string]interface{}
	if err := json.Unmarshal([]byte(searchText), &results); err != nil {
		t.Fatalf("expected search content to be a JSON result list: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one search result, got %+v", results)
	}
	id, _ := results[0]["id"].(string)
	if id == "" {
		t.Fatal("expected a non-empty document id")
	}

	fetchResp := d.Handle(context.Background(), Request{Method: "fetch", ID: id})
	fetchText := soleText(t, fetchResp)
	var doc docstore.Document
	if err := json.Unmarshal([]byte(fetchText), &doc); err != nil {
		t.Fatalf("expected fetch content to be a JSON document: %v", err)
	}
	if doc.ID != id {
		t.Fatalf("expected fetched document id %q, got %q", id, doc.ID)
	}
}

func TestDispatchToolsListReturnsRegisteredDefinitions(t *testing.T) {
	d := newTestDispatcher(t, &llm.StaticClient{Response: "hi"})
	resp := d.Handle(context.Background(), Request{Method: "tools/list"})
	text := soleText(t, resp)

	var defs []tool.Definition
	if err := json.Unmarshal([]byte(text), &defs); err != nil {
		t.Fatalf("expected tools/list content to be a JSON definition list: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 registered tool definitions, got %+v", defs)
	}
}
