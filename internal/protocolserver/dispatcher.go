// Package protocolserver implements the client-facing protocol surface
// (spec §6): one dispatcher handling query/search/fetch/tools-list requests,
// fronted by three interchangeable transports (stdio, HTTP, WebSocket).
package protocolserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ngoclaw/toolorch/internal/agent"
	"github.com/ngoclaw/toolorch/internal/apperr"
	"github.com/ngoclaw/toolorch/internal/docstore"
	"github.com/ngoclaw/toolorch/internal/llm"
	"github.com/ngoclaw/toolorch/internal/session"
	"github.com/ngoclaw/toolorch/internal/tool"
	"go.uber.org/zap"
)

// Request is one client-issued operation (spec §6's input schemas for
// query/search/fetch). Method selects the handler; the other fields are
// used as needed by that method.
type Request struct {
	Method    string     `json:"method"`
	Prompt    string     `json:"prompt,omitempty"`
	SessionID string     `json:"sessionId,omitempty"`
	Query     string     `json:"query,omitempty"`
	ID        string     `json:"id,omitempty"`
	Parts     []llm.Part `json:"parts,omitempty"`
}

// ContentBlock is one element of a Response's content array.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Response is the uniform wire envelope for every method (spec §6: "Each
// response is a JSON object carrying { content: [{ type: "text", text:
// "…" }] }"). §7's propagation policy folds both success and failure into
// this same single-element shape; there is no separate error branch on the
// wire. sessionId is carried alongside content so a client that omitted it
// on a query can continue the conversation.
type Response struct {
	Content   []ContentBlock `json:"content"`
	SessionID string         `json:"sessionId,omitempty"`
}

func textResponse(text string) Response {
	return Response{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResponse(err error) Response {
	return textResponse(err.Error())
}

// Dispatcher routes a Request to the right handler and never panics on bad
// input: malformed or unknown requests become an error-shaped Response.
type Dispatcher struct {
	loop     *agent.Loop
	registry *tool.Registry
	sessions *session.Store
	cache    *docstore.Cache
	llm      llm.Client
	logger   *zap.Logger
}

func New(loop *agent.Loop, registry *tool.Registry, sessions *session.Store, cache *docstore.Cache, client llm.Client, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{loop: loop, registry: registry, sessions: sessions, cache: cache, llm: client, logger: logger}
}

// Handle dispatches one request, recovering the method-specific error into
// the Response envelope rather than a Go error (spec §7: "the client always
// receives a well-formed response").
func (d *Dispatcher) Handle(ctx context.Context, req Request) Response {
	switch req.Method {
	case "query":
		return d.handleQuery(ctx, req)
	case "search":
		return d.handleSearch(ctx, req)
	case "fetch":
		return d.handleFetch(ctx, req)
	case "tools/list":
		data, err := json.Marshal(d.registry.List())
		if err != nil {
			return errorResponse(err)
		}
		return textResponse(string(data))
	default:
		return errorResponse(fmt.Errorf("unknown method: %q", req.Method))
	}
}

func (d *Dispatcher) handleQuery(ctx context.Context, req Request) Response {
	sessionID := req.SessionID
	if sessionID == "" && d.sessions != nil {
		sessionID = d.sessions.Create()
	}

	res, err := d.loop.Run(ctx, sessionID, req.Prompt, req.Parts)
	if err != nil {
		return errorResponse(err)
	}
	return Response{Content: []ContentBlock{{Type: "text", Text: res.Text}}, SessionID: sessionID}
}

func (d *Dispatcher) handleSearch(ctx context.Context, req Request) Response {
	t, ok := d.registry.Get("search")
	if !ok {
		return errorResponse(apperr.NewNotFoundError("search tool is not registered"))
	}
	result, err := t.Execute(ctx, map[string]interface{}{"query": req.Query}, tool.RunContext{Logger: d.logger})
	if err != nil {
		return errorResponse(err)
	}
	return textResponse(result.Content)
}

func (d *Dispatcher) handleFetch(ctx context.Context, req Request) Response {
	t, ok := d.registry.Get("fetch")
	if !ok {
		return errorResponse(apperr.NewNotFoundError("fetch tool is not registered"))
	}
	result, err := t.Execute(ctx, map[string]interface{}{"id": req.ID}, tool.RunContext{Logger: d.logger})
	if err != nil {
		return errorResponse(err)
	}
	return textResponse(result.Content)
}
