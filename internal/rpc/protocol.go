// Package rpc implements the external tool-server transports. The JSON-RPC
// 2.0 envelope is used by the subprocess stdio transport; the tools/list and
// tools/call payload types are shared with the HTTP transport, which posts
// them as plain JSON without the envelope. The protocol is pared down from
// the gateway's general-purpose sideload protocol to those two methods.
package rpc

import (
	"encoding/json"
	"fmt"
)

const jsonRPCVersion = "2.0"

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

const (
	MethodToolsList = "tools/list"
	MethodToolsCall = "tools/call"
)

// ToolsListResult is the result shape of a tools/list call.
type ToolsListResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// ToolDescriptor mirrors the tool descriptor data model (spec §3).
type ToolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ToolsCallParams is the params shape of a tools/call request.
type ToolsCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolsCallResult is the result shape of a tools/call response.
type ToolsCallResult struct {
	Content interface{} `json:"content"`
}

// NewRequest builds a JSON-RPC request with the given id and method.
func NewRequest(id interface{}, method string, params interface{}) (*Request, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		raw = b
	}
	return &Request{JSONRPC: jsonRPCVersion, ID: id, Method: method, Params: raw}, nil
}

// ParseResult decodes a response's result field into v.
func (r *Response) ParseResult(v interface{}) error {
	if r.Result == nil {
		return nil
	}
	return json.Unmarshal(r.Result, v)
}
