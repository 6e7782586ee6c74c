package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// HTTPTransport is a stateless client for an HTTP-reachable tool server
// (spec §4.4), adapted from the gateway's MCPAdapter but narrowed to the
// exact REST shape the spec describes: POST {baseURL}/tools/list and
// {baseURL}/tools/call, instead of JSON-RPC-over-HTTP.
type HTTPTransport struct {
	name    string
	baseURL string
	headers map[string]string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPTransport builds a transport for one HTTP tool server.
func NewHTTPTransport(name, baseURL string, headers map[string]string, logger *zap.Logger) *HTTPTransport {
	return &HTTPTransport{
		name:    name,
		baseURL: baseURL,
		headers: headers,
		client:  &http.Client{Timeout: requestDeadline},
		logger:  logger,
	}
}

// ListTools posts to {baseURL}/tools/list.
func (t *HTTPTransport) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	var result ToolsListResult
	if err := t.post(ctx, "/tools/list", struct{}{}, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool posts to {baseURL}/tools/call.
func (t *HTTPTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	var result ToolsCallResult
	params := ToolsCallParams{Name: name, Arguments: args}
	if err := t.post(ctx, "/tools/call", params, &result); err != nil {
		return "", err
	}
	data, err := json.Marshal(result.Content)
	if err != nil {
		return "", fmt.Errorf("marshal tool content: %w", err)
	}
	return string(data), nil
}

func (t *HTTPTransport) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
