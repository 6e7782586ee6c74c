package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ngoclaw/toolorch/pkg/safego"
	"go.uber.org/zap"
)

const requestDeadline = 30 * time.Second

// StdioTransport owns one spawned external tool server's process and pipes,
// framing newline-delimited JSON-RPC messages over stdin/stdout. Adapted
// from the gateway's sideload stdio transport, narrowed to the tools/list
// and tools/call methods this server needs.
type StdioTransport struct {
	name   string
	cmd    *exec.Cmd
	logger *zap.Logger
	writer io.WriteCloser

	pending   map[int]chan *Response
	mu        sync.Mutex
	requestID atomic.Int64
	closed    chan struct{}
	closeOnce sync.Once
}

// Connect spawns the command and begins reading its stdout. Stderr lines
// are logged at error level, annotated with the server name.
func Connect(ctx context.Context, name, command string, args []string, env []string, logger *zap.Logger) (*StdioTransport, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	t := &StdioTransport{
		name:    name,
		cmd:     cmd,
		logger:  logger,
		writer:  stdin,
		pending: make(map[int]chan *Response),
		closed:  make(chan struct{}),
	}
	cmd.Stderr = &stderrLogWriter{logger: logger, server: name}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start process: %w", err)
	}

	safego.Go(logger, "stdio-transport-read:"+name, func() { t.readLoop(stdout) })
	safego.Go(logger, "stdio-transport-wait:"+name, func() {
		_ = cmd.Wait()
		t.failAllPending(fmt.Errorf("transport disconnected"))
		t.markClosed()
	})

	return t, nil
}

func (t *StdioTransport) readLoop(stdout io.Reader) {
	reader := bufio.NewReaderSize(stdout, 64*1024)

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			t.handleLine(line)
		}
		if err != nil {
			return
		}
	}
}

func (t *StdioTransport) handleLine(line []byte) {
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil || resp.ID == nil {
		if t.logger != nil {
			t.logger.Warn("discarding malformed line from tool server",
				zap.String("server", t.name), zap.ByteString("line", line))
		}
		return
	}

	id, ok := normalizeID(resp.ID)
	if !ok {
		return
	}

	t.mu.Lock()
	ch, exists := t.pending[id]
	if exists {
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if !exists {
		if t.logger != nil {
			t.logger.Warn("response for unknown id", zap.String("server", t.name), zap.Int("id", id))
		}
		return
	}
	ch <- &resp
}

// ListTools sends tools/list and returns the discovered descriptors.
func (t *StdioTransport) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	var result ToolsListResult
	if err := t.call(ctx, MethodToolsList, struct{}{}, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool sends tools/call and returns a raw JSON-serialized content
// string, or an error describing the failure.
func (t *StdioTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	var result ToolsCallResult
	params := ToolsCallParams{Name: name, Arguments: args}
	if err := t.call(ctx, MethodToolsCall, params, &result); err != nil {
		return "", err
	}
	data, err := json.Marshal(result.Content)
	if err != nil {
		return "", fmt.Errorf("marshal tool content: %w", err)
	}
	return string(data), nil
}

func (t *StdioTransport) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	id := int(t.requestID.Add(1))
	req, err := NewRequest(id, method, params)
	if err != nil {
		return err
	}

	ch := make(chan *Response, 1)
	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()

	if err := t.write(req); err != nil {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return fmt.Errorf("write request: %w", err)
	}

	deadline, cancel := context.WithTimeout(ctx, requestDeadline)
	defer cancel()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return fmt.Errorf("%s", resp.Error.Message)
		}
		return resp.ParseResult(out)
	case <-deadline.Done():
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return fmt.Errorf("timeout waiting for %s response", method)
	case <-t.closed:
		return fmt.Errorf("transport closed")
	}
}

func (t *StdioTransport) write(req *Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = t.writer.Write(data)
	return err
}

// Close terminates the child process and drains the pending map with a
// cancellation error. Idempotent.
func (t *StdioTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.failAllPending(fmt.Errorf("transport closed"))
		t.markClosed()
		err = t.writer.Close()
		if t.cmd != nil && t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
	})
	return err
}

func (t *StdioTransport) failAllPending(cause error) {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[int]chan *Response)
	t.mu.Unlock()

	for _, ch := range pending {
		ch <- &Response{Error: &RPCError{Message: cause.Error()}}
	}
}

func (t *StdioTransport) markClosed() {
	select {
	case <-t.closed:
	default:
		close(t.closed)
	}
}

func normalizeID(id interface{}) (int, bool) {
	switch v := id.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

type stderrLogWriter struct {
	logger *zap.Logger
	server string
}

func (w *stderrLogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg != "" && w.logger != nil {
		w.logger.Error("tool server stderr", zap.String("server", w.server), zap.String("line", msg))
	}
	return len(p), nil
}
