// Package externaltool implements the external tool client (spec §4.5): it
// aggregates subprocess and HTTP transports for configured tool servers,
// performs discovery, and wraps each discovered remote tool as an
// invocable.
package externaltool

import (
	"context"
	"fmt"

	"github.com/ngoclaw/toolorch/internal/config"
	"github.com/ngoclaw/toolorch/internal/rpc"
	"github.com/ngoclaw/toolorch/internal/tool"
	"go.uber.org/zap"
)

type transport interface {
	ListTools(ctx context.Context) ([]rpc.ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error)
}

// Client holds two maps of transports by server name: stdio and HTTP (spec
// §3 "Ownership summary" / §4.5).
type Client struct {
	stdio  map[string]*rpc.StdioTransport
	http   map[string]transport
	logger *zap.Logger
}

// New creates an empty client.
func New(logger *zap.Logger) *Client {
	return &Client{
		stdio:  make(map[string]*rpc.StdioTransport),
		http:   make(map[string]transport),
		logger: logger,
	}
}

// Initialize constructs and connects a transport per configured server.
// Individual connection failure is logged and skipped, never fatal to the
// others.
func (c *Client) Initialize(ctx context.Context, configs []config.MCPServerConfig) {
	for _, cfg := range configs {
		switch cfg.Transport {
		case "stdio":
			env := make([]string, 0, len(cfg.Env))
			for k, v := range cfg.Env {
				env = append(env, fmt.Sprintf("%s=%s", k, v))
			}
			t, err := rpc.Connect(ctx, cfg.Name, cfg.Command, cfg.Args, env, c.logger)
			if err != nil {
				c.logger.Warn("failed to connect stdio tool server", zap.String("server", cfg.Name), zap.Error(err))
				continue
			}
			c.stdio[cfg.Name] = t
		case "http":
			c.http[cfg.Name] = rpc.NewHTTPTransport(cfg.Name, cfg.URL, cfg.Headers, c.logger)
		default:
			c.logger.Warn("unknown transport kind", zap.String("server", cfg.Name), zap.String("transport", cfg.Transport))
		}
	}
}

// CallTool routes a call to the right transport for server.
func (c *Client) CallTool(ctx context.Context, server, toolName string, args map[string]interface{}) (string, error) {
	if t, ok := c.stdio[server]; ok {
		return t.CallTool(ctx, toolName, args)
	}
	if t, ok := c.http[server]; ok {
		return t.CallTool(ctx, toolName, args)
	}
	return "", fmt.Errorf("unknown tool server: %s", server)
}

// invocable adapts one discovered remote tool to the local Tool interface.
type invocable struct {
	client      *Client
	server      string
	toolName    string
	description string
	schema      map[string]interface{}
}

func (i *invocable) Name() string        { return fmt.Sprintf("mcp_%s_%s", i.server, i.toolName) }
func (i *invocable) Description() string { return i.description }
func (i *invocable) Schema() map[string]interface{} { return i.schema }

func (i *invocable) Execute(ctx context.Context, args map[string]interface{}, rc tool.RunContext) (*tool.Result, error) {
	output, err := i.client.CallTool(ctx, i.server, i.toolName, args)
	if err != nil {
		return &tool.Result{Success: false, Content: err.Error()}, nil
	}
	return &tool.Result{Success: true, Content: output}, nil
}

// Discover queries every transport's list_tools and produces one invocable
// per discovered tool, named "mcp_{server}_{tool.name}".
func (c *Client) Discover(ctx context.Context) []tool.Tool {
	var out []tool.Tool

	for server, t := range c.stdio {
		out = append(out, c.discoverFrom(ctx, server, t)...)
	}
	for server, t := range c.http {
		out = append(out, c.discoverFrom(ctx, server, t)...)
	}
	return out
}

func (c *Client) discoverFrom(ctx context.Context, server string, t transport) []tool.Tool {
	descs, err := t.ListTools(ctx)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("tool discovery failed", zap.String("server", server), zap.Error(err))
		}
		return nil
	}

	out := make([]tool.Tool, 0, len(descs))
	for _, d := range descs {
		desc := d.Description
		if desc == "" {
			desc = fmt.Sprintf("Tool %s from %s", d.Name, server)
		}
		out = append(out, &invocable{
			client:      c,
			server:      server,
			toolName:    d.Name,
			description: desc,
			schema:      d.Parameters,
		})
	}
	return out
}

// Shutdown closes every transport and clears internal state.
func (c *Client) Shutdown() {
	for _, t := range c.stdio {
		_ = t.Close()
	}
	c.stdio = make(map[string]*rpc.StdioTransport)
	c.http = make(map[string]transport)
}
