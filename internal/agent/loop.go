package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/ngoclaw/toolorch/internal/apperr"
	"github.com/ngoclaw/toolorch/internal/llm"
	"github.com/ngoclaw/toolorch/internal/session"
	"github.com/ngoclaw/toolorch/internal/tool"
	"go.uber.org/zap"
)

// Config bounds one Loop's behavior (spec §4.10, §6 configuration surface).
type Config struct {
	MaxIterations       int
	MaxToolRetries      int
	EnableReasoning     bool
	EnableConversations bool
}

// Result is the outcome of one Run call.
type Result struct {
	Text             string
	BoundedExhausted bool
}

// Loop implements the turn-bounded PLANNING -> PARSING -> EXECUTING state
// machine described in the spec, adapted from the gateway's ReAct
// AgentLoop but replacing its token-budget-only termination with a hard
// max_iterations ceiling.
type Loop struct {
	llm      llm.Client
	registry *tool.Registry
	executor *tool.Executor
	sessions *session.Store
	logger   *zap.Logger
	cfg      Config
}

// New builds a Loop. sessions may be nil when EnableConversations is false.
func New(client llm.Client, registry *tool.Registry, executor *tool.Executor, sessions *session.Store, logger *zap.Logger, cfg Config) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 5
	}
	if cfg.MaxToolRetries <= 0 {
		cfg.MaxToolRetries = 3
	}
	return &Loop{llm: client, registry: registry, executor: executor, sessions: sessions, logger: logger, cfg: cfg}
}

// Run drives one client request through the agentic loop to completion,
// bounded-exhaustion, or cancellation. sessionID is empty when conversation
// tracking is disabled or the caller supplied none.
func (l *Loop) Run(ctx context.Context, sessionID, userMessage string, parts []llm.Part) (*Result, error) {
	var history []session.Message
	if l.cfg.EnableConversations && sessionID != "" && l.sessions != nil {
		history = l.sessions.History(sessionID)
	}

	var accumulated strings.Builder
	var lastText string

	for t := 1; t <= l.cfg.MaxIterations; t++ {
		if err := ctx.Err(); err != nil {
			return nil, apperr.NewTransportError("request cancelled", err)
		}

		prompt := l.buildPrompt(history, userMessage, accumulated.String())

		var turnParts []llm.Part
		if t == 1 {
			turnParts = parts
		}

		text, err := l.llm.Query(ctx, prompt, llm.Options{EnableThinking: l.cfg.EnableReasoning}, turnParts)
		if err != nil {
			return nil, apperr.NewTransportError("model query failed", err)
		}
		lastText = text

		parsed, err := Parse(text)
		if err != nil {
			return nil, err
		}

		if len(parsed.Calls) == 0 {
			if l.cfg.EnableConversations && sessionID != "" && l.sessions != nil {
				l.sessions.Append(sessionID, session.Message{Role: "user", Content: userMessage})
				l.sessions.Append(sessionID, session.Message{Role: "assistant", Content: parsed.FinalText})
			}
			return &Result{Text: parsed.FinalText}, nil
		}

		rc := tool.RunContext{Logger: l.logger, SessionID: sessionID}
		results, err := l.executor.ExecuteAll(ctx, parsed.Calls, rc, l.cfg.MaxToolRetries)
		if err != nil {
			// A SecurityError is never retried and never fed back into the
			// model as TOOL_ERROR context; it surfaces to the caller directly.
			return nil, err
		}

		if err := ctx.Err(); err != nil {
			// In-flight calls ran to completion; their results are discarded
			// per the cancellation contract.
			return nil, apperr.NewTransportError("request cancelled", err)
		}

		for i, call := range parsed.Calls {
			res := results[i]
			tag := "TOOL_RESULT"
			if !res.Success {
				tag = "TOOL_ERROR"
			}
			fmt.Fprintf(&accumulated, "%s[%s]:\n%s\n", tag, call.ToolName, res.Content)
		}
	}

	return &Result{Text: lastText, BoundedExhausted: true}, nil
}

func (l *Loop) buildPrompt(history []session.Message, userMessage, accumulated string) string {
	var b strings.Builder
	b.WriteString(l.registry.DefinitionsText())
	b.WriteString("\n\n")
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	fmt.Fprintf(&b, "user: %s\n", userMessage)
	if accumulated != "" {
		b.WriteString(accumulated)
	}
	return b.String()
}
