package tool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ngoclaw/toolorch/internal/apperr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Executor runs tool invocations concurrently, retrying each call
// independently with linear back-off (spec §4.8).
type Executor struct {
	registry   *Registry
	logger     *zap.Logger
	maxParallel int
	sleep      func(time.Duration) // swappable for tests
}

// NewExecutor builds a parallel executor bounded to maxParallel concurrent
// calls, following the WaitGroup-plus-bounded-fan-out idiom used for tool
// dispatch elsewhere in this codebase.
func NewExecutor(registry *Registry, logger *zap.Logger, maxParallel int) *Executor {
	if maxParallel <= 0 {
		maxParallel = 8
	}
	return &Executor{registry: registry, logger: logger, maxParallel: maxParallel, sleep: time.Sleep}
}

// ExecuteAll runs calls concurrently and returns results positionally
// aligned with the input, regardless of completion order. A failing call
// never cancels its siblings.
//
// A SecurityError from any call is never retried and never folded into a
// Result: it is spec §7's one exception to "every failure becomes a
// recoverable tool result" and is returned directly so the caller can
// surface it to the request instead of feeding it back to the model.
func (e *Executor) ExecuteAll(ctx context.Context, calls []Invocation, rc RunContext, maxRetries int) ([]Result, error) {
	results := make([]Result, len(calls))
	errs := make([]error, len(calls))
	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(int64(e.maxParallel))

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c Invocation) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				results[idx] = Result{Success: false, Content: "context cancelled"}
				return
			}
			defer sem.Release(1)

			res, err := e.executeOne(ctx, c, rc, maxRetries)
			results[idx] = res
			errs[idx] = err
		}(i, call)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// executeOne returns a non-nil error only for a SecurityError, which aborts
// retry immediately; every other failure is retried and, on exhaustion,
// folded into a failed Result instead of a Go error.
func (e *Executor) executeOne(ctx context.Context, call Invocation, rc RunContext, maxRetries int) (Result, error) {
	t, ok := e.registry.Get(call.ToolName)
	if !ok {
		return Result{Success: false, Content: fmt.Sprintf("Tool '%s' not found", call.ToolName)}, nil
	}

	var lastErr string
	var lastCause error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		res, err := t.Execute(ctx, call.Arguments, rc)
		if apperr.Is(err, apperr.CodeSecurity) {
			if e.logger != nil {
				e.logger.Warn("tool call rejected by security policy, not retried",
					zap.String("tool", call.ToolName), zap.Error(err))
			}
			return Result{}, err
		}

		if err == nil && res != nil && res.Success {
			if e.logger != nil {
				e.logger.Debug("tool call succeeded",
					zap.String("tool", call.ToolName), zap.Int("attempt", attempt))
			}
			return *res, nil
		}

		if err != nil {
			lastErr = err.Error()
			lastCause = err
		} else if res != nil {
			lastErr = res.Content
		} else {
			lastErr = "unknown error"
		}

		if e.logger != nil {
			e.logger.Warn("tool call failed",
				zap.String("tool", call.ToolName), zap.Int("attempt", attempt), zap.String("error", lastErr))
		}

		if attempt < maxRetries {
			e.sleep(time.Duration(1000*attempt) * time.Millisecond)
		}
	}

	exhausted := apperr.NewToolExecutionError(
		fmt.Sprintf("Tool execution failed after %d attempts: %s", maxRetries, lastErr), lastCause)
	return Result{Success: false, Content: exhausted.Message}, nil
}
