package agentrt

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/lumenanalytics/agentd/model"
)

// llmBackoffSchedule is the fixed 250ms/1s/4s schedule spec.md §4.5 names
// for KindLlmTransient retries, before jitter is applied.
var llmBackoffSchedule = [...]time.Duration{250 * time.Millisecond, time.Second, 4 * time.Second}

const llmMaxAttempts = len(llmBackoffSchedule) + 1 // one initial attempt + 3 retries

// jitter applies +/-20% randomization to d.
func jitter(d time.Duration) time.Duration {
	delta := float64(d) * 0.2
	offset := (rand.Float64()*2 - 1) * delta
	return d + time.Duration(offset)
}

// withLLMRetry runs fn, retrying up to 3 additional times on a transient
// failure (model.ErrRateLimited or a context deadline, per spec.md §4.5's
// LlmTransient classification) with the 250ms/1s/4s +/-20% jitter schedule.
// Any other error is treated as LlmFatal and returned immediately.
func withLLMRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < llmMaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLLMTransient(err) || attempt == llmMaxAttempts-1 {
			return classifyLLMError(err)
		}
		wait := jitter(llmBackoffSchedule[attempt])
		select {
		case <-ctx.Done():
			return &AgentError{Kind: KindShutdown, Message: "context canceled during LLM retry backoff", Cause: ctx.Err()}
		case <-time.After(wait):
		}
	}
	return classifyLLMError(lastErr)
}

func isLLMTransient(err error) bool {
	if errors.Is(err, model.ErrRateLimited) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func classifyLLMError(err error) error {
	if err == nil {
		return nil
	}
	var ae *AgentError
	if errors.As(err, &ae) {
		return ae
	}
	if isLLMTransient(err) {
		return &AgentError{Kind: KindLlmTransient, Message: "model call failed after retries", Cause: err}
	}
	return &AgentError{Kind: KindLlmFatal, Message: "model call failed", Cause: err}
}
