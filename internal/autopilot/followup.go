package autopilot

import (
	"context"

	"github.com/alekspetrov/autonomy/internal/logging"
)

// FollowUpGenerator turns a tool-specific result into follow-up task text.
// Implementations should be pure and total; an empty string means "no
// suggestion" and lets the scheduler fall back to its default content.
type FollowUpGenerator[R any] interface {
	FollowUp(result R) string
}

// FollowUpFunc adapts a plain function to FollowUpGenerator.
type FollowUpFunc[R any] func(result R) string

// FollowUp calls f.
func (f FollowUpFunc[R]) FollowUp(result R) string {
	return f(result)
}

// SafeFollowUp runs gen and treats a panic as "no content".
func SafeFollowUp[R any](gen FollowUpGenerator[R], result R) (content string) {
	if gen == nil {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			logging.WithComponent("followup").Warn("follow-up generator panicked", "panic", r)
			content = ""
		}
	}()
	return gen.FollowUp(result)
}

// ContinueWith is what a tool calls after producing result: it derives the
// follow-up text and hands the request to d without waiting for it.
func ContinueWith[R any](ctx context.Context, d *Dispatcher, rc RunContext, gen FollowUpGenerator[R], result R) bool {
	if d == nil {
		return false
	}
	return d.Submit(ctx, Request{Run: rc, Content: SafeFollowUp(gen, result)})
}
