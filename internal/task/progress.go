package task

import "context"

// ProgressFunc receives percent-complete updates for the task currently
// being executed.
type ProgressFunc func(percent int)

type progressKey struct{}

// WithProgressReporter returns a context carrying a reporter bound to one
// task. The dispatcher installs it before invoking a handler so the handler
// can surface progress without knowing about the queue.
func WithProgressReporter(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey{}, fn)
}

// ReportProgress forwards a percent-complete update to the reporter carried
// by the context. Outside a dispatch (tests, direct handler calls) there is
// no reporter and the call is a no-op.
func ReportProgress(ctx context.Context, percent int) {
	if fn, ok := ctx.Value(progressKey{}).(ProgressFunc); ok {
		fn(percent)
	}
}
