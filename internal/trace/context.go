package trace

import "context"

type ctxKey struct{}

// WithTracer returns a context in which t is the current tracer. The previous
// tracer is current again for anyone still holding the parent context, so a
// scope ends on every exit path without explicit restore.
func WithTracer(ctx context.Context, t *Tracer) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

// FromContext returns the current tracer or nil. The nil tracer is safe to use.
func FromContext(ctx context.Context) *Tracer {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(ctxKey{}).(*Tracer)
	return t
}
