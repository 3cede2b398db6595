package cryptosync

import "context"

type tabIDContextKey struct{}

// WithTabID attaches an instance identifier to ctx. Events produced by calls
// carrying the context include it, which is how multi-instance runs (several
// engines sharing one store) are told apart in sinks.
func WithTabID(ctx context.Context, tabID string) context.Context {
	return context.WithValue(ctx, tabIDContextKey{}, tabID)
}

func tabIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	tabID, _ := ctx.Value(tabIDContextKey{}).(string)
	return tabID
}
