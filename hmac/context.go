package hmac

import "context"

type contextKey struct{}

// NewContext returns a copy of ctx that carries the verified signature of the request
// being handled
func NewContext(ctx context.Context, sig Signature) context.Context {
	return context.WithValue(ctx, contextKey{}, sig)
}

// FromContext returns the verified signature stored in ctx by NewContext, if any
func FromContext(ctx context.Context) (Signature, bool) {
	sig, ok := ctx.Value(contextKey{}).(Signature)
	return sig, ok
}
