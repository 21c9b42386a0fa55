package types

import "context"

type runTokenKey struct{}

// WithRunToken attaches the run token of a search run to ctx
func WithRunToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, runTokenKey{}, token)
}

// RunTokenFrom returns the run token carried by ctx, if any
func RunTokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(runTokenKey{}).(string)
	return token
}
