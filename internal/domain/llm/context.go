package llm

import "context"

type authTokenKey struct{}

// WithAuthToken stores a caller-supplied upstream token on the context.
func WithAuthToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, authTokenKey{}, token)
}

// AuthTokenFromContext returns the token set by WithAuthToken, if any.
func AuthTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(authTokenKey{}).(string)
	return token, ok && token != ""
}
