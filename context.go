package teamgate

import "context"

type clientIPContextKey struct{}

// WithClientIP attaches the caller's network address to ctx. Operations
// that take an explicit source address fall back to it when that argument
// is empty.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func sourceAddress(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return clientIPFromContext(ctx)
}
