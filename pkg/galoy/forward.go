package galoy

import "context"

const (
	headerRealIP       = "x-real-ip"
	headerForwardedFor = "x-forwarded-for"
)

// ClientIP identifies the original caller of a request being serviced. The
// directory applies rate limiting and fraud checks against these values, so
// they must reflect the payer's network identity, not this server's.
type ClientIP struct {
	RealIP       string
	ForwardedFor string
}

type clientIPKey struct{}

// WithClientIP returns a context carrying the caller identity. Operations
// executed with the returned context forward the identity as x-real-ip and
// x-forwarded-for headers.
func WithClientIP(ctx context.Context, caller ClientIP) context.Context {
	return context.WithValue(ctx, clientIPKey{}, caller)
}

func clientIPFromContext(ctx context.Context) (ClientIP, bool) {
	caller, ok := ctx.Value(clientIPKey{}).(ClientIP)
	return caller, ok
}
