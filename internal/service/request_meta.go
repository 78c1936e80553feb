package service

import "context"

type requestMetaKey struct{}

// RequestMeta is the client information stamped on audit rows.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// WithRequestMeta returns a copy of ctx carrying meta.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom returns the metadata placed on ctx by the HTTP layer.
func RequestMetaFrom(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta, ok
}
