// Package requestctx carries per-request metadata shared between the
// middleware layers and the handlers.
package requestctx

import "context"

type ctxKey string

const metaKey ctxKey = "request_meta"

// Meta is filled in as the request moves through the middleware chain. It is
// stored by pointer so outer layers (the access log) see values set by inner
// ones (authentication).
type Meta struct {
	RequestID string
	UserID    string
}

func With(ctx context.Context, meta *Meta) context.Context {
	return context.WithValue(ctx, metaKey, meta)
}

func From(ctx context.Context) *Meta {
	meta, _ := ctx.Value(metaKey).(*Meta)
	return meta
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if meta := From(ctx); meta != nil {
		meta.RequestID = requestID
		return ctx
	}
	return With(ctx, &Meta{RequestID: requestID})
}

func GetRequestID(ctx context.Context) string {
	if meta := From(ctx); meta != nil {
		return meta.RequestID
	}
	return ""
}

// SetUserID records the authenticated user. It is a no-op when the request
// did not pass through the request id middleware.
func SetUserID(ctx context.Context, userID string) {
	if meta := From(ctx); meta != nil {
		meta.UserID = userID
	}
}

func GetUserID(ctx context.Context) string {
	if meta := From(ctx); meta != nil {
		return meta.UserID
	}
	return ""
}
