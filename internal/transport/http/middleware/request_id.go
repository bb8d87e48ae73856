package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"workforce/internal/requestctx"
)

const maxRequestIDLen = 128

// RequestID accepts a caller supplied X-Request-ID when it is reasonably
// sized and generates one otherwise.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if reqID == "" || len(reqID) > maxRequestIDLen {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := requestctx.With(r.Context(), &requestctx.Meta{RequestID: reqID})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetRequestID(ctx context.Context) string {
	return requestctx.GetRequestID(ctx)
}
