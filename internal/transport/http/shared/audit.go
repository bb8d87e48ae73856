package shared

import (
	"context"
	"log/slog"
	"net/http"

	"workforce/internal/requestctx"
)

type Auditor interface {
	Record(ctx context.Context, actorID, action, entityType, entityID, requestID, ip string, before, after any) error
}

// Audit records a mutation. Failures are logged and never fail the request.
func Audit(r *http.Request, auditor Auditor, actorID, action, entityType, entityID string, before, after any) {
	if auditor == nil {
		return
	}
	if err := auditor.Record(r.Context(), actorID, action, entityType, entityID, requestctx.GetRequestID(r.Context()), ClientIP(r), before, after); err != nil {
		slog.Warn("audit "+action+" failed", "err", err)
	}
}
