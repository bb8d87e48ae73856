package middleware

import (
	"context"
	"net/http"

	"workforce/internal/transport/http/api"
)

type PermissionStore interface {
	HasPermission(ctx context.Context, role, permission string) (bool, error)
}

func RequirePermission(permission string, store PermissionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", GetRequestID(r.Context()))
				return
			}

			allowed, err := store.HasPermission(r.Context(), user.RoleName, permission)
			if err != nil {
				api.Fail(w, http.StatusInternalServerError, "permission_error", "permission check failed", GetRequestID(r.Context()))
				return
			}
			if !allowed {
				api.Fail(w, http.StatusForbidden, "forbidden", "insufficient permissions", GetRequestID(r.Context()))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Allowed reports whether the current user holds permission. Lookup errors
// count as a denial.
func Allowed(r *http.Request, store PermissionStore, permission string) bool {
	user, ok := GetUser(r.Context())
	if !ok || store == nil {
		return false
	}
	allowed, err := store.HasPermission(r.Context(), user.RoleName, permission)
	return err == nil && allowed
}
