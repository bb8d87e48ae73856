package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"workforce/internal/domain/auth"
	"workforce/internal/requestctx"
	"workforce/internal/transport/http/api"
)

type ctxKey string

const ctxKeyUser ctxKey = "user"

// SessionChecker rejects tokens whose session was revoked by logout or a
// password reset.
type SessionChecker interface {
	SessionActive(ctx context.Context, userID, sessionID string) (bool, error)
}

// Auth attaches the caller to the context when a valid bearer token is
// present. Browsers cannot set headers on websocket upgrades, so those may
// pass the token as ?token= instead. Requests without a usable token pass
// through anonymously; RequireUser rejects them where needed.
func Auth(secret string, sessions SessionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := auth.ParseToken(secret, token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			if sessions != nil {
				active, err := sessions.SessionActive(r.Context(), claims.UserID, claims.SessionID)
				if err != nil {
					slog.Warn("session check failed", "err", err)
				}
				if !active {
					next.ServeHTTP(w, r)
					return
				}
			}

			requestctx.SetUserID(r.Context(), claims.UserID)
			ctx := WithUser(r.Context(), auth.UserContext{
				UserID:    claims.UserID,
				RoleName:  claims.RoleName,
				SessionID: claims.SessionID,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.Split(header, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return ""
		}
		return parts[1]
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("token")
	}
	return ""
}

// RequireUser answers 401 for anonymous requests.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUser(r.Context()); !ok {
			api.Fail(w, http.StatusUnauthorized, "unauthorized", "Unauthorized", GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithUser(ctx context.Context, user auth.UserContext) context.Context {
	return context.WithValue(ctx, ctxKeyUser, user)
}

func GetUser(ctx context.Context) (auth.UserContext, bool) {
	user, ok := ctx.Value(ctxKeyUser).(auth.UserContext)
	return user, ok
}
