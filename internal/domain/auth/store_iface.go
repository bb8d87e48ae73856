package auth

import (
	"context"
	"time"
)

type StoreAPI interface {
	FindActiveUserByEmail(ctx context.Context, email string) (AuthUser, error)
	FindUserByID(ctx context.Context, userID string) (AuthUser, error)
	CreateSession(ctx context.Context, userID, sessionHash string, expires time.Time) error
	RevokeSession(ctx context.Context, userID, sessionHash string) error
	RevokeAllSessions(ctx context.Context, userID string) error
	SessionValid(ctx context.Context, userID, sessionHash string) (bool, error)
	RotateSession(ctx context.Context, userID, oldHash, newHash string, expires time.Time) error
	UpdateLastLogin(ctx context.Context, userID string) error
	UpdateMFASecret(ctx context.Context, userID string, secretEnc []byte) error
	SetMFAEnabled(ctx context.Context, userID string, enabled bool) error
	CreatePasswordReset(ctx context.Context, userID, tokenHash string, expires time.Time) error
	ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string) (string, error)
	HasPermission(ctx context.Context, role, permission string) (bool, error)
	RolePermissions(ctx context.Context) (map[string][]string, error)
	ReplaceRolePermissions(ctx context.Context, role string, permissions []string) error
}

type Sealer interface {
	SealFor(ownerID, value string) ([]byte, error)
	OpenFor(ownerID string, value []byte) (string, error)
}
