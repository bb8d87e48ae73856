package auth

import (
	"errors"
	"time"
)

const (
	SessionTTL       = 8 * time.Hour
	PasswordResetTTL = 2 * time.Hour
	MinPasswordLen   = 8
	UserStatusActive = "active"
)

var (
	ErrUnauthorized       = errors.New("Unauthorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMFARequired        = errors.New("mfa code required")
	ErrMFAInvalid         = errors.New("invalid mfa code")
	ErrMFANotSetup        = errors.New("mfa not set up")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrUnknownRole        = errors.New("unknown role")
	ErrUnknownPermission  = errors.New("unknown permission")
	ErrNotFound           = errors.New("not found")
	ErrAdminLockout       = errors.New("admin role must keep admin.system")
)

type AuthUser struct {
	ID           string
	Email        string
	Name         string
	Role         string
	Password     string
	MFAEnabled   bool
	MFASecretEnc []byte
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      UserInfo  `json:"user"`
}

type UserInfo struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	MFAEnabled bool   `json:"mfaEnabled"`
}

type MFASetup struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// PasswordReset is returned to the caller so the reset link can be mailed.
// Token is empty when the email is unknown.
type PasswordReset struct {
	UserID string
	Email  string
	Token  string
}
