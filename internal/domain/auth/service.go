package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

type Service struct {
	store  StoreAPI
	Sealer Sealer
	Secret string
	Issuer string
	Now    func() time.Time
}

func NewService(store StoreAPI, sealer Sealer, secret string) *Service {
	return &Service{store: store, Sealer: sealer, Secret: secret, Issuer: "Workforce", Now: time.Now}
}

func (s *Service) Login(ctx context.Context, email, password, mfaCode string) (LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.store.FindActiveUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("login lookup failed", "err", err)
		}
		return LoginResult{}, ErrInvalidCredentials
	}
	if err := CheckPassword(user.Password, password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	if user.MFAEnabled {
		if mfaCode == "" {
			return LoginResult{}, ErrMFARequired
		}
		secret, err := s.openSecret(user)
		if err != nil {
			return LoginResult{}, err
		}
		if !totp.Validate(mfaCode, secret) {
			return LoginResult{}, ErrMFAInvalid
		}
	}

	sessionID, err := NewOpaqueToken()
	if err != nil {
		return LoginResult{}, err
	}
	expires := s.Now().Add(SessionTTL)
	if err := s.store.CreateSession(ctx, user.ID, HashToken(sessionID), expires); err != nil {
		return LoginResult{}, fmt.Errorf("create session: %w", err)
	}
	if err := s.store.UpdateLastLogin(ctx, user.ID); err != nil {
		slog.Warn("last login update failed", "err", err)
	}

	token, err := GenerateToken(s.Secret, Claims{UserID: user.ID, RoleName: user.Role, SessionID: sessionID}, SessionTTL)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Token:     token,
		ExpiresAt: expires,
		User:      UserInfo{ID: user.ID, Email: user.Email, Name: user.Name, Role: user.Role, MFAEnabled: user.MFAEnabled},
	}, nil
}

func (s *Service) Logout(ctx context.Context, user UserContext) error {
	if user.SessionID == "" {
		return nil
	}
	return s.store.RevokeSession(ctx, user.UserID, HashToken(user.SessionID))
}

// Refresh swaps the caller's session for a new one and issues a token for it.
// The role is re-read so role changes take effect on refresh.
func (s *Service) Refresh(ctx context.Context, user UserContext) (LoginResult, error) {
	if user.SessionID == "" {
		return LoginResult{}, ErrUnauthorized
	}
	current, err := s.store.FindUserByID(ctx, user.UserID)
	if err != nil {
		return LoginResult{}, ErrUnauthorized
	}
	next, err := NewOpaqueToken()
	if err != nil {
		return LoginResult{}, err
	}
	expires := s.Now().Add(SessionTTL)
	if err := s.store.RotateSession(ctx, user.UserID, HashToken(user.SessionID), HashToken(next), expires); err != nil {
		return LoginResult{}, err
	}
	token, err := GenerateToken(s.Secret, Claims{UserID: current.ID, RoleName: current.Role, SessionID: next}, SessionTTL)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{
		Token:     token,
		ExpiresAt: expires,
		User:      UserInfo{ID: current.ID, Email: current.Email, Name: current.Name, Role: current.Role, MFAEnabled: current.MFAEnabled},
	}, nil
}

// SessionActive is used by the auth middleware to reject revoked tokens.
func (s *Service) SessionActive(ctx context.Context, userID, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	return s.store.SessionValid(ctx, userID, HashToken(sessionID))
}

func (s *Service) SetupMFA(ctx context.Context, userID string) (MFASetup, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return MFASetup{}, err
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return MFASetup{}, err
	}
	enc, err := s.seal(user.ID, key.Secret())
	if err != nil {
		return MFASetup{}, err
	}
	if err := s.store.UpdateMFASecret(ctx, user.ID, enc); err != nil {
		return MFASetup{}, err
	}
	return MFASetup{Secret: key.Secret(), URL: key.URL()}, nil
}

func (s *Service) EnableMFA(ctx context.Context, userID, code string) error {
	if err := s.verifyCode(ctx, userID, code); err != nil {
		return err
	}
	return s.store.SetMFAEnabled(ctx, userID, true)
}

func (s *Service) DisableMFA(ctx context.Context, userID, code string) error {
	if err := s.verifyCode(ctx, userID, code); err != nil {
		return err
	}
	return s.store.SetMFAEnabled(ctx, userID, false)
}

func (s *Service) verifyCode(ctx context.Context, userID, code string) error {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if len(user.MFASecretEnc) == 0 {
		return ErrMFANotSetup
	}
	secret, err := s.openSecret(user)
	if err != nil {
		return err
	}
	if !totp.Validate(code, secret) {
		return ErrMFAInvalid
	}
	return nil
}

// RequestReset creates a reset token for an active user. Unknown emails
// return an empty PasswordReset and no error.
func (s *Service) RequestReset(ctx context.Context, email string) (PasswordReset, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.store.FindActiveUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PasswordReset{}, nil
		}
		return PasswordReset{}, err
	}
	token, err := NewOpaqueToken()
	if err != nil {
		return PasswordReset{}, err
	}
	if err := s.store.CreatePasswordReset(ctx, user.ID, HashToken(token), s.Now().Add(PasswordResetTTL)); err != nil {
		return PasswordReset{}, err
	}
	return PasswordReset{UserID: user.ID, Email: user.Email, Token: token}, nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	if len(newPassword) < MinPasswordLen {
		return "", ErrWeakPassword
	}
	if token == "" {
		return "", ErrInvalidResetToken
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return "", err
	}
	return s.store.ConsumePasswordReset(ctx, HashToken(token), hash)
}

func (s *Service) HasPermission(ctx context.Context, role, permission string) (bool, error) {
	return s.store.HasPermission(ctx, role, permission)
}

func (s *Service) ListRolePermissions(ctx context.Context) (map[string][]string, error) {
	perms, err := s.store.RolePermissions(ctx)
	if err != nil {
		return nil, err
	}
	for _, role := range Roles {
		if _, ok := perms[role]; !ok {
			perms[role] = []string{}
		}
	}
	return perms, nil
}

func (s *Service) UpdateRolePermissions(ctx context.Context, role string, permissions []string) ([]string, error) {
	if !IsValidRole(role) {
		return nil, ErrUnknownRole
	}
	unique := map[string]struct{}{}
	for _, perm := range permissions {
		if !IsKnownPermission(perm) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownPermission, perm)
		}
		unique[perm] = struct{}{}
	}
	if role == RoleAdmin {
		if _, ok := unique[PermSystemAdmin]; !ok {
			return nil, ErrAdminLockout
		}
	}
	out := make([]string, 0, len(unique))
	for perm := range unique {
		out = append(out, perm)
	}
	sort.Strings(out)
	if err := s.store.ReplaceRolePermissions(ctx, role, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) seal(userID, secret string) ([]byte, error) {
	if s.Sealer == nil {
		return []byte(secret), nil
	}
	return s.Sealer.SealFor(userID, secret)
}

func (s *Service) openSecret(user AuthUser) (string, error) {
	if s.Sealer == nil {
		return string(user.MFASecretEnc), nil
	}
	secret, err := s.Sealer.OpenFor(user.ID, user.MFASecretEnc)
	if err != nil {
		return "", fmt.Errorf("open mfa secret: %w", err)
	}
	return secret, nil
}
