package auth

import (
	"context"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workforce/internal/platform/crypto"
)

type fakeStore struct {
	users    map[string]*AuthUser
	sessions map[string]string
	resets   map[string]string
	perms    map[string][]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    map[string]*AuthUser{},
		sessions: map[string]string{},
		resets:   map[string]string{},
		perms:    map[string][]string{},
	}
}

func (f *fakeStore) addUser(t *testing.T, id, email, role, password string) *AuthUser {
	t.Helper()
	hash, err := HashPassword(password)
	require.NoError(t, err)
	user := &AuthUser{ID: id, Email: email, Name: id, Role: role, Password: hash}
	f.users[id] = user
	return user
}

func (f *fakeStore) FindActiveUserByEmail(_ context.Context, email string) (AuthUser, error) {
	for _, user := range f.users {
		if user.Email == email {
			return *user, nil
		}
	}
	return AuthUser{}, ErrNotFound
}

func (f *fakeStore) FindUserByID(_ context.Context, userID string) (AuthUser, error) {
	user, ok := f.users[userID]
	if !ok {
		return AuthUser{}, ErrNotFound
	}
	return *user, nil
}

func (f *fakeStore) CreateSession(_ context.Context, userID, hash string, _ time.Time) error {
	f.sessions[hash] = userID
	return nil
}

func (f *fakeStore) RevokeSession(_ context.Context, _ string, hash string) error {
	delete(f.sessions, hash)
	return nil
}

func (f *fakeStore) RevokeAllSessions(_ context.Context, userID string) error {
	for hash, owner := range f.sessions {
		if owner == userID {
			delete(f.sessions, hash)
		}
	}
	return nil
}

func (f *fakeStore) SessionValid(_ context.Context, userID, hash string) (bool, error) {
	return f.sessions[hash] == userID, nil
}

func (f *fakeStore) RotateSession(_ context.Context, userID, oldHash, newHash string, _ time.Time) error {
	if f.sessions[oldHash] != userID {
		return ErrUnauthorized
	}
	delete(f.sessions, oldHash)
	f.sessions[newHash] = userID
	return nil
}

func (f *fakeStore) UpdateLastLogin(context.Context, string) error { return nil }

func (f *fakeStore) UpdateMFASecret(_ context.Context, userID string, enc []byte) error {
	f.users[userID].MFASecretEnc = enc
	f.users[userID].MFAEnabled = false
	return nil
}

func (f *fakeStore) SetMFAEnabled(_ context.Context, userID string, enabled bool) error {
	f.users[userID].MFAEnabled = enabled
	if !enabled {
		f.users[userID].MFASecretEnc = nil
	}
	return nil
}

func (f *fakeStore) CreatePasswordReset(_ context.Context, userID, hash string, _ time.Time) error {
	f.resets[hash] = userID
	return nil
}

func (f *fakeStore) ConsumePasswordReset(ctx context.Context, hash, passwordHash string) (string, error) {
	userID, ok := f.resets[hash]
	if !ok {
		return "", ErrInvalidResetToken
	}
	delete(f.resets, hash)
	f.users[userID].Password = passwordHash
	return userID, f.RevokeAllSessions(ctx, userID)
}

func (f *fakeStore) HasPermission(_ context.Context, role, perm string) (bool, error) {
	for _, p := range f.perms[role] {
		if p == perm {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) RolePermissions(context.Context) (map[string][]string, error) {
	out := map[string][]string{}
	for role, perms := range f.perms {
		out[role] = perms
	}
	return out, nil
}

func (f *fakeStore) ReplaceRolePermissions(_ context.Context, role string, perms []string) error {
	f.perms[role] = perms
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	sealer, err := crypto.New("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	require.NoError(t, err)
	store := newFakeStore()
	return NewService(store, sealer, "test-secret"), store
}

func TestLoginIssuesTokenBoundToSession(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	store.addUser(t, "u1", "ann@example.com", RolePM, "password1")

	result, err := svc.Login(ctx, " Ann@Example.com ", "password1", "")
	require.NoError(t, err)
	assert.Equal(t, RolePM, result.User.Role)

	claims, err := ParseToken("test-secret", result.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)

	active, err := svc.SessionActive(ctx, "u1", claims.SessionID)
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, svc.Logout(ctx, UserContext{UserID: "u1", SessionID: claims.SessionID}))
	active, err = svc.SessionActive(ctx, "u1", claims.SessionID)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	store.addUser(t, "u1", "ann@example.com", RoleEmployee, "password1")

	_, err := svc.Login(ctx, "ann@example.com", "nope", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "missing@example.com", "password1", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestMFAFlow(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	store.addUser(t, "u1", "ann@example.com", RoleHR, "password1")

	setup, err := svc.SetupMFA(ctx, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, setup.URL)
	assert.NotEqual(t, setup.Secret, string(store.users["u1"].MFASecretEnc), "secret must be encrypted at rest")

	assert.ErrorIs(t, svc.EnableMFA(ctx, "u1", "000000x"), ErrMFAInvalid)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.EnableMFA(ctx, "u1", code))
	assert.True(t, store.users["u1"].MFAEnabled)

	_, err = svc.Login(ctx, "ann@example.com", "password1", "")
	assert.ErrorIs(t, err, ErrMFARequired)

	_, err = svc.Login(ctx, "ann@example.com", "password1", code)
	require.NoError(t, err)

	require.NoError(t, svc.DisableMFA(ctx, "u1", code))
	assert.False(t, store.users["u1"].MFAEnabled)
	assert.ErrorIs(t, svc.DisableMFA(ctx, "u1", code), ErrMFANotSetup)
}

func TestRefreshRotatesSession(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	store.addUser(t, "u1", "ann@example.com", RoleEmployee, "password1")

	login, err := svc.Login(ctx, "ann@example.com", "password1", "")
	require.NoError(t, err)
	claims, err := ParseToken("test-secret", login.Token)
	require.NoError(t, err)

	store.users["u1"].Role = RoleLineManager
	refreshed, err := svc.Refresh(ctx, UserContext{UserID: "u1", RoleName: RoleEmployee, SessionID: claims.SessionID})
	require.NoError(t, err)
	assert.Equal(t, RoleLineManager, refreshed.User.Role)

	old, _ := svc.SessionActive(ctx, "u1", claims.SessionID)
	assert.False(t, old)

	_, err = svc.Refresh(ctx, UserContext{UserID: "u1", SessionID: claims.SessionID})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestPasswordReset(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	store.addUser(t, "u1", "ann@example.com", RoleEmployee, "password1")

	unknown, err := svc.RequestReset(ctx, "ghost@example.com")
	require.NoError(t, err)
	assert.Empty(t, unknown.Token)

	reset, err := svc.RequestReset(ctx, "ann@example.com")
	require.NoError(t, err)
	require.NotEmpty(t, reset.Token)

	_, err = svc.ResetPassword(ctx, reset.Token, "short")
	assert.ErrorIs(t, err, ErrWeakPassword)

	userID, err := svc.ResetPassword(ctx, reset.Token, "new-password")
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)

	_, err = svc.ResetPassword(ctx, reset.Token, "new-password")
	assert.ErrorIs(t, err, ErrInvalidResetToken)

	_, err = svc.Login(ctx, "ann@example.com", "new-password", "")
	assert.NoError(t, err)
}

func TestUpdateRolePermissions(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	_, err := svc.UpdateRolePermissions(ctx, "boss", []string{PermUsersRead})
	assert.ErrorIs(t, err, ErrUnknownRole)

	_, err = svc.UpdateRolePermissions(ctx, RolePM, []string{"everything"})
	assert.ErrorIs(t, err, ErrUnknownPermission)

	_, err = svc.UpdateRolePermissions(ctx, RoleAdmin, []string{PermUsersRead})
	assert.ErrorIs(t, err, ErrAdminLockout)

	perms, err := svc.UpdateRolePermissions(ctx, RolePM, []string{PermTasksWrite, PermProjectsRead, PermTasksWrite})
	require.NoError(t, err)
	assert.Equal(t, []string{PermProjectsRead, PermTasksWrite}, perms)

	allowed, err := svc.HasPermission(ctx, RolePM, PermTasksWrite)
	require.NoError(t, err)
	assert.True(t, allowed)

	listed, err := svc.ListRolePermissions(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, len(Roles))
	assert.Equal(t, store.perms[RolePM], listed[RolePM])
}
