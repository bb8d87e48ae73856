package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const authUserColumns = "id, email, name, role, password_hash, mfa_enabled, mfa_secret_enc"

func scanAuthUser(row pgx.Row) (AuthUser, error) {
	var out AuthUser
	err := row.Scan(&out.ID, &out.Email, &out.Name, &out.Role, &out.Password, &out.MFAEnabled, &out.MFASecretEnc)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, ErrNotFound
	}
	return out, err
}

func (s *Store) FindActiveUserByEmail(ctx context.Context, email string) (AuthUser, error) {
	return scanAuthUser(s.DB.QueryRow(ctx, `
    SELECT `+authUserColumns+`
    FROM users
    WHERE lower(email) = lower($1) AND status = $2
  `, email, UserStatusActive))
}

func (s *Store) FindUserByID(ctx context.Context, userID string) (AuthUser, error) {
	return scanAuthUser(s.DB.QueryRow(ctx, `
    SELECT `+authUserColumns+`
    FROM users
    WHERE id = $1
  `, userID))
}

func (s *Store) CreateSession(ctx context.Context, userID, sessionHash string, expires time.Time) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO sessions (user_id, refresh_token, expires_at)
    VALUES ($1,$2,$3)
  `, userID, sessionHash, expires)
	return err
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string) error {
	_, err := s.DB.Exec(ctx, "UPDATE users SET last_login = now() WHERE id = $1", userID)
	return err
}

func (s *Store) RevokeSession(ctx context.Context, userID, sessionHash string) error {
	_, err := s.DB.Exec(ctx, "UPDATE sessions SET revoked_at = now() WHERE user_id = $1 AND refresh_token = $2", userID, sessionHash)
	return err
}

func (s *Store) RevokeAllSessions(ctx context.Context, userID string) error {
	_, err := s.DB.Exec(ctx, "UPDATE sessions SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL", userID)
	return err
}

func (s *Store) SessionValid(ctx context.Context, userID, sessionHash string) (bool, error) {
	var count int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM sessions s
    JOIN users u ON u.id = s.user_id
    WHERE s.user_id = $1 AND s.refresh_token = $2 AND s.expires_at > now() AND s.revoked_at IS NULL
      AND u.status = 'active'
  `, userID, sessionHash).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) RotateSession(ctx context.Context, userID, oldHash, newHash string, expires time.Time) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE sessions
    SET refresh_token = $1, expires_at = $2, rotated_at = now()
    WHERE user_id = $3 AND refresh_token = $4 AND revoked_at IS NULL
  `, newHash, expires, userID, oldHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnauthorized
	}
	return nil
}

func (s *Store) UpdateMFASecret(ctx context.Context, userID string, secretEnc []byte) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE users SET mfa_secret_enc = $1, mfa_enabled = false, updated_at = now() WHERE id = $2
  `, secretEnc, userID)
	return err
}

func (s *Store) SetMFAEnabled(ctx context.Context, userID string, enabled bool) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE users
    SET mfa_enabled = $1,
        mfa_secret_enc = CASE WHEN $1 THEN mfa_secret_enc ELSE NULL END,
        updated_at = now()
    WHERE id = $2
  `, enabled, userID)
	return err
}

func (s *Store) CreatePasswordReset(ctx context.Context, userID, tokenHash string, expires time.Time) error {
	_, err := s.DB.Exec(ctx, "INSERT INTO password_resets (user_id, token, expires_at) VALUES ($1, $2, $3)", userID, tokenHash, expires)
	return err
}

// ConsumePasswordReset marks the token used, stores the new hash and revokes
// every session of the user in one transaction.
func (s *Store) ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string) (string, error) {
	var userID string
	err := pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
      UPDATE password_resets
      SET used_at = now()
      WHERE token = $1 AND expires_at > now() AND used_at IS NULL
      RETURNING user_id
    `, tokenHash).Scan(&userID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInvalidResetToken
			}
			return err
		}
		if _, err := tx.Exec(ctx, "UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2", passwordHash, userID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "UPDATE sessions SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL", userID)
		return err
	})
	return userID, err
}

func (s *Store) HasPermission(ctx context.Context, role, permission string) (bool, error) {
	var count int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1)
    FROM role_permissions
    WHERE role = $1 AND permission = $2
  `, role, permission).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) RolePermissions(ctx context.Context) (map[string][]string, error) {
	rows, err := s.DB.Query(ctx, "SELECT role, permission FROM role_permissions ORDER BY role, permission")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]string{}
	for rows.Next() {
		var role, perm string
		if err := rows.Scan(&role, &perm); err != nil {
			return nil, err
		}
		out[role] = append(out[role], perm)
	}
	return out, rows.Err()
}

func (s *Store) ReplaceRolePermissions(ctx context.Context, role string, permissions []string) error {
	return pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "DELETE FROM role_permissions WHERE role = $1", role); err != nil {
			return err
		}
		for _, perm := range permissions {
			if _, err := tx.Exec(ctx, "INSERT INTO role_permissions (role, permission) VALUES ($1,$2) ON CONFLICT DO NOTHING", role, perm); err != nil {
				return err
			}
		}
		return nil
	})
}
