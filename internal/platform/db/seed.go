package db

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"workforce/internal/domain/auth"
	"workforce/internal/platform/config"
)

// Seed installs the default role permissions (without overwriting admin edits)
// and the bootstrap admin account.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if err := ensureRolePermissions(ctx, pool); err != nil {
		return err
	}
	return ensureAdminUser(ctx, pool, cfg.SeedAdminEmail, cfg.SeedAdminPassword)
}

func ensureRolePermissions(ctx context.Context, pool *pgxpool.Pool) error {
	var seeded int
	if err := pool.QueryRow(ctx, "SELECT COUNT(1) FROM role_permissions").Scan(&seeded); err != nil {
		return err
	}
	if seeded > 0 {
		return nil
	}
	for role, perms := range auth.RolePermissions {
		for _, perm := range perms {
			if _, err := pool.Exec(ctx, "INSERT INTO role_permissions (role, permission) VALUES ($1, $2) ON CONFLICT DO NOTHING", role, perm); err != nil {
				return err
			}
		}
	}
	return nil
}

func ensureAdminUser(ctx context.Context, pool *pgxpool.Pool, email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return nil
	}

	var id string
	err := pool.QueryRow(ctx, "SELECT id FROM users WHERE email = $1", email).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `
    INSERT INTO users (email, name, password_hash, role)
    VALUES ($1, $2, $3, $4)
  `, email, "Administrator", hash, auth.RoleAdmin)
	return err
}
