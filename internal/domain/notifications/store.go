package notifications

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) Recipients(ctx context.Context, userIDs []string) ([]Recipient, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, email, role
    FROM users
    WHERE id = ANY($1::uuid[]) AND status = 'active'
  `, userIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var r Recipient
		if err := rows.Scan(&r.ID, &r.Email, &r.Role); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UserIDsByRole(ctx context.Context, role string) ([]string, error) {
	rows, err := s.DB.Query(ctx, "SELECT id FROM users WHERE role = $1 AND status = 'active'", role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) UserRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := s.DB.QueryRow(ctx, "SELECT role FROM users WHERE id = $1", userID).Scan(&role)
	return role, err
}

func (s *Store) PreferenceOverrides(ctx context.Context, userIDs []string, ntype string) (map[string]Preference, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT user_id, in_app, email
    FROM notification_preferences
    WHERE user_id = ANY($1::uuid[]) AND type = $2
  `, userIDs, ntype)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]Preference{}
	for rows.Next() {
		var userID string
		var pref Preference
		if err := rows.Scan(&userID, &pref.InApp, &pref.Email); err != nil {
			return nil, err
		}
		out[userID] = pref
	}
	return out, rows.Err()
}

func (s *Store) UserPreferences(ctx context.Context, userID string) (map[string]Preference, error) {
	rows, err := s.DB.Query(ctx, "SELECT type, in_app, email FROM notification_preferences WHERE user_id = $1", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]Preference{}
	for rows.Next() {
		var ntype string
		var pref Preference
		if err := rows.Scan(&ntype, &pref.InApp, &pref.Email); err != nil {
			return nil, err
		}
		out[ntype] = pref
	}
	return out, rows.Err()
}

func (s *Store) UpsertPreferences(ctx context.Context, userID string, prefs map[string]Preference) error {
	return pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		for ntype, pref := range prefs {
			if _, err := tx.Exec(ctx, `
        INSERT INTO notification_preferences (user_id, type, in_app, email)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (user_id, type) DO UPDATE
        SET in_app = EXCLUDED.in_app, email = EXCLUDED.email, updated_at = now()
      `, userID, ntype, pref.InApp, pref.Email); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) CreateNotification(ctx context.Context, n Notification) (Notification, error) {
	err := s.DB.QueryRow(ctx, `
    INSERT INTO notifications (user_id, type, title, body, link)
    VALUES ($1,$2,$3,$4,$5)
    RETURNING id, created_at
  `, n.UserID, n.Type, n.Title, n.Body, n.Link).Scan(&n.ID, &n.CreatedAt)
	return n, err
}

func (s *Store) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]Notification, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, user_id, type, title, body, link, read_at, created_at
    FROM notifications
    WHERE user_id = $1 AND ($2 = false OR read_at IS NULL)
    ORDER BY created_at DESC
    LIMIT $3 OFFSET $4
  `, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Link, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) CountNotifications(ctx context.Context, userID string, unreadOnly bool) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM notifications WHERE user_id = $1 AND ($2 = false OR read_at IS NULL)
  `, userID, unreadOnly).Scan(&count)
	return count, err
}

func (s *Store) MarkRead(ctx context.Context, userID, notificationID string) error {
	var id string
	err := s.DB.QueryRow(ctx, `
    UPDATE notifications
    SET read_at = COALESCE(read_at, now())
    WHERE id = $1 AND user_id = $2
    RETURNING id
  `, notificationID, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *Store) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tag, err := s.DB.Exec(ctx, "UPDATE notifications SET read_at = now() WHERE user_id = $1 AND read_at IS NULL", userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
