package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const eventSelect = `
    SELECT e.id, e.title, e.description, e.type, e.starts_at, e.ends_at, e.all_day, e.project_id::text,
           COALESCE(p.name, ''), e.created_by, cb.name, e.attendee_ids::text[], e.created_at, e.updated_at
    FROM events e
    JOIN users cb ON cb.id = e.created_by
    LEFT JOIN projects p ON p.id = e.project_id`

func scanEvent(row pgx.Row) (Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Type, &e.StartsAt, &e.EndsAt, &e.AllDay, &e.ProjectID,
		&e.ProjectName, &e.CreatedBy, &e.CreatedByName, &e.AttendeeIDs, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return e, ErrNotFound
	}
	if e.AttendeeIDs == nil {
		e.AttendeeIDs = []string{}
	}
	return e, err
}

func (s *Store) Get(ctx context.Context, eventID string) (Event, error) {
	return scanEvent(s.DB.QueryRow(ctx, eventSelect+" WHERE e.id = $1", eventID))
}

func (s *Store) List(ctx context.Context, filter Filter) ([]Event, error) {
	where := " WHERE 1=1"
	var args []any
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where += fmt.Sprintf(" AND e.ends_at >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where += fmt.Sprintf(" AND e.starts_at <= $%d", len(args))
	}
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		where += fmt.Sprintf(" AND e.project_id = $%d", len(args))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where += fmt.Sprintf(" AND (e.created_by = $%d OR $%d = ANY(e.attendee_ids))", len(args), len(args))
	}
	rows, err := s.DB.Query(ctx, eventSelect+where+" ORDER BY e.starts_at, e.title", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Create(ctx context.Context, e Event) (Event, error) {
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO events (title, description, type, starts_at, ends_at, all_day, project_id, created_by, attendee_ids)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::uuid[])
    RETURNING id
  `, e.Title, e.Description, e.Type, e.StartsAt, e.EndsAt, e.AllDay, e.ProjectID, e.CreatedBy, e.AttendeeIDs).Scan(&id)
	if err != nil {
		return Event{}, err
	}
	return s.Get(ctx, id)
}

func (s *Store) Save(ctx context.Context, e Event) (Event, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE events
    SET title = $1, description = $2, type = $3, starts_at = $4, ends_at = $5, all_day = $6,
        project_id = $7, attendee_ids = $8::uuid[], updated_at = now()
    WHERE id = $9
  `, e.Title, e.Description, e.Type, e.StartsAt, e.EndsAt, e.AllDay, e.ProjectID, e.AttendeeIDs, e.ID)
	if err != nil {
		return Event{}, err
	}
	if tag.RowsAffected() == 0 {
		return Event{}, ErrNotFound
	}
	return s.Get(ctx, e.ID)
}

func (s *Store) Delete(ctx context.Context, eventID string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM events WHERE id = $1", eventID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ActiveUserIDs returns the subset of ids that are active users.
func (s *Store) ActiveUserIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	rows, err := s.DB.Query(ctx, "SELECT id::text FROM users WHERE status = 'active' AND id = ANY($1::uuid[])", ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
