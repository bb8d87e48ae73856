package workrequests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"workforce/internal/domain/approvals"
	"workforce/internal/platform/db"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

const requestSelect = `
    SELECT r.id, r.user_id, su.name, COALESCE(su.line_manager_id::text, ''), r.requested_by, r.type, r.leave_type,
           r.start_date, r.end_date, r.start_half, r.end_half, r.days::float8, r.hours::float8, r.project_id::text,
           r.reason, r.status, r.lm_approver_id::text, r.lm_decided_at, r.hr_approver_id::text, r.hr_decided_at,
           r.rejection_reason, r.created_at, r.updated_at
    FROM work_requests r
    JOIN users su ON su.id = r.user_id`

func scanRequest(row pgx.Row) (WorkRequest, error) {
	var w WorkRequest
	err := row.Scan(&w.ID, &w.UserID, &w.UserName, &w.LineManagerID, &w.RequestedBy, &w.Type, &w.LeaveType,
		&w.StartDate, &w.EndDate, &w.StartHalf, &w.EndHalf, &w.Days, &w.Hours, &w.ProjectID,
		&w.Reason, &w.Status, &w.LMApproverID, &w.LMDecidedAt, &w.HRApproverID, &w.HRDecidedAt,
		&w.RejectionReason, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return w, ErrNotFound
	}
	return w, err
}

func (s *Store) Get(ctx context.Context, requestID string) (WorkRequest, error) {
	return scanRequest(s.DB.QueryRow(ctx, requestSelect+" WHERE r.id = $1", requestID))
}

func (s *Store) List(ctx context.Context, filter Filter, limit, offset int) (ListResult, error) {
	where, args := buildFilter(filter)
	var total int
	if err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM work_requests r JOIN users su ON su.id = r.user_id`+where, args...).Scan(&total); err != nil {
		return ListResult{}, err
	}
	query := requestSelect + where + fmt.Sprintf(" ORDER BY r.start_date DESC, r.created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := s.DB.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return ListResult{}, err
	}
	defer rows.Close()

	out := ListResult{Total: total}
	for rows.Next() {
		w, err := scanRequest(rows)
		if err != nil {
			return ListResult{}, err
		}
		out.Requests = append(out.Requests, w)
	}
	return out, rows.Err()
}

func buildFilter(filter Filter) (string, []any) {
	where := " WHERE 1=1"
	var args []any
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND r.status = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where += fmt.Sprintf(" AND r.type = $%d", len(args))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where += fmt.Sprintf(" AND r.user_id = $%d", len(args))
	}
	if filter.InvolvedUserID != "" {
		args = append(args, filter.InvolvedUserID)
		where += fmt.Sprintf(" AND (r.user_id = $%d OR r.requested_by = $%d)", len(args), len(args))
	}
	if filter.TeamOf != "" {
		args = append(args, filter.TeamOf)
		where += fmt.Sprintf(" AND su.line_manager_id = $%d", len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where += fmt.Sprintf(" AND r.end_date >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where += fmt.Sprintf(" AND r.start_date <= $%d", len(args))
	}
	if filter.Pending != nil {
		var clause string
		clause, args = approvals.PendingClause(*filter.Pending, "r.status", "su.line_manager_id", args)
		where += clause
	}
	return where, args
}

func (s *Store) Create(ctx context.Context, w WorkRequest) (WorkRequest, error) {
	var id string
	err := pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		if w.Type == TypeLeave {
			if _, err := tx.Exec(ctx, "SELECT 1 FROM users WHERE id = $1 FOR UPDATE", w.UserID); err != nil {
				return err
			}
			var overlapping bool
			if err := tx.QueryRow(ctx, `
        SELECT EXISTS (
          SELECT 1 FROM work_requests
          WHERE user_id = $1 AND type = 'leave'
            AND status NOT IN ('rejected','cancelled')
            AND start_date <= $3 AND end_date >= $2
        )
      `, w.UserID, w.StartDate, w.EndDate).Scan(&overlapping); err != nil {
				return err
			}
			if overlapping {
				return ErrOverlappingLeave
			}
		}
		return tx.QueryRow(ctx, `
      INSERT INTO work_requests (user_id, requested_by, type, leave_type, start_date, end_date, start_half, end_half,
                                 days, hours, project_id, reason, status)
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
      RETURNING id
    `, w.UserID, w.RequestedBy, w.Type, w.LeaveType, w.StartDate, w.EndDate, w.StartHalf, w.EndHalf,
			w.Days, w.Hours, w.ProjectID, w.Reason, w.Status).Scan(&id)
	})
	if err != nil {
		return WorkRequest{}, err
	}
	return s.Get(ctx, id)
}

func (s *Store) Delete(ctx context.Context, requestID string) error {
	_, err := s.DB.Exec(ctx, "DELETE FROM work_requests WHERE id = $1", requestID)
	return err
}

func (s *Store) ApplyTransition(ctx context.Context, requestID, actorID string, t approvals.Transition) (WorkRequest, error) {
	err := pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		var status string
		if err := tx.QueryRow(ctx, "SELECT status FROM work_requests WHERE id = $1 FOR UPDATE", requestID).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if status != t.From {
			return approvals.ErrInvalidState
		}

		reason := ""
		if t.Decision == approvals.DecisionRejected {
			reason = t.Comment
		}
		var err error
		switch t.Stage {
		case approvals.StageLM:
			_, err = tx.Exec(ctx, `
        UPDATE work_requests
        SET status = $1, rejection_reason = $2, lm_approver_id = $3, lm_decided_at = now(), updated_at = now()
        WHERE id = $4
      `, t.To, reason, actorID, requestID)
		case approvals.StageHR:
			_, err = tx.Exec(ctx, `
        UPDATE work_requests
        SET status = $1, rejection_reason = $2, hr_approver_id = $3, hr_decided_at = now(), updated_at = now()
        WHERE id = $4
      `, t.To, reason, actorID, requestID)
		default:
			_, err = tx.Exec(ctx, "UPDATE work_requests SET status = $1, updated_at = now() WHERE id = $2", t.To, requestID)
		}
		if err != nil {
			return err
		}
		return approvals.Record(ctx, tx, approvals.KindWork, requestID, actorID, t)
	})
	if err != nil {
		return WorkRequest{}, err
	}
	return s.Get(ctx, requestID)
}

func (s *Store) History(ctx context.Context, requestID string) ([]approvals.Entry, error) {
	return approvals.History(ctx, s.DB, approvals.KindWork, requestID)
}

const documentSelect = `
    SELECT id, work_request_id, file_name, content_type, file_size, blob_key, uploaded_by::text, created_at
    FROM work_request_documents`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.WorkRequestID, &d.FileName, &d.ContentType, &d.Size, &d.BlobKey, &d.UploadedBy, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return d, ErrDocumentNotFound
	}
	return d, err
}

func (s *Store) Documents(ctx context.Context, requestID string) ([]Document, error) {
	rows, err := s.DB.Query(ctx, documentSelect+" WHERE work_request_id = $1 ORDER BY created_at", requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) Document(ctx context.Context, requestID, documentID string) (Document, error) {
	return scanDocument(s.DB.QueryRow(ctx, documentSelect+" WHERE work_request_id = $1 AND id = $2", requestID, documentID))
}

// AddDocument keeps the per-request limit under a row lock on the request.
func (s *Store) AddDocument(ctx context.Context, doc Document) (Document, error) {
	err := pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT 1 FROM work_requests WHERE id = $1 FOR UPDATE", doc.WorkRequestID); err != nil {
			return err
		}
		var count int
		if err := tx.QueryRow(ctx, "SELECT COUNT(1) FROM work_request_documents WHERE work_request_id = $1", doc.WorkRequestID).Scan(&count); err != nil {
			return err
		}
		if count >= MaxDocuments {
			return ErrTooManyDocuments
		}
		var uploadedBy any
		if doc.UploadedBy != nil {
			uploadedBy = db.NullIfEmpty(*doc.UploadedBy)
		}
		return tx.QueryRow(ctx, `
      INSERT INTO work_request_documents (id, work_request_id, file_name, content_type, file_size, blob_key, uploaded_by)
      VALUES ($1,$2,$3,$4,$5,$6,$7)
      RETURNING created_at
    `, doc.ID, doc.WorkRequestID, doc.FileName, doc.ContentType, doc.Size, doc.BlobKey, uploadedBy).Scan(&doc.CreatedAt)
	})
	return doc, err
}

func (s *Store) Calendar(ctx context.Context, scope CalendarScope, from, to time.Time) ([]CalendarEntry, error) {
	args := []any{from, to}
	where := ""
	if !scope.All {
		args = append(args, scope.UserID)
		clause := fmt.Sprintf("r.user_id = $%d", len(args))
		if scope.ManagerID != "" {
			args = append(args, scope.ManagerID)
			clause += fmt.Sprintf(" OR su.line_manager_id = $%d", len(args))
		}
		where = " AND (" + clause + ")"
	}
	rows, err := s.DB.Query(ctx, `
    SELECT r.id, r.user_id, su.name, r.leave_type, r.start_date, r.end_date, r.start_half, r.end_half,
           r.days::float8, r.status
    FROM work_requests r
    JOIN users su ON su.id = r.user_id
    WHERE r.type = 'leave' AND r.status IN ('pending_lm','pending_hr','approved')
      AND r.end_date >= $1 AND r.start_date <= $2`+where+`
    ORDER BY r.start_date, su.name
  `, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []CalendarEntry{}
	for rows.Next() {
		var e CalendarEntry
		if err := rows.Scan(&e.RequestID, &e.UserID, &e.UserName, &e.LeaveType, &e.StartDate, &e.EndDate,
			&e.StartHalf, &e.EndHalf, &e.Days, &e.Status); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
