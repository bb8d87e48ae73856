package workrequests

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"workforce/internal/domain/approvals"
	"workforce/internal/domain/auth"
	"workforce/internal/domain/notifications"
	"workforce/internal/domain/projects"
	"workforce/internal/domain/users"
	"workforce/internal/platform/blob"
)

type ProjectLookup interface {
	Get(ctx context.Context, projectID string) (projects.Project, error)
}

type UserLookup interface {
	Get(ctx context.Context, userID string) (users.User, error)
}

type Notifier interface {
	Notify(ctx context.Context, userIDs []string, ntype, title, body, link string) error
	NotifyRole(ctx context.Context, role, ntype, title, body, link string) error
}

// DocumentStore is the part of blob.Store used for attachments.
type DocumentStore interface {
	Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error)
	Get(ctx context.Context, key string) (blob.Info, io.ReadCloser, error)
	Delete(ctx context.Context, key string) (bool, error)
}

type Service struct {
	store    StoreAPI
	Projects ProjectLookup
	Users    UserLookup
	Notifier Notifier
	Blobs    DocumentStore
	Metrics  approvals.Recorder
	Now      func() time.Time
}

func NewService(store StoreAPI, projectLookup ProjectLookup, userLookup UserLookup, notifier Notifier, blobs DocumentStore) *Service {
	return &Service{
		store:    store,
		Projects: projectLookup,
		Users:    userLookup,
		Notifier: notifier,
		Blobs:    blobs,
		Now:      time.Now,
	}
}

func (s *Service) Create(ctx context.Context, actor auth.UserContext, input CreateInput) (Detail, error) {
	subjectID := strings.TrimSpace(input.UserID)
	if subjectID == "" {
		subjectID = actor.UserID
	}
	if subjectID != actor.UserID && !actor.HasAnyRole(auth.RoleHR) {
		return Detail{}, ErrCannotFileForOthers
	}

	w, err := s.prepare(ctx, input)
	if err != nil {
		return Detail{}, err
	}
	if len(input.Documents) > 0 && s.Blobs == nil {
		return Detail{}, ErrDocumentStorage
	}
	for i, upload := range input.Documents {
		if err := ValidateUpload(upload, i); err != nil {
			return Detail{}, err
		}
	}

	subject, err := s.Users.Get(ctx, subjectID)
	if err != nil {
		return Detail{}, err
	}
	if subject.Status != users.StatusActive {
		return Detail{}, users.ErrNotFound
	}
	w.UserID = subject.ID
	w.RequestedBy = actor.UserID
	w.Status = approvals.InitialStatus(subject.ManagerID() != "")

	created, err := s.store.Create(ctx, w)
	if err != nil {
		return Detail{}, err
	}

	docs := make([]Document, 0, len(input.Documents))
	for _, upload := range input.Documents {
		doc, err := s.storeDocument(ctx, created.ID, actor.UserID, upload)
		if err != nil {
			s.discard(ctx, created.ID, docs)
			return Detail{}, fmt.Errorf("store document %s: %w", upload.FileName, err)
		}
		docs = append(docs, doc)
	}
	s.record(created.Status)

	title := fmt.Sprintf("Work request: %s %s", created.UserName, created.label())
	body := describe(created)
	if created.Status == approvals.StatusPendingLM {
		s.notify(ctx, []string{created.LineManagerID}, notifications.TypeWorkRequestSubmitted, title, body, link(created))
	} else {
		s.notifyHR(ctx, notifications.TypeWorkRequestPendingHR, title, body, link(created))
	}
	return Detail{WorkRequest: created, History: []approvals.Entry{}, Documents: docs}, nil
}

// prepare validates input and fills the computed fields.
func (s *Service) prepare(ctx context.Context, input CreateInput) (WorkRequest, error) {
	start, end := dateOnly(input.StartDate), dateOnly(input.EndDate)
	if input.StartDate.IsZero() || input.EndDate.IsZero() || end.Before(start) {
		return WorkRequest{}, ErrInvalidDateRange
	}
	w := WorkRequest{
		Type:      input.Type,
		StartDate: start,
		EndDate:   end,
		Reason:    strings.TrimSpace(input.Reason),
	}
	switch input.Type {
	case TypeLeave:
		if !validLeaveType(input.LeaveType) {
			return WorkRequest{}, ErrInvalidLeaveType
		}
		days, err := CalculateRequestDays(start, end, input.StartHalf, input.EndHalf)
		if err != nil {
			return WorkRequest{}, err
		}
		if days <= 0 {
			return WorkRequest{}, ErrNoWorkingDays
		}
		w.LeaveType = input.LeaveType
		w.StartHalf = input.StartHalf
		w.EndHalf = input.EndHalf
		w.Days = days
	case TypeOvertime:
		if input.StartHalf != HalfNone || input.EndHalf != HalfNone {
			return WorkRequest{}, ErrInvalidHalf
		}
		if err := ValidateOvertime(start, end, input.Hours); err != nil {
			return WorkRequest{}, err
		}
		w.Hours = input.Hours
		w.Days = float64(calendarDays(start, end))
		if projectID := strings.TrimSpace(input.ProjectID); projectID != "" {
			project, err := s.Projects.Get(ctx, projectID)
			if errors.Is(err, projects.ErrNotFound) {
				return WorkRequest{}, ErrProjectNotFound
			}
			if err != nil {
				return WorkRequest{}, err
			}
			w.ProjectID = &project.ID
		}
	default:
		return WorkRequest{}, ErrInvalidType
	}
	return w, nil
}

func validLeaveType(leaveType string) bool {
	for _, t := range LeaveTypes {
		if t == leaveType {
			return true
		}
	}
	return false
}

func (s *Service) discard(ctx context.Context, requestID string, docs []Document) {
	for _, doc := range docs {
		if _, err := s.Blobs.Delete(ctx, doc.BlobKey); err != nil {
			slog.Warn("document cleanup failed", "key", doc.BlobKey, "err", err)
		}
	}
	if err := s.store.Delete(ctx, requestID); err != nil {
		slog.Warn("work request cleanup failed", "requestId", requestID, "err", err)
	}
}

func (s *Service) storeDocument(ctx context.Context, requestID, actorID string, upload Upload) (Document, error) {
	doc := Document{
		ID:            uuid.NewString(),
		WorkRequestID: requestID,
		FileName:      SafeFileName(upload.FileName),
		ContentType:   normalizeContentType(upload.ContentType),
		Size:          int64(len(upload.Data)),
	}
	if actorID != "" {
		doc.UploadedBy = &actorID
	}
	doc.BlobKey = DocumentKey(requestID, doc.ID, doc.FileName)
	if _, err := s.Blobs.Put(ctx, doc.BlobKey, bytes.NewReader(upload.Data), blob.PutOptions{
		ContentType: doc.ContentType,
		Metadata:    map[string]string{"work-request-id": requestID},
	}); err != nil {
		return Document{}, err
	}
	saved, err := s.store.AddDocument(ctx, doc)
	if err != nil {
		if _, delErr := s.Blobs.Delete(ctx, doc.BlobKey); delErr != nil {
			slog.Warn("document cleanup failed", "key", doc.BlobKey, "err", delErr)
		}
		return Document{}, err
	}
	return saved, nil
}

func (s *Service) Get(ctx context.Context, actor auth.UserContext, requestID string) (Detail, error) {
	w, err := s.store.Get(ctx, requestID)
	if err != nil {
		return Detail{}, err
	}
	if !canView(w, actor) {
		return Detail{}, ErrForbidden
	}
	history, err := s.store.History(ctx, requestID)
	if err != nil {
		return Detail{}, err
	}
	docs, err := s.store.Documents(ctx, requestID)
	if err != nil {
		return Detail{}, err
	}
	return Detail{WorkRequest: w, History: history, Documents: docs, CanDecide: approvals.CanDecide(w.subject(), actor)}, nil
}

func canView(w WorkRequest, actor auth.UserContext) bool {
	if actor.HasAnyRole(auth.RoleHR) {
		return true
	}
	switch actor.UserID {
	case w.UserID, w.RequestedBy, w.LineManagerID:
		return true
	}
	return false
}

// List applies scope relative to the actor. The team scope covers the
// actor's direct reports; hr and admin see every team.
func (s *Service) List(ctx context.Context, actor auth.UserContext, scope string, filter Filter, limit, offset int) (ListResult, error) {
	switch scope {
	case approvals.ScopePending:
		pending := approvals.PendingFor(actor)
		filter.Pending = &pending
	case approvals.ScopeTeam:
		switch {
		case actor.HasAnyRole(auth.RoleHR):
		case actor.HasAnyRole(auth.RoleLineManager):
			filter.TeamOf = actor.UserID
		default:
			return ListResult{}, ErrForbidden
		}
	case approvals.ScopeAll:
		if !actor.HasAnyRole(auth.RoleHR) {
			return ListResult{}, ErrForbidden
		}
	default:
		if !actor.HasAnyRole(auth.RoleHR) || scope == approvals.ScopeMine {
			filter.InvolvedUserID = actor.UserID
		}
	}
	return s.store.List(ctx, filter, limit, offset)
}

func (s *Service) Approve(ctx context.Context, actor auth.UserContext, requestID, comment string) (WorkRequest, WorkRequest, error) {
	before, err := s.store.Get(ctx, requestID)
	if err != nil {
		return before, WorkRequest{}, err
	}
	t, err := approvals.Approve(before.subject(), actor, comment)
	if err != nil {
		return before, WorkRequest{}, err
	}
	after, err := s.store.ApplyTransition(ctx, requestID, actor.UserID, t)
	if err != nil {
		return before, WorkRequest{}, err
	}
	s.record(after.Status)

	title := fmt.Sprintf("Work request: %s %s", after.UserName, after.label())
	if t.Final() {
		s.notify(ctx, uniqueIDs(after.RequestedBy, after.UserID), notifications.TypeWorkRequestApproved, title+" approved", describe(after), link(after))
	} else {
		s.notifyHR(ctx, notifications.TypeWorkRequestPendingHR, title, "Approved by line manager, awaiting HR.", link(after))
		s.notify(ctx, []string{after.RequestedBy}, notifications.TypeWorkRequestPendingHR, title+" approved by line manager", "", link(after))
	}
	return before, after, nil
}

func (s *Service) Reject(ctx context.Context, actor auth.UserContext, requestID, reason string) (WorkRequest, WorkRequest, error) {
	before, err := s.store.Get(ctx, requestID)
	if err != nil {
		return before, WorkRequest{}, err
	}
	t, err := approvals.Reject(before.subject(), actor, reason)
	if err != nil {
		return before, WorkRequest{}, err
	}
	after, err := s.store.ApplyTransition(ctx, requestID, actor.UserID, t)
	if err != nil {
		return before, WorkRequest{}, err
	}
	s.record(after.Status)
	s.notify(ctx, uniqueIDs(after.RequestedBy, after.UserID), notifications.TypeWorkRequestRejected,
		fmt.Sprintf("Work request: %s %s rejected", after.UserName, after.label()), t.Comment, link(after))
	return before, after, nil
}

func (s *Service) Cancel(ctx context.Context, actor auth.UserContext, requestID string) (WorkRequest, WorkRequest, error) {
	before, err := s.store.Get(ctx, requestID)
	if err != nil {
		return before, WorkRequest{}, err
	}
	t, err := approvals.Cancel(before.subject(), actor)
	if err != nil {
		return before, WorkRequest{}, err
	}
	after, err := s.store.ApplyTransition(ctx, requestID, actor.UserID, t)
	if err != nil {
		return before, WorkRequest{}, err
	}
	s.record(after.Status)
	recipients := others(actor.UserID, after.RequestedBy, after.UserID)
	if before.Status == approvals.StatusPendingLM && after.LineManagerID != "" {
		recipients = append(recipients, others(actor.UserID, after.LineManagerID)...)
	}
	s.notify(ctx, recipients, notifications.TypeWorkRequestCancelled,
		fmt.Sprintf("Work request: %s %s cancelled", after.UserName, after.label()), "", link(after))
	return before, after, nil
}

// UploadDocument attaches a file to a request that is still pending or
// approved. Only the subject, the requester, hr and admin may upload.
func (s *Service) UploadDocument(ctx context.Context, actor auth.UserContext, requestID string, upload Upload) (Document, error) {
	if s.Blobs == nil {
		return Document{}, ErrDocumentStorage
	}
	w, err := s.store.Get(ctx, requestID)
	if err != nil {
		return Document{}, err
	}
	if actor.UserID != w.UserID && actor.UserID != w.RequestedBy && !actor.HasAnyRole(auth.RoleHR) {
		return Document{}, ErrForbidden
	}
	if w.Status == approvals.StatusRejected || w.Status == approvals.StatusCancelled {
		return Document{}, approvals.ErrInvalidState
	}
	existing, err := s.store.Documents(ctx, requestID)
	if err != nil {
		return Document{}, err
	}
	if err := ValidateUpload(upload, len(existing)); err != nil {
		return Document{}, err
	}
	return s.storeDocument(ctx, requestID, actor.UserID, upload)
}

// DownloadDocument returns the document metadata and its content. The caller
// closes the reader.
func (s *Service) DownloadDocument(ctx context.Context, actor auth.UserContext, requestID, documentID string) (Document, io.ReadCloser, error) {
	if s.Blobs == nil {
		return Document{}, nil, ErrDocumentStorage
	}
	w, err := s.store.Get(ctx, requestID)
	if err != nil {
		return Document{}, nil, err
	}
	if !canView(w, actor) {
		return Document{}, nil, ErrForbidden
	}
	doc, err := s.store.Document(ctx, requestID, documentID)
	if err != nil {
		return Document{}, nil, err
	}
	_, body, err := s.Blobs.Get(ctx, doc.BlobKey)
	if errors.Is(err, blob.ErrNotFound) {
		return Document{}, nil, ErrDocumentNotFound
	}
	if err != nil {
		return Document{}, nil, err
	}
	return doc, body, nil
}

// Calendar lists live leave in [from, to]. hr and admin see everyone, a
// line manager sees their reports, others see colleagues sharing their line
// manager.
func (s *Service) Calendar(ctx context.Context, actor auth.UserContext, from, to time.Time) ([]CalendarEntry, error) {
	from, to = dateOnly(from), dateOnly(to)
	if to.Before(from) {
		return nil, ErrInvalidDateRange
	}
	if calendarDays(from, to) > MaxCalendarDays {
		return nil, ErrRangeTooLong
	}
	scope, err := s.calendarScope(ctx, actor)
	if err != nil {
		return nil, err
	}
	return s.store.Calendar(ctx, scope, from, to)
}

func (s *Service) calendarScope(ctx context.Context, actor auth.UserContext) (CalendarScope, error) {
	if actor.HasAnyRole(auth.RoleHR) {
		return CalendarScope{All: true}, nil
	}
	if actor.HasAnyRole(auth.RoleLineManager) {
		return CalendarScope{UserID: actor.UserID, ManagerID: actor.UserID}, nil
	}
	me, err := s.Users.Get(ctx, actor.UserID)
	if err != nil {
		return CalendarScope{}, err
	}
	return CalendarScope{UserID: actor.UserID, ManagerID: me.ManagerID()}, nil
}

// CalendarExport writes the calendar as CSV or ICS to w.
func (s *Service) CalendarExport(ctx context.Context, actor auth.UserContext, format string, from, to time.Time, w io.Writer) error {
	if format != FormatCSV && format != FormatICS {
		return ErrUnknownFormat
	}
	entries, err := s.Calendar(ctx, actor, from, to)
	if err != nil {
		return err
	}
	if format == FormatICS {
		return WriteCalendarICS(w, entries, s.Now())
	}
	return WriteCalendarCSV(w, entries)
}

func describe(w WorkRequest) string {
	span := w.StartDate.Format("2006-01-02")
	if !w.EndDate.Equal(w.StartDate) {
		span += " to " + w.EndDate.Format("2006-01-02")
	}
	if w.Type == TypeOvertime {
		return fmt.Sprintf("%s hours, %s", formatNumber(w.Hours), span)
	}
	return fmt.Sprintf("%s day(s), %s", formatNumber(w.Days), span)
}

func formatNumber(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

func link(w WorkRequest) string {
	return "/work-requests/" + w.ID
}

func uniqueIDs(ids ...string) []string {
	out := make([]string, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func others(actorID string, ids ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range uniqueIDs(ids...) {
		if id != actorID {
			out = append(out, id)
		}
	}
	return out
}

func (s *Service) record(status string) {
	if s.Metrics != nil {
		s.Metrics.Decision(approvals.KindWork, status)
	}
}

func (s *Service) notify(ctx context.Context, userIDs []string, ntype, title, body, link string) {
	if s.Notifier == nil || len(userIDs) == 0 {
		return
	}
	if err := s.Notifier.Notify(ctx, userIDs, ntype, title, body, link); err != nil {
		slog.Warn("work request notification failed", "err", err)
	}
}

func (s *Service) notifyHR(ctx context.Context, ntype, title, body, link string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.NotifyRole(ctx, auth.RoleHR, ntype, title, body, link); err != nil {
		slog.Warn("work request notification failed", "err", err)
	}
}
