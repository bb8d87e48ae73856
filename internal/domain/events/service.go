package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"workforce/internal/domain/auth"
	"workforce/internal/domain/notifications"
	"workforce/internal/domain/projects"
	"workforce/internal/platform/ical"
)

type ProjectLookup interface {
	Get(ctx context.Context, projectID string) (projects.Project, error)
}

type Notifier interface {
	Notify(ctx context.Context, userIDs []string, ntype, title, body, link string) error
}

type Service struct {
	store    StoreAPI
	Projects ProjectLookup
	Notifier Notifier
	Now      func() time.Time
}

func NewService(store StoreAPI, projectLookup ProjectLookup, notifier Notifier) *Service {
	return &Service{store: store, Projects: projectLookup, Notifier: notifier, Now: time.Now}
}

func (s *Service) Get(ctx context.Context, eventID string) (Event, error) {
	return s.store.Get(ctx, eventID)
}

// List requires a bounded range. mine restricts to events the actor created
// or attends.
func (s *Service) List(ctx context.Context, actor auth.UserContext, filter Filter, mine bool) ([]Event, error) {
	if err := checkRange(filter.From, filter.To); err != nil {
		return nil, err
	}
	if mine {
		filter.UserID = actor.UserID
	}
	return s.store.List(ctx, filter)
}

func checkRange(from, to time.Time) error {
	if from.IsZero() || to.IsZero() || to.Before(from) {
		return ErrInvalidTimeRange
	}
	if to.Sub(from) > MaxRangeDays*24*time.Hour {
		return ErrRangeTooLong
	}
	return nil
}

func (s *Service) Create(ctx context.Context, actor auth.UserContext, input Input) (Event, error) {
	e, err := s.build(ctx, actor, input)
	if err != nil {
		return Event{}, err
	}
	e.CreatedBy = actor.UserID
	created, err := s.store.Create(ctx, e)
	if err != nil {
		return Event{}, err
	}
	s.invite(ctx, actor, created, created.AttendeeIDs)
	return created, nil
}

// build validates input. Project events may only be managed by the project's
// PM or an admin.
func (s *Service) build(ctx context.Context, actor auth.UserContext, input Input) (Event, error) {
	e := Event{
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		Type:        input.Type,
		StartsAt:    input.StartsAt.UTC(),
		EndsAt:      input.EndsAt.UTC(),
		AllDay:      input.AllDay,
	}
	if e.Type == "" {
		e.Type = TypeOther
	}
	if e.Title == "" {
		return Event{}, ErrTitleRequired
	}
	if !IsValidType(e.Type) {
		return Event{}, ErrInvalidType
	}
	if e.AllDay {
		e.StartsAt = truncateDay(e.StartsAt)
		e.EndsAt = truncateDay(e.EndsAt)
	}
	if e.StartsAt.IsZero() || e.EndsAt.IsZero() {
		return Event{}, ErrInvalidTimeRange
	}
	// All-day events may start and end on the same day; timed events need a duration.
	if (e.AllDay && e.EndsAt.Before(e.StartsAt)) || (!e.AllDay && !e.EndsAt.After(e.StartsAt)) {
		return Event{}, ErrInvalidTimeRange
	}
	if projectID := strings.TrimSpace(input.ProjectID); projectID != "" {
		project, err := s.Projects.Get(ctx, projectID)
		if err != nil {
			return Event{}, err
		}
		if !projects.CanManage(project, actor) {
			return Event{}, ErrProjectOnlyByPM
		}
		e.ProjectID = &project.ID
		e.ProjectName = project.Name
	}

	attendees := dedupe(input.AttendeeIDs)
	if len(attendees) > MaxAttendees {
		return Event{}, ErrTooManyAttendees
	}
	if len(attendees) > 0 {
		active, err := s.store.ActiveUserIDs(ctx, attendees)
		if err != nil {
			return Event{}, err
		}
		if len(active) != len(attendees) {
			return Event{}, ErrUnknownAttendee
		}
	}
	e.AttendeeIDs = attendees
	return e, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dedupe(ids []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func canEdit(e Event, actor auth.UserContext) bool {
	return actor.IsAdmin() || e.CreatedBy == actor.UserID
}

// Update replaces the event. Newly added attendees are invited.
func (s *Service) Update(ctx context.Context, actor auth.UserContext, eventID string, input Input) (Event, Event, error) {
	before, err := s.store.Get(ctx, eventID)
	if err != nil {
		return before, Event{}, err
	}
	if !canEdit(before, actor) {
		return before, Event{}, ErrForbidden
	}
	if input.ProjectID == "" && before.ProjectID != nil && !actor.IsAdmin() {
		input.ProjectID = *before.ProjectID
	}
	next, err := s.build(ctx, actor, input)
	if errors.Is(err, ErrProjectOnlyByPM) && before.ProjectID != nil && input.ProjectID == *before.ProjectID {
		err = ErrForbidden
	}
	if err != nil {
		return before, Event{}, err
	}
	next.ID = before.ID
	next.CreatedBy = before.CreatedBy
	after, err := s.store.Save(ctx, next)
	if err != nil {
		return before, Event{}, err
	}

	previous := map[string]bool{}
	for _, id := range before.AttendeeIDs {
		previous[id] = true
	}
	var added []string
	for _, id := range after.AttendeeIDs {
		if !previous[id] {
			added = append(added, id)
		}
	}
	s.invite(ctx, actor, after, added)
	return before, after, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.UserContext, eventID string) (Event, error) {
	before, err := s.store.Get(ctx, eventID)
	if err != nil {
		return before, err
	}
	if !canEdit(before, actor) {
		return before, ErrForbidden
	}
	return before, s.store.Delete(ctx, eventID)
}

// Export writes events in [from, to] as an ICS calendar.
func (s *Service) Export(ctx context.Context, actor auth.UserContext, filter Filter, mine bool, w io.Writer) error {
	list, err := s.List(ctx, actor, filter, mine)
	if err != nil {
		return err
	}
	return WriteICS(w, list, s.Now())
}

func WriteICS(w io.Writer, list []Event, stamp time.Time) error {
	out := make([]ical.Event, 0, len(list))
	for _, e := range list {
		description := e.Description
		if e.ProjectName != "" {
			description = strings.TrimSpace("Project: " + e.ProjectName + "\n" + description)
		}
		out = append(out, ical.Event{
			UID:         "event-" + e.ID + "@workforce",
			Summary:     e.Title,
			Description: description,
			Start:       e.StartsAt,
			End:         e.EndsAt,
			AllDay:      e.AllDay,
			Categories:  strings.ToUpper(e.Type),
			Status:      "CONFIRMED",
		})
	}
	return ical.Write(w, "Events", out, stamp)
}

func (s *Service) invite(ctx context.Context, actor auth.UserContext, e Event, userIDs []string) {
	recipients := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id != actor.UserID {
			recipients = append(recipients, id)
		}
	}
	if s.Notifier == nil || len(recipients) == 0 {
		return
	}
	when := e.StartsAt.Format("2006-01-02 15:04 MST")
	if e.AllDay {
		when = e.StartsAt.Format("2006-01-02")
	}
	if err := s.Notifier.Notify(ctx, recipients, notifications.TypeEventInvite,
		"Invitation: "+e.Title, fmt.Sprintf("%s, %s", strings.ToUpper(e.Type[:1])+e.Type[1:], when), "/events/"+e.ID); err != nil {
		slog.Warn("event notification failed", "err", err)
	}
}
