package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"workforce/internal/platform/realtime"
)

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

type Publisher interface {
	Publish(userID string, msg realtime.Message) int
}

type Recorder interface {
	Notification(channel string)
}

type Service struct {
	store     StoreAPI
	Mailer    Mailer
	Publisher Publisher
	Metrics   Recorder
	Defaults  Defaults
	From      string
	PublicURL string
}

func New(store StoreAPI, mailer Mailer) *Service {
	return &Service{
		store:    store,
		Mailer:   mailer,
		Defaults: BuiltinDefaults(),
		From:     "no-reply@example.com",
	}
}

// Notify fans a notification out to userIDs. Each recipient gets the channels
// their resolved preference enables. Email failures are logged only.
func (s *Service) Notify(ctx context.Context, userIDs []string, ntype, title, body, link string) error {
	ids := uniqueIDs(userIDs)
	if len(ids) == 0 {
		return nil
	}
	recipients, err := s.store.Recipients(ctx, ids)
	if err != nil {
		return fmt.Errorf("load recipients: %w", err)
	}
	overrides, err := s.store.PreferenceOverrides(ctx, ids, ntype)
	if err != nil {
		slog.Warn("notification preference lookup failed", "err", err)
		overrides = nil
	}

	var errs []error
	for _, recipient := range recipients {
		var override *Preference
		if pref, ok := overrides[recipient.ID]; ok {
			override = &pref
		}
		pref := s.Defaults.Resolve(recipient.Role, ntype, override)
		if pref.InApp {
			if err := s.deliverInApp(ctx, recipient, ntype, title, body, link); err != nil {
				errs = append(errs, err)
			}
		}
		if pref.Email {
			s.deliverEmail(ctx, recipient, title, body, link)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) NotifyRole(ctx context.Context, role, ntype, title, body, link string) error {
	ids, err := s.store.UserIDsByRole(ctx, role)
	if err != nil {
		return fmt.Errorf("load %s users: %w", role, err)
	}
	return s.Notify(ctx, ids, ntype, title, body, link)
}

func (s *Service) deliverInApp(ctx context.Context, recipient Recipient, ntype, title, body, link string) error {
	created, err := s.store.CreateNotification(ctx, Notification{
		UserID: recipient.ID,
		Type:   ntype,
		Title:  title,
		Body:   body,
		Link:   link,
	})
	if err != nil {
		return fmt.Errorf("store notification for %s: %w", recipient.ID, err)
	}
	if s.Metrics != nil {
		s.Metrics.Notification(ChannelInApp)
	}
	if s.Publisher != nil {
		s.Publisher.Publish(recipient.ID, realtime.Message{Type: "notification", Data: created})
	}
	return nil
}

func (s *Service) deliverEmail(ctx context.Context, recipient Recipient, title, body, link string) {
	if s.Mailer == nil || recipient.Email == "" {
		return
	}
	text := body
	if link != "" {
		text = strings.TrimSpace(text + "\n\n" + strings.TrimRight(s.PublicURL, "/") + link)
	}
	if err := s.Mailer.Send(ctx, s.From, recipient.Email, title, text); err != nil {
		slog.Warn("notification email send failed", "err", err)
		return
	}
	if s.Metrics != nil {
		s.Metrics.Notification(ChannelEmail)
	}
}

func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]Notification, error) {
	return s.store.ListNotifications(ctx, userID, unreadOnly, limit, offset)
}

func (s *Service) Count(ctx context.Context, userID string, unreadOnly bool) (int, error) {
	return s.store.CountNotifications(ctx, userID, unreadOnly)
}

func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	return s.store.MarkRead(ctx, userID, notificationID)
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.store.MarkAllRead(ctx, userID)
}

// Preferences returns the effective preference for every known type.
func (s *Service) Preferences(ctx context.Context, userID, role string) ([]TypePreference, error) {
	overrides, err := s.store.UserPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]TypePreference, 0, len(Types))
	for _, ntype := range Types {
		var override *Preference
		if pref, ok := overrides[ntype]; ok {
			override = &pref
		}
		pref := s.Defaults.Resolve(role, ntype, override)
		out = append(out, TypePreference{Type: ntype, InApp: pref.InApp, Email: pref.Email, Overridden: override != nil})
	}
	return out, nil
}

func (s *Service) UpdatePreferences(ctx context.Context, userID, role string, updates []TypePreference) ([]TypePreference, error) {
	prefs := make(map[string]Preference, len(updates))
	for _, update := range updates {
		if !IsKnownType(update.Type) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownType, update.Type)
		}
		prefs[update.Type] = Preference{InApp: update.InApp, Email: update.Email}
	}
	if len(prefs) > 0 {
		if err := s.store.UpsertPreferences(ctx, userID, prefs); err != nil {
			return nil, err
		}
	}
	return s.Preferences(ctx, userID, role)
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
