package notifications

import "context"

type StoreAPI interface {
	Recipients(ctx context.Context, userIDs []string) ([]Recipient, error)
	UserIDsByRole(ctx context.Context, role string) ([]string, error)
	UserRole(ctx context.Context, userID string) (string, error)
	PreferenceOverrides(ctx context.Context, userIDs []string, ntype string) (map[string]Preference, error)
	UserPreferences(ctx context.Context, userID string) (map[string]Preference, error)
	UpsertPreferences(ctx context.Context, userID string, prefs map[string]Preference) error
	CreateNotification(ctx context.Context, n Notification) (Notification, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]Notification, error)
	CountNotifications(ctx context.Context, userID string, unreadOnly bool) (int, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}
