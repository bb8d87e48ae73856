package notifications

import "time"

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Link      string     `json:"link,omitempty"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type Recipient struct {
	ID    string
	Email string
	Role  string
}

type Preference struct {
	InApp bool `json:"inApp"`
	Email bool `json:"email"`
}

type TypePreference struct {
	Type       string `json:"type"`
	InApp      bool   `json:"inApp"`
	Email      bool   `json:"email"`
	Overridden bool   `json:"overridden"`
}
