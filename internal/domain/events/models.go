package events

import (
	"errors"
	"time"
)

const (
	TypeMeeting  = "meeting"
	TypeHoliday  = "holiday"
	TypeTraining = "training"
	TypeDeadline = "deadline"
	TypeOther    = "other"
)

var Types = []string{TypeMeeting, TypeHoliday, TypeTraining, TypeDeadline, TypeOther}

const (
	MaxAttendees = 200
	MaxRangeDays = 366
)

var (
	ErrNotFound         = errors.New("Event not found")
	ErrForbidden        = errors.New("Unauthorized")
	ErrTitleRequired    = errors.New("Title is required")
	ErrInvalidType      = errors.New("Invalid event type")
	ErrInvalidTimeRange = errors.New("End must not be before start")
	ErrTooManyAttendees = errors.New("An event can have at most 200 attendees")
	ErrRangeTooLong     = errors.New("Range must be at most 366 days")
	ErrUnknownAttendee  = errors.New("Attendee not found")
	ErrProjectOnlyByPM  = errors.New("Only the project manager or admin can create project events")
)

type Event struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Type          string    `json:"type"`
	StartsAt      time.Time `json:"startsAt"`
	EndsAt        time.Time `json:"endsAt"`
	AllDay        bool      `json:"allDay"`
	ProjectID     *string   `json:"projectId,omitempty"`
	ProjectName   string    `json:"projectName,omitempty"`
	CreatedBy     string    `json:"createdBy"`
	CreatedByName string    `json:"createdByName"`
	AttendeeIDs   []string  `json:"attendeeIds"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Filter struct {
	From      time.Time
	To        time.Time
	ProjectID string
	// UserID limits to events created by or attended by the user.
	UserID string
}

type Input struct {
	Title       string
	Description string
	Type        string
	StartsAt    time.Time
	EndsAt      time.Time
	AllDay      bool
	ProjectID   string
	AttendeeIDs []string
}

func IsValidType(t string) bool {
	for _, candidate := range Types {
		if candidate == t {
			return true
		}
	}
	return false
}
