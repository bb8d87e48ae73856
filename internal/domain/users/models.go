package users

import (
	"errors"
	"time"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

var (
	ErrNotFound       = errors.New("User not found")
	ErrForbidden      = errors.New("Unauthorized")
	ErrEmailTaken     = errors.New("Email already in use")
	ErrInvalidRole    = errors.New("Invalid role")
	ErrInvalidManager = errors.New("Line manager must have the line_manager, hr or admin role")
	ErrManagerCycle   = errors.New("Line manager assignment would create a cycle")
	ErrWeakPassword   = errors.New("Password must be at least 8 characters")
)

type User struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	Role            string     `json:"role"`
	LineManagerID   *string    `json:"lineManagerId,omitempty"`
	LineManagerName string     `json:"lineManagerName,omitempty"`
	Department      string     `json:"department"`
	JobTitle        string     `json:"jobTitle"`
	Status          string     `json:"status"`
	MFAEnabled      bool       `json:"mfaEnabled"`
	LastLogin       *time.Time `json:"lastLogin,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// ManagerID returns the line manager id or "".
func (u User) ManagerID() string {
	if u.LineManagerID == nil {
		return ""
	}
	return *u.LineManagerID
}

type Filter struct {
	Role          string
	Status        string
	LineManagerID string
	Query         string
}

type ListResult struct {
	Users []User
	Total int
}

type CreateInput struct {
	Email         string `json:"email"`
	Name          string `json:"name"`
	Password      string `json:"password"`
	Role          string `json:"role"`
	LineManagerID string `json:"lineManagerId"`
	Department    string `json:"department"`
	JobTitle      string `json:"jobTitle"`
}

type UpdateInput struct {
	Name       *string `json:"name"`
	Department *string `json:"department"`
	JobTitle   *string `json:"jobTitle"`
}
