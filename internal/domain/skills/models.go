package skills

import (
	"errors"
	"time"
)

const (
	MinProficiency = 1
	MaxProficiency = 5
)

var (
	ErrNotFound           = errors.New("Skill not found")
	ErrUserSkillNotFound  = errors.New("User skill not found")
	ErrForbidden          = errors.New("Unauthorized")
	ErrNameRequired       = errors.New("Skill name is required")
	ErrNameTaken          = errors.New("Skill already exists")
	ErrInvalidProficiency = errors.New("Proficiency must be between 1 and 5")
	ErrInvalidYears       = errors.New("Years of experience must be between 0 and 60")
	ErrNoSkills           = errors.New("At least one skill is required")
)

type Skill struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	UserCount int       `json:"userCount"`
	CreatedAt time.Time `json:"createdAt"`
}

type UserSkill struct {
	UserID          string    `json:"userId"`
	SkillID         string    `json:"skillId"`
	SkillName       string    `json:"skillName"`
	Category        string    `json:"category"`
	Proficiency     int       `json:"proficiency"`
	YearsExperience float64   `json:"yearsExperience"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type UpsertInput struct {
	SkillID         string
	Proficiency     int
	YearsExperience float64
}

type SearchCriteria struct {
	SkillIDs       []string
	MinProficiency int
	AvailableFrom  time.Time
	Limit          int
}

// Candidate is a user holding every requested skill. AllocatedPercent is
// their summed active allocation on the availability date.
type Candidate struct {
	UserID           string      `json:"userId"`
	Name             string      `json:"name"`
	Email            string      `json:"email"`
	JobTitle         string      `json:"jobTitle"`
	AllocatedPercent int         `json:"allocatedPercent"`
	AvailablePercent int         `json:"availablePercent"`
	Skills           []UserSkill `json:"skills"`
}
