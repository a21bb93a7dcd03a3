package lead

import (
	"errors"
	"strings"
	"time"

	"estatedesk/backoffice/internal/database"
)

var (
	ErrNotFound      = errors.New("lead not found")
	ErrInvalidStatus = errors.New("invalid lead status")
)

const (
	StatusNew       = "new"
	StatusContacted = "contacted"
	StatusQualified = "qualified"
	StatusClosed    = "closed"

	DefaultSource = "website"
)

func ValidStatus(s string) bool {
	switch s {
	case StatusNew, StatusContacted, StatusQualified, StatusClosed:
		return true
	}
	return false
}

type Lead struct {
	ID          int64     `json:"id"`
	ProjectID   *int64    `json:"project_id,omitempty"`
	ProjectName string    `json:"project_name,omitempty"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Message     string    `json:"message"`
	Source      string    `json:"source"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Input is what a site visitor submits. Status is not part of it.
type Input struct {
	ProjectID *int64 `json:"project_id" validate:"omitempty,gt=0"`
	Name      string `json:"name" validate:"required,max=120"`
	Email     string `json:"email" validate:"omitempty,email,max=254"`
	Phone     string `json:"phone" validate:"required,min=6,max=20"`
	Message   string `json:"message" validate:"max=2000"`
	Source    string `json:"source" validate:"max=50"`
}

func (in *Input) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Message = strings.TrimSpace(in.Message)
	in.Source = strings.ToLower(strings.TrimSpace(in.Source))
	if in.Source == "" {
		in.Source = DefaultSource
	}
}

type ListFilter struct {
	ProjectID int64
	Status    string
	database.Page
}
