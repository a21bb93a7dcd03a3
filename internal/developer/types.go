package developer

import (
	"errors"
	"strings"
	"time"

	"estatedesk/backoffice/internal/database"
	"estatedesk/backoffice/internal/validation"
)

var (
	ErrNotFound = errors.New("developer not found")
	// ErrInUse is returned when a developer still owns projects.
	ErrInUse = errors.New("developer has projects")
)

type Developer struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Website         string    `json:"website"`
	EstablishedYear *int      `json:"established_year,omitempty"`
	LogoPath        string    `json:"logo_path"`
	CoverPath       string    `json:"cover_path"`
	IsActive        bool      `json:"is_active"`
	Awards          []Award   `json:"awards,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Award struct {
	ID          int64     `json:"id"`
	DeveloperID int64     `json:"developer_id"`
	Title       string    `json:"title"`
	Year        *int      `json:"year,omitempty"`
	ImagePath   string    `json:"image_path"`
	CreatedAt   time.Time `json:"created_at"`
}

// Input is the editable part of a developer. A nil IsActive means active on
// create and unchanged on update.
type Input struct {
	Name            string `json:"name" validate:"required,max=200"`
	Description     string `json:"description" validate:"max=5000"`
	Website         string `json:"website" validate:"omitempty,url,max=500"`
	EstablishedYear *int   `json:"established_year" validate:"omitempty,gte=1800,lte=2100"`
	IsActive        *bool  `json:"is_active"`
}

func (in *Input) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Website = strings.TrimSpace(in.Website)
}

func (in Input) validate() error {
	return validation.Struct(in)
}

type AwardInput struct {
	Title string `json:"title" validate:"required,max=200"`
	Year  *int   `json:"year" validate:"omitempty,gte=1900,lte=2100"`
}

// Images holds the stored upload paths of a developer. Empty strings clear
// the column.
type Images struct {
	LogoPath  string
	CoverPath string
}

type ListFilter struct {
	ActiveOnly bool
	database.Page
}
