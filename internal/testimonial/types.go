package testimonial

import (
	"errors"
	"strings"
	"time"

	"estatedesk/backoffice/internal/database"
)

var ErrNotFound = errors.New("testimonial not found")

type Testimonial struct {
	ID           int64     `json:"id"`
	CustomerName string    `json:"customer_name"`
	Designation  string    `json:"designation"`
	Content      string    `json:"content"`
	Rating       int       `json:"rating"`
	PhotoPath    string    `json:"photo_path"`
	ProjectID    *int64    `json:"project_id,omitempty"`
	IsPublished  bool      `json:"is_published"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Input struct {
	CustomerName string `json:"customer_name" validate:"required,max=120"`
	Designation  string `json:"designation" validate:"max=120"`
	Content      string `json:"content" validate:"required,max=3000"`
	Rating       int    `json:"rating" validate:"gte=1,lte=5"`
	ProjectID    *int64 `json:"project_id" validate:"omitempty,gt=0"`
	IsPublished  *bool  `json:"is_published"`
}

func (in *Input) normalize() {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.Designation = strings.TrimSpace(in.Designation)
	in.Content = strings.TrimSpace(in.Content)
}

type ListFilter struct {
	PublishedOnly bool
	database.Page
}
