package offer

import (
	"errors"
	"strings"
	"time"

	"estatedesk/backoffice/internal/database"
	"estatedesk/backoffice/internal/validation"
)

var ErrNotFound = errors.New("offer not found")

type Offer struct {
	ID            int64      `json:"id"`
	ProjectID     int64      `json:"project_id"`
	ProjectName   string     `json:"project_name,omitempty"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	DiscountLabel string     `json:"discount_label"`
	ValidFrom     *time.Time `json:"valid_from,omitempty"`
	ValidUntil    *time.Time `json:"valid_until,omitempty"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// LiveAt reports whether the offer is active and inside its validity window.
func (o Offer) LiveAt(t time.Time) bool {
	if !o.IsActive {
		return false
	}
	if o.ValidFrom != nil && t.Before(*o.ValidFrom) {
		return false
	}
	if o.ValidUntil != nil && t.After(*o.ValidUntil) {
		return false
	}
	return true
}

type Input struct {
	ProjectID     int64      `json:"project_id" validate:"required,gt=0"`
	Title         string     `json:"title" validate:"required,max=200"`
	Description   string     `json:"description" validate:"max=2000"`
	DiscountLabel string     `json:"discount_label" validate:"max=100"`
	ValidFrom     *time.Time `json:"valid_from"`
	ValidUntil    *time.Time `json:"valid_until"`
	IsActive      *bool      `json:"is_active"`
}

func (in *Input) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.DiscountLabel = strings.TrimSpace(in.DiscountLabel)
}

func (in Input) validate() error {
	verrs := validation.Errors{}
	if err := validation.Struct(in); err != nil {
		var ok bool
		if verrs, ok = validation.AsErrors(err); !ok {
			return err
		}
	}
	if in.ValidFrom != nil && in.ValidUntil != nil && in.ValidUntil.Before(*in.ValidFrom) {
		verrs.Add("valid_until", "Must not be before valid_from")
	}
	return verrs.OrNil()
}

// ListFilter narrows offers. With ActiveOnly, only offers live at At are
// returned; a zero At means now.
type ListFilter struct {
	ProjectID  int64
	ActiveOnly bool
	At         time.Time
	database.Page
}
