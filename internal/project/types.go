package project

import (
	"errors"
	"strings"
	"time"

	"estatedesk/backoffice/internal/database"
	"estatedesk/backoffice/internal/storage"
	"estatedesk/backoffice/internal/validation"
)

var ErrNotFound = errors.New("project not found")

const (
	StatusUpcoming  = "upcoming"
	StatusOngoing   = "ongoing"
	StatusCompleted = "completed"
)

// FileKinds are the upload kinds stored as project_files rows. Logo, brochure
// and OG image live on the project itself.
var FileKinds = []storage.Kind{
	storage.KindGallery,
	storage.KindFloorPlan,
	storage.KindTaxSheet,
	storage.KindUnitPlan,
	storage.KindPaymentPlan,
}

func IsFileKind(k storage.Kind) bool {
	for _, fk := range FileKinds {
		if fk == k {
			return true
		}
	}
	return false
}

type Project struct {
	ID            int64     `json:"id"`
	Code          string    `json:"code"`
	DeveloperID   int64     `json:"developer_id"`
	DeveloperName string    `json:"developer_name,omitempty"`
	Name          string    `json:"name"`
	Location      string    `json:"location"`
	City          string    `json:"city"`
	Status        string    `json:"status"`
	PropertyType  string    `json:"property_type"`
	PriceFrom     int64     `json:"price_from"`
	PriceTo       int64     `json:"price_to"`
	Description   string    `json:"description"`
	LogoPath      string    `json:"logo_path"`
	BrochurePath  string    `json:"brochure_path"`
	IsFeatured    bool      `json:"is_featured"`
	Files         []File    `json:"files,omitempty"`
	Nearby        []Nearby  `json:"nearby,omitempty"`
	FAQs          []FAQ     `json:"faqs,omitempty"`
	SEO           *SEO      `json:"seo,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Paths lists every stored upload the project references.
func (p Project) Paths() []string {
	var out []string
	for _, s := range []string{p.LogoPath, p.BrochurePath} {
		if s != "" {
			out = append(out, s)
		}
	}
	if p.SEO != nil && p.SEO.OGImagePath != "" {
		out = append(out, p.SEO.OGImagePath)
	}
	for _, f := range p.Files {
		out = append(out, f.Path)
	}
	return out
}

type File struct {
	ID        int64        `json:"id"`
	Kind      storage.Kind `json:"kind"`
	Path      string       `json:"path"`
	SortOrder int          `json:"sort_order"`
}

type Nearby struct {
	Place    string `json:"place" validate:"required,max=200"`
	Distance string `json:"distance" validate:"max=100"`
}

type FAQ struct {
	Question string `json:"question" validate:"required,max=500"`
	Answer   string `json:"answer" validate:"required,max=5000"`
}

type SEO struct {
	MetaTitle       string `json:"meta_title" validate:"max=70"`
	MetaDescription string `json:"meta_description" validate:"max=160"`
	OGImagePath     string `json:"og_image_path"`
}

type Input struct {
	DeveloperID  int64    `json:"developer_id" validate:"required,gt=0"`
	Name         string   `json:"name" validate:"required,max=200"`
	Location     string   `json:"location" validate:"max=300"`
	City         string   `json:"city" validate:"max=100"`
	Status       string   `json:"status" validate:"required,oneof=upcoming ongoing completed"`
	PropertyType string   `json:"property_type" validate:"max=100"`
	PriceFrom    int64    `json:"price_from" validate:"gte=0"`
	PriceTo      int64    `json:"price_to" validate:"gte=0"`
	Description  string   `json:"description" validate:"max=10000"`
	IsFeatured   bool     `json:"is_featured"`
	Nearby       []Nearby `json:"nearby" validate:"max=50,dive"`
	FAQs         []FAQ    `json:"faqs" validate:"max=50,dive"`
	SEO          SEO      `json:"seo"`
}

func (in *Input) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Location = strings.TrimSpace(in.Location)
	in.City = strings.TrimSpace(in.City)
	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	in.PropertyType = strings.TrimSpace(in.PropertyType)
	if in.Status == "" {
		in.Status = StatusUpcoming
	}
	for i := range in.Nearby {
		in.Nearby[i].Place = strings.TrimSpace(in.Nearby[i].Place)
		in.Nearby[i].Distance = strings.TrimSpace(in.Nearby[i].Distance)
	}
	for i := range in.FAQs {
		in.FAQs[i].Question = strings.TrimSpace(in.FAQs[i].Question)
		in.FAQs[i].Answer = strings.TrimSpace(in.FAQs[i].Answer)
	}
	in.SEO.MetaTitle = strings.TrimSpace(in.SEO.MetaTitle)
	in.SEO.MetaDescription = strings.TrimSpace(in.SEO.MetaDescription)
}

func (in Input) validate() error {
	verrs := validation.Errors{}
	if err := validation.Struct(in); err != nil {
		var ok bool
		if verrs, ok = validation.AsErrors(err); !ok {
			return err
		}
	}
	if in.PriceTo > 0 && in.PriceTo < in.PriceFrom {
		verrs.Add("price_to", "Must not be less than price_from")
	}
	return verrs.OrNil()
}

type ListFilter struct {
	DeveloperID  int64
	City         string
	Status       string
	FeaturedOnly bool
	database.Page
}
