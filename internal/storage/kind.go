package storage

import (
	"fmt"
	"strings"
)

// Kind tags an upload and selects its validation rule and directory.
type Kind string

const (
	KindLogo        Kind = "logo"
	KindCover       Kind = "cover"
	KindAward       Kind = "award"
	KindProjectLogo Kind = "projectlogo"
	KindGallery     Kind = "gallery"
	KindFloorPlan   Kind = "floorplan"
	KindBrochure    Kind = "brochure"
	KindTaxSheet    Kind = "taxsheet"
	KindUnitPlan    Kind = "unitplan"
	KindPaymentPlan Kind = "paymentplan"
	KindTestimonial Kind = "testimonial"
	KindOGImage     Kind = "ogimage"
)

type Rule struct {
	Dir        string
	Extensions []string
	MaxSizeMB  int64
	// PerEntity kinds keep each owner's files in a {kind}-{id} subdirectory.
	PerEntity bool
}

func (r Rule) MaxBytes() int64 {
	return r.MaxSizeMB * 1024 * 1024
}

func (r Rule) allows(ext string) bool {
	for _, e := range r.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

var (
	imageExts         = []string{"jpg", "jpeg", "png", "webp"}
	logoExts          = []string{"jpg", "jpeg", "png", "webp", "svg"}
	imageOrPDFExts    = []string{"jpg", "jpeg", "png", "webp", "pdf"}
	documentKindRules = Rule{Extensions: imageOrPDFExts, MaxSizeMB: 10}
)

var rules = map[Kind]Rule{
	KindLogo:        {Dir: "Logo", Extensions: logoExts, MaxSizeMB: 2},
	KindCover:       {Dir: "Cover", Extensions: imageExts, MaxSizeMB: 5},
	KindAward:       {Dir: "Award", Extensions: imageExts, MaxSizeMB: 2},
	KindProjectLogo: {Dir: "ProjectLogo", Extensions: logoExts, MaxSizeMB: 2},
	KindGallery:     {Dir: "Gallery", Extensions: imageExts, MaxSizeMB: 5, PerEntity: true},
	KindFloorPlan:   withDir(documentKindRules, "FloorPlan", true),
	KindBrochure:    withDir(documentKindRules, "Brochure", false),
	KindTaxSheet:    withDir(documentKindRules, "TaxSheet", true),
	KindUnitPlan:    withDir(documentKindRules, "UnitPlan", true),
	KindPaymentPlan: withDir(documentKindRules, "PaymentPlan", true),
	KindTestimonial: {Dir: "Testimonial", Extensions: imageExts, MaxSizeMB: 2},
	KindOGImage:     {Dir: "OgImage", Extensions: imageExts, MaxSizeMB: 2},
}

func withDir(r Rule, dir string, perEntity bool) Rule {
	r.Dir = dir
	r.PerEntity = perEntity
	return r
}

func RuleFor(kind Kind) (Rule, bool) {
	r, ok := rules[kind]
	return r, ok
}

func Kinds() []Kind {
	return []Kind{
		KindLogo, KindCover, KindAward, KindProjectLogo, KindGallery, KindFloorPlan,
		KindBrochure, KindTaxSheet, KindUnitPlan, KindPaymentPlan, KindTestimonial, KindOGImage,
	}
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := rules[k]; !ok {
		return "", fmt.Errorf("unknown upload kind %q", s)
	}
	return k, nil
}
