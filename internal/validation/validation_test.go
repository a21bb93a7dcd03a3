package validation

import (
	"errors"
	"fmt"
	"testing"
)

type sample struct {
	Name   string `json:"name" validate:"required,max=5"`
	Email  string `json:"email" validate:"omitempty,email"`
	Status string `json:"status" validate:"oneof=new closed"`
	Rating int    `json:"rating" validate:"gte=1,lte=5"`
	Secret string `json:"-" validate:"required"`
}

func TestStructCollectsFieldErrors(t *testing.T) {
	err := Struct(sample{Name: "toolongname", Email: "nope", Status: "open", Rating: 9})
	verrs, ok := AsErrors(err)
	if !ok {
		t.Fatalf("expected validation.Errors, got %v", err)
	}
	want := map[string]string{
		"name":   "Must be at most 5 characters",
		"email":  "Must be a valid email address",
		"status": "Must be one of: new, closed",
		"rating": "Must be less than or equal to 5",
	}
	for field, msg := range want {
		if verrs[field] != msg {
			t.Fatalf("field %s: expected %q, got %q", field, msg, verrs[field])
		}
	}
}

func TestStructValid(t *testing.T) {
	if err := Struct(sample{Name: "ok", Status: "new", Rating: 3, Secret: "s"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestErrorsHelpers(t *testing.T) {
	e := Errors{}
	if e.OrNil() != nil {
		t.Fatalf("expected nil for empty errors")
	}
	e.Add("logo", "first")
	e.Add("logo", "second")
	if e["logo"] != "first" {
		t.Fatalf("Add must keep the first message, got %q", e["logo"])
	}

	wrapped := fmt.Errorf("create developer: %w", e.OrNil())
	got, ok := AsErrors(wrapped)
	if !ok || got["logo"] != "first" {
		t.Fatalf("expected wrapped errors to unwrap, got %v", got)
	}
	if _, ok := AsErrors(errors.New("plain")); ok {
		t.Fatalf("plain error must not be treated as validation errors")
	}
}

type child struct {
	Question string `json:"question" validate:"required"`
}

type parent struct {
	FAQs []child `json:"faqs" validate:"dive"`
}

func TestStructNestedFieldKeys(t *testing.T) {
	verrs, ok := AsErrors(Struct(parent{FAQs: []child{{Question: "ok"}, {}}}))
	if !ok {
		t.Fatalf("expected validation errors")
	}
	if verrs["faqs[1].question"] != "This field is required" {
		t.Fatalf("unexpected errors: %v", verrs)
	}
}
