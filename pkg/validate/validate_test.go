package validate

import (
	"testing"

	pkgerrors "github.com/davidalonso/posstack-backend/pkg/errors"
)

type sampleInput struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Qty   int    `json:"qty" validate:"gte=0"`
}

func TestStructPassesValidInput(t *testing.T) {
	if err := Struct(sampleInput{Name: "widget", Email: "a@b.co", Qty: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStructReportsFieldDetails(t *testing.T) {
	err := Struct(sampleInput{Email: "not-an-email", Qty: -1})
	if err == nil {
		t.Fatal("expected validation error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("details type = %T", typed.Details())
	}
	if details["name"] != "is required" {
		t.Fatalf("name detail = %q", details["name"])
	}
	if details["email"] != "must be a valid email address" {
		t.Fatalf("email detail = %q", details["email"])
	}
	if details["qty"] != "must be at least 0" {
		t.Fatalf("qty detail = %q", details["qty"])
	}
}
