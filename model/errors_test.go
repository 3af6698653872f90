package model

import "testing"

func TestErrorEnvelope_Error(t *testing.T) {
	e := &ErrorEnvelope{Code: ErrNotFound, Message: "Checkpoint not found"}
	want := "NOT_FOUND: Checkpoint not found"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorEnvelope_implements_error(t *testing.T) {
	var _ error = (*ErrorEnvelope)(nil)
}

func TestNewValidationError(t *testing.T) {
	e := NewValidationError(FieldError{Field: "reason", Code: "required", Message: "reason is required"})
	if e.Code != ErrValidationError {
		t.Errorf("Code = %q, want %q", e.Code, ErrValidationError)
	}
	if len(e.Details) != 1 {
		t.Fatalf("Details length = %d, want 1", len(e.Details))
	}
	if e.Details[0].Field != "reason" {
		t.Errorf("Details[0].Field = %q, want %q", e.Details[0].Field, "reason")
	}
}

func TestNewRequiredFieldError(t *testing.T) {
	e := NewRequiredFieldError("description")
	if e.Code != ErrValidationError {
		t.Errorf("Code = %q, want %q", e.Code, ErrValidationError)
	}
	if len(e.Details) != 1 || e.Details[0].Field != "description" {
		t.Fatalf("Details = %+v, want single entry for description", e.Details)
	}
	if e.Details[0].Code != "required" {
		t.Errorf("Details[0].Code = %q, want %q", e.Details[0].Code, "required")
	}
}

func TestNewInvalidTransitionError(t *testing.T) {
	e := NewInvalidTransitionError("cannot advance past the final stage")
	if e.Code != ErrInvalidTransition {
		t.Errorf("Code = %q, want %q", e.Code, ErrInvalidTransition)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"envelope", NewConflictError("version conflict"), ErrConflict},
		{"plain error", &plainError{}, ErrInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCode(tt.err); got != tt.want {
				t.Errorf("ErrorCode() = %q, want %q", got, tt.want)
			}
		})
	}
}

type plainError struct{}

func (*plainError) Error() string { return "boom" }
