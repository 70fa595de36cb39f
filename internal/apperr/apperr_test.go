package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := New(KindInsufficientStock, "product %s: have %d, need %d", "p1", 1, 3)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock match")
	}
	if errors.Is(err, ErrOverpayment) {
		t.Fatalf("unexpected overpayment match")
	}

	wrapped := fmt.Errorf("add item: %w", err)
	if !errors.Is(wrapped, ErrInsufficientStock) {
		t.Fatalf("wrapped error lost its kind")
	}
	if KindOf(wrapped) != KindInsufficientStock {
		t.Fatalf("kind = %s", KindOf(wrapped))
	}
}

func TestKindOf_Foreign(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("foreign errors must be internal")
	}
}

func TestFieldErrors(t *testing.T) {
	f := FieldErrors{}
	if f.Err() != nil {
		t.Fatalf("empty field errors must be nil")
	}
	f.Add("quantity", "must be at least 1")
	f.Add("quantity", "ignored")
	err := f.Err()
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if e.Fields["quantity"] != "must be at least 1" {
		t.Fatalf("first message must win: %v", e.Fields)
	}
}
