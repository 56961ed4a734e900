package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestReasonFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"unauthenticated", ErrUnauthenticated, ReasonUnauthenticated},
		{"wrapped empty cart", fmt.Errorf("checkout: %w", ErrEmptyCart), ReasonEmptyCart},
		{"unavailable product", fmt.Errorf("line 2: %w", ErrUnavailableProduct), ReasonUnavailableProduct},
		{"remote", Remote("insert order", errors.New("connection refused")), ReasonRemoteRequestFailed},
		{"wrapped remote", fmt.Errorf("checkout: %w", Remote("insert order", errors.New("boom"))), ReasonRemoteRequestFailed},
		{"anything else", errors.New("boom"), ReasonUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReasonFor(tt.err); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestRemote(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		if err := Remote("op", nil); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("keeps the cause reachable", func(t *testing.T) {
		cause := errors.New("duplicate key")
		err := Remote("insert profile", cause)
		if !errors.Is(err, cause) {
			t.Error("expected errors.Is to find the cause")
		}
		if err.Error() != "insert profile: duplicate key" {
			t.Errorf("unexpected message: %s", err.Error())
		}
	})
}

func TestProduct_Resolved(t *testing.T) {
	var missing *Product
	if missing.Resolved() {
		t.Error("nil product must not be resolved")
	}
	if (&Product{ID: "1"}).Resolved() {
		t.Error("bare id must not be resolved")
	}
	if !(&Product{ID: "1", Name: "Running Pro Max"}).Resolved() {
		t.Error("named product must be resolved")
	}
}
