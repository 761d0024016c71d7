package errs

import (
	"fmt"
	"testing"
)

func TestIsUnwrapsFmtErrorf(t *testing.T) {
	wrapped := fmt.Errorf("backend call failed: %w", ErrTransientBackend)
	if !Is(wrapped, ErrTransientBackend) {
		t.Fatal("expected wrapped error to match ErrTransientBackend")
	}
	if Is(wrapped, ErrPermanentBackend) {
		t.Fatal("did not expect wrapped error to match ErrPermanentBackend")
	}
}

func TestIsDistinguishesSentinels(t *testing.T) {
	sentinels := []error{ErrInvalidInput, ErrTransientBackend, ErrPermanentBackend, ErrStructuredGeneration, ErrNotFound}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			if Is(a, b) {
				t.Fatalf("sentinel %v unexpectedly matched %v", a, b)
			}
		}
	}
}
