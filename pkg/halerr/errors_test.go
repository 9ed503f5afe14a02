package halerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsAreDistinct(t *testing.T) {
	all := []error{
		ErrInvalidArgument,
		ErrResourceExhausted,
		ErrDeviceUnavailable,
		ErrNotSupported,
		ErrTimeout,
		ErrClosed,
	}
	for i, a := range all {
		for j, b := range all {
			if i != j && errors.Is(a, b) {
				t.Errorf("%v matches %v", a, b)
			}
		}
	}
}

func TestErrorsWrap(t *testing.T) {
	err := fmt.Errorf("pcmdev: open card 1 device 0: %w", ErrDeviceUnavailable)
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("errors.Is(%v, ErrDeviceUnavailable) = false", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Errorf("errors.Is(%v, ErrTimeout) = true", err)
	}
}
