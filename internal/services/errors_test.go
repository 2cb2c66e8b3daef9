package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"collage/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrDecode, "worker", "decode", "input 2", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrDecode) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"worker", "decode", "input 2", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrValidation, "queue", "enqueue", "no inputs", nil), "validation"},
		{services.Wrap(services.ErrDecode, "worker", "decode", "bad", nil), "decode"},
		{fmt.Errorf("outer: %w", services.Wrap(services.ErrRender, "worker", "encode", "", nil)), "render"},
		{services.ErrNotFound, "not_found"},
		{errors.New("disk full"), "transient"},
	}
	for _, tc := range cases {
		if got := services.Kind(tc.err); got != tc.want {
			t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
