package auth

import (
	"errors"
	"testing"
)

func TestRandomCodeSourceProducesSixDigits(t *testing.T) {
	source := NewRandomCodeSource()
	for i := 0; i < 50; i++ {
		code, err := source.Code()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected six digits, got %q", code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("expected only digits, got %q", code)
			}
		}
	}
}

func TestFixedCodeSource(t *testing.T) {
	source, err := NewFixedCodeSource(" 123456 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 3; i++ {
		code, err := source.Code()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if code != "123456" {
			t.Fatalf("expected pinned code, got %q", code)
		}
	}
}

func TestFixedCodeSourceRejectsMalformedCodes(t *testing.T) {
	for _, raw := range []string{"", "12345", "1234567", "12a456"} {
		if _, err := NewFixedCodeSource(raw); !errors.Is(err, ErrInvalidFixedCode) {
			t.Fatalf("expected ErrInvalidFixedCode for %q, got %v", raw, err)
		}
	}
}
