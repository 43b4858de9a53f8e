package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestValidateUsername(t *testing.T) {
	cases := map[string]bool{
		"alice":      true,
		"a.b-c_d":    true,
		"ab":         false,
		"Alice":      false,
		"-alice":     false,
		"with space": false,
	}
	for name, ok := range cases {
		err := ValidateUsername(name)
		if ok && err != nil {
			t.Fatalf("%q: unexpected error %v", name, err)
		}
		if !ok && err == nil {
			t.Fatalf("%q: expected error", name)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("short", 8); err == nil {
		t.Fatalf("expected short password to fail")
	}
	if err := ValidatePassword("        ", 4); err == nil {
		t.Fatalf("expected blank password to fail")
	}
	if err := ValidatePassword("long-enough", 8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithOptions(&buf, "debug", "json")
	l.With("component", "test").Printf("hello %d", 42)
	out := buf.String()
	if !strings.Contains(out, `"msg":"hello 42"`) || !strings.Contains(out, `"component":"test"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Printf("ignored")
	l.Errorf("ignored")
}
