package sqlkit

import (
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"
)

var dsnAuthorityPattern = regexp.MustCompile(`(?i)(postgres(?:ql)?|mysql)://[^\s]+@`)

func assertNoDSNLeak(t *testing.T, msg string) {
	t.Helper()

	lower := strings.ToLower(msg)
	for _, marker := range []string{"postgres://", "postgresql://", "password=", "supersecret"} {
		if strings.Contains(lower, marker) {
			t.Fatalf("error leaked sensitive marker %q: %q", marker, msg)
		}
	}
	if dsnAuthorityPattern.MatchString(msg) {
		t.Fatalf("error leaked DSN authority info: %q", msg)
	}
}

func assertKind(t *testing.T, err error, want Kind) {
	t.Helper()

	if err == nil {
		t.Fatalf("error=nil, want kind %v", want)
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %T (%v)", err, err)
	}
	if e.Kind != want {
		t.Fatalf("kind=%v, want %v (%v)", e.Kind, want, err)
	}
}

// eventually polls cond until it holds or a second passes. Link
// destruction happens on a pool goroutine.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
