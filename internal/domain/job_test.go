package domain

import (
	"strings"
	"testing"
)

func TestJobStatusTerminal(t *testing.T) {
	cases := map[JobStatus]bool{
		JobStatusQueued:     false,
		JobStatusProcessing: false,
		JobStatusCompleted:  true,
		JobStatusFailed:     true,
	}
	for status, want := range cases {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestTruncateError(t *testing.T) {
	if got := TruncateError("short"); got != "short" {
		t.Fatalf("short message changed: %q", got)
	}
	long := strings.Repeat("x", MaxErrorLength+100)
	got := TruncateError(long)
	if len(got) != MaxErrorLength {
		t.Fatalf("truncated length = %d, want %d", len(got), MaxErrorLength)
	}
	if !strings.HasPrefix(long, got) {
		t.Fatal("truncation must keep the message prefix")
	}
}
