package models

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRequestStatusTerminal(t *testing.T) {
	cases := []struct {
		status   RequestStatus
		terminal bool
	}{
		{RequestStatusPending, false},
		{RequestStatusProcessing, false},
		{RequestStatusCompleted, true},
		{RequestStatusFailed, true},
	}
	for _, c := range cases {
		if got := c.status.Terminal(); got != c.terminal {
			t.Errorf("Terminal(%s) = %v, want %v", c.status, got, c.terminal)
		}
	}
}

func TestErrorsMatchWithAs(t *testing.T) {
	wrapped := fmt.Errorf("worker: %w", &UpstreamError{Status: 502, Msg: "bad gateway"})

	var upstream *UpstreamError
	if !errors.As(wrapped, &upstream) {
		t.Fatal("errors.As failed to find UpstreamError through a wrap")
	}
	if upstream.Status != 502 {
		t.Errorf("Status = %d, want 502", upstream.Status)
	}

	var validation *ValidationError
	if errors.As(wrapped, &validation) {
		t.Error("errors.As matched ValidationError on an upstream error")
	}
}

func TestStorageErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &StorageError{Err: cause}

	if !errors.Is(err, cause) {
		t.Error("StorageError did not unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("message %q does not mention the cause", err.Error())
	}
}

func TestResourceErrorUnwrap(t *testing.T) {
	cause := errors.New("no such file")
	err := &ResourceError{Path: "/tmp/ref.wav", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("ResourceError did not unwrap to its cause")
	}
	if !strings.Contains(err.Error(), "/tmp/ref.wav") {
		t.Errorf("message %q does not mention the path", err.Error())
	}
}

func TestUpstreamErrorMessages(t *testing.T) {
	withStatus := &UpstreamError{Status: 400, Msg: "text too long"}
	if !strings.Contains(withStatus.Error(), "400") {
		t.Errorf("message %q missing status code", withStatus.Error())
	}

	unreachable := &UpstreamError{Msg: "connection refused"}
	if strings.Contains(unreachable.Error(), "(0)") {
		t.Errorf("message %q should not render a zero status", unreachable.Error())
	}
}

func TestWatchdogTimeoutErrorMentionsRequest(t *testing.T) {
	err := &WatchdogTimeoutError{RequestID: 42}
	if !strings.Contains(err.Error(), "42") {
		t.Errorf("message %q missing request id", err.Error())
	}
}
