package models

import "fmt"

// Error taxonomy for the synthesis pipeline. Every failure that crosses a
// component boundary is one of these types; nothing downstream of the
// synthesis adapter inspects response shapes to guess what went wrong.

// ValidationError rejects a submission before anything is persisted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// UpstreamError means the synthesis backend returned a non-success status or
// an error envelope.
type UpstreamError struct {
	Status int // 0 when the backend was unreachable
	Msg    string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("synthesis backend error (%d): %s", e.Status, e.Msg)
	}
	return fmt.Sprintf("synthesis backend error: %s", e.Msg)
}

// TimeoutError means a short job exceeded its fixed call budget.
type TimeoutError struct {
	Budget string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("synthesis call exceeded %s timeout", e.Budget)
}

// WatchdogTimeoutError means a long job exceeded the backstop window; the
// outcome of the underlying call is unknown.
type WatchdogTimeoutError struct {
	RequestID int64
}

func (e *WatchdogTimeoutError) Error() string {
	return fmt.Sprintf("request %d force-failed by watchdog before the synthesis call returned", e.RequestID)
}

// EmptyResponseError means the backend returned 200 with no audio bytes.
type EmptyResponseError struct{}

func (e *EmptyResponseError) Error() string { return "synthesis backend returned empty audio" }

// StorageError means the durable upload failed after synthesis succeeded.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("audio upload failed: %v", e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// ResourceError means a required temp file is missing or unreadable at
// dispatch time; the job fails before the backend is called.
type ResourceError struct {
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("reference audio %s unavailable: %v", e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }
