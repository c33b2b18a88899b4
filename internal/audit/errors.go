package audit

import "fmt"

// ParseError reports a request or response body that could not be decoded as JSON.
// It never leaves this package's exported helpers; callers see a nil result instead.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("audit: body is not valid JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError reports a failed attempt to persist an audit record. It is logged and
// counted by the Recorder and never returned to request handlers.
type StorageError struct {
	RecordID string
	Err      error
}

func (e *StorageError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("audit: failed to persist record: %v", e.Err)
	}
	return fmt.Sprintf("audit: failed to persist record %s: %v", e.RecordID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
