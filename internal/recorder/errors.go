package recorder

import (
	"github.com/tphakala/sensorrec/internal/errors"
)

// ComponentRecorder identifies errors raised by the recording session.
const ComponentRecorder = "recorder"

var (
	// ErrAlreadyRecording is returned by Start while a session is recording.
	ErrAlreadyRecording = errors.Newf("a recording session is already running").
				Component(ComponentRecorder).
				Category(errors.CategoryState).
				Build()

	// ErrSessionBusy is returned by Start while the previous session is draining.
	ErrSessionBusy = errors.Newf("previous recording session is still draining").
			Component(ComponentRecorder).
			Category(errors.CategoryState).
			Build()

	// ErrNotRecording is returned by Append and RecordSettings while idle.
	ErrNotRecording = errors.Newf("no recording session is running").
			Component(ComponentRecorder).
			Category(errors.CategoryState).
			Build()

	// ErrUnknownStream is returned for a stream name that is not configured.
	ErrUnknownStream = errors.Newf("unknown stream").
				Component(ComponentRecorder).
				Category(errors.CategoryNotFound).
				Build()

	// ErrNotImageStream is returned by RecordSettings for inertial streams.
	ErrNotImageStream = errors.Newf("stream does not carry sensor settings").
				Component(ComponentRecorder).
				Category(errors.CategoryValidation).
				Build()

	// ErrInvalidSessionID is returned by Start for an id unusable as a directory name.
	ErrInvalidSessionID = errors.Newf("invalid session id").
				Component(ComponentRecorder).
				Category(errors.CategoryValidation).
				Build()
)

func streamError(sentinel error, stream string) error {
	return errors.New(sentinel).
		Component(ComponentRecorder).
		Category(categoryOf(sentinel)).
		Context("stream", stream).
		Build()
}

func categoryOf(err error) errors.ErrorCategory {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return errors.CategoryGeneric
}
