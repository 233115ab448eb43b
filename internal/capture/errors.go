package capture

import (
	"fmt"

	"github.com/tphakala/sensorrec/internal/errors"
)

// ComponentCapture identifies errors raised by stream buffers.
const ComponentCapture = "capture"

var (
	// ErrChunkFull is returned by Chunk.Append when the chunk holds capacity entries.
	ErrChunkFull = errors.Newf("chunk is full").
			Component(ComponentCapture).
			Category(errors.CategoryBuffer).
			Build()

	// ErrStreamClosed is returned by appends after the stream buffer was closed.
	ErrStreamClosed = errors.Newf("stream buffer is closed").
			Component(ComponentCapture).
			Category(errors.CategoryState).
			Build()

	// ErrShapeMismatch is returned when a sample's planes differ from the stream shape.
	ErrShapeMismatch = errors.Newf("payload shape mismatch").
				Component(ComponentCapture).
				Category(errors.CategoryValidation).
				Build()

	// ErrInvalidConfig is wrapped by StreamConfig.Validate failures.
	ErrInvalidConfig = errors.Newf("invalid stream configuration").
				Component(ComponentCapture).
				Category(errors.CategoryConfiguration).
				Build()
)

// configError wraps ErrInvalidConfig with a formatted reason.
func configError(stream, format string, args ...any) error {
	return errors.New(fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)).
		Component(ComponentCapture).
		Category(errors.CategoryConfiguration).
		Context("stream", stream).
		Build()
}
