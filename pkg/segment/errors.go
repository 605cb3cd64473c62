package segment

import (
	"errors"
	"fmt"
)

var (
	// ErrSegment is matched by every Error.
	ErrSegment = errors.New("segment transfer failed")
	// ErrFinished is returned when a Joiner is used after Finish.
	ErrFinished = errors.New("joiner already finished")
	// ErrOutOfRange is returned for a segment number outside 1..NumSegments.
	ErrOutOfRange = errors.New("segment number out of range")
)

// Error reports a compression, encryption or buffering failure while
// splitting or joining.
type Error struct {
	Op      string
	Segment int
	Err     error
}

func (e *Error) Error() string {
	if e.Segment > 0 {
		return fmt.Sprintf("%s: %s segment %d: %v", ErrSegment, e.Op, e.Segment, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrSegment, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrSegment }
