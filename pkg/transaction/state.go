package transaction

import (
	"errors"
	"fmt"
)

// ErrNoMoreSegments is returned by Next once every segment was delivered.
var ErrNoMoreSegments = errors.New("no more segments in transaction")

// State is the progress of one transfer: the bank's transaction id, the
// total segment count and the 1-based number of the most recent segment
// (0 before the first).
type State struct {
	id       []byte
	total    int
	segment  int
	terminal bool
}

// New creates a state before the first segment.
func New(id []byte, total int) *State {
	s := &State{id: id, total: total}
	s.terminal = total <= 0
	return s
}

// TransactionID returns the opaque id issued by the bank.
func (s *State) TransactionID() []byte { return s.id }

// SetTransactionID records the id once the bank has issued it.
func (s *State) SetTransactionID(id []byte) { s.id = id }

// NumSegments returns the total segment count.
func (s *State) NumSegments() int { return s.total }

// SegmentNumber returns the number of the most recent segment.
func (s *State) SegmentNumber() int { return s.segment }

// HasNext reports whether another segment follows.
func (s *State) HasNext() bool { return s.segment < s.total }

// IsLastSegment reports whether the most recent segment was the final one.
func (s *State) IsLastSegment() bool { return s.terminal }

// Next advances to the following segment and returns its number.
func (s *State) Next() (int, error) {
	if !s.HasNext() {
		return s.segment, fmt.Errorf("%w: segment %d of %d", ErrNoMoreSegments, s.segment, s.total)
	}
	s.segment++
	s.terminal = s.segment >= s.total
	return s.segment, nil
}

// SetSegmentNumber positions the cursor at n, e.g. when a download
// resumes at the segment the bank reports. n is not checked against the
// total.
func (s *State) SetSegmentNumber(n int) {
	s.segment = n
	s.terminal = n >= s.total
}
