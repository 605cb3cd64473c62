package segment

import (
	"bytes"
	"fmt"
	"io"

	"github.com/sirosfoundation/go-ebics/pkg/compression"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// MaxSegmentSize is the largest raw segment EBICS allows (1 MiB).
const MaxSegmentSize = 1048576

// Layout returns the segment count and the rebalanced size of every segment
// but the last for an encoded payload of total bytes.
func Layout(total int) (count, size int) {
	if total <= 0 {
		return 0, 0
	}
	count = (total + MaxSegmentSize - 1) / MaxSegmentSize
	return count, total / count
}

// Content is one segment of an encoded payload. It shares memory with the
// Splitter that produced it.
type Content struct {
	data []byte
}

// Bytes returns the segment bytes.
func (c Content) Bytes() []byte { return c.data }

// Len returns the segment length.
func (c Content) Len() int { return len(c.data) }

// Reader returns a reader over the segment.
func (c Content) Reader() io.Reader { return bytes.NewReader(c.data) }

// Splitter holds a compressed, encrypted payload and hands it out segment by
// segment.
type Splitter struct {
	encoded     []byte
	numSegments int
	segmentSize int
}

// NewSplitter compresses input when compress is set, encrypts it with the
// transaction key and computes the segment layout.
func NewSplitter(p *security.Provider, input []byte, compress bool, key []byte) (*Splitter, error) {
	data := input
	if compress {
		compressed, err := compression.NewCompressor().Compress(input)
		if err != nil {
			return nil, &Error{Op: "compress", Err: err}
		}
		data = compressed
	}

	encoded, err := p.EncryptData(key, data)
	if err != nil {
		return nil, &Error{Op: "encrypt", Err: err}
	}

	count, size := Layout(len(encoded))
	return &Splitter{
		encoded:     encoded,
		numSegments: count,
		segmentSize: size,
	}, nil
}

// NumSegments returns the segment count.
func (s *Splitter) NumSegments() int { return s.numSegments }

// SegmentSize returns the size of every segment except the last.
func (s *Splitter) SegmentSize() int { return s.segmentSize }

// Len returns the total encoded length.
func (s *Splitter) Len() int { return len(s.encoded) }

// Segment returns segment n (1-based).
func (s *Splitter) Segment(n int) (Content, error) {
	if n < 1 || n > s.numSegments {
		return Content{}, &Error{Op: "read", Segment: n, Err: fmt.Errorf("%w: %d of %d", ErrOutOfRange, n, s.numSegments)}
	}
	start := (n - 1) * s.segmentSize
	end := start + s.segmentSize
	if n == s.numSegments {
		end = len(s.encoded)
	}
	return Content{data: s.encoded[start:end]}, nil
}
