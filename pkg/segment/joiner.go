package segment

import (
	"bytes"
	"io"

	"github.com/sirosfoundation/go-ebics/pkg/compression"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// Joiner accumulates downloaded segments and turns them into the plain
// payload once. Segments must be appended in transfer order.
type Joiner struct {
	buf        bytes.Buffer
	compressed bool
	segments   int
	finished   bool
}

// NewJoiner creates an empty joiner. compressed tells Finish to inflate the
// decrypted data.
func NewJoiner(compressed bool) *Joiner {
	return &Joiner{compressed: compressed}
}

// Append adds the next segment.
func (j *Joiner) Append(data []byte) error {
	if j.finished {
		return &Error{Op: "append", Segment: j.segments + 1, Err: ErrFinished}
	}
	j.buf.Write(data)
	j.segments++
	return nil
}

// AppendFrom reads the next segment from r.
func (j *Joiner) AppendFrom(r io.Reader) error {
	if j.finished {
		return &Error{Op: "append", Segment: j.segments + 1, Err: ErrFinished}
	}
	if _, err := j.buf.ReadFrom(r); err != nil {
		return &Error{Op: "append", Segment: j.segments + 1, Err: err}
	}
	j.segments++
	return nil
}

// Segments returns the number of appended segments.
func (j *Joiner) Segments() int { return j.segments }

// Len returns the number of buffered bytes.
func (j *Joiner) Len() int { return j.buf.Len() }

// Finish decrypts the buffered data with the resolved transaction key,
// inflates it and writes the result to w. Nothing is written when decryption
// or decompression fails. The joiner cannot be used afterwards.
func (j *Joiner) Finish(w io.Writer, key []byte) (int64, error) {
	if j.finished {
		return 0, &Error{Op: "finish", Err: ErrFinished}
	}
	j.finished = true
	data := j.buf.Bytes()
	defer j.buf.Reset()

	plain, err := security.DecryptData(key, data)
	if err != nil {
		return 0, &Error{Op: "decrypt", Err: err}
	}
	if j.compressed {
		plain, err = compression.NewCompressor().Decompress(plain)
		if err != nil {
			return 0, &Error{Op: "decompress", Err: err}
		}
	}

	n, err := w.Write(plain)
	if err != nil {
		return int64(n), &Error{Op: "write", Err: err}
	}
	return int64(n), nil
}
