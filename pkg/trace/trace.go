package trace

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Direction tells whether a document was sent or received.
type Direction string

const (
	DirectionRequest  Direction = "request"
	DirectionResponse Direction = "response"
)

// Record is one traced document.
type Record struct {
	ID            uuid.UUID
	Time          time.Time
	Direction     Direction
	Phase         string
	OrderType     string
	TransactionID []byte
	Segment       int
	HostID        string
	UserID        string
	PartnerID     string
	Params        map[string]string
	Body          []byte
}

// New creates a record with a fresh id.
func New(direction Direction, body []byte) Record {
	return Record{
		ID:        uuid.New(),
		Time:      time.Now().UTC(),
		Direction: direction,
		Body:      body,
	}
}

// WithParams returns a copy of r carrying params.
func (r Record) WithParams(params map[string]string) Record {
	r.Params = maps.Clone(params)
	return r
}

// TransactionHex renders the transaction id as uppercase hex.
func (r Record) TransactionHex() string {
	return strings.ToUpper(hex.EncodeToString(r.TransactionID))
}

//go:generate mockgen -destination=../ebics/mocks/mock_sink.go -package=mocks . Sink

// Sink persists trace records.
type Sink interface {
	Trace(ctx context.Context, r Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r Record) error

func (f SinkFunc) Trace(ctx context.Context, r Record) error { return f(ctx, r) }

// Nop discards every record.
var Nop Sink = SinkFunc(func(context.Context, Record) error { return nil })

// LogSink writes records to a slog logger at debug level. The body is only
// logged when IncludeBody is set.
type LogSink struct {
	logger      *slog.Logger
	IncludeBody bool
}

// NewLogSink creates a log sink; a nil logger uses slog.Default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Trace(ctx context.Context, r Record) error {
	attrs := []any{
		"trace_id", r.ID.String(),
		"direction", string(r.Direction),
		"phase", r.Phase,
		"order_type", r.OrderType,
		"host_id", r.HostID,
		"user_id", r.UserID,
		"size", len(r.Body),
	}
	if len(r.TransactionID) > 0 {
		attrs = append(attrs, "transaction_id", r.TransactionHex())
	}
	if r.Segment > 0 {
		attrs = append(attrs, "segment", r.Segment)
	}
	if s.IncludeBody {
		attrs = append(attrs, "body", string(r.Body))
	}
	s.logger.DebugContext(ctx, "ebics trace", attrs...)
	return nil
}

type multiSink []Sink

// MultiSink fans a record out to every sink. All sinks are called; their
// errors are joined.
func MultiSink(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multiSink) Trace(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Trace(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
