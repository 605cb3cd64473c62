package storage

import (
	"context"

	"github.com/sirosfoundation/go-ebics/pkg/trace"
)

// TraceSink stores trace records in a TraceStore.
type TraceSink struct {
	store TraceStore
}

// NewTraceSink returns a trace.Sink backed by store.
func NewTraceSink(store TraceStore) *TraceSink {
	return &TraceSink{store: store}
}

// Trace implements trace.Sink.
func (s *TraceSink) Trace(ctx context.Context, r trace.Record) error {
	return s.store.AppendTrace(ctx, FromRecord(r))
}

// FromRecord converts a trace record to its stored form.
func FromRecord(r trace.Record) *Trace {
	return &Trace{
		ID:            r.ID.String(),
		Time:          r.Time,
		Direction:     string(r.Direction),
		Phase:         r.Phase,
		OrderType:     r.OrderType,
		TransactionID: r.TransactionHex(),
		Segment:       r.Segment,
		HostID:        r.HostID,
		PartnerID:     r.PartnerID,
		UserID:        r.UserID,
		Params:        r.Params,
		Size:          len(r.Body),
		Body:          r.Body,
	}
}
