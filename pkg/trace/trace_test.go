package trace

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	r := New(DirectionRequest, []byte("<ebicsRequest/>"))

	assert.NotEqual(t, uuid.Nil, r.ID)
	assert.False(t, r.Time.IsZero())
	assert.Equal(t, DirectionRequest, r.Direction)

	params := map[string]string{"FORMAT": "pdf"}
	withParams := r.WithParams(params)
	params["FORMAT"] = "xml"
	assert.Equal(t, "pdf", withParams.Params["FORMAT"])
	assert.Nil(t, r.Params)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := New(DirectionResponse, []byte("<ebicsResponse/>"))
	r.Phase = "Transfer"
	r.Segment = 2
	r.TransactionID = []byte{0xAB, 0xCD}

	sink := NewLogSink(logger)
	require.NoError(t, sink.Trace(context.Background(), r))
	out := buf.String()
	assert.Contains(t, out, "direction=response")
	assert.Contains(t, out, "transaction_id=ABCD")
	assert.Contains(t, out, "segment=2")
	assert.NotContains(t, out, "ebicsResponse")

	buf.Reset()
	sink.IncludeBody = true
	require.NoError(t, sink.Trace(context.Background(), r))
	assert.Contains(t, buf.String(), "ebicsResponse")
}

func TestMultiSink(t *testing.T) {
	var calls int
	counting := SinkFunc(func(context.Context, Record) error {
		calls++
		return nil
	})
	failing := SinkFunc(func(context.Context, Record) error {
		return errors.New("disk full")
	})

	sink := MultiSink(counting, nil, failing, counting)
	err := sink.Trace(context.Background(), New(DirectionRequest, nil))

	assert.EqualError(t, err, "disk full")
	assert.Equal(t, 2, calls)
	assert.NoError(t, Nop.Trace(context.Background(), Record{}))
}
