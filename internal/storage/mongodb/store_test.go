package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sirosfoundation/go-ebics/internal/storage"
)

func TestTraceQuery_Empty(t *testing.T) {
	query, opts := traceQuery(nil)
	assert.Empty(t, query)
	assert.Nil(t, opts.Limit)
	assert.Equal(t, bson.D{{Key: "time", Value: -1}}, opts.Sort)
}

func TestTraceQuery_Filter(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	query, opts := traceQuery(&storage.TraceFilter{
		HostID:        "EBICSTEST",
		UserID:        "USER1",
		TransactionID: "0a1b",
		OrderType:     "BTD",
		Since:         &since,
		Limit:         10,
	})

	assert.Equal(t, bson.M{
		"host_id":        "EBICSTEST",
		"user_id":        "USER1",
		"transaction_id": "0a1b",
		"order_type":     "BTD",
		"time":           bson.M{"$gte": since},
	}, query)
	require.NotNil(t, opts.Limit)
	assert.Equal(t, int64(10), *opts.Limit)
}

func TestNotFound(t *testing.T) {
	assert.ErrorIs(t, notFound(mongo.ErrNoDocuments), storage.ErrNotFound)
	assert.NotErrorIs(t, notFound(assert.AnError), storage.ErrNotFound)
}
