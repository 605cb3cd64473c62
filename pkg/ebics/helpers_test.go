package ebics_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/pkg/ebics"
	"github.com/sirosfoundation/go-ebics/pkg/ebics/ebicstest"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/transport"
)

// recorder forwards to the bank and keeps every parsed request.
type recorder struct {
	next ebics.Transport

	mu       sync.Mutex
	requests []*message.Request
}

func (r *recorder) Send(ctx context.Context, url string, document []byte) ([]byte, error) {
	if req, err := message.ParseRequest(document); err == nil {
		r.mu.Lock()
		r.requests = append(r.requests, req)
		r.mu.Unlock()
	}
	return r.next.Send(ctx, url, document)
}

func (r *recorder) phases() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.requests))
	for _, req := range r.requests {
		out = append(out, req.Header.Mutable.TransactionPhase)
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, bank *ebicstest.Bank) (*ebics.Client, *recorder) {
	t.Helper()
	rec := &recorder{next: transport.NewHTTPSClientWith(bank.Server.Client())}
	client, err := ebics.NewClient(&ebics.ClientConfig{
		Transport:       rec,
		Logger:          quietLogger(),
		VerifyResponses: true,
	})
	require.NoError(t, err)
	return client, rec
}
