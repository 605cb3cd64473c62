package ebics_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/pkg/ebics"
	"github.com/sirosfoundation/go-ebics/pkg/ebics/ebicstest"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/transport"
)

var nonceFormat = regexp.MustCompile(`^[0-9A-F]{32}$`)

func TestClient_DefaultNonce(t *testing.T) {
	bank := ebicstest.NewBank(t)
	client, rec := newClient(t, bank)
	s := bank.NewSession(t, message.H004, "USER1")
	bank.Subscribe(t, s)

	for range 2 {
		_, err := client.Upload(context.Background(), s, fulOrder(t), []byte("<Document/>"))
		require.NoError(t, err)
	}

	var nonces []string
	for _, req := range rec.requests {
		if req.Header.Mutable.TransactionPhase == message.PhaseInitialisation {
			nonces = append(nonces, req.Header.Static.Nonce)
		}
	}
	require.Len(t, nonces, 2)
	for _, n := range nonces {
		assert.Regexp(t, nonceFormat, n)
	}
	assert.NotEqual(t, nonces[0], nonces[1])
}

func TestClient_NonceOverride(t *testing.T) {
	errEntropy := errors.New("entropy exhausted")
	tests := []struct {
		name    string
		nonce   func() (string, error)
		want    string
		wantErr error
	}{
		{"fixed", func() (string, error) { return "0123456789ABCDEF0123456789ABCDEF", nil }, "0123456789ABCDEF0123456789ABCDEF", nil},
		{"failing", func() (string, error) { return "", errEntropy }, "", errEntropy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bank := ebicstest.NewBank(t)
			s := bank.NewSession(t, message.H004, "USER1")
			bank.Subscribe(t, s)
			rec := &recorder{next: transport.NewHTTPSClientWith(bank.Server.Client())}
			client, err := ebics.NewClient(&ebics.ClientConfig{
				Transport: rec,
				Logger:    quietLogger(),
				Nonce:     tt.nonce,
			})
			require.NoError(t, err)

			_, err = client.Upload(context.Background(), s, fulOrder(t), []byte("<Document/>"))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, rec.count())
				assert.Zero(t, s.Partner.OrderCounter, "no order id is consumed")
				return
			}
			require.NoError(t, err)
			require.NotZero(t, rec.count())
			assert.Equal(t, tt.want, rec.requests[0].Header.Static.Nonce)
		})
	}
}
