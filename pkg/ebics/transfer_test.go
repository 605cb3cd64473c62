package ebics_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/pkg/ebics"
	"github.com/sirosfoundation/go-ebics/pkg/ebics/ebicstest"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/session"
)

func staOrder(t *testing.T) order.DownloadOrder {
	t.Helper()
	o, err := order.NewDownloadOrder(order.Legacy{AdminType: order.AdminDNL, BusinessType: "STA"})
	require.NoError(t, err)
	return o
}

func fulOrder(t *testing.T, opts ...order.UploadOption) order.UploadOrder {
	t.Helper()
	o, err := order.NewUploadOrder(order.Legacy{AdminType: order.AdminFUL, BusinessType: "pain.001.001.03"}, opts...)
	require.NoError(t, err)
	return o
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}

func TestUpload_Segmented(t *testing.T) {
	bank := ebicstest.NewBank(t)
	client, rec := newClient(t, bank)
	s := bank.NewSession(t, message.H004, "USER1")
	bank.Subscribe(t, s)

	data := randomBytes(t, 2_500_000)
	result, err := client.Upload(context.Background(), s, fulOrder(t), data)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Segments)
	assert.Equal(t, "A000", result.OrderID)
	assert.Equal(t, 466560, s.Partner.OrderCounter)
	assert.NotEmpty(t, result.TransactionID)

	var numbers []int
	var lasts []bool
	for _, req := range rec.requests[1:] {
		require.Equal(t, message.PhaseTransfer, req.Header.Mutable.TransactionPhase)
		require.NotNil(t, req.Header.Mutable.SegmentNumber)
		numbers = append(numbers, req.Header.Mutable.SegmentNumber.Number)
		lasts = append(lasts, req.Header.Mutable.SegmentNumber.LastSegment)
	}
	assert.Equal(t, []int{1, 2, 3}, numbers)
	assert.Equal(t, []bool{false, false, true}, lasts)

	uploads := bank.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "FUL", uploads[0].OrderType)
	assert.Equal(t, "A000", uploads[0].OrderID)
	assert.True(t, uploads[0].Signed)
	assert.Equal(t, 3, uploads[0].Segments)
	assert.True(t, bytes.Equal(data, uploads[0].Data))
}

func TestUpload_OrderIDsAdvance(t *testing.T) {
	bank := ebicstest.NewBank(t)
	client, _ := newClient(t, bank)
	s := bank.NewSession(t, message.H004, "USER1")
	bank.Subscribe(t, s)

	var ids []string
	for i := 0; i < 3; i++ {
		result, err := client.Upload(context.Background(), s, fulOrder(t), []byte("<Document/>"))
		require.NoError(t, err)
		ids = append(ids, result.OrderID)
	}
	assert.Equal(t, []string{"A000", "A001", "A002"}, ids)
}

func TestUpload_DuplicateOrderIDRejected(t *testing.T) {
	bank := ebicstest.NewBank(t)
	client, _ := newClient(t, bank)
	s := bank.NewSession(t, message.H004, "USER1")
	bank.Subscribe(t, s)

	_, err := client.Upload(context.Background(), s, fulOrder(t), []byte("first"))
	require.NoError(t, err)

	// a counter that was not persisted repeats the order id
	s.Partner.OrderCounter = 0
	_, err = client.Upload(context.Background(), s, fulOrder(t), []byte("second"))
	var perr *message.ProtocolError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, message.CodeOrderIDAlreadyExists, perr.Code)
	assert.Equal(t, message.PhaseInitialisation, perr.Phase)
}

func TestUpload_H005AssignsOrderID(t *testing.T) {
	bank := ebicstest.NewBank(t, ebicstest.WithCertificates())
	client, rec := newClient(t, bank)
	s := bank.NewSession(t, message.H005, "USER1")
	bank.Subscribe(t, s)

	o, err := order.NewUploadOrder(order.Structured{Service: "SCT", MessageName: "pain.001", Scope: "DE"})
	require.NoError(t, err)
	result, err := client.Upload(context.Background(), s, o, []byte("<Document/>"))
	require.NoError(t, err)

	assert.Equal(t, "B001", result.OrderID)
	assert.Equal(t, 0, s.Partner.OrderCounter)
	require.NotEmpty(t, rec.requests)
	assert.Empty(t, rec.requests[0].Header.Static.OrderDetails.OrderID)

	uploads := bank.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "SCT", uploads[0].OrderType)
	assert.Equal(t, 1, uploads[0].Segments)
}

func TestUpload_Params(t *testing.T) {
	bank := ebicstest.NewBank(t)
	client, _ := newClient(t, bank)
	s := bank.NewSession(t, message.H004, "USER1")
	s.Params = map[string]string{"TEST": "TRUE", "SOURCE": "session"}
	bank.Subscribe(t, s)

	o := fulOrder(t, order.WithUploadParams(map[string]string{"SOURCE": "order"}))
	_, err := client.Upload(context.Background(), s, o, []byte("<Document/>"))
	require.NoError(t, err)

	uploads := bank.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, map[string]string{"TEST": "TRUE", "SOURCE": "order"}, uploads[0].Params)
}

func TestUpload_Unsigned(t *testing.T) {
	bank := ebicstest.NewBank(t)
	client, _ := newClient(t, bank)
	s := bank.NewSession(t, message.H004, "USER1")
	bank.Subscribe(t, s)

	_, err := client.Upload(context.Background(), s, fulOrder(t, order.WithSignature(false)), []byte("<Document/>"))
	require.NoError(t, err)

	uploads := bank.Uploads()
	require.Len(t, uploads, 1)
	assert.False(t, uploads[0].Signed)
}

func TestUpload_NotReady(t *testing.T) {
	bank := ebicstest.NewBank(t)
	client, rec := newClient(t, bank)
	s := bank.NewSession(t, message.H004, "USER1")
	s.User.Status = session.StatusInitialized

	_, err := client.Upload(context.Background(), s, fulOrder(t), []byte("data"))
	assert.ErrorIs(t, err, session.ErrIllegalState)
	assert.Equal(t, ebics.KindState, ebics.KindOf(err))

	_, err = client.Download(context.Background(), s, staOrder(t), &bytes.Buffer{})
	assert.ErrorIs(t, err, session.ErrIllegalState)
	assert.Zero(t, rec.count())
}

func TestUpload_WithoutBankKeys(t *testing.T) {
	bank := ebicstest.NewBank(t)
	client, _ := newClient(t, bank)
	s := bank.NewSession(t, message.H004, "USER1")
	s.User.Status = session.StatusReady

	_, err := client.Upload(context.Background(), s, fulOrder(t), []byte("data"))
	assert.ErrorIs(t, err, ebics.ErrNoBankKeys)
}

func TestDownload_Segmented(t *testing.T) {
	tests := []struct {
		name    string
		version message.Version
		opts    []ebicstest.Option
		order   func(t *testing.T) order.DownloadOrder
		key     string
	}{
		{
			name:    "H004 DNL",
			version: message.H004,
			opts:    []ebicstest.Option{ebicstest.WithSegmentSize(16)},
			order:   staOrder,
			key:     "STA",
		},
		{
			name:    "H005 BTD",
			version: message.H005,
			opts:    []ebicstest.Option{ebicstest.WithSegmentSize(16), ebicstest.WithCertificates()},
			order: func(t *testing.T) order.DownloadOrder {
				o, err := order.NewDownloadOrder(order.Structured{Service: "EOP", MessageName: "camt.053", Scope: "DE"})
				require.NoError(t, err)
				return o
			},
			key: "EOP",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bank := ebicstest.NewBank(t, tt.opts...)
			client, rec := newClient(t, bank)
			s := bank.NewSession(t, tt.version, "USER1")
			bank.Subscribe(t, s)

			payload := []byte(strings.Repeat("statement line with some text\n", 40))
			bank.AddDownload(tt.key, payload)

			var out bytes.Buffer
			result, err := client.Download(context.Background(), s, tt.order(t), &out)
			require.NoError(t, err)

			assert.Equal(t, payload, out.Bytes())
			assert.Equal(t, int64(len(payload)), result.Bytes)
			assert.Greater(t, result.Segments, 1)
			assert.Contains(t, result.ContentType, "text/plain")
			assert.Equal(t, 1, bank.Receipts())

			phases := rec.phases()
			require.Len(t, phases, result.Segments+1)
			assert.Equal(t, message.PhaseInitialisation, phases[0])
			assert.Equal(t, message.PhaseReceipt, phases[len(phases)-1])
			for _, p := range phases[1 : len(phases)-1] {
				assert.Equal(t, message.PhaseTransfer, p)
			}
		})
	}
}

func TestDownload_NoData(t *testing.T) {
	bank := ebicstest.NewBank(t)
	client, rec := newClient(t, bank)
	s := bank.NewSession(t, message.H004, "USER1")
	bank.Subscribe(t, s)

	var out bytes.Buffer
	result, err := client.Download(context.Background(), s, staOrder(t), &out)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ebics.ErrNoDataAvailable)
	assert.Equal(t, ebics.KindNoData, ebics.KindOf(err))
	assert.Zero(t, out.Len())
	assert.Equal(t, 1, rec.count())
}

func TestDownload_ReceiptFailure(t *testing.T) {
	bank := ebicstest.NewBank(t)
	client, _ := newClient(t, bank)
	s := bank.NewSession(t, message.H004, "USER1")
	bank.Subscribe(t, s)
	bank.AddDownload("STA", []byte("statement"))
	bank.SetFault(func(req *message.Request) message.ReturnCode {
		if req.Header.Mutable.TransactionPhase == message.PhaseReceipt {
			return message.CodeTxAbort
		}
		return ""
	})

	var out bytes.Buffer
	result, err := client.Download(context.Background(), s, staOrder(t), &out)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "statement", out.String())

	var rerr *ebics.ReceiptError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, result.TransactionID, rerr.TransactionID)

	var perr *message.ProtocolError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, message.CodeTxAbort, perr.Code)
	assert.Equal(t, message.PhaseReceipt, perr.Phase)
	assert.Equal(t, ebics.KindProtocol, ebics.KindOf(err))
	assert.Zero(t, bank.Receipts())
}

func TestDownload_TransferFault(t *testing.T) {
	bank := ebicstest.NewBank(t, ebicstest.WithSegmentSize(8))
	client, _ := newClient(t, bank)
	s := bank.NewSession(t, message.H004, "USER1")
	bank.Subscribe(t, s)
	bank.AddDownload("STA", bytes.Repeat([]byte("x"), 4096))
	bank.SetFault(func(req *message.Request) message.ReturnCode {
		if seg := req.Header.Mutable.SegmentNumber; seg != nil && seg.Number == 2 {
			return message.CodeTxRecoverySync
		}
		return ""
	})

	var out bytes.Buffer
	_, err := client.Download(context.Background(), s, staOrder(t), &out)
	var perr *message.ProtocolError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 2, perr.Segment)
	assert.True(t, perr.Retryable())
	assert.Zero(t, out.Len())
}
