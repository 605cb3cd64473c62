package ebics

import (
	"errors"
	"fmt"

	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/segment"
	"github.com/sirosfoundation/go-ebics/pkg/session"
	"github.com/sirosfoundation/go-ebics/pkg/transaction"
	"github.com/sirosfoundation/go-ebics/pkg/transport"
)

// ErrNoDataAvailable is matched when the bank has nothing to download.
var ErrNoDataAvailable = message.ErrNoDataAvailable

var (
	// ErrNoBankKeys is returned when a workflow needs the bank keys before
	// HPB succeeded.
	ErrNoBankKeys = errors.New("bank keys not available")
	// ErrNoKeys is returned when the subscriber has no key material.
	ErrNoKeys = errors.New("subscriber key material not available")
	// ErrInvalidResponse is returned for responses missing mandatory content.
	ErrInvalidResponse = errors.New("invalid bank response")
)

// Kind classifies errors returned by the client.
type Kind int

const (
	KindUnknown Kind = iota
	KindTransport
	KindProtocol
	KindNoData
	KindCrypto
	KindSegment
	KindState
)

var kindNames = map[Kind]string{
	KindUnknown:   "unknown",
	KindTransport: "transport",
	KindProtocol:  "protocol",
	KindNoData:    "no-data",
	KindCrypto:    "crypto",
	KindSegment:   "segment",
	KindState:     "state",
}

func (k Kind) String() string { return kindNames[k] }

// KindOf returns the kind of err. No-data is reported before the general
// protocol kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, message.ErrNoDataAvailable):
		return KindNoData
	case errors.Is(err, message.ErrProtocol), errors.Is(err, ErrInvalidResponse):
		return KindProtocol
	case errors.Is(err, transport.ErrTransport):
		return KindTransport
	case errors.Is(err, security.ErrCrypto), errors.Is(err, security.ErrBankKeyMismatch), errors.Is(err, security.ErrDigestMode):
		return KindCrypto
	case errors.Is(err, segment.ErrSegment):
		return KindSegment
	case errors.Is(err, session.ErrIllegalState), errors.Is(err, transaction.ErrNoMoreSegments),
		errors.Is(err, ErrNoBankKeys), errors.Is(err, ErrNoKeys):
		return KindState
	}
	return KindUnknown
}

// ReceiptError reports a failed receipt after the payload was delivered.
type ReceiptError struct {
	TransactionID []byte
	Err           error
}

func (e *ReceiptError) Error() string {
	return fmt.Sprintf("download receipt failed: %v", e.Err)
}

func (e *ReceiptError) Unwrap() error { return e.Err }
