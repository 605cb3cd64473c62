package ebics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sirosfoundation/go-ebics/pkg/compression"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/session"
	"github.com/sirosfoundation/go-ebics/pkg/trace"
	"github.com/sirosfoundation/go-ebics/pkg/transport"
)

//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks . Transport

// Transport exchanges one document with the bank.
type Transport interface {
	Send(ctx context.Context, url string, document []byte) ([]byte, error)
}

// Client runs EBICS workflows. It holds no per-session state and may be
// shared by concurrent operations on independent sessions.
type Client struct {
	transport       Transport
	tracer          trace.Sink
	logger          *slog.Logger
	compressor      *compression.Compressor
	verifyResponses bool
	nonce           func() (string, error)
}

// ClientConfig holds client configuration
type ClientConfig struct {
	// HTTPSConfig configures the default HTTPS transport.
	HTTPSConfig *transport.HTTPSConfig
	// Transport replaces the HTTPS transport.
	Transport Transport
	// Tracer receives every request and response; failures are logged only.
	Tracer trace.Sink
	Logger *slog.Logger
	// VerifyResponses checks the bank's AuthSignature on transaction
	// responses.
	VerifyResponses bool
	// Nonce overrides the request nonce generator. By default nonces are
	// drawn from the subscriber's security.Provider.
	Nonce func() (string, error)
}

// NewClient creates a new EBICS client
func NewClient(config *ClientConfig) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	t := config.Transport
	if t == nil {
		t = transport.NewHTTPSClient(config.HTTPSConfig)
	}
	tracer := config.Tracer
	if tracer == nil {
		tracer = trace.Nop
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		transport:       t,
		tracer:          tracer,
		logger:          logger,
		compressor:      compression.NewCompressor(),
		verifyResponses: config.VerifyResponses,
		nonce:           config.Nonce,
	}, nil
}

// step describes one round trip for tracing and error context.
type step struct {
	phase         string
	orderType     string
	transactionID []byte
	segment       int
}

// builder returns a request builder carrying a fresh nonce. Each builder
// produces at most one request that needs a nonce.
func (c *Client) builder(s *session.Session) (*message.Builder, error) {
	provider := s.User.Keys.Provider()
	newNonce := c.nonce
	if newNonce == nil {
		newNonce = provider.NewNonce
	}
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	return message.NewBuilder(s.Header(),
		message.WithNonce(func() string { return nonce }),
		message.WithClock(provider.Now),
	), nil
}

func (c *Client) sessionLogger(s *session.Session, orderType string) *slog.Logger {
	return c.logger.With(
		"host_id", s.Bank.HostID,
		"partner_id", s.Partner.ID,
		"user_id", s.User.ID,
		"order_type", orderType,
	)
}

// exchange signs req unless it is an unsecured request, sends it, traces
// both documents and checks the return codes of the response.
func (c *Client) exchange(ctx context.Context, s *session.Session, req *message.Request, st step) (*message.Response, error) {
	document, err := req.Marshal()
	if err != nil {
		return nil, err
	}
	if req.XMLName.Local != message.RootUnsecuredRequest {
		document, err = security.NewAuthSigner(s.User.Keys).Sign(document)
		if err != nil {
			return nil, fmt.Errorf("failed to sign %s request: %w", st.orderType, err)
		}
	}

	c.trace(ctx, s, trace.DirectionRequest, st, document)
	raw, err := c.transport.Send(ctx, s.Bank.URL, document)
	if err != nil {
		return nil, err
	}
	c.trace(ctx, s, trace.DirectionResponse, st, raw)

	resp, err := message.ParseResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if err := resp.Check(st.phase); err != nil {
		if errors.Is(err, message.ErrMissingReturnCode) {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidResponse, st.orderType, err)
		}
		var perr *message.ProtocolError
		if errors.As(err, &perr) {
			perr.OrderType = st.orderType
			if perr.Segment == 0 {
				perr.Segment = st.segment
			}
			if len(perr.TransactionID) == 0 {
				perr.TransactionID = st.transactionID
			}
		}
		return nil, err
	}

	if c.verifyResponses && resp.XMLName.Local == message.RootResponse && s.Bank.Keys != nil {
		if err := security.VerifyAuthSignature(raw, s.Bank.Keys.Authentication); err != nil {
			return nil, fmt.Errorf("bank response: %w", err)
		}
	}
	return resp, nil
}

func (c *Client) trace(ctx context.Context, s *session.Session, dir trace.Direction, st step, body []byte) {
	r := trace.New(dir, body).WithParams(s.Params)
	r.Phase = st.phase
	r.OrderType = st.orderType
	r.TransactionID = st.transactionID
	r.Segment = st.segment
	r.HostID = s.Bank.HostID
	r.PartnerID = s.Partner.ID
	r.UserID = s.User.ID
	if err := c.tracer.Trace(ctx, r); err != nil {
		c.logger.Warn("trace sink failed", "order_type", st.orderType, "direction", string(dir), "error", err)
	}
}

func requireKeys(s *session.Session, bankKeys bool) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.User.Keys == nil {
		return ErrNoKeys
	}
	if bankKeys && s.Bank.Keys == nil {
		return ErrNoBankKeys
	}
	return nil
}

func bankDigests(b *security.BankKeys) (message.Digests, error) {
	auth, err := b.AuthenticationDigest()
	if err != nil {
		return message.Digests{}, err
	}
	enc, err := b.EncryptionDigest()
	if err != nil {
		return message.Digests{}, err
	}
	return message.Digests{Authentication: auth, Encryption: enc}, nil
}

// envelope is a fresh transaction key, wrapped for the bank, with the
// encrypted ES of an upload.
type envelope struct {
	key           []byte
	wrappedKey    []byte
	signatureData []byte
	digests       message.Digests
}

// seal creates the transaction key and the encrypted UserSignatureData for
// data. Without sign the ES container carries no signature.
func (c *Client) seal(s *session.Session, data []byte, sign bool) (*envelope, error) {
	p := s.User.Keys.Provider()
	digests, err := bankDigests(s.Bank.Keys)
	if err != nil {
		return nil, err
	}
	key, err := p.GenerateTransactionKey()
	if err != nil {
		return nil, err
	}
	wrapped, err := p.WrapKey(s.Bank.Keys.Encryption, key)
	if err != nil {
		return nil, err
	}

	es := &message.UserSignatureData{}
	if sign {
		signature, err := s.User.Keys.Sign(data)
		if err != nil {
			return nil, err
		}
		es = message.NewUserSignatureData(s.User.Version, signature, s.Partner.ID, s.User.ID)
	} else {
		es.XMLName.Space = s.User.Version.SignatureNamespace()
		es.XMLName.Local = "UserSignatureData"
	}
	doc, err := message.MarshalDocument(es)
	if err != nil {
		return nil, err
	}
	compressed, err := c.compressor.Compress(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to compress order signature: %w", err)
	}
	sigData, err := p.EncryptData(key, compressed)
	if err != nil {
		return nil, err
	}
	return &envelope{key: key, wrappedKey: wrapped, signatureData: sigData, digests: digests}, nil
}
