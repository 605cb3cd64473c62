package ebics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"

	"github.com/gabriel-vasile/mimetype"

	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/segment"
	"github.com/sirosfoundation/go-ebics/pkg/session"
	"github.com/sirosfoundation/go-ebics/pkg/transaction"
)

// UploadResult is the outcome of a completed upload.
type UploadResult struct {
	OrderID       string
	TransactionID []byte
	Segments      int
}

// DownloadResult is the outcome of a download.
type DownloadResult struct {
	TransactionID []byte
	Segments      int
	Bytes         int64
	// ContentType is detected from the leading bytes of the payload.
	ContentType string
}

// Upload sends data as a segmented, compressed and encrypted upload with
// the subscriber's ES. In H004 the order id is taken from the partner
// sequence and the caller persists the advanced counter.
func (c *Client) Upload(ctx context.Context, s *session.Session, o order.UploadOrder, data []byte) (*UploadResult, error) {
	log := c.sessionLogger(s, o.Descriptor().String())
	if _, _, err := session.Transition(s.User.Status, session.ActionTransfer); err != nil {
		return nil, err
	}
	if err := requireKeys(s, true); err != nil {
		return nil, err
	}

	env, err := c.seal(s, data, o.SignatureFlag())
	if err != nil {
		return nil, err
	}
	splitter, err := segment.NewSplitter(s.User.Keys.Provider(), data, true, env.key)
	if err != nil {
		return nil, err
	}

	b, err := c.builder(s)
	if err != nil {
		return nil, err
	}
	var orderID string
	if s.User.Version == message.H004 {
		orderID = s.Partner.NextOrderID()
	}

	req, err := b.UploadInit(message.UploadInit{
		Order:          o,
		OrderID:        orderID,
		Params:         mergeParams(s.Params, o.Params()),
		NumSegments:    splitter.NumSegments(),
		Digests:        env.digests,
		TransactionKey: env.wrappedKey,
		SignatureData:  env.signatureData,
	})
	if err != nil {
		return nil, err
	}

	st := step{phase: message.PhaseInitialisation, orderType: req.OrderType()}
	resp, err := c.exchange(ctx, s, req, st)
	if err != nil {
		return nil, err
	}
	txID := resp.TransactionID()
	if len(txID) == 0 {
		return nil, fmt.Errorf("%w: upload initialisation without transaction id", ErrInvalidResponse)
	}
	if id := resp.OrderID(); id != "" {
		orderID = id
	}
	log = log.With("transaction_id", fmt.Sprintf("%X", txID), "order_id", orderID)
	log.Info("upload initialised", "segments", splitter.NumSegments(), "bytes", splitter.Len())

	state := transaction.New(txID, splitter.NumSegments())
	for state.HasNext() {
		n, err := state.Next()
		if err != nil {
			return nil, err
		}
		content, err := splitter.Segment(n)
		if err != nil {
			return nil, err
		}
		seg := step{phase: message.PhaseTransfer, orderType: st.orderType, transactionID: txID, segment: n}
		if _, err := c.exchange(ctx, s, b.UploadTransfer(txID, n, state.IsLastSegment(), content.Bytes()), seg); err != nil {
			return nil, err
		}
		log.Debug("segment uploaded", "segment", n, "last", state.IsLastSegment(), "size", content.Len())
	}

	log.Info("upload completed")
	return &UploadResult{OrderID: orderID, TransactionID: txID, Segments: state.NumSegments()}, nil
}

// Download fetches an order and writes the plain payload to w. A bank with
// nothing to deliver yields an error matching ErrNoDataAvailable. When only
// the receipt fails the result is returned with a *ReceiptError.
func (c *Client) Download(ctx context.Context, s *session.Session, o order.DownloadOrder, w io.Writer) (*DownloadResult, error) {
	log := c.sessionLogger(s, o.Descriptor().String())
	if _, _, err := session.Transition(s.User.Status, session.ActionTransfer); err != nil {
		return nil, err
	}
	if err := requireKeys(s, true); err != nil {
		return nil, err
	}
	digests, err := bankDigests(s.Bank.Keys)
	if err != nil {
		return nil, err
	}

	b, err := c.builder(s)
	if err != nil {
		return nil, err
	}
	req, err := b.DownloadInit(message.DownloadInit{
		Order:   o,
		Params:  mergeParams(s.Params, o.Params()),
		Digests: digests,
	})
	if err != nil {
		return nil, err
	}

	st := step{phase: message.PhaseInitialisation, orderType: req.OrderType()}
	resp, err := c.exchange(ctx, s, req, st)
	if err != nil {
		if KindOf(err) == KindNoData {
			log.Info("no download data available")
		}
		return nil, err
	}

	txID := resp.TransactionID()
	info := resp.EncryptionInfo()
	if len(txID) == 0 || info == nil {
		return nil, fmt.Errorf("%w: download initialisation without transaction id or key", ErrInvalidResponse)
	}
	if err := checkEncryptionDigest(s, info); err != nil {
		return nil, err
	}
	key, err := s.User.Keys.UnwrapKey(info.TransactionKey)
	if err != nil {
		return nil, err
	}

	total := resp.NumSegments()
	if total == 0 {
		total = 1
	}
	start, _ := resp.SegmentNumber()
	if start == 0 {
		start = 1
	}
	log = log.With("transaction_id", fmt.Sprintf("%X", txID))
	log.Info("download initialised", "segments", total, "start_segment", start)

	joiner := segment.NewJoiner(true)
	if err := joiner.Append(resp.OrderData()); err != nil {
		return nil, err
	}
	state := transaction.New(txID, total)
	state.SetSegmentNumber(start)

	for state.HasNext() {
		n, err := state.Next()
		if err != nil {
			return nil, err
		}
		seg := step{phase: message.PhaseTransfer, orderType: st.orderType, transactionID: txID, segment: n}
		resp, err := c.exchange(ctx, s, b.DownloadTransfer(txID, n, state.IsLastSegment()), seg)
		if err != nil {
			return nil, err
		}
		if err := joiner.Append(resp.OrderData()); err != nil {
			return nil, err
		}
		log.Debug("segment downloaded", "segment", n, "size", len(resp.OrderData()))
	}

	sniff := &sniffer{w: w}
	written, err := joiner.Finish(sniff, key)
	if err != nil {
		return nil, err
	}
	result := &DownloadResult{
		TransactionID: txID,
		Segments:      joiner.Segments(),
		Bytes:         written,
		ContentType:   mimetype.Detect(sniff.head).String(),
	}

	receipt := step{phase: message.PhaseReceipt, orderType: st.orderType, transactionID: txID}
	if _, err := c.exchange(ctx, s, b.Receipt(txID, 0), receipt); err != nil {
		log.Warn("download receipt failed", "error", err)
		return result, &ReceiptError{TransactionID: txID, Err: err}
	}

	log.Info("download completed", "bytes", written, "content_type", result.ContentType)
	return result, nil
}

// checkEncryptionDigest verifies that the bank encrypted for the
// subscriber's current E002 key.
func checkEncryptionDigest(s *session.Session, info *message.DataEncryptionInfo) error {
	got := info.EncryptionPubKeyDigest.Value
	if len(got) == 0 {
		return nil
	}
	want, err := s.User.Keys.Hash(security.PurposeEncryption, s.Bank.DigestMode())
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return &security.CryptoError{Op: "unwrap transaction key", Err: fmt.Errorf("payload encrypted for unknown key %X", []byte(got))}
	}
	return nil
}

// mergeParams overlays order parameters on session parameters.
func mergeParams(sessionParams, orderParams map[string]string) map[string]string {
	if len(sessionParams) == 0 && len(orderParams) == 0 {
		return nil
	}
	out := maps.Clone(sessionParams)
	if out == nil {
		out = make(map[string]string, len(orderParams))
	}
	maps.Copy(out, orderParams)
	return out
}

const sniffLen = 3072

// sniffer keeps the leading bytes written through it.
type sniffer struct {
	w    io.Writer
	head []byte
}

func (s *sniffer) Write(p []byte) (int, error) {
	if missing := sniffLen - len(s.head); missing > 0 {
		s.head = append(s.head, p[:min(missing, len(p))]...)
	}
	return s.w.Write(p)
}
