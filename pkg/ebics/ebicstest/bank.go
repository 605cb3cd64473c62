// Package ebicstest provides an in-process EBICS bank for tests.
//
// The bank accepts INI, HIA, HPB and SPR, segmented uploads with ES
// verification and segmented downloads with receipts. It checks every
// AuthSignature against the subscriber's registered X002 key and signs its
// transaction responses with its own.
package ebicstest

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirosfoundation/go-ebics/pkg/compression"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/order"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/transport"
)

// HostID is the host id of every test bank.
const HostID = "EBICSTEST"

// FaultFunc lets a test replace the bank's answer to a request. A non-empty
// code is returned as technical return code instead of processing req.
type FaultFunc func(req *message.Request) message.ReturnCode

// Upload is an order the bank accepted.
type Upload struct {
	OrderType string
	OrderID   string
	Data      []byte
	Signed    bool
	Segments  int
	Params    map[string]string
}

// Bank is a fake EBICS host.
type Bank struct {
	// Server is the plain HTTP server. It is nil for a bank created WithTLS.
	Server *httptest.Server

	useTLS  bool
	roots   *x509.CertPool
	baseURL string

	provider        *security.Provider
	keys            *security.KeyMaterial
	useCertificates bool
	segmentSize     int
	compressor      *compression.Compressor

	mu           sync.Mutex
	subscribers  map[string]*subscriber
	transactions map[string]*transfer
	downloads    map[string][][]byte
	uploads      []Upload
	receipts     int
	orderSeq     int
	fault        FaultFunc
}

type subscriber struct {
	partnerID   string
	userID      string
	signature   *registeredKey
	auth        *registeredKey
	encryption  *registeredKey
	revoked     bool
	lastOrderID string
}

type registeredKey struct {
	pub  *rsa.PublicKey
	cert *x509.Certificate
}

type transfer struct {
	sub       *subscriber
	upload    bool
	orderType string
	orderID   string
	params    map[string]string
	key       []byte
	es        *message.UserSignatureData
	total     int
	received  int
	buf       bytes.Buffer
	segments  [][]byte
}

// Option configures a Bank.
type Option func(*Bank)

// WithCertificates makes the bank exchange X.509 certificates.
func WithCertificates() Option {
	return func(b *Bank) { b.useCertificates = true }
}

// WithSegmentSize sets the size of download segments.
func WithSegmentSize(n int) Option {
	return func(b *Bank) { b.segmentSize = n }
}

// NewBank starts a bank server that is closed with the test.
func NewBank(tb testing.TB, opts ...Option) *Bank {
	tb.Helper()
	b := &Bank{
		provider:     security.NewProvider(security.WithKeySize(1024)),
		segmentSize:  1 << 20,
		compressor:   compression.NewCompressor(),
		subscribers:  make(map[string]*subscriber),
		transactions: make(map[string]*transfer),
		downloads:    make(map[string][][]byte),
	}
	for _, opt := range opts {
		opt(b)
	}
	keys, err := b.provider.GenerateKeyMaterial("CN=" + HostID)
	if err != nil {
		tb.Fatalf("generate bank keys: %v", err)
	}
	b.keys = keys
	if b.useTLS {
		b.serveTLS(tb)
		return b
	}
	b.Server = httptest.NewServer(transport.HTTPHandler(b))
	tb.Cleanup(b.Server.Close)
	b.baseURL = b.Server.URL
	return b
}

// URL returns the bank endpoint.
func (b *Bank) URL() string { return b.baseURL + "/ebics" }

// Keys returns the bank key material.
func (b *Bank) Keys() *security.KeyMaterial { return b.keys }

// UsesCertificates reports whether the bank exchanges certificates.
func (b *Bank) UsesCertificates() bool { return b.useCertificates }

func (b *Bank) digestMode() security.DigestMode {
	if b.useCertificates {
		return security.DigestCertificate
	}
	return security.DigestPublicKey
}

// AuthenticationHash and EncryptionHash are the hashes printed on the
// bank's letter.
func (b *Bank) AuthenticationHash() []byte {
	h, _ := b.keys.Hash(security.PurposeAuthentication, b.digestMode())
	return h
}

func (b *Bank) EncryptionHash() []byte {
	h, _ := b.keys.Hash(security.PurposeEncryption, b.digestMode())
	return h
}

// AddDownload queues data for the next download of orderType. BTD orders
// are keyed by service name.
func (b *Bank) AddDownload(orderType string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.downloads[orderType] = append(b.downloads[orderType], data)
}

// SetFault installs f; nil removes it.
func (b *Bank) SetFault(f FaultFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fault = f
}

// Uploads returns the accepted uploads.
func (b *Bank) Uploads() []Upload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Upload(nil), b.uploads...)
}

// Receipts returns the number of positive receipts.
func (b *Bank) Receipts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.receipts
}

// Registered reports whether INI and HIA were accepted for the subscriber.
func (b *Bank) Registered(partnerID, userID string) (signature, authentication bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subscribers[partnerID+"/"+userID]
	if !ok {
		return false, false
	}
	return sub.signature != nil, sub.auth != nil && sub.encryption != nil
}

// Revoked reports whether SPR was accepted for the subscriber.
func (b *Bank) Revoked(partnerID, userID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subscribers[partnerID+"/"+userID]
	return ok && sub.revoked
}

// HandleRequest implements transport.Handler.
func (b *Bank) HandleRequest(_ context.Context, document []byte) ([]byte, error) {
	req, err := message.ParseRequest(document)
	if err != nil {
		return nil, err
	}
	v := message.Version(req.Version)
	if err := v.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fault != nil {
		if code := b.fault(req); code != "" {
			return b.respond(message.NewResponse(v, rootFor(req), req.Header.Mutable.TransactionPhase, code, ""))
		}
	}

	switch req.XMLName.Local {
	case message.RootUnsecuredRequest:
		return b.keyManagement(v, req)
	case message.RootNoPubKeyDigestsRequest:
		return b.hpb(v, req, document)
	case message.RootRequest:
		return b.transaction(v, req, document)
	}
	return nil, fmt.Errorf("unsupported request <%s>", req.XMLName.Local)
}

func rootFor(req *message.Request) string {
	if req.XMLName.Local == message.RootRequest {
		return message.RootResponse
	}
	return message.RootKeyManagementResponse
}

func (b *Bank) subscriber(partnerID, userID string) *subscriber {
	key := partnerID + "/" + userID
	sub, ok := b.subscribers[key]
	if !ok {
		sub = &subscriber{partnerID: partnerID, userID: userID}
		b.subscribers[key] = sub
	}
	return sub
}

func keyManagementError(v message.Version, code message.ReturnCode) *message.Response {
	return message.NewResponse(v, message.RootKeyManagementResponse, "", code, "")
}

func (b *Bank) keyManagement(v message.Version, req *message.Request) ([]byte, error) {
	static := req.Header.Static
	if static.HostID != HostID {
		return b.respond(keyManagementError(v, message.CodeInvalidHostID))
	}
	if req.Body.DataTransfer == nil || req.OrderType() == "" {
		return b.respond(keyManagementError(v, message.CodeInvalidRequest))
	}
	data, err := b.compressor.Decompress(req.Body.DataTransfer.OrderData)
	if err != nil {
		return b.respond(keyManagementError(v, message.CodeInvalidOrderDataFormat))
	}

	sub := b.subscriber(static.PartnerID, static.UserID)
	switch req.OrderType() {
	case string(order.AdminINI):
		var od message.SignaturePubKeyOrderData
		if err := message.UnmarshalDocument(data, &od); err != nil || od.XMLName.Space != v.SignatureNamespace() {
			return b.respond(keyManagementError(v, message.CodeInvalidOrderDataFormat))
		}
		kp, err := b.keyPair(&od.SignaturePubKeyInfo)
		if err != nil {
			return b.respond(keyManagementError(v, message.CodeInvalidOrderDataFormat))
		}
		sub.signature = kp
		sub.revoked = false
	case string(order.AdminHIA):
		var od message.HIARequestOrderData
		if err := message.UnmarshalDocument(data, &od); err != nil {
			return b.respond(keyManagementError(v, message.CodeInvalidOrderDataFormat))
		}
		auth, err := b.keyPair(&od.AuthenticationPubKeyInfo)
		if err != nil {
			return b.respond(keyManagementError(v, message.CodeInvalidOrderDataFormat))
		}
		enc, err := b.keyPair(&od.EncryptionPubKeyInfo)
		if err != nil {
			return b.respond(keyManagementError(v, message.CodeInvalidOrderDataFormat))
		}
		sub.auth, sub.encryption = auth, enc
		sub.revoked = false
	default:
		return b.respond(keyManagementError(v, message.CodeInvalidOrderType))
	}
	return b.respond(message.NewResponse(v, message.RootKeyManagementResponse, "", message.CodeOK, message.CodeOK))
}

// keyPair extracts a registered subscriber key. A certificate bank rejects
// bare keys.
func (b *Bank) keyPair(info *message.PubKeyInfo) (*registeredKey, error) {
	cert, err := info.Certificate()
	if err != nil {
		return nil, err
	}
	if b.useCertificates && cert == nil {
		return nil, fmt.Errorf("certificate required")
	}
	pub, err := info.PublicKey()
	if err != nil {
		return nil, err
	}
	return &registeredKey{pub: pub, cert: cert}, nil
}

func (b *Bank) hpb(v message.Version, req *message.Request, document []byte) ([]byte, error) {
	static := req.Header.Static
	sub, ok := b.subscribers[static.PartnerID+"/"+static.UserID]
	if !ok || sub.signature == nil || sub.auth == nil || sub.encryption == nil || sub.revoked {
		return b.respond(keyManagementError(v, message.CodeInvalidUserOrUserState))
	}
	if err := security.VerifyAuthSignature(document, sub.auth.pub); err != nil {
		return b.respond(keyManagementError(v, message.CodeAuthenticationFailed))
	}

	auth, err := b.pubKeyInfo(v, security.PurposeAuthentication)
	if err != nil {
		return nil, err
	}
	auth.AuthenticationVersion = security.AuthenticationVersion
	enc, err := b.pubKeyInfo(v, security.PurposeEncryption)
	if err != nil {
		return nil, err
	}
	enc.EncryptionVersion = security.EncryptionVersion

	doc, err := message.MarshalDocument(message.NewHPBResponseOrderData(v, *auth, *enc, HostID))
	if err != nil {
		return nil, err
	}
	info, payload, err := b.encryptFor(sub, doc)
	if err != nil {
		return nil, err
	}
	resp := message.NewResponse(v, message.RootKeyManagementResponse, "", message.CodeOK, message.CodeOK)
	resp.Body.DataTransfer = &message.ResponseDataTransfer{DataEncryptionInfo: info, OrderData: payload}
	return b.respond(resp)
}

func (b *Bank) pubKeyInfo(v message.Version, purpose security.KeyPurpose) (*message.PubKeyInfo, error) {
	pair := b.keys.Pair(purpose)
	cert := pair.Certificate
	if !b.useCertificates {
		cert = nil
	}
	withKeyValue := !b.useCertificates || v == message.H004
	return message.NewPubKeyInfo(b.keys.PublicKey(purpose), cert, withKeyValue, b.provider.Now().Format(time.RFC3339))
}

// encryptFor compresses and encrypts data under a fresh key wrapped for the
// subscriber's E002 key.
func (b *Bank) encryptFor(sub *subscriber, data []byte) (*message.DataEncryptionInfo, []byte, error) {
	compressed, err := b.compressor.Compress(data)
	if err != nil {
		return nil, nil, err
	}
	key, err := b.provider.GenerateTransactionKey()
	if err != nil {
		return nil, nil, err
	}
	encrypted, err := b.provider.EncryptData(key, compressed)
	if err != nil {
		return nil, nil, err
	}
	info, err := b.encryptionInfo(sub, key)
	if err != nil {
		return nil, nil, err
	}
	return info, encrypted, nil
}

func (b *Bank) encryptionInfo(sub *subscriber, key []byte) (*message.DataEncryptionInfo, error) {
	wrapped, err := b.provider.WrapKey(sub.encryption.pub, key)
	if err != nil {
		return nil, err
	}
	digest, err := security.Digest(b.digestMode(), sub.encryption.pub, sub.encryption.cert)
	if err != nil {
		return nil, err
	}
	return &message.DataEncryptionInfo{
		Authenticate: true,
		EncryptionPubKeyDigest: message.PubKeyDigest{
			Version:   security.EncryptionVersion,
			Algorithm: security.AlgorithmSHA256,
			Value:     digest,
		},
		TransactionKey: wrapped,
	}, nil
}

func (b *Bank) transaction(v message.Version, req *message.Request, document []byte) ([]byte, error) {
	phase := req.Header.Mutable.TransactionPhase
	fail := func(code message.ReturnCode) ([]byte, error) {
		return b.respond(message.NewResponse(v, message.RootResponse, phase, code, ""))
	}

	var sub *subscriber
	var tx *transfer
	if phase == message.PhaseInitialisation {
		static := req.Header.Static
		var ok bool
		sub, ok = b.subscribers[static.PartnerID+"/"+static.UserID]
		if !ok || sub.signature == nil || sub.auth == nil || sub.encryption == nil || sub.revoked {
			return fail(message.CodeInvalidUserOrUserState)
		}
	} else {
		var ok bool
		tx, ok = b.transactions[hex.EncodeToString(req.Header.Static.TransactionID)]
		if !ok {
			return fail(message.CodeTxUnknownTxID)
		}
		sub = tx.sub
	}
	if err := security.VerifyAuthSignature(document, sub.auth.pub); err != nil {
		return fail(message.CodeAuthenticationFailed)
	}

	switch phase {
	case message.PhaseInitialisation:
		if !b.digestsMatch(req.Header.Static.BankPubKeyDigests) {
			return fail(message.CodeBankPubKeyUpdateRequired)
		}
		if req.Body.DataTransfer != nil && req.Body.DataTransfer.DataEncryptionInfo != nil {
			return b.uploadInit(v, sub, req)
		}
		return b.downloadInit(v, sub, req)
	case message.PhaseTransfer:
		if tx.upload {
			return b.uploadTransfer(v, tx, req)
		}
		return b.downloadTransfer(v, tx, req)
	case message.PhaseReceipt:
		if tx.upload || req.Body.TransferReceipt == nil {
			return fail(message.CodeInvalidRequest)
		}
		delete(b.transactions, hex.EncodeToString(req.Header.Static.TransactionID))
		if req.Body.TransferReceipt.ReceiptCode == 0 {
			b.receipts++
		}
		resp := message.NewResponse(v, message.RootResponse, phase, message.CodeDownloadPostprocessDone, message.CodeOK)
		resp.Header.Static.TransactionID = req.Header.Static.TransactionID
		return b.respond(resp)
	}
	return fail(message.CodeInvalidRequest)
}

func (b *Bank) digestsMatch(d *message.BankPubKeyDigests) bool {
	if d == nil {
		return false
	}
	return bytes.Equal(d.Authentication.Value, b.AuthenticationHash()) && bytes.Equal(d.Encryption.Value, b.EncryptionHash())
}

func (b *Bank) uploadInit(v message.Version, sub *subscriber, req *message.Request) ([]byte, error) {
	phase := message.PhaseInitialisation
	fail := func(code message.ReturnCode) ([]byte, error) {
		return b.respond(message.NewResponse(v, message.RootResponse, phase, code, ""))
	}

	dt := req.Body.DataTransfer
	key, err := b.keys.UnwrapKey(dt.DataEncryptionInfo.TransactionKey)
	if err != nil {
		return fail(message.CodeInvalidRequestContent)
	}
	var es message.UserSignatureData
	if dt.SignatureData != nil {
		plain, err := security.DecryptData(key, dt.SignatureData.Value)
		if err != nil {
			return fail(message.CodeInvalidRequestContent)
		}
		inflated, err := b.compressor.Decompress(plain)
		if err != nil {
			return fail(message.CodeInvalidRequestContent)
		}
		if err := xml.Unmarshal(inflated, &es); err != nil {
			return fail(message.CodeInvalidOrderDataFormat)
		}
	}

	details := req.Header.Static.OrderDetails
	orderType := details.Type()
	if details.BTUOrderParams != nil {
		orderType = details.BTUOrderParams.Service.ServiceName
	}

	orderID := details.OrderID
	if v == message.H005 {
		b.orderSeq++
		orderID = fmt.Sprintf("B%03d", b.orderSeq)
	}

	if orderType == string(order.AdminSPR) {
		if len(es.OrderSignatureData) == 0 || security.Verify(sub.signature.pub, []byte(" "), es.OrderSignatureData[0].SignatureValue) != nil {
			return fail(message.CodeSignatureVerificationFailed)
		}
		sub.revoked = true
		resp := message.NewResponse(v, message.RootResponse, phase, message.CodeOK, message.CodeOK)
		resp.Header.Static.TransactionID = newTransactionID()
		resp.Header.Mutable.OrderID = orderID
		return b.respond(resp)
	}

	if v == message.H004 && orderID != "" && orderID == sub.lastOrderID {
		return fail(message.CodeOrderIDAlreadyExists)
	}
	sub.lastOrderID = orderID

	total := 0
	if req.Header.Static.NumSegments != nil {
		total = *req.Header.Static.NumSegments
	}
	if total < 1 {
		return fail(message.CodeInvalidRequestContent)
	}

	txID := newTransactionID()
	b.transactions[hex.EncodeToString(txID)] = &transfer{
		sub:       sub,
		upload:    true,
		orderType: orderType,
		orderID:   orderID,
		params:    orderParams(details),
		key:       key,
		es:        &es,
		total:     total,
	}
	resp := message.NewResponse(v, message.RootResponse, phase, message.CodeOK, message.CodeOK)
	resp.Header.Static.TransactionID = txID
	resp.Header.Mutable.OrderID = orderID
	return b.respond(resp)
}

func (b *Bank) uploadTransfer(v message.Version, tx *transfer, req *message.Request) ([]byte, error) {
	phase := message.PhaseTransfer
	fail := func(code message.ReturnCode) ([]byte, error) {
		return b.respond(message.NewResponse(v, message.RootResponse, phase, code, ""))
	}

	seg := req.Header.Mutable.SegmentNumber
	if seg == nil || req.Body.DataTransfer == nil {
		return fail(message.CodeInvalidRequest)
	}
	if seg.Number != tx.received+1 || seg.Number > tx.total {
		return fail(message.CodeTxSegmentNumberExceeded)
	}
	if seg.LastSegment != (seg.Number == tx.total) {
		return fail(message.CodeTxSegmentNumberUnderrun)
	}
	tx.buf.Write(req.Body.DataTransfer.OrderData)
	tx.received++

	if seg.LastSegment {
		delete(b.transactions, hex.EncodeToString(req.Header.Static.TransactionID))
		plain, err := security.DecryptData(tx.key, tx.buf.Bytes())
		if err != nil {
			return fail(message.CodeInvalidOrderDataFormat)
		}
		data, err := b.compressor.Decompress(plain)
		if err != nil {
			return fail(message.CodeInvalidOrderDataFormat)
		}
		signed := len(tx.es.OrderSignatureData) > 0
		if signed && security.Verify(tx.sub.signature.pub, data, tx.es.OrderSignatureData[0].SignatureValue) != nil {
			return fail(message.CodeSignatureVerificationFailed)
		}
		b.uploads = append(b.uploads, Upload{
			OrderType: tx.orderType,
			OrderID:   tx.orderID,
			Data:      data,
			Signed:    signed,
			Segments:  tx.total,
			Params:    tx.params,
		})
	}

	resp := message.NewResponse(v, message.RootResponse, phase, message.CodeOK, message.CodeOK)
	resp.Header.Static.TransactionID = req.Header.Static.TransactionID
	resp.Header.Mutable.SegmentNumber = &message.SegmentNumber{Number: seg.Number, LastSegment: seg.LastSegment}
	resp.Header.Mutable.OrderID = tx.orderID
	return b.respond(resp)
}

func (b *Bank) downloadInit(v message.Version, sub *subscriber, req *message.Request) ([]byte, error) {
	phase := message.PhaseInitialisation
	details := req.Header.Static.OrderDetails
	orderType := details.Type()
	if details.BTDOrderParams != nil {
		orderType = details.BTDOrderParams.Service.ServiceName
	}

	queue := b.downloads[orderType]
	if len(queue) == 0 {
		return b.respond(message.NewResponse(v, message.RootResponse, phase, message.CodeOK, message.CodeNoDownloadDataAvailable))
	}
	data := queue[0]
	b.downloads[orderType] = queue[1:]

	info, encrypted, err := b.encryptFor(sub, data)
	if err != nil {
		return nil, err
	}
	var segments [][]byte
	for off := 0; off < len(encrypted); off += b.segmentSize {
		segments = append(segments, encrypted[off:min(off+b.segmentSize, len(encrypted))])
	}

	txID := newTransactionID()
	b.transactions[hex.EncodeToString(txID)] = &transfer{
		sub:       sub,
		orderType: orderType,
		total:     len(segments),
		received:  1,
		segments:  segments,
	}

	resp := message.NewResponse(v, message.RootResponse, phase, message.CodeOK, message.CodeOK)
	resp.Header.Static.TransactionID = txID
	resp.Header.Static.NumSegments = len(segments)
	resp.Header.Mutable.SegmentNumber = &message.SegmentNumber{Number: 1, LastSegment: len(segments) == 1}
	resp.Body.DataTransfer = &message.ResponseDataTransfer{DataEncryptionInfo: info, OrderData: segments[0]}
	return b.respond(resp)
}

func (b *Bank) downloadTransfer(v message.Version, tx *transfer, req *message.Request) ([]byte, error) {
	phase := message.PhaseTransfer
	seg := req.Header.Mutable.SegmentNumber
	if seg == nil || seg.Number != tx.received+1 || seg.Number > tx.total {
		return b.respond(message.NewResponse(v, message.RootResponse, phase, message.CodeTxSegmentNumberExceeded, ""))
	}
	tx.received++

	resp := message.NewResponse(v, message.RootResponse, phase, message.CodeOK, message.CodeOK)
	resp.Header.Static.TransactionID = req.Header.Static.TransactionID
	resp.Header.Mutable.SegmentNumber = &message.SegmentNumber{Number: seg.Number, LastSegment: seg.Number == tx.total}
	resp.Body.DataTransfer = &message.ResponseDataTransfer{OrderData: tx.segments[seg.Number-1]}
	return b.respond(resp)
}

// respond serializes resp and signs transaction responses.
func (b *Bank) respond(resp *message.Response) ([]byte, error) {
	data, err := resp.Marshal()
	if err != nil {
		return nil, err
	}
	if resp.XMLName.Local != message.RootResponse {
		return data, nil
	}
	return security.NewAuthSigner(b.keys).Sign(data)
}

func orderParams(d *message.OrderDetails) map[string]string {
	var params []message.Parameter
	switch {
	case d.FULOrderParams != nil:
		params = d.FULOrderParams.Parameters
	case d.GenericOrderParams != nil:
		params = d.GenericOrderParams.Parameters
	}
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]string, len(params))
	for _, p := range params {
		out[p.Name] = p.Value.Value
	}
	return out
}

func newTransactionID() []byte {
	id := make([]byte, 16)
	_, _ = rand.Read(id)
	return id
}
