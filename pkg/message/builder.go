package message

import (
	"encoding/xml"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/sirosfoundation/go-ebics/pkg/order"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// ErrUnsupportedDescriptor is returned when a descriptor cannot be expressed
// in the requested protocol version.
var ErrUnsupportedDescriptor = errors.New("order descriptor not supported by protocol version")

// Product identifies the client software.
type Product struct {
	Name        string
	Language    string
	InstituteID string
}

// Header holds the identities every request carries.
type Header struct {
	Version   Version
	HostID    string
	PartnerID string
	UserID    string
	Product   Product
}

// Digests are the bank key hashes sent in BankPubKeyDigests.
type Digests struct {
	Authentication []byte
	Encryption     []byte
}

// Builder creates request documents for one subscriber.
type Builder struct {
	header Header
	nonce  func() string
	now    func() time.Time
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithNonce sets the nonce generator.
func WithNonce(f func() string) BuilderOption {
	return func(b *Builder) {
		b.nonce = f
	}
}

// WithClock sets the timestamp source.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		b.now = now
	}
}

// NewBuilder creates a builder for h.
func NewBuilder(h Header, opts ...BuilderOption) *Builder {
	b := &Builder{
		header: h,
		nonce:  func() string { return "" },
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Header returns the builder's identities.
func (b *Builder) Header() Header { return b.header }

// Timestamp renders the current time as an EBICS timestamp.
func (b *Builder) Timestamp() string {
	return b.now().UTC().Format(timestampLayout)
}

func (b *Builder) newRequest(root string) *Request {
	return &Request{
		XMLName:  xml.Name{Space: b.header.Version.Namespace(), Local: root},
		Version:  string(b.header.Version),
		Revision: 1,
		Header:   RequestHeader{Authenticate: true},
	}
}

func (b *Builder) product() *ProductElement {
	if b.header.Product.Name == "" {
		return nil
	}
	return &ProductElement{
		Language:    b.header.Product.Language,
		InstituteID: b.header.Product.InstituteID,
		Name:        b.header.Product.Name,
	}
}

func (b *Builder) adminDetails(t order.AdminOrderType, attr string) *OrderDetails {
	if b.header.Version == H005 {
		return &OrderDetails{AdminOrderType: string(t)}
	}
	return &OrderDetails{OrderType: string(t), OrderAttribute: attr}
}

func (b *Builder) unsecured(t order.AdminOrderType, orderData []byte) *Request {
	r := b.newRequest(RootUnsecuredRequest)
	r.Header.Static = StaticHeader{
		HostID:         b.header.HostID,
		PartnerID:      b.header.PartnerID,
		UserID:         b.header.UserID,
		Product:        b.product(),
		OrderDetails:   b.adminDetails(t, AttrUnsignedKeyManagement),
		SecurityMedium: DefaultSecurityMedium,
	}
	r.Body.DataTransfer = &DataTransfer{OrderData: orderData}
	return r
}

// INI creates the signature key registration request. orderData is the
// compressed SignaturePubKeyOrderData.
func (b *Builder) INI(orderData []byte) *Request {
	return b.unsecured(order.AdminINI, orderData)
}

// HIA creates the authentication and encryption key registration request.
// orderData is the compressed HIARequestOrderData.
func (b *Builder) HIA(orderData []byte) *Request {
	return b.unsecured(order.AdminHIA, orderData)
}

// HPB creates the bank key retrieval request.
func (b *Builder) HPB() *Request {
	r := b.newRequest(RootNoPubKeyDigestsRequest)
	r.Header.Static = StaticHeader{
		HostID:         b.header.HostID,
		Nonce:          b.nonce(),
		Timestamp:      b.Timestamp(),
		PartnerID:      b.header.PartnerID,
		UserID:         b.header.UserID,
		Product:        b.product(),
		OrderDetails:   b.adminDetails(order.AdminHPB, AttrDownload),
		SecurityMedium: DefaultSecurityMedium,
	}
	return r
}

// UploadInit holds the content of an upload initialisation request.
type UploadInit struct {
	Order       order.UploadOrder
	OrderID     string
	Params      map[string]string
	NumSegments int
	Digests     Digests

	// TransactionKey is wrapped for the bank key named by Digests.Encryption.
	TransactionKey []byte
	SignatureData  []byte
}

// UploadInit creates the first request of an upload transaction.
func (b *Builder) UploadInit(u UploadInit) (*Request, error) {
	details, err := b.uploadDetails(u)
	if err != nil {
		return nil, err
	}
	return b.signedInit(details, u.Digests, u.NumSegments, u.TransactionKey, u.SignatureData), nil
}

// SPR creates the subscriber revocation request: an upload initialisation
// without segments whose ES covers a single space.
func (b *Builder) SPR(orderID string, digests Digests, transactionKey, signatureData []byte) *Request {
	details := b.adminDetails(order.AdminSPR, AttrRevocation)
	if b.header.Version == H004 {
		details.OrderID = orderID
		details.StandardOrderParams = &StandardOrderParams{}
	}
	return b.signedInit(details, digests, 0, transactionKey, signatureData)
}

func (b *Builder) signedInit(details *OrderDetails, digests Digests, numSegments int, transactionKey, signatureData []byte) *Request {
	r := b.newRequest(RootRequest)
	r.Header.Static = StaticHeader{
		HostID:            b.header.HostID,
		Nonce:             b.nonce(),
		Timestamp:         b.Timestamp(),
		PartnerID:         b.header.PartnerID,
		UserID:            b.header.UserID,
		Product:           b.product(),
		OrderDetails:      details,
		BankPubKeyDigests: bankDigests(digests),
		SecurityMedium:    DefaultSecurityMedium,
		NumSegments:       lo.ToPtr(numSegments),
	}
	r.Header.Mutable.TransactionPhase = PhaseInitialisation
	r.Body.DataTransfer = &DataTransfer{
		DataEncryptionInfo: &DataEncryptionInfo{
			Authenticate:           true,
			EncryptionPubKeyDigest: encryptionDigest(digests),
			TransactionKey:         transactionKey,
		},
		SignatureData: &SignatureData{Authenticate: true, Value: signatureData},
	}
	return r
}

// UploadTransfer creates the request carrying segment n of an upload.
func (b *Builder) UploadTransfer(transactionID []byte, n int, last bool, data []byte) *Request {
	r := b.transfer(transactionID, PhaseTransfer, n, last)
	r.Body.DataTransfer = &DataTransfer{OrderData: data}
	return r
}

// DownloadInit holds the content of a download initialisation request.
type DownloadInit struct {
	Order   order.DownloadOrder
	Params  map[string]string
	Digests Digests
}

// DownloadInit creates the first request of a download transaction.
func (b *Builder) DownloadInit(d DownloadInit) (*Request, error) {
	details, err := b.downloadDetails(d)
	if err != nil {
		return nil, err
	}
	r := b.newRequest(RootRequest)
	r.Header.Static = StaticHeader{
		HostID:            b.header.HostID,
		Nonce:             b.nonce(),
		Timestamp:         b.Timestamp(),
		PartnerID:         b.header.PartnerID,
		UserID:            b.header.UserID,
		Product:           b.product(),
		OrderDetails:      details,
		BankPubKeyDigests: bankDigests(d.Digests),
		SecurityMedium:    DefaultSecurityMedium,
	}
	r.Header.Mutable.TransactionPhase = PhaseInitialisation
	return r, nil
}

// DownloadTransfer requests segment n of a download.
func (b *Builder) DownloadTransfer(transactionID []byte, n int, last bool) *Request {
	return b.transfer(transactionID, PhaseTransfer, n, last)
}

// Receipt acknowledges a download; code 0 is a positive receipt.
func (b *Builder) Receipt(transactionID []byte, code int) *Request {
	r := b.newRequest(RootRequest)
	r.Header.Static = StaticHeader{HostID: b.header.HostID, TransactionID: transactionID}
	r.Header.Mutable.TransactionPhase = PhaseReceipt
	r.Body.TransferReceipt = &TransferReceipt{Authenticate: true, ReceiptCode: code}
	return r
}

func (b *Builder) transfer(transactionID []byte, phase string, n int, last bool) *Request {
	r := b.newRequest(RootRequest)
	r.Header.Static = StaticHeader{HostID: b.header.HostID, TransactionID: transactionID}
	r.Header.Mutable = MutableHeader{
		TransactionPhase: phase,
		SegmentNumber:    &SegmentNumber{Number: n, LastSegment: last},
	}
	return r
}

func (b *Builder) uploadDetails(u UploadInit) (*OrderDetails, error) {
	switch d := u.Order.Descriptor().(type) {
	case order.Legacy:
		if b.header.Version == H005 {
			if d.BusinessType != "" {
				return nil, fmt.Errorf("%w: %s in %s", ErrUnsupportedDescriptor, d, b.header.Version)
			}
			return &OrderDetails{AdminOrderType: string(d.AdminType)}, nil
		}
		details := &OrderDetails{
			OrderType:      d.OrderType(),
			OrderID:        u.OrderID,
			OrderAttribute: AttrSignedUpload,
		}
		if !u.Order.SignatureFlag() {
			details.OrderAttribute = AttrDownload
		}
		params := parameters(u.Params)
		if format, ok := d.FileFormat(); ok {
			details.FULOrderParams = &FULOrderParams{Parameters: params, FileFormat: FileFormat{Value: format}}
		} else if len(params) > 0 {
			details.GenericOrderParams = &GenericOrderParams{Parameters: params}
		} else {
			details.StandardOrderParams = &StandardOrderParams{}
		}
		return details, nil
	case order.Structured:
		if b.header.Version != H005 {
			return nil, fmt.Errorf("%w: service %s in %s", ErrUnsupportedDescriptor, d, b.header.Version)
		}
		p := &BTUOrderParams{Service: service(d)}
		if u.Order.SignatureFlag() {
			p.SignatureFlag = &SignatureFlag{RequestEDS: u.Order.RequestEDS()}
		}
		return &OrderDetails{AdminOrderType: string(order.AdminBTU), BTUOrderParams: p}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedDescriptor, d)
	}
}

func (b *Builder) downloadDetails(dl DownloadInit) (*OrderDetails, error) {
	var dateRange *DateRange
	if r, ok := dl.Order.DateRange(); ok {
		dateRange = &DateRange{Start: r.Start.Format(dateLayout), End: r.End.Format(dateLayout)}
	}

	switch d := dl.Order.Descriptor().(type) {
	case order.Legacy:
		if b.header.Version == H005 {
			if d.BusinessType != "" {
				return nil, fmt.Errorf("%w: %s in %s", ErrUnsupportedDescriptor, d, b.header.Version)
			}
			return &OrderDetails{
				AdminOrderType:      string(d.AdminType),
				StandardOrderParams: &StandardOrderParams{DateRange: dateRange},
			}, nil
		}
		details := &OrderDetails{OrderType: d.OrderType(), OrderAttribute: AttrDownload}
		params := parameters(dl.Params)
		if format, ok := d.FileFormat(); ok {
			details.FDLOrderParams = &FDLOrderParams{DateRange: dateRange, Parameters: params, FileFormat: FileFormat{Value: format}}
		} else if len(params) > 0 && dateRange == nil {
			details.GenericOrderParams = &GenericOrderParams{Parameters: params}
		} else {
			details.StandardOrderParams = &StandardOrderParams{DateRange: dateRange}
		}
		return details, nil
	case order.Structured:
		if b.header.Version != H005 {
			return nil, fmt.Errorf("%w: service %s in %s", ErrUnsupportedDescriptor, d, b.header.Version)
		}
		return &OrderDetails{
			AdminOrderType: string(order.AdminBTD),
			BTDOrderParams: &BTDOrderParams{Service: service(d), DateRange: dateRange},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedDescriptor, d)
	}
}

func service(s order.Structured) Service {
	svc := Service{
		ServiceName:   s.Service,
		Scope:         s.Scope,
		ServiceOption: s.Option,
		MsgName: MsgName{
			Version: s.Version,
			Variant: s.Variant,
			Format:  s.Format,
			Value:   s.MessageName,
		},
	}
	if s.Container != "" {
		svc.Container = &Container{ContainerType: s.Container}
	}
	return svc
}

// parameters converts a map into Parameter elements sorted by name.
func parameters(params map[string]string) []Parameter {
	keys := lo.Keys(params)
	slices.Sort(keys)
	return lo.Map(keys, func(k string, _ int) Parameter {
		return Parameter{Name: k, Value: ParameterValue{Type: "string", Value: params[k]}}
	})
}

func bankDigests(d Digests) *BankPubKeyDigests {
	return &BankPubKeyDigests{
		Authentication: PubKeyDigest{Version: "X002", Algorithm: algorithmSHA256, Value: d.Authentication},
		Encryption:     encryptionDigest(d),
	}
}

func encryptionDigest(d Digests) PubKeyDigest {
	return PubKeyDigest{Version: "E002", Algorithm: algorithmSHA256, Value: d.Encryption}
}

const algorithmSHA256 = "http://www.w3.org/2001/04/xmlenc#sha256"

// Marshal serializes the request with an XML declaration.
func (r *Request) Marshal() ([]byte, error) {
	return MarshalDocument(r)
}

// ParseRequest parses a request document.
func ParseRequest(data []byte) (*Request, error) {
	var r Request
	if err := UnmarshalDocument(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// OrderType returns the order type named in the request, if any.
func (r *Request) OrderType() string {
	if r.Header.Static.OrderDetails == nil {
		return ""
	}
	return r.Header.Static.OrderDetails.Type()
}
