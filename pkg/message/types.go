// Package message provides EBICS request and response documents.
package message

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"strings"
)

// Version is an EBICS protocol version.
type Version string

const (
	H004 Version = "H004"
	H005 Version = "H005"
)

// Namespace constants
const (
	NsH004 = "urn:org:ebics:H004"
	NsH005 = "urn:org:ebics:H005"
	NsS001 = "http://www.ebics.org/S001"
	NsS002 = "http://www.ebics.org/S002"
	NsDS   = "http://www.w3.org/2000/09/xmldsig#"
)

// Namespace returns the request/response namespace of v.
func (v Version) Namespace() string {
	if v == H005 {
		return NsH005
	}
	return NsH004
}

// SignatureNamespace returns the namespace of signature order data.
func (v Version) SignatureNamespace() string {
	if v == H005 {
		return NsS002
	}
	return NsS001
}

// Validate checks that v is supported.
func (v Version) Validate() error {
	if v != H004 && v != H005 {
		return fmt.Errorf("unsupported EBICS version %q", v)
	}
	return nil
}

// Root element names
const (
	RootRequest                = "ebicsRequest"
	RootUnsecuredRequest       = "ebicsUnsecuredRequest"
	RootNoPubKeyDigestsRequest = "ebicsNoPubKeyDigestsRequest"
	RootResponse               = "ebicsResponse"
	RootKeyManagementResponse  = "ebicsKeyManagementResponse"
)

// Transaction phases
const (
	PhaseInitialisation = "Initialisation"
	PhaseTransfer       = "Transfer"
	PhaseReceipt        = "Receipt"
)

// H004 order attributes
const (
	AttrUnsignedKeyManagement = "DZNNN"
	AttrDownload              = "DZHNN"
	AttrSignedUpload          = "OZHNN"
	AttrRevocation            = "UZHNN"
)

// DefaultSecurityMedium is sent with every initialisation request.
const DefaultSecurityMedium = "0000"

// Base64 is binary content carried as xs:base64Binary.
type Base64 []byte

func (b Base64) MarshalText() ([]byte, error) {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(b)))
	base64.StdEncoding.Encode(out, b)
	return out, nil
}

// UnmarshalText decodes base64, ignoring embedded whitespace.
func (b *Base64) UnmarshalText(text []byte) error {
	clean := strings.Join(strings.Fields(string(text)), "")
	out, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return fmt.Errorf("invalid base64 content: %w", err)
	}
	*b = out
	return nil
}

// HexBinary is an xs:hexBinary value such as a transaction id.
type HexBinary []byte

func (h HexBinary) MarshalText() ([]byte, error) {
	return []byte(strings.ToUpper(hex.EncodeToString(h))), nil
}

func (h *HexBinary) UnmarshalText(text []byte) error {
	out, err := hex.DecodeString(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid hex content: %w", err)
	}
	*h = out
	return nil
}

// Request is any client request document. The root element name is kept
// in XMLName.
type Request struct {
	XMLName  xml.Name
	Version  string        `xml:"Version,attr"`
	Revision int           `xml:"Revision,attr,omitempty"`
	Header   RequestHeader `xml:"header"`
	Body     RequestBody   `xml:"body"`
}

// RequestHeader is the header of a request.
type RequestHeader struct {
	Authenticate bool          `xml:"authenticate,attr,omitempty"`
	Static       StaticHeader  `xml:"static"`
	Mutable      MutableHeader `xml:"mutable"`
}

// StaticHeader holds the fields fixed for the whole transaction.
type StaticHeader struct {
	HostID            string             `xml:"HostID"`
	Nonce             string             `xml:"Nonce,omitempty"`
	Timestamp         string             `xml:"Timestamp,omitempty"`
	PartnerID         string             `xml:"PartnerID,omitempty"`
	UserID            string             `xml:"UserID,omitempty"`
	Product           *ProductElement    `xml:"Product,omitempty"`
	OrderDetails      *OrderDetails      `xml:"OrderDetails,omitempty"`
	BankPubKeyDigests *BankPubKeyDigests `xml:"BankPubKeyDigests,omitempty"`
	SecurityMedium    string             `xml:"SecurityMedium,omitempty"`
	NumSegments       *int               `xml:"NumSegments,omitempty"`
	TransactionID     HexBinary          `xml:"TransactionID,omitempty"`
}

// ProductElement identifies the client software.
type ProductElement struct {
	Language    string `xml:"Language,attr,omitempty"`
	InstituteID string `xml:"InstituteID,attr,omitempty"`
	Name        string `xml:",chardata"`
}

// OrderDetails describes the order. H004 uses OrderType, OrderID and
// OrderAttribute; H005 uses AdminOrderType.
type OrderDetails struct {
	OrderType           string               `xml:"OrderType,omitempty"`
	AdminOrderType      string               `xml:"AdminOrderType,omitempty"`
	OrderID             string               `xml:"OrderID,omitempty"`
	OrderAttribute      string               `xml:"OrderAttribute,omitempty"`
	FULOrderParams      *FULOrderParams      `xml:"FULOrderParams,omitempty"`
	FDLOrderParams      *FDLOrderParams      `xml:"FDLOrderParams,omitempty"`
	BTUOrderParams      *BTUOrderParams      `xml:"BTUOrderParams,omitempty"`
	BTDOrderParams      *BTDOrderParams      `xml:"BTDOrderParams,omitempty"`
	StandardOrderParams *StandardOrderParams `xml:"StandardOrderParams,omitempty"`
	GenericOrderParams  *GenericOrderParams  `xml:"GenericOrderParams,omitempty"`
}

// Type returns whichever order type field is set.
func (d *OrderDetails) Type() string {
	if d.AdminOrderType != "" {
		return d.AdminOrderType
	}
	return d.OrderType
}

// Parameter is a generic name/value order parameter.
type Parameter struct {
	Name  string         `xml:"Name"`
	Value ParameterValue `xml:"Value"`
}

// ParameterValue is the typed value of a Parameter.
type ParameterValue struct {
	Type  string `xml:"Type,attr"`
	Value string `xml:",chardata"`
}

// DateRange bounds a download, dates formatted as xs:date.
type DateRange struct {
	Start string `xml:"Start"`
	End   string `xml:"End"`
}

// FileFormat names the format of a FUL or FDL file.
type FileFormat struct {
	CountryCode string `xml:"CountryCode,attr,omitempty"`
	Value       string `xml:",chardata"`
}

type FULOrderParams struct {
	Parameters []Parameter `xml:"Parameter"`
	FileFormat FileFormat  `xml:"FileFormat"`
}

type FDLOrderParams struct {
	DateRange  *DateRange  `xml:"DateRange,omitempty"`
	Parameters []Parameter `xml:"Parameter"`
	FileFormat FileFormat  `xml:"FileFormat"`
}

type StandardOrderParams struct {
	DateRange *DateRange `xml:"DateRange,omitempty"`
}

type GenericOrderParams struct {
	Parameters []Parameter `xml:"Parameter"`
}

// Service is the H005 business transaction format descriptor.
type Service struct {
	ServiceName   string     `xml:"ServiceName"`
	Scope         string     `xml:"Scope,omitempty"`
	ServiceOption string     `xml:"ServiceOption,omitempty"`
	Container     *Container `xml:"Container,omitempty"`
	MsgName       MsgName    `xml:"MsgName"`
}

type Container struct {
	ContainerType string `xml:"containerType,attr"`
}

type MsgName struct {
	Version string `xml:"version,attr,omitempty"`
	Variant string `xml:"variant,attr,omitempty"`
	Format  string `xml:"format,attr,omitempty"`
	Value   string `xml:",chardata"`
}

// SignatureFlag marks an H005 upload as carrying an ES.
type SignatureFlag struct {
	RequestEDS bool `xml:"requestEDS,attr,omitempty"`
}

type BTUOrderParams struct {
	Service       Service        `xml:"Service"`
	SignatureFlag *SignatureFlag `xml:"SignatureFlag,omitempty"`
}

type BTDOrderParams struct {
	Service   Service    `xml:"Service"`
	DateRange *DateRange `xml:"DateRange,omitempty"`
}

// BankPubKeyDigests names the bank keys the client used.
type BankPubKeyDigests struct {
	Authentication PubKeyDigest `xml:"Authentication"`
	Encryption     PubKeyDigest `xml:"Encryption"`
}

// PubKeyDigest is a key identity hash.
type PubKeyDigest struct {
	Version   string `xml:"Version,attr"`
	Algorithm string `xml:"Algorithm,attr"`
	Value     Base64 `xml:",chardata"`
}

// MutableHeader holds the fields that change per transaction step.
type MutableHeader struct {
	TransactionPhase string         `xml:"TransactionPhase,omitempty"`
	SegmentNumber    *SegmentNumber `xml:"SegmentNumber,omitempty"`
}

// SegmentNumber is a 1-based segment number with its last-segment flag.
type SegmentNumber struct {
	LastSegment bool `xml:"lastSegment,attr"`
	Number      int  `xml:",chardata"`
}

// RequestBody is the body of a request.
type RequestBody struct {
	DataTransfer    *DataTransfer    `xml:"DataTransfer,omitempty"`
	TransferReceipt *TransferReceipt `xml:"TransferReceipt,omitempty"`
}

// DataTransfer carries keys, signatures and order data.
type DataTransfer struct {
	DataEncryptionInfo *DataEncryptionInfo `xml:"DataEncryptionInfo,omitempty"`
	SignatureData      *SignatureData      `xml:"SignatureData,omitempty"`
	OrderData          Base64              `xml:"OrderData,omitempty"`
}

// DataEncryptionInfo carries the wrapped transaction key.
type DataEncryptionInfo struct {
	Authenticate           bool         `xml:"authenticate,attr,omitempty"`
	EncryptionPubKeyDigest PubKeyDigest `xml:"EncryptionPubKeyDigest"`
	TransactionKey         Base64       `xml:"TransactionKey"`
}

// SignatureData is the encrypted, compressed UserSignatureData.
type SignatureData struct {
	Authenticate bool   `xml:"authenticate,attr,omitempty"`
	Value        Base64 `xml:",chardata"`
}

// TransferReceipt acknowledges a download.
type TransferReceipt struct {
	Authenticate bool `xml:"authenticate,attr,omitempty"`
	ReceiptCode  int  `xml:"ReceiptCode"`
}

// Response is an ebicsResponse or ebicsKeyManagementResponse.
type Response struct {
	XMLName  xml.Name
	Version  string         `xml:"Version,attr"`
	Revision int            `xml:"Revision,attr,omitempty"`
	Header   ResponseHeader `xml:"header"`
	Body     ResponseBody   `xml:"body"`
}

type ResponseHeader struct {
	Authenticate bool            `xml:"authenticate,attr,omitempty"`
	Static       ResponseStatic  `xml:"static"`
	Mutable      ResponseMutable `xml:"mutable"`
}

type ResponseStatic struct {
	TransactionID HexBinary `xml:"TransactionID,omitempty"`
	NumSegments   int       `xml:"NumSegments,omitempty"`
}

type ResponseMutable struct {
	TransactionPhase string         `xml:"TransactionPhase,omitempty"`
	SegmentNumber    *SegmentNumber `xml:"SegmentNumber,omitempty"`
	OrderID          string         `xml:"OrderID,omitempty"`
	ReturnCode       string         `xml:"ReturnCode"`
	ReportText       string         `xml:"ReportText"`
}

type ResponseBody struct {
	DataTransfer           *ResponseDataTransfer `xml:"DataTransfer,omitempty"`
	ReturnCode             *BodyReturnCode       `xml:"ReturnCode,omitempty"`
	TimestampBankParameter string                `xml:"TimestampBankParameter,omitempty"`
}

type ResponseDataTransfer struct {
	DataEncryptionInfo *DataEncryptionInfo `xml:"DataEncryptionInfo,omitempty"`
	OrderData          Base64              `xml:"OrderData,omitempty"`
}

type BodyReturnCode struct {
	Authenticate bool   `xml:"authenticate,attr,omitempty"`
	Value        string `xml:",chardata"`
}
