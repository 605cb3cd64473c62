package message

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/xml"
	"errors"
	"fmt"
	"math/big"
)

// X509Data carries a certificate in the XML-DSig namespace.
type X509Data struct {
	XMLName          xml.Name          `xml:"http://www.w3.org/2000/09/xmldsig# X509Data"`
	X509IssuerSerial *X509IssuerSerial `xml:"X509IssuerSerial,omitempty"`
	X509SubjectName  string            `xml:"X509SubjectName,omitempty"`
	X509Certificate  Base64            `xml:"X509Certificate"`
}

type X509IssuerSerial struct {
	X509IssuerName   string `xml:"X509IssuerName"`
	X509SerialNumber string `xml:"X509SerialNumber"`
}

// RSAKeyValue is a bare RSA public key in the XML-DSig namespace.
type RSAKeyValue struct {
	XMLName  xml.Name `xml:"http://www.w3.org/2000/09/xmldsig# RSAKeyValue"`
	Modulus  Base64   `xml:"Modulus"`
	Exponent Base64   `xml:"Exponent"`
}

// PubKeyValue wraps a bare key with its creation time.
type PubKeyValue struct {
	RSAKeyValue RSAKeyValue `xml:"RSAKeyValue"`
	TimeStamp   string      `xml:"TimeStamp,omitempty"`
}

// PubKeyInfo is a subscriber or bank key as exchanged in INI, HIA and HPB.
// Exactly one of the version fields is set.
type PubKeyInfo struct {
	X509Data              *X509Data    `xml:"X509Data,omitempty"`
	PubKeyValue           *PubKeyValue `xml:"PubKeyValue,omitempty"`
	SignatureVersion      string       `xml:"SignatureVersion,omitempty"`
	AuthenticationVersion string       `xml:"AuthenticationVersion,omitempty"`
	EncryptionVersion     string       `xml:"EncryptionVersion,omitempty"`
}

// NewPubKeyInfo builds a key info element. withKeyValue adds the bare key,
// cert the certificate; at least one must be present.
func NewPubKeyInfo(pub *rsa.PublicKey, cert *x509.Certificate, withKeyValue bool, timestamp string) (*PubKeyInfo, error) {
	info := &PubKeyInfo{}
	if cert != nil {
		info.X509Data = &X509Data{
			X509IssuerSerial: &X509IssuerSerial{
				X509IssuerName:   cert.Issuer.String(),
				X509SerialNumber: cert.SerialNumber.String(),
			},
			X509SubjectName: cert.Subject.String(),
			X509Certificate: cert.Raw,
		}
	}
	if withKeyValue {
		if pub == nil {
			return nil, errors.New("public key is required")
		}
		info.PubKeyValue = &PubKeyValue{
			RSAKeyValue: RSAKeyValue{
				Modulus:  pub.N.Bytes(),
				Exponent: big.NewInt(int64(pub.E)).Bytes(),
			},
			TimeStamp: timestamp,
		}
	}
	if info.X509Data == nil && info.PubKeyValue == nil {
		return nil, errors.New("key info needs a certificate or a bare key")
	}
	return info, nil
}

// PublicKey returns the RSA key from PubKeyValue, or from the certificate
// when no bare key is present.
func (p *PubKeyInfo) PublicKey() (*rsa.PublicKey, error) {
	if p.PubKeyValue != nil {
		kv := p.PubKeyValue.RSAKeyValue
		if len(kv.Modulus) == 0 || len(kv.Exponent) == 0 {
			return nil, errors.New("incomplete RSAKeyValue")
		}
		e := new(big.Int).SetBytes(kv.Exponent)
		if !e.IsInt64() || e.Int64() > 1<<31-1 {
			return nil, errors.New("RSA exponent too large")
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(kv.Modulus), E: int(e.Int64())}, nil
	}
	cert, err := p.Certificate()
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, errors.New("key info carries no key")
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unsupported public key type %T", cert.PublicKey)
	}
	return pub, nil
}

// Certificate parses X509Data; it returns nil without error when absent.
func (p *PubKeyInfo) Certificate() (*x509.Certificate, error) {
	if p.X509Data == nil || len(p.X509Data.X509Certificate) == 0 {
		return nil, nil
	}
	cert, err := x509.ParseCertificate(p.X509Data.X509Certificate)
	if err != nil {
		return nil, fmt.Errorf("invalid certificate: %w", err)
	}
	return cert, nil
}

// SignaturePubKeyOrderData is the INI order data.
type SignaturePubKeyOrderData struct {
	XMLName             xml.Name
	SignaturePubKeyInfo PubKeyInfo `xml:"SignaturePubKeyInfo"`
	PartnerID           string     `xml:"PartnerID"`
	UserID              string     `xml:"UserID"`
}

// NewSignaturePubKeyOrderData creates INI order data in the namespace of v.
func NewSignaturePubKeyOrderData(v Version, info PubKeyInfo, partnerID, userID string) *SignaturePubKeyOrderData {
	return &SignaturePubKeyOrderData{
		XMLName:             xml.Name{Space: v.SignatureNamespace(), Local: "SignaturePubKeyOrderData"},
		SignaturePubKeyInfo: info,
		PartnerID:           partnerID,
		UserID:              userID,
	}
}

// HIARequestOrderData is the HIA order data.
type HIARequestOrderData struct {
	XMLName                  xml.Name
	AuthenticationPubKeyInfo PubKeyInfo `xml:"AuthenticationPubKeyInfo"`
	EncryptionPubKeyInfo     PubKeyInfo `xml:"EncryptionPubKeyInfo"`
	PartnerID                string     `xml:"PartnerID"`
	UserID                   string     `xml:"UserID"`
}

// NewHIARequestOrderData creates HIA order data in the namespace of v.
func NewHIARequestOrderData(v Version, auth, enc PubKeyInfo, partnerID, userID string) *HIARequestOrderData {
	return &HIARequestOrderData{
		XMLName:                  xml.Name{Space: v.Namespace(), Local: "HIARequestOrderData"},
		AuthenticationPubKeyInfo: auth,
		EncryptionPubKeyInfo:     enc,
		PartnerID:                partnerID,
		UserID:                   userID,
	}
}

// HPBResponseOrderData is the decrypted HPB response.
type HPBResponseOrderData struct {
	XMLName                  xml.Name
	AuthenticationPubKeyInfo PubKeyInfo `xml:"AuthenticationPubKeyInfo"`
	EncryptionPubKeyInfo     PubKeyInfo `xml:"EncryptionPubKeyInfo"`
	HostID                   string     `xml:"HostID"`
}

// NewHPBResponseOrderData creates HPB response data in the namespace of v.
func NewHPBResponseOrderData(v Version, auth, enc PubKeyInfo, hostID string) *HPBResponseOrderData {
	return &HPBResponseOrderData{
		XMLName:                  xml.Name{Space: v.Namespace(), Local: "HPBResponseOrderData"},
		AuthenticationPubKeyInfo: auth,
		EncryptionPubKeyInfo:     enc,
		HostID:                   hostID,
	}
}

// UserSignatureData carries the A005 ES of an upload.
type UserSignatureData struct {
	XMLName            xml.Name
	OrderSignatureData []OrderSignatureData `xml:"OrderSignatureData"`
}

type OrderSignatureData struct {
	SignatureVersion string `xml:"SignatureVersion"`
	SignatureValue   Base64 `xml:"SignatureValue"`
	PartnerID        string `xml:"PartnerID"`
	UserID           string `xml:"UserID"`
}

// NewUserSignatureData wraps one A005 signature value.
func NewUserSignatureData(v Version, signature []byte, partnerID, userID string) *UserSignatureData {
	return &UserSignatureData{
		XMLName: xml.Name{Space: v.SignatureNamespace(), Local: "UserSignatureData"},
		OrderSignatureData: []OrderSignatureData{{
			SignatureVersion: "A005",
			SignatureValue:   signature,
			PartnerID:        partnerID,
			UserID:           userID,
		}},
	}
}

// MarshalDocument serializes any order data document with an XML declaration.
func MarshalDocument(v any) ([]byte, error) {
	out, err := xml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// UnmarshalDocument parses an order data document.
func UnmarshalDocument(data []byte, v any) error {
	if err := xml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}
	return nil
}
