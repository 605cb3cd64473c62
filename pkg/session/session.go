package session

import (
	"fmt"
	"maps"

	"github.com/go-playground/validator/v10"

	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// User is the EBICS subscriber.
type User struct {
	ID      string          `validate:"required,max=35"`
	Name    string
	DN      string
	Version message.Version `validate:"required,oneof=H004 H005"`
	Status  Status
	Keys    *security.KeyMaterial `validate:"-"`
}

// Bank is the EBICS host the subscriber talks to.
type Bank struct {
	URL    string `validate:"required,url"`
	HostID string `validate:"required,max=35"`
	Name   string
	// UseCertificates selects X.509 certificates instead of bare keys for
	// key exchange and key hashes.
	UseCertificates bool
	// Keys is nil until HPB succeeded.
	Keys *security.BankKeys `validate:"-"`
	// Hashes printed on the bank's letter; nil skips the check in HPB.
	ExpectedAuthenticationHash []byte
	ExpectedEncryptionHash     []byte
}

// DigestMode returns the key hash mode agreed with the bank.
func (b *Bank) DigestMode() security.DigestMode {
	if b.UseCertificates {
		return security.DigestCertificate
	}
	return security.DigestPublicKey
}

// Partner is the customer contract and owner of the order id sequence.
type Partner struct {
	ID           string `validate:"required,max=35"`
	OrderCounter int
}

// NextOrderID advances the partner's counter and returns the new order id.
// The caller persists OrderCounter afterwards.
func (p *Partner) NextOrderID() string {
	id, next := NextOrderID(p.OrderCounter)
	p.OrderCounter = next
	return id
}

// Product identifies the client software towards the bank.
type Product struct {
	Name        string `validate:"required"`
	Language    string `validate:"omitempty,len=2"`
	InstituteID string
}

// Session is the identity set for one operation.
type Session struct {
	User    *User    `validate:"required"`
	Bank    *Bank    `validate:"required"`
	Partner *Partner `validate:"required"`
	Product Product
	Params  map[string]string
}

var validate = validator.New()

// New creates a session and validates its identities.
func New(user *User, bank *Bank, partner *Partner, product Product, params map[string]string) (*Session, error) {
	s := &Session{
		User:    user,
		Bank:    bank,
		Partner: partner,
		Product: product,
		Params:  maps.Clone(params),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the identity fields.
func (s *Session) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	return nil
}

// Param returns an ad hoc parameter.
func (s *Session) Param(key string) (string, bool) {
	v, ok := s.Params[key]
	return v, ok
}

// Header returns the identity fields every request carries.
func (s *Session) Header() message.Header {
	return message.Header{
		Version:   s.User.Version,
		HostID:    s.Bank.HostID,
		PartnerID: s.Partner.ID,
		UserID:    s.User.ID,
		Product: message.Product{
			Name:        s.Product.Name,
			Language:    s.Product.Language,
			InstituteID: s.Product.InstituteID,
		},
	}
}
