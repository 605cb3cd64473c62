package security

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"strings"
	"time"
)

// DefaultKeySize is the RSA modulus length used for generated keys.
const DefaultKeySize = 2048

// Provider is the cryptographic context handed to everything that needs
// randomness, a clock or key generation. It replaces any process-wide
// provider registration: construct one and pass it on.
type Provider struct {
	random  io.Reader
	now     func() time.Time
	keySize int
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithRandom sets the entropy source.
func WithRandom(r io.Reader) ProviderOption {
	return func(p *Provider) {
		p.random = r
	}
}

// WithClock sets the clock used for timestamps and certificate validity.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) {
		p.now = now
	}
}

// WithKeySize sets the RSA modulus length for generated key pairs.
func WithKeySize(bits int) ProviderOption {
	return func(p *Provider) {
		p.keySize = bits
	}
}

// NewProvider creates a Provider backed by crypto/rand and the wall clock
// unless overridden.
func NewProvider(opts ...ProviderOption) *Provider {
	p := &Provider{
		random:  rand.Reader,
		now:     time.Now,
		keySize: DefaultKeySize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Random returns the provider's entropy source.
func (p *Provider) Random() io.Reader {
	return p.random
}

// Now returns the current time in UTC.
func (p *Provider) Now() time.Time {
	return p.now().UTC()
}

// KeySize returns the RSA modulus length for generated keys.
func (p *Provider) KeySize() int {
	return p.keySize
}

// NewNonce returns 16 bytes from the provider's entropy source as uppercase
// hex.
func (p *Provider) NewNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(p.random, b); err != nil {
		return "", cryptoErr("read nonce", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}
