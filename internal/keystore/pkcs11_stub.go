//go:build !pkcs11

package keystore

import (
	"context"
	"errors"

	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// PKCS11Source is a stub that returns an error when PKCS#11 support is not compiled in.
type PKCS11Source struct{}

// PKCS11Config holds configuration for the PKCS#11 source
type PKCS11Config struct {
	ModulePath      string
	SlotID          *uint
	SlotLabel       string
	PIN             string
	KeyLabelPattern string
}

// ErrPKCS11NotSupported is returned when PKCS#11 operations are attempted
// but the binary was not compiled with PKCS#11 support.
var ErrPKCS11NotSupported = errors.New("PKCS#11 support not compiled in (build with -tags pkcs11)")

// NewPKCS11Source returns an error because PKCS#11 is not compiled in.
func NewPKCS11Source(cfg *PKCS11Config) (*PKCS11Source, error) {
	return nil, ErrPKCS11NotSupported
}

// SignatureKey returns an error because PKCS#11 is not compiled in.
func (p *PKCS11Source) SignatureKey(ctx context.Context, userID string) (security.KeyPair, error) {
	return security.KeyPair{}, ErrPKCS11NotSupported
}

// Close is a no-op.
func (p *PKCS11Source) Close() error {
	return nil
}
