// Package keystore persists EBICS key material.
//
// Subscriber keys are kept in a password-protected container, one entry per
// key pair under the alias {userId}-{A005|X002|E002}. The bank keys fetched
// with HPB are kept next to them under {hostId}-bank-{X002|E002}.
//
// The A005 signature key can alternatively live on a PKCS#11 token (HSM or
// smart card). The container then only holds the X002 and E002 keys and the
// signature key is looked up on the token when the keys are loaded.
package keystore

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// Common errors
var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrWrongPassword   = errors.New("wrong keystore password or corrupted container")
	ErrNotExportable   = errors.New("key cannot be exported to the container")
	ErrUnsupportedFile = errors.New("unsupported keystore container version")
)

// Store persists subscriber and bank key material.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// SaveKeys stores the subscriber's key pairs, replacing existing ones.
	SaveKeys(ctx context.Context, userID string, keys *security.KeyMaterial) error

	// LoadKeys returns the subscriber's key material bound to the store's
	// crypto provider.
	LoadKeys(ctx context.Context, userID string) (*security.KeyMaterial, error)

	// DeleteKeys removes the subscriber's key pairs.
	DeleteKeys(ctx context.Context, userID string) error

	// SaveBankKeys stores the bank keys of a host.
	SaveBankKeys(ctx context.Context, hostID string, keys *security.BankKeys) error

	// LoadBankKeys returns the bank keys of a host.
	LoadBankKeys(ctx context.Context, hostID string) (*security.BankKeys, error)

	// Aliases lists all stored entries in lexical order.
	Aliases(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// Alias returns the container alias of a subscriber key.
func Alias(userID string, purpose security.KeyPurpose) string {
	return fmt.Sprintf("%s-%s", userID, purpose)
}

// BankAlias returns the container alias of a bank key.
func BankAlias(hostID string, purpose security.KeyPurpose) string {
	return fmt.Sprintf("%s-bank-%s", hostID, purpose)
}

// SignatureSource supplies an A005 key pair that is kept outside the
// container.
type SignatureSource interface {
	SignatureKey(ctx context.Context, userID string) (security.KeyPair, error)
	Close() error
}
