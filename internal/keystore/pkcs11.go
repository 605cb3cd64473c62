//go:build pkcs11

package keystore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ThalesGroup/crypto11"

	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// PKCS11Source implements SignatureSource using a PKCS#11 token (HSM/smart card)
type PKCS11Source struct {
	ctx             *crypto11.Context
	keyLabelPattern string
	mu              sync.RWMutex
	keys            map[string]security.KeyPair // Cache of userID -> key pair
}

// PKCS11Config holds configuration for the PKCS#11 source
type PKCS11Config struct {
	// ModulePath is the path to the PKCS#11 library (.so/.dylib/.dll)
	ModulePath string

	// SlotID is the slot number to use (optional if SlotLabel is provided)
	SlotID *uint

	// SlotLabel is the token label to search for (optional if SlotID is provided)
	SlotLabel string

	// PIN is the user PIN for authentication
	PIN string

	// KeyLabelPattern is the pattern for key labels
	// Use {user-id} as placeholder, e.g., "ebics-{user-id}-A005"
	KeyLabelPattern string
}

// NewPKCS11Source opens the token described by cfg
func NewPKCS11Source(cfg *PKCS11Config) (*PKCS11Source, error) {
	config := &crypto11.Config{
		Path: cfg.ModulePath,
		Pin:  cfg.PIN,
	}

	if cfg.SlotID != nil {
		slotID := int(*cfg.SlotID)
		config.SlotNumber = &slotID
	}
	if cfg.SlotLabel != "" {
		config.TokenLabel = cfg.SlotLabel
	}

	ctx, err := crypto11.Configure(config)
	if err != nil {
		return nil, fmt.Errorf("configuring PKCS#11: %w", err)
	}

	pattern := cfg.KeyLabelPattern
	if pattern == "" {
		pattern = "ebics-{user-id}-A005"
	}

	return &PKCS11Source{
		ctx:             ctx,
		keyLabelPattern: pattern,
		keys:            make(map[string]security.KeyPair),
	}, nil
}

// SignatureKey returns the subscriber's A005 key pair from the token
func (p *PKCS11Source) SignatureKey(ctx context.Context, userID string) (security.KeyPair, error) {
	p.mu.RLock()
	if kp, ok := p.keys[userID]; ok {
		p.mu.RUnlock()
		return kp, nil
	}
	p.mu.RUnlock()

	label := p.keyLabel(userID)
	key, err := p.ctx.FindKeyPair(nil, []byte(label))
	if err != nil {
		return security.KeyPair{}, fmt.Errorf("finding key pair: %w", err)
	}
	if key == nil {
		return security.KeyPair{}, fmt.Errorf("%w: token label %s", ErrKeyNotFound, label)
	}

	// The certificate is optional for banks exchanging bare keys
	cert, err := p.ctx.FindCertificate(nil, []byte(label), nil)
	if err != nil {
		return security.KeyPair{}, fmt.Errorf("finding certificate: %w", err)
	}

	kp := security.KeyPair{Key: key, Certificate: cert}
	p.mu.Lock()
	p.keys[userID] = kp
	p.mu.Unlock()
	return kp, nil
}

// Close releases PKCS#11 resources
func (p *PKCS11Source) Close() error {
	return p.ctx.Close()
}

func (p *PKCS11Source) keyLabel(userID string) string {
	return strings.ReplaceAll(p.keyLabelPattern, "{user-id}", userID)
}
