package keystore

import (
	"fmt"

	"github.com/sirosfoundation/go-ebics/internal/config"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// Open creates the Store described by the configuration
func Open(cfg *config.KeystoreConfig, provider *security.Provider) (Store, error) {
	opts := []Option{WithProvider(provider)}

	switch cfg.SignatureMode {
	case "file", "":
	case "pkcs11":
		source, err := newPKCS11Source(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithSignatureSource(source))
	default:
		return nil, fmt.Errorf("unknown signature mode: %s", cfg.SignatureMode)
	}
	return NewFileStore(cfg.Dir, cfg.Password, opts...)
}

func newPKCS11Source(cfg *config.KeystoreConfig) (*PKCS11Source, error) {
	p11cfg := &PKCS11Config{
		ModulePath:      cfg.PKCS11.ModulePath,
		SlotLabel:       cfg.PKCS11.SlotLabel,
		PIN:             cfg.PKCS11.PIN,
		KeyLabelPattern: cfg.PKCS11.KeyLabelPattern,
	}
	if cfg.PKCS11.SlotID > 0 {
		slotID := cfg.PKCS11.SlotID
		p11cfg.SlotID = &slotID
	}
	return NewPKCS11Source(p11cfg)
}
