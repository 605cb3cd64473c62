package keystore

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// ContainerFile is the name of the key container inside the keystore
// directory.
const ContainerFile = "keystore.enc"

const (
	kindSubscriber = "subscriber"
	kindBank       = "bank"
)

// entry is one key in the container. Subscriber entries hold a PKCS#8
// private key, bank entries a PKIX public key.
type entry struct {
	Kind        string    `json:"kind"`
	Key         []byte    `json:"key,omitempty"`
	Certificate []byte    `json:"certificate,omitempty"`
	Mode        int       `json:"mode,omitempty"`
	Created     time.Time `json:"created"`
}

type contents struct {
	Entries map[string]entry `json:"entries"`
}

// FileStore implements Store with a single password-protected container
// file: {dir}/keystore.enc
type FileStore struct {
	path      string
	password  string
	provider  *security.Provider
	signature SignatureSource
	params    scryptParams

	mu sync.Mutex
}

// Option configures a FileStore
type Option func(*FileStore)

// WithProvider binds loaded key material to p.
func WithProvider(p *security.Provider) Option {
	return func(f *FileStore) { f.provider = p }
}

// WithSignatureSource keeps the A005 key outside the container.
func WithSignatureSource(s SignatureSource) Option {
	return func(f *FileStore) { f.signature = s }
}

func withScryptParams(params scryptParams) Option {
	return func(f *FileStore) { f.params = params }
}

// NewFileStore opens the container in dir, creating the directory if needed.
// The container file itself is created on the first save.
func NewFileStore(dir, password string, opts ...Option) (*FileStore, error) {
	if password == "" {
		return nil, fmt.Errorf("keystore password is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("checking key directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("key directory is not a directory: %s", dir)
	}

	f := &FileStore{
		path:     filepath.Join(dir, ContainerFile),
		password: password,
		params:   defaultScryptParams(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.provider == nil {
		f.provider = security.NewProvider()
	}
	return f, nil
}

// SaveKeys stores the subscriber's key pairs
func (f *FileStore) SaveKeys(ctx context.Context, userID string, keys *security.KeyMaterial) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, err := f.read()
	if err != nil {
		return err
	}
	now := f.provider.Now().UTC()
	for _, purpose := range security.Purposes() {
		if purpose == security.PurposeSignature && f.signature != nil {
			continue
		}
		e, err := subscriberEntry(keys.Pair(purpose), now)
		if err != nil {
			return fmt.Errorf("%s: %w", Alias(userID, purpose), err)
		}
		c.Entries[Alias(userID, purpose)] = e
	}
	return f.write(c)
}

// LoadKeys returns the subscriber's key material
func (f *FileStore) LoadKeys(ctx context.Context, userID string) (*security.KeyMaterial, error) {
	f.mu.Lock()
	c, err := f.read()
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	pairs := make(map[security.KeyPurpose]security.KeyPair, 3)
	for _, purpose := range security.Purposes() {
		if purpose == security.PurposeSignature && f.signature != nil {
			kp, err := f.signature.SignatureKey(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("loading signature key: %w", err)
			}
			pairs[purpose] = kp
			continue
		}
		alias := Alias(userID, purpose)
		e, ok := c.Entries[alias]
		if !ok || e.Kind != kindSubscriber {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, alias)
		}
		kp, err := e.keyPair()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", alias, err)
		}
		pairs[purpose] = kp
	}
	return security.NewKeyMaterial(f.provider,
		pairs[security.PurposeSignature],
		pairs[security.PurposeAuthentication],
		pairs[security.PurposeEncryption],
	)
}

// DeleteKeys removes the subscriber's key pairs
func (f *FileStore) DeleteKeys(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, err := f.read()
	if err != nil {
		return err
	}
	found := false
	for _, purpose := range security.Purposes() {
		alias := Alias(userID, purpose)
		if _, ok := c.Entries[alias]; ok {
			delete(c.Entries, alias)
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, userID)
	}
	return f.write(c)
}

// SaveBankKeys stores the bank keys of a host
func (f *FileStore) SaveBankKeys(ctx context.Context, hostID string, keys *security.BankKeys) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, err := f.read()
	if err != nil {
		return err
	}
	now := f.provider.Now().UTC()
	for purpose, key := range map[security.KeyPurpose]struct {
		pub  *rsa.PublicKey
		cert *x509.Certificate
	}{
		security.PurposeAuthentication: {keys.Authentication, keys.AuthenticationCert},
		security.PurposeEncryption:     {keys.Encryption, keys.EncryptionCert},
	} {
		der, err := x509.MarshalPKIXPublicKey(key.pub)
		if err != nil {
			return fmt.Errorf("%s: %w", BankAlias(hostID, purpose), err)
		}
		e := entry{Kind: kindBank, Key: der, Mode: int(keys.Mode), Created: now}
		if key.cert != nil {
			e.Certificate = key.cert.Raw
		}
		c.Entries[BankAlias(hostID, purpose)] = e
	}
	return f.write(c)
}

// LoadBankKeys returns the bank keys of a host
func (f *FileStore) LoadBankKeys(ctx context.Context, hostID string) (*security.BankKeys, error) {
	f.mu.Lock()
	c, err := f.read()
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	load := func(purpose security.KeyPurpose) (*rsa.PublicKey, *x509.Certificate, security.DigestMode, error) {
		alias := BankAlias(hostID, purpose)
		e, ok := c.Entries[alias]
		if !ok || e.Kind != kindBank {
			return nil, nil, 0, fmt.Errorf("%w: %s", ErrKeyNotFound, alias)
		}
		parsed, err := x509.ParsePKIXPublicKey(e.Key)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("%s: %w", alias, err)
		}
		pub, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, nil, 0, fmt.Errorf("%s: unsupported key type %T", alias, parsed)
		}
		cert, err := e.certificate()
		if err != nil {
			return nil, nil, 0, fmt.Errorf("%s: %w", alias, err)
		}
		return pub, cert, security.DigestMode(e.Mode), nil
	}

	auth, authCert, mode, err := load(security.PurposeAuthentication)
	if err != nil {
		return nil, err
	}
	enc, encCert, _, err := load(security.PurposeEncryption)
	if err != nil {
		return nil, err
	}
	return security.NewBankKeys(mode, auth, enc, authCert, encCert)
}

// Aliases lists all stored entries
func (f *FileStore) Aliases(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c, err := f.read()
	if err != nil {
		return nil, err
	}
	aliases := lo.Keys(c.Entries)
	slices.Sort(aliases)
	return aliases, nil
}

// Close releases the signature source
func (f *FileStore) Close() error {
	if f.signature != nil {
		return f.signature.Close()
	}
	return nil
}

func (f *FileStore) read() (*contents, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return &contents{Entries: make(map[string]entry)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading keystore: %w", err)
	}
	raw, err := open(f.password, data)
	if err != nil {
		return nil, err
	}
	var c contents
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decoding keystore entries: %w", err)
	}
	if c.Entries == nil {
		c.Entries = make(map[string]entry)
	}
	return &c, nil
}

// write replaces the container atomically.
func (f *FileStore) write(c *contents) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	data, err := seal(f.password, raw, f.params)
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing keystore: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing keystore: %w", err)
	}
	return nil
}

func subscriberEntry(kp security.KeyPair, created time.Time) (entry, error) {
	priv, ok := kp.Key.(*rsa.PrivateKey)
	if !ok {
		return entry{}, fmt.Errorf("%w: %T", ErrNotExportable, kp.Key)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return entry{}, err
	}
	e := entry{Kind: kindSubscriber, Key: der, Created: created}
	if kp.Certificate != nil {
		e.Certificate = kp.Certificate.Raw
	}
	return e, nil
}

func (e entry) keyPair() (security.KeyPair, error) {
	key, err := x509.ParsePKCS8PrivateKey(e.Key)
	if err != nil {
		return security.KeyPair{}, fmt.Errorf("parsing private key: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return security.KeyPair{}, fmt.Errorf("key is not a signer")
	}
	cert, err := e.certificate()
	if err != nil {
		return security.KeyPair{}, err
	}
	return security.KeyPair{Key: signer, Certificate: cert}, nil
}

func (e entry) certificate() (*x509.Certificate, error) {
	if len(e.Certificate) == 0 {
		return nil, nil
	}
	cert, err := x509.ParseCertificate(e.Certificate)
	if err != nil {
		return nil, fmt.Errorf("parsing certificate: %w", err)
	}
	return cert, nil
}
