package security

import (
	"bytes"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// KeyPair is a private key and its optional certificate.
// The key may live outside the process, e.g. on a PKCS#11 token.
type KeyPair struct {
	Key         crypto.Signer
	Certificate *x509.Certificate
}

// PublicKey returns the RSA public half of the pair.
func (kp KeyPair) PublicKey() (*rsa.PublicKey, error) {
	if kp.Key == nil {
		return nil, errors.New("key pair has no private key")
	}
	pub, ok := kp.Key.Public().(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("unsupported public key type %T", kp.Key.Public())
	}
	return pub, nil
}

// KeyMaterial holds a subscriber's signature, authentication and encryption
// key pairs and performs A005, X002 and E002 operations with them.
type KeyMaterial struct {
	provider       *Provider
	signature      KeyPair
	authentication KeyPair
	encryption     KeyPair
}

// NewKeyMaterial validates the three key pairs and binds them to a provider.
func NewKeyMaterial(p *Provider, signature, authentication, encryption KeyPair) (*KeyMaterial, error) {
	if p == nil {
		return nil, errors.New("crypto provider is required")
	}
	for purpose, kp := range map[KeyPurpose]KeyPair{
		PurposeSignature:      signature,
		PurposeAuthentication: authentication,
		PurposeEncryption:     encryption,
	} {
		if _, err := kp.PublicKey(); err != nil {
			return nil, fmt.Errorf("%s key: %w", purpose, err)
		}
	}
	if _, ok := encryption.Key.(crypto.Decrypter); !ok {
		return nil, fmt.Errorf("%s key does not support decryption", PurposeEncryption)
	}
	return &KeyMaterial{
		provider:       p,
		signature:      signature,
		authentication: authentication,
		encryption:     encryption,
	}, nil
}

// Provider returns the crypto context the material is bound to.
func (km *KeyMaterial) Provider() *Provider {
	return km.provider
}

// Pair returns the key pair for the given purpose.
func (km *KeyMaterial) Pair(purpose KeyPurpose) KeyPair {
	switch purpose {
	case PurposeSignature:
		return km.signature
	case PurposeAuthentication:
		return km.authentication
	default:
		return km.encryption
	}
}

// PublicKey returns the RSA public key for the given purpose.
func (km *KeyMaterial) PublicKey(purpose KeyPurpose) *rsa.PublicKey {
	// validated in NewKeyMaterial
	pub, _ := km.Pair(purpose).PublicKey()
	return pub
}

// Hash computes the identity hash of one subscriber key.
func (km *KeyMaterial) Hash(purpose KeyPurpose, mode DigestMode) ([]byte, error) {
	kp := km.Pair(purpose)
	return Digest(mode, km.PublicKey(purpose), kp.Certificate)
}

// Sign produces the A005 signature of data: CR, LF and 0x1A bytes are
// removed, the remainder hashed with SHA-256 and signed with RSA PKCS#1 v1.5.
func (km *KeyMaterial) Sign(data []byte) ([]byte, error) {
	sig, err := signSHA256(km.provider, km.signature.Key, StripControlChars(data))
	if err != nil {
		return nil, cryptoErr("sign", err)
	}
	return sig, nil
}

// Authenticate produces the X002 signature of data with the authentication key.
func (km *KeyMaterial) Authenticate(data []byte) ([]byte, error) {
	sig, err := signSHA256(km.provider, km.authentication.Key, data)
	if err != nil {
		return nil, cryptoErr("authenticate", err)
	}
	return sig, nil
}

// UnwrapKey decrypts a transaction key encrypted for the subscriber's E002 key.
// The input is processed in blocks of the modulus size and the plaintext
// blocks concatenated.
func (km *KeyMaterial) UnwrapKey(wrapped []byte) ([]byte, error) {
	key, err := unwrapBlocks(km.provider, km.encryption.Key.(crypto.Decrypter), km.PublicKey(PurposeEncryption), wrapped)
	if err != nil {
		return nil, cryptoErr("unwrap transaction key", err)
	}
	return key, nil
}

// Decrypt unwraps the transaction key and decrypts payload with it.
func (km *KeyMaterial) Decrypt(payload, wrappedKey []byte) ([]byte, error) {
	key, err := km.UnwrapKey(wrappedKey)
	if err != nil {
		return nil, err
	}
	return DecryptData(key, payload)
}

// Verify checks an A005 signature made over data.
func Verify(pub *rsa.PublicKey, data, signature []byte) error {
	digest := sha256.Sum256(StripControlChars(data))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature); err != nil {
		return cryptoErr("verify signature", err)
	}
	return nil
}

// VerifyAuthentication checks an X002 signature made over data.
func VerifyAuthentication(pub *rsa.PublicKey, data, signature []byte) error {
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signature); err != nil {
		return cryptoErr("verify authentication signature", err)
	}
	return nil
}

// StripControlChars removes every CR, LF and 0x1A (EOF) byte.
func StripControlChars(data []byte) []byte {
	if bytes.IndexAny(data, "\r\n\x1a") < 0 {
		return data
	}
	out := make([]byte, 0, len(data))
	for _, b := range data {
		if b == '\r' || b == '\n' || b == 0x1a {
			continue
		}
		out = append(out, b)
	}
	return out
}

func signSHA256(p *Provider, key crypto.Signer, data []byte) ([]byte, error) {
	if key == nil {
		return nil, errors.New("private key is required")
	}
	digest := sha256.Sum256(data)
	return key.Sign(p.Random(), digest[:], crypto.SHA256)
}

func unwrapBlocks(p *Provider, dec crypto.Decrypter, pub *rsa.PublicKey, wrapped []byte) ([]byte, error) {
	size := pub.Size()
	if len(wrapped) == 0 || len(wrapped)%size != 0 {
		return nil, fmt.Errorf("wrapped key length %d is not a multiple of %d", len(wrapped), size)
	}
	var out []byte
	for off := 0; off < len(wrapped); off += size {
		// nil options select PKCS#1 v1.5
		plain, err := dec.Decrypt(p.Random(), wrapped[off:off+size], nil)
		if err != nil {
			return nil, err
		}
		out = append(out, plain...)
	}
	return out, nil
}

// GenerateKeyMaterial creates three fresh RSA key pairs with self-signed
// certificates issued to dn.
func (p *Provider) GenerateKeyMaterial(dn string) (*KeyMaterial, error) {
	pairs := make(map[KeyPurpose]KeyPair, 3)
	for _, purpose := range Purposes() {
		kp, err := p.GenerateKeyPair(purpose, dn)
		if err != nil {
			return nil, err
		}
		pairs[purpose] = kp
	}
	return NewKeyMaterial(p, pairs[PurposeSignature], pairs[PurposeAuthentication], pairs[PurposeEncryption])
}

// GenerateKeyPair creates one RSA key pair and a self-signed certificate
// whose key usage matches purpose.
func (p *Provider) GenerateKeyPair(purpose KeyPurpose, dn string) (KeyPair, error) {
	key, err := rsa.GenerateKey(p.Random(), p.keySize)
	if err != nil {
		return KeyPair{}, cryptoErr("generate key", err)
	}

	serial, err := randSerial(p)
	if err != nil {
		return KeyPair{}, cryptoErr("generate serial", err)
	}

	usage := x509.KeyUsageDigitalSignature
	switch purpose {
	case PurposeSignature:
		usage |= x509.KeyUsageContentCommitment
	case PurposeEncryption:
		usage = x509.KeyUsageKeyEncipherment | x509.KeyUsageDataEncipherment
	}

	now := p.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               ParseDN(dn),
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.AddDate(10, 0, 0),
		KeyUsage:              usage,
		BasicConstraintsValid: true,
	}
	template.Issuer = template.Subject

	der, err := x509.CreateCertificate(p.Random(), template, template, &key.PublicKey, key)
	if err != nil {
		return KeyPair{}, cryptoErr("create certificate", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return KeyPair{}, cryptoErr("parse certificate", err)
	}
	return KeyPair{Key: key, Certificate: cert}, nil
}

func randSerial(p *Provider) (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 127)
	return rand.Int(p.Random(), limit)
}

// ParseDN turns "CN=x, O=y, C=DE" into a pkix.Name. Unknown attributes are
// ignored; a string without any '=' becomes the common name.
func ParseDN(dn string) pkix.Name {
	var name pkix.Name
	if !strings.Contains(dn, "=") {
		name.CommonName = strings.TrimSpace(dn)
		return name
	}
	for _, rdn := range strings.Split(dn, ",") {
		k, v, ok := strings.Cut(rdn, "=")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		switch strings.ToUpper(strings.TrimSpace(k)) {
		case "CN":
			name.CommonName = v
		case "O":
			name.Organization = append(name.Organization, v)
		case "OU":
			name.OrganizationalUnit = append(name.OrganizationalUnit, v)
		case "C":
			name.Country = append(name.Country, v)
		case "L":
			name.Locality = append(name.Locality, v)
		case "ST":
			name.Province = append(name.Province, v)
		}
	}
	return name
}
