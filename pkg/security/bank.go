package security

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
)

// ErrBankKeyMismatch is returned when a retrieved bank key does not match
// the hash the bank published out of band.
var ErrBankKeyMismatch = errors.New("bank key hash mismatch")

// BankKeys holds the bank's X002 and E002 public keys and, in certificate
// mode, their certificates.
type BankKeys struct {
	Mode               DigestMode
	Authentication     *rsa.PublicKey
	Encryption         *rsa.PublicKey
	AuthenticationCert *x509.Certificate
	EncryptionCert     *x509.Certificate
}

// NewBankKeys validates the bank key material against mode. Certificate mode
// requires both certificates; public keys missing in that mode are taken
// from the certificates.
func NewBankKeys(mode DigestMode, auth, enc *rsa.PublicKey, authCert, encCert *x509.Certificate) (*BankKeys, error) {
	b := &BankKeys{
		Mode:               mode,
		Authentication:     auth,
		Encryption:         enc,
		AuthenticationCert: authCert,
		EncryptionCert:     encCert,
	}

	var err error
	if b.Authentication, err = resolveBankKey(mode, AuthenticationVersion, auth, authCert); err != nil {
		return nil, err
	}
	if b.Encryption, err = resolveBankKey(mode, EncryptionVersion, enc, encCert); err != nil {
		return nil, err
	}
	return b, nil
}

func resolveBankKey(mode DigestMode, version string, pub *rsa.PublicKey, cert *x509.Certificate) (*rsa.PublicKey, error) {
	if mode == DigestCertificate && cert == nil {
		return nil, fmt.Errorf("%w: bank %s key delivered without certificate", ErrDigestMode, version)
	}
	if cert != nil {
		certKey, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("bank %s certificate: unsupported key type %T", version, cert.PublicKey)
		}
		if pub != nil && !pub.Equal(certKey) {
			return nil, fmt.Errorf("bank %s key does not match its certificate", version)
		}
		pub = certKey
	}
	if pub == nil {
		return nil, fmt.Errorf("bank %s key missing", version)
	}
	return pub, nil
}

// AuthenticationDigest returns the identity hash of the bank's X002 key.
func (b *BankKeys) AuthenticationDigest() ([]byte, error) {
	return Digest(b.Mode, b.Authentication, b.AuthenticationCert)
}

// EncryptionDigest returns the identity hash of the bank's E002 key.
func (b *BankKeys) EncryptionDigest() ([]byte, error) {
	return Digest(b.Mode, b.Encryption, b.EncryptionCert)
}

// CheckDigests compares the bank key hashes with expected values. A nil
// expected hash is not checked.
func (b *BankKeys) CheckDigests(expectedAuth, expectedEnc []byte) error {
	check := func(version string, expected []byte, digest func() ([]byte, error)) error {
		if expected == nil {
			return nil
		}
		got, err := digest()
		if err != nil {
			return err
		}
		if !bytes.Equal(got, expected) {
			return fmt.Errorf("%w: %s", ErrBankKeyMismatch, version)
		}
		return nil
	}
	if err := check(AuthenticationVersion, expectedAuth, b.AuthenticationDigest); err != nil {
		return err
	}
	return check(EncryptionVersion, expectedEnc, b.EncryptionDigest)
}
