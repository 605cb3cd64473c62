package security

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// DigestMode selects the input of a key identity hash.
type DigestMode int

const (
	// DigestPublicKey hashes the hex exponent and modulus of a bare key.
	DigestPublicKey DigestMode = iota
	// DigestCertificate hashes the DER encoding of the certificate.
	DigestCertificate
)

func (m DigestMode) String() string {
	if m == DigestCertificate {
		return "certificate"
	}
	return "public-key"
}

// ErrDigestMode is returned when the material at hand does not fit the
// configured digest mode.
var ErrDigestMode = errors.New("key digest mode mismatch")

// KeyHash returns SHA-256 over "<exponent> <modulus>", both lowercase hex
// without leading zeros.
func KeyHash(pub *rsa.PublicKey) []byte {
	e := new(big.Int).SetInt64(int64(pub.E)).Text(16)
	n := pub.N.Text(16)
	sum := sha256.Sum256([]byte(e + " " + n))
	return sum[:]
}

// CertificateHash returns SHA-256 over the certificate's DER bytes.
func CertificateHash(cert *x509.Certificate) []byte {
	sum := sha256.Sum256(cert.Raw)
	return sum[:]
}

// Digest computes the identity hash for mode. In certificate mode a
// certificate must be present; in public-key mode pub is required and any
// certificate is ignored.
func Digest(mode DigestMode, pub *rsa.PublicKey, cert *x509.Certificate) ([]byte, error) {
	switch mode {
	case DigestCertificate:
		if cert == nil {
			return nil, cryptoErr("key digest", fmt.Errorf("%w: certificate mode without certificate", ErrDigestMode))
		}
		return CertificateHash(cert), nil
	case DigestPublicKey:
		if pub == nil {
			if cert == nil {
				return nil, cryptoErr("key digest", errors.New("no public key"))
			}
			var ok bool
			if pub, ok = cert.PublicKey.(*rsa.PublicKey); !ok {
				return nil, cryptoErr("key digest", fmt.Errorf("unsupported public key type %T", cert.PublicKey))
			}
		}
		return KeyHash(pub), nil
	default:
		return nil, cryptoErr("key digest", fmt.Errorf("unknown digest mode %d", mode))
	}
}

// FormatHash renders a hash the way it is printed on an initialisation
// letter: uppercase hex pairs separated by spaces, 16 pairs per line.
func FormatHash(h []byte) string {
	s := strings.ToUpper(hex.EncodeToString(h))
	var lines []string
	var pairs []string
	for i := 0; i < len(s); i += 2 {
		pairs = append(pairs, s[i:i+2])
		if len(pairs) == 16 {
			lines = append(lines, strings.Join(pairs, " "))
			pairs = nil
		}
	}
	if len(pairs) > 0 {
		lines = append(lines, strings.Join(pairs, " "))
	}
	return strings.Join(lines, "\n")
}
