package ebicstest

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/sirosfoundation/go-ebics/pkg/transport"
)

// WithTLS serves the bank through transport.HTTPSServer with a self-signed
// certificate for 127.0.0.1. Clients trust it through RootCAs.
func WithTLS() Option {
	return func(b *Bank) { b.useTLS = true }
}

// RootCAs returns the pool that verifies the bank's TLS certificate. It is
// nil unless the bank was created WithTLS.
func (b *Bank) RootCAs() *x509.CertPool { return b.roots }

func (b *Bank) serveTLS(tb testing.TB) {
	tb.Helper()
	cert, err := selfSigned()
	if err != nil {
		tb.Fatalf("create TLS certificate: %v", err)
	}
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("listen: %v", err)
	}

	config := transport.DefaultHTTPSConfig()
	config.Certificates = []tls.Certificate{cert}
	config.Timeout = 10 * time.Second
	srv := transport.NewHTTPSServer(l.Addr().String(), config, b)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(l) }()
	tb.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		if err := <-done; err != nil && !errors.Is(err, http.ErrServerClosed) {
			tb.Errorf("serve TLS: %v", err)
		}
	})

	b.roots = x509.NewCertPool()
	b.roots.AddCert(cert.Leaf)
	b.baseURL = "https://" + l.Addr().String()
}

func selfSigned() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: HostID},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, nil
}
