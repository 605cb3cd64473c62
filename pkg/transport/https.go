package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// TLS version constants
const (
	TLS12 = tls.VersionTLS12
	TLS13 = tls.VersionTLS13
)

// ContentType is the media type of EBICS requests and responses.
const ContentType = "text/xml; charset=UTF-8"

// DefaultMaxResponseSize bounds the response body read from the bank.
const DefaultMaxResponseSize = 64 << 20

// Recommended TLS 1.2 cipher suites
var RecommendedTLS12CipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// ErrTransport is matched by every TransportError.
var ErrTransport = errors.New("ebics transport error")

// ErrNoCertificates is returned when a server is started without a TLS
// certificate.
var ErrNoCertificates = errors.New("no TLS certificates configured")

// TransportError is a failure to exchange a document with the bank.
type TransportError struct {
	URL        string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: unexpected status code %d: %s", ErrTransport, e.URL, e.StatusCode, string(e.Body))
	}
	return fmt.Sprintf("%s: %s: %v", ErrTransport, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// HTTPSConfig contains HTTPS client/server configuration
type HTTPSConfig struct {
	MinTLSVersion      uint16
	MaxTLSVersion      uint16
	CipherSuites       []uint16
	ClientAuth         tls.ClientAuthType
	Certificates       []tls.Certificate
	RootCAs            *x509.CertPool
	ClientCAs          *x509.CertPool
	Timeout            time.Duration
	IdleConnTimeout    time.Duration
	MaxResponseSize    int64
	InsecureSkipVerify bool
	UserAgent          string
}

// DefaultHTTPSConfig returns a default HTTPS configuration
func DefaultHTTPSConfig() *HTTPSConfig {
	return &HTTPSConfig{
		MinTLSVersion:   TLS12,
		MaxTLSVersion:   TLS13,
		CipherSuites:    RecommendedTLS12CipherSuites,
		ClientAuth:      tls.NoClientCert,
		Timeout:         30 * time.Second,
		IdleConnTimeout: 90 * time.Second,
		MaxResponseSize: DefaultMaxResponseSize,
		UserAgent:       "go-ebics/1.0",
	}
}

// HTTPSClient posts EBICS documents over HTTPS
type HTTPSClient struct {
	client *http.Client
	config *HTTPSConfig
}

// NewHTTPSClient creates a new HTTPS client
func NewHTTPSClient(config *HTTPSConfig) *HTTPSClient {
	if config == nil {
		config = DefaultHTTPSConfig()
	}
	if config.MaxResponseSize <= 0 {
		config.MaxResponseSize = DefaultMaxResponseSize
	}
	if config.UserAgent == "" {
		config.UserAgent = "go-ebics/1.0"
	}

	tlsConfig := &tls.Config{
		MinVersion:         config.MinTLSVersion,
		MaxVersion:         config.MaxTLSVersion,
		CipherSuites:       config.CipherSuites,
		Certificates:       config.Certificates,
		RootCAs:            config.RootCAs,
		InsecureSkipVerify: config.InsecureSkipVerify, //nolint:gosec // opt-in for bank test systems
	}

	transport := &http.Transport{
		TLSClientConfig:     tlsConfig,
		IdleConnTimeout:     config.IdleConnTimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
	}

	return &HTTPSClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		config: config,
	}
}

// NewHTTPSClientWith wraps an existing http.Client, as returned by
// httptest.Server.Client.
func NewHTTPSClientWith(client *http.Client) *HTTPSClient {
	config := DefaultHTTPSConfig()
	return &HTTPSClient{client: client, config: config}
}

// Send posts document to url and returns the response body.
func (c *HTTPSClient) Send(ctx context.Context, url string, document []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(document))
	if err != nil {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxResponseSize+1))
	if err != nil {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if int64(len(body)) > c.config.MaxResponseSize {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("response exceeds %d bytes", c.config.MaxResponseSize)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &TransportError{URL: url, StatusCode: resp.StatusCode, Body: body}
	}

	return body, nil
}

// Handler processes one EBICS request document
type Handler interface {
	HandleRequest(ctx context.Context, document []byte) ([]byte, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, document []byte) ([]byte, error)

func (f HandlerFunc) HandleRequest(ctx context.Context, document []byte) ([]byte, error) {
	return f(ctx, document)
}

// HTTPHandler serves h over HTTP POST.
func HTTPHandler(h Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		serve(h, w, r)
	})
}

func serve(h Handler, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	response, err := h.HandleRequest(r.Context(), body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to process request: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(response)
}

// HTTPSServer serves EBICS requests over HTTPS
type HTTPSServer struct {
	server  *http.Server
	config  *HTTPSConfig
	handler Handler
}

// NewHTTPSServer creates a new HTTPS server
func NewHTTPSServer(addr string, config *HTTPSConfig, handler Handler) *HTTPSServer {
	if config == nil {
		config = DefaultHTTPSConfig()
	}

	tlsConfig := &tls.Config{
		MinVersion:   config.MinTLSVersion,
		MaxVersion:   config.MaxTLSVersion,
		CipherSuites: config.CipherSuites,
		Certificates: config.Certificates,
		ClientCAs:    config.ClientCAs,
		ClientAuth:   config.ClientAuth,
	}

	s := &HTTPSServer{
		config:  config,
		handler: handler,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ebics", s.handleEBICS)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		TLSConfig:    tlsConfig,
		ReadTimeout:  config.Timeout,
		WriteTimeout: config.Timeout,
		IdleTimeout:  config.IdleConnTimeout,
	}

	return s
}

func (s *HTTPSServer) handleEBICS(w http.ResponseWriter, r *http.Request) {
	serve(s.handler, w, r)
}

// Start listens on the configured address and serves HTTPS
func (s *HTTPSServer) Start() error {
	if len(s.config.Certificates) == 0 {
		return ErrNoCertificates
	}
	return s.server.ListenAndServeTLS("", "")
}

// Serve accepts HTTPS connections on l.
func (s *HTTPSServer) Serve(l net.Listener) error {
	if len(s.config.Certificates) == 0 {
		return ErrNoCertificates
	}
	return s.server.ServeTLS(l, "", "")
}

// Shutdown gracefully shuts down the server
func (s *HTTPSServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
