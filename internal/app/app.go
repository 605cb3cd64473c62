package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sirosfoundation/go-ebics/internal/config"
	"github.com/sirosfoundation/go-ebics/internal/keystore"
	"github.com/sirosfoundation/go-ebics/internal/storage"
	"github.com/sirosfoundation/go-ebics/pkg/ebics"
	"github.com/sirosfoundation/go-ebics/pkg/message"
	"github.com/sirosfoundation/go-ebics/pkg/security"
	"github.com/sirosfoundation/go-ebics/pkg/session"
	"github.com/sirosfoundation/go-ebics/pkg/trace"
	"github.com/sirosfoundation/go-ebics/pkg/transport"
)

// ErrNoSubscriberKeys is returned by Session before keys were generated.
var ErrNoSubscriberKeys = errors.New("no subscriber keys, run 'keys generate' first")

// App bundles the collaborators of one configured subscriber.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Provider *security.Provider
	Storage  storage.Store
	Keys     keystore.Store
	Client   *ebics.Client
}

// Option configures New.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	transport ebics.Transport
	storage   storage.Store
	provider  *security.Provider
}

// WithLogger replaces the logger built from the logging section.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTransport replaces the HTTPS transport.
func WithTransport(t ebics.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithStorage replaces the storage built from the storage section.
func WithStorage(s storage.Store) Option {
	return func(o *options) { o.storage = s }
}

// WithProvider replaces the default crypto provider.
func WithProvider(p *security.Provider) Option {
	return func(o *options) { o.provider = p }
}

// New builds an App from cfg. The caller closes it.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = NewLogger(cfg.Logging, nil)
	}
	provider := o.provider
	if provider == nil {
		provider = security.NewProvider()
	}

	store := o.storage
	if store == nil {
		var err error
		if store, err = OpenStorage(ctx, &cfg.Storage, logger); err != nil {
			return nil, err
		}
	}

	keys, err := keystore.Open(&cfg.Keystore, provider)
	if err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("opening keystore: %w", err)
	}

	tracer := trace.Nop
	if cfg.Client.Trace {
		logSink := trace.NewLogSink(logger)
		logSink.IncludeBody = cfg.Client.TraceBodies
		tracer = trace.MultiSink(storage.NewTraceSink(store), logSink)
	}

	client, err := ebics.NewClient(&ebics.ClientConfig{
		HTTPSConfig:     httpsConfig(cfg.HTTP),
		Transport:       o.transport,
		Tracer:          tracer,
		Logger:          logger,
		VerifyResponses: cfg.Client.VerifyResponses,
	})
	if err != nil {
		_ = keys.Close()
		_ = store.Close(ctx)
		return nil, err
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Provider: provider,
		Storage:  store,
		Keys:     keys,
		Client:   client,
	}, nil
}

func httpsConfig(cfg config.HTTPConfig) *transport.HTTPSConfig {
	c := transport.DefaultHTTPSConfig()
	c.Timeout = cfg.Timeout
	c.IdleConnTimeout = cfg.IdleConnTimeout
	c.InsecureSkipVerify = cfg.InsecureSkipVerify
	if cfg.MinTLS == "1.3" {
		c.MinTLSVersion = transport.TLS13
	}
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	return c
}

// Close releases the keystore and the storage.
func (a *App) Close(ctx context.Context) error {
	return errors.Join(a.Keys.Close(), a.Storage.Close(ctx))
}

// GenerateKeys creates and stores fresh subscriber keys. Existing keys are
// only replaced when force is set.
func (a *App) GenerateKeys(ctx context.Context, force bool) (*security.KeyMaterial, error) {
	userID := a.Config.Subscriber.UserID
	if _, err := a.Keys.LoadKeys(ctx, userID); err == nil && !force {
		return nil, fmt.Errorf("keys for %s already exist", userID)
	} else if err != nil && !errors.Is(err, keystore.ErrKeyNotFound) {
		return nil, err
	}

	keys, err := a.Provider.GenerateKeyMaterial(a.Config.Subscriber.DN)
	if err != nil {
		return nil, err
	}
	if err := a.Keys.SaveKeys(ctx, userID, keys); err != nil {
		return nil, err
	}
	a.Logger.InfoContext(ctx, "subscriber keys generated", "user_id", userID)
	return keys, nil
}

// Session assembles the configured subscriber from the keystore and the
// persisted records.
func (a *App) Session(ctx context.Context) (*session.Session, error) {
	cfg := a.Config
	keys, err := a.Keys.LoadKeys(ctx, cfg.Subscriber.UserID)
	if errors.Is(err, keystore.ErrKeyNotFound) {
		return nil, ErrNoSubscriberKeys
	}
	if err != nil {
		return nil, err
	}

	status := session.StatusNew
	sub, err := a.Storage.GetSubscriber(ctx, cfg.Bank.HostID, cfg.Subscriber.PartnerID, cfg.Subscriber.UserID)
	switch {
	case err == nil:
		if status, err = session.ParseStatus(sub.Status); err != nil {
			return nil, err
		}
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("loading subscriber: %w", err)
	}

	partner := &session.Partner{ID: cfg.Subscriber.PartnerID}
	p, err := a.Storage.GetPartner(ctx, cfg.Bank.HostID, cfg.Subscriber.PartnerID)
	switch {
	case err == nil:
		partner.OrderCounter = p.OrderCounter
	case !errors.Is(err, storage.ErrNotFound):
		return nil, fmt.Errorf("loading partner: %w", err)
	}

	bank := &session.Bank{
		URL:             cfg.Bank.URL,
		HostID:          cfg.Bank.HostID,
		Name:            cfg.Bank.Name,
		UseCertificates: cfg.Bank.UseCertificates,
	}
	if bank.ExpectedAuthenticationHash, bank.ExpectedEncryptionHash, err = cfg.Bank.ExpectedHashes(); err != nil {
		return nil, err
	}
	bankKeys, err := a.Keys.LoadBankKeys(ctx, cfg.Bank.HostID)
	switch {
	case err == nil:
		bank.Keys = bankKeys
	case !errors.Is(err, keystore.ErrKeyNotFound):
		return nil, fmt.Errorf("loading bank keys: %w", err)
	}

	return session.New(
		&session.User{
			ID:      cfg.Subscriber.UserID,
			Name:    cfg.Subscriber.Name,
			DN:      cfg.Subscriber.DN,
			Version: message.Version(cfg.Subscriber.Version),
			Status:  status,
			Keys:    keys,
		},
		bank,
		partner,
		session.Product{
			Name:        cfg.Product.Name,
			Language:    cfg.Product.Language,
			InstituteID: cfg.Product.InstituteID,
		},
		cfg.Subscriber.Params,
	)
}

// Persist stores the state an operation may have changed.
func (a *App) Persist(ctx context.Context, s *session.Session) error {
	if err := a.Storage.SaveBank(ctx, &storage.Bank{
		HostID:          s.Bank.HostID,
		URL:             s.Bank.URL,
		Name:            s.Bank.Name,
		UseCertificates: s.Bank.UseCertificates,
	}); err != nil {
		return fmt.Errorf("saving bank: %w", err)
	}
	if err := a.Storage.SaveSubscriber(ctx, &storage.Subscriber{
		HostID:    s.Bank.HostID,
		PartnerID: s.Partner.ID,
		UserID:    s.User.ID,
		Name:      s.User.Name,
		DN:        s.User.DN,
		Version:   string(s.User.Version),
		Status:    s.User.Status.String(),
	}); err != nil {
		return fmt.Errorf("saving subscriber: %w", err)
	}
	if err := a.Storage.SavePartner(ctx, &storage.Partner{
		HostID:       s.Bank.HostID,
		PartnerID:    s.Partner.ID,
		OrderCounter: s.Partner.OrderCounter,
	}); err != nil {
		return fmt.Errorf("saving partner: %w", err)
	}
	if s.Bank.Keys != nil {
		if err := a.Keys.SaveBankKeys(ctx, s.Bank.HostID, s.Bank.Keys); err != nil {
			return fmt.Errorf("saving bank keys: %w", err)
		}
	}
	return nil
}
