// Package config handles configuration loading for the EBICS client.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax). A .env file next to the
// working directory is loaded first when present, so secrets like the
// keystore password can be kept out of the YAML file.
//
// # Configuration Sections
//
//   - bank: EBICS host (URL, host id, certificate mode, expected key hashes)
//   - subscriber: user and partner ids, protocol version H004 or H005
//   - product: product name and language sent with every request
//   - http: HTTPS transport settings
//   - keystore: key container location and PKCS#11 signature key
//   - storage: persistence of subscriber records and traces
//   - client: response verification and tracing
//   - logging: level and format
//
// # Example Configuration
//
//	bank:
//	  url: https://ebics.example-bank.com/ebicsweb
//	  hostId: EXAMPLEBANK
//	  useCertificates: false
//
//	subscriber:
//	  userId: USER01
//	  partnerId: PARTNER01
//	  version: H005
//
//	keystore:
//	  dir: ./keys
//	  password: ${EBICS_KEYSTORE_PASSWORD}
//
//	storage:
//	  type: badger
//	  badger:
//	    path: ./data
//
// See [Load] for loading configuration from a file.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	Bank       BankConfig       `yaml:"bank"`
	Subscriber SubscriberConfig `yaml:"subscriber"`
	Product    ProductConfig    `yaml:"product"`
	HTTP       HTTPConfig       `yaml:"http"`
	Keystore   KeystoreConfig   `yaml:"keystore"`
	Storage    StorageConfig    `yaml:"storage"`
	Client     ClientConfig     `yaml:"client"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// BankConfig identifies the EBICS host
type BankConfig struct {
	URL             string `yaml:"url" validate:"required,url"`
	HostID          string `yaml:"hostId" validate:"required,max=35"`
	Name            string `yaml:"name"`
	UseCertificates bool   `yaml:"useCertificates"`
	// Hex key hashes from the bank's letter, checked when fetching bank keys
	AuthenticationHash string `yaml:"authenticationHash"`
	EncryptionHash     string `yaml:"encryptionHash"`
}

// SubscriberConfig identifies the subscriber at the bank
type SubscriberConfig struct {
	UserID    string `yaml:"userId" validate:"required,max=35"`
	PartnerID string `yaml:"partnerId" validate:"required,max=35"`
	Name      string `yaml:"name"`
	// DN is the subject of generated certificates, defaults to CN=<userId>
	DN      string `yaml:"dn"`
	Version string `yaml:"version" validate:"oneof=H004 H005"`
	// Params are sent with every order
	Params map[string]string `yaml:"params"`
}

// ProductConfig identifies the client software
type ProductConfig struct {
	Name        string `yaml:"name" validate:"required"`
	Language    string `yaml:"language" validate:"len=2"`
	InstituteID string `yaml:"instituteId"`
}

// HTTPConfig holds HTTPS transport settings
type HTTPConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	IdleConnTimeout time.Duration `yaml:"idleConnTimeout"`
	// MinTLS is "1.2" or "1.3"
	MinTLS             string `yaml:"minTLS" validate:"oneof=1.2 1.3"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
	UserAgent          string `yaml:"userAgent"`
}

// KeystoreConfig holds the subscriber key container settings
type KeystoreConfig struct {
	// Directory holding the encrypted key container
	Dir      string `yaml:"dir" validate:"required"`
	Password string `yaml:"password"`
	// SignatureMode selects where the A005 key lives
	// - "file": in the key container
	// - "pkcs11": on a PKCS#11 token (HSM/smart card)
	SignatureMode string       `yaml:"signatureMode" validate:"oneof=file pkcs11"`
	PKCS11        PKCS11Config `yaml:"pkcs11"`
}

// PKCS11Config holds PKCS#11 token settings
type PKCS11Config struct {
	// Path to the PKCS#11 library (.so/.dylib/.dll)
	ModulePath string `yaml:"modulePath"`
	// Slot ID or label to use
	SlotID    uint   `yaml:"slotId"`
	SlotLabel string `yaml:"slotLabel"`
	// PIN for authentication (can be env var reference like ${HSM_PIN})
	PIN string `yaml:"pin"`
	// Key label pattern, {user-id} is replaced by the subscriber's user id
	KeyLabelPattern string `yaml:"keyLabelPattern"`
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	Type    string        `yaml:"type" validate:"oneof=badger mongodb"`
	Badger  BadgerConfig  `yaml:"badger"`
	MongoDB MongoDBConfig `yaml:"mongodb"`
}

// BadgerConfig holds embedded database settings
type BadgerConfig struct {
	Path string `yaml:"path"`
	// InMemory keeps everything in memory, mainly for tests
	InMemory bool `yaml:"inMemory"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
	GridFS   struct {
		BucketName     string `yaml:"bucketName"`
		ChunkSizeBytes int    `yaml:"chunkSizeBytes"`
	} `yaml:"gridfs"`
}

// ClientConfig holds EBICS client behaviour settings
type ClientConfig struct {
	VerifyResponses bool `yaml:"verifyResponses"`
	// Trace stores every request and response in the configured storage
	Trace bool `yaml:"trace"`
	// TraceBodies also logs document bodies at debug level
	TraceBodies bool `yaml:"traceBodies"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

var validate = validator.New()

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a YAML document. Environment
// variables are expanded before decoding.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bank.Name == "" {
		c.Bank.Name = c.Bank.HostID
	}
	if c.Subscriber.Version == "" {
		c.Subscriber.Version = "H005"
	}
	if c.Subscriber.Name == "" {
		c.Subscriber.Name = c.Subscriber.UserID
	}
	if c.Subscriber.DN == "" && c.Subscriber.UserID != "" {
		c.Subscriber.DN = "CN=" + c.Subscriber.UserID
	}
	if c.Product.Name == "" {
		c.Product.Name = "go-ebics"
	}
	if c.Product.Language == "" {
		c.Product.Language = "en"
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = 60 * time.Second
	}
	if c.HTTP.IdleConnTimeout == 0 {
		c.HTTP.IdleConnTimeout = 90 * time.Second
	}
	if c.HTTP.MinTLS == "" {
		c.HTTP.MinTLS = "1.2"
	}
	if c.Keystore.Dir == "" {
		c.Keystore.Dir = "./keys"
	}
	if c.Keystore.SignatureMode == "" {
		c.Keystore.SignatureMode = "file"
	}
	if c.Keystore.PKCS11.KeyLabelPattern == "" {
		c.Keystore.PKCS11.KeyLabelPattern = "ebics-{user-id}-A005"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "badger"
	}
	if c.Storage.Badger.Path == "" {
		c.Storage.Badger.Path = "./data"
	}
	if c.Storage.MongoDB.Database == "" {
		c.Storage.MongoDB.Database = "ebics"
	}
	if c.Storage.MongoDB.GridFS.BucketName == "" {
		c.Storage.MongoDB.GridFS.BucketName = "traces"
	}
	if c.Storage.MongoDB.GridFS.ChunkSizeBytes == 0 {
		c.Storage.MongoDB.GridFS.ChunkSizeBytes = 261120 // 255KB
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if !strings.HasPrefix(c.Bank.URL, "https://") && !c.HTTP.InsecureSkipVerify {
		return fmt.Errorf("bank.url must use https")
	}

	if _, _, err := c.Bank.ExpectedHashes(); err != nil {
		return err
	}

	if c.Keystore.SignatureMode == "pkcs11" && c.Keystore.PKCS11.ModulePath == "" {
		return fmt.Errorf("keystore.pkcs11.modulePath is required when signatureMode is 'pkcs11'")
	}

	if c.Storage.Type == "mongodb" && c.Storage.MongoDB.URI == "" {
		return fmt.Errorf("storage.mongodb.uri is required when type is 'mongodb'")
	}

	return nil
}

// ExpectedHashes decodes the key hashes from the bank's letter. Unset hashes
// are returned as nil.
func (b BankConfig) ExpectedHashes() (auth, enc []byte, err error) {
	decode := func(name, s string) ([]byte, error) {
		if s == "" {
			return nil, nil
		}
		h, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
		if err != nil {
			return nil, fmt.Errorf("bank.%s: %w", name, err)
		}
		return h, nil
	}
	if auth, err = decode("authenticationHash", b.AuthenticationHash); err != nil {
		return nil, nil, err
	}
	if enc, err = decode("encryptionHash", b.EncryptionHash); err != nil {
		return nil, nil, err
	}
	return auth, enc, nil
}

// SlogLevel returns the configured log level.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
