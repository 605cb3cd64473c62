package keystore

import (
	"context"
	"crypto"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-ebics/internal/config"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// cheap key derivation for tests
var testParams = scryptParams{N: 1 << 10, R: 8, P: 1}

var testProvider = security.NewProvider(security.WithKeySize(1024))

func newStore(t *testing.T, dir string, opts ...Option) *FileStore {
	t.Helper()
	opts = append([]Option{WithProvider(testProvider), withScryptParams(testParams)}, opts...)
	s, err := NewFileStore(dir, "correct horse", opts...)
	require.NoError(t, err)
	return s
}

func TestSealOpen(t *testing.T) {
	data, err := seal("pw", []byte("secret"), testParams)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")

	raw, err := open("pw", data)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), raw)

	_, err = open("other", data)
	assert.ErrorIs(t, err, ErrWrongPassword)

	_, err = open("pw", []byte(`{"v":9}`))
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

func TestFileStore_SubscriberKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := newStore(t, dir)

	keys, err := testProvider.GenerateKeyMaterial("CN=USER1")
	require.NoError(t, err)
	require.NoError(t, store.SaveKeys(ctx, "USER1", keys))

	// a second store reads the same container
	loaded, err := newStore(t, dir).LoadKeys(ctx, "USER1")
	require.NoError(t, err)
	for _, purpose := range security.Purposes() {
		assert.True(t, keys.PublicKey(purpose).Equal(loaded.PublicKey(purpose)), purpose)
		require.NotNil(t, loaded.Pair(purpose).Certificate)
		assert.Equal(t, keys.Pair(purpose).Certificate.Raw, loaded.Pair(purpose).Certificate.Raw)
	}

	sig, err := loaded.Sign([]byte("order data"))
	require.NoError(t, err)
	assert.NoError(t, security.Verify(keys.PublicKey(security.PurposeSignature), []byte("order data"), sig))

	aliases, err := store.Aliases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"USER1-A005", "USER1-E002", "USER1-X002"}, aliases)

	info, err := os.Stat(filepath.Join(dir, ContainerFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_WrongPassword(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	keys, err := testProvider.GenerateKeyMaterial("CN=USER1")
	require.NoError(t, err)
	require.NoError(t, newStore(t, dir).SaveKeys(ctx, "USER1", keys))

	other, err := NewFileStore(dir, "wrong", WithProvider(testProvider))
	require.NoError(t, err)
	_, err = other.LoadKeys(ctx, "USER1")
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestFileStore_Missing(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, t.TempDir())

	_, err := store.LoadKeys(ctx, "NOBODY")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = store.LoadBankKeys(ctx, "HOST")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.ErrorIs(t, store.DeleteKeys(ctx, "NOBODY"), ErrKeyNotFound)

	aliases, err := store.Aliases(ctx)
	require.NoError(t, err)
	assert.Empty(t, aliases)
}

func TestFileStore_DeleteKeys(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, t.TempDir())
	for _, user := range []string{"USER1", "USER2"} {
		keys, err := testProvider.GenerateKeyMaterial("CN=" + user)
		require.NoError(t, err)
		require.NoError(t, store.SaveKeys(ctx, user, keys))
	}

	require.NoError(t, store.DeleteKeys(ctx, "USER1"))
	_, err := store.LoadKeys(ctx, "USER1")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	_, err = store.LoadKeys(ctx, "USER2")
	assert.NoError(t, err)
}

func TestFileStore_BankKeys(t *testing.T) {
	tests := []struct {
		name string
		mode security.DigestMode
	}{
		{"bare keys", security.DigestPublicKey},
		{"certificates", security.DigestCertificate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t, t.TempDir())
			bank, err := testProvider.GenerateKeyMaterial("CN=BANK")
			require.NoError(t, err)

			authCert, encCert := bank.Pair(security.PurposeAuthentication).Certificate, bank.Pair(security.PurposeEncryption).Certificate
			if tt.mode == security.DigestPublicKey {
				authCert, encCert = nil, nil
			}
			keys, err := security.NewBankKeys(tt.mode,
				bank.PublicKey(security.PurposeAuthentication),
				bank.PublicKey(security.PurposeEncryption),
				authCert, encCert)
			require.NoError(t, err)
			require.NoError(t, store.SaveBankKeys(ctx, "HOST", keys))

			loaded, err := store.LoadBankKeys(ctx, "HOST")
			require.NoError(t, err)
			assert.Equal(t, tt.mode, loaded.Mode)
			assert.True(t, keys.Authentication.Equal(loaded.Authentication))
			assert.True(t, keys.Encryption.Equal(loaded.Encryption))

			want, err := keys.EncryptionDigest()
			require.NoError(t, err)
			got, err := loaded.EncryptionDigest()
			require.NoError(t, err)
			assert.Equal(t, want, got)

			aliases, err := store.Aliases(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"HOST-bank-E002", "HOST-bank-X002"}, aliases)
		})
	}
}

type tokenSource struct {
	pair   security.KeyPair
	err    error
	closed bool
}

func (s *tokenSource) SignatureKey(context.Context, string) (security.KeyPair, error) {
	return s.pair, s.err
}

func (s *tokenSource) Close() error {
	s.closed = true
	return nil
}

func TestFileStore_SignatureSource(t *testing.T) {
	ctx := context.Background()
	token, err := testProvider.GenerateKeyPair(security.PurposeSignature, "CN=USER1")
	require.NoError(t, err)
	source := &tokenSource{pair: token}
	store := newStore(t, t.TempDir(), WithSignatureSource(source))

	keys, err := testProvider.GenerateKeyMaterial("CN=USER1")
	require.NoError(t, err)
	require.NoError(t, store.SaveKeys(ctx, "USER1", keys))

	aliases, err := store.Aliases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"USER1-E002", "USER1-X002"}, aliases)

	loaded, err := store.LoadKeys(ctx, "USER1")
	require.NoError(t, err)
	pub, err := token.PublicKey()
	require.NoError(t, err)
	assert.True(t, pub.Equal(loaded.PublicKey(security.PurposeSignature)))

	source.err = errors.New("token removed")
	_, err = store.LoadKeys(ctx, "USER1")
	assert.Error(t, err)

	require.NoError(t, store.Close())
	assert.True(t, source.closed)
}

// opaqueSigner hides the concrete key type like a token-backed signer.
type opaqueSigner struct {
	crypto.Signer
}

func (s opaqueSigner) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	return s.Signer.Sign(rand, digest, opts)
}

func TestFileStore_NotExportable(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, t.TempDir())
	keys, err := testProvider.GenerateKeyMaterial("CN=USER1")
	require.NoError(t, err)

	// a token-held key wrapped so it is not an *rsa.PrivateKey
	sig := keys.Pair(security.PurposeSignature)
	opaque, err := security.NewKeyMaterial(testProvider,
		security.KeyPair{Key: opaqueSigner{sig.Key}, Certificate: sig.Certificate},
		keys.Pair(security.PurposeAuthentication),
		keys.Pair(security.PurposeEncryption))
	require.NoError(t, err)

	assert.ErrorIs(t, store.SaveKeys(ctx, "USER1", opaque), ErrNotExportable)
}

func TestNewFileStore_RequiresPassword(t *testing.T) {
	_, err := NewFileStore(t.TempDir(), "")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(&config.KeystoreConfig{Dir: dir, Password: "pw", SignatureMode: "file"}, testProvider)
	require.NoError(t, err)
	assert.NoError(t, store.Close())

	_, err = Open(&config.KeystoreConfig{Dir: dir, Password: "pw", SignatureMode: "tpm"}, testProvider)
	assert.Error(t, err)
}
