package keystore

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// containerVersion is the current on-disk format.
const containerVersion = 1

// sealed is the on-disk JSON structure holding the ciphertext and KDF
// parameters.
type sealed struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

// scryptParams are the key derivation cost parameters.
type scryptParams struct {
	N, R, P int
}

func defaultScryptParams() scryptParams { return scryptParams{N: 1 << 15, R: 8, P: 1} }

// seal derives a key from password and encrypts raw into a JSON container.
func seal(password string, raw []byte, params scryptParams) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	aead, err := deriveAEAD(password, salt, params)
	if err != nil {
		return nil, err
	}
	// every seal draws a new salt and thus a new key
	nonce := make([]byte, chacha20poly1305.NonceSize)
	return json.Marshal(sealed{
		V:      containerVersion,
		Salt:   salt,
		N:      params.N,
		R:      params.R,
		P:      params.P,
		Cipher: aead.Seal(nil, nonce, raw, salt),
	})
}

// open decrypts a container produced by seal.
func open(password string, data []byte) ([]byte, error) {
	var s sealed
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding keystore container: %w", err)
	}
	if s.V > containerVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFile, s.V)
	}
	aead, err := deriveAEAD(password, s.Salt, scryptParams{N: s.N, R: s.R, P: s.P})
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)
	raw, err := aead.Open(nil, nonce, s.Cipher, s.Salt)
	if err != nil {
		return nil, ErrWrongPassword
	}
	return raw, nil
}

func deriveAEAD(password string, salt []byte, params scryptParams) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(password), salt, params.N, params.R, params.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("deriving keystore key: %w", err)
	}
	return chacha20poly1305.New(key)
}
