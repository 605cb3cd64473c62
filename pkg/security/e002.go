package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
)

// TransactionKeySize is the AES-128 key length of an E002 transaction key.
const TransactionKeySize = 16

var zeroIV = make([]byte, aes.BlockSize)

// GenerateTransactionKey returns a fresh random AES-128 key.
func (p *Provider) GenerateTransactionKey() ([]byte, error) {
	key := make([]byte, TransactionKeySize)
	if _, err := io.ReadFull(p.Random(), key); err != nil {
		return nil, cryptoErr("generate transaction key", err)
	}
	return key, nil
}

// WrapKey encrypts a transaction key for the recipient with RSA PKCS#1 v1.5.
func (p *Provider) WrapKey(pub *rsa.PublicKey, key []byte) ([]byte, error) {
	if pub == nil {
		return nil, cryptoErr("wrap transaction key", errors.New("no recipient key"))
	}
	wrapped, err := rsa.EncryptPKCS1v15(p.Random(), pub, key)
	if err != nil {
		return nil, cryptoErr("wrap transaction key", err)
	}
	return wrapped, nil
}

// EncryptData encrypts data with AES-CBC under a zero IV after ISO 10126
// padding. A full padding block is appended when data is block aligned.
func (p *Provider) EncryptData(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, cryptoErr("encrypt", err)
	}

	padLen := aes.BlockSize - len(data)%aes.BlockSize
	buf := make([]byte, len(data)+padLen)
	copy(buf, data)
	if _, err := io.ReadFull(p.Random(), buf[len(data):len(buf)-1]); err != nil {
		return nil, cryptoErr("encrypt", err)
	}
	buf[len(buf)-1] = byte(padLen)

	cipher.NewCBCEncrypter(block, zeroIV).CryptBlocks(buf, buf)
	return buf, nil
}

// DecryptData reverses EncryptData.
func DecryptData(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, cryptoErr("decrypt", err)
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, cryptoErr("decrypt", fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(data)))
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, zeroIV).CryptBlocks(out, data)

	padLen := int(out[len(out)-1])
	if padLen < 1 || padLen > aes.BlockSize {
		return nil, cryptoErr("decrypt", errors.New("invalid padding"))
	}
	return out[:len(out)-padLen], nil
}
