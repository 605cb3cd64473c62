package security

import (
	"errors"
	"fmt"
)

// ErrCrypto is matched by every CryptoError.
var ErrCrypto = errors.New("cryptographic operation failed")

// CryptoError reports a failed signing, encryption, decryption or hashing step.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrCrypto, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", ErrCrypto, e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// Is reports ErrCrypto so callers can test the kind without errors.As.
func (e *CryptoError) Is(target error) bool { return target == ErrCrypto }

func cryptoErr(op string, err error) error {
	return &CryptoError{Op: op, Err: err}
}
