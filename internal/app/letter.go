package app

import (
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// LetterEntry is one key of the initialisation letter.
type LetterEntry struct {
	Purpose security.KeyPurpose
	Hash    []byte
}

// Letter returns the key hashes the bank needs to activate the subscriber,
// computed in the bank's digest mode.
func Letter(keys *security.KeyMaterial, useCertificates bool) ([]LetterEntry, error) {
	mode := security.DigestPublicKey
	if useCertificates {
		mode = security.DigestCertificate
	}
	var entries []LetterEntry
	for _, purpose := range security.Purposes() {
		h, err := keys.Hash(purpose, mode)
		if err != nil {
			return nil, err
		}
		entries = append(entries, LetterEntry{Purpose: purpose, Hash: h})
	}
	return entries, nil
}
