// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package security holds EBICS subscriber and bank key material and implements
the cryptographic primitives the protocol relies on.

# Key versions

Three RSA key pairs belong to every subscriber:

  - A005: electronic signature (ES) over order data
  - X002: authentication signature over each request
  - E002: encryption, used to unwrap transaction keys

The bank publishes its X002 and E002 public keys, retrieved with HPB and
represented by BankKeys.

# Primitives

	km, err := security.NewKeyMaterial(provider, signature, authentication, encryption)
	sig, err := km.Sign(orderData)          // A005, control bytes removed first
	auth, err := km.Authenticate(signedInfo) // X002
	plain, err := km.Decrypt(payload, wrappedKey)

Order data is encrypted with E002: AES-128-CBC with a zero IV and ISO 10126
padding, the transaction key itself encrypted with RSA PKCS#1 v1.5 for the
recipient.

# Key hashes

Banks identify subscriber keys by a SHA-256 hash. With bare keys the hash
input is the lowercase hex exponent and modulus separated by a space; with
certificates it is the DER encoding. The two are never interchangeable, see
DigestMode.

# XML authentication

AuthSigner computes the X002 AuthSignature over every element carrying
authenticate="true" and inserts it ahead of the request body.

# References

  - EBICS 2.5 (H004) and EBICS 3.0 (H005): https://www.ebics.org
  - XML Signature: https://www.w3.org/TR/xmldsig-core1/
*/
package security
