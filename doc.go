// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package goebics implements the client side of EBICS (Electronic Banking
Internet Communication Standard) for key management and file transfer.

# Overview

go-ebics talks to an EBICS bank server over HTTPS. It registers the
subscriber's keys, fetches the bank keys and moves payment and statement
files in segmented, compressed and encrypted transactions. Both protocol
generations are supported: H004 (EBICS 2.5) and H005 (EBICS 3.0).

# Specifications Implemented

  - EBICS 2.5 (H004) and EBICS 3.0 (H005): https://www.ebics.org/
  - A005 electronic signature, X002 authentication signature, E002 encryption
  - Exclusive XML Canonicalization: https://www.w3.org/TR/xml-exc-c14n/

# Package Structure

	github.com/sirosfoundation/go-ebics/pkg/ebics        - Key management and transfer client
	github.com/sirosfoundation/go-ebics/pkg/session      - Subscriber, bank and partner identities, status machine
	github.com/sirosfoundation/go-ebics/pkg/order        - Legacy and BTF order descriptors
	github.com/sirosfoundation/go-ebics/pkg/message      - H004/H005 request and response documents
	github.com/sirosfoundation/go-ebics/pkg/security     - Key material, A005/X002/E002
	github.com/sirosfoundation/go-ebics/pkg/segment      - Payload splitting and joining
	github.com/sirosfoundation/go-ebics/pkg/transaction  - Segment bookkeeping of one transaction
	github.com/sirosfoundation/go-ebics/pkg/transport    - HTTPS transport with TLS 1.2/1.3
	github.com/sirosfoundation/go-ebics/pkg/trace        - Request and response tracing
	github.com/sirosfoundation/go-ebics/pkg/compression  - zlib compression

# Quick Start

Register a new subscriber:

	provider := security.NewProvider()
	keys, _ := provider.GenerateKeyMaterial("CN=USER01")

	s, _ := session.New(
	    &session.User{ID: "USER01", Version: message.H005, Keys: keys},
	    &session.Bank{URL: "https://ebics.example-bank.com/ebicsweb", HostID: "EXAMPLEBANK"},
	    &session.Partner{ID: "PARTNER01"},
	    session.Product{Name: "go-ebics", Language: "en"},
	    nil,
	)

	client, _ := ebics.NewClient(&ebics.ClientConfig{})
	s.User.Status, err = client.RegisterSignatureKey(ctx, s)
	s.User.Status, err = client.RegisterAuthenticationKeys(ctx, s)

Once the bank activated the subscriber, fetch the bank keys and transfer:

	s.Bank.Keys, s.User.Status, err = client.FetchBankKeys(ctx, s)

	o, _ := order.NewUploadOrder(order.Structured{Service: "SCT", Scope: "DE", MessageName: "pain.001"})
	result, err := client.Upload(ctx, s, o, payments)

The client never persists anything. Callers store the subscriber status,
the partner's order counter and the bank keys; the ebics command does this
with the keystore and storage packages under internal/.

# License

BSD-2-Clause License
*/
package goebics
