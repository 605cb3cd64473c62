// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package message provides the EBICS request and response documents and the
order data documents exchanged during key management.

One set of types serves both protocol versions. The document namespace and
the shape of OrderDetails follow the Version of the Header:

	H004  urn:org:ebics:H004   EBICS 2.5, OrderType + OrderAttribute
	H005  urn:org:ebics:H005   EBICS 3.0, AdminOrderType + BTU/BTD service

# Building requests

	b := message.NewBuilder(message.Header{
	    Version:   message.H004,
	    HostID:    "EBIXHOST",
	    PartnerID: "PARTNER1",
	    UserID:    "USER1",
	    Product:   message.Product{Name: "go-ebics", Language: "de"},
	})
	req, err := b.DownloadInit(message.DownloadInit{Descriptor: desc, Digests: digests})
	data, err := req.Marshal()

Requests other than INI and HIA must be signed with an X002 AuthSignature
(see package security) before they are sent.

# Responses and return codes

	resp, err := message.ParseResponse(data)
	if err := resp.Check(message.PhaseInitialisation); err != nil {
	    if errors.Is(err, message.ErrNoDataAvailable) { ... }
	}

The technical code is read from header/mutable/ReturnCode and the business
code from body/ReturnCode. Codes whose second digit is 6 or 9 are errors.

# References

  - EBICS specification and schemas: https://www.ebics.org
*/
package message
