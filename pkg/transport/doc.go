// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package transport implements the HTTPS transport for EBICS.

Every EBICS request is an XML document POSTed to the bank URL; the response
body is the bank's XML answer. Only status 200 carries a protocol response.
Any other status, and any network failure, is reported as a *TransportError.

# TLS Configuration

The client defaults to TLS 1.2 with fallback up to TLS 1.3:

	config := transport.DefaultHTTPSConfig()
	// MinTLSVersion: TLS 1.2
	// MaxTLSVersion: TLS 1.3

# Client Usage

	client := transport.NewHTTPSClient(&transport.HTTPSConfig{
	    MinTLSVersion: transport.TLS12,
	    RootCAs:       certPool,
	})

	response, err := client.Send(ctx, "https://bank.example.com/ebics", request)

# Server Usage

Bank simulators and test doubles expose a Handler at /ebics, either over
TLS:

	server := transport.NewHTTPSServer(":8443", config, handler)
	go server.Serve(listener)
	defer server.Shutdown(ctx)

or mounted on an existing mux:

	http.Handle("/ebics", transport.HTTPHandler(handler))
*/
package transport
