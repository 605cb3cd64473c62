// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package ebics drives EBICS key management and file transfers for one
subscriber session.

# Key management

A new subscriber registers its keys with INI and HIA, sends the
initialisation letter to the bank out of band, and fetches the bank keys
with HPB once the bank activated it:

	status, err := client.RegisterSignatureKey(ctx, sess)
	status, err = client.RegisterAuthenticationKeys(ctx, sess)
	keys, status, err := client.FetchBankKeys(ctx, sess)

Every workflow returns the subscriber status reached. The client never
updates the session; the caller persists status and bank keys.

# Transfers

	order, _ := order.NewUploadOrder(order.Legacy{AdminType: order.AdminUPL, BusinessType: "CCT"})
	res, err := client.Upload(ctx, sess, order, payload)

	dl, _ := order.NewDownloadOrder(order.Legacy{AdminType: order.AdminDNL, BusinessType: "STA"})
	res, err := client.Download(ctx, sess, dl, file)
	if errors.Is(err, ebics.ErrNoDataAvailable) {
	    // nothing to fetch, not a failure
	}

Segments are sent and fetched strictly in order, one round trip at a time.
A download whose receipt fails still returns its result together with a
*ReceiptError; the payload has already been written.

# Errors

KindOf maps any returned error to a stable Kind for operator messages.
*/
package ebics
