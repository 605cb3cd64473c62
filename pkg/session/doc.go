// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package session groups the identities an EBICS operation runs under: the
subscriber (User), the Bank, the Partner contract and the client Product.

Subscriber status changes are computed, never applied in place:

	next, skip, err := session.Transition(user.Status, session.ActionRegisterSignature)

The caller persists next after the bank accepted the request. skip reports
that the action already happened and nothing must be sent.

Partner order ids are four base-36 characters starting with a letter:

	id := partner.NextOrderID() // "A000", "A001", ...
*/
package session
