// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package order describes what an EBICS transfer moves.

A Descriptor is either Legacy, an order type as used by H004 (EBICS 2.5), or
Structured, the BTF service descriptor used by H005 (EBICS 3.0):

	cct := order.Legacy{AdminType: order.AdminUPL, BusinessType: "CCT"}
	camt := order.Structured{Service: "EOP", Scope: "DE", MessageName: "camt.053", Version: "08", Container: "ZIP"}

UploadOrder and DownloadOrder wrap a descriptor with transfer options and are
immutable once built.
*/
package order
