// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

// Package app wires the EBICS client for command line use.
//
// [New] builds the logger, the record storage, the keystore and the
// [ebics.Client] from a loaded configuration. [App.Session] assembles the
// subscriber session from persisted state and [App.Persist] writes the
// state an operation changed back: subscriber status, the partner order
// counter and the bank keys fetched with HPB.
package app
