// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

// Package commands defines the ebics CLI.
//
// Commands
//
//   - keys generate  Create the subscriber's A005, X002 and E002 keys
//   - keys list      List the keystore entries
//   - letter         Print the key hashes of the initialisation letter
//   - ini, hia       Register the signature and authentication keys
//   - hpb            Fetch and store the bank keys
//   - spr            Suspend the subscriber
//   - status         Show the persisted subscriber state
//   - upload         Send a file
//   - download       Fetch a file
//   - traces         List traced requests and responses
//
// The root command loads the configuration and builds the application
// before any subcommand runs. Every run gets a random run id that is
// attached to all log lines.
package commands
