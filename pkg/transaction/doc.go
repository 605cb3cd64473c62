// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

// Package transaction tracks the segment cursor of a single EBICS upload or
// download. A State is owned by one transfer and discarded when it ends.
package transaction
