// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package compression provides the ZLIB (RFC 1950) codec EBICS applies to order
data before encryption.

	compressor := compression.NewCompressor()
	compressed, err := compressor.Compress(payload)
	payload, err = compressor.Decompress(compressed)

The codec is backed by github.com/klauspost/compress/zlib and produces the
same stream format as Java's Deflater with default settings.

# References

  - ZLIB RFC 1950: https://datatracker.ietf.org/doc/html/rfc1950
  - DEFLATE RFC 1951: https://datatracker.ietf.org/doc/html/rfc1951
*/
package compression
