// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package segment converts order data between its plain form and the encrypted
segments carried by EBICS transfer requests.

Outbound, a Splitter compresses, encrypts and slices a payload:

	s, err := segment.NewSplitter(provider, payload, true, transactionKey)
	for n := 1; n <= s.NumSegments(); n++ {
	    content, _ := s.Segment(n)
	    send(content.Bytes())
	}

Segments are balanced: with total encrypted length L and count
ceil(L / MaxSegmentSize), every segment but the last holds L / count bytes
and the last absorbs the remainder.

Inbound, a Joiner accumulates segments in transfer order and is finished
exactly once:

	j := segment.NewJoiner(true)
	j.Append(first)
	j.Append(second)
	n, err := j.Finish(w, transactionKey)
*/
package segment
