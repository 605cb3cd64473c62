// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package trace records every EBICS document the client sends or receives.

A Sink receives one Record per request and per response. Sinks are an audit
hook: the client logs a failing sink at warn level and carries on.

	sink := trace.MultiSink(trace.NewLogSink(logger), store.TraceSink())
	client, err := ebics.NewClient(&ebics.ClientConfig{Tracer: sink})
*/
package trace
