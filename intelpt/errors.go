// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package intelpt

import "fmt"

// ParseError reports a fatal condition encountered while decoding an
// Intel-PT packet stream, carrying the failing byte offset and a short
// window of bytes from that offset so a caller can locate the problem
// in a hex dump. Errors from reading perf.data records and from
// replaying packets against the disassembled branch table are not
// ParseErrors: they are plain errors naming the branch or pc involved,
// with no byte offset.
type ParseError struct {
	// Offset is the byte offset within the AUX trace blob where the
	// problem was detected.
	Offset int

	// Context is up to 16 bytes starting at Offset, for
	// diagnostics. It does not alias the original packet buffer.
	Context []byte

	// Msg describes the failure.
	Msg string

	// Err, if non-nil, is the underlying cause.
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("intelpt: %s at offset %#x (context % x): %v", e.Msg, e.Offset, e.Context, e.Err)
	}
	return fmt.Sprintf("intelpt: %s at offset %#x (context % x)", e.Msg, e.Offset, e.Context)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// contextAround copies up to 16 bytes starting at offset from data,
// for embedding in a ParseError without retaining the caller's slice.
func contextAround(data []byte, offset int) []byte {
	end := offset + 16
	if end > len(data) {
		end = len(data)
	}
	if offset > len(data) {
		offset = len(data)
	}
	ctx := make([]byte, end-offset)
	copy(ctx, data[offset:end])
	return ctx
}

// newParseError builds a ParseError reporting offset as the failing
// position, with Context taken from the start of data — callers pass
// a slice that already begins at offset, not the whole stream.
func newParseError(data []byte, offset int, msg string, err error) *ParseError {
	return &ParseError{
		Offset:  offset,
		Context: contextAround(data, 0),
		Msg:     msg,
		Err:     err,
	}
}
