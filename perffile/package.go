// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package perffile is a minimal parser for the Linux perf.data
// container, trimmed to the two record types the Intel-PT
// reconstructor needs: PERF_RECORD_MMAP2 (image loads) and
// PERF_RECORD_AUXTRACE (the raw Intel-PT packet stream).
//
// Parsing a perf.data profile starts with a call to New or Open;
// records are then retrieved with File.Records.
package perffile // import "github.com/jsimmons-labs/cbpeval/perffile"
