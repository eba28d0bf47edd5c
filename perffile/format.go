// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile

// perf_file_header from tools/perf/util/header.h. Only the fields
// needed to locate the data section survive the trim: this package
// exists solely to walk MMAP2 and AUXTRACE records, never to decode
// perf_event_attr / feature sections.
type fileHeader struct {
	Magic    [8]byte
	Size     uint64      // size of fileHeader on disk
	AttrSize uint64      // size of one fileAttr entry
	Attrs    fileSection // array of fileAttr; unused by this package
	Data     fileSection // alternating recordHeader and record body
}

// perf_file_section from tools/perf/util/header.h.
type fileSection struct {
	Offset, Size uint64
}

// perf_event_header from include/uapi/linux/perf_event.h.
type recordHeader struct {
	Type RecordType
	Misc uint16
	Size uint16
}

// RecordType identifies the kind of record following a recordHeader.
// Only the two types this pipeline consumes are named; every other
// value is treated as opaque and skipped by Records.Next.
type RecordType uint32

const (
	// RecordTypeMmap2 is PERF_RECORD_MMAP2: a richer form of
	// PERF_RECORD_MMAP carrying device/inode/protection fields
	// alongside the mapped address range.
	RecordTypeMmap2 RecordType = 10

	// RecordTypeAuxtrace is PERF_RECORD_AUXTRACE: a header record
	// immediately followed (outside the record's own Size) by
	// data_size raw bytes of AUX trace data, here the Intel-PT
	// packet stream.
	RecordTypeAuxtrace RecordType = 71
)
