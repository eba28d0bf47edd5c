// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Record is implemented by the record types this package decodes.
type Record interface {
	isRecord()
}

// RecordMmap2 is a PERF_RECORD_MMAP2 event: an image was mapped into
// the traced process's address space.
type RecordMmap2 struct {
	Start      uint64
	Len        uint64
	FileOffset uint64
	Filename   string
}

func (*RecordMmap2) isRecord() {}

// RecordAuxtrace is a PERF_RECORD_AUXTRACE event: Data holds the raw
// AUX trace bytes (the Intel-PT packet stream) that immediately
// follow the record's own fixed header in the file.
type RecordAuxtrace struct {
	Data []byte
}

func (*RecordAuxtrace) isRecord() {}

// A Records is a forward-only iterator over the MMAP2 and AUXTRACE
// records in a perf.data file's data section. Every other record type
// is skipped transparently.
//
// Typical usage:
//
//	rs := file.Records()
//	for rs.Next() {
//	    switch r := rs.Record.(type) {
//	    case *perffile.RecordMmap2: ...
//	    case *perffile.RecordAuxtrace: ...
//	    }
//	}
//	if err := rs.Err(); err != nil { ... }
type Records struct {
	f   *File
	pos int64
	end int64
	err error

	// Record is the most recently decoded record. It is
	// overwritten by the next call to Next.
	Record Record
}

// Err returns the first error encountered by Records.
func (r *Records) Err() error {
	return r.err
}

// Next decodes the next MMAP2 or AUXTRACE record into r.Record. It
// returns false at end of stream or on error; callers must check
// Err() to distinguish the two.
func (r *Records) Next() bool {
	if r.err != nil {
		return false
	}
	for r.pos < r.end {
		var hdr recordHeader
		hsr := io.NewSectionReader(r.f.r, r.pos, 8)
		if err := binary.Read(hsr, binary.LittleEndian, &hdr); err != nil {
			if err != io.EOF {
				r.err = err
			}
			return false
		}
		if hdr.Size == 0 {
			r.err = fmt.Errorf("perffile: zero-length record at offset %#x", r.pos)
			return false
		}

		switch hdr.Type {
		case RecordTypeMmap2:
			rec, err := r.readMmap2(r.pos, hdr.Size)
			if err != nil {
				r.err = fmt.Errorf("perffile: decoding MMAP2 at offset %#x: %w", r.pos, err)
				return false
			}
			r.Record = rec
			r.pos += int64(hdr.Size)
			return true

		case RecordTypeAuxtrace:
			rec, next, err := r.readAuxtrace(r.pos, hdr.Size)
			if err != nil {
				r.err = fmt.Errorf("perffile: decoding AUXTRACE at offset %#x: %w", r.pos, err)
				return false
			}
			r.Record = rec
			r.pos = next
			return true

		default:
			r.pos += int64(hdr.Size)
		}
	}
	return false
}

// readMmap2 decodes a PERF_RECORD_MMAP2 body. Fields are at fixed
// byte offsets from the record's start (not from the end of the
// 8-byte recordHeader): start/len/file_offset at 0x10/0x18/0x20,
// filename (NUL-terminated within a fixed 256-byte field) at 0x48.
func (r *Records) readMmap2(pos int64, size uint16) (*RecordMmap2, error) {
	buf := make([]byte, size)
	if _, err := r.f.r.ReadAt(buf, pos); err != nil {
		return nil, err
	}

	bd := &bufDecoder{buf, binary.LittleEndian}
	bd.skip(0x10)
	rec := &RecordMmap2{
		Start: bd.u64(),
		Len:   bd.u64(),
	}
	rec.FileOffset = bd.u64()
	bd.skip(0x48 - 0x28) // major, minor, ino, ino_generation, prot, flags
	nameLen := 256
	if nameLen > len(bd.buf) {
		nameLen = len(bd.buf)
	}
	rec.Filename = (&bufDecoder{bd.buf[:nameLen], nil}).cstring()
	return rec, nil
}

// readAuxtrace decodes a PERF_RECORD_AUXTRACE header and reads the
// data_size bytes of AUX trace data that follow it. It returns the
// file offset of the next record, which is header_end + data_size,
// not pos + size: the AUX payload lives outside the record's own
// declared Size.
func (r *Records) readAuxtrace(pos int64, size uint16) (*RecordAuxtrace, int64, error) {
	var sizeBuf [8]byte
	if _, err := r.f.r.ReadAt(sizeBuf[:], pos+8); err != nil {
		return nil, 0, err
	}
	dataSize := binary.LittleEndian.Uint64(sizeBuf[:])

	headerEnd := pos + int64(size)
	data := make([]byte, dataSize)
	if dataSize > 0 {
		if _, err := r.f.r.ReadAt(data, headerEnd); err != nil {
			return nil, 0, err
		}
	}
	return &RecordAuxtrace{Data: data}, headerEnd + int64(dataSize), nil
}
