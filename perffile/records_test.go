// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildPerfData assembles a minimal synthetic perf.data file containing
// the given already-encoded data-section records.
func buildPerfData(t *testing.T, records []byte) []byte {
	t.Helper()
	const headerSize = 40 + 16 // magic+size+attrsize+Attrs(16) ... +Data(16)
	buf := &bytes.Buffer{}
	buf.WriteString("PERFILE2")
	binary.Write(buf, binary.LittleEndian, uint64(headerSize)) // Size
	binary.Write(buf, binary.LittleEndian, uint64(0))          // AttrSize
	binary.Write(buf, binary.LittleEndian, uint64(0))          // Attrs.Offset
	binary.Write(buf, binary.LittleEndian, uint64(0))          // Attrs.Size
	binary.Write(buf, binary.LittleEndian, uint64(headerSize)) // Data.Offset
	binary.Write(buf, binary.LittleEndian, uint64(len(records)))
	buf.Write(records)
	return buf.Bytes()
}

// encodeMmap2 builds an MMAP2 record whose field offsets count from
// the start of the record, its 8-byte header included.
func encodeMmap2(start, length, fileOffset uint64, filename string) []byte {
	rec := make([]byte, 0x48+256)
	binary.LittleEndian.PutUint32(rec[0:], uint32(RecordTypeMmap2))
	binary.LittleEndian.PutUint16(rec[6:], uint16(len(rec)))
	binary.LittleEndian.PutUint64(rec[0x10:], start)
	binary.LittleEndian.PutUint64(rec[0x18:], length)
	binary.LittleEndian.PutUint64(rec[0x20:], fileOffset)
	copy(rec[0x48:], filename)
	return rec
}

func encodeAuxtrace(data []byte) []byte {
	hdr := make([]byte, 16) // 8-byte header + 8-byte data_size field
	binary.LittleEndian.PutUint32(hdr[0:], uint32(RecordTypeAuxtrace))
	binary.LittleEndian.PutUint16(hdr[6:], uint16(len(hdr)))
	binary.LittleEndian.PutUint64(hdr[8:], uint64(len(data)))
	return append(hdr, data...)
}

func TestRecordsMmap2(t *testing.T) {
	mmap := encodeMmap2(0x400000, 0x2000, 0, "/bin/bench")
	raw := buildPerfData(t, mmap)

	f, err := New(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	rs := f.Records()
	if !rs.Next() {
		t.Fatalf("expected a record, err=%v", rs.Err())
	}
	rec, ok := rs.Record.(*RecordMmap2)
	if !ok {
		t.Fatalf("expected *RecordMmap2, got %T", rs.Record)
	}
	if rec.Start != 0x400000 || rec.Len != 0x2000 || rec.FileOffset != 0 {
		t.Errorf("got %+v", rec)
	}
	if rec.Filename != "/bin/bench" {
		t.Errorf("Filename = %q, want /bin/bench", rec.Filename)
	}
	if rs.Next() {
		t.Fatal("expected end of stream")
	}
	if rs.Err() != nil {
		t.Fatal(rs.Err())
	}
}

func TestRecordsAuxtrace(t *testing.T) {
	payload := []byte{0x02, 0x82, 0x00, 0x00}
	raw := buildPerfData(t, encodeAuxtrace(payload))

	f, err := New(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	rs := f.Records()
	if !rs.Next() {
		t.Fatalf("expected a record, err=%v", rs.Err())
	}
	rec, ok := rs.Record.(*RecordAuxtrace)
	if !ok {
		t.Fatalf("expected *RecordAuxtrace, got %T", rs.Record)
	}
	if !bytes.Equal(rec.Data, payload) {
		t.Errorf("Data = %x, want %x", rec.Data, payload)
	}
}

func TestRecordsSkipsUnknownTypes(t *testing.T) {
	unknown := make([]byte, 8)
	binary.LittleEndian.PutUint32(unknown[0:], 9999)
	binary.LittleEndian.PutUint16(unknown[6:], 8)

	mmap := encodeMmap2(0x1000, 0x10, 0, "a")
	raw := buildPerfData(t, append(unknown, mmap...))

	f, err := New(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	rs := f.Records()
	if !rs.Next() {
		t.Fatalf("expected a record, err=%v", rs.Err())
	}
	if _, ok := rs.Record.(*RecordMmap2); !ok {
		t.Fatalf("expected unknown record to be skipped, got %T", rs.Record)
	}
}

func TestNewRejectsBadMagic(t *testing.T) {
	raw := []byte("NOTAPERF" + string(make([]byte, 100)))
	if _, err := New(bytes.NewReader(raw)); err == nil {
		t.Fatal("expected error for bad magic")
	}
}
