// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trace implements the binary container format the pipeline
// uses to store a reconstructed branch event stream: a zstd-compressed
// array of packed entries, a deduplicated branch descriptor table, and
// an image table carrying the raw code bytes of every mapped region.
//
// Writer produces the format streamingly; Reader maps it read-only,
// decodes the Branch and Image tables into Go slices when it opens the
// file, and hands out each image's code bytes as a zero-copy slice of
// the mapping.
package trace

import "encoding/binary"

// magic identifies a trace container file: the ASCII bytes "CBEPEX!!"
// read as a little-endian u64.
const magic uint64 = 0x2121_5845_5045_4243

const currentVersion uint64 = 0

// headerSize is the fixed size, in bytes, of the on-disk header.
const headerSize = 72

// header is the fixed-layout file header, always the first 72 bytes
// of a trace container.
type header struct {
	Magic          uint64
	Version        uint64
	NumEntries     uint64
	EntriesOffset  uint64
	EntriesSize    uint64
	NumBranches    uint64
	BranchesOffset uint64
	NumImages      uint64
	ImagesOffset   uint64
}

func (h *header) marshal() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint64(buf[0:], h.Magic)
	binary.LittleEndian.PutUint64(buf[8:], h.Version)
	binary.LittleEndian.PutUint64(buf[16:], h.NumEntries)
	binary.LittleEndian.PutUint64(buf[24:], h.EntriesOffset)
	binary.LittleEndian.PutUint64(buf[32:], h.EntriesSize)
	binary.LittleEndian.PutUint64(buf[40:], h.NumBranches)
	binary.LittleEndian.PutUint64(buf[48:], h.BranchesOffset)
	binary.LittleEndian.PutUint64(buf[56:], h.NumImages)
	binary.LittleEndian.PutUint64(buf[64:], h.ImagesOffset)
	return buf
}

func unmarshalHeader(buf []byte) header {
	return header{
		Magic:          binary.LittleEndian.Uint64(buf[0:]),
		Version:        binary.LittleEndian.Uint64(buf[8:]),
		NumEntries:     binary.LittleEndian.Uint64(buf[16:]),
		EntriesOffset:  binary.LittleEndian.Uint64(buf[24:]),
		EntriesSize:    binary.LittleEndian.Uint64(buf[32:]),
		NumBranches:    binary.LittleEndian.Uint64(buf[40:]),
		BranchesOffset: binary.LittleEndian.Uint64(buf[48:]),
		NumImages:      binary.LittleEndian.Uint64(buf[56:]),
		ImagesOffset:   binary.LittleEndian.Uint64(buf[64:]),
	}
}

// rawBranchSize is the on-disk size of one packed Branch record:
// inst_addr(u64) targ_addr(u64) inst_length(u32) type(u32).
const rawBranchSize = 8 + 8 + 4 + 4

func marshalBranch(buf []byte, instAddr, targAddr uint64, instLength uint32, typ uint32) {
	binary.LittleEndian.PutUint64(buf[0:], instAddr)
	binary.LittleEndian.PutUint64(buf[8:], targAddr)
	binary.LittleEndian.PutUint32(buf[16:], instLength)
	binary.LittleEndian.PutUint32(buf[20:], typ)
}

func unmarshalBranch(buf []byte) (instAddr, targAddr uint64, instLength uint32, typ uint32) {
	instAddr = binary.LittleEndian.Uint64(buf[0:])
	targAddr = binary.LittleEndian.Uint64(buf[8:])
	instLength = binary.LittleEndian.Uint32(buf[16:])
	typ = binary.LittleEndian.Uint32(buf[20:])
	return
}

// imageFilenameSize is the fixed, NUL-padded field width reserved for
// an image's filename in a packed RawImage record.
const imageFilenameSize = 256

// rawImageSize is the on-disk size of one packed RawImage record:
// start(u64) len(u64) data_size(u64) data_offset(u64) filename[256].
const rawImageSize = 8 + 8 + 8 + 8 + imageFilenameSize

func marshalImage(buf []byte, start, length, dataSize, dataOffset uint64, filename string) error {
	if len(filename) >= imageFilenameSize {
		return errFilenameTooLong
	}
	binary.LittleEndian.PutUint64(buf[0:], start)
	binary.LittleEndian.PutUint64(buf[8:], length)
	binary.LittleEndian.PutUint64(buf[16:], dataSize)
	binary.LittleEndian.PutUint64(buf[24:], dataOffset)
	copy(buf[32:32+imageFilenameSize], filename)
	buf[32+len(filename)] = 0
	return nil
}

func unmarshalImage(buf []byte) (start, length, dataSize, dataOffset uint64, filename string) {
	start = binary.LittleEndian.Uint64(buf[0:])
	length = binary.LittleEndian.Uint64(buf[8:])
	dataSize = binary.LittleEndian.Uint64(buf[16:])
	dataOffset = binary.LittleEndian.Uint64(buf[24:])
	name := buf[32 : 32+imageFilenameSize]
	n := 0
	for n < len(name) && name[n] != 0 {
		n++
	}
	filename = string(name[:n])
	return
}

type formatError string

func (e formatError) Error() string { return string(e) }

const errFilenameTooLong = formatError("trace: image filename too long for fixed 256-byte field")
const errBadMagic = formatError("trace: bad file magic")
const errBadVersion = formatError("trace: unsupported file version")
const errTruncated = formatError("trace: file truncated")
