// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/klauspost/compress/zstd"

	"github.com/jsimmons-labs/cbpeval/branch"
)

// Reader maps a trace container file read-only. Its Branch and Image
// tables are decoded into Go slices at Open; only each Image's Data
// aliases the mapping. The Entry stream is read through a
// forward-only iterator.
type Reader struct {
	f   *os.File
	mm  mmap.MMap
	hdr header

	branches []branch.Descriptor
	images   []branch.Image
}

// Open maps the trace container at path and parses its header,
// branch table, and image table.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	r := &Reader{f: f, mm: mm}
	if err := r.parse(); err != nil {
		mm.Unmap()
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Reader) parse() error {
	if len(r.mm) < headerSize {
		return errTruncated
	}
	hdr := unmarshalHeader(r.mm[:headerSize])
	if hdr.Magic != magic {
		return errBadMagic
	}
	if hdr.Version != currentVersion {
		return errBadVersion
	}
	r.hdr = hdr

	branchesEnd := hdr.BranchesOffset + hdr.NumBranches*rawBranchSize
	if uint64(len(r.mm)) < branchesEnd {
		return errTruncated
	}
	r.branches = make([]branch.Descriptor, hdr.NumBranches)
	for i := range r.branches {
		off := hdr.BranchesOffset + uint64(i)*rawBranchSize
		instAddr, targAddr, instLength, typ := unmarshalBranch(r.mm[off:])
		r.branches[i] = branch.Descriptor{
			InstAddr:   instAddr,
			TargAddr:   targAddr,
			InstLength: instLength,
			Type:       branch.Type(typ),
		}
	}

	imagesEnd := hdr.ImagesOffset + hdr.NumImages*rawImageSize
	if uint64(len(r.mm)) < imagesEnd {
		return errTruncated
	}
	r.images = make([]branch.Image, hdr.NumImages)
	for i := range r.images {
		off := hdr.ImagesOffset + uint64(i)*rawImageSize
		start, length, dataSize, dataOffset, filename := unmarshalImage(r.mm[off:])
		if uint64(len(r.mm)) < dataOffset+dataSize {
			return errTruncated
		}
		r.images[i] = branch.Image{
			Start:    start,
			Len:      length,
			Filename: filename,
			Data:     r.mm[dataOffset : dataOffset+dataSize],
		}
	}

	return nil
}

// Branches returns the trace's deduplicated branch descriptor table,
// indexed by branch.Entry.Index(). The slice is decoded from the
// mapping at Open and does not alias it.
func (r *Reader) Branches() []branch.Descriptor { return r.branches }

// Images returns the trace's image table, with each Image's Data
// aliasing the underlying mapping. Must not be retained past Close.
func (r *Reader) Images() []branch.Image { return r.images }

// NumEntries is the number of entries in the trace's event stream.
func (r *Reader) NumEntries() uint64 { return r.hdr.NumEntries }

// Close unmaps the file and closes the underlying descriptor.
func (r *Reader) Close() error {
	if err := r.mm.Unmap(); err != nil {
		return err
	}
	return r.f.Close()
}

// Entries returns a forward-only, single-pass iterator over the
// trace's Entry stream, decompressing it from the underlying mapping
// as it is consumed.
func (r *Reader) Entries() (*EntryIterator, error) {
	blob := r.mm[r.hdr.EntriesOffset : r.hdr.EntriesOffset+r.hdr.EntriesSize]
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	if err := dec.Reset(bytes.NewReader(blob)); err != nil {
		dec.Close()
		return nil, err
	}
	return &EntryIterator{dec: dec, remaining: r.hdr.NumEntries}, nil
}

// EntryIterator yields the Entry stream one record at a time from a
// streaming zstd decoder. It reads in 4 KiB chunks sized to a whole
// number of 4-byte Entry records.
type EntryIterator struct {
	dec       *zstd.Decoder
	buf       [4096]byte
	pos, n    int
	remaining uint64
	err       error
	cur       branch.Entry
}

// Next decodes the next Entry. It returns false at end of stream or
// on error; callers must check Err() to distinguish the two.
func (it *EntryIterator) Next() bool {
	if it.err != nil || it.remaining == 0 {
		return false
	}
	if it.pos+4 > it.n {
		if err := it.refill(); err != nil {
			it.err = err
			return false
		}
	}
	it.cur = branch.Entry(leUint32(it.buf[it.pos:]))
	it.pos += 4
	it.remaining--
	return true
}

func (it *EntryIterator) refill() error {
	copy(it.buf[:], it.buf[it.pos:it.n])
	it.n -= it.pos
	it.pos = 0
	for it.n < 4 {
		m, err := it.dec.Read(it.buf[it.n:])
		it.n += m
		if err != nil {
			if err == io.EOF && it.n >= 4 {
				break
			}
			return fmt.Errorf("trace: reading entry stream: %w", err)
		}
	}
	return nil
}

// Entry returns the most recently decoded entry.
func (it *EntryIterator) Entry() branch.Entry { return it.cur }

// Err returns the first error encountered by the iterator.
func (it *EntryIterator) Err() error { return it.err }

// Close releases the decoder's resources.
func (it *EntryIterator) Close() { it.dec.Close() }

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
