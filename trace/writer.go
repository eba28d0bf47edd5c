// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/jsimmons-labs/cbpeval/branch"
)

// entryBufSize is the number of Entries buffered in memory before
// being flushed to the zstd encoder.
const entryBufSize = 16384

// Writer streams a reconstructed branch event stream to a trace
// container file. Entries are written incrementally; the branch and
// image tables are accumulated in memory and written once, after
// Finish is called. Writer owns f and seeks back to overwrite the
// header as its very last act, so a file left behind by a Writer that
// was never Finished is not a valid trace container and must be
// removed by the caller.
type Writer struct {
	f   *os.File
	bw  *bufio.Writer
	enc *zstd.Encoder

	entryBuf    []branch.Entry
	numEntries  uint64
	entriesSize uint64

	descIndex map[branch.Key]uint32
	branches  []branch.Descriptor

	images []branch.Image

	dataStart int64 // file offset where the entries blob begins
	closed    bool
}

// Create creates a new trace container at path and returns a Writer
// ready to accept events via RecordEvent/RecordEventAt.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	// Reserve space for the header; it is filled in by Finish once
	// the entry count and table offsets are known.
	if _, err := f.Write(make([]byte, headerSize)); err != nil {
		f.Close()
		return nil, err
	}

	bw := bufio.NewWriter(f)
	enc, err := zstd.NewWriter(bw)
	if err != nil {
		f.Close()
		return nil, err
	}

	w := &Writer{
		f:         f,
		bw:        bw,
		enc:       enc,
		descIndex: make(map[branch.Key]uint32),
		dataStart: headerSize,
	}
	return w, nil
}

// Images registers the image table that the reconstructed trace was
// produced against. It must be called before Finish.
func (w *Writer) Images(images []branch.Image) {
	w.images = images
}

// RecordEvent appends an event for a (possibly new) branch descriptor
// and returns its index, for reuse via RecordEventAt on later
// occurrences of the same static branch.
func (w *Writer) RecordEvent(instAddr, targAddr uint64, instLength uint32, typ branch.Type, taken bool) (uint32, error) {
	key := branch.Key{InstAddr: instAddr, TargAddr: targAddr}
	idx, ok := w.descIndex[key]
	if !ok {
		if len(w.branches) >= 1<<31 {
			return 0, fmt.Errorf("trace: too many distinct branch descriptors")
		}
		idx = uint32(len(w.branches))
		w.branches = append(w.branches, branch.Descriptor{
			InstAddr:   instAddr,
			TargAddr:   targAddr,
			InstLength: instLength,
			Type:       typ,
		})
		w.descIndex[key] = idx
	}
	if err := w.appendEntry(branch.NewEntry(idx, taken)); err != nil {
		return 0, err
	}
	return idx, nil
}

// RecordEventAt appends an event reusing a descriptor index obtained
// from a previous RecordEvent call.
func (w *Writer) RecordEventAt(descriptorIndex uint32, taken bool) error {
	return w.appendEntry(branch.NewEntry(descriptorIndex, taken))
}

func (w *Writer) appendEntry(e branch.Entry) error {
	w.entryBuf = append(w.entryBuf, e)
	w.numEntries++
	if len(w.entryBuf) >= entryBufSize {
		return w.flushEntries()
	}
	return nil
}

func (w *Writer) flushEntries() error {
	if len(w.entryBuf) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(w.entryBuf))
	for i, e := range w.entryBuf {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(e))
	}
	n, err := w.enc.Write(buf)
	w.entriesSize += uint64(n)
	w.entryBuf = w.entryBuf[:0]
	return err
}

// Finish flushes all remaining buffered entries, writes the branch
// and image tables, and seeks back to fill in the file header. On
// success the file is complete and self-describing; on error the
// caller must remove the partial file.
func (w *Writer) Finish() error {
	if w.closed {
		return fmt.Errorf("trace: Finish called twice")
	}
	w.closed = true

	if err := w.flushEntries(); err != nil {
		return err
	}
	if err := w.enc.Close(); err != nil {
		return err
	}
	if err := w.bw.Flush(); err != nil {
		return err
	}

	entriesEnd, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	branchesOffset := uint64(entriesEnd)

	branchBuf := make([]byte, rawBranchSize*len(w.branches))
	for i, b := range w.branches {
		marshalBranch(branchBuf[rawBranchSize*i:], b.InstAddr, b.TargAddr, b.InstLength, uint32(b.Type))
	}
	if _, err := w.f.Write(branchBuf); err != nil {
		return err
	}

	imagesDataOffset, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	dataOffsets := make([]uint64, len(w.images))
	for i, img := range w.images {
		dataOffsets[i] = uint64(imagesDataOffset)
		if _, err := w.f.Write(img.Data); err != nil {
			return err
		}
		imagesDataOffset += int64(len(img.Data))
	}

	imagesOffset, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	imageBuf := make([]byte, rawImageSize*len(w.images))
	for i, img := range w.images {
		if err := marshalImage(imageBuf[rawImageSize*i:], img.Start, img.Len, uint64(len(img.Data)), dataOffsets[i], img.Filename); err != nil {
			return err
		}
	}
	if _, err := w.f.Write(imageBuf); err != nil {
		return err
	}

	hdr := header{
		Magic:          magic,
		Version:        currentVersion,
		NumEntries:     w.numEntries,
		EntriesOffset:  headerSize,
		EntriesSize:    uint64(entriesEnd) - headerSize,
		NumBranches:    uint64(len(w.branches)),
		BranchesOffset: branchesOffset,
		NumImages:      uint64(len(w.images)),
		ImagesOffset:   imagesOffset,
	}
	if _, err := w.f.WriteAt(hdr.marshal(), 0); err != nil {
		return err
	}

	return w.f.Close()
}

// NumBranches returns the number of distinct branch descriptors
// recorded so far.
func (w *Writer) NumBranches() int { return len(w.branches) }
