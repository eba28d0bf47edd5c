// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package perffile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// A File is a perf.data file, trimmed to the structural information
// the Intel-PT reconstructor needs: the location of the data section
// and an iterator over its MMAP2/AUXTRACE records. Unlike the
// original go-perf package, File does not decode perf_event_attr,
// sample formats, or feature sections; nothing in this pipeline reads
// sampled events.
type File struct {
	r      io.ReaderAt
	closer io.Closer
	hdr    fileHeader
}

// New reads the perf.data header from r and locates its data section.
//
// The caller must keep r open as long as it is using the returned
// *File.
func New(r io.ReaderAt) (*File, error) {
	f := &File{r: r}

	sr := io.NewSectionReader(r, 0, 1024)
	if err := binary.Read(sr, binary.LittleEndian, &f.hdr); err != nil {
		return nil, err
	}
	switch string(f.hdr.Magic[:]) {
	case "PERFILE2":
		// Version 2, little endian; the only format this pipeline
		// is ever asked to decode.
	case "2ELIFREP":
		return nil, fmt.Errorf("perffile: big endian profiles not supported")
	default:
		return nil, fmt.Errorf("perffile: bad or unsupported file magic %q", string(f.hdr.Magic[:]))
	}
	if f.hdr.Data.Size == 0 {
		return nil, fmt.Errorf("perffile: truncated data section; was 'perf record' properly terminated?")
	}

	return f, nil
}

// Open opens the named perf.data file using os.Open.
//
// The caller must call f.Close() on the returned file when done.
func Open(name string) (*File, error) {
	osf, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	f, err := New(osf)
	if err != nil {
		osf.Close()
		return nil, err
	}
	f.closer = osf
	return f, nil
}

// Close closes the File.
//
// If the File was created using New directly instead of Open, Close
// has no effect.
func (f *File) Close() error {
	if f.closer != nil {
		err := f.closer.Close()
		f.closer = nil
		return err
	}
	return nil
}

// Records returns an iterator over the data section's MMAP2 and
// AUXTRACE records, in file order. All other record types are
// skipped.
func (f *File) Records() *Records {
	return &Records{
		f:   f,
		pos: int64(f.hdr.Data.Offset),
		end: int64(f.hdr.Data.Offset + f.hdr.Data.Size),
	}
}
