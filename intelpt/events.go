// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package intelpt

import (
	"fmt"

	"github.com/jsimmons-labs/cbpeval/branch"
	"github.com/jsimmons-labs/cbpeval/perffile"
)

// loadEvents walks every MMAP2 and AUXTRACE record in f in file order,
// returning the mapped images (in load order) and the concatenated
// AUX trace bytes. Multiple AUXTRACE records are appended in the
// order they appear, matching how the kernel emits one record per
// ring-buffer flush of the same logical stream.
func loadEvents(f *perffile.File) ([]branch.Image, []byte, error) {
	var images []branch.Image
	var aux []byte

	rs := f.Records()
	for rs.Next() {
		switch r := rs.Record.(type) {
		case *perffile.RecordMmap2:
			images = append(images, mmap2ToImage(r))
		case *perffile.RecordAuxtrace:
			aux = append(aux, r.Data...)
		}
	}
	if err := rs.Err(); err != nil {
		return nil, nil, fmt.Errorf("intelpt: reading perf.data records: %w", err)
	}
	return images, aux, nil
}

// mmap2ToImage converts a decoded MMAP2 record into a branch.Image.
// Start is pulled back by FileOffset and Len is extended by the same
// amount: the kernel's MMAP2 record describes only the mapped slice
// of the backing file starting at FileOffset, but downstream
// instruction-index mapping wants each image keyed by the file's own
// address space starting at offset 0, so both ends of the mapping are
// adjusted to recover it.
func mmap2ToImage(r *perffile.RecordMmap2) branch.Image {
	return branch.Image{
		Start:    r.Start - r.FileOffset,
		Len:      r.Len + r.FileOffset,
		Filename: r.Filename,
	}
}
