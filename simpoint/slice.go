// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package simpoint slices a reconstructed trace into fixed-instruction
// windows, fits a range of k-means models on their normalized
// basic-block vectors, and picks a representative slice per cluster
// for later simulation.
package simpoint

import (
	"fmt"

	"github.com/jsimmons-labs/cbpeval/branch"
	"github.com/jsimmons-labs/cbpeval/trace"
)

// Slice is one fixed-instruction-count window of a trace: its
// instruction-count bounds and its normalized basic-block vector.
type Slice struct {
	StartInstruction uint64
	EndInstruction   uint64
	BasicBlockVector []float64
}

// branchIndices caches, per branch descriptor, the instruction index
// of its instruction address and of its target address — the two
// quantities the slicer's running instruction count needs per taken
// branch.
type branchIndices struct {
	instAddrIndex uint64
	targAddrIndex uint64
}

// SliceTrace walks every entry of r's event stream, accumulating a
// process-wide instruction count from instIndex (keyed by
// instruction address, covering every image in the trace), and
// finalizes a Slice once the count has advanced at least sliceSize
// past the end of the previous slice. Boundaries fall on multiples of
// sliceSize only while the count lands on each multiple exactly; a
// taken branch that carries the count past a boundary ends the slice
// at the larger count, and later slices are measured from there. It
// returns the slices in order along with the total number of dynamic
// instructions observed.
func SliceTrace(r *trace.Reader, instIndex map[uint64]uint64, sliceSize uint64) ([]Slice, uint64, error) {
	branches := r.Branches()
	infos := make([]branchIndices, len(branches))
	for i, b := range branches {
		instIdx, ok := instIndex[b.InstAddr]
		if !ok {
			return nil, 0, fmt.Errorf("simpoint: no instruction index for branch address %#x", b.InstAddr)
		}
		targIdx := instIdx
		if b.Type != branch.Return && !b.Type.Indirect() {
			targIdx, ok = instIndex[b.TargAddr]
			if !ok {
				return nil, 0, fmt.Errorf("simpoint: no instruction index for target address %#x", b.TargAddr)
			}
		}
		infos[i] = branchIndices{instAddrIndex: instIdx, targAddrIndex: targIdx}
	}

	it, err := r.Entries()
	if err != nil {
		return nil, 0, err
	}
	defer it.Close()

	var slices []Slice
	var instructions uint64
	var lastTargAddrIndex uint64
	var haveLast bool
	sliceStart := uint64(0)
	bbv := make([]uint64, len(branches))

	finalize := func() {
		var sum uint64
		for _, v := range bbv {
			sum += v
		}
		vec := make([]float64, len(bbv))
		if sum > 0 {
			for i, v := range bbv {
				vec[i] = float64(v) / float64(sum)
			}
		}
		slices = append(slices, Slice{
			StartInstruction: sliceStart,
			EndInstruction:   instructions,
			BasicBlockVector: vec,
		})
		sliceStart = instructions
		for i := range bbv {
			bbv[i] = 0
		}
	}

	for it.Next() {
		e := it.Entry()
		idx := e.Index()
		if int(idx) >= len(infos) {
			return nil, 0, fmt.Errorf("simpoint: entry references out-of-range branch index %d", idx)
		}
		if e.Taken() {
			currIndex := infos[idx].instAddrIndex
			if haveLast {
				if currIndex < lastTargAddrIndex {
					return nil, 0, fmt.Errorf("simpoint: non-monotonic instruction index: %d after %d", currIndex, lastTargAddrIndex)
				}
				newInsts := currIndex - lastTargAddrIndex + 1
				instructions += newInsts
				bbv[idx] += newInsts
			}
			lastTargAddrIndex = infos[idx].targAddrIndex
			haveLast = true
		}

		if instructions >= sliceSize+sliceStart {
			finalize()
		}
	}
	if err := it.Err(); err != nil {
		return nil, 0, err
	}
	finalize()

	return slices, instructions, nil
}
