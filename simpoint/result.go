// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpoint

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jsimmons-labs/cbpeval/branch"
	"github.com/jsimmons-labs/cbpeval/trace"
)

// Result is the JSON sidecar written alongside a set of sliced trace
// files: the source trace, the slice size used, the total dynamic
// instruction count, and the selected phases.
type Result struct {
	TracePath         string  `json:"trace_path"`
	Size              uint64  `json:"size"`
	TotalInstructions uint64  `json:"total_instructions"`
	Phases            []Phase `json:"phases"`
}

// WriteSidecar marshals r as indented JSON to path.
func WriteSidecar(path string, r Result) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// WriteSlice extracts every entry of src whose cumulative instruction
// position falls within [phase.StartInstruction, phase.EndInstruction]
// and writes it, along with src's image table, to a new trace
// container at path. The new branch table holds only the descriptors
// those entries reference, renumbered in order of first appearance.
//
// The instruction position of an entry is tracked the same way
// SliceTrace computes it: running count, advanced on every taken
// branch by the distance between the previous taken branch's target
// instruction index and the current branch's instruction index.
func WriteSlice(src *trace.Reader, instIndex map[uint64]uint64, phase Phase, path string) error {
	branches := src.Branches()
	infos := make([]branchIndices, len(branches))
	for i, b := range branches {
		instIdx, ok := instIndex[b.InstAddr]
		if !ok {
			return fmt.Errorf("simpoint: no instruction index for branch address %#x", b.InstAddr)
		}
		targIdx := instIdx
		if b.Type != branch.Return && !b.Type.Indirect() {
			targIdx, ok = instIndex[b.TargAddr]
			if !ok {
				return fmt.Errorf("simpoint: no instruction index for target address %#x", b.TargAddr)
			}
		}
		infos[i] = branchIndices{instAddrIndex: instIdx, targAddrIndex: targIdx}
	}

	w, err := trace.Create(path)
	if err != nil {
		return err
	}
	w.Images(src.Images())

	it, err := src.Entries()
	if err != nil {
		w.Finish()
		os.Remove(path)
		return err
	}
	defer it.Close()

	var instructions uint64
	var lastTargAddrIndex uint64
	var haveLast bool
	descIndexMap := make(map[uint32]uint32)

	for it.Next() {
		e := it.Entry()
		idx := e.Index()
		if e.Taken() {
			currIndex := infos[idx].instAddrIndex
			if haveLast {
				instructions += currIndex - lastTargAddrIndex + 1
			}
			lastTargAddrIndex = infos[idx].targAddrIndex
			haveLast = true
		}

		if instructions < phase.StartInstruction || instructions > phase.EndInstruction {
			continue
		}

		outIdx, ok := descIndexMap[idx]
		if ok {
			if err := w.RecordEventAt(outIdx, e.Taken()); err != nil {
				w.Finish()
				os.Remove(path)
				return err
			}
			continue
		}
		b := branches[idx]
		newIdx, err := w.RecordEvent(b.InstAddr, b.TargAddr, b.InstLength, b.Type, e.Taken())
		if err != nil {
			w.Finish()
			os.Remove(path)
			return err
		}
		descIndexMap[idx] = newIdx
	}
	if err := it.Err(); err != nil {
		w.Finish()
		os.Remove(path)
		return err
	}

	if err := w.Finish(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
