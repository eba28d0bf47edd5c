// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/jsimmons-labs/cbpeval/branch"
	"github.com/jsimmons-labs/cbpeval/trace"
)

// TestSliceTraceSixSlicesFromFiveFiftyInstructions mirrors the base
// spec's illustrative scenario: a 550-instruction trace sliced at
// size 100 produces 6 slices, the last a short, partially-filled one
// covering the trailing 50 instructions.
func TestSliceTraceSixSlicesFromFiveFiftyInstructions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.cbp")
	w, err := trace.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w.Images(nil)

	// instAddr == targAddr: every repeated execution of this branch
	// advances the running count by exactly one instruction.
	idx, err := w.RecordEvent(0x1000, 0x1000, 1, branch.DirectJump, true)
	if err != nil {
		t.Fatal(err)
	}
	// The first taken entry establishes the baseline and contributes
	// zero to the running count; 550 more contribute one each.
	for i := 0; i < 550; i++ {
		if err := w.RecordEventAt(idx, true); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Finish(); err != nil {
		t.Fatal(err)
	}

	r, err := trace.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	instIndex := map[uint64]uint64{0x1000: 0x1000}
	slices, total, err := SliceTrace(r, instIndex, 100)
	if err != nil {
		t.Fatalf("SliceTrace: %v", err)
	}
	if total != 550 {
		t.Fatalf("total instructions = %d, want 550", total)
	}
	if len(slices) != 6 {
		t.Fatalf("len(slices) = %d, want 6", len(slices))
	}
	for i, s := range slices[:5] {
		if s.EndInstruction-s.StartInstruction != 100 {
			t.Errorf("slice %d bounds = [%d,%d], want span 100", i, s.StartInstruction, s.EndInstruction)
		}
	}
	last := slices[5]
	if last.EndInstruction-last.StartInstruction != 50 {
		t.Errorf("last slice bounds = [%d,%d], want span 50", last.StartInstruction, last.EndInstruction)
	}
}

func TestSliceTraceNormalizesBasicBlockVector(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.cbp")
	w, err := trace.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w.Images(nil)

	idx, err := w.RecordEvent(0x2000, 0x2000, 1, branch.DirectJump, true)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 11; i++ {
		if err := w.RecordEventAt(idx, true); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Finish(); err != nil {
		t.Fatal(err)
	}

	r, err := trace.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	instIndex := map[uint64]uint64{0x2000: 0x2000}
	slices, _, err := SliceTrace(r, instIndex, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if len(slices) != 1 {
		t.Fatalf("len(slices) = %d, want 1", len(slices))
	}
	if got := slices[0].BasicBlockVector[0]; got != 1.0 {
		t.Errorf("BasicBlockVector[0] = %v, want 1.0 (sole branch normalized to sum 1)", got)
	}
}

func TestSliceTraceMissingInstructionIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.cbp")
	w, err := trace.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w.Images(nil)
	if _, err := w.RecordEvent(0x3000, 0x3000, 1, branch.DirectJump, true); err != nil {
		t.Fatal(err)
	}
	if err := w.Finish(); err != nil {
		t.Fatal(err)
	}

	r, err := trace.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if _, _, err := SliceTrace(r, map[uint64]uint64{}, 100); err == nil {
		t.Fatal("SliceTrace: want error for missing instruction index, got nil")
	}
}

func TestSelectPhasesIdenticalSlicesYieldsOneCluster(t *testing.T) {
	slices := make([]Slice, 5)
	for i := range slices {
		slices[i] = Slice{
			StartInstruction: uint64(i * 100),
			EndInstruction:   uint64((i + 1) * 100),
			BasicBlockVector: []float64{0.5, 0.5},
		}
	}

	phases, err := SelectPhases(slices)
	if err != nil {
		t.Fatalf("SelectPhases: %v", err)
	}
	if len(phases) != 1 {
		t.Fatalf("len(phases) = %d, want 1 (identical slices collapse to one cluster)", len(phases))
	}
	if phases[0].Weight != len(slices) {
		t.Errorf("Weight = %d, want %d", phases[0].Weight, len(slices))
	}
}

func TestSelectPhasesEmpty(t *testing.T) {
	phases, err := SelectPhases(nil)
	if err != nil {
		t.Fatal(err)
	}
	if phases != nil {
		t.Errorf("phases = %v, want nil", phases)
	}
}

func TestWriteSliceExtractsPhaseWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.cbp")
	w, err := trace.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w.Images(nil)

	idx, err := w.RecordEvent(0x4000, 0x4000, 1, branch.DirectJump, true)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 301; i++ {
		if err := w.RecordEventAt(idx, true); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Finish(); err != nil {
		t.Fatal(err)
	}

	src, err := trace.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	instIndex := map[uint64]uint64{0x4000: 0x4000}
	phase := Phase{Weight: 1, StartInstruction: 100, EndInstruction: 200}
	slicePath := filepath.Join(t.TempDir(), "slice.cbp")
	if err := WriteSlice(src, instIndex, phase, slicePath); err != nil {
		t.Fatalf("WriteSlice: %v", err)
	}

	r, err := trace.Open(slicePath)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.NumEntries() != 101 {
		t.Errorf("NumEntries() = %d, want 101 (inclusive [100,200] window)", r.NumEntries())
	}
}

func TestWriteSidecarRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sidecar.json")
	result := Result{
		TracePath:         "trace.cbp",
		Size:              100,
		TotalInstructions: 550,
		Phases: []Phase{
			{Weight: 6, StartInstruction: 0, EndInstruction: 100},
		},
	}
	if err := WriteSidecar(path, result); err != nil {
		t.Fatalf("WriteSidecar: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got Result
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.TotalInstructions != 550 || len(got.Phases) != 1 {
		t.Errorf("got = %+v, want TotalInstructions=550 with 1 phase", got)
	}
}
