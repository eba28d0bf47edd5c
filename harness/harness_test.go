// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package harness

import (
	"path/filepath"
	"testing"

	"github.com/jsimmons-labs/cbpeval/branch"
	"github.com/jsimmons-labs/cbpeval/predictor"
	"github.com/jsimmons-labs/cbpeval/simpoint"
	"github.com/jsimmons-labs/cbpeval/trace"
)

// identityIndex builds an instruction-index map where every address
// used in a test maps to itself, so the expected running-instruction
// arithmetic can be worked out by hand from the raw addresses.
func identityIndex(addrs ...uint64) map[uint64]uint64 {
	m := make(map[uint64]uint64, len(addrs))
	for _, a := range addrs {
		m[a] = a
	}
	return m
}

func TestSimulateDirectJumpExecutedThreeTimes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.cbp")
	w, err := trace.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w.Images(nil)
	idx, err := w.RecordEvent(0x400100, 0x400200, 5, branch.DirectJump, true)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
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

	// Both addresses map to the same instruction index: this branch's
	// instAddr and targAddr straddle no other instructions, so each
	// repeated execution advances the running instruction count by
	// exactly one without requiring an intervening rewind branch.
	instIndex := map[uint64]uint64{0x400100: 5, 0x400200: 5}
	cond, _ := predictor.NewConditional("always-not-taken")
	res, err := Simulate(r, instIndex, cond, nil, 0, 0, 3)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	if len(res.BranchInfo) != 1 {
		t.Fatalf("len(BranchInfo) = %d, want 1", len(res.BranchInfo))
	}
	bi := res.BranchInfo[0]
	if bi.ExecutionCount != 3 || bi.TakenCount != 3 || bi.MispredCount != 0 {
		t.Errorf("BranchInfo = %+v, want exec=3 taken=3 mispred=0", bi)
	}
}

// TestSimulateWindowing mirrors the base spec's scenario 5: a branch
// "b" appears twice in a 3000-instruction trace, once before the skip
// window and once inside the simulate window, so its execution_count
// must come out to exactly 1.
func TestSimulateWindowing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "windowing.cbp")
	w, err := trace.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w.Images(nil)

	// S: anchor entry, instructions stay at 0.
	sIdx, err := w.RecordEvent(0, 0, 1, branch.DirectJump, true)
	if err != nil {
		t.Fatal(err)
	}
	// b: the branch under test, instAddr=500 targAddr=600. First
	// visit lands the running count at 501 (500-0+1); the second
	// visit, after a backward "rewind" branch, lands it at 2500.
	bIdx, err := w.RecordEvent(500, 600, 1, branch.DirectJump, true)
	if err != nil {
		t.Fatal(err)
	}
	// R: rewind branch, jumps backward from 2497 to 400.
	rIdx, err := w.RecordEvent(2497, 400, 1, branch.DirectJump, true)
	if err != nil {
		t.Fatal(err)
	}
	// F: filler branch that brings the total to exactly 3000.
	fIdx, err := w.RecordEvent(1099, 1099, 1, branch.DirectJump, true)
	if err != nil {
		t.Fatal(err)
	}

	for _, step := range []uint32{sIdx, bIdx, rIdx, bIdx, fIdx} {
		if err := w.RecordEventAt(step, true); err != nil {
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

	instIndex := identityIndex(0, 500, 600, 2497, 400, 1099)
	cond, _ := predictor.NewConditional("always-not-taken")

	res, err := Simulate(r, instIndex, cond, nil, 1000, 1000, 1000)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	var bInfo *BranchResult
	for i := range res.BranchInfo {
		if res.BranchInfo[i].Branch.InstAddr == 500 {
			bInfo = &res.BranchInfo[i]
		}
	}
	if bInfo == nil {
		t.Fatalf("branch b not present in results: %+v", res.BranchInfo)
	}
	if bInfo.ExecutionCount != 1 {
		t.Errorf("b.ExecutionCount = %d, want 1 (only the second appearance falls in the simulate window)", bInfo.ExecutionCount)
	}
}

func TestSimulateZeroSimulateYieldsNullAccuracy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.cbp")
	w, err := trace.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w.Images(nil)
	if err := w.Finish(); err != nil {
		t.Fatal(err)
	}

	r, err := trace.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	cond, _ := predictor.NewConditional("always-not-taken")
	res, err := Simulate(r, map[uint64]uint64{}, cond, nil, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.CMPKI != 0 || res.IMPKI != 0 {
		t.Errorf("CMPKI/IMPKI = %v/%v, want 0/0", res.CMPKI, res.IMPKI)
	}
	if res.CondBranchAccuracy != nil {
		t.Errorf("CondBranchAccuracy = %v, want nil", *res.CondBranchAccuracy)
	}
	if res.IndBranchAccuracy != nil {
		t.Errorf("IndBranchAccuracy = %v, want nil", *res.IndBranchAccuracy)
	}
}

func sampleBranch(addr uint64) branch.Descriptor {
	return branch.Descriptor{InstAddr: addr, TargAddr: addr + 0x10, InstLength: 5, Type: branch.ConditionalDirectJump}
}

func TestCombineWeightsByTwiceClusterWeight(t *testing.T) {
	b := sampleBranch(0x1000)
	slicePhaseResult := func(exec, taken, mispred uint64) *Result {
		return &Result{
			Predictor: "always-not-taken",
			BranchInfo: []BranchResult{
				{Branch: b, ExecutionCount: exec, TakenCount: taken, MispredCount: mispred},
			},
		}
	}

	spResult := simpoint.Result{
		TracePath:         "trace.cbp",
		TotalInstructions: 12345,
		Phases: []simpoint.Phase{
			{Weight: 3, StartInstruction: 0, EndInstruction: 100},
			{Weight: 2, StartInstruction: 100, EndInstruction: 200},
		},
	}

	combined, err := Combine(spResult, []*Result{
		slicePhaseResult(10, 10, 1),
		slicePhaseResult(10, 10, 1),
	})
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if len(combined.BranchInfo) != 1 {
		t.Fatalf("len(BranchInfo) = %d, want 1", len(combined.BranchInfo))
	}
	got := combined.BranchInfo[0]
	// weight 3*2=6 and 2*2=4; exec = 10*6 + 10*4 = 100, mispred = 1*6+1*4 = 10.
	if got.ExecutionCount != 100 || got.MispredCount != 10 {
		t.Errorf("combined = %+v, want exec=100 mispred=10", got)
	}
	if combined.Simulate != 12345 {
		t.Errorf("Simulate (total_instructions) = %d, want 12345 (from the sidecar, not summed)", combined.Simulate)
	}
}

func TestCombineCommandsUniformWeight(t *testing.T) {
	b := sampleBranch(0x2000)
	r1 := &Result{Predictor: "tage", Simulate: 1000, BranchInfo: []BranchResult{
		{Branch: b, ExecutionCount: 5, TakenCount: 5, MispredCount: 1},
	}}
	r2 := &Result{Predictor: "tage", Simulate: 2000, BranchInfo: []BranchResult{
		{Branch: b, ExecutionCount: 7, TakenCount: 7, MispredCount: 2},
	}}

	combined, err := CombineCommands([]*Result{r1, r2})
	if err != nil {
		t.Fatalf("CombineCommands: %v", err)
	}
	if combined.Simulate != 3000 {
		t.Errorf("Simulate = %d, want 3000", combined.Simulate)
	}
	got := combined.BranchInfo[0]
	if got.ExecutionCount != 12 || got.MispredCount != 3 {
		t.Errorf("combined = %+v, want exec=12 mispred=3", got)
	}
}

func TestRecombiningIsIdempotentUnderWeightOne(t *testing.T) {
	b := sampleBranch(0x3000)
	// CMPKI = 1 conditional mispredict * 1000 / 1000 instructions.
	r := &Result{Predictor: "tage", Simulate: 1000, CMPKI: 1, BranchInfo: []BranchResult{
		{Branch: b, ExecutionCount: 5, TakenCount: 5, MispredCount: 1},
	}}

	combined, err := CombineCommands([]*Result{r, r})
	if err != nil {
		t.Fatal(err)
	}
	got := combined.BranchInfo[0]
	if got.ExecutionCount != 10 || got.MispredCount != 2 {
		t.Errorf("self-combine = %+v, want exec=10 mispred=2 (original x2)", got)
	}
	if combined.CMPKI != r.CMPKI {
		t.Errorf("CMPKI = %v, want %v (preserved: mispredicts and instructions both double)", combined.CMPKI, r.CMPKI)
	}
}

func TestClassifyH2P(t *testing.T) {
	simulate := uint64(30_000_000)
	res := &Result{
		Simulate: simulate,
		BranchInfo: []BranchResult{
			// Accuracy 100%, never hard to predict regardless of volume.
			{Branch: sampleBranch(0x1), ExecutionCount: 1_000_000, MispredCount: 0},
			// Accuracy below 99% and above both frequency floors: H2P.
			{Branch: sampleBranch(0x2), ExecutionCount: 20_000, MispredCount: 1_500},
			// Below 99% but too infrequent to matter.
			{Branch: sampleBranch(0x3), ExecutionCount: 10, MispredCount: 5},
			// Non-conditional branches never count toward H2P.
			{Branch: branch.Descriptor{InstAddr: 0x4, Type: branch.IndirectCall}, ExecutionCount: 1_000_000, MispredCount: 900_000},
		},
	}

	summary := ClassifyH2P(res)
	if summary.Count != 1 {
		t.Fatalf("H2P count = %d, want 1", summary.Count)
	}
	if summary.ExecutionCount != 20_000 || summary.MispredCount != 1_500 {
		t.Errorf("summary = %+v, want exec=20000 mispred=1500", summary)
	}
	if len(summary.Branches) != 1 || summary.Branches[0].Branch.InstAddr != 0x2 {
		t.Errorf("summary.Branches = %+v, want the single 0x2 branch", summary.Branches)
	}
}

func TestTopMispredicted(t *testing.T) {
	res := &Result{BranchInfo: []BranchResult{
		{Branch: sampleBranch(0x1), MispredCount: 5},
		{Branch: sampleBranch(0x2), MispredCount: 50},
		{Branch: sampleBranch(0x3), MispredCount: 20},
	}}
	top := TopMispredicted(res, 2)
	if len(top) != 2 {
		t.Fatalf("len(top) = %d, want 2", len(top))
	}
	if top[0].Branch.InstAddr != 0x2 || top[1].Branch.InstAddr != 0x3 {
		t.Errorf("top = %+v, want [0x2, 0x3] by descending mispred count", top)
	}
}
