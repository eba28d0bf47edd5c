// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package harness drives a branch predictor over a recorded trace,
// applying the skip/warmup/simulate instruction windowing used
// throughout the pipeline, and aggregates the resulting per-branch
// statistics into combined and per-benchmark reports.
package harness

import (
	"fmt"

	"github.com/jsimmons-labs/cbpeval/branch"
	"github.com/jsimmons-labs/cbpeval/predictor"
	"github.com/jsimmons-labs/cbpeval/trace"
)

// BranchStat accumulates the runtime statistics of a single static
// branch over the simulate window: how many times it executed, how
// many of those executions were taken, and (for conditional branches,
// and for indirect branches when an indirect predictor is supplied)
// how many were mispredicted.
type BranchStat struct {
	ExecutionCount uint64
	TakenCount     uint64
	MispredCount   uint64
}

// BranchResult pairs a branch descriptor with its accumulated
// statistics, the unit the aggregation and reporting stages operate
// on.
type BranchResult struct {
	Branch         branch.Descriptor `json:"branch"`
	ExecutionCount uint64            `json:"execution_count"`
	TakenCount     uint64            `json:"taken_count"`
	MispredCount   uint64            `json:"mispred_count"`
}

// Result is the JSON-serializable outcome of one simulation run: the
// window it was run with, the overall derived metrics, and the
// per-branch breakdown, restricted to branches that executed at least
// once during the simulate window.
type Result struct {
	TracePath string         `json:"trace_path,omitempty"`
	Predictor string         `json:"predictor"`
	Images    []branch.Image `json:"images,omitempty"`

	Skip     uint64 `json:"skip"`
	Warmup   uint64 `json:"warmup"`
	Simulate uint64 `json:"simulate"`

	TotalMispredCount       uint64   `json:"total_mispred_count"`
	TotalBrExecutionCount   uint64   `json:"total_br_execution_count"`
	TotalCondExecutionCount uint64   `json:"total_cond_execution_count"`
	TotalIndExecutionCount  uint64   `json:"total_indirect_execution_count"`
	TotalIndMispredCount    uint64   `json:"total_indirect_mispred_count"`
	CMPKI                   float64  `json:"cmpki"`
	IMPKI                   float64  `json:"impki"`
	CondBranchAccuracy      *float64 `json:"cond_branch_prediction_accuracy"`
	IndBranchAccuracy       *float64 `json:"indirect_branch_prediction_accuracy"`

	BranchInfo []BranchResult `json:"branch_info"`
}

// branchIndices caches the static instruction-index position of a
// branch's own address and (for direct branches) its target's
// address, so the simulation loop can advance the running instruction
// count without re-resolving addresses on every entry.
type branchIndices struct {
	instAddrIndex uint64
	targAddrIndex uint64
}

// Simulate replays r's entry stream against cond (and, for indirect
// branches, ind, if non-nil), splitting the trace into a skip window
// (entries before instruction skip are ignored entirely), a warmup
// window (predictor state trains but statistics are not collected),
// and a simulate window of the given length (statistics collected,
// and bounds the derived per-kilo-instruction metrics). instIndex maps
// static instruction addresses to dense instruction-count indices, as
// produced by the disassembly stage.
func Simulate(r *trace.Reader, instIndex map[uint64]uint64, cond predictor.ConditionalBranchPredictor, ind predictor.IndirectBranchPredictor, skip, warmup, simulate uint64) (*Result, error) {
	branches := r.Branches()
	infos := make([]branchIndices, len(branches))
	for i, b := range branches {
		instIdx, ok := instIndex[b.InstAddr]
		if !ok {
			return nil, fmt.Errorf("harness: no instruction index for branch address %#x", b.InstAddr)
		}
		targIdx := instIdx
		if b.Type != branch.Return && !b.Type.Indirect() {
			targIdx, ok = instIndex[b.TargAddr]
			if !ok {
				return nil, fmt.Errorf("harness: no instruction index for target address %#x", b.TargAddr)
			}
		}
		infos[i] = branchIndices{instAddrIndex: instIdx, targAddrIndex: targIdx}
	}

	stats := make([]BranchStat, len(branches))

	it, err := r.Entries()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var instructions uint64
	var lastTargAddrIndex uint64
	haveLast := false
	simulateBegin := skip + warmup
	simulateEnd := simulateBegin + simulate

	for it.Next() {
		e := it.Entry()
		idx := e.Index()
		taken := e.Taken()

		if taken {
			currIndex := infos[idx].instAddrIndex
			if haveLast {
				instructions += currIndex - lastTargAddrIndex + 1
			}
			lastTargAddrIndex = infos[idx].targAddrIndex
			haveLast = true
		}

		if instructions < skip {
			continue
		}

		collecting := instructions >= simulateBegin
		if collecting {
			stats[idx].ExecutionCount++
			if taken {
				stats[idx].TakenCount++
			}
		}

		b := branches[idx]
		if b.Type == branch.ConditionalDirectJump {
			predicted := cond.Predict(b.InstAddr, taken)
			if collecting && predicted != taken {
				stats[idx].MispredCount++
			}
			cond.Update(b.InstAddr, b.Type, taken, predicted, b.TargAddr)
		} else {
			cond.UpdateOther(b.InstAddr, b.Type, true, b.TargAddr)
		}

		if b.Type.Indirect() {
			if ind != nil {
				predictedTarg := ind.Predict(b.InstAddr, b.Type, b.TargAddr)
				if collecting && predictedTarg != b.TargAddr {
					stats[idx].MispredCount++
				}
				ind.Update(b.InstAddr, b.Type, true, b.TargAddr)
			}
		} else if ind != nil {
			ind.Update(b.InstAddr, b.Type, true, b.TargAddr)
		}

		if instructions >= simulateEnd {
			break
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}

	return buildResult(branches, stats, r.Images(), skip, warmup, simulate), nil
}

func buildResult(branches []branch.Descriptor, stats []BranchStat, images []branch.Image, skip, warmup, simulate uint64) *Result {
	res := &Result{Images: images, Skip: skip, Warmup: warmup, Simulate: simulate}

	var totalBr, totalCond, totalInd, totalMispred, totalCondMispred, totalIndMispred uint64
	for i, s := range stats {
		totalBr += s.ExecutionCount
		totalMispred += s.MispredCount
		switch {
		case branches[i].Type == branch.ConditionalDirectJump:
			totalCond += s.ExecutionCount
			totalCondMispred += s.MispredCount
		case branches[i].Type.Indirect():
			totalInd += s.ExecutionCount
			totalIndMispred += s.MispredCount
		}
		if s.ExecutionCount > 0 {
			res.BranchInfo = append(res.BranchInfo, BranchResult{
				Branch:         branches[i],
				ExecutionCount: s.ExecutionCount,
				TakenCount:     s.TakenCount,
				MispredCount:   s.MispredCount,
			})
		}
	}

	res.TotalBrExecutionCount = totalBr
	res.TotalCondExecutionCount = totalCond
	res.TotalIndExecutionCount = totalInd
	res.TotalIndMispredCount = totalIndMispred
	res.TotalMispredCount = totalMispred
	if simulate > 0 {
		res.CMPKI = float64(totalCondMispred) * 1000.0 / float64(simulate)
		res.IMPKI = float64(totalIndMispred) * 1000.0 / float64(simulate)
	}
	if totalCond > 0 {
		accuracy := 100.0 - float64(totalCondMispred)*100.0/float64(totalCond)
		res.CondBranchAccuracy = &accuracy
	}
	if totalInd > 0 {
		accuracy := 100.0 - float64(totalIndMispred)*100.0/float64(totalInd)
		res.IndBranchAccuracy = &accuracy
	}
	return res
}
