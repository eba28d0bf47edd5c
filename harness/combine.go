// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package harness

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/jsimmons-labs/cbpeval/branch"
	"github.com/jsimmons-labs/cbpeval/simpoint"
)

// Combine merges one simulation Result per SimPoint phase into a
// single Result representing the whole trace, weighting each phase's
// per-branch counts by phase.Weight*2 (since only half of each slice,
// the simulate half, was actually simulated — the other half served
// as warmup).
//
// phaseResults must be in the same order as simPointResult.Phases.
func Combine(simPointResult simpoint.Result, phaseResults []*Result) (*Result, error) {
	if len(phaseResults) != len(simPointResult.Phases) {
		return nil, fmt.Errorf("harness: got %d phase results for %d phases", len(phaseResults), len(simPointResult.Phases))
	}

	combined := &Result{
		TracePath: simPointResult.TracePath,
		Simulate:  simPointResult.TotalInstructions,
	}

	index := make(map[branch.Key]int)
	for i, phase := range simPointResult.Phases {
		pr := phaseResults[i]
		if pr == nil {
			return nil, fmt.Errorf("harness: nil result for phase %d", i)
		}
		if i == 0 {
			combined.Predictor = pr.Predictor
			combined.Images = pr.Images
		} else {
			if pr.Predictor != combined.Predictor {
				log.Warn().Str("first", combined.Predictor).Str("phase_predictor", pr.Predictor).Int("phase", i).
					Msg("harness: predictor name differs across combined phases")
			}
			if !imagesMatch(combined.Images, pr.Images) {
				log.Warn().Int("phase", i).Msg("harness: image table differs across combined phases")
			}
		}
		weight := uint64(phase.Weight) * 2

		for _, info := range pr.BranchInfo {
			key := info.Branch.Key()
			if j, ok := index[key]; ok {
				combined.BranchInfo[j].ExecutionCount += info.ExecutionCount * weight
				combined.BranchInfo[j].TakenCount += info.TakenCount * weight
				combined.BranchInfo[j].MispredCount += info.MispredCount * weight
				continue
			}
			index[key] = len(combined.BranchInfo)
			combined.BranchInfo = append(combined.BranchInfo, BranchResult{
				Branch:         info.Branch,
				ExecutionCount: info.ExecutionCount * weight,
				TakenCount:     info.TakenCount * weight,
				MispredCount:   info.MispredCount * weight,
			})
		}
	}

	finalizeTotals(combined)

	return combined, nil
}

// CombineCommands sums a set of already-produced Results with uniform
// weight 1, the "command-combine" mode used to aggregate several
// independent simulate invocations (e.g. one per benchmark command)
// into a single per-benchmark report. Unlike Combine, inputs are not
// required to share a SimPoint phase structure; total_instructions is
// the sum of each input's Simulate window.
func CombineCommands(results []*Result) (*Result, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("harness: no results to combine")
	}

	combined := &Result{}
	index := make(map[branch.Key]int)
	for i, r := range results {
		if r == nil {
			return nil, fmt.Errorf("harness: nil result in command combine")
		}
		if i == 0 {
			combined.Predictor = r.Predictor
			combined.Images = r.Images
		} else {
			if r.Predictor != combined.Predictor {
				log.Warn().Str("first", combined.Predictor).Str("command_predictor", r.Predictor).Int("command", i).
					Msg("harness: predictor name differs across combined commands")
			}
			if !imagesMatch(combined.Images, r.Images) {
				log.Warn().Int("command", i).Msg("harness: image table differs across combined commands")
			}
		}
		combined.Simulate += r.Simulate

		for _, info := range r.BranchInfo {
			key := info.Branch.Key()
			if j, ok := index[key]; ok {
				combined.BranchInfo[j].ExecutionCount += info.ExecutionCount
				combined.BranchInfo[j].TakenCount += info.TakenCount
				combined.BranchInfo[j].MispredCount += info.MispredCount
				continue
			}
			index[key] = len(combined.BranchInfo)
			combined.BranchInfo = append(combined.BranchInfo, BranchResult{
				Branch:         info.Branch,
				ExecutionCount: info.ExecutionCount,
				TakenCount:     info.TakenCount,
				MispredCount:   info.MispredCount,
			})
		}
	}

	finalizeTotals(combined)

	return combined, nil
}

// imagesMatch reports whether two image tables describe the same set
// of mapped regions, comparing address range and filename but not the
// raw machine code bytes (expensive to compare and irrelevant to
// identity).
func imagesMatch(a, b []branch.Image) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Start != b[i].Start || a[i].Len != b[i].Len || a[i].Filename != b[i].Filename {
			return false
		}
	}
	return true
}

// finalizeTotals re-derives a combined Result's aggregate counters and
// ratios from its per-branch breakdown, the step common to both
// SimPoint-weighted and uniform-weight combination.
func finalizeTotals(combined *Result) {
	var totalBr, totalCond, totalInd, totalMispred, totalCondMispred, totalIndMispred uint64
	for _, info := range combined.BranchInfo {
		totalBr += info.ExecutionCount
		totalMispred += info.MispredCount
		switch {
		case info.Branch.Type == branch.ConditionalDirectJump:
			totalCond += info.ExecutionCount
			totalCondMispred += info.MispredCount
		case info.Branch.Type.Indirect():
			totalInd += info.ExecutionCount
			totalIndMispred += info.MispredCount
		}
	}
	combined.TotalBrExecutionCount = totalBr
	combined.TotalCondExecutionCount = totalCond
	combined.TotalIndExecutionCount = totalInd
	combined.TotalIndMispredCount = totalIndMispred
	combined.TotalMispredCount = totalMispred
	if combined.Simulate > 0 {
		combined.CMPKI = float64(totalCondMispred) * 1000.0 / float64(combined.Simulate)
		combined.IMPKI = float64(totalIndMispred) * 1000.0 / float64(combined.Simulate)
	}
	if totalCond > 0 {
		accuracy := 100.0 - float64(totalCondMispred)*100.0/float64(totalCond)
		combined.CondBranchAccuracy = &accuracy
	}
	if totalInd > 0 {
		accuracy := 100.0 - float64(totalIndMispred)*100.0/float64(totalInd)
		combined.IndBranchAccuracy = &accuracy
	}
}
