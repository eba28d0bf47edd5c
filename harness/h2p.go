// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package harness

import (
	"sort"

	"github.com/jsimmons-labs/cbpeval/branch"
)

// H2PSummary reports the contribution hard-to-predict branches make
// to a Result's overall misprediction rate, following the
// classification from "Branch Prediction Is Not A Solved Problem:
// Measurements, Opportunities, and Future Directions": a conditional
// branch is hard-to-predict if its accuracy is below 99% and it both
// executes and mispredicts often enough, scaled to a 30-million
// instruction window, to matter.
type H2PSummary struct {
	Count          int
	ExecutionCount uint64
	MispredCount   uint64

	// Branches holds the qualifying H2P branches themselves, sorted by
	// descending mispredict count, for reporting.
	Branches []BranchResult
}

// h2pScaleWindow is the instruction count the reference frequency
// thresholds below are expressed per.
const h2pScaleWindow = 30_000_000

// ClassifyH2P scans res's per-branch results, simulated over a window
// of res.Simulate instructions, and returns the subset that
// qualify as hard-to-predict along with their combined contribution.
func ClassifyH2P(res *Result) H2PSummary {
	var summary H2PSummary
	if res.Simulate == 0 {
		return summary
	}

	scale := float64(h2pScaleWindow) / float64(res.Simulate)
	for _, info := range res.BranchInfo {
		if info.Branch.Type != branch.ConditionalDirectJump {
			continue
		}
		if info.ExecutionCount == 0 {
			continue
		}
		accuracy := 1.0 - float64(info.MispredCount)/float64(info.ExecutionCount)
		if accuracy >= 0.99 {
			continue
		}
		if float64(info.ExecutionCount)*scale < 15000 {
			continue
		}
		if float64(info.MispredCount)*scale < 1000 {
			continue
		}
		summary.Count++
		summary.ExecutionCount += info.ExecutionCount
		summary.MispredCount += info.MispredCount
		summary.Branches = append(summary.Branches, info)
	}

	sort.Slice(summary.Branches, func(i, j int) bool {
		a, b := summary.Branches[i], summary.Branches[j]
		if a.MispredCount != b.MispredCount {
			return a.MispredCount > b.MispredCount
		}
		if a.ExecutionCount != b.ExecutionCount {
			return a.ExecutionCount > b.ExecutionCount
		}
		return a.Branch.InstAddr < b.Branch.InstAddr
	})

	return summary
}
