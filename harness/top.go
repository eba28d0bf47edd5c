// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package harness

import "sort"

// TopMispredicted returns up to n BranchResults from res, sorted by
// descending mispredict count (ties broken by descending execution
// count, then by instruction address), for the kind of "worst
// offenders" table cmd/branchstats prints.
func TopMispredicted(res *Result, n int) []BranchResult {
	sorted := make([]BranchResult, len(res.BranchInfo))
	copy(sorted, res.BranchInfo)

	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.MispredCount != b.MispredCount {
			return a.MispredCount > b.MispredCount
		}
		if a.ExecutionCount != b.ExecutionCount {
			return a.ExecutionCount > b.ExecutionCount
		}
		return a.Branch.InstAddr < b.Branch.InstAddr
	})

	if n >= 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}
