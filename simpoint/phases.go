// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpoint

import "math"

// Phase is a representative slice of a cluster, weighted by the
// cluster's member count.
type Phase struct {
	Weight           int    `json:"weight"`
	StartInstruction uint64 `json:"start_instruction"`
	EndInstruction   uint64 `json:"end_instruction"`
}

// SelectPhases trains k-means models for k = 1..20 (capped at the
// number of slices) on slices' basic
// block vectors, scores each by BIC, and picks the smallest k whose
// BIC clears min + 0.9*(max-min) across all trained models. It
// returns one Phase per cluster of the chosen model, sorted by
// StartInstruction, where each phase's bounds are its cluster's
// representative slice (smallest Euclidean distance to centroid) and
// weight is the cluster's member count.
func SelectPhases(slices []Slice) ([]Phase, error) {
	if len(slices) == 0 {
		return nil, nil
	}
	points := make([][]float64, len(slices))
	for i, s := range slices {
		points[i] = s.BasicBlockVector
	}

	const maxK = 20
	kMax := maxK
	if kMax > len(points) {
		kMax = len(points)
	}

	type scored struct {
		res kmeansResult
		bic float64
	}
	models := make([]scored, 0, kMax)
	minBIC, maxBIC := math.Inf(1), math.Inf(-1)
	for k := 1; k <= kMax; k++ {
		res := fitKMeans(points, k)
		score := bic(points, res)
		models = append(models, scored{res: res, bic: score})
		if score < minBIC {
			minBIC = score
		}
		if score > maxBIC {
			maxBIC = score
		}
	}

	threshold := minBIC + 0.9*(maxBIC-minBIC)
	var chosen scored
	found := false
	for _, m := range models {
		if m.bic >= threshold {
			chosen = m
			found = true
			break
		}
	}
	if !found {
		chosen = models[len(models)-1]
	}

	return buildPhases(slices, points, chosen.res), nil
}

// buildPhases converts a trained model's cluster assignments into
// Phases, one per cluster, each anchored on its closest-to-centroid
// member slice.
func buildPhases(slices []Slice, points [][]float64, res kmeansResult) []Phase {
	best := make([]int, res.k)
	bestDist := make([]float64, res.k)
	for c := range bestDist {
		bestDist[c] = math.Inf(1)
	}
	weight := make([]int, res.k)

	for i, p := range points {
		c := res.assignment[i]
		weight[c]++
		d := sqDist(p, res.centroids[c])
		if d < bestDist[c] {
			bestDist[c] = d
			best[c] = i
		}
	}

	var phases []Phase
	for c := 0; c < res.k; c++ {
		if weight[c] == 0 {
			continue
		}
		s := slices[best[c]]
		phases = append(phases, Phase{
			Weight:           weight[c],
			StartInstruction: s.StartInstruction,
			EndInstruction:   s.EndInstruction,
		})
	}

	for i := 1; i < len(phases); i++ {
		for j := i; j > 0 && phases[j-1].StartInstruction > phases[j].StartInstruction; j-- {
			phases[j-1], phases[j] = phases[j], phases[j-1]
		}
	}
	return phases
}
