// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package simpoint

import "math"

// kmeansResult is one trained k-means model: its final centroids and
// the cluster assignment of every point in the training set.
type kmeansResult struct {
	k          int
	centroids  [][]float64
	assignment []int
}

// kmeansTolerance is the centroid-movement threshold below which
// Lloyd's algorithm is considered converged.
const kmeansTolerance = 1e-2

// kmeansMaxIters bounds the iteration count for pathological inputs
// that never quite settle under kmeansTolerance.
const kmeansMaxIters = 300

// fitKMeans runs Lloyd's algorithm on points (each a row of the
// |slices|×|branches| basic-block-vector matrix) with k clusters,
// seeded deterministically by taking every (n/k)-th point as an
// initial centroid so repeated runs on the same input are
// reproducible.
func fitKMeans(points [][]float64, k int) kmeansResult {
	n := len(points)
	d := 0
	if n > 0 {
		d = len(points[0])
	}

	centroids := make([][]float64, k)
	for c := 0; c < k; c++ {
		src := points[(c*n)/k]
		centroids[c] = append([]float64(nil), src...)
	}

	assignment := make([]int, n)
	for iter := 0; iter < kmeansMaxIters; iter++ {
		for i, p := range points {
			best, bestDist := 0, math.Inf(1)
			for c, ctr := range centroids {
				dist := sqDist(p, ctr)
				if dist < bestDist {
					best, bestDist = c, dist
				}
			}
			assignment[i] = best
		}

		newCentroids := make([][]float64, k)
		counts := make([]int, k)
		for c := range newCentroids {
			newCentroids[c] = make([]float64, d)
		}
		for i, p := range points {
			c := assignment[i]
			counts[c]++
			for j, v := range p {
				newCentroids[c][j] += v
			}
		}
		var maxShift float64
		for c := range newCentroids {
			if counts[c] == 0 {
				// Empty cluster: keep its previous centroid rather
				// than dividing by zero.
				newCentroids[c] = centroids[c]
				continue
			}
			for j := range newCentroids[c] {
				newCentroids[c][j] /= float64(counts[c])
			}
			maxShift = math.Max(maxShift, math.Sqrt(sqDist(newCentroids[c], centroids[c])))
		}
		centroids = newCentroids
		if maxShift < kmeansTolerance {
			break
		}
	}

	return kmeansResult{k: k, centroids: centroids, assignment: assignment}
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

// bic computes the Bayesian Information Criterion for a trained
// k-means model over points, following the formula:
//
//	BIC(k) = Σ_i [ -R_i·ln(2π)/2 - R_i·d·ln(σ_i²)/2 - (R_i-1)/2 + R_i·ln(R_i/R) ]
//	         - (k + d·k)·ln(R)/2
//
// where R_i is cluster i's member count and σ_i² is its mean squared
// distance to centroid, floored at 1e-6 to avoid a degenerate
// zero-variance singleton cluster producing -Inf.
func bic(points [][]float64, res kmeansResult) float64 {
	r := len(points)
	d := 0
	if r > 0 {
		d = len(points[0])
	}
	k := res.k

	ri := make([]int, k)
	sigma := make([]float64, k)
	for i, p := range points {
		c := res.assignment[i]
		ri[c]++
		sigma[c] += sqDist(p, res.centroids[c])
	}
	for c := 0; c < k; c++ {
		if ri[c] > 0 {
			sigma[c] /= float64(ri[c])
		}
		if sigma[c] < 1e-6 {
			sigma[c] = 1e-6
		}
	}

	var score float64
	for c := 0; c < k; c++ {
		if ri[c] == 0 {
			continue
		}
		rc := float64(ri[c])
		score -= rc * math.Log(2*math.Pi) / 2
		score -= rc * float64(d) * math.Log(sigma[c]) / 2
		score -= (rc - 1) / 2
		score += rc * math.Log(rc/float64(r))
	}
	score -= float64(k+d*k) * math.Log(float64(r)) / 2
	return score
}
