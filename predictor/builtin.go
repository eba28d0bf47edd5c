// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package predictor

import "github.com/jsimmons-labs/cbpeval/branch"

// AlwaysNotTaken is a trivial ConditionalBranchPredictor baseline: it
// always predicts not-taken and never learns. It exists to give CMPKI
// results a reference floor to compare real predictors against.
type AlwaysNotTaken struct{}

func (AlwaysNotTaken) Predict(pc uint64, groundTruth bool) bool { return false }
func (AlwaysNotTaken) Update(pc uint64, typ branch.Type, resolved, predicted bool, target uint64) {
}
func (AlwaysNotTaken) UpdateOther(pc uint64, typ branch.Type, taken bool, target uint64) {}

// LastOutcome is a per-PC 1-bit predictor: it predicts whatever
// direction the same branch took last time. It serves as a second,
// slightly less trivial reference baseline.
type LastOutcome struct {
	last map[uint64]bool
}

// NewLastOutcome returns a ready-to-use LastOutcome predictor.
func NewLastOutcome() *LastOutcome {
	return &LastOutcome{last: make(map[uint64]bool)}
}

func (p *LastOutcome) Predict(pc uint64, groundTruth bool) bool {
	return p.last[pc]
}

func (p *LastOutcome) Update(pc uint64, typ branch.Type, resolved, predicted bool, target uint64) {
	p.last[pc] = resolved
}

func (p *LastOutcome) UpdateOther(pc uint64, typ branch.Type, taken bool, target uint64) {}

// LastTarget is a trivial IndirectBranchPredictor baseline: it
// predicts whatever target the same indirect branch resolved to last
// time (a BTB with effectively infinite associativity and no
// eviction).
type LastTarget struct {
	last map[uint64]uint64
}

// NewLastTarget returns a ready-to-use LastTarget predictor.
func NewLastTarget() *LastTarget {
	return &LastTarget{last: make(map[uint64]uint64)}
}

func (p *LastTarget) Predict(pc uint64, typ branch.Type, groundTruth uint64) uint64 {
	return p.last[pc]
}

func (p *LastTarget) Update(pc uint64, typ branch.Type, taken bool, target uint64) {
	p.last[pc] = target
}
