// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package predictor defines the capability-set interfaces the
// simulation harness drives: independent conditional- and
// indirect-branch predictor abstractions, each an opaque implementation
// the harness never needs to know the internals of.
package predictor

import "github.com/jsimmons-labs/cbpeval/branch"

// ConditionalBranchPredictor predicts and learns the taken/not-taken
// direction of conditional branches. Implementations keep their own
// internal state (history registers, tables, ...); the harness only
// calls these three methods in the order predict, then update, for
// every conditional branch it simulates, and update_other for every
// other branch so history-based predictors stay in sync.
type ConditionalBranchPredictor interface {
	// Predict returns the predicted taken/not-taken direction for
	// the conditional branch at pc. groundTruth is the resolved
	// direction, made available so predictors that want to cheat
	// during development can use it, but real implementations must
	// ignore it.
	Predict(pc uint64, groundTruth bool) bool

	// Update informs the predictor of a conditional branch's actual
	// outcome after prediction.
	Update(pc uint64, typ branch.Type, resolved, predicted bool, target uint64)

	// UpdateOther informs the predictor about a non-conditional
	// branch's outcome, so that history registers remain accurate
	// even though this predictor was never asked to predict it.
	UpdateOther(pc uint64, typ branch.Type, taken bool, target uint64)
}

// IndirectBranchPredictor predicts and learns the target address of
// indirect branches (indirect jumps and calls).
type IndirectBranchPredictor interface {
	// Predict returns the predicted target address for the indirect
	// branch at pc.
	Predict(pc uint64, typ branch.Type, groundTruth uint64) uint64

	// Update informs the predictor of an indirect branch's actual
	// target, for every branch regardless of type (the harness calls
	// this unconditionally so history-sensitive predictors stay
	// live, mirroring ConditionalBranchPredictor.UpdateOther).
	Update(pc uint64, typ branch.Type, taken bool, target uint64)
}
