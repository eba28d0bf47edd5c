// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package predictor

import "fmt"

// NewConditional constructs a built-in ConditionalBranchPredictor by
// name, for callers (tests, the simulate command without a TAGE
// config) that want something to exercise without loading a TOML
// file. "tage" predictors are constructed separately, via
// predictor/tage.New, since they require a config path.
func NewConditional(name string) (ConditionalBranchPredictor, error) {
	switch name {
	case "always-not-taken":
		return AlwaysNotTaken{}, nil
	case "last-outcome":
		return NewLastOutcome(), nil
	default:
		return nil, fmt.Errorf("predictor: unknown conditional predictor %q", name)
	}
}

// NewIndirect constructs a built-in IndirectBranchPredictor by name.
func NewIndirect(name string) (IndirectBranchPredictor, error) {
	switch name {
	case "last-target":
		return NewLastTarget(), nil
	default:
		return nil, fmt.Errorf("predictor: unknown indirect predictor %q", name)
	}
}
