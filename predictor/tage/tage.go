// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tage

import "github.com/jsimmons-labs/cbpeval/branch"

// matchLoc identifies which table (or the base table) a prediction
// came from, so Update can find the same entry again without
// recomputing the whole search.
type matchLoc struct {
	base       bool
	table      int
	entryIndex int
}

// match is the outcome of a TAGE lookup: the longest-history table
// that hit (pred), and the next-longest hit below it (altpred, used
// for the useful-counter update when the two disagree). altpred is
// zero-valued and ignored when pred itself came from the base table.
type match struct {
	pred    matchLoc
	altpred matchLoc
	hasAlt  bool
}

// Tage is a TAGE conditional-branch predictor: a base table backstop
// plus an ordered sequence of tagged pattern-history tables indexed by
// increasingly long path histories, selecting the longest-history
// table that tags-match and allocating new entries into
// longer-history tables on misprediction.
type Tage struct {
	config           Config
	base             baseTable
	tables           []table
	historyRegisters []historyRegister
}

// New loads a TAGE predictor configuration from a TOML file at path
// and constructs a freshly initialized predictor (all counters zero,
// all history registers clear).
func New(path string) (*Tage, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg), nil
}

// NewFromConfig constructs a Tage predictor directly from an in-memory
// Config, useful for tests that don't want to round-trip through a
// TOML file on disk.
func NewFromConfig(cfg Config) *Tage {
	tables := make([]table, len(cfg.Tables))
	for i, tc := range cfg.Tables {
		tables[i] = newTable(tc)
	}

	hrs := make([]historyRegister, len(cfg.HistoryRegisters))
	for i, hc := range cfg.HistoryRegisters {
		hrs[i] = newHistoryRegister(hc)
	}

	return &Tage{
		config:           cfg,
		base:             newBaseTable(cfg.BaseTable),
		tables:           tables,
		historyRegisters: hrs,
	}
}

// findMatch searches every tagged table from shortest to longest
// history, keeping the longest-history hit as pred and the
// next-longest as altpred. The base table is always the initial pred,
// since it never misses.
func (t *Tage) findMatch(pc uint64) match {
	m := match{pred: matchLoc{base: true, entryIndex: t.base.index(pc, t.historyRegisters)}}

	for i := range t.tables {
		if entryIndex, ok := t.tables[i].findMatch(pc, t.historyRegisters); ok {
			m.altpred = m.pred
			m.hasAlt = true
			m.pred = matchLoc{table: i, entryIndex: entryIndex}
		}
	}
	return m
}

func (t *Tage) predictionAt(loc matchLoc) bool {
	if loc.base {
		return t.base.entries[loc.entryIndex].prediction(t.config.BaseTable.CounterWidth)
	}
	tc := t.tables[loc.table]
	return tc.entries[loc.entryIndex].prediction(tc.config.CounterWidth)
}

// Predict returns the prediction from the longest-history table that
// currently tag-matches pc, falling back to the base table.
func (t *Tage) Predict(pc uint64, groundTruth bool) bool {
	m := t.findMatch(pc)
	return t.predictionAt(m.pred)
}

// Update applies the resolved outcome of a conditional branch: the
// matched table's saturating counter and (on a pred/altpred
// disagreement) useful counter are adjusted, a new entry is allocated
// into a longer-history table on misprediction, and every history
// register folds in the branch on a taken outcome.
func (t *Tage) Update(pc uint64, typ branch.Type, resolved, predicted bool, target uint64) {
	if typ == branch.ConditionalDirectJump {
		m := t.findMatch(pc)
		minTable := 0

		if !m.pred.base {
			predEntry := &t.tables[m.pred.table].entries[m.pred.entryIndex]
			predCounterWidth := t.tables[m.pred.table].config.CounterWidth
			minTable = m.pred.table + 1

			if m.hasAlt {
				altRes := t.predictionAt(m.altpred)
				predRes := predEntry.prediction(predCounterWidth)
				if predRes != altRes {
					if predRes == resolved {
						predEntry.incrementUseful()
					} else {
						predEntry.decrementUseful()
					}
				}
			}

			if resolved == predicted {
				if predicted {
					predEntry.incrementCounter(predCounterWidth)
				} else {
					predEntry.decrementCounter()
				}
			} else {
				if predicted {
					predEntry.decrementCounter()
				} else {
					predEntry.incrementCounter(predCounterWidth)
				}
			}
		}

		if resolved != predicted {
			allocated := false
			for i := minTable; i < len(t.tables); i++ {
				if t.tables[i].allocate(pc, t.historyRegisters, resolved) {
					allocated = true
					break
				}
			}
			if !allocated {
				for i := minTable; i < len(t.tables); i++ {
					t.tables[i].decrementUseful(pc, t.historyRegisters)
				}
			}
		}

		baseIndex := t.base.index(pc, t.historyRegisters)
		baseEntry := &t.base.entries[baseIndex]
		if resolved {
			baseEntry.incrementCounter(t.config.BaseTable.CounterWidth)
		} else {
			baseEntry.decrementCounter()
		}
	}

	if resolved {
		for i := range t.historyRegisters {
			t.historyRegisters[i].update(pc, target)
		}
	}
}

// UpdateOther folds a non-conditional branch's taken outcome into the
// history registers, so path history stays accurate even for branches
// this predictor was never asked to predict.
func (t *Tage) UpdateOther(pc uint64, typ branch.Type, taken bool, target uint64) {
	if taken {
		for i := range t.historyRegisters {
			t.historyRegisters[i].update(pc, target)
		}
	}
}
