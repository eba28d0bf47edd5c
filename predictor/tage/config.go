// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tage implements a TAGE (TAgged GEometric history length)
// conditional-branch predictor, configured entirely from a TOML
// description of its history registers and pattern-history tables
// rather than from hardcoded table geometry.
package tage

import "github.com/BurntSushi/toml"

// XorTerm is one operand of an index- or tag-bit XOR formula: either a
// bit of a named history register (HR) or a bit of the branch's
// program counter (PC). Exactly one of the two fields is set; which
// one is chosen by the TOML table's key.
type XorTerm struct {
	// HR names the history register this term reads, paired with Bit.
	HR string `toml:"hr"`
	// PC, when true, means this term reads bit Bit of the PC instead
	// of a history register. HR is ignored when PC is true.
	PC bool `toml:"pc"`
	// Bit is the bit index read from the chosen source.
	Bit int `toml:"bit"`
}

// PHRFootprintTerm is one operand of a path-history-register footprint
// formula: a bit of the branch instruction's own address (B) or a bit
// of its target address (T).
type PHRFootprintTerm struct {
	// Branch, when true, means this term reads bit Bit of the branch
	// address; otherwise it reads bit Bit of the target address.
	Branch bool `toml:"branch"`
	Bit    int  `toml:"bit"`
}

// HistoryRegisterConfig describes one path history register: its
// name (referenced by XorTerm.HR elsewhere in the config), its length
// in bits, how many bits it shifts per taken branch, and the XOR
// formula computing each bit of the footprint folded in on every
// update.
type HistoryRegisterConfig struct {
	Name   string `toml:"name"`
	Length int    `toml:"length"`
	Shift  int    `toml:"shift"`
	// Footprint holds one entry per footprint bit, most significant
	// bit first; each entry is the list of terms XORed together to
	// produce that bit.
	Footprint [][]PHRFootprintTerm `toml:"footprint"`
}

// TableConfig describes one tagged pattern-history table: its index
// and tag bit formulas (entry i contributes bit i of the computed
// value, least significant bit first), its set-associativity, and its
// saturating counter width.
type TableConfig struct {
	IndexBits    [][]XorTerm `toml:"index_bits"`
	TagBits      [][]XorTerm `toml:"tag_bits"`
	Ways         int         `toml:"ways"`
	CounterWidth int         `toml:"counter_width"`
}

// BaseTableConfig describes the always-present base predictor table
// that backstops every table miss.
type BaseTableConfig struct {
	IndexBits    [][]XorTerm `toml:"index_bits"`
	CounterWidth int         `toml:"counter_width"`
}

// Config is the full TOML-decoded description of a TAGE predictor
// instance: its history registers, its base table, and its ordered
// list of tagged tables from shortest to longest history.
type Config struct {
	HistoryRegisters []HistoryRegisterConfig `toml:"history_register"`
	BaseTable        BaseTableConfig         `toml:"base_table"`
	Tables           []TableConfig           `toml:"table"`
}

// LoadConfig reads and decodes a TAGE configuration from a TOML file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	return cfg, err
}
