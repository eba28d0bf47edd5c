// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package branch

import "testing"

func TestEntryPacking(t *testing.T) {
	cases := []struct {
		index uint32
		taken bool
	}{
		{0, false},
		{0, true},
		{1, true},
		{1<<31 - 1, true},
		{1<<31 - 1, false},
	}
	for _, c := range cases {
		e := NewEntry(c.index, c.taken)
		if got := e.Index(); got != c.index {
			t.Errorf("NewEntry(%d, %v).Index() = %d, want %d", c.index, c.taken, got, c.index)
		}
		if got := e.Taken(); got != c.taken {
			t.Errorf("NewEntry(%d, %v).Taken() = %v, want %v", c.index, c.taken, got, c.taken)
		}
	}
}

func TestEntryPackingPanicsOnOverflow(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range index")
		}
	}()
	NewEntry(1<<31, false)
}

func TestImageContains(t *testing.T) {
	img := Image{Start: 0x1000, Len: 0x100}
	if !img.Contains(0x1000) {
		t.Error("start address should be contained")
	}
	if !img.Contains(0x10ff) {
		t.Error("last byte should be contained")
	}
	if img.Contains(0x1100) {
		t.Error("address == start+len should NOT be contained")
	}
	if img.Contains(0xfff) {
		t.Error("address before start should not be contained")
	}
}

func TestDescriptorKey(t *testing.T) {
	a := Descriptor{InstAddr: 1, TargAddr: 2, InstLength: 5, Type: DirectJump}
	b := Descriptor{InstAddr: 1, TargAddr: 2, InstLength: 9, Type: DirectJump}
	if a.Key() != b.Key() {
		t.Error("descriptors sharing (InstAddr, TargAddr) must share a dedup key")
	}
	c := Descriptor{InstAddr: 1, TargAddr: 3, InstLength: 5, Type: DirectJump}
	if a.Key() == c.Key() {
		t.Error("descriptors with different TargAddr must have different keys")
	}
}

func TestTypeString(t *testing.T) {
	for _, ty := range []Type{DirectJump, IndirectJump, DirectCall, IndirectCall, Return, ConditionalDirectJump, Invalid} {
		if ty.String() == "" {
			t.Errorf("Type(%d).String() is empty", ty)
		}
	}
	if !ConditionalDirectJump.Conditional() {
		t.Error("ConditionalDirectJump should be Conditional")
	}
	if DirectJump.Conditional() {
		t.Error("DirectJump should not be Conditional")
	}
	if !IndirectCall.Indirect() || !IndirectJump.Indirect() {
		t.Error("IndirectCall/IndirectJump should be Indirect")
	}
	if DirectCall.Indirect() || Return.Indirect() {
		t.Error("DirectCall/Return should not be Indirect")
	}
}
