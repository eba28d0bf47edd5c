// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package branch defines the data model shared by every stage of the
// branch-prediction evaluation pipeline: the tagged branch-type
// enumeration, the deduplicated branch descriptor, the packed trace
// entry, and the mmap image descriptor.
package branch

import "fmt"

// Type is a tagged variant identifying the kind of control-flow
// instruction a Branch describes. The integer values are stable and
// part of the trace file format (they are stored directly in Branch
// records), so existing constants must never be renumbered.
type Type uint32

const (
	DirectJump Type = iota
	IndirectJump
	DirectCall
	IndirectCall
	Return
	ConditionalDirectJump
	Invalid
)

//go:generate stringer -type=Type

func (t Type) String() string {
	switch t {
	case DirectJump:
		return "DirectJump"
	case IndirectJump:
		return "IndirectJump"
	case DirectCall:
		return "DirectCall"
	case IndirectCall:
		return "IndirectCall"
	case Return:
		return "Return"
	case ConditionalDirectJump:
		return "ConditionalDirectJump"
	case Invalid:
		return "Invalid"
	default:
		return fmt.Sprintf("Type(%d)", uint32(t))
	}
}

// Conditional reports whether branches of this type carry a
// taken/not-taken direction rather than always being taken.
func (t Type) Conditional() bool {
	return t == ConditionalDirectJump
}

// Indirect reports whether the branch's target is resolved at run
// time rather than encoded in the instruction.
func (t Type) Indirect() bool {
	return t == IndirectJump || t == IndirectCall
}

// Descriptor is the quintuple described by the trace format's branch
// table: a single static control-flow edge, deduplicated by
// (InstAddr, TargAddr). For indirect branches TargAddr reflects the
// target observed when the descriptor was first created; additional
// observed targets of the same static indirect branch produce
// additional Descriptors sharing InstAddr.
//
// Descriptor's field order and widths mirror the on-disk C layout in
// trace.RawBranch; this type is the in-memory, host-endian twin used
// everywhere above the codec.
type Descriptor struct {
	InstAddr   uint64
	TargAddr   uint64
	InstLength uint32
	Type       Type
}

// Key identifies a Descriptor for deduplication, independent of
// InstLength (which is invariant per InstAddr and doesn't participate
// in identity).
type Key struct {
	InstAddr uint64
	TargAddr uint64
}

// Key returns the deduplication key for d.
func (d Descriptor) Key() Key {
	return Key{InstAddr: d.InstAddr, TargAddr: d.TargAddr}
}

// entryTakenBit is the high bit of a packed Entry; the low 31 bits
// hold the branch descriptor index.
const entryTakenBit = uint32(1) << 31

// Entry is the packed 32-bit trace record: bits 0..30 are a branch
// descriptor index (unique per trace), bit 31 is the taken flag.
type Entry uint32

// NewEntry packs a descriptor index and taken flag into an Entry.
// index must be less than 1<<31.
func NewEntry(index uint32, taken bool) Entry {
	if index&entryTakenBit != 0 {
		panic("branch: descriptor index does not fit in 31 bits")
	}
	if taken {
		index |= entryTakenBit
	}
	return Entry(index)
}

// Index returns the branch descriptor index this entry refers to.
func (e Entry) Index() uint32 {
	return uint32(e) &^ entryTakenBit
}

// Taken reports whether the branch was taken.
func (e Entry) Taken() bool {
	return uint32(e)&entryTakenBit != 0
}

// MaxFilenameLen is the longest filename an Image can carry on disk
// (the trace codec's RawImage reserves a fixed 256-byte field,
// including the NUL terminator).
const MaxFilenameLen = 255

// VDSOSentinel is the MMAP2 filename the kernel reports for the
// vsyscall/vDSO mapping. Since the vDSO page is synthesized at
// runtime rather than read from the filesystem, reconstruction
// redirects this filename to a bundled dump instead of trying to
// open it directly.
const VDSOSentinel = "[vdso]"

// Image describes one mapped executable region captured during
// tracing: its address range, its source filename, and (once loaded)
// its raw code bytes. Start..Start+Len is non-overlapping with every
// other Image in the same trace.
type Image struct {
	Start    uint64 `json:"start"`
	Len      uint64 `json:"len"`
	Filename string `json:"filename"`
	Data     []byte `json:"-"`
}

// Contains reports whether addr lies within the image's mapped range.
// The upper bound is exclusive: an address equal to Start+Len is not
// contained.
func (img Image) Contains(addr uint64) bool {
	return addr >= img.Start && addr < img.Start+img.Len
}

// LoadBase is the runtime load bias to add to a link-time address to
// get a runtime address. Statically linked executables load at their
// link-time addresses (bias 0); PIE executables and shared objects
// are identified by the image's Start address.
func (img Image) LoadBase(pie bool) uint64 {
	if pie {
		return img.Start
	}
	return 0
}
