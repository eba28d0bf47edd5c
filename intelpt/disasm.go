// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package intelpt

import (
	"debug/elf"
	"fmt"
	"sort"

	"golang.org/x/arch/x86/x86asm"

	"github.com/jsimmons-labs/cbpeval/branch"
)

// loadBase returns the runtime load offset to add to every address
// disassembled from f: 0 for statically-linked executables, and the
// mapped image's own Start for position-independent (ET_DYN) ones,
// mirroring how the kernel relocates PIE text sections at exec time.
func loadBase(f *elf.File, imageStart uint64) uint64 {
	if f.Type == elf.ET_DYN {
		return imageStart
	}
	return 0
}

// hasInterp reports whether f carries a PT_INTERP segment, i.e. it is
// a dynamically linked executable whose entry point is the dynamic
// linker rather than the program itself.
func hasInterp(f *elf.File) bool {
	for _, p := range f.Progs {
		if p.Type == elf.PT_INTERP {
			return true
		}
	}
	return false
}

// disassembleImage walks every SHF_EXECINSTR section of the ELF file
// at path, classifying each instruction that golang.org/x/arch/x86/x86asm
// recognizes as a branch and recording it as a branch.Descriptor with
// addresses relocated by load_base.
func disassembleImage(path string, imageStart uint64) ([]branch.Descriptor, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("intelpt: opening %s: %w", path, err)
	}
	defer f.Close()

	base := loadBase(f, imageStart)

	var out []branch.Descriptor
	for _, sec := range f.Sections {
		if sec.Flags&elf.SHF_EXECINSTR == 0 {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return nil, fmt.Errorf("intelpt: reading section %s of %s: %w", sec.Name, path, err)
		}
		descs, err := disassembleText(data, sec.Addr, base)
		if err != nil {
			return nil, fmt.Errorf("intelpt: disassembling section %s of %s: %w", sec.Name, path, err)
		}
		out = append(out, descs...)
	}
	return out, nil
}

// disassembleText decodes the instructions in data (loaded at virtual
// address addr within the file, before relocation) one at a time,
// emitting a branch.Descriptor for every control-transfer instruction.
func disassembleText(data []byte, addr uint64, base uint64) ([]branch.Descriptor, error) {
	var out []branch.Descriptor
	off := 0
	for off < len(data) {
		inst, err := x86asm.Decode(data[off:], 64)
		if err != nil || inst.Len == 0 {
			// Undecodable bytes (padding, data interleaved in
			// .text); skip a byte and resynchronize.
			off++
			continue
		}

		if typ, ok := classify(inst); ok {
			instAddr := addr + uint64(off) + base
			desc := branch.Descriptor{
				InstAddr:   instAddr,
				InstLength: uint32(inst.Len),
				Type:       typ,
			}
			if targ, ok := directTarget(inst, instAddr-base); ok {
				desc.TargAddr = targ + base
			}
			out = append(out, desc)
		}

		off += inst.Len
	}
	return out, nil
}

// classify maps a decoded x86 instruction to its branch.Type,
// reporting ok=false for anything that isn't a branch at all.
//
// x86asm canonicalizes conditional jump mnemonics to a single Op per
// condition (Ja, Jb, Je, ...) rather than exposing AT&T-style aliases
// (jnae, jnb, ...), so classification switches on Op family rather
// than on mnemonic text.
func classify(inst x86asm.Inst) (branch.Type, bool) {
	switch inst.Op {
	case x86asm.JMP:
		if _, isDirect := inst.Args[0].(x86asm.Rel); isDirect {
			return branch.DirectJump, true
		}
		return branch.IndirectJump, true

	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JCXZ, x86asm.JECXZ,
		x86asm.JRCXZ, x86asm.JE, x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE,
		x86asm.JNE, x86asm.JNO, x86asm.JNP, x86asm.JNS, x86asm.JO, x86asm.JP, x86asm.JS:
		return branch.ConditionalDirectJump, true

	case x86asm.CALL:
		if _, isDirect := inst.Args[0].(x86asm.Rel); isDirect {
			return branch.DirectCall, true
		}
		return branch.IndirectCall, true

	case x86asm.RET:
		return branch.Return, true

	default:
		return branch.Invalid, false
	}
}

// directTarget computes the absolute target address of a direct
// branch, given the (pre-relocation) address of the instruction that
// encodes it.
func directTarget(inst x86asm.Inst, instAddr uint64) (uint64, bool) {
	rel, ok := inst.Args[0].(x86asm.Rel)
	if !ok {
		return 0, false
	}
	return instAddr + uint64(inst.Len) + uint64(int64(rel)), true
}

// InstIndexMapping assigns a dense, address-sorted index to every
// statically disassembled instruction across a set of images. The
// resulting map drives instruction counting during replay: the
// distance between two instruction indices is the number of
// instructions executed between them, regardless of which image they
// fall in. Callers downstream of reconstruction (simpoint slicing,
// predictor simulation) rebuild this mapping from a trace's own Image
// table rather than relying on state retained from reconstruction.
func InstIndexMapping(images []branch.Image) (map[uint64]uint64, error) {
	var addrs []uint64
	for _, img := range images {
		path := img.Filename
		if path == branch.VDSOSentinel {
			path = vdsoDumpPath
		}
		f, err := elf.Open(path)
		if err != nil {
			return nil, fmt.Errorf("intelpt: opening %s: %w", path, err)
		}
		base := loadBase(f, img.Start)
		for _, sec := range f.Sections {
			if sec.Flags&elf.SHF_EXECINSTR == 0 {
				continue
			}
			data, err := sec.Data()
			if err != nil {
				f.Close()
				return nil, err
			}
			off := 0
			for off < len(data) {
				inst, err := x86asm.Decode(data[off:], 64)
				if err != nil || inst.Len == 0 {
					off++
					continue
				}
				addrs = append(addrs, sec.Addr+uint64(off)+base)
				off += inst.Len
			}
		}
		f.Close()
	}

	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	mapping := make(map[uint64]uint64, len(addrs))
	for i, a := range addrs {
		mapping[a] = uint64(i)
	}
	return mapping, nil
}
