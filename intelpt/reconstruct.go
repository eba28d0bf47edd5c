// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package intelpt

import (
	"debug/elf"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/jsimmons-labs/cbpeval/branch"
	"github.com/jsimmons-labs/cbpeval/perffile"
)

// EventSink receives the resolved branch event stream produced by
// Reconstruct. Implementations (the trace package's Writer) own
// descriptor deduplication and on-disk encoding; Reconstruct only
// calls back with resolved addresses.
type EventSink interface {
	// RecordEvent records a branch event, creating a new branch
	// descriptor if (instAddr, targAddr) hasn't been seen before,
	// and returns the descriptor's index for later reuse via
	// RecordEventAt.
	RecordEvent(instAddr, targAddr uint64, instLength uint32, typ branch.Type, taken bool) (uint32, error)

	// RecordEventAt records another occurrence of a previously
	// seen descriptor without re-resolving its target; used for
	// the common case of a direct branch executing repeatedly.
	RecordEventAt(descriptorIndex uint32, taken bool) error
}

// callFrame is a call stack entry: the fallthrough address of a call
// instruction and the index (into the sorted branches slice) of the
// first branch at or after that address.
type callFrame struct {
	fallAddr  uint64
	fallIndex int
}

// maxCallStackDepth bounds the call stack the reconstructor
// maintains for return-address prediction. Overflow evicts the
// oldest (bottom) frame; a dropped frame only degrades recovery for
// an unusually deep recursion, since TIP packets can always resync
// the replay at the next indirect transfer.
const maxCallStackDepth = 64

// resolvedBranch is a branch.Descriptor annotated with the index (in
// the sorted branches slice) of the first branch at or after its
// target, computed once after all images are known.
type resolvedBranch struct {
	branch.Descriptor
	targIndex int // -1 if not applicable (indirect, or Return)
}

// reconstructor holds the full state of a single replay: the
// disassembled, address-sorted branch table; the call stack; and the
// current position within the branch table.
type reconstructor struct {
	branches    []resolvedBranch
	branchIndex int
	callStack   []callFrame

	sink            EventSink
	cachedDescIndex map[int]uint32 // branches[i] -> descriptor index, once recorded directly
}

// findBranchByPC returns the index of the branch at pc, or the index
// of the first branch strictly after pc if there is no exact match.
func (r *reconstructor) findBranchByPC(pc uint64) (int, error) {
	i := sort.Search(len(r.branches), func(i int) bool {
		return r.branches[i].InstAddr >= pc
	})
	if i >= len(r.branches) {
		return 0, fmt.Errorf("intelpt: no branch found at or after pc %#x", pc)
	}
	return i, nil
}

func (r *reconstructor) fallAddr(i int) uint64 {
	b := r.branches[i]
	return b.InstAddr + uint64(b.InstLength)
}

func (r *reconstructor) pushCall(fallIndex int) {
	r.callStack = append(r.callStack, callFrame{
		fallAddr:  r.fallAddr(r.branchIndex),
		fallIndex: fallIndex,
	})
	if len(r.callStack) > maxCallStackDepth {
		r.callStack = r.callStack[1:]
	}
}

func (r *reconstructor) popCallBack() (callFrame, error) {
	if len(r.callStack) == 0 {
		return callFrame{}, fmt.Errorf("intelpt: return with empty call stack")
	}
	f := r.callStack[len(r.callStack)-1]
	r.callStack = r.callStack[:len(r.callStack)-1]
	return f, nil
}

func (r *reconstructor) popCallFront() {
	if len(r.callStack) == 0 {
		return
	}
	r.callStack = r.callStack[1:]
}

// recordDirect emits an event for the current direct branch, reusing
// its descriptor index across repeated executions.
func (r *reconstructor) recordDirect(taken bool) error {
	if idx, ok := r.cachedDescIndex[r.branchIndex]; ok {
		return r.sink.RecordEventAt(idx, taken)
	}
	b := r.branches[r.branchIndex]
	idx, err := r.sink.RecordEvent(b.InstAddr, b.TargAddr, b.InstLength, b.Type, taken)
	if err != nil {
		return err
	}
	r.cachedDescIndex[r.branchIndex] = idx
	return nil
}

// recordIndirect emits an event for the current (indirect or return)
// branch with an observed target, without any index caching: every
// sighting may resolve a different target address.
func (r *reconstructor) recordIndirect(targAddr uint64) error {
	b := r.branches[r.branchIndex]
	_, err := r.sink.RecordEvent(b.InstAddr, targAddr, b.InstLength, b.Type, true)
	return err
}

// consumeTNTBit walks forward from the current branch, resolving
// always-taken direct branches automatically and stopping at the
// branch the bit actually governs.
func (r *reconstructor) consumeTNTBit(taken bool) error {
	for {
		b := r.branches[r.branchIndex]
		switch b.Type {
		case branch.ConditionalDirectJump:
			if err := r.recordDirect(taken); err != nil {
				return err
			}
			if taken {
				r.branchIndex = b.targIndex
			} else {
				r.branchIndex++
			}
			return nil

		case branch.Return:
			if !taken {
				return fmt.Errorf("intelpt: return compression violated: expected taken bit at %#x", b.InstAddr)
			}
			frame, err := r.popCallBack()
			if err != nil {
				return err
			}
			if err := r.recordIndirect(frame.fallAddr); err != nil {
				return err
			}
			r.branchIndex = frame.fallIndex
			return nil

		case branch.DirectCall:
			r.pushCall(r.branchIndex + 1)
			if err := r.recordDirect(true); err != nil {
				return err
			}
			r.branchIndex = b.targIndex

		case branch.DirectJump:
			if err := r.recordDirect(true); err != nil {
				return err
			}
			r.branchIndex = b.targIndex

		default:
			return fmt.Errorf("intelpt: TNT bit landed on non-branchable instruction type %v at %#x", b.Type, b.InstAddr)
		}
	}
}

// consumeTIP walks forward from the current branch, resolving
// always-taken direct branches automatically, and stops at the
// indirect transfer (Return/IndirectCall/IndirectJump) the TIP
// packet's target resolves.
func (r *reconstructor) consumeTIP(target uint64) error {
	for {
		b := r.branches[r.branchIndex]
		switch b.Type {
		case branch.Return:
			if err := r.recordIndirect(target); err != nil {
				return err
			}
			idx, err := r.findBranchByPC(target)
			if err != nil {
				return err
			}
			r.branchIndex = idx
			r.popCallFront()
			return nil

		case branch.DirectCall:
			if err := r.recordDirect(true); err != nil {
				return err
			}
			r.pushCall(r.branchIndex + 1)
			r.branchIndex = b.targIndex

		case branch.IndirectCall:
			if err := r.recordIndirect(target); err != nil {
				return err
			}
			r.pushCall(r.branchIndex + 1)
			idx, err := r.findBranchByPC(target)
			if err != nil {
				return err
			}
			r.branchIndex = idx
			return nil

		case branch.IndirectJump:
			if err := r.recordIndirect(target); err != nil {
				return err
			}
			idx, err := r.findBranchByPC(target)
			if err != nil {
				return err
			}
			r.branchIndex = idx
			return nil

		case branch.DirectJump:
			if err := r.recordDirect(true); err != nil {
				return err
			}
			r.branchIndex = b.targIndex

		default:
			return fmt.Errorf("intelpt: TIP packet landed on non-branchable instruction type %v at %#x", b.Type, b.InstAddr)
		}
	}
}

// Reconstruct replays a perf.data Intel-PT capture against its
// disassembled images, emitting the resolved branch event stream into
// sink. It returns the images found in the capture, in load order.
func Reconstruct(f *perffile.File, sink EventSink) ([]branch.Image, error) {
	images, aux, err := loadEvents(f)
	if err != nil {
		return nil, err
	}

	var all []branch.Descriptor
	var entrypoint uint64
	var haveEntrypoint bool
	var interpPath string

	for _, img := range images {
		path := img.Filename
		if path == branch.VDSOSentinel {
			path = vdsoDumpPath
		}

		descs, err := disassembleImage(path, img.Start)
		if err != nil {
			return nil, fmt.Errorf("intelpt: disassembling %s: %w", img.Filename, err)
		}
		all = append(all, descs...)

		ef, err := elf.Open(path)
		if err != nil {
			return nil, fmt.Errorf("intelpt: opening %s: %w", path, err)
		}
		isDynamic := ef.Type == elf.ET_DYN
		if isDynamic {
			if interp, ok := readInterp(ef); ok {
				abs, err := filepath.Abs(interp)
				if err == nil {
					interpPath = abs
				} else {
					interpPath = interp
				}
			}
		}
		isStaticExec := ef.Type == elf.ET_EXEC
		entry := ef.Entry + loadBase(ef, img.Start)
		ef.Close()

		if (isStaticExec && interpPath == "") || interpPath == path {
			entrypoint = entry
			haveEntrypoint = true
		}
	}
	if !haveEntrypoint {
		return nil, fmt.Errorf("intelpt: could not determine entrypoint from captured images")
	}

	sort.Slice(all, func(i, j int) bool { return all[i].InstAddr < all[j].InstAddr })

	resolved := make([]resolvedBranch, len(all))
	addrs := make([]uint64, len(all))
	for i, d := range all {
		resolved[i] = resolvedBranch{Descriptor: d, targIndex: -1}
		addrs[i] = d.InstAddr
	}
	for i := range resolved {
		d := resolved[i].Descriptor
		if d.Type.Indirect() || d.Type == branch.Return {
			continue
		}
		idx := sort.Search(len(addrs), func(j int) bool { return addrs[j] >= d.TargAddr })
		if idx >= len(addrs) {
			return nil, fmt.Errorf("intelpt: direct branch at %#x targets %#x, past the end of the branch table", d.InstAddr, d.TargAddr)
		}
		resolved[i].targIndex = idx
	}

	r := &reconstructor{
		branches:        resolved,
		branchIndex:     -1,
		sink:            sink,
		cachedDescIndex: make(map[int]uint32),
	}

	pkts, err := decodePackets(aux)
	if err != nil {
		return nil, err
	}

	for _, p := range pkts {
		if r.branchIndex == -1 {
			idx, err := r.findBranchByPC(entrypoint)
			if err != nil {
				return nil, err
			}
			r.branchIndex = idx
		}

		switch pk := p.(type) {
		case *tntPacket:
			for _, taken := range pk.directions() {
				if err := r.consumeTNTBit(taken); err != nil {
					return nil, err
				}
			}
		case *tipPacket:
			if pk.kind == tipTarget {
				if err := r.consumeTIP(pk.target); err != nil {
					return nil, err
				}
			}
		}
	}

	return images, nil
}

// vdsoDumpPath is the bundled vDSO image substituted for the
// synthetic "[vdso]" MMAP2 filename, which names a page the kernel
// synthesizes at runtime rather than a file on disk.
const vdsoDumpPath = "tracers/intel-pt/vdso"

// readInterp extracts the PT_INTERP segment's NUL-terminated path, if
// the ELF file has one.
func readInterp(f *elf.File) (string, bool) {
	for _, p := range f.Progs {
		if p.Type != elf.PT_INTERP {
			continue
		}
		data := make([]byte, p.Filesz)
		if _, err := p.ReadAt(data, 0); err != nil {
			return "", false
		}
		n := 0
		for n < len(data) && data[n] != 0 {
			n++
		}
		return string(data[:n]), true
	}
	return "", false
}

// decodePackets decodes every packet in an AUX trace blob, returning
// only the TNT and TIP-family packets that drive control-flow replay.
// It threads last_ip through the stream: a TIP-family packet with an
// IP payload updates it and a PSB resets it to 0; the other packets
// are dropped.
func decodePackets(data []byte) ([]packet, error) {
	var out []packet
	var lastIP uint64
	offset := 0
	for offset < len(data) {
		p, err := decodePacket(data[offset:], offset, lastIP)
		if err != nil {
			return nil, err
		}
		switch pk := p.(type) {
		case psbPacket:
			lastIP = 0
		case *tipPacket:
			if pk.hasIP {
				lastIP = pk.target
			}
			out = append(out, pk)
		case *tntPacket:
			out = append(out, pk)
		}
		offset += p.length()
	}
	return out, nil
}
