// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package intelpt

import (
	"testing"

	"golang.org/x/arch/x86/x86asm"

	"github.com/jsimmons-labs/cbpeval/branch"
)

func decodeOne(t *testing.T, data []byte) x86asm.Inst {
	t.Helper()
	inst, err := x86asm.Decode(data, 64)
	if err != nil {
		t.Fatalf("x86asm.Decode: %v", err)
	}
	return inst
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want branch.Type
	}{
		{"JMP rel8 direct", []byte{0xeb, 0x05}, branch.DirectJump},
		{"JMP rax indirect", []byte{0xff, 0xe0}, branch.IndirectJump},
		{"JE rel8", []byte{0x74, 0x03}, branch.ConditionalDirectJump},
		{"JNE rel8", []byte{0x75, 0x03}, branch.ConditionalDirectJump},
		{"CALL rel32 direct", []byte{0xe8, 0, 0, 0, 0}, branch.DirectCall},
		{"CALL rax indirect", []byte{0xff, 0xd0}, branch.IndirectCall},
		{"RET", []byte{0xc3}, branch.Return},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := decodeOne(t, tt.data)
			got, ok := classify(inst)
			if !ok {
				t.Fatalf("classify: ok = false, want true")
			}
			if got != tt.want {
				t.Errorf("classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyNonBranchIsNotOK(t *testing.T) {
	// NOP
	inst := decodeOne(t, []byte{0x90})
	if _, ok := classify(inst); ok {
		t.Error("classify(NOP): ok = true, want false")
	}
}

func TestDirectTarget(t *testing.T) {
	// JMP rel8 +5 at address 0x1000: a 2-byte instruction, target =
	// instAddr + len + displacement = 0x1000 + 2 + 5 = 0x1007.
	inst := decodeOne(t, []byte{0xeb, 0x05})
	target, ok := directTarget(inst, 0x1000)
	if !ok {
		t.Fatal("directTarget: ok = false, want true")
	}
	if target != 0x1007 {
		t.Errorf("target = %#x, want 0x1007", target)
	}
}

func TestDirectTargetIndirectIsNotOK(t *testing.T) {
	inst := decodeOne(t, []byte{0xff, 0xe0}) // jmp rax
	if _, ok := directTarget(inst, 0x1000); ok {
		t.Error("directTarget(indirect jmp): ok = true, want false")
	}
}

func TestDisassembleTextFindsEveryBranch(t *testing.T) {
	// je +3; call +0 (rel32); ret
	data := []byte{
		0x74, 0x03, // JE rel8 +3, at offset 0
		0xe8, 0x00, 0x00, 0x00, 0x00, // CALL rel32 +0, at offset 2
		0xc3, // RET, at offset 7
	}
	const addr, base = 0x4000, 0
	descs, err := disassembleText(data, addr, base)
	if err != nil {
		t.Fatalf("disassembleText: %v", err)
	}
	if len(descs) != 3 {
		t.Fatalf("len(descs) = %d, want 3", len(descs))
	}

	je := descs[0]
	if je.InstAddr != addr || je.Type != branch.ConditionalDirectJump || je.InstLength != 2 {
		t.Errorf("je = %+v", je)
	}
	if want := addr + 2 + 3; je.TargAddr != want {
		t.Errorf("je.TargAddr = %#x, want %#x", je.TargAddr, want)
	}

	call := descs[1]
	if call.InstAddr != addr+2 || call.Type != branch.DirectCall || call.InstLength != 5 {
		t.Errorf("call = %+v", call)
	}
	if want := addr + 2 + 5; call.TargAddr != want {
		t.Errorf("call.TargAddr = %#x, want %#x", call.TargAddr, want)
	}

	ret := descs[2]
	if ret.InstAddr != addr+7 || ret.Type != branch.Return || ret.InstLength != 1 {
		t.Errorf("ret = %+v", ret)
	}
}

func TestDisassembleTextAppliesLoadBase(t *testing.T) {
	data := []byte{0xeb, 0x05} // JMP rel8 +5
	const addr, base = 0x1000, 0x80000000
	descs, err := disassembleText(data, addr, base)
	if err != nil {
		t.Fatalf("disassembleText: %v", err)
	}
	if len(descs) != 1 {
		t.Fatalf("len(descs) = %d, want 1", len(descs))
	}
	d := descs[0]
	if d.InstAddr != addr+base {
		t.Errorf("InstAddr = %#x, want %#x (relocated)", d.InstAddr, addr+base)
	}
	if want := addr + 2 + 5 + base; d.TargAddr != want {
		t.Errorf("TargAddr = %#x, want %#x (relocated)", d.TargAddr, want)
	}
}

func TestDisassembleTextSkipsNonBranchInstructions(t *testing.T) {
	data := []byte{0x90, 0x90, 0xc3} // nop; nop; ret
	descs, err := disassembleText(data, 0x2000, 0)
	if err != nil {
		t.Fatalf("disassembleText: %v", err)
	}
	if len(descs) != 1 {
		t.Fatalf("len(descs) = %d, want 1 (only the ret)", len(descs))
	}
	if descs[0].InstAddr != 0x2002 {
		t.Errorf("InstAddr = %#x, want 0x2002", descs[0].InstAddr)
	}
}
