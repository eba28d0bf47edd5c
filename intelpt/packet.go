// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package intelpt

import "math/bits"

// packet is one decoded Intel Processor Trace packet. Most packet
// kinds carry no payload useful to the reconstructor and are returned
// only so the caller can advance past them; only tntPacket and
// tipPacket affect control-flow replay.
type packet interface {
	// length is the number of bytes this packet occupies in the
	// trace, including its opcode byte(s).
	length() int
}

type padPacket struct{}

func (padPacket) length() int { return 1 }

type cbrPacket struct{}

func (cbrPacket) length() int { return 4 }

type psbendPacket struct{}

func (psbendPacket) length() int { return 2 }

type tmaPacket struct{}

func (tmaPacket) length() int { return 7 }

// psbPacket is a synchronization packet. Seeing one resets the
// reconstructor's last-IP compression state, since Intel PT only
// guarantees IP payloads are relative to a known-good IP between PSBs.
type psbPacket struct{}

func (psbPacket) length() int { return 2 }

type vmcsPacket struct{}

func (vmcsPacket) length() int { return 7 }

type tscPacket struct{}

func (tscPacket) length() int { return 8 }

type mtcPacket struct{}

func (mtcPacket) length() int { return 2 }

type modeExecPacket struct{}

func (modeExecPacket) length() int { return 2 }

// tntPacket carries a run of taken/not-taken outcomes for conditional
// branches, packed as a bit vector with an implicit stop bit marking
// its high end. bits holds up to 6 payload bytes; oldBit is the index
// (from bit 0 = LSB of bits[0]) of the oldest outcome, newBit the
// index of the newest. Outcomes must be consumed oldest-to-newest.
type tntPacket struct {
	bits   [6]byte
	oldBit int
	newBit int
	size   int
}

func (p *tntPacket) length() int { return p.size }

// directions returns the packet's taken/not-taken outcomes in the
// order they occurred (oldest first).
func (p *tntPacket) directions() []bool {
	out := make([]bool, 0, p.oldBit-p.newBit+1)
	for pos := p.oldBit; pos >= p.newBit; pos-- {
		bit := (p.bits[pos/8] >> uint(pos%8)) & 1
		out = append(out, bit != 0)
	}
	return out
}

// tipPacket is a Target IP packet: TIP, TIP.PGE, TIP.PGD, or FUP. Only
// TIP (indirect branch/exception target) carries a target address the
// reconstructor uses for replay; the others mark tracing
// enable/disable/transition points and are returned so the caller can
// update its last-IP state without treating them as control flow.
type tipPacket struct {
	kind   tipKind
	target uint64
	hasIP  bool
	size   int
}

func (p *tipPacket) length() int { return p.size }

type tipKind int

const (
	tipTarget tipKind = iota // TIP: indirect branch or interrupt target
	tipPGE                   // TIP.PGE: tracing enabled
	tipPGD                   // TIP.PGD: tracing disabled
	fup                      // FUP: flow update, non-branch IP sync
)

// computeIPBytes returns the number of IP payload bytes that follow an
// IP-packet opcode byte, keyed by the 3-bit compression code in its
// top bits. Codes 5 and 7 are reserved; the caller must treat them as
// fatal.
func computeIPBytes(lead byte) (int, bool) {
	switch lead >> 5 {
	case 0:
		return 0, true
	case 1:
		return 2, true
	case 2:
		return 4, true
	case 3:
		return 6, true
	case 4:
		return 6, true
	case 6:
		return 8, true
	default: // 5, 7
		return 0, false
	}
}

// computeIP decompresses an IP payload against lastIP, following the
// combine rule selected by the opcode's compression code (the same
// code computeIPBytes used to size the payload). data holds exactly
// the payload bytes (not the opcode).
func computeIP(lead byte, data []byte, lastIP uint64) (uint64, error) {
	switch lead >> 5 {
	case 0:
		// No payload: IP is out of context (e.g. after a PGD).
		return 0, nil
	case 1:
		// Bits 0-15 from payload, bits 16-63 from lastIP.
		low := uint64(data[0]) | uint64(data[1])<<8
		return (lastIP &^ 0xffff) | low, nil
	case 2:
		// Bits 0-31 from payload, bits 32-63 from lastIP.
		low := uint64(data[0]) | uint64(data[1])<<8 | uint64(data[2])<<16 | uint64(data[3])<<24
		return (lastIP &^ 0xffffffff) | low, nil
	case 3:
		// Bits 0-47 from payload, sign-extended to bits 48-63.
		var low uint64
		for i := 0; i < 6; i++ {
			low |= uint64(data[i]) << (8 * uint(i))
		}
		if low&(1<<47) != 0 {
			low |= 0xffff_0000_0000_0000
		}
		return low, nil
	case 4:
		// Bits 0-47 from payload, bits 48-63 from lastIP.
		var low uint64
		for i := 0; i < 6; i++ {
			low |= uint64(data[i]) << (8 * uint(i))
		}
		return (lastIP & 0xffff_0000_0000_0000) | low, nil
	case 6:
		// Full 64-bit IP, no compression.
		var ip uint64
		for i := 0; i < 8; i++ {
			ip |= uint64(data[i]) << (8 * uint(i))
		}
		return ip, nil
	default:
		return 0, errReservedIPCode
	}
}

var errReservedIPCode = errIPCode{}

type errIPCode struct{}

func (errIPCode) Error() string { return "reserved IP compression code" }

// decodeLongTNT decodes an 8-byte Long TNT packet (opcode 0x02 0xa3
// followed by 6 payload bytes). The stop bit is the highest set bit
// across the 6 payload bytes; everything below it is an outcome, read
// oldest (highest, just below the stop bit) to newest (bit 0).
func decodeLongTNT(payload [6]byte) (*tntPacket, error) {
	oldBit := -1
	found := false
	for i := 5; i >= 0; i-- {
		if payload[i] == 0 {
			continue
		}
		lz := bits.LeadingZeros8(payload[i])
		// Highest set bit position within payload[i], converted
		// to a bit index into the 48-bit payload, then back off
		// by one to skip the stop bit itself.
		oldBit = (i+1)*8 - lz - 1 - 1
		found = true
		break
	}
	if !found {
		return nil, errNoStopBit
	}
	return &tntPacket{bits: payload, oldBit: oldBit, newBit: 0, size: 8}, nil
}

var errNoStopBit = errStopBit{}

type errStopBit struct{}

func (errStopBit) Error() string { return "TNT packet has no stop bit" }

// decodeShortTNT decodes a 1-byte Short TNT packet. The stop bit is
// the highest set bit; outcomes occupy the bits between it and bit 1
// (bit 0 is the clear header bit), oldest just below the stop bit.
func decodeShortTNT(b byte) (*tntPacket, error) {
	lz := bits.LeadingZeros8(b)
	if lz == 8 {
		return nil, errNoStopBit
	}
	oldBit := 6 - lz
	if oldBit < 0 {
		return nil, errNoStopBit
	}
	return &tntPacket{bits: [6]byte{b}, oldBit: oldBit, newBit: 1, size: 1}, nil
}

// decodePacket decodes the single packet at the start of data; the
// packet's length() is the number of bytes it occupies. lastIP is
// consulted (and, for TIP-family packets with an IP payload, is the
// caller's responsibility to update afterward) for IP decompression.
func decodePacket(data []byte, offset int, lastIP uint64) (packet, error) {
	if len(data) == 0 {
		return nil, newParseError(data, offset, "empty packet stream", nil)
	}
	b0 := data[0]

	switch {
	case b0 == 0x00:
		return padPacket{}, nil

	case b0 == 0x02 && len(data) >= 2 && data[1] == 0x03:
		if len(data) < 4 {
			return nil, newParseError(data, offset, "truncated CBR packet", nil)
		}
		return cbrPacket{}, nil

	case b0 == 0x02 && len(data) >= 2 && data[1] == 0x23:
		return psbendPacket{}, nil

	case b0 == 0x02 && len(data) >= 2 && data[1] == 0x73:
		if len(data) < 7 {
			return nil, newParseError(data, offset, "truncated TMA packet", nil)
		}
		return tmaPacket{}, nil

	case b0 == 0x02 && len(data) >= 2 && data[1] == 0x82:
		return psbPacket{}, nil

	case b0 == 0x02 && len(data) >= 2 && data[1] == 0xa3:
		if len(data) < 8 {
			return nil, newParseError(data, offset, "truncated Long TNT packet", nil)
		}
		var payload [6]byte
		copy(payload[:], data[2:8])
		p, err := decodeLongTNT(payload)
		if err != nil {
			return nil, newParseError(data, offset, "decoding Long TNT", err)
		}
		return p, nil

	case b0 == 0x02 && len(data) >= 2 && data[1] == 0xc8:
		if len(data) < 7 {
			return nil, newParseError(data, offset, "truncated VMCS packet", nil)
		}
		return vmcsPacket{}, nil

	case b0 == 0x19:
		if len(data) < 8 {
			return nil, newParseError(data, offset, "truncated TSC packet", nil)
		}
		return tscPacket{}, nil

	case b0 == 0x59:
		if len(data) < 2 {
			return nil, newParseError(data, offset, "truncated MTC packet", nil)
		}
		return mtcPacket{}, nil

	case b0 == 0x99:
		if len(data) < 2 {
			return nil, newParseError(data, offset, "truncated MODE.Exec packet", nil)
		}
		return modeExecPacket{}, nil

	case b0&0x01 == 0 && b0 != 0x02:
		// Short TNT: any byte whose bit 0 is clear, excluding the
		// extended-opcode lead-in 0x02 handled above.
		p, err := decodeShortTNT(b0)
		if err != nil {
			return nil, newParseError(data, offset, "decoding Short TNT", err)
		}
		return p, nil

	case b0&0x1f == 0x01 || b0&0x1f == 0x0d || b0&0x1f == 0x11 || b0&0x1f == 0x1d:
		return decodeTIP(data, offset, b0, lastIP)

	default:
		return nil, newParseError(data, offset, "unrecognized packet opcode", nil)
	}
}

// decodeTIP decodes a TIP-family packet (TIP, TIP.PGE, TIP.PGD, FUP),
// all of which share an IP-compressed payload whose size and combine
// rule are selected by the opcode's top 3 bits.
func decodeTIP(data []byte, offset int, b0 byte, lastIP uint64) (packet, error) {
	var kind tipKind
	switch b0 & 0x1f {
	case 0x0d:
		kind = tipTarget
	case 0x11:
		kind = tipPGE
	case 0x1d:
		kind = tipPGD
	case 0x01:
		kind = fup
	}

	n, ok := computeIPBytes(b0)
	if !ok {
		return nil, newParseError(data, offset, "reserved IP compression code in TIP packet", nil)
	}
	if len(data) < 1+n {
		return nil, newParseError(data, offset, "truncated TIP packet", nil)
	}

	ip, err := computeIP(b0, data[1:1+n], lastIP)
	if err != nil {
		return nil, newParseError(data, offset, "decoding TIP target IP", err)
	}

	return &tipPacket{
		kind:   kind,
		target: ip,
		hasIP:  n > 0,
		size:   1 + n,
	}, nil
}
