package nes

import (
	"fmt"
	"strings"
)

var addressingFormats = map[AddressingMode]string{
	Immediate:           "#$%02X",
	Absolute:            "$%04X",
	ZeroPage:            "$%02X",
	Implied:             "",
	Indirect:            "($%04X)",
	IndexedX:            "$%04X,X",
	IndexedY:            "$%04X,Y",
	ZeroPageIndexedX:    "$%02X,X",
	ZeroPageIndexedY:    "$%02X,Y",
	PreIndexedIndirect:  "($%02X,X)",
	PostIndexedIndirect: "($%02X),Y",
	Relative:            "$%04X",
	Accumulator:         "A",
}

// traceLine renders one nestest.log-style line to c.Trace: address, raw
// opcode bytes, mnemonic, resolved operand, register file and PPU dot at
// the start of the instruction that just got decoded.
func (c *CPU) traceLine(instPC uint16, opcode byte, op Operand, a, x, y, p, sp uint8) {
	inst := instructions[opcode]
	var b strings.Builder

	fmt.Fprintf(&b, "%04X  ", instPC)

	switch inst.Size {
	case 1:
		fmt.Fprintf(&b, "%02X      ", opcode)
	case 2:
		fmt.Fprintf(&b, "%02X %02X   ", opcode, c.read(instPC+1))
	case 3:
		fmt.Fprintf(&b, "%02X %02X %02X", opcode, c.read(instPC+1), c.read(instPC+2))
	}

	if inst.Illegal {
		b.WriteString(" *")
	} else {
		b.WriteString("  ")
	}

	fmt.Fprintf(&b, "%s ", inst.Name)

	switch inst.Mode {
	case Accumulator:
		b.WriteString("A")
	case Implied:
	case Relative:
		fmt.Fprintf(&b, addressingFormats[inst.Mode], uint16(int32(c.PC)+int32(op.rel)))
	default:
		var arg uint16
		switch inst.Mode {
		case Immediate, ZeroPage, ZeroPageIndexedX, ZeroPageIndexedY, PreIndexedIndirect, PostIndexedIndirect:
			arg = uint16(c.read(instPC + 1))
		case Absolute, Indirect, IndexedX, IndexedY:
			arg = uint16(c.read(instPC+1)) | uint16(c.read(instPC+2))<<8
		}
		fmt.Fprintf(&b, addressingFormats[inst.Mode], arg)
	}

	line := b.String()
	if len(line) < 48 {
		line += strings.Repeat(" ", 48-len(line))
	}

	dot, scanLine := 0, 0
	if c.bus != nil && c.bus.ppu != nil {
		dot, scanLine = c.bus.ppu.dot, c.bus.ppu.scanline
	}
	fmt.Fprintf(c.Trace, "%sA:%02X X:%02X Y:%02X P:%02X SP:%02X PPU:%3d,%3d CYC:%d\n",
		line, a, x, y, p, sp, scanLine, dot, c.totalCycles)
}
