package nes

import (
	"strings"
	"testing"
)

// newCPUTestBus builds a Bus backed by a 16 KiB NROM PRG bank with prg
// copied to the start of the $8000 window and the reset vector pointed at
// $8000, so tests can lay out a short program and single-step it.
func newCPUTestBus(prg []byte) *Bus {
	prgBank := make([]byte, 16384)
	copy(prgBank, prg)
	prgBank[0x3FFC] = 0x00
	prgBank[0x3FFD] = 0x80

	m := newNROM(rom{
		prgBanks16k: 1,
		chrBanks8k:  1,
		prg:         prgBank,
		chr:         make([]byte, 8192),
	})
	return NewBus(m)
}

func TestCPU_Reset(t *testing.T) {
	b := newCPUTestBus(nil)
	c := b.cpu

	if c.PC != 0x8000 {
		t.Fatalf("PC after reset = %#04x, want 0x8000", c.PC)
	}
	if c.SP != 0xFD {
		t.Fatalf("SP after reset = %#02x, want 0xFD", c.SP)
	}
	if !c.getFlag(flagI) || !c.getFlag(flagU) {
		t.Fatalf("status after reset = %#02x, want I and U set", c.status)
	}
}

func TestCPU_ADC(t *testing.T) {
	type want struct {
		a        byte
		carry    bool
		overflow bool
	}
	tests := []struct {
		name string
		a, m byte
		want want
	}{
		{"no carry or overflow", 0x50, 0x10, want{0x60, false, false}},
		{"no carry, signed overflow", 0x50, 0x50, want{0xA0, false, true}},
		{"no carry or overflow, negative", 0x50, 0x90, want{0xE0, false, false}},
		{"carry, no overflow", 0x50, 0xD0, want{0x20, true, false}},
		{"no carry or overflow from negative", 0xD0, 0x10, want{0xE0, false, false}},
		{"carry but no overflow", 0xD0, 0x50, want{0x20, true, false}},
		{"carry and overflow", 0xD0, 0x90, want{0x60, true, true}},
		{"carry, no overflow again", 0xD0, 0xD0, want{0xA0, true, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCPUTestBus(nil).cpu
			c.A = tt.a
			c.adc(Operand{kind: operandImmediate, value: tt.m})

			if c.A != tt.want.a {
				t.Errorf("A = %#02x, want %#02x", c.A, tt.want.a)
			}
			if got := c.getFlag(flagC); got != tt.want.carry {
				t.Errorf("carry = %v, want %v", got, tt.want.carry)
			}
			if got := c.getFlag(flagV); got != tt.want.overflow {
				t.Errorf("overflow = %v, want %v", got, tt.want.overflow)
			}
		})
	}
}

func TestCPU_SBC(t *testing.T) {
	c := newCPUTestBus(nil).cpu
	c.A = 0x50
	c.setFlag(flagC, true) // no borrow pending
	c.sbc(Operand{kind: operandImmediate, value: 0x10})

	if c.A != 0x40 {
		t.Fatalf("A = %#02x, want 0x40", c.A)
	}
	if !c.getFlag(flagC) {
		t.Fatalf("carry clear after SBC with no borrow, want set")
	}
}

func TestCPU_ZeroPageXAddressing(t *testing.T) {
	b := newCPUTestBus(nil)
	c := b.cpu
	b.CPUWrite(0x0042, 0x99)

	c.PC = 0x0400
	c.write(c.PC, 0x40)
	c.X = 0x02
	op := c.amZeroPageX()
	if op.addr != 0x0042 {
		t.Fatalf("addr = %#04x, want 0x0042", op.addr)
	}
	if got := c.operandValue(op); got != 0x99 {
		t.Fatalf("operandValue = %#02x, want 0x99", got)
	}
}

func TestCPU_ZeroPageXWraps(t *testing.T) {
	c := newCPUTestBus(nil).cpu
	c.PC = 0x0400
	c.write(c.PC, 0xFF)
	c.X = 0x02
	op := c.amZeroPageX()
	if op.addr != 0x0001 {
		t.Fatalf("zero-page,X wraparound: addr = %#04x, want 0x0001", op.addr)
	}
}

func TestCPU_AbsoluteXPageCross(t *testing.T) {
	c := newCPUTestBus(nil).cpu
	c.PC = 0x0400
	c.write(c.PC, 0xFF)
	c.write(c.PC+1, 0x00)
	c.X = 0x01

	op := c.amAbsoluteX()
	if op.addr != 0x0100 {
		t.Fatalf("addr = %#04x, want 0x0100", op.addr)
	}
	if !c.penaltyAddr {
		t.Fatalf("expected page-cross penalty flagged")
	}
}

func TestCPU_IndirectJMPPageBug(t *testing.T) {
	b := newCPUTestBus(nil)
	c := b.cpu
	// Pointer at $02FF with low byte 0xFF: hardware reads the high byte
	// from $0200, not $0300.
	b.CPUWrite(0x02FF, 0x00)
	b.CPUWrite(0x0200, 0x80)
	b.CPUWrite(0x0300, 0xFF)

	c.PC = 0x0400
	c.write(c.PC, 0xFF)
	c.write(c.PC+1, 0x02)
	op := c.amIndirect()
	if op.addr != 0x8000 {
		t.Fatalf("JMP indirect page-wrap addr = %#04x, want 0x8000", op.addr)
	}
}

func TestCPU_StackPushPull(t *testing.T) {
	c := newCPUTestBus(nil).cpu
	c.A = 0x37
	c.pha(Operand{})
	c.A = 0
	c.pla(Operand{})
	if c.A != 0x37 {
		t.Fatalf("A after PHA/PLA = %#02x, want 0x37", c.A)
	}
	if c.getFlag(flagZ) {
		t.Fatalf("zero flag set after pulling nonzero value")
	}
}

func TestCPU_JSRRTS(t *testing.T) {
	prg := []byte{
		0x20, 0x05, 0x80, // JSR $8005
		0x00, // padding (unreached)
		0x00,
		0xEA, // NOP at $8005
		0x60, // RTS
	}
	b := newCPUTestBus(prg)
	c := b.cpu

	c.Step() // JSR
	if c.PC != 0x8005 {
		t.Fatalf("PC after JSR = %#04x, want 0x8005", c.PC)
	}
	c.Step() // NOP
	c.Step() // RTS
	if c.PC != 0x8003 {
		t.Fatalf("PC after RTS = %#04x, want 0x8003", c.PC)
	}
}

func TestCPU_BranchTakenCrossesPage(t *testing.T) {
	prg := make([]byte, 0x100)
	prg[0xFD] = 0xB0 // BCS at $80FD
	prg[0xFE] = 0x10 // +16 -> lands at $810F, crossing into the next page

	b := newCPUTestBus(prg)
	c := b.cpu
	c.PC = 0x80FD
	c.setFlag(flagC, true)

	cycles := c.Step()
	if c.PC != 0x810F {
		t.Fatalf("PC after branch = %#04x, want 0x810F", c.PC)
	}
	if cycles < 4 {
		t.Fatalf("branch crossing a page should cost at least 4 cycles, got %d", cycles)
	}
}

func TestCPU_IllegalLAXAndSAX(t *testing.T) {
	b := newCPUTestBus(nil)
	c := b.cpu
	b.CPUWrite(0x0010, 0x77)

	c.lax(Operand{kind: operandMemory, addr: 0x0010})
	if c.A != 0x77 || c.X != 0x77 {
		t.Fatalf("LAX: A=%#02x X=%#02x, want both 0x77", c.A, c.X)
	}

	c.A, c.X = 0x0F, 0xF0
	c.sax(Operand{kind: operandMemory, addr: 0x0020})
	if got := b.CPURead(0x0020); got != 0x00 {
		t.Fatalf("SAX wrote %#02x, want 0x00 (0x0F & 0xF0)", got)
	}
}

func TestCPU_IRQGatedByInterruptDisable(t *testing.T) {
	c := newCPUTestBus(nil).cpu
	c.setFlag(flagI, true)
	preSP := c.SP
	c.IRQ()
	if c.SP != preSP {
		t.Fatalf("IRQ pushed state while interrupt-disable was set")
	}
}

func TestCPU_NMIAlwaysFires(t *testing.T) {
	prg := make([]byte, 0x3FFC)
	prg[0x3FFA] = 0x34 // NMI vector at $FFFA/$FFFB
	prg[0x3FFB] = 0x12
	b := newCPUTestBus(prg)
	c := b.cpu
	c.setFlag(flagI, true)

	c.NMI()
	if c.PC != 0x1234 {
		t.Fatalf("PC after NMI = %#04x, want 0x1234", c.PC)
	}
}

func TestCPU_TraceEmitsOneLinePerStep(t *testing.T) {
	prg := []byte{0xEA, 0xEA} // NOP, NOP
	b := newCPUTestBus(prg)
	c := b.cpu

	var out strings.Builder
	c.Trace = &out

	c.Step()
	c.Step()

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d trace lines, want 2: %q", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "8000  EA      ") {
		t.Fatalf("first trace line = %q, want NOP at $8000", lines[0])
	}
	if !strings.Contains(lines[0], "NOP") {
		t.Fatalf("trace line missing mnemonic: %q", lines[0])
	}
}

func TestCPU_SaveLoadRoundTrip(t *testing.T) {
	b := newCPUTestBus(nil)
	c := b.cpu
	c.A, c.X, c.Y, c.SP, c.status = 0x11, 0x22, 0x33, 0xAA, 0xC1
	c.PC = 0x9000
	c.totalCycles = 123456

	var buf strings.Builder
	sw := NewStateWriter(&buf)
	c.Save(sw)
	if err := sw.Err(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	c2 := newCPUTestBus(nil).cpu
	sr := NewStateReader(strings.NewReader(buf.String()))
	c2.Load(sr)
	if err := sr.Err(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c2.A != c.A || c2.X != c.X || c2.Y != c.Y || c2.SP != c.SP || c2.status != c.status {
		t.Fatalf("register mismatch after round trip: got %+v, want A=%#02x X=%#02x Y=%#02x SP=%#02x P=%#02x",
			c2, c.A, c.X, c.Y, c.SP, c.status)
	}
	if c2.PC != c.PC {
		t.Fatalf("PC = %#04x, want %#04x", c2.PC, c.PC)
	}
	if c2.totalCycles != c.totalCycles {
		t.Fatalf("totalCycles = %d, want %d", c2.totalCycles, c.totalCycles)
	}
}
