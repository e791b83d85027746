package nes

import (
	"strings"
	"testing"
)

func newTestAPU() *APU {
	m := newNROM(rom{
		prgBanks16k: 1,
		chrBanks8k:  1,
		prg:         make([]byte, 16384),
		chr:         make([]byte, 8192),
	})
	return NewBus(m).apu
}

func TestAPU_PulseLengthCounterLoadsAndEnables(t *testing.T) {
	a := newTestAPU()
	a.WriteStatus(0x01) // enable pulse 0
	a.WriteRegister(0x4003, 0x08) // length index 1 -> lengthTable[1] = 254

	if a.pulse0.lengthCounter != lengthTable[1] {
		t.Fatalf("pulse0 length counter = %d, want %d", a.pulse0.lengthCounter, lengthTable[1])
	}

	a.WriteStatus(0x00) // disable
	if a.pulse0.lengthCounter != 0 {
		t.Fatalf("disabling a channel should zero its length counter, got %d", a.pulse0.lengthCounter)
	}
}

func TestAPU_StatusReportsActiveLengthCounters(t *testing.T) {
	a := newTestAPU()
	a.WriteStatus(0x01)
	a.WriteRegister(0x4003, 0x08)

	if got := a.ReadStatus(); got&0x01 == 0 {
		t.Fatalf("status = %#02x, want bit0 set for active pulse0 length counter", got)
	}
}

func TestAPU_FrameSequencer4StepFiresIRQ(t *testing.T) {
	a := newTestAPU()
	a.WriteFrameCounter(0x00) // 4-step mode, IRQ enabled

	fired := false
	for i := 0; i < 30000; i++ {
		if a.clockFrameSequencer() {
			fired = true
			break
		}
	}
	if !fired {
		t.Fatalf("4-step frame sequencer never raised IRQ within one full sequence")
	}
	if !a.frameIRQ {
		t.Fatalf("frameIRQ flag not set after sequencer fired")
	}
}

func TestAPU_FrameSequencer5StepNeverFiresIRQ(t *testing.T) {
	a := newTestAPU()
	a.WriteFrameCounter(0x80) // 5-step mode, IRQ disabled by mode bit

	for i := 0; i < 40000; i++ {
		if a.clockFrameSequencer() {
			t.Fatalf("5-step mode should never assert the frame IRQ")
		}
	}
}

func TestAPU_WriteFrameCounter4017ClearsIRQWhenDisabled(t *testing.T) {
	a := newTestAPU()
	a.frameIRQ = true
	a.WriteFrameCounter(0x40) // IRQ inhibit bit set
	if a.frameIRQ {
		t.Fatalf("writing $4017 with the IRQ-inhibit bit set should clear a pending frame IRQ")
	}
}

func TestAPU_DMCStartsSampleOnEnable(t *testing.T) {
	a := newTestAPU()
	a.WriteRegister(0x4012, 0x00) // sample addr = 0xC000
	a.WriteRegister(0x4013, 0x00) // sample length = 1
	a.WriteStatus(0x10)           // enable DMC

	if a.dmc.currentAddr != 0xC000 {
		t.Fatalf("dmc currentAddr = %#04x, want 0xC000", a.dmc.currentAddr)
	}
	if a.dmc.bytesRemaining != 1 {
		t.Fatalf("dmc bytesRemaining = %d, want 1", a.dmc.bytesRemaining)
	}
}

func TestAPU_DMCAssertsIRQWhenSampleExhausted(t *testing.T) {
	a := newTestAPU()
	a.bus.CPUWrite(0xC000, 0xFF)
	a.WriteRegister(0x4010, 0x80) // IRQ enabled, no loop, rate index 0 (slowest)
	a.WriteRegister(0x4012, 0x00)
	a.WriteRegister(0x4013, 0x00) // length 1 byte
	a.WriteStatus(0x10)

	for i := 0; i < 200000 && !a.dmc.irqFlag; i++ {
		a.dmc.clockFreq()
	}
	if !a.dmc.irqFlag {
		t.Fatalf("dmc never raised its IRQ after exhausting its one-byte sample")
	}
}

func TestAPU_DMCLoopingNeverAssertsIRQ(t *testing.T) {
	a := newTestAPU()
	a.bus.CPUWrite(0xC000, 0xFF)
	a.WriteRegister(0x4010, 0x40) // loop, IRQ disabled
	a.WriteRegister(0x4012, 0x00)
	a.WriteRegister(0x4013, 0x00)
	a.WriteStatus(0x10)

	for i := 0; i < 5000; i++ {
		a.dmc.clockFreq()
		if a.dmc.irqFlag {
			t.Fatalf("looping DMC sample should never raise an IRQ")
		}
	}
}

func TestAPU_EmitSampleFiresOncePerScanlineTransition(t *testing.T) {
	a := newTestAPU()
	for i := 0; i < 4; i++ {
		a.TickCPUCycle()
		a.bus.ppu.scanline++
		a.EmitSample()
	}
	if len(a.pendingSamples) != 4 {
		t.Fatalf("expected one emitted sample per scanline transition, got %d", len(a.pendingSamples))
	}
}

func TestAPU_EmitSampleSkipsWithoutScanlineChange(t *testing.T) {
	a := newTestAPU()
	for i := 0; i < 50; i++ {
		a.TickCPUCycle()
		a.EmitSample()
	}
	if len(a.pendingSamples) != 1 {
		t.Fatalf("calling EmitSample without a scanline change should emit exactly the initial sample, got %d", len(a.pendingSamples))
	}
}

func TestAPU_TickFrameEmitsExactly262Samples(t *testing.T) {
	b := NewBus(newNROM(rom{
		prgBanks16k: 1,
		chrBanks8k:  1,
		prg:         make([]byte, 16384),
		chr:         make([]byte, 8192),
	}))
	fb := make([]uint32, 256*240)
	var samples int
	b.TickFrame(func(int16) { samples++ }, fb)
	if samples != 262 {
		t.Fatalf("samples emitted in one frame = %d, want 262", samples)
	}
}

func TestAPU_MixSilenceIsZero(t *testing.T) {
	a := newTestAPU()
	// The triangle holds its last level; step 15 of its sequence outputs 0.
	a.triangle.triStep = 15
	a.mixSample()
	if a.lowPass != 0 {
		t.Fatalf("mixing five silent channels = %d, want 0", a.lowPass)
	}
}

func TestAPU_SaveLoadRoundTrip(t *testing.T) {
	a := newTestAPU()
	a.WriteStatus(0x0F)
	a.WriteRegister(0x4003, 0x10)
	a.WriteRegister(0x4007, 0x18)
	a.WriteRegister(0x400F, 0x08)
	a.cycleParity = 7
	a.lastScanline = 117
	a.lowPass = 4242

	var buf strings.Builder
	sw := NewStateWriter(&buf)
	a.Save(sw)
	if err := sw.Err(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	b2 := newTestAPU()
	sr := NewStateReader(strings.NewReader(buf.String()))
	b2.Load(sr)
	if err := sr.Err(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if b2.pulse0.lengthCounter != a.pulse0.lengthCounter {
		t.Fatalf("pulse0.lengthCounter = %d, want %d", b2.pulse0.lengthCounter, a.pulse0.lengthCounter)
	}
	if b2.pulse1.lengthCounter != a.pulse1.lengthCounter {
		t.Fatalf("pulse1.lengthCounter = %d, want %d", b2.pulse1.lengthCounter, a.pulse1.lengthCounter)
	}
	if b2.noise.lengthCounter != a.noise.lengthCounter {
		t.Fatalf("noise.lengthCounter = %d, want %d", b2.noise.lengthCounter, a.noise.lengthCounter)
	}
	if b2.cycleParity != a.cycleParity {
		t.Fatalf("cycleParity = %d, want %d", b2.cycleParity, a.cycleParity)
	}
	if b2.lastScanline != a.lastScanline {
		t.Fatalf("lastScanline = %d, want %d", b2.lastScanline, a.lastScanline)
	}
	if b2.lowPass != a.lowPass {
		t.Fatalf("lowPass = %d, want %d", b2.lowPass, a.lowPass)
	}
}
