package nes

// Bus wires the CPU, PPU, APU, cartridge mapper and controllers together and
// drives them one PPU dot at a time. It owns the 2 KiB of CPU work RAM and
// the 2 KiB of nametable RAM (CIRAM); the mapper only ever borrows the
// latter by pointer, per addr translation it supplies itself.
type Bus struct {
	ram   [2048]byte
	ciram [2048]byte

	mapper Mapper
	cpu    *CPU
	ppu    *PPU
	apu    *APU

	pad [2]controller

	// OAM DMA: a write to 0x4014 stalls the CPU for 513 (or 514 on an odd
	// CPU cycle) cycles while 256 bytes stream into PPU OAM.
	dmaPending bool
	dmaPage    uint8

	// cpuTimer counts PPU dots (3 per CPU cycle) down to the next CPU step.
	cpuTimer int
}

// NewBus wires a freshly parsed mapper into a new console. Callers normally
// reach this through FromROM rather than constructing a Bus directly.
func NewBus(mapper Mapper) *Bus {
	b := &Bus{mapper: mapper}
	b.ppu = NewPPU(b)
	b.apu = NewAPU(b)
	b.cpu = NewCPU(b)
	b.cpu.Reset()
	return b
}

// CPURead implements the section 4.E address map as seen by the CPU.
func (b *Bus) CPURead(addr uint16) uint8 {
	switch {
	case addr <= 0x1FFF:
		return b.ram[addr&0x07FF]
	case addr <= 0x3FFF:
		return b.ppu.RegisterRead(0x2000 + (addr & 0x0007))
	case addr == 0x4015:
		return b.apu.ReadStatus()
	case addr == 0x4016:
		return 0xE0 | b.pad[0].read()
	case addr == 0x4017:
		return 0xE0 | b.pad[1].read()
	case addr <= 0x4013, addr == 0x4014:
		return 0
	case addr <= 0x401F:
		return 0
	default:
		return b.mapper.CPURead(addr)
	}
}

// CPUWrite implements the write side of the same address map.
func (b *Bus) CPUWrite(addr uint16, value uint8) {
	switch {
	case addr <= 0x1FFF:
		b.ram[addr&0x07FF] = value
	case addr <= 0x3FFF:
		b.ppu.RegisterWrite(0x2000+(addr&0x0007), value)
	case addr == 0x4014:
		b.dmaPending = true
		b.dmaPage = value
	case addr == 0x4015:
		b.apu.WriteStatus(value)
	case addr == 0x4016:
		b.pad[0].write(value)
		b.pad[1].write(value)
	case addr == 0x4017:
		b.apu.WriteFrameCounter(value)
	case addr <= 0x4013:
		b.apu.WriteRegister(addr, value)
	case addr <= 0x401F:
		// unused APU/IO test-mode range
	default:
		b.mapper.CPUWrite(addr, value)
	}
}

// runDMA streams 256 bytes from b.dmaPage<<8 into PPU OAM starting at the
// PPU's current OAM address, consuming one CPU-visible stall of 513 cycles
// (514 if the DMA began on an odd CPU cycle, per hardware).
func (b *Bus) runDMA(oddCycle bool) int {
	for i := 0; i < 256; i++ {
		b.ppu.WriteOAMDMAByte(b.CPURead(uint16(b.dmaPage)<<8 | uint16(i)))
	}
	b.dmaPending = false
	cycles := 513
	if oddCycle {
		cycles = 514
	}
	b.cpu.AddStallCycles(cycles)
	return cycles
}

// SetButtons latches the held-button mask for one controller (0 or 1).
func (b *Bus) SetButtons(player int, mask Button) {
	b.pad[player].buttonsDown = uint8(mask)
}

// TickFrame advances emulation by exactly one NTSC frame (341*262 PPU
// dots), writing the one-per-scanline samples to sink and the finished frame
// into fb (256*240 packed 0xAARRGGBB pixels, row-major). It follows the per-dot
// interleaving of PPU/CPU/APU/mapper ticks.
func (b *Bus) TickFrame(sink func(int16), fb []uint32) {
	for {
		nmi := b.ppu.Tick()
		if nmi {
			b.cpu.NMI()
		}

		b.cpuTimer--
		if b.cpuTimer <= 0 {
			var cycles int
			if b.dmaPending {
				cycles = b.runDMA(b.cpu.totalCycles%2 != 0)
			} else {
				cycles = b.cpu.Step()
			}
			b.cpuTimer += cycles * 3

			for i := 0; i < cycles; i++ {
				if b.apu.TickCPUCycle() || b.apu.dmcIRQ {
					b.cpu.IRQ()
				}
			}
		}

		if b.ppu.endOfScanline {
			b.apu.EmitSample()
			visible := b.ppu.scanline >= 1 && b.ppu.scanline <= 240
			if visible && b.ppu.renderingEnabled() && b.mapper.Scanline() {
				b.cpu.IRQ()
			}
		}

		if b.ppu.frameDone {
			copy(fb, b.ppu.frame[:])
			b.drainSamples(sink)
			return
		}
	}
}

func (b *Bus) drainSamples(sink func(int16)) {
	for _, s := range b.apu.pendingSamples {
		sink(s)
	}
	b.apu.pendingSamples = b.apu.pendingSamples[:0]
}

func (b *Bus) Save(w *StateWriter) {
	w.bytes(b.ram[:])
	w.bytes(b.ciram[:])
	b.mapper.Save(w)
	b.cpu.Save(w)
	b.ppu.Save(w)
	b.apu.Save(w)
	w.u8(b.pad[0].buttonsDown)
	w.u8(b.pad[0].shiftReg)
	w.boolean(b.pad[0].strobe)
	w.u8(b.pad[1].buttonsDown)
	w.u8(b.pad[1].shiftReg)
	w.boolean(b.pad[1].strobe)
}

func (b *Bus) Load(r *StateReader) {
	r.bytes(b.ram[:])
	r.bytes(b.ciram[:])
	b.mapper.Load(r)
	b.cpu.Load(r)
	b.ppu.Load(r)
	b.apu.Load(r)
	b.pad[0].buttonsDown = r.u8()
	b.pad[0].shiftReg = r.u8()
	b.pad[0].strobe = r.boolean()
	b.pad[1].buttonsDown = r.u8()
	b.pad[1].shiftReg = r.u8()
	b.pad[1].strobe = r.boolean()
}
