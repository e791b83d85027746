package nes

// mmc1 is mapper 1: a 5-bit serial shift register fed one bit per write to
// 0x8000+. The fifth write latches into one of four internal registers
// selected by address bits 13..14: control (mirroring + PRG/CHR mode), CHR
// bank 0, CHR bank 1, PRG bank. A write with bit 7 set resets the shift
// register and forces PRG mode to fix-last.
type mmc1 struct {
	rom rom

	control     uint8
	shift       uint8
	shiftCount  uint8
	chrBank4Lo  uint8
	chrBank4Hi  uint8
	chrBank8    uint8
	prgBankLo   uint8
	prgBankHi   uint8
	prgBank32   uint8
	mirroring   uint8 // 0/1 one-screen, 2 vertical, 3 horizontal
	ram         [32 * 1024]byte
}

func newMMC1(r rom) *mmc1 {
	return &mmc1{
		rom:       r,
		control:   0x1C,
		mirroring: 3,
		prgBankHi: r.prgBanks16k - 1,
	}
}

func (m *mmc1) ciramAddr(addr uint16) uint16 {
	shift := m.rom.ciramA10Shift
	switch m.mirroring {
	case 0:
		// one-screen lower bank: every nametable aliases CIRAM page 0.
		return addr & 0x3FF
	case 1:
		// one-screen upper bank: every nametable aliases CIRAM page 1.
		return 0x400 | (addr & 0x3FF)
	case 2:
		shift = 10
	case 3:
		shift = 11
	}
	return ppuAddrToCIRAM(addr, shift)
}

func (m *mmc1) PPURead(addr uint16, ciram *[2048]byte) uint8 {
	if bit13Set(addr) {
		return ciram[m.ciramAddr(addr)]
	}
	if m.rom.chrIsRAM {
		return m.rom.chr[addr&0x1FFF]
	}
	if m.control&0b10000 != 0 {
		if addr < 0x1000 {
			return m.rom.chr[uint32(m.chrBank4Lo)*0x1000+uint32(addr&0x0FFF)]
		}
		return m.rom.chr[uint32(m.chrBank4Hi)*0x1000+uint32(addr&0x0FFF)]
	}
	banks8k := m.rom.chrBanks8k
	if banks8k == 0 {
		banks8k = 1
	}
	bank := m.chrBank8 % banks8k
	return m.rom.chr[uint32(bank)*0x2000+uint32(addr&0x1FFF)]
}

func (m *mmc1) PPUWrite(addr uint16, value uint8, ciram *[2048]byte) {
	if bit13Set(addr) {
		ciram[m.ciramAddr(addr)] = value
		return
	}
	if m.rom.chrIsRAM {
		m.rom.chr[addr&0x1FFF] = value
	}
}

func (m *mmc1) CPURead(addr uint16) uint8 {
	switch {
	case addr >= 0x6000 && addr <= 0x7FFF:
		return m.ram[addr&0x1FFF]
	case addr >= 0x8000:
		if m.control&0b01000 != 0 {
			if addr >= 0xC000 {
				return m.rom.prg[uint32(m.prgBankHi)*0x4000+uint32(addr&0x3FFF)]
			}
			return m.rom.prg[uint32(m.prgBankLo)*0x4000+uint32(addr&0x3FFF)]
		}
		return m.rom.prg[uint32(m.prgBank32)*0x8000+uint32(addr&0x7FFF)]
	default:
		return 0
	}
}

func (m *mmc1) CPUWrite(addr uint16, value uint8) {
	if addr >= 0x6000 && addr <= 0x7FFF {
		m.ram[addr&0x1FFF] = value
		return
	}
	if addr < 0x8000 {
		return
	}

	if value&0x80 != 0 {
		m.shift = 0
		m.shiftCount = 0
		m.control |= 0x0C
		return
	}

	m.shift = (m.shift >> 1) | ((value & 1) << 4)
	m.shiftCount++
	if m.shiftCount != 5 {
		return
	}

	switch (addr >> 13) & 0b11 {
	case 0:
		m.mirroring = m.shift & 0b11
		m.control = m.shift & 0x1F
	case 1:
		if m.control&0b10000 != 0 {
			m.chrBank4Lo = m.shift & 0x1F
		} else {
			m.chrBank8 = m.shift & 0x1E
		}
	case 2:
		if m.control&0b10000 != 0 {
			m.chrBank4Hi = m.shift & 0x1F
		}
	case 3:
		switch (m.control >> 2) & 0x03 {
		case 0, 1:
			m.prgBank32 = (m.shift & 0x0E) >> 1
		case 2:
			m.prgBankLo = 0
			m.prgBankHi = m.shift & 0x0F
		case 3:
			m.prgBankLo = m.shift & 0x0F
			m.prgBankHi = m.rom.prgBanks16k - 1
		}
	}

	m.shift = 0
	m.shiftCount = 0
}

func (m *mmc1) Scanline() bool { return false }

func (m *mmc1) Save(w *StateWriter) {
	w.u8(m.control)
	w.u8(m.shift)
	w.u8(m.shiftCount)
	w.u8(m.chrBank4Lo)
	w.u8(m.chrBank4Hi)
	w.u8(m.chrBank8)
	w.u8(m.prgBankLo)
	w.u8(m.prgBankHi)
	w.u8(m.prgBank32)
	w.u8(m.mirroring)
	w.bytes(m.ram[:])
}

func (m *mmc1) Load(r *StateReader) {
	m.control = r.u8()
	m.shift = r.u8()
	m.shiftCount = r.u8()
	m.chrBank4Lo = r.u8()
	m.chrBank4Hi = r.u8()
	m.chrBank8 = r.u8()
	m.prgBankLo = r.u8()
	m.prgBankHi = r.u8()
	m.prgBank32 = r.u8()
	m.mirroring = r.u8()
	r.bytes(m.ram[:])
}
