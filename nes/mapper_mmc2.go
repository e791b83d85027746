package nes

// mmc2 is mapper 9: two independent CHR latches (lower $0000..$0FFF, upper
// $1000..$1FFF), each choosing between an FD-bank and FE-bank register.
// Reading specific tile addresses flips the corresponding latch — this is
// how Punch-Out!! streams its giant sprites through an 8 KiB CHR window.
type mmc2 struct {
	rom rom

	prgBank      uint8
	lowerFDBank  uint8
	lowerFEBank  uint8
	lowerLatchFE bool
	upperFDBank  uint8
	upperFEBank  uint8
	upperLatchFE bool
	mirroring    uint8
}

func newMMC2(r rom) *mmc2 { return &mmc2{rom: r} }

func (m *mmc2) ciramAddr(addr uint16) uint16 {
	shift := uint8(10)
	if m.mirroring != 0 {
		shift = 11
	}
	return ppuAddrToCIRAM(addr, shift)
}

func (m *mmc2) PPURead(addr uint16, ciram *[2048]byte) uint8 {
	if bit13Set(addr) {
		return ciram[m.ciramAddr(addr)]
	}

	var value uint8
	if addr <= 0x0FFF {
		bank := m.lowerFEBank
		if m.lowerLatchFE {
			bank = m.lowerFDBank
		}
		value = m.rom.chr[uint32(bank)*0x1000+uint32(addr)]
	} else {
		bank := m.upperFEBank
		if m.upperLatchFE {
			bank = m.upperFDBank
		}
		value = m.rom.chr[uint32(bank)*0x1000+uint32(addr&0x0FFF)]
	}

	switch {
	case addr == 0x0FD8:
		m.lowerLatchFE = true
	case addr == 0x0FE8:
		m.lowerLatchFE = false
	case addr >= 0x1FD8 && addr <= 0x1FDF:
		m.upperLatchFE = true
	case addr >= 0x1FE8 && addr <= 0x1FEF:
		m.upperLatchFE = false
	}

	return value
}

func (m *mmc2) PPUWrite(addr uint16, value uint8, ciram *[2048]byte) {
	if bit13Set(addr) {
		ciram[m.ciramAddr(addr)] = value
		return
	}
	if m.rom.chrIsRAM {
		m.rom.chr[addr&0x1FFF] = value
	}
}

func (m *mmc2) CPURead(addr uint16) uint8 {
	if addr >= 0x8000 && addr <= 0x9FFF {
		return m.rom.prg[uint32(m.prgBank)*0x2000+uint32(addr&0x1FFF)]
	}
	banks8k := uint32(m.rom.prgBanks16k) * 2
	idx := banks8k*0x2000 - uint32(0xFFFF-addr) - 1
	return m.rom.prg[idx]
}

func (m *mmc2) CPUWrite(addr uint16, value uint8) {
	switch {
	case addr >= 0xA000 && addr <= 0xAFFF:
		m.prgBank = value & 0b1111
	case addr >= 0xB000 && addr <= 0xBFFF:
		m.lowerFDBank = value & 0b11111
	case addr >= 0xC000 && addr <= 0xCFFF:
		m.lowerFEBank = value & 0b11111
	case addr >= 0xD000 && addr <= 0xDFFF:
		m.upperFDBank = value & 0b11111
	case addr >= 0xE000 && addr <= 0xEFFF:
		m.upperFEBank = value & 0b11111
	case addr >= 0xF000:
		m.mirroring = value & 1
	}
}

func (m *mmc2) Scanline() bool { return false }

func (m *mmc2) Save(w *StateWriter) {
	w.u8(m.prgBank)
	w.u8(m.lowerFDBank)
	w.u8(m.lowerFEBank)
	w.boolean(m.lowerLatchFE)
	w.u8(m.upperFDBank)
	w.u8(m.upperFEBank)
	w.boolean(m.upperLatchFE)
	w.u8(m.mirroring)
}

func (m *mmc2) Load(r *StateReader) {
	m.prgBank = r.u8()
	m.lowerFDBank = r.u8()
	m.lowerFEBank = r.u8()
	m.lowerLatchFE = r.boolean()
	m.upperFDBank = r.u8()
	m.upperFEBank = r.u8()
	m.upperLatchFE = r.boolean()
	m.mirroring = r.u8()
}
