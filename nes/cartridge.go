package nes

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Mapper decodes the CPU and PPU address spaces for one cartridge. The Bus
// owns CIRAM and lends it by reference on each PPU access; a Mapper must
// never retain that reference between calls.
type Mapper interface {
	CPURead(addr uint16) uint8
	CPUWrite(addr uint16, value uint8)
	PPURead(addr uint16, ciram *[2048]byte) uint8
	PPUWrite(addr uint16, value uint8, ciram *[2048]byte)

	// Scanline is invoked once per rendered scanline's end; a true return
	// asserts the mapper's IRQ line.
	Scanline() bool

	Save(w *StateWriter)
	Load(r *StateReader)
}

// rom is the immutable parsed image shared by every mapper implementation.
type rom struct {
	mapperNo      uint8
	prgBanks16k   uint8
	chrBanks8k    uint8
	prg           []byte
	chr           []byte
	chrIsRAM      bool
	ciramA10Shift uint8 // 10 = vertical mirroring, 11 = horizontal
}

var inesMagic = []byte{'N', 'E', 'S', 0x1A}

type inesHeader struct {
	Magic      [4]byte
	PRGBanks   byte
	CHRBanks   byte
	Flags6     byte
	Flags7     byte
	Flags8to10 [3]byte
	Padding    [5]byte
}

// loadROM parses an iNES image and constructs the mapper its header number
// names. Every field follows section 6's layout; the padding-bytes check
// against a polluted NES 2.0 tail follows the same fallback the original
// header parser used.
func loadROM(r io.Reader) (Mapper, error) {
	var h inesHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, ErrRomTruncated
	}
	if !bytes.Equal(h.Magic[:], inesMagic) {
		return nil, ErrRomMagicMismatch
	}

	mirroring := h.Flags6&0x01 != 0
	hasTrainer := h.Flags6&0x04 != 0
	mapperNo := (h.Flags7 & 0xF0) | (h.Flags6 >> 4)
	if h.Padding != ([5]byte{}) {
		mapperNo = h.Flags6 >> 4
	}

	if hasTrainer {
		trainer := make([]byte, 512)
		if _, err := io.ReadFull(r, trainer); err != nil {
			return nil, ErrTrainerTruncated
		}
	}

	prg := make([]byte, int(h.PRGBanks)*16384)
	if _, err := io.ReadFull(r, prg); err != nil {
		return nil, ErrRomTruncated
	}

	chrIsRAM := h.CHRBanks == 0
	var chr []byte
	if chrIsRAM {
		chr = make([]byte, 8192)
	} else {
		chr = make([]byte, int(h.CHRBanks)*8192)
		if _, err := io.ReadFull(r, chr); err != nil {
			return nil, ErrRomTruncated
		}
	}

	shift := uint8(11)
	if mirroring {
		shift = 10
	}

	img := rom{
		mapperNo:      mapperNo,
		prgBanks16k:   h.PRGBanks,
		chrBanks8k:    h.CHRBanks,
		prg:           prg,
		chr:           chr,
		chrIsRAM:      chrIsRAM,
		ciramA10Shift: shift,
	}

	switch mapperNo {
	case 0:
		return newNROM(img), nil
	case 1:
		return newMMC1(img), nil
	case 2:
		return newUNROM(img), nil
	case 4:
		return newMMC3(img), nil
	case 9:
		return newMMC2(img), nil
	default:
		return nil, &UnsupportedMapperError{Number: mapperNo}
	}
}

// ppuAddrToCIRAM computes the shared single-nametable/horizontal/vertical
// CIRAM index every stock mapper uses; MMC1 overrides it for one-screen
// modes.
func ppuAddrToCIRAM(addr uint16, a10Shift uint8) uint16 {
	return (addr & 0x3FF) | (((addr >> a10Shift) & 1) << 10)
}

func bit13Set(addr uint16) bool { return addr&(1<<13) != 0 }
