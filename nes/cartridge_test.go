package nes

import (
	"bytes"
	"errors"
	"testing"
)

func makeHeader(prgBanks, chrBanks, flags6, flags7 byte) []byte {
	h := make([]byte, 16)
	copy(h, inesMagic)
	h[4] = prgBanks
	h[5] = chrBanks
	h[6] = flags6
	h[7] = flags7
	return h
}

func romWithMapper(mapperNo byte, prgBanks, chrBanks byte) []byte {
	lo := mapperNo & 0x0F
	hi := mapperNo & 0xF0
	h := makeHeader(prgBanks, chrBanks, lo<<4, hi)
	buf := append([]byte{}, h...)
	buf = append(buf, make([]byte, int(prgBanks)*16384)...)
	buf = append(buf, make([]byte, int(chrBanks)*8192)...)
	return buf
}

func TestLoadROM_MagicMismatch(t *testing.T) {
	bad := []byte{'N', 'O', 'S', 0x1A, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	_, err := loadROM(bytes.NewReader(bad))
	if !errors.Is(err, ErrRomMagicMismatch) {
		t.Fatalf("loadROM() error = %v, want %v", err, ErrRomMagicMismatch)
	}
}

func TestLoadROM_Truncated(t *testing.T) {
	_, err := loadROM(bytes.NewReader(nil))
	if !errors.Is(err, ErrRomTruncated) {
		t.Fatalf("loadROM() error = %v, want %v", err, ErrRomTruncated)
	}

	short := romWithMapper(0, 2, 1)
	short = short[:len(short)-100]
	if _, err := loadROM(bytes.NewReader(short)); err == nil {
		t.Fatalf("loadROM() on truncated PRG/CHR data: want error, got nil")
	}
}

func TestLoadROM_UnsupportedMapper(t *testing.T) {
	rom := romWithMapper(255, 2, 1)
	_, err := loadROM(bytes.NewReader(rom))
	var target *UnsupportedMapperError
	if !errors.As(err, &target) {
		t.Fatalf("loadROM() error = %v, want *UnsupportedMapperError", err)
	}
	if target.Number != 255 {
		t.Fatalf("UnsupportedMapperError.Number = %d, want 255", target.Number)
	}
}

func TestLoadROM_SupportedMappers(t *testing.T) {
	for _, mapperNo := range []byte{0, 1, 2, 4, 9} {
		rom := romWithMapper(mapperNo, 2, 1)
		m, err := loadROM(bytes.NewReader(rom))
		if err != nil {
			t.Fatalf("loadROM() mapper %d: unexpected error %v", mapperNo, err)
		}
		if m == nil {
			t.Fatalf("loadROM() mapper %d: got nil Mapper", mapperNo)
		}
	}
}

func TestLoadROM_CHRRAMFallback(t *testing.T) {
	rom := romWithMapper(0, 2, 0)
	m, err := loadROM(bytes.NewReader(rom))
	if err != nil {
		t.Fatalf("loadROM() with 0 CHR banks: unexpected error %v", err)
	}

	var ciram [2048]byte
	m.PPUWrite(0x0000, 0x42, &ciram)
	if got := m.PPURead(0x0000, &ciram); got != 0x42 {
		t.Fatalf("CHR RAM roundtrip: got %#02x, want 0x42", got)
	}
}

func TestLoadROM_Trainer(t *testing.T) {
	h := makeHeader(2, 1, 0x04, 0)
	buf := append([]byte{}, h...)
	buf = append(buf, make([]byte, 512)...)
	buf = append(buf, make([]byte, 2*16384)...)
	buf = append(buf, make([]byte, 8192)...)

	if _, err := loadROM(bytes.NewReader(buf)); err != nil {
		t.Fatalf("loadROM() with trainer: unexpected error %v", err)
	}

	truncated := append([]byte{}, h...)
	truncated = append(truncated, make([]byte, 100)...)
	if _, err := loadROM(bytes.NewReader(truncated)); !errors.Is(err, ErrTrainerTruncated) {
		t.Fatalf("loadROM() truncated trainer: error = %v, want %v", err, ErrTrainerTruncated)
	}
}

func TestCIRAMMirroring(t *testing.T) {
	horizontalShift := uint8(11)
	verticalShift := uint8(10)

	if got := ppuAddrToCIRAM(0x2000, horizontalShift); got != ppuAddrToCIRAM(0x2400, horizontalShift) {
		t.Fatalf("horizontal mirroring: 0x2000 (%#x) should alias 0x2400 (%#x)", got, ppuAddrToCIRAM(0x2400, horizontalShift))
	}
	if got := ppuAddrToCIRAM(0x2000, verticalShift); got != ppuAddrToCIRAM(0x2800, verticalShift) {
		t.Fatalf("vertical mirroring: 0x2000 (%#x) should alias 0x2800 (%#x)", got, ppuAddrToCIRAM(0x2800, verticalShift))
	}
}
