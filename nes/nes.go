package nes

import "io"

// NES is the top-level handle a host program drives: load a ROM, feed it
// controller state, and pull one finished frame and its audio samples at a
// time.
type NES struct {
	bus *Bus
}

// FromROM parses an iNES image and wires it to a fresh Bus. The returned
// NES has already run a power-up CPU reset.
func FromROM(r io.Reader) (*NES, error) {
	mapper, err := loadROM(r)
	if err != nil {
		return nil, err
	}
	return &NES{bus: NewBus(mapper)}, nil
}

// SetButtons latches the held-button mask for player 0 or 1.
func (n *NES) SetButtons(player int, mask Button) {
	n.bus.SetButtons(player, mask)
}

// TickFrame runs exactly one NTSC frame, writing every mixed audio sample to
// sink in playback order and the finished frame into fb, which must be at
// least 256*240 elements.
func (n *NES) TickFrame(sink func(int16), fb []uint32) {
	n.bus.TickFrame(sink, fb)
}

// SetTrace installs (or clears, with nil) a disassembly sink the CPU writes
// one line to per instruction.
func (n *NES) SetTrace(w io.Writer) {
	n.bus.cpu.Trace = w
}

// DumpPatternTables and DumpNametables expose the PPU's debug views for
// tooling and tests; see PPU.DumpPatternTables/DumpNametables.
func (n *NES) DumpPatternTables(out []uint32) { n.bus.ppu.DumpPatternTables(out) }
func (n *NES) DumpNametables(out []uint32)    { n.bus.ppu.DumpNametables(out) }

// Save and Load serialize and restore the CPU, PPU, APU, mapper, RAM, CIRAM
// and controller state. The PPU's background fetch latches, shift registers
// and per-line sprite buffers, and the Bus's pending OAM DMA and CPU dot
// timer, are not in the stream; Load leaves them as they were. A truncated
// stream makes Load return an error wrapping ErrSaveFormatMismatch.
func (n *NES) Save(w io.Writer) error {
	sw := NewStateWriter(w)
	n.bus.Save(sw)
	return sw.Err()
}

func (n *NES) Load(r io.Reader) error {
	sr := NewStateReader(r)
	n.bus.Load(sr)
	return wrapSaveErr(sr.Err())
}
