package nes

import (
	"encoding/binary"
	"fmt"
	"io"
)

// StateWriter is the typed little-endian encoder handed to every component's
// save method. One field, one call: no versioning, no length prefixes.
type StateWriter struct {
	w   io.Writer
	err error
}

func NewStateWriter(w io.Writer) *StateWriter {
	return &StateWriter{w: w}
}

func (s *StateWriter) Err() error { return s.err }

func (s *StateWriter) u8(v uint8) {
	if s.err != nil {
		return
	}
	_, s.err = s.w.Write([]byte{v})
}

func (s *StateWriter) u16(v uint16) {
	if s.err != nil {
		return
	}
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	_, s.err = s.w.Write(buf[:])
}

func (s *StateWriter) u32(v uint32) {
	if s.err != nil {
		return
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, s.err = s.w.Write(buf[:])
}

func (s *StateWriter) i16(v int16) { s.u16(uint16(v)) }

func (s *StateWriter) boolean(v bool) {
	if v {
		s.u8(1)
	} else {
		s.u8(0)
	}
}

func (s *StateWriter) bytes(v []byte) {
	if s.err != nil {
		return
	}
	_, s.err = s.w.Write(v)
}

// StateReader is the decoding counterpart of StateWriter.
type StateReader struct {
	r   io.Reader
	err error
}

func NewStateReader(r io.Reader) *StateReader {
	return &StateReader{r: r}
}

func (s *StateReader) Err() error { return s.err }

func (s *StateReader) u8() uint8 {
	if s.err != nil {
		return 0
	}
	var buf [1]byte
	_, s.err = io.ReadFull(s.r, buf[:])
	return buf[0]
}

func (s *StateReader) u16() uint16 {
	if s.err != nil {
		return 0
	}
	var buf [2]byte
	_, s.err = io.ReadFull(s.r, buf[:])
	return binary.LittleEndian.Uint16(buf[:])
}

func (s *StateReader) u32() uint32 {
	if s.err != nil {
		return 0
	}
	var buf [4]byte
	_, s.err = io.ReadFull(s.r, buf[:])
	return binary.LittleEndian.Uint32(buf[:])
}

func (s *StateReader) i16() int16 { return int16(s.u16()) }

func (s *StateReader) boolean() bool { return s.u8() == 1 }

func (s *StateReader) bytes(v []byte) {
	if s.err != nil {
		return
	}
	_, s.err = io.ReadFull(s.r, v)
}

// wrapSaveErr turns a truncated or malformed save stream into the taxonomy's
// sentinel, matching section 7's "partial read aborts load with
// SaveFormatMismatch".
func wrapSaveErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrSaveFormatMismatch, err)
}
