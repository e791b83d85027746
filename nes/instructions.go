package nes

// AddressingMode names one of the 6502's operand-addressing schemes; the
// opcode table below maps each of the 256 opcodes to one.
type AddressingMode byte

const (
	Immediate AddressingMode = iota
	ZeroPage
	Absolute
	Relative
	Implied
	Accumulator
	IndexedX
	IndexedY
	ZeroPageIndexedX
	ZeroPageIndexedY
	Indirect
	PreIndexedIndirect
	PostIndexedIndirect
)

// InstructionKind classifies how an instruction's operand is touched, which
// decides whether a page-crossing addressing mode costs an extra cycle: a
// Read that crosses a page boundary costs one, a Write or ReadModWrite never
// does because the effective address is already known before the cycle that
// would be skipped.
type InstructionKind byte

const (
	Write InstructionKind = iota
	Read
	ReadModWrite
)

// Instruction describes one of the 256 opcodes: its mnemonic, the addressing
// mode that resolves its operand, the base cycle count, and whether a page
// crossing adds a cycle.
type Instruction struct {
	OpCode     byte
	Name       string
	Mode       AddressingMode
	Kind       InstructionKind
	Size       byte
	Cycles     byte
	PageCycles byte
	Illegal    bool
}

var instructions = [256]Instruction{
	Instruction{OpCode: 0x00, Name: "BRK", Size: 2, Cycles: 7, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0x01, Name: "ORA", Size: 2, Cycles: 6, PageCycles: 0, Mode: PreIndexedIndirect, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x02, Name: "KIL", Size: 0, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: true},
	Instruction{OpCode: 0x03, Name: "SLO", Size: 2, Cycles: 8, PageCycles: 0, Mode: PreIndexedIndirect, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x04, Name: "NOP", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Kind: Read, Illegal: true},
	Instruction{OpCode: 0x05, Name: "ORA", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x06, Name: "ASL", Size: 2, Cycles: 5, PageCycles: 0, Mode: ZeroPage, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x07, Name: "SLO", Size: 2, Cycles: 5, PageCycles: 0, Mode: ZeroPage, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x08, Name: "PHP", Size: 1, Cycles: 3, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0x09, Name: "ORA", Size: 2, Cycles: 2, PageCycles: 0, Mode: Immediate, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x0A, Name: "ASL", Size: 1, Cycles: 2, PageCycles: 0, Mode: Accumulator, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x0B, Name: "ANC", Size: 0, Cycles: 2, PageCycles: 0, Mode: Immediate, Illegal: true},
	Instruction{OpCode: 0x0C, Name: "NOP", Size: 3, Cycles: 4, PageCycles: 0, Mode: Absolute, Kind: Read, Illegal: true},
	Instruction{OpCode: 0x0D, Name: "ORA", Size: 3, Cycles: 4, PageCycles: 0, Mode: Absolute, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x0E, Name: "ASL", Size: 3, Cycles: 6, PageCycles: 0, Mode: Absolute, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x0F, Name: "SLO", Size: 3, Cycles: 6, PageCycles: 0, Mode: Absolute, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x10, Name: "BPL", Size: 2, Cycles: 2, PageCycles: 1, Mode: Relative, Illegal: false},
	Instruction{OpCode: 0x11, Name: "ORA", Size: 2, Cycles: 5, PageCycles: 1, Mode: PostIndexedIndirect, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x12, Name: "KIL", Size: 0, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: true},
	Instruction{OpCode: 0x13, Name: "SLO", Size: 2, Cycles: 8, PageCycles: 0, Mode: PostIndexedIndirect, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x14, Name: "NOP", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: Read, Illegal: true},
	Instruction{OpCode: 0x15, Name: "ORA", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x16, Name: "ASL", Size: 2, Cycles: 6, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x17, Name: "SLO", Size: 2, Cycles: 6, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x18, Name: "CLC", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0x19, Name: "ORA", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedY, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x1A, Name: "NOP", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Kind: Read, Illegal: true},
	Instruction{OpCode: 0x1B, Name: "SLO", Size: 3, Cycles: 7, PageCycles: 0, Mode: IndexedY, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x1C, Name: "NOP", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedX, Kind: Read, Illegal: true},
	Instruction{OpCode: 0x1D, Name: "ORA", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedX, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x1E, Name: "ASL", Size: 3, Cycles: 7, PageCycles: 0, Mode: IndexedX, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x1F, Name: "SLO", Size: 3, Cycles: 7, PageCycles: 0, Mode: IndexedX, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x20, Name: "JSR", Size: 3, Cycles: 6, PageCycles: 0, Mode: Absolute, Illegal: false},
	Instruction{OpCode: 0x21, Name: "AND", Size: 2, Cycles: 6, PageCycles: 0, Mode: PreIndexedIndirect, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x22, Name: "KIL", Size: 0, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: true},
	Instruction{OpCode: 0x23, Name: "RLA", Size: 2, Cycles: 8, PageCycles: 0, Mode: PreIndexedIndirect, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x24, Name: "BIT", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x25, Name: "AND", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x26, Name: "ROL", Size: 2, Cycles: 5, PageCycles: 0, Mode: ZeroPage, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x27, Name: "RLA", Size: 2, Cycles: 5, PageCycles: 0, Mode: ZeroPage, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x28, Name: "PLP", Size: 1, Cycles: 4, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0x29, Name: "AND", Size: 2, Cycles: 2, PageCycles: 0, Mode: Immediate, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x2A, Name: "ROL", Size: 1, Cycles: 2, PageCycles: 0, Mode: Accumulator, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x2B, Name: "ANC", Size: 0, Cycles: 2, PageCycles: 0, Mode: Immediate, Illegal: true},
	Instruction{OpCode: 0x2C, Name: "BIT", Size: 3, Cycles: 4, PageCycles: 0, Mode: Absolute, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x2D, Name: "AND", Size: 3, Cycles: 4, PageCycles: 0, Mode: Absolute, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x2E, Name: "ROL", Size: 3, Cycles: 6, PageCycles: 0, Mode: Absolute, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x2F, Name: "RLA", Size: 3, Cycles: 6, PageCycles: 0, Mode: Absolute, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x30, Name: "BMI", Size: 2, Cycles: 2, PageCycles: 1, Mode: Relative, Illegal: false},
	Instruction{OpCode: 0x31, Name: "AND", Size: 2, Cycles: 5, PageCycles: 1, Mode: PostIndexedIndirect, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x32, Name: "KIL", Size: 0, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: true},
	Instruction{OpCode: 0x33, Name: "RLA", Size: 2, Cycles: 8, PageCycles: 0, Mode: PostIndexedIndirect, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x34, Name: "NOP", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: Read, Illegal: true},
	Instruction{OpCode: 0x35, Name: "AND", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x36, Name: "ROL", Size: 2, Cycles: 6, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x37, Name: "RLA", Size: 2, Cycles: 6, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x38, Name: "SEC", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0x39, Name: "AND", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedY, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x3A, Name: "NOP", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Kind: Read, Illegal: true},
	Instruction{OpCode: 0x3B, Name: "RLA", Size: 3, Cycles: 7, PageCycles: 0, Mode: IndexedY, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x3C, Name: "NOP", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedX, Kind: Read, Illegal: true},
	Instruction{OpCode: 0x3D, Name: "AND", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedX, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x3E, Name: "ROL", Size: 3, Cycles: 7, PageCycles: 0, Mode: IndexedX, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x3F, Name: "RLA", Size: 3, Cycles: 7, PageCycles: 0, Mode: IndexedX, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x40, Name: "RTI", Size: 1, Cycles: 6, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0x41, Name: "EOR", Size: 2, Cycles: 6, PageCycles: 0, Mode: PreIndexedIndirect, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x42, Name: "KIL", Size: 0, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: true},
	Instruction{OpCode: 0x43, Name: "SRE", Size: 2, Cycles: 8, PageCycles: 0, Mode: PreIndexedIndirect, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x44, Name: "NOP", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Kind: Read, Illegal: true},
	Instruction{OpCode: 0x45, Name: "EOR", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x46, Name: "LSR", Size: 2, Cycles: 5, PageCycles: 0, Mode: ZeroPage, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x47, Name: "SRE", Size: 2, Cycles: 5, PageCycles: 0, Mode: ZeroPage, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x48, Name: "PHA", Size: 1, Cycles: 3, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0x49, Name: "EOR", Size: 2, Cycles: 2, PageCycles: 0, Mode: Immediate, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x4A, Name: "LSR", Size: 1, Cycles: 2, PageCycles: 0, Mode: Accumulator, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x4B, Name: "ALR", Size: 0, Cycles: 2, PageCycles: 0, Mode: Immediate, Illegal: true},
	Instruction{OpCode: 0x4C, Name: "JMP", Size: 3, Cycles: 3, PageCycles: 0, Mode: Absolute, Illegal: false},
	Instruction{OpCode: 0x4D, Name: "EOR", Size: 3, Cycles: 4, PageCycles: 0, Mode: Absolute, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x4E, Name: "LSR", Size: 3, Cycles: 6, PageCycles: 0, Mode: Absolute, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x4F, Name: "SRE", Size: 3, Cycles: 6, PageCycles: 0, Mode: Absolute, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x50, Name: "BVC", Size: 2, Cycles: 2, PageCycles: 1, Mode: Relative, Illegal: false},
	Instruction{OpCode: 0x51, Name: "EOR", Size: 2, Cycles: 5, PageCycles: 1, Mode: PostIndexedIndirect, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x52, Name: "KIL", Size: 0, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: true},
	Instruction{OpCode: 0x53, Name: "SRE", Size: 2, Cycles: 8, PageCycles: 0, Mode: PostIndexedIndirect, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x54, Name: "NOP", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: Read, Illegal: true},
	Instruction{OpCode: 0x55, Name: "EOR", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x56, Name: "LSR", Size: 2, Cycles: 6, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x57, Name: "SRE", Size: 2, Cycles: 6, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x58, Name: "CLI", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0x59, Name: "EOR", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedY, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x5A, Name: "NOP", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Kind: Read, Illegal: true},
	Instruction{OpCode: 0x5B, Name: "SRE", Size: 3, Cycles: 7, PageCycles: 0, Mode: IndexedY, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x5C, Name: "NOP", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedX, Kind: Read, Illegal: true},
	Instruction{OpCode: 0x5D, Name: "EOR", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedX, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x5E, Name: "LSR", Size: 3, Cycles: 7, PageCycles: 0, Mode: IndexedX, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x5F, Name: "SRE", Size: 3, Cycles: 7, PageCycles: 0, Mode: IndexedX, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x60, Name: "RTS", Size: 1, Cycles: 6, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0x61, Name: "ADC", Size: 2, Cycles: 6, PageCycles: 0, Mode: PreIndexedIndirect, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x62, Name: "KIL", Size: 0, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: true},
	Instruction{OpCode: 0x63, Name: "RRA", Size: 2, Cycles: 8, PageCycles: 0, Mode: PreIndexedIndirect, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x64, Name: "NOP", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Kind: Read, Illegal: true},
	Instruction{OpCode: 0x65, Name: "ADC", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x66, Name: "ROR", Size: 2, Cycles: 5, PageCycles: 0, Mode: ZeroPage, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x67, Name: "RRA", Size: 2, Cycles: 5, PageCycles: 0, Mode: ZeroPage, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x68, Name: "PLA", Size: 1, Cycles: 4, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0x69, Name: "ADC", Size: 2, Cycles: 2, PageCycles: 0, Mode: Immediate, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x6A, Name: "ROR", Size: 1, Cycles: 2, PageCycles: 0, Mode: Accumulator, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x6B, Name: "ARR", Size: 0, Cycles: 2, PageCycles: 0, Mode: Immediate, Illegal: true},
	Instruction{OpCode: 0x6C, Name: "JMP", Size: 3, Cycles: 5, PageCycles: 0, Mode: Indirect, Illegal: false},
	Instruction{OpCode: 0x6D, Name: "ADC", Size: 3, Cycles: 4, PageCycles: 0, Mode: Absolute, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x6E, Name: "ROR", Size: 3, Cycles: 6, PageCycles: 0, Mode: Absolute, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x6F, Name: "RRA", Size: 3, Cycles: 6, PageCycles: 0, Mode: Absolute, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x70, Name: "BVS", Size: 2, Cycles: 2, PageCycles: 1, Mode: Relative, Illegal: false},
	Instruction{OpCode: 0x71, Name: "ADC", Size: 2, Cycles: 5, PageCycles: 1, Mode: PostIndexedIndirect, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x72, Name: "KIL", Size: 0, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: true},
	Instruction{OpCode: 0x73, Name: "RRA", Size: 2, Cycles: 8, PageCycles: 0, Mode: PostIndexedIndirect, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x74, Name: "NOP", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: Read, Illegal: true},
	Instruction{OpCode: 0x75, Name: "ADC", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x76, Name: "ROR", Size: 2, Cycles: 6, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x77, Name: "RRA", Size: 2, Cycles: 6, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x78, Name: "SEI", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0x79, Name: "ADC", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedY, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x7A, Name: "NOP", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Kind: Read, Illegal: true},
	Instruction{OpCode: 0x7B, Name: "RRA", Size: 3, Cycles: 7, PageCycles: 0, Mode: IndexedY, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x7C, Name: "NOP", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedX, Kind: Read, Illegal: true},
	Instruction{OpCode: 0x7D, Name: "ADC", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedX, Kind: Read, Illegal: false},
	Instruction{OpCode: 0x7E, Name: "ROR", Size: 3, Cycles: 7, PageCycles: 0, Mode: IndexedX, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0x7F, Name: "RRA", Size: 3, Cycles: 7, PageCycles: 0, Mode: IndexedX, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0x80, Name: "NOP", Size: 2, Cycles: 2, PageCycles: 0, Mode: Immediate, Kind: Read, Illegal: true},
	Instruction{OpCode: 0x81, Name: "STA", Size: 2, Cycles: 6, PageCycles: 0, Mode: PreIndexedIndirect, Kind: Write, Illegal: false},
	Instruction{OpCode: 0x82, Name: "NOP", Size: 0, Cycles: 2, PageCycles: 0, Mode: Immediate, Kind: Read, Illegal: true},
	Instruction{OpCode: 0x83, Name: "SAX", Size: 2, Cycles: 6, PageCycles: 0, Mode: PreIndexedIndirect, Kind: Write, Illegal: true},
	Instruction{OpCode: 0x84, Name: "STY", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Kind: Write, Illegal: false},
	Instruction{OpCode: 0x85, Name: "STA", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Kind: Write, Illegal: false},
	Instruction{OpCode: 0x86, Name: "STX", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Kind: Write, Illegal: false},
	Instruction{OpCode: 0x87, Name: "SAX", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Kind: Write, Illegal: true},
	Instruction{OpCode: 0x88, Name: "DEY", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0x89, Name: "NOP", Size: 0, Cycles: 2, PageCycles: 0, Mode: Immediate, Kind: Read, Illegal: true},
	Instruction{OpCode: 0x8A, Name: "TXA", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0x8B, Name: "XAA", Size: 0, Cycles: 2, PageCycles: 0, Mode: Immediate, Illegal: true},
	Instruction{OpCode: 0x8C, Name: "STY", Size: 3, Cycles: 4, PageCycles: 0, Mode: Absolute, Kind: Write, Illegal: false},
	Instruction{OpCode: 0x8D, Name: "STA", Size: 3, Cycles: 4, PageCycles: 0, Mode: Absolute, Kind: Write, Illegal: false},
	Instruction{OpCode: 0x8E, Name: "STX", Size: 3, Cycles: 4, PageCycles: 0, Mode: Absolute, Kind: Write, Illegal: false},
	Instruction{OpCode: 0x8F, Name: "SAX", Size: 3, Cycles: 4, PageCycles: 0, Mode: Absolute, Kind: Write, Illegal: true},
	Instruction{OpCode: 0x90, Name: "BCC", Size: 2, Cycles: 2, PageCycles: 1, Mode: Relative, Illegal: false},
	Instruction{OpCode: 0x91, Name: "STA", Size: 2, Cycles: 6, PageCycles: 0, Mode: PostIndexedIndirect, Kind: Write, Illegal: false},
	Instruction{OpCode: 0x92, Name: "KIL", Size: 0, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: true},
	Instruction{OpCode: 0x93, Name: "AHX", Size: 0, Cycles: 6, PageCycles: 0, Mode: PostIndexedIndirect, Illegal: true},
	Instruction{OpCode: 0x94, Name: "STY", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: Write, Illegal: false},
	Instruction{OpCode: 0x95, Name: "STA", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: Write, Illegal: false},
	Instruction{OpCode: 0x96, Name: "STX", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedY, Kind: Write, Illegal: false},
	Instruction{OpCode: 0x97, Name: "SAX", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedY, Kind: Write, Illegal: true},
	Instruction{OpCode: 0x98, Name: "TYA", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0x99, Name: "STA", Size: 3, Cycles: 5, PageCycles: 0, Mode: IndexedY, Kind: Write, Illegal: false},
	Instruction{OpCode: 0x9A, Name: "TXS", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0x9B, Name: "TAS", Size: 0, Cycles: 5, PageCycles: 0, Mode: IndexedY, Illegal: true},
	Instruction{OpCode: 0x9C, Name: "SHY", Size: 0, Cycles: 5, PageCycles: 0, Mode: IndexedX, Kind: Write, Illegal: true},
	Instruction{OpCode: 0x9D, Name: "STA", Size: 3, Cycles: 5, PageCycles: 0, Mode: IndexedX, Kind: Write, Illegal: false},
	Instruction{OpCode: 0x9E, Name: "SHX", Size: 0, Cycles: 5, PageCycles: 0, Mode: IndexedY, Kind: Write, Illegal: true},
	Instruction{OpCode: 0x9F, Name: "AHX", Size: 0, Cycles: 5, PageCycles: 0, Mode: IndexedY, Illegal: true},
	Instruction{OpCode: 0xA0, Name: "LDY", Size: 2, Cycles: 2, PageCycles: 0, Mode: Immediate, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xA1, Name: "LDA", Size: 2, Cycles: 6, PageCycles: 0, Mode: PreIndexedIndirect, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xA2, Name: "LDX", Size: 2, Cycles: 2, PageCycles: 0, Mode: Immediate, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xA3, Name: "LAX", Size: 2, Cycles: 6, PageCycles: 0, Mode: PreIndexedIndirect, Kind: Read, Illegal: true},
	Instruction{OpCode: 0xA4, Name: "LDY", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xA5, Name: "LDA", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xA6, Name: "LDX", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xA7, Name: "LAX", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Kind: Read, Illegal: true},
	Instruction{OpCode: 0xA8, Name: "TAY", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0xA9, Name: "LDA", Size: 2, Cycles: 2, PageCycles: 0, Mode: Immediate, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xAA, Name: "TAX", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0xAB, Name: "LAX", Size: 0, Cycles: 2, PageCycles: 0, Mode: Immediate, Kind: Read, Illegal: true},
	Instruction{OpCode: 0xAC, Name: "LDY", Size: 3, Cycles: 4, PageCycles: 0, Mode: Absolute, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xAD, Name: "LDA", Size: 3, Cycles: 4, PageCycles: 0, Mode: Absolute, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xAE, Name: "LDX", Size: 3, Cycles: 4, PageCycles: 0, Mode: Absolute, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xAF, Name: "LAX", Size: 3, Cycles: 4, PageCycles: 0, Mode: Absolute, Kind: Read, Illegal: true},
	Instruction{OpCode: 0xB0, Name: "BCS", Size: 2, Cycles: 2, PageCycles: 1, Mode: Relative, Illegal: false},
	Instruction{OpCode: 0xB1, Name: "LDA", Size: 2, Cycles: 5, PageCycles: 1, Mode: PostIndexedIndirect, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xB2, Name: "KIL", Size: 0, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: true},
	Instruction{OpCode: 0xB3, Name: "LAX", Size: 2, Cycles: 5, PageCycles: 1, Mode: PostIndexedIndirect, Kind: Read, Illegal: true},
	Instruction{OpCode: 0xB4, Name: "LDY", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xB5, Name: "LDA", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xB6, Name: "LDX", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedY, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xB7, Name: "LAX", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedY, Kind: Read, Illegal: true},
	Instruction{OpCode: 0xB8, Name: "CLV", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0xB9, Name: "LDA", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedY, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xBA, Name: "TSX", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0xBB, Name: "LAS", Size: 0, Cycles: 4, PageCycles: 1, Mode: IndexedY, Kind: Read, Illegal: true},
	Instruction{OpCode: 0xBC, Name: "LDY", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedX, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xBD, Name: "LDA", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedX, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xBE, Name: "LDX", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedY, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xBF, Name: "LAX", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedY, Kind: Read, Illegal: true},
	Instruction{OpCode: 0xC0, Name: "CPY", Size: 2, Cycles: 2, PageCycles: 0, Mode: Immediate, Illegal: false},
	Instruction{OpCode: 0xC1, Name: "CMP", Size: 2, Cycles: 6, PageCycles: 0, Mode: PreIndexedIndirect, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xC2, Name: "NOP", Size: 0, Cycles: 2, PageCycles: 0, Mode: Immediate, Kind: Read, Illegal: true},
	Instruction{OpCode: 0xC3, Name: "DCP", Size: 2, Cycles: 8, PageCycles: 0, Mode: PreIndexedIndirect, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0xC4, Name: "CPY", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Illegal: false},
	Instruction{OpCode: 0xC5, Name: "CMP", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xC6, Name: "DEC", Size: 2, Cycles: 5, PageCycles: 0, Mode: ZeroPage, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0xC7, Name: "DCP", Size: 2, Cycles: 5, PageCycles: 0, Mode: ZeroPage, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0xC8, Name: "INY", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0xC9, Name: "CMP", Size: 2, Cycles: 2, PageCycles: 0, Mode: Immediate, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xCA, Name: "DEX", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0xCB, Name: "AXS", Size: 0, Cycles: 2, PageCycles: 0, Mode: Immediate, Illegal: true},
	Instruction{OpCode: 0xCC, Name: "CPY", Size: 3, Cycles: 4, PageCycles: 0, Mode: Absolute, Illegal: false},
	Instruction{OpCode: 0xCD, Name: "CMP", Size: 3, Cycles: 4, PageCycles: 0, Mode: Absolute, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xCE, Name: "DEC", Size: 3, Cycles: 6, PageCycles: 0, Mode: Absolute, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0xCF, Name: "DCP", Size: 3, Cycles: 6, PageCycles: 0, Mode: Absolute, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0xD0, Name: "BNE", Size: 2, Cycles: 2, PageCycles: 1, Mode: Relative, Illegal: false},
	Instruction{OpCode: 0xD1, Name: "CMP", Size: 2, Cycles: 5, PageCycles: 1, Mode: PostIndexedIndirect, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xD2, Name: "KIL", Size: 0, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: true},
	Instruction{OpCode: 0xD3, Name: "DCP", Size: 2, Cycles: 8, PageCycles: 0, Mode: PostIndexedIndirect, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0xD4, Name: "NOP", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: Read, Illegal: true},
	Instruction{OpCode: 0xD5, Name: "CMP", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xD6, Name: "DEC", Size: 2, Cycles: 6, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0xD7, Name: "DCP", Size: 2, Cycles: 6, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0xD8, Name: "CLD", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0xD9, Name: "CMP", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedY, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xDA, Name: "NOP", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Kind: Read, Illegal: true},
	Instruction{OpCode: 0xDB, Name: "DCP", Size: 3, Cycles: 7, PageCycles: 0, Mode: IndexedY, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0xDC, Name: "NOP", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedX, Kind: Read, Illegal: true},
	Instruction{OpCode: 0xDD, Name: "CMP", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedX, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xDE, Name: "DEC", Size: 3, Cycles: 7, PageCycles: 0, Mode: IndexedX, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0xDF, Name: "DCP", Size: 3, Cycles: 7, PageCycles: 0, Mode: IndexedX, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0xE0, Name: "CPX", Size: 2, Cycles: 2, PageCycles: 0, Mode: Immediate, Illegal: false},
	Instruction{OpCode: 0xE1, Name: "SBC", Size: 2, Cycles: 6, PageCycles: 0, Mode: PreIndexedIndirect, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xE2, Name: "NOP", Size: 0, Cycles: 2, PageCycles: 0, Mode: Immediate, Kind: Read, Illegal: true},
	Instruction{OpCode: 0xE3, Name: "ISB", Size: 2, Cycles: 8, PageCycles: 0, Mode: PreIndexedIndirect, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0xE4, Name: "CPX", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Illegal: false},
	Instruction{OpCode: 0xE5, Name: "SBC", Size: 2, Cycles: 3, PageCycles: 0, Mode: ZeroPage, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xE6, Name: "INC", Size: 2, Cycles: 5, PageCycles: 0, Mode: ZeroPage, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0xE7, Name: "ISB", Size: 2, Cycles: 5, PageCycles: 0, Mode: ZeroPage, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0xE8, Name: "INX", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0xE9, Name: "SBC", Size: 2, Cycles: 2, PageCycles: 0, Mode: Immediate, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xEA, Name: "NOP", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xEB, Name: "SBC", Size: 2, Cycles: 2, PageCycles: 0, Mode: Immediate, Kind: Read, Illegal: true},
	Instruction{OpCode: 0xEC, Name: "CPX", Size: 3, Cycles: 4, PageCycles: 0, Mode: Absolute, Illegal: false},
	Instruction{OpCode: 0xED, Name: "SBC", Size: 3, Cycles: 4, PageCycles: 0, Mode: Absolute, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xEE, Name: "INC", Size: 3, Cycles: 6, PageCycles: 0, Mode: Absolute, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0xEF, Name: "ISB", Size: 3, Cycles: 6, PageCycles: 0, Mode: Absolute, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0xF0, Name: "BEQ", Size: 2, Cycles: 2, PageCycles: 1, Mode: Relative, Illegal: false},
	Instruction{OpCode: 0xF1, Name: "SBC", Size: 2, Cycles: 5, PageCycles: 1, Mode: PostIndexedIndirect, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xF2, Name: "KIL", Size: 0, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: true},
	Instruction{OpCode: 0xF3, Name: "ISB", Size: 2, Cycles: 8, PageCycles: 0, Mode: PostIndexedIndirect, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0xF4, Name: "NOP", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: Read, Illegal: true},
	Instruction{OpCode: 0xF5, Name: "SBC", Size: 2, Cycles: 4, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xF6, Name: "INC", Size: 2, Cycles: 6, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0xF7, Name: "ISB", Size: 2, Cycles: 6, PageCycles: 0, Mode: ZeroPageIndexedX, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0xF8, Name: "SED", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Illegal: false},
	Instruction{OpCode: 0xF9, Name: "SBC", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedY, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xFA, Name: "NOP", Size: 1, Cycles: 2, PageCycles: 0, Mode: Implied, Kind: Read, Illegal: true},
	Instruction{OpCode: 0xFB, Name: "ISB", Size: 3, Cycles: 7, PageCycles: 0, Mode: IndexedY, Kind: ReadModWrite, Illegal: true},
	Instruction{OpCode: 0xFC, Name: "NOP", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedX, Kind: Read, Illegal: true},
	Instruction{OpCode: 0xFD, Name: "SBC", Size: 3, Cycles: 4, PageCycles: 1, Mode: IndexedX, Kind: Read, Illegal: false},
	Instruction{OpCode: 0xFE, Name: "INC", Size: 3, Cycles: 7, PageCycles: 0, Mode: IndexedX, Kind: ReadModWrite, Illegal: false},
	Instruction{OpCode: 0xFF, Name: "ISB", Size: 3, Cycles: 7, PageCycles: 0, Mode: IndexedX, Kind: ReadModWrite, Illegal: true},
}
