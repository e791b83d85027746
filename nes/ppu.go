package nes

// Register offsets as seen through the CPU's 8-byte mirrored window at
// 0x2000-0x2007 (section 4.E, 4.C).
const (
	regPPUCTRL   = 0x2000
	regPPUMASK   = 0x2001
	regPPUSTATUS = 0x2002
	regOAMADDR   = 0x2003
	regOAMDATA   = 0x2004
	regPPUSCROLL = 0x2005
	regPPUADDR   = 0x2006
	regPPUDATA   = 0x2007
)

// PPU implements the 341x262 dot/scanline raster of section 4.C: background
// and sprite pipelines feeding a packed 0xAARRGGBB framebuffer, loopy-style v/t
// scroll registers, and NMI generation at the start of vertical blank.
type PPU struct {
	bus *Bus

	ctrl   uint8
	mask   uint8
	status uint8

	oamAddr uint8
	oam     [256]byte
	palette [32]byte

	v           uint16
	t           uint16
	fineX       uint8
	writeToggle bool
	dataBuffer  uint8

	scanline int
	dot      int
	oddFrame bool

	bgShiftLo   uint16
	bgShiftHi   uint16
	attrShiftLo uint16
	attrShiftHi uint16

	ntLatch   uint8
	atLatch   uint8
	bgLoLatch uint8
	bgHiLatch uint8

	spriteCount         int
	spritePatternLo     [8]uint8
	spritePatternHi     [8]uint8
	spriteAttr          [8]uint8
	spriteX             [8]uint8
	spriteZeroOnLine    bool
	secondaryOAM        [32]byte

	frame         [256 * 240]uint32
	frameDone     bool
	endOfScanline bool
}

func NewPPU(bus *Bus) *PPU {
	return &PPU{bus: bus}
}

func (p *PPU) renderingEnabled() bool {
	return p.mask&0x18 != 0
}

func (p *PPU) showBackground() bool { return p.mask&0x08 != 0 }
func (p *PPU) showSprites() bool    { return p.mask&0x10 != 0 }

// RegisterRead services a CPU read of one of the eight mirrored PPU ports.
func (p *PPU) RegisterRead(addr uint16) uint8 {
	switch addr {
	case regPPUSTATUS:
		v := p.status
		p.status &^= 0x80
		p.writeToggle = false
		return v
	case regOAMDATA:
		return p.oam[p.oamAddr]
	case regPPUDATA:
		v := p.dataBuffer
		p.dataBuffer = p.vramRead(p.v)
		if p.v&0x3FFF >= 0x3F00 {
			v = p.dataBuffer
		}
		p.incrementV()
		return v
	default:
		return 0
	}
}

// RegisterWrite services a CPU write to one of the eight mirrored PPU ports.
func (p *PPU) RegisterWrite(addr uint16, value uint8) {
	switch addr {
	case regPPUCTRL:
		p.ctrl = value
		p.t = (p.t &^ 0x0C00) | (uint16(value&0x03) << 10)
	case regPPUMASK:
		p.mask = value
	case regOAMADDR:
		p.oamAddr = value
	case regOAMDATA:
		p.oam[p.oamAddr] = value
		p.oamAddr++
	case regPPUSCROLL:
		if !p.writeToggle {
			p.fineX = value & 0x07
			p.t = (p.t &^ 0x001F) | uint16(value>>3)
		} else {
			p.t = (p.t &^ 0x73E0) | (uint16(value&0x07) << 12) | (uint16(value&0xF8) << 2)
		}
		p.writeToggle = !p.writeToggle
	case regPPUADDR:
		if !p.writeToggle {
			p.t = (p.t &^ 0x7F00) | (uint16(value&0x3F) << 8)
		} else {
			p.t = (p.t &^ 0x00FF) | uint16(value)
			p.v = p.t
		}
		p.writeToggle = !p.writeToggle
	case regPPUDATA:
		p.vramWrite(p.v, value)
		p.incrementV()
	}
}

// WriteOAMDMAByte is the sink the Bus's 0x4014 DMA routine streams 256 bytes
// into, one per CPU-stalled cycle, starting at the current OAMADDR.
func (p *PPU) WriteOAMDMAByte(value uint8) {
	p.oam[p.oamAddr] = value
	p.oamAddr++
}

func (p *PPU) incrementV() {
	if p.ctrl&0x04 != 0 {
		p.v += 32
	} else {
		p.v++
	}
	p.v &= 0x7FFF
}

// vramRead/vramWrite implement the PPU's own 14-bit bus: pattern tables go
// to the mapper unchanged, nametable space is folded into 0x2000-0x2FFF
// before reaching the mapper (which applies its own mirroring against
// CIRAM), and 0x3F00-0x3FFF is internal palette RAM.
func (p *PPU) vramRead(addr uint16) uint8 {
	addr &= 0x3FFF
	switch {
	case addr < 0x2000:
		return p.bus.mapper.PPURead(addr, &p.bus.ciram)
	case addr < 0x3F00:
		return p.bus.mapper.PPURead(0x2000|(addr&0x0FFF), &p.bus.ciram)
	default:
		return p.readPalette(addr)
	}
}

func (p *PPU) vramWrite(addr uint16, value uint8) {
	addr &= 0x3FFF
	switch {
	case addr < 0x2000:
		p.bus.mapper.PPUWrite(addr, value, &p.bus.ciram)
	case addr < 0x3F00:
		p.bus.mapper.PPUWrite(0x2000|(addr&0x0FFF), value, &p.bus.ciram)
	default:
		p.writePalette(addr, value)
	}
}

func palIndex(addr uint16) uint16 {
	idx := addr & 0x1F
	if idx >= 0x10 && idx&0x03 == 0 {
		idx &^= 0x10
	}
	return idx
}

func (p *PPU) readPalette(addr uint16) uint8 {
	v := p.palette[palIndex(addr)]
	if p.mask&0x01 != 0 {
		v &= 0x30
	}
	return v
}

func (p *PPU) writePalette(addr uint16, value uint8) {
	p.palette[palIndex(addr)] = value & 0x3F
}

// --- loopy scroll math (section 4.C) ---

func (p *PPU) incCoarseX() {
	if p.v&0x001F == 31 {
		p.v &^= 0x001F
		p.v ^= 0x0400
	} else {
		p.v++
	}
}

func (p *PPU) incFineY() {
	if p.v&0x7000 != 0x7000 {
		p.v += 0x1000
		return
	}
	p.v &^= 0x7000
	y := (p.v & 0x03E0) >> 5
	switch y {
	case 29:
		y = 0
		p.v ^= 0x0800
	case 31:
		y = 0
	default:
		y++
	}
	p.v = (p.v &^ 0x03E0) | (y << 5)
}

func (p *PPU) copyHorizBits() { p.v = (p.v &^ 0x041F) | (p.t & 0x041F) }
func (p *PPU) copyVertBits()  { p.v = (p.v &^ 0x7BE0) | (p.t & 0x7BE0) }

// --- background pipeline ---

func (p *PPU) reloadBackgroundShifters() {
	p.bgShiftLo = (p.bgShiftLo &^ 0x00FF) | uint16(p.bgLoLatch)
	p.bgShiftHi = (p.bgShiftHi &^ 0x00FF) | uint16(p.bgHiLatch)

	var loFill, hiFill uint8
	if p.atLatch&0x01 != 0 {
		loFill = 0xFF
	}
	if p.atLatch&0x02 != 0 {
		hiFill = 0xFF
	}
	p.attrShiftLo = (p.attrShiftLo &^ 0x00FF) | uint16(loFill)
	p.attrShiftHi = (p.attrShiftHi &^ 0x00FF) | uint16(hiFill)
}

func (p *PPU) shiftBackground() {
	p.bgShiftLo <<= 1
	p.bgShiftHi <<= 1
	p.attrShiftLo <<= 1
	p.attrShiftHi <<= 1
}

// fetchBackgroundByte runs one of the four steps of the 8-dot tile fetch
// cycle.
func (p *PPU) fetchBackgroundByte(step int) {
	switch step {
	case 0:
		p.ntLatch = p.vramRead(0x2000 | (p.v & 0x0FFF))
	case 1:
		attrAddr := 0x23C0 | (p.v & 0x0C00) | ((p.v >> 4) & 0x38) | ((p.v >> 2) & 0x07)
		at := p.vramRead(attrAddr)
		shift := ((p.v >> 4) & 0x04) | (p.v & 0x02)
		p.atLatch = (at >> shift) & 0x03
	case 2:
		table := uint16(0)
		if p.ctrl&0x10 != 0 {
			table = 0x1000
		}
		fineY := (p.v >> 12) & 0x07
		p.bgLoLatch = p.vramRead(table + uint16(p.ntLatch)*16 + fineY)
	case 3:
		table := uint16(0)
		if p.ctrl&0x10 != 0 {
			table = 0x1000
		}
		fineY := (p.v >> 12) & 0x07
		p.bgHiLatch = p.vramRead(table + uint16(p.ntLatch)*16 + fineY + 8)
	}
}

// --- sprite pipeline ---

func (p *PPU) spriteHeight() int {
	if p.ctrl&0x20 != 0 {
		return 16
	}
	return 8
}

// evaluateSprites selects up to 8 sprites whose box covers targetLine,
// raising the overflow flag if a ninth would also qualify.
func (p *PPU) evaluateSprites(targetLine int) {
	height := p.spriteHeight()
	count := 0
	p.spriteZeroOnLine = false
	for i := 0; i < 64; i++ {
		y := int(p.oam[i*4])
		if targetLine < y || targetLine >= y+height {
			continue
		}
		if count < 8 {
			copy(p.secondaryOAM[count*4:count*4+4], p.oam[i*4:i*4+4])
			if i == 0 {
				p.spriteZeroOnLine = true
			}
			count++
		} else {
			p.status |= 0x20
			break
		}
	}
	p.spriteCount = count
}

// fetchSprites loads pattern shift data for every sprite evaluateSprites
// selected, for display on targetLine.
func (p *PPU) fetchSprites(targetLine int) {
	height := p.spriteHeight()
	for i := 0; i < p.spriteCount; i++ {
		y := int(p.secondaryOAM[i*4+0])
		tile := p.secondaryOAM[i*4+1]
		attr := p.secondaryOAM[i*4+2]
		x := p.secondaryOAM[i*4+3]

		row := targetLine - y
		flipV := attr&0x80 != 0
		flipH := attr&0x40 != 0
		if flipV {
			row = height - 1 - row
		}

		var table uint16
		var patternIndex uint16
		if height == 16 {
			table = uint16(tile&0x01) * 0x1000
			patternIndex = uint16(tile &^ 0x01)
			if row >= 8 {
				patternIndex++
				row -= 8
			}
		} else {
			if p.ctrl&0x08 != 0 {
				table = 0x1000
			}
			patternIndex = uint16(tile)
		}

		lo := p.vramRead(table + patternIndex*16 + uint16(row))
		hi := p.vramRead(table + patternIndex*16 + uint16(row) + 8)
		if flipH {
			lo = reverseBits(lo)
			hi = reverseBits(hi)
		}

		p.spritePatternLo[i] = lo
		p.spritePatternHi[i] = hi
		p.spriteAttr[i] = attr
		p.spriteX[i] = x
	}
}

func reverseBits(b uint8) uint8 {
	var r uint8
	for i := 0; i < 8; i++ {
		r <<= 1
		r |= b & 1
		b >>= 1
	}
	return r
}

// --- per-dot raster loop ---

// Tick advances the raster by exactly one dot and reports whether this dot
// raised the CPU-visible NMI line (scanline 241, dot 1, with PPUCTRL bit 7
// set).
func (p *PPU) Tick() bool {
	p.endOfScanline = false
	p.frameDone = false
	nmi := false

	visible := p.scanline >= 0 && p.scanline <= 239
	preRender := p.scanline == 261
	rendering := p.renderingEnabled()

	if visible || preRender {
		if rendering {
			p.runBackgroundPipeline()
		}
		if visible && p.dot >= 1 && p.dot <= 256 {
			p.renderPixel()
		}
		if rendering && p.dot == 256 {
			p.incFineY()
		}
		if rendering && p.dot == 257 {
			p.copyHorizBits()
			next := p.scanline + 1
			if preRender {
				next = 0
			}
			p.evaluateSprites(next)
		}
		if preRender && rendering && p.dot >= 280 && p.dot <= 304 {
			p.copyVertBits()
		}
		if rendering && p.dot == 340 {
			next := p.scanline + 1
			if preRender {
				next = 0
			}
			p.fetchSprites(next)
		}
	}

	if p.scanline == 241 && p.dot == 1 {
		p.status |= 0x80
		if p.ctrl&0x80 != 0 {
			nmi = true
		}
	}
	if preRender && p.dot == 1 {
		p.status &^= 0xE0
		p.spriteZeroOnLine = false
	}

	p.advanceDot(rendering)
	return nmi
}

func (p *PPU) runBackgroundPipeline() {
	fetchable := (p.dot >= 1 && p.dot <= 256) || (p.dot >= 321 && p.dot <= 336)
	if fetchable {
		p.shiftBackground()
		switch (p.dot - 1) % 8 {
		case 1:
			p.fetchBackgroundByte(0)
		case 3:
			p.fetchBackgroundByte(1)
		case 5:
			p.fetchBackgroundByte(2)
		case 7:
			p.fetchBackgroundByte(3)
			p.incCoarseX()
		}
	}
	if (p.dot-1)%8 == 7 {
		p.reloadBackgroundShifters()
	}
}

func (p *PPU) renderPixel() {
	x := p.dot - 1
	y := p.scanline

	bgPixel := uint8(0)
	bgPalette := uint8(0)
	if p.showBackground() && (x >= 8 || p.mask&0x02 != 0) {
		bit := uint16(0x8000) >> p.fineX
		lo := uint8(0)
		hi := uint8(0)
		if p.bgShiftLo&bit != 0 {
			lo = 1
		}
		if p.bgShiftHi&bit != 0 {
			hi = 1
		}
		bgPixel = (hi << 1) | lo

		aLo := uint8(0)
		aHi := uint8(0)
		if p.attrShiftLo&bit != 0 {
			aLo = 1
		}
		if p.attrShiftHi&bit != 0 {
			aHi = 1
		}
		bgPalette = (aHi << 1) | aLo
	}

	spritePixel := uint8(0)
	spritePalette := uint8(0)
	spritePriority := uint8(0)
	spriteIsZero := false
	if p.showSprites() && (x >= 8 || p.mask&0x04 != 0) {
		for i := 0; i < p.spriteCount; i++ {
			offset := x - int(p.spriteX[i])
			if offset < 0 || offset > 7 {
				continue
			}
			shift := uint(offset)
			lo := (p.spritePatternLo[i] >> (7 - shift)) & 1
			hi := (p.spritePatternHi[i] >> (7 - shift)) & 1
			px := (hi << 1) | lo
			if px == 0 {
				continue
			}
			spritePixel = px
			spritePalette = p.spriteAttr[i] & 0x03
			spritePriority = (p.spriteAttr[i] >> 5) & 0x01
			spriteIsZero = i == 0 && p.spriteZeroOnLine
			break
		}
	}

	if spriteIsZero && bgPixel != 0 && spritePixel != 0 && x != 255 {
		p.status |= 0x40
	}

	var colorIdx uint16
	switch {
	case bgPixel == 0 && spritePixel == 0:
		colorIdx = 0x3F00
	case bgPixel == 0:
		colorIdx = 0x3F10 + uint16(spritePalette)*4 + uint16(spritePixel)
	case spritePixel == 0:
		colorIdx = 0x3F00 + uint16(bgPalette)*4 + uint16(bgPixel)
	case spritePriority == 0:
		colorIdx = 0x3F10 + uint16(spritePalette)*4 + uint16(spritePixel)
	default:
		colorIdx = 0x3F00 + uint16(bgPalette)*4 + uint16(bgPixel)
	}

	col := p.readPalette(colorIdx) & 0x3F
	p.frame[y*256+x] = nesPalette[col]
}

func (p *PPU) advanceDot(rendering bool) {
	p.dot++
	if p.scanline == 261 && p.dot == 340 && p.oddFrame && rendering {
		p.dot++
	}
	if p.dot > 340 {
		p.dot = 0
		p.endOfScanline = true
		p.scanline++
		if p.scanline > 261 {
			p.scanline = 0
			p.oddFrame = !p.oddFrame
			p.frameDone = true
		}
	}
}

// DumpPatternTables renders both 128x128 CHR pattern tables side by side
// into a 256x128 uint32 buffer, using background palette 0. It is a debug view
// for tests and tooling, not part of the render loop.
func (p *PPU) DumpPatternTables(out []uint32) {
	draw := func(table uint16, xOffset int) {
		for y := 0; y < 128; y++ {
			coarseY := y / 8
			fineY := uint16(y % 8)
			for tile := 0; tile < 16; tile++ {
				fineX := tile * 8
				patternNum := uint16(coarseY*16 + tile)
				lo := p.vramRead(table + patternNum*16 + fineY)
				hi := p.vramRead(table + patternNum*16 + fineY + 8)
				for px := 0; px < 8; px++ {
					idxLo := (lo & 0x80) >> 7
					idxHi := (hi & 0x80) >> 6
					lo <<= 1
					hi <<= 1
					col := nesPalette[p.readPalette(0x3F00+uint16(idxLo|idxHi))&0x3F]
					out[y*256+xOffset+fineX+px] = col
				}
			}
		}
	}
	draw(0x0000, 0)
	draw(0x1000, 128)
}

// DumpNametables renders the four nametable quadrants, as currently mirrored
// by the mapper, into a 512x480 uint32 buffer.
func (p *PPU) DumpNametables(out []uint32) {
	patternTable := uint16(0)
	if p.ctrl&0x10 != 0 {
		patternTable = 0x1000
	}
	draw := func(nametable uint16, offX, offY int) {
		for y := uint16(0); y < 240; y++ {
			tileY := y / 8
			fineY := y % 8
			for tile := uint16(0); tile < 32; tile++ {
				addr := tileY*32 + tile
				patternNum := uint16(p.vramRead(nametable + addr))
				lo := p.vramRead(patternTable + patternNum*16 + fineY)
				hi := p.vramRead(patternTable + patternNum*16 + fineY + 8)

				attr := p.vramRead(nametable + 0x3C0 + (tileY/4)*8 + tile/4)
				shift := (tileY % 4 / 2) * 4
				shift += (tile % 4 / 2) * 2
				palBits := (attr >> shift) & 0x03

				for px := uint16(0); px < 8; px++ {
					idxLo := (lo & 0x80) >> 7
					idxHi := (hi & 0x80) >> 6
					lo <<= 1
					hi <<= 1
					pix := idxLo | idxHi
					var col uint32
					if pix == 0 {
						col = nesPalette[p.readPalette(0x3F00)&0x3F]
					} else {
						col = nesPalette[p.readPalette(0x3F00+uint16(palBits)*4+uint16(pix))&0x3F]
					}
					out[(offY+int(y))*512+offX+int(tile)*8+int(px)] = col
				}
			}
		}
	}
	draw(0x2000, 0, 0)
	draw(0x2400, 256, 0)
	draw(0x2800, 0, 240)
	draw(0x2C00, 256, 240)
}

func (p *PPU) Save(w *StateWriter) {
	w.u8(p.ctrl)
	w.u8(p.mask)
	w.u8(p.status)
	w.u8(p.oamAddr)
	w.bytes(p.oam[:])
	w.bytes(p.palette[:])
	w.u16(p.v)
	w.u16(p.t)
	w.u8(p.fineX)
	w.boolean(p.writeToggle)
	w.u8(p.dataBuffer)
	w.u32(uint32(p.scanline))
	w.u32(uint32(p.dot))
	w.boolean(p.oddFrame)
}

func (p *PPU) Load(r *StateReader) {
	p.ctrl = r.u8()
	p.mask = r.u8()
	p.status = r.u8()
	p.oamAddr = r.u8()
	r.bytes(p.oam[:])
	r.bytes(p.palette[:])
	p.v = r.u16()
	p.t = r.u16()
	p.fineX = r.u8()
	p.writeToggle = r.boolean()
	p.dataBuffer = r.u8()
	p.scanline = int(r.u32())
	p.dot = int(r.u32())
	p.oddFrame = r.boolean()
}
