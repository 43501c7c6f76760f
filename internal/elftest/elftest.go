// Package elftest assembles minimal, synthetic ELF relocatable objects
// for tests. This repository ships no golden compiled binaries, so
// tests build the bytes they need by hand instead.
package elftest

import (
	"bytes"
	"encoding/binary"
)

const (
	shnUndef = 0
	shnAbs   = 0xfff1
)

// Symbol bind/type constants, named the way st_info packs them.
const (
	BindLocal  = 0
	BindGlobal = 1
	BindWeak   = 2

	TypeNone    = 0
	TypeObject  = 1
	TypeFunc    = 2
	TypeSection = 3
)

const (
	shtNull     = 0
	shtProgbits = 1
	shtSymtab   = 2
	shtStrtab   = 3
	shtRel      = 9
	shtRela     = 4
	shtNobits   = 8
)

// Section flag bits (SHF_*).
const (
	FlagWrite     = 0x1
	FlagAlloc     = 0x2
	FlagExecinstr = 0x4
)

// Section is one input section to synthesize.
type Section struct {
	Name   string
	Flags  uint64
	NoBits bool // true for a zero-initialized (.bss-like) section; Size is used instead of Data
	Data   []byte
	Size   uint64 // only consulted when NoBits is true
}

// Sym is one symbol-table entry to synthesize.
type Sym struct {
	Name    string
	Section string // name of a Section added via AddSection; "" = undefined; "*ABS*" = absolute
	Value   uint64
	Size    uint64
	Bind    byte
	Type    byte
}

// Reloc is one relocation entry, applied against Section at Offset,
// targeting Symbol. For RELA-format objects (Class32 == false) Addend
// is carried in the relocation entry itself; for REL-format (Class32 ==
// true) Bytes instead writes it into the target section's own byte
// image at Offset, the way a real 386 assembler would encode it.
type Reloc struct {
	Section string
	Offset  uint64
	Symbol  string
	Type    uint32
	Addend  int64
}

// Builder assembles an ELF little-endian ET_REL object.
type Builder struct {
	Machine uint16 // elf.EM_X86_64 by default
	// Class32 builds an ELFCLASS32 object with SHT_REL relocation
	// sections (implicit, inline addends) instead of the default
	// ELFCLASS64 SHT_RELA object, mirroring real 386 objects.
	Class32  bool
	Sections []Section
	Symbols  []Sym
	Relocs   []Reloc
}

func NewBuilder() *Builder {
	return &Builder{Machine: 62 /* EM_X86_64 */}
}

func (b *Builder) AddSection(s Section) { b.Sections = append(b.Sections, s) }
func (b *Builder) AddSym(s Sym)         { b.Symbols = append(b.Symbols, s) }
func (b *Builder) AddReloc(r Reloc)     { b.Relocs = append(b.Relocs, r) }

type strtab struct {
	buf bytes.Buffer
	off map[string]uint32
}

func newStrtab() *strtab {
	t := &strtab{off: map[string]uint32{}}
	t.buf.WriteByte(0)
	return t
}

func (t *strtab) add(name string) uint32 {
	if name == "" {
		return 0
	}
	if off, ok := t.off[name]; ok {
		return off
	}
	off := uint32(t.buf.Len())
	t.buf.WriteString(name)
	t.buf.WriteByte(0)
	t.off[name] = off
	return off
}

type outSection struct {
	name       string
	shType     uint32
	flags      uint64
	data       []byte
	size       uint64
	link, info uint32
	entsize    uint64
}

// Bytes assembles the full ELF object file.
func (b *Builder) Bytes() []byte {
	le := binary.LittleEndian
	shstr := newStrtab()
	str := newStrtab()

	sectionIndex := map[string]int{}
	var sects []outSection
	sects = append(sects, outSection{}) // index 0: SHT_NULL

	for _, s := range b.Sections {
		sectionIndex[s.Name] = len(sects)
		if s.NoBits {
			sects = append(sects, outSection{name: s.Name, shType: shtNobits, flags: s.Flags, size: s.Size})
		} else {
			sects = append(sects, outSection{name: s.Name, shType: shtProgbits, flags: s.Flags, data: s.Data, size: uint64(len(s.Data))})
		}
	}

	type symEnt struct {
		nameOff     uint32
		info        byte
		shndx       uint16
		value, size uint64
	}
	symEnts := []symEnt{{}}
	symIndexByName := map[string]int{}
	for i, s := range b.Symbols {
		var shndx uint16
		switch s.Section {
		case "":
			shndx = shnUndef
		case "*ABS*":
			shndx = shnAbs
		default:
			idx, ok := sectionIndex[s.Section]
			if !ok {
				panic("elftest: unknown section " + s.Section)
			}
			shndx = uint16(idx)
		}
		info := (s.Bind << 4) | (s.Type & 0xf)
		symEnts = append(symEnts, symEnt{
			nameOff: str.add(s.Name),
			info:    info,
			shndx:   shndx,
			value:   s.Value,
			size:    s.Size,
		})
		symIndexByName[s.Name] = i + 1
	}

	symtabIdx := len(sects)
	sectionIndex[".symtab"] = symtabIdx
	sects = append(sects, outSection{name: ".symtab", shType: shtSymtab})

	strtabIdx := len(sects)
	sects = append(sects, outSection{name: ".strtab", shType: shtStrtab})

	relocsBySection := map[string][]Reloc{}
	var relocOrder []string
	for _, r := range b.Relocs {
		if _, ok := relocsBySection[r.Section]; !ok {
			relocOrder = append(relocOrder, r.Section)
		}
		relocsBySection[r.Section] = append(relocsBySection[r.Section], r)
	}

	relSectionType := uint32(shtRela)
	relNamePrefix := ".rela"
	if b.Class32 {
		relSectionType = shtRel
		relNamePrefix = ".rel"
	}

	relIdx := map[string]int{}
	for _, secName := range relocOrder {
		relIdx[secName] = len(sects)
		sects = append(sects, outSection{name: relNamePrefix + secName, shType: relSectionType})
	}

	shstrtabIdx := len(sects)
	sects = append(sects, outSection{name: ".shstrtab", shType: shtStrtab})

	var symtabBuf bytes.Buffer
	symentsize := uint64(24)
	if b.Class32 {
		symentsize = 16
	}
	for _, e := range symEnts {
		if b.Class32 {
			var rec [16]byte
			le.PutUint32(rec[0:4], e.nameOff)
			le.PutUint32(rec[4:8], uint32(e.value))
			le.PutUint32(rec[8:12], uint32(e.size))
			rec[12] = e.info
			le.PutUint16(rec[14:16], e.shndx)
			symtabBuf.Write(rec[:])
		} else {
			var rec [24]byte
			le.PutUint32(rec[0:4], e.nameOff)
			rec[4] = e.info
			le.PutUint16(rec[6:8], e.shndx)
			le.PutUint64(rec[8:16], e.value)
			le.PutUint64(rec[16:24], e.size)
			symtabBuf.Write(rec[:])
		}
	}
	sects[symtabIdx].data = symtabBuf.Bytes()
	sects[symtabIdx].size = uint64(symtabBuf.Len())
	sects[symtabIdx].link = uint32(strtabIdx)
	sects[symtabIdx].info = 1
	sects[symtabIdx].entsize = symentsize

	// For Class32 (SHT_REL) objects, the addend lives inline in the
	// target section's bytes rather than in the relocation entry, so
	// patch it in before the section data is laid out.
	if b.Class32 {
		for _, secName := range relocOrder {
			idx, ok := sectionIndex[secName]
			if !ok {
				panic("elftest: relocation targets unknown section " + secName)
			}
			for _, r := range relocsBySection[secName] {
				writeInlineAddend(sects[idx].data, r.Offset, r.Addend)
			}
		}
	}

	relentsize := uint64(24)
	if b.Class32 {
		relentsize = 8
	}
	for _, secName := range relocOrder {
		idx := relIdx[secName]
		var buf bytes.Buffer
		for _, r := range relocsBySection[secName] {
			symIdx, ok := symIndexByName[r.Symbol]
			if !ok {
				panic("elftest: unknown symbol " + r.Symbol)
			}
			if b.Class32 {
				var rec [8]byte
				le.PutUint32(rec[0:4], uint32(r.Offset))
				info := (uint32(symIdx) << 8) | (r.Type & 0xff)
				le.PutUint32(rec[4:8], info)
				buf.Write(rec[:])
			} else {
				var rec [24]byte
				le.PutUint64(rec[0:8], r.Offset)
				info := (uint64(symIdx) << 32) | uint64(r.Type)
				le.PutUint64(rec[8:16], info)
				le.PutUint64(rec[16:24], uint64(r.Addend))
				buf.Write(rec[:])
			}
		}
		target, ok := sectionIndex[secName]
		if !ok {
			panic("elftest: relocation targets unknown section " + secName)
		}
		sects[idx].data = buf.Bytes()
		sects[idx].size = uint64(buf.Len())
		sects[idx].link = uint32(symtabIdx)
		sects[idx].info = uint32(target)
		sects[idx].entsize = relentsize
	}

	sects[strtabIdx].data = str.buf.Bytes()
	sects[strtabIdx].size = uint64(str.buf.Len())

	ehsize := uint64(64)
	shentsize := uint64(64)
	if b.Class32 {
		ehsize = 52
		shentsize = 40
	}

	var body bytes.Buffer
	offsets := make([]uint64, len(sects))
	for i, s := range sects {
		if i == 0 || s.shType == shtNull || s.shType == shtNobits {
			continue
		}
		offsets[i] = ehsize + uint64(body.Len())
		body.Write(s.data)
	}

	nameOffsets := make([]uint32, len(sects))
	for i, s := range sects {
		if i == 0 {
			continue
		}
		nameOffsets[i] = shstr.add(s.name)
	}
	sects[shstrtabIdx].data = shstr.buf.Bytes()
	sects[shstrtabIdx].size = uint64(shstr.buf.Len())
	offsets[shstrtabIdx] = ehsize + uint64(body.Len())
	body.Write(shstr.buf.Bytes())

	shoff := ehsize + uint64(body.Len())

	var out bytes.Buffer
	var ident [16]byte
	ident[0], ident[1], ident[2], ident[3] = 0x7f, 'E', 'L', 'F'
	if b.Class32 {
		ident[4] = 1 // ELFCLASS32
	} else {
		ident[4] = 2 // ELFCLASS64
	}
	ident[5] = 1 // ELFDATA2LSB
	ident[6] = 1 // EV_CURRENT
	out.Write(ident[:])

	if b.Class32 {
		var hdr [36]byte
		le.PutUint16(hdr[0:2], 1) // ET_REL
		le.PutUint16(hdr[2:4], b.Machine)
		le.PutUint32(hdr[4:8], 1)
		le.PutUint32(hdr[8:12], 0)  // e_entry
		le.PutUint32(hdr[12:16], 0) // e_phoff
		le.PutUint32(hdr[16:20], uint32(shoff))
		le.PutUint32(hdr[20:24], 0) // e_flags
		le.PutUint16(hdr[24:26], uint16(ehsize))
		le.PutUint16(hdr[26:28], 0) // e_phentsize
		le.PutUint16(hdr[28:30], 0) // e_phnum
		le.PutUint16(hdr[30:32], uint16(shentsize))
		le.PutUint16(hdr[32:34], uint16(len(sects)))
		le.PutUint16(hdr[34:36], uint16(shstrtabIdx))
		out.Write(hdr[:])
	} else {
		var hdr [48]byte
		le.PutUint16(hdr[0:2], 1) // ET_REL
		le.PutUint16(hdr[2:4], b.Machine)
		le.PutUint32(hdr[4:8], 1)
		le.PutUint64(hdr[8:16], 0)
		le.PutUint64(hdr[16:24], 0)
		le.PutUint64(hdr[24:32], shoff)
		le.PutUint32(hdr[32:36], 0)
		le.PutUint16(hdr[36:38], uint16(ehsize))
		le.PutUint16(hdr[38:40], 0)
		le.PutUint16(hdr[40:42], 0)
		le.PutUint16(hdr[42:44], uint16(shentsize))
		le.PutUint16(hdr[44:46], uint16(len(sects)))
		le.PutUint16(hdr[46:48], uint16(shstrtabIdx))
		out.Write(hdr[:])
	}

	out.Write(body.Bytes())

	for i, s := range sects {
		if b.Class32 {
			var rec [40]byte
			le.PutUint32(rec[0:4], nameOffsets[i])
			le.PutUint32(rec[4:8], s.shType)
			le.PutUint32(rec[8:12], uint32(s.flags))
			le.PutUint32(rec[12:16], 0)
			if s.shType != shtNull && s.shType != shtNobits {
				le.PutUint32(rec[16:20], uint32(offsets[i]))
			}
			le.PutUint32(rec[20:24], uint32(s.size))
			le.PutUint32(rec[24:28], s.link)
			le.PutUint32(rec[28:32], s.info)
			le.PutUint32(rec[32:36], 1)
			le.PutUint32(rec[36:40], uint32(s.entsize))
			out.Write(rec[:])
		} else {
			var rec [64]byte
			le.PutUint32(rec[0:4], nameOffsets[i])
			le.PutUint32(rec[4:8], s.shType)
			le.PutUint64(rec[8:16], s.flags)
			le.PutUint64(rec[16:24], 0)
			if s.shType != shtNull && s.shType != shtNobits {
				le.PutUint64(rec[24:32], offsets[i])
			}
			le.PutUint64(rec[32:40], s.size)
			le.PutUint32(rec[40:44], s.link)
			le.PutUint32(rec[44:48], s.info)
			le.PutUint64(rec[48:56], 1)
			le.PutUint64(rec[56:64], s.entsize)
			out.Write(rec[:])
		}
	}

	return out.Bytes()
}

// writeInlineAddend patches addend into data at off as a 32-bit value:
// the linker core only defines abs32/PC32 kinds for 32-bit targets, so
// there's no 8-byte case to handle here.
func writeInlineAddend(data []byte, off uint64, addend int64) {
	if off+4 > uint64(len(data)) {
		return
	}
	binary.LittleEndian.PutUint32(data[off:off+4], uint32(int32(addend)))
}
