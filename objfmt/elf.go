// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objfmt

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
)

// RawSymbol is one symbol-table entry as decoded straight out of an ELF
// object, before any cross-object resolution.
type RawSymbol struct {
	Name string
	// Section is the index into RawObject.Sections this symbol is
	// defined in, or -1 if the symbol is undefined or absolute.
	Section int
	// Value is the section-relative offset for section-bound symbols,
	// or the absolute value for absolute symbols.
	Value uint64
	Size  uint64
	Kind  SymKind
	Local bool
	Weak  bool
	// Absolute is true for SHN_ABS symbols: Value is meaningful and the
	// symbol is defined even though Section is -1.
	Absolute bool
}

// Defined reports whether sym has a home (a section or an absolute
// value).
func (s RawSymbol) Defined() bool {
	return s.Section >= 0 || s.Absolute
}

// SymKind is the general category of a symbol, independent of the
// underlying object format.
type SymKind uint8

const (
	SymUnknown SymKind = iota
	SymUndef
	SymText
	SymData
	SymSection
	SymFile
	SymOther
)

// RawSection is one section as decoded from an ELF object, with its
// data copied out of the file so later processing never borrows from
// the backing mapping.
type RawSection struct {
	Name string
	Data []byte
}

// RawReloc is one relocation entry, targeting a byte offset within one
// of RawObject's sections.
type RawReloc struct {
	// Section is the index into RawObject.Sections being patched.
	Section int
	Offset  uint64
	Kind    RelocKind
	Enc     RelocEncoding
	// Symbol is the index into RawObject.Symbols this relocation
	// targets.
	Symbol  int
	Addend  int64
	RawType uint32
	// TypeName is a human-readable name for RawType, for diagnostics
	// only (e.g. RelocationOverflow reporting).
	TypeName string
}

// RawObject is the fully-decoded contents of one ELF relocatable
// object, with no cross-object knowledge applied.
type RawObject struct {
	Arch     Arch
	Sections []RawSection
	Symbols  []RawSymbol
	Relocs   []RawReloc
}

var elfArches = map[elf.Machine]Arch{
	elf.EM_X86_64:  archAMD64,
	elf.EM_386:     archI386,
	elf.EM_AARCH64: archARM64,
}

// ErrNotELF indicates the input doesn't start with the ELF magic
// number, so the caller should try another format (or, since this
// linker only understands ELF, fail outright).
var ErrNotELF = fmt.Errorf("not an ELF file")

// Parse decodes r as an ELF relocatable object (ET_REL). It returns
// ErrNotELF if r doesn't begin with the ELF magic, a parse error if
// debug/elf rejects the file, and a distinct error for a
// correctly-parsed but non-relocatable file. An object with no symbol
// table is not an error: it simply yields no symbols.
func Parse(r io.ReaderAt) (*RawObject, error) {
	var magic [4]byte
	if _, err := r.ReadAt(magic[:], 0); err != nil {
		return nil, fmt.Errorf("reading ELF magic: %w", err)
	}
	if magic != [4]byte{'\x7f', 'E', 'L', 'F'} {
		return nil, ErrNotELF
	}

	ff, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}

	if ff.Type != elf.ET_REL {
		return nil, &NotRelocatableError{Kind: ff.Type}
	}

	arch, ok := elfArches[ff.Machine]
	if !ok {
		return nil, fmt.Errorf("unsupported ELF machine %s", ff.Machine)
	}

	raw := &RawObject{Arch: arch}

	// Sections, in ELF section-table order (including SHT_NULL at index
	// 0, so RawReloc/RawSymbol section indices line up with the raw ELF
	// section numbers debug/elf uses internally).
	for _, sect := range ff.Sections {
		data, err := sectionData(sect)
		if err != nil {
			return nil, fmt.Errorf("reading section %s: %w", sect.Name, err)
		}
		raw.Sections = append(raw.Sections, RawSection{Name: sect.Name, Data: data})
	}

	syms, err := ff.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		return nil, fmt.Errorf("reading symbol table: %w", err)
	}
	for _, sym := range syms {
		raw.Symbols = append(raw.Symbols, convertSymbol(ff, sym))
	}

	for _, sect := range ff.Sections {
		if sect.Type != elf.SHT_REL && sect.Type != elf.SHT_RELA {
			continue
		}
		target := int(sect.Info)
		if target < 0 || target >= len(raw.Sections) {
			return nil, fmt.Errorf("relocation section %s targets out-of-range section %d", sect.Name, target)
		}
		relocs, err := decodeRelocs(ff, sect, target, raw.Sections[target].Data)
		if err != nil {
			return nil, fmt.Errorf("decoding relocations in %s: %w", sect.Name, err)
		}
		raw.Relocs = append(raw.Relocs, relocs...)
	}

	return raw, nil
}

// NotRelocatableError is returned by Parse when the input is valid ELF
// but isn't an ET_REL object.
type NotRelocatableError struct {
	Kind elf.Type
}

func (e *NotRelocatableError) Error() string {
	return fmt.Sprintf("not a relocatable object (ELF type %s)", e.Kind)
}

func sectionData(sect *elf.Section) ([]byte, error) {
	if sect.Type == elf.SHT_NOBITS {
		return make([]byte, sect.Size), nil
	}
	data, err := sect.Data()
	if err != nil {
		return nil, err
	}
	// sect.Data returns a slice that may alias an internal buffer or a
	// decompression result; copy it out so the linker owns it and can
	// mutate it in place during relocation without aliasing hazards.
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func convertSymbol(ff *elf.File, sym elf.Symbol) RawSymbol {
	out := RawSymbol{
		Name:  sym.Name,
		Value: sym.Value,
		Size:  sym.Size,
		Local: elf.ST_BIND(sym.Info) == elf.STB_LOCAL,
		Weak:  elf.ST_BIND(sym.Info) == elf.STB_WEAK,
	}

	switch sym.Section {
	case elf.SHN_UNDEF:
		out.Section = -1
		out.Kind = SymUndef
	case elf.SHN_ABS:
		out.Section = -1
		out.Absolute = true
		out.Kind = symKindAbs(sym)
	case elf.SHN_COMMON:
		out.Section = -1
		out.Kind = SymData
	default:
		out.Section = int(sym.Section)
		out.Kind = symKind(ff, sym)
	}
	return out
}

func symKindAbs(sym elf.Symbol) SymKind {
	if elf.ST_TYPE(sym.Info) == elf.STT_FILE {
		return SymFile
	}
	return SymOther
}

func symKind(ff *elf.File, sym elf.Symbol) SymKind {
	switch elf.ST_TYPE(sym.Info) {
	case elf.STT_SECTION:
		return SymSection
	case elf.STT_FILE:
		return SymFile
	}
	if int(sym.Section) >= len(ff.Sections) {
		return SymUnknown
	}
	sect := ff.Sections[sym.Section]
	switch sect.Flags & (elf.SHF_WRITE | elf.SHF_ALLOC | elf.SHF_EXECINSTR) {
	case elf.SHF_ALLOC | elf.SHF_EXECINSTR:
		return SymText
	case elf.SHF_ALLOC, elf.SHF_ALLOC | elf.SHF_WRITE:
		return SymData
	}
	return SymOther
}

// decodeRelocs decodes one relocation section. targetData is the
// already-decoded byte image of the section being patched (raw.Sections[target].Data),
// needed because SHT_REL formats (used by, e.g., 386) carry their addend
// inline in the patch-site bytes rather than in the relocation entry
// itself; SHT_RELA entries carry an explicit addend field instead.
func decodeRelocs(ff *elf.File, sect *elf.Section, target int, targetData []byte) ([]RawReloc, error) {
	data, err := sect.Data()
	if err != nil {
		return nil, err
	}

	var out []RawReloc
	order := ff.ByteOrder
	is64 := ff.Class == elf.ELFCLASS64
	rela := sect.Type == elf.SHT_RELA

	entSize := relocEntSize(is64, rela)
	if entSize == 0 || len(data)%entSize != 0 {
		return nil, fmt.Errorf("malformed relocation section (entry size %d, data %d bytes)", entSize, len(data))
	}

	for off := 0; off+entSize <= len(data); off += entSize {
		entry := data[off : off+entSize]
		var rOff uint64
		var symIdx uint32
		var rType uint32
		var addend int64

		if is64 {
			rOff = order.Uint64(entry[0:8])
			info := order.Uint64(entry[8:16])
			symIdx = elf.R_SYM64(info)
			rType = elf.R_TYPE64(info)
			if rela {
				addend = int64(order.Uint64(entry[16:24]))
			}
		} else {
			rOff = uint64(order.Uint32(entry[0:4]))
			info := order.Uint32(entry[4:8])
			symIdx = elf.R_SYM32(info)
			rType = elf.R_TYPE32(info)
			if rela {
				addend = int64(int32(order.Uint32(entry[8:12])))
			}
		}

		kind, enc := classifyReloc(ff.Machine, rType)
		if !rela {
			addend = inlineAddend(order, targetData, rOff, kind)
		}

		// symIdx is an index into the raw ELF symbol table, whose entry 0
		// is always the null symbol. ff.Symbols() (used to build
		// RawObject.Symbols) drops that null entry, so every real symbol
		// shifts down by one; translate here so RawReloc.Symbol indexes
		// directly into RawObject.Symbols.
		symbolIndex := int(symIdx) - 1
		out = append(out, RawReloc{
			Section:  target,
			Offset:   rOff,
			Kind:     kind,
			Enc:      enc,
			Symbol:   symbolIndex,
			Addend:   addend,
			RawType:  rType,
			TypeName: relocTypeName(ff.Machine, rType),
		})
	}
	return out, nil
}

// inlineAddend reads the implicit addend SHT_REL formats store in the
// patch-site bytes themselves (spec.md §4.5 point 4: "any pre-existing
// addend bytes in the section image are considered part of A"). Returns
// 0 if kind's width is unknown or the offset doesn't fit targetData; the
// Relocator's own bounds check catches a truly malformed offset later.
func inlineAddend(order binary.ByteOrder, targetData []byte, off uint64, kind RelocKind) int64 {
	switch addendWidth(kind) {
	case 8:
		if off+8 > uint64(len(targetData)) {
			return 0
		}
		return int64(order.Uint64(targetData[off : off+8]))
	case 4:
		if off+4 > uint64(len(targetData)) {
			return 0
		}
		return int64(int32(order.Uint32(targetData[off : off+4])))
	default:
		return 0
	}
}

func addendWidth(kind RelocKind) int {
	switch kind {
	case RelocAbs64:
		return 8
	case RelocAbs32, RelocPC32:
		return 4
	default:
		return 0
	}
}

func relocEntSize(is64, rela bool) int {
	switch {
	case is64 && rela:
		return 24
	case is64 && !rela:
		return 16
	case !is64 && rela:
		return 12
	default:
		return 8
	}
}
