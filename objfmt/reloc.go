// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package objfmt

import "debug/elf"

// RelocKind is the linker-relevant classification of a relocation: what
// arithmetic must be performed and how many bytes get written. Every
// architecture-specific ELF relocation type is reduced to one of these
// before it reaches the rest of the linker, so the core pipeline never
// needs to know about x86-64 vs. 386 vs. arm64 relocation numbering.
type RelocKind uint8

const (
	// RelocUnknown is a relocation type this package doesn't classify.
	// It is not an error by itself — only applying it is.
	RelocUnknown RelocKind = iota
	RelocAbs64
	RelocAbs32
	RelocPC32
)

func (k RelocKind) String() string {
	switch k {
	case RelocAbs64:
		return "abs64"
	case RelocAbs32:
		return "abs32"
	case RelocPC32:
		return "pc32"
	default:
		return "unknown"
	}
}

// RelocEncoding distinguishes a plain relocation from one that targets a
// PLT/GOT-style indirection. The core doesn't synthesize PLT/GOT entries
// (that's out of scope — see spec.md §1), but preserves the distinction
// so a relocation that needs one produces a clear diagnostic rather than
// being silently treated as a direct reference.
type RelocEncoding uint8

const (
	EncodingGeneric RelocEncoding = iota
	EncodingGOTPLT
)

// classifyReloc maps an ELF machine + raw relocation type number to the
// kind/encoding pair the linker core understands.
func classifyReloc(machine elf.Machine, rtype uint32) (RelocKind, RelocEncoding) {
	switch machine {
	case elf.EM_X86_64:
		switch elf.R_X86_64(rtype) {
		case elf.R_X86_64_64:
			return RelocAbs64, EncodingGeneric
		case elf.R_X86_64_32, elf.R_X86_64_32S:
			return RelocAbs32, EncodingGeneric
		case elf.R_X86_64_PC32:
			return RelocPC32, EncodingGeneric
		case elf.R_X86_64_PLT32:
			return RelocPC32, EncodingGOTPLT
		case elf.R_X86_64_GOTPCREL, elf.R_X86_64_GOTPCRELX, elf.R_X86_64_REX_GOTPCRELX:
			return RelocPC32, EncodingGOTPLT
		}
	case elf.EM_386:
		switch elf.R_386(rtype) {
		case elf.R_386_32:
			return RelocAbs32, EncodingGeneric
		case elf.R_386_PC32:
			return RelocPC32, EncodingGeneric
		case elf.R_386_PLT32:
			return RelocPC32, EncodingGOTPLT
		case elf.R_386_GOT32, elf.R_386_GOT32X:
			return RelocAbs32, EncodingGOTPLT
		}
	case elf.EM_AARCH64:
		switch elf.R_AARCH64(rtype) {
		case elf.R_AARCH64_ABS64:
			return RelocAbs64, EncodingGeneric
		case elf.R_AARCH64_ABS32:
			return RelocAbs32, EncodingGeneric
		case elf.R_AARCH64_PREL32:
			return RelocPC32, EncodingGeneric
		case elf.R_AARCH64_CALL26, elf.R_AARCH64_JUMP26:
			return RelocPC32, EncodingGOTPLT
		}
	}
	return RelocUnknown, EncodingGeneric
}

func relocTypeName(machine elf.Machine, rtype uint32) string {
	switch machine {
	case elf.EM_X86_64:
		return elf.R_X86_64(rtype).String()
	case elf.EM_386:
		return elf.R_386(rtype).String()
	case elf.EM_AARCH64:
		return elf.R_AARCH64(rtype).String()
	default:
		return "unknown"
	}
}
