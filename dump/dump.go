// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dump renders a disassembly listing of a linked output
// section, for the driver's -d/--debug flag (SPEC_FULL.md §6).
package dump

import (
	"fmt"
	"io"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// SymName resolves addr to the name and base address of the symbol
// containing it, or returns "" if no symbol covers addr. It mirrors the
// callback x86asm.GoSyntax/arm64asm.GoSyntax already expect.
type SymName func(addr uint64) (name string, base uint64)

// Listing disassembles text (the byte image of one output section,
// already relocated) starting at virtual address pc, and writes one
// line per instruction to w in roughly objdump/Go-assembler style.
// goArch selects the instruction-set decoder; unsupported architectures
// return an error rather than silently emitting nothing.
func Listing(w io.Writer, goArch string, text []byte, pc uint64, sym SymName) error {
	switch goArch {
	case "amd64":
		return listX86(w, text, pc, 64, sym)
	case "386":
		return listX86(w, text, pc, 32, sym)
	case "arm64":
		return listARM64(w, text, pc, sym)
	}
	return fmt.Errorf("unsupported disassembly architecture: %s", goArch)
}

func listX86(w io.Writer, text []byte, pc uint64, bits int, sym SymName) error {
	for len(text) > 0 {
		inst, err := x86asm.Decode(text, bits)
		size := inst.Len
		var line string
		if err != nil || size == 0 || inst.Op == 0 {
			size = 1
			line = "?"
		} else {
			line = x86asm.GoSyntax(inst, pc, sym)
		}
		if err := writeLine(w, pc, text[:size], line); err != nil {
			return err
		}
		text = text[size:]
		pc += uint64(size)
	}
	return nil
}

func listARM64(w io.Writer, text []byte, pc uint64, sym SymName) error {
	const size = 4
	for len(text) >= size {
		inst, err := arm64asm.Decode(text[:size])
		var line string
		if err != nil || inst.Op == 0 {
			line = "?"
		} else {
			line = arm64asm.GoSyntax(inst, pc, sym, nil)
		}
		if err := writeLine(w, pc, text[:size], line); err != nil {
			return err
		}
		text = text[size:]
		pc += size
	}
	return nil
}

func writeLine(w io.Writer, pc uint64, raw []byte, line string) error {
	_, err := fmt.Fprintf(w, "0x%06x\t% x\t%s\n", pc, raw, line)
	return err
}
