// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package link implements the core of a static linker for ELF
// relocatable object files: symbol resolution, deterministic section
// layout, symbol finalization, and relocation application.
package link

import (
	"github.com/aclements/cold/objfmt"
)

// SymKind mirrors objfmt.SymKind at the linker's data-model level, so
// the rest of this package doesn't need to import objfmt just to read
// a symbol's kind.
type SymKind = objfmt.SymKind

const (
	SymUnknown = objfmt.SymUnknown
	SymUndef   = objfmt.SymUndef
	SymText    = objfmt.SymText
	SymData    = objfmt.SymData
	SymSection = objfmt.SymSection
	SymFile    = objfmt.SymFile
	SymOther   = objfmt.SymOther
)

// Binding is a symbol's visibility to cross-object resolution.
type Binding uint8

const (
	BindLocal Binding = iota
	BindGlobal
)

// Strength governs which defined symbol wins when two global symbols
// share a name.
type Strength uint8

const (
	Strong Strength = iota
	Weak
)

// Symbol is one name occurrence in one input object.
type Symbol struct {
	Name         string
	OwningObject int // index into Context.Objects
	// SectionIndex is the index into the owning Object's Sections, or
	// -1 for undefined or absolute symbols.
	SectionIndex int
	Value        uint64
	Kind         SymKind
	Binding      Binding
	Strength     Strength

	// FinalAddress is populated by the Finalizer once this symbol is
	// known to be defined and laid out.
	FinalAddress uint64

	// Absolute marks a symbol whose Value is meaningful despite having
	// no home section (SHN_ABS in ELF terms).
	Absolute bool
}

// Defined reports whether s has a home section or an absolute value.
func (s *Symbol) Defined() bool {
	return s.SectionIndex >= 0 || s.Absolute
}

// Section is one input section of one Object.
type Section struct {
	Name         string
	Index        int // dense index within the owning Object's section array
	OwningObject int
	Data         []byte // mutable; empty for zero-initialized sections
	InputAddress uint64

	// AssignedAddress is populated by the Layout Engine; Laid out is
	// true iff the section was selected for output.
	AssignedAddress uint64
	LaidOut         bool
}

// Relocation is one patch site.
type Relocation struct {
	OwningObject int
	SectionIndex int
	Offset       uint64
	Kind         objfmt.RelocKind
	Encoding     objfmt.RelocEncoding
	TargetSymbol string
	Addend       int64
	TypeName     string
}

// Object is one loaded input file.
type Object struct {
	ID   int // stable, insertion-order identifier
	Path string
	Arch objfmt.Arch

	// backing is the memory mapping this Object's section data was
	// copied out of. It is retained only so the Context can unmap it
	// when the link completes; no Section.Data aliases it.
	backing []byte
	mmapped bool

	Symbols     []Symbol
	Sections    []Section
	Relocations []Relocation
}

// Context is the owning container for all Objects, their backing
// mappings, and the global symbol table. It is the unit of linker
// invocation and carries no cross-invocation state.
type Context struct {
	Config Config

	Objects []*Object

	// Globals is the global symbol table: name -> resolved Symbol,
	// exactly one entry per name once resolution completes without
	// error. Exclusive-writer during the Resolver stage, read-only
	// thereafter.
	Globals map[string]*Symbol
}

// Config is the driver-supplied configuration record (spec §6).
type Config struct {
	ImageBase      uint64
	OutputSections []string
	Mode           string
}

// DefaultConfig returns the configuration spec.md documents as the
// default: image base 0x400000, output sections .text then .data,
// static mode.
func DefaultConfig() Config {
	return Config{
		ImageBase:      0x400000,
		OutputSections: []string{".text", ".data"},
		Mode:           "static",
	}
}

// NewContext creates an empty Context ready to accept Objects via the
// Loader.
func NewContext(cfg Config) *Context {
	return &Context{Config: cfg, Globals: map[string]*Symbol{}}
}

// Close unmaps every Object's backing mapping. Safe to call once after
// a link completes or fails.
func (c *Context) Close() error {
	var firstErr error
	for _, obj := range c.Objects {
		if err := obj.unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
