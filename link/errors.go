// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import "fmt"

// IoError wraps a filesystem or mapping failure encountered while
// loading path.
type IoError struct {
	Path  string
	Cause error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Cause)
}

func (e *IoError) Unwrap() error { return e.Cause }

// ParseError means path is not a valid object of the expected family.
type ParseError struct {
	Path  string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: not a valid object file: %v", e.Path, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// InvalidFileType means path parsed but is not a relocatable object.
type InvalidFileType struct {
	Path string
}

func (e *InvalidFileType) Error() string {
	return fmt.Sprintf("%s: not a relocatable object file", e.Path)
}

// UnsupportedMode means the caller requested a link mode the core does
// not implement.
type UnsupportedMode struct {
	Mode string
}

func (e *UnsupportedMode) Error() string {
	return fmt.Sprintf("unsupported link mode %q", e.Mode)
}

// MultipleDefinitions means two strong defined globals share Name.
type MultipleDefinitions struct {
	Name string
}

func (e *MultipleDefinitions) Error() string {
	return fmt.Sprintf("multiple definition of %q", e.Name)
}

// UndefinedSymbol means Name is referenced but never defined, after all
// inputs were merged.
type UndefinedSymbol struct {
	ReferencingObject string
	Name              string
}

func (e *UndefinedSymbol) Error() string {
	return fmt.Sprintf("%s: undefined reference to %q", e.ReferencingObject, e.Name)
}

// RelocationOverflow means a relocation's computed value does not fit
// its width/signedness.
type RelocationOverflow struct {
	Object  string
	Section string
	Offset  uint64
	Kind    string
}

func (e *RelocationOverflow) Error() string {
	return fmt.Sprintf("%s: %s+%#x: relocation overflow (%s)", e.Object, e.Section, e.Offset, e.Kind)
}

// OrphanSection means a defined symbol resolves into a section that was
// not selected into any output section.
type OrphanSection struct {
	Object  string
	Section string
}

func (e *OrphanSection) Error() string {
	return fmt.Sprintf("%s: symbol defined in section %q, which is not part of any output section", e.Object, e.Section)
}

// MixedArchitecture means an input object's machine architecture
// doesn't match the first-loaded object's (spec.md §6: "Mixed-architecture
// input is rejected by the Loader").
type MixedArchitecture struct {
	Path string
	Want string
	Got  string
}

func (e *MixedArchitecture) Error() string {
	return fmt.Sprintf("%s: architecture %s does not match first input's architecture %s", e.Path, e.Got, e.Want)
}
