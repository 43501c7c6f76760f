// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package objfmt decodes ELF relocatable object files into the raw
// sections, symbols, and relocations a linker needs, independent of any
// particular linker's symbol resolution or layout policy.
package objfmt

import "encoding/binary"

// Arch identifies the machine architecture of an object file, so the
// loader can reject attempts to link objects for different machines
// together.
type Arch struct {
	GoArch string
	Order  binary.ByteOrder
}

func (a Arch) String() string {
	return a.GoArch
}

var (
	archAMD64 = Arch{"amd64", binary.LittleEndian}
	archI386  = Arch{"386", binary.LittleEndian}
	archARM64 = Arch{"arm64", binary.LittleEndian}
)
