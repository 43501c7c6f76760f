// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"fmt"
	"io"
)

// OutputSection is one finished output section handed to an
// OutputWriter: its name, base virtual address, and concatenated byte
// image in the order the Layout Engine placed its input sections.
type OutputSection struct {
	Name    string
	Address uint64
	Data    []byte
}

// OutputWriter is the collaborator spec.md §1 and §6 describe but
// explicitly does not specify: "production of the final executable
// container... is not specified here." This repo ships one concrete
// implementation, FlatWriter, since the original this spec was
// distilled from never got further than a stub writer either (see
// SPEC_FULL.md §4.6).
type OutputWriter interface {
	Write(sections []OutputSection) error
}

// FlatWriter concatenates each output section's bytes to w in
// Config.OutputSections order, with no container framing: no ELF
// header, no program headers, no entry point. It exists so this repo
// has a runnable end-to-end path without pretending to solve the
// separately-scoped problem of executable-container production.
type FlatWriter struct {
	W io.Writer
}

func (f *FlatWriter) Write(sections []OutputSection) error {
	for _, sec := range sections {
		if _, err := f.W.Write(sec.Data); err != nil {
			return fmt.Errorf("writing section %s: %w", sec.Name, err)
		}
	}
	return nil
}

// CollectOutputSections gathers the final byte image of every laid-out
// section, grouped and ordered by c.Config.OutputSections, for handoff
// to an OutputWriter. It must run after Relocate.
func CollectOutputSections(c *Context) []OutputSection {
	var out []OutputSection
	for _, name := range c.Config.OutputSections {
		var data []byte
		var base uint64
		first := true
		for _, obj := range c.Objects {
			sec := findSection(obj, name)
			if sec == nil || !sec.LaidOut {
				continue
			}
			if first {
				base = sec.AssignedAddress
				first = false
			}
			data = append(data, sec.Data...)
		}
		if !first {
			out = append(out, OutputSection{Name: name, Address: base, Data: data})
		}
	}
	return out
}
