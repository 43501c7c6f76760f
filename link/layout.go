// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import "fmt"

// Layout assigns a virtual address to every input section selected for
// output, per the fixed policy in spec.md §4.3: walk c.Config.OutputSections
// in order; for each name, walk Objects in load order and place at most
// one matching, non-empty section per Object back-to-back, with no
// inter-section padding.
func Layout(c *Context) (*addressMap, error) {
	ranges := &addressMap{}
	cursor := c.Config.ImageBase

	for _, outName := range c.Config.OutputSections {
		for _, obj := range c.Objects {
			sec := findSection(obj, outName)
			if sec == nil || len(sec.Data) == 0 {
				continue
			}

			lo, hi := cursor, cursor+uint64(len(sec.Data))
			if other, overlap := ranges.Overlaps(lo, hi); overlap {
				// Unreachable by construction: the cursor only ever
				// advances, so no two placements can collide. Kept as
				// an assertion rather than silently trusting that.
				return nil, fmt.Errorf("layout invariant violated: %s overlaps %s at %#x", sec.Name, other.Name, lo)
			}

			sec.AssignedAddress = lo
			sec.LaidOut = true
			ranges.Insert(lo, hi, sec)
			cursor = hi
		}
	}

	return ranges, nil
}

// findSection returns the first section in obj named name, matching
// spec.md §4.3's "find at most one input section by name" — input
// objects in practice never carry two sections with the same name, but
// the policy only needs the first.
func findSection(obj *Object, name string) *Section {
	for i := range obj.Sections {
		if obj.Sections[i].Name == name {
			return &obj.Sections[i]
		}
	}
	return nil
}
