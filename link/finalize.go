// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import "sort"

// Finalize computes every global symbol's final virtual address, per
// spec.md §4.4. It must run after Layout. The first UndefinedSymbol or
// OrphanSection encountered is returned immediately: both are fatal and
// diagnostics are emitted at most once (spec.md §7).
func Finalize(c *Context) error {
	for _, name := range sortedNames(c.Globals) {
		sym := c.Globals[name]

		if !sym.Defined() {
			ref := firstReferencingObject(c, name)
			return &UndefinedSymbol{ReferencingObject: ref, Name: name}
		}

		if sym.Absolute {
			sym.FinalAddress = sym.Value
			continue
		}

		obj := c.Objects[sym.OwningObject]
		sec := &obj.Sections[sym.SectionIndex]
		if !sec.LaidOut {
			return &OrphanSection{Object: obj.Path, Section: sec.Name}
		}
		sym.FinalAddress = sec.AssignedAddress + sym.Value
	}
	return nil
}

// firstReferencingObject returns the path of the first Object (in load
// order) whose relocations reference name, for UndefinedSymbol's
// diagnostic. Falls back to "" if nothing references it by name
// (possible when an object declares an undefined global that none of
// its relocations target).
func firstReferencingObject(c *Context, name string) string {
	for _, obj := range c.Objects {
		for _, rel := range obj.Relocations {
			if rel.TargetSymbol == name {
				return obj.Path
			}
		}
	}
	return ""
}

// sortedNames returns m's keys in a fixed, deterministic order so that,
// when multiple globals are simultaneously broken, the same one is
// always reported first (spec.md invariant 3: determinism).
func sortedNames(m map[string]*Symbol) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
