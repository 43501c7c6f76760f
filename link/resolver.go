// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

// Resolve merges every Object's global symbols into c.Globals, in
// c.Objects order (i.e. the order ids were assigned), implementing the
// resolution table in spec.md §4.2. Local symbols never enter Globals;
// they stay reachable only through their owning Object's Symbols slice.
func Resolve(c *Context) error {
	for _, obj := range c.Objects {
		for i := range obj.Symbols {
			sym := &obj.Symbols[i]
			if sym.Binding != BindGlobal {
				continue
			}
			if err := resolveOne(c, sym); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveOne applies one row of spec.md §4.2's resolution table for
// inserting candidate sym into c.Globals.
func resolveOne(c *Context, sym *Symbol) error {
	existing, ok := c.Globals[sym.Name]
	if !ok {
		c.Globals[sym.Name] = sym
		return nil
	}

	if !existing.Defined() {
		// E undefined: any defined candidate replaces it; an undefined
		// candidate changes nothing.
		if sym.Defined() {
			c.Globals[sym.Name] = sym
		}
		return nil
	}

	if !sym.Defined() {
		// E defined, candidate undefined: keep E.
		return nil
	}

	// Both existing and candidate are defined.
	switch {
	case existing.Strength == Weak && sym.Strength == Strong:
		c.Globals[sym.Name] = sym
	case existing.Strength == Weak && sym.Strength == Weak:
		// first wins
	case existing.Strength == Strong && sym.Strength == Strong:
		return &MultipleDefinitions{Name: sym.Name}
	case existing.Strength == Strong && sym.Strength == Weak:
		// keep E
	}
	return nil
}
