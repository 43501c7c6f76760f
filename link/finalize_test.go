// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFinalizeSectionBound(t *testing.T) {
	c := newTestContext(&Object{
		Sections: []Section{{Name: ".text", Data: make([]byte, 16)}},
		Symbols:  []Symbol{{Name: "_start", SectionIndex: 0, Value: 0, Binding: BindGlobal, Strength: Strong}},
	})
	require.NoError(t, Resolve(c))
	_, err := Layout(c)
	require.NoError(t, err)
	require.NoError(t, Finalize(c))
	require.Equal(t, c.Config.ImageBase, c.Globals["_start"].FinalAddress)
}

func TestFinalizeAbsolute(t *testing.T) {
	c := newTestContext(&Object{
		Symbols: []Symbol{{Name: "CONST", SectionIndex: -1, Absolute: true, Value: 0xdead, Binding: BindGlobal, Strength: Strong}},
	})
	require.NoError(t, Resolve(c))
	_, err := Layout(c)
	require.NoError(t, err)
	require.NoError(t, Finalize(c))
	require.Equal(t, uint64(0xdead), c.Globals["CONST"].FinalAddress)
}

func TestFinalizeUndefinedFails(t *testing.T) {
	c := newTestContext(&Object{
		Symbols:     []Symbol{{Name: "missing", SectionIndex: -1, Binding: BindGlobal, Strength: Strong}},
		Relocations: []Relocation{{TargetSymbol: "missing"}},
	})
	require.NoError(t, Resolve(c))
	_, err := Layout(c)
	require.NoError(t, err)
	err = Finalize(c)
	require.Error(t, err)
	var undef *UndefinedSymbol
	require.ErrorAs(t, err, &undef)
	require.Equal(t, "missing", undef.Name)
}

func TestFinalizeOrphanSection(t *testing.T) {
	// Symbol is bound to a section that Layout never selects (not on
	// the output-section list), so it never gets LaidOut = true.
	c := newTestContext(&Object{
		Sections: []Section{{Name: ".rodata", Data: []byte{1, 2, 3, 4}}},
		Symbols:  []Symbol{{Name: "k", SectionIndex: 0, Binding: BindGlobal, Strength: Strong}},
	})
	require.NoError(t, Resolve(c))
	_, err := Layout(c)
	require.NoError(t, err)
	err = Finalize(c)
	require.Error(t, err)
	var orphan *OrphanSection
	require.ErrorAs(t, err, &orphan)
}

func TestFinalizeUndefinedMonotone(t *testing.T) {
	// Without a definition, linking "missing" fails.
	withoutDef := newTestContext(&Object{
		Symbols:     []Symbol{{Name: "missing", SectionIndex: -1, Binding: BindGlobal, Strength: Strong}},
		Relocations: []Relocation{{TargetSymbol: "missing"}},
	})
	require.NoError(t, Resolve(withoutDef))
	_, err := Layout(withoutDef)
	require.NoError(t, err)
	require.Error(t, Finalize(withoutDef))

	// Adding an Object that defines "missing" must turn the failure
	// into a success — never the reverse (spec invariant 5).
	withDef := newTestContext(
		&Object{
			Symbols:     []Symbol{{Name: "missing", SectionIndex: -1, Binding: BindGlobal, Strength: Strong}},
			Relocations: []Relocation{{TargetSymbol: "missing"}},
		},
		&Object{
			Sections: []Section{{Name: ".text", Data: make([]byte, 4)}},
			Symbols:  []Symbol{{Name: "missing", SectionIndex: 0, Value: 0, Binding: BindGlobal, Strength: Strong}},
		},
	)
	require.NoError(t, Resolve(withDef))
	_, err = Layout(withDef)
	require.NoError(t, err)
	require.NoError(t, Finalize(withDef))
}
