// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aclements/cold/objfmt"
)

func runPipelineStages(t *testing.T, c *Context) {
	t.Helper()
	require.NoError(t, Resolve(c))
	_, err := Layout(c)
	require.NoError(t, err)
	require.NoError(t, Finalize(c))
	require.NoError(t, Relocate(context.Background(), c))
}

func TestRelocateAbs64RoundTrip(t *testing.T) {
	c := newTestContext(&Object{
		Sections: []Section{{Name: ".text", Data: make([]byte, 16)}},
		Symbols: []Symbol{
			{Name: "target", SectionIndex: 0, Value: 0, Binding: BindGlobal, Strength: Strong},
		},
		Relocations: []Relocation{
			{SectionIndex: 0, Offset: 8, Kind: objfmt.RelocAbs64, TargetSymbol: "target", Addend: 5},
		},
	})
	runPipelineStages(t, c)

	sec := &c.Objects[0].Sections[0]
	got := binary.LittleEndian.Uint64(sec.Data[8:16])
	want := c.Globals["target"].FinalAddress + 5
	require.Equal(t, want, got)
}

func TestRelocateTwoObjectMergeExactScenario(t *testing.T) {
	// Mirrors the spec's two-object-merge scenario: a.o's .text is 32
	// bytes and defines "main"; b.o's .text is 16 bytes, defines
	// "helper", and references "main" via PC-rel-32 at offset 4,
	// addend -4.
	a := &Object{
		Sections: []Section{{Name: ".text", Data: make([]byte, 32)}},
		Symbols:  []Symbol{{Name: "main", SectionIndex: 0, Value: 0, Binding: BindGlobal, Strength: Strong}},
	}
	b := &Object{
		Sections: []Section{{Name: ".text", Data: make([]byte, 16)}},
		Symbols:  []Symbol{{Name: "helper", SectionIndex: 0, Value: 0, Binding: BindGlobal, Strength: Strong}},
		Relocations: []Relocation{
			{SectionIndex: 0, Offset: 4, Kind: objfmt.RelocPC32, TargetSymbol: "main", Addend: -4},
		},
	}
	c := newTestContext(a, b)
	runPipelineStages(t, c)

	require.Equal(t, c.Config.ImageBase, c.Globals["main"].FinalAddress)
	require.Equal(t, c.Config.ImageBase+32, c.Globals["helper"].FinalAddress)

	patched := binary.LittleEndian.Uint32(c.Objects[1].Sections[0].Data[4:8])
	require.Equal(t, uint32(0xFFFFFFD8), patched)
}

func TestRelocateAbs32Overflow(t *testing.T) {
	c := newTestContext(&Object{
		Sections: []Section{{Name: ".text", Data: make([]byte, 8)}},
		Symbols: []Symbol{
			{Name: "far", SectionIndex: -1, Absolute: true, Value: 1 << 40, Binding: BindGlobal, Strength: Strong},
		},
		Relocations: []Relocation{
			{SectionIndex: 0, Offset: 0, Kind: objfmt.RelocAbs32, TargetSymbol: "far"},
		},
	})
	require.NoError(t, Resolve(c))
	_, err := Layout(c)
	require.NoError(t, err)
	require.NoError(t, Finalize(c))
	err = Relocate(context.Background(), c)
	require.Error(t, err)
	var overflow *RelocationOverflow
	require.ErrorAs(t, err, &overflow)
}

func TestRelocatePC32ExtremeRangeOK(t *testing.T) {
	// Target's final address equals the patch site's virtual address
	// (ImageBase + offset), so V = S + A - P reduces to A. Addend is
	// chosen to land V exactly at the signed 32-bit minimum, which must
	// still succeed.
	cfg := DefaultConfig()
	c := newTestContext(&Object{
		Sections: []Section{{Name: ".text", Data: make([]byte, 8)}},
		Symbols: []Symbol{
			{Name: "t", SectionIndex: -1, Absolute: true, Value: cfg.ImageBase, Binding: BindGlobal, Strength: Strong},
		},
		Relocations: []Relocation{
			{SectionIndex: 0, Offset: 0, Kind: objfmt.RelocPC32, TargetSymbol: "t", Addend: -(1 << 31)},
		},
	})
	runPipelineStages(t, c)
	sec := &c.Objects[0].Sections[0]
	got := int32(binary.LittleEndian.Uint32(sec.Data[0:4]))
	require.Equal(t, int32(-(1 << 31)), got)
}

func TestRelocateGOTPLTEncodingRejected(t *testing.T) {
	c := newTestContext(&Object{
		Sections: []Section{{Name: ".text", Data: make([]byte, 8)}},
		Symbols: []Symbol{
			{Name: "callee", SectionIndex: -1, Absolute: true, Value: 0x1000, Binding: BindGlobal, Strength: Strong},
		},
		Relocations: []Relocation{
			{SectionIndex: 0, Offset: 0, Kind: objfmt.RelocPC32, Encoding: objfmt.EncodingGOTPLT, TargetSymbol: "callee", TypeName: "R_X86_64_PLT32"},
		},
	})
	require.NoError(t, Resolve(c))
	_, err := Layout(c)
	require.NoError(t, err)
	require.NoError(t, Finalize(c))
	err = Relocate(context.Background(), c)
	require.Error(t, err)
	require.Contains(t, err.Error(), "GOT/PLT")
}

func TestRelocatePC32OneByteFurtherOverflows(t *testing.T) {
	cfg := DefaultConfig()
	c := newTestContext(&Object{
		Sections: []Section{{Name: ".text", Data: make([]byte, 8)}},
		Symbols: []Symbol{
			{Name: "t", SectionIndex: -1, Absolute: true, Value: cfg.ImageBase, Binding: BindGlobal, Strength: Strong},
		},
		Relocations: []Relocation{
			{SectionIndex: 0, Offset: 0, Kind: objfmt.RelocPC32, TargetSymbol: "t", Addend: -(1<<31) - 1},
		},
	})
	require.NoError(t, Resolve(c))
	_, err := Layout(c)
	require.NoError(t, err)
	require.NoError(t, Finalize(c))
	err = Relocate(context.Background(), c)
	require.Error(t, err)
	var overflow *RelocationOverflow
	require.ErrorAs(t, err, &overflow)
}
