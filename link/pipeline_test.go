// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aclements/cold/internal/elftest"
)

func writeTempObject(t *testing.T, dir, name string, raw []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func TestRunSingleObjectHello(t *testing.T) {
	b := elftest.NewBuilder()
	b.AddSection(elftest.Section{Name: ".text", Flags: elftest.FlagAlloc | elftest.FlagExecinstr, Data: bytes.Repeat([]byte{0x90}, 16)})
	b.AddSym(elftest.Sym{Name: "_start", Section: ".text", Value: 0, Bind: elftest.BindGlobal, Type: elftest.TypeFunc})

	dir := t.TempDir()
	path := writeTempObject(t, dir, "hello.o", b.Bytes())

	var out bytes.Buffer
	err := Run(context.Background(), DefaultConfig(), []string{path}, &FlatWriter{W: &out})
	require.NoError(t, err)
	require.Equal(t, bytes.Repeat([]byte{0x90}, 16), out.Bytes())
}

func TestRunMultipleStrongConflict(t *testing.T) {
	mkObj := func(name string) []byte {
		b := elftest.NewBuilder()
		b.AddSection(elftest.Section{Name: ".text", Flags: elftest.FlagAlloc | elftest.FlagExecinstr, Data: []byte{0, 0, 0, 0}})
		b.AddSym(elftest.Sym{Name: "f", Section: ".text", Value: 0, Bind: elftest.BindGlobal, Type: elftest.TypeFunc})
		return b.Bytes()
	}

	dir := t.TempDir()
	a := writeTempObject(t, dir, "a.o", mkObj("a"))
	b := writeTempObject(t, dir, "b.o", mkObj("b"))

	err := Run(context.Background(), DefaultConfig(), []string{a, b}, nil)
	require.Error(t, err)
	var md *MultipleDefinitions
	require.ErrorAs(t, err, &md)
	require.Equal(t, "f", md.Name)
}

func TestRunUndefinedReference(t *testing.T) {
	builder := elftest.NewBuilder()
	builder.AddSection(elftest.Section{Name: ".text", Flags: elftest.FlagAlloc | elftest.FlagExecinstr, Data: make([]byte, 8)})
	builder.AddSym(elftest.Sym{Name: "missing", Bind: elftest.BindGlobal, Type: elftest.TypeFunc})
	builder.AddReloc(elftest.Reloc{Section: ".text", Offset: 0, Symbol: "missing", Type: uint32(1) /* R_X86_64_64 */})

	dir := t.TempDir()
	path := writeTempObject(t, dir, "a.o", builder.Bytes())

	err := Run(context.Background(), DefaultConfig(), []string{path}, nil)
	require.Error(t, err)
	var undef *UndefinedSymbol
	require.ErrorAs(t, err, &undef)
	require.Equal(t, "missing", undef.Name)
}

func TestRunNonRelocatableInput(t *testing.T) {
	b := elftest.NewBuilder()
	b.AddSection(elftest.Section{Name: ".text", Flags: elftest.FlagAlloc | elftest.FlagExecinstr, Data: []byte{0x90}})
	raw := b.Bytes()
	raw[16] = 2 // e_type = ET_EXEC

	dir := t.TempDir()
	path := writeTempObject(t, dir, "exec.o", raw)

	err := Run(context.Background(), DefaultConfig(), []string{path}, nil)
	require.Error(t, err)
	var invalid *InvalidFileType
	require.ErrorAs(t, err, &invalid)
}

func TestRunLoadFailurePartialSuccessUnmapsCleanly(t *testing.T) {
	// One input parses fine, the other doesn't; LoadAll must unmap the
	// successfully-loaded one itself, since it never reaches c.Objects
	// for Context.Close() to find.
	good := elftest.NewBuilder()
	good.AddSection(elftest.Section{Name: ".text", Flags: elftest.FlagAlloc | elftest.FlagExecinstr, Data: []byte{0x90, 0x90, 0x90, 0x90}})

	dir := t.TempDir()
	goodPath := writeTempObject(t, dir, "good.o", good.Bytes())
	badPath := writeTempObject(t, dir, "bad.o", []byte("not an elf file"))

	err := Run(context.Background(), DefaultConfig(), []string{goodPath, badPath}, nil)
	require.Error(t, err)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestRunRejectsMixedArchitecture(t *testing.T) {
	amd64 := elftest.NewBuilder()
	amd64.AddSection(elftest.Section{Name: ".text", Flags: elftest.FlagAlloc | elftest.FlagExecinstr, Data: []byte{0x90, 0x90}})

	arm64 := elftest.NewBuilder()
	arm64.Machine = 183 // EM_AARCH64
	arm64.AddSection(elftest.Section{Name: ".text", Flags: elftest.FlagAlloc | elftest.FlagExecinstr, Data: []byte{0, 0, 0, 0}})

	dir := t.TempDir()
	a := writeTempObject(t, dir, "a.o", amd64.Bytes())
	b := writeTempObject(t, dir, "b.o", arm64.Bytes())

	err := Run(context.Background(), DefaultConfig(), []string{a, b}, nil)
	require.Error(t, err)
	var mixed *MixedArchitecture
	require.ErrorAs(t, err, &mixed)
	require.Equal(t, "amd64", mixed.Want)
	require.Equal(t, "arm64", mixed.Got)
}

func TestRunUnsupportedMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = "dynamic"
	err := Run(context.Background(), cfg, nil, nil)
	require.Error(t, err)
	var unsupported *UnsupportedMode
	require.ErrorAs(t, err, &unsupported)
}

func TestRunDeterministicAcrossRuns(t *testing.T) {
	mkObj := func(name string, val byte) []byte {
		b := elftest.NewBuilder()
		b.AddSection(elftest.Section{Name: ".text", Flags: elftest.FlagAlloc | elftest.FlagExecinstr, Data: []byte{val, val, val, val}})
		b.AddSym(elftest.Sym{Name: name, Section: ".text", Value: 0, Bind: elftest.BindGlobal, Type: elftest.TypeFunc})
		return b.Bytes()
	}
	dir := t.TempDir()
	a := writeTempObject(t, dir, "a.o", mkObj("a", 1))
	b := writeTempObject(t, dir, "b.o", mkObj("b", 2))

	var out1, out2 bytes.Buffer
	require.NoError(t, Run(context.Background(), DefaultConfig(), []string{a, b}, &FlatWriter{W: &out1}))
	require.NoError(t, Run(context.Background(), DefaultConfig(), []string{a, b}, &FlatWriter{W: &out2}))
	require.Equal(t, out1.Bytes(), out2.Bytes())
}
