// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/aclements/cold/objfmt"
)

// LoadAll loads every path in paths into c, in order. Loading itself
// happens concurrently (spec.md §5: "Multiple Objects may be parsed
// concurrently"), but each Object is assigned an id and appended to
// c.Objects by this function alone, in paths order, so ids are always a
// contiguous prefix of input-list order regardless of how the workers
// finish.
func LoadAll(ctx context.Context, c *Context, paths []string) error {
	results := make([]*Object, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			obj, err := loadOne(gctx, path)
			if err != nil {
				return err
			}
			results[i] = obj
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Some loadOne calls may have succeeded before another failed;
		// those Objects never reach c.Objects, so Context.Close() won't
		// see them. Unmap them here instead of leaking the mapping.
		for _, obj := range results {
			if obj != nil {
				obj.unmap()
			}
		}
		return err
	}

	if len(results) > 0 {
		want := results[0].Arch.GoArch
		for _, obj := range results[1:] {
			if obj.Arch.GoArch != want {
				for _, o := range results {
					o.unmap()
				}
				return &MixedArchitecture{Path: obj.Path, Want: want, Got: obj.Arch.GoArch}
			}
		}
	}

	for i, obj := range results {
		obj.ID = i
		for j := range obj.Sections {
			obj.Sections[j].OwningObject = i
		}
		for j := range obj.Symbols {
			obj.Symbols[j].OwningObject = i
		}
		for j := range obj.Relocations {
			obj.Relocations[j].OwningObject = i
		}
		c.Objects = append(c.Objects, obj)
	}
	return nil
}

// loadOne implements the per-object Loader contract (spec.md §4.1): it
// does not touch the Context, does not perform cross-object reasoning,
// and returns a fully populated, independently owned Object.
func loadOne(ctx context.Context, path string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &IoError{Path: path, Cause: err}
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, &IoError{Path: path, Cause: err}
	}

	mapping, mmapped, err := mapFile(f, st.Size())
	if err != nil {
		return nil, &IoError{Path: path, Cause: err}
	}

	reader := fileReaderAt(f, mapping, mmapped)
	raw, err := objfmt.Parse(reader)
	if err != nil {
		var notRel *objfmt.NotRelocatableError
		if errors.As(err, &notRel) {
			unmapBacking(mapping, mmapped)
			return nil, &InvalidFileType{Path: path}
		}
		if errors.Is(err, objfmt.ErrNotELF) {
			unmapBacking(mapping, mmapped)
			return nil, &ParseError{Path: path, Cause: err}
		}
		unmapBacking(mapping, mmapped)
		return nil, &ParseError{Path: path, Cause: err}
	}

	obj := &Object{
		Path:    path,
		Arch:    raw.Arch,
		backing: mapping,
		mmapped: mmapped,
	}

	for i, s := range raw.Sections {
		obj.Sections = append(obj.Sections, Section{
			Name:  s.Name,
			Index: i,
			Data:  s.Data,
		})
	}
	for _, s := range raw.Symbols {
		binding := BindGlobal
		if s.Local {
			binding = BindLocal
		}
		strength := Strong
		if s.Weak {
			strength = Weak
		}
		obj.Symbols = append(obj.Symbols, Symbol{
			Name:         s.Name,
			SectionIndex: s.Section,
			Value:        s.Value,
			Kind:         s.Kind,
			Binding:      binding,
			Strength:     strength,
			Absolute:     s.Absolute,
		})
	}
	for _, r := range raw.Relocs {
		target := ""
		if r.Symbol >= 0 && r.Symbol < len(raw.Symbols) {
			target = raw.Symbols[r.Symbol].Name
		}
		obj.Relocations = append(obj.Relocations, Relocation{
			SectionIndex: r.Section,
			Offset:       r.Offset,
			Kind:         r.Kind,
			Encoding:     r.Enc,
			TargetSymbol: target,
			Addend:       r.Addend,
			TypeName:     r.TypeName,
		})
	}

	return obj, nil
}

// mapFile memory-maps f read-only when possible, falling back to a
// heap-resident read for empty files and anything mmap refuses (e.g. a
// pipe passed in place of a real path). The returned bool reports
// whether the bytes came from an actual mapping that must later be
// unmapped with syscall.Munmap.
func mapFile(f *os.File, size int64) ([]byte, bool, error) {
	if size == 0 {
		return nil, false, nil
	}
	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		buf := make([]byte, size)
		if _, err := f.ReadAt(buf, 0); err != nil {
			return nil, false, err
		}
		return buf, false, nil
	}
	return data, true, nil
}

func unmapBacking(data []byte, mmapped bool) {
	if mmapped && len(data) > 0 {
		syscall.Munmap(data)
	}
}

func (o *Object) unmap() error {
	if o.mmapped && len(o.backing) > 0 {
		err := syscall.Munmap(o.backing)
		o.backing = nil
		return err
	}
	return nil
}

// fileReaderAt returns an io.ReaderAt over whichever backing store
// mapFile produced: its bytes (mapped or heap-read) when there are any,
// or f itself when mapFile returned none (an empty file).
func fileReaderAt(f *os.File, mapping []byte, mmapped bool) readerAt {
	if len(mapping) > 0 {
		return byteReaderAt(mapping)
	}
	return f
}

type readerAt interface {
	ReadAt(p []byte, off int64) (int, error)
}

type byteReaderAt []byte

func (b byteReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(b)) {
		return 0, fmt.Errorf("offset out of range")
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, fmt.Errorf("short read")
	}
	return n, nil
}
