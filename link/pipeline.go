// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package link

import "context"

// Run executes the full five-stage pipeline (spec.md §2) over paths and
// hands the result to writer. It owns the Context end to end: on any
// error it still unmaps every successfully loaded Object before
// returning, so no mapping leaks even on a short-circuited link.
func Run(ctx context.Context, cfg Config, paths []string, writer OutputWriter) (err error) {
	if cfg.Mode != "static" {
		return &UnsupportedMode{Mode: cfg.Mode}
	}

	c := NewContext(cfg)
	defer func() {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := LoadAll(ctx, c, paths); err != nil {
		return err
	}
	if err := Resolve(c); err != nil {
		return err
	}
	if _, err := Layout(c); err != nil {
		return err
	}
	if err := Finalize(c); err != nil {
		return err
	}
	if err := Relocate(ctx, c); err != nil {
		return err
	}

	sections := CollectOutputSections(c)
	if writer != nil {
		if err := writer.Write(sections); err != nil {
			return err
		}
	}
	return nil
}
