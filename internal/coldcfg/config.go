// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package coldcfg loads the driver's configuration record (spec.md §6)
// from flags, an optional config file, and environment variables, via
// viper.
package coldcfg

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/aclements/cold/link"
)

const envPrefix = "COLD"

// Load builds a link.Config from viper's merged view of defaults,
// config file, environment (COLD_IMAGE_BASE, COLD_OUTPUT_SECTIONS,
// COLD_MODE), and any flag values already bound into v by the caller.
func Load(v *viper.Viper) (link.Config, error) {
	def := link.DefaultConfig()
	v.SetDefault("image_base", def.ImageBase)
	v.SetDefault("output_sections", def.OutputSections)
	v.SetDefault("mode", def.Mode)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return link.Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := link.Config{
		ImageBase:      v.GetUint64("image_base"),
		OutputSections: v.GetStringSlice("output_sections"),
		Mode:           v.GetString("mode"),
	}
	if len(cfg.OutputSections) == 0 {
		cfg.OutputSections = def.OutputSections
	}
	return cfg, nil
}
