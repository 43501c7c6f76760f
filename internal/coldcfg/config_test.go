// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package coldcfg

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)
	require.Equal(t, uint64(0x400000), cfg.ImageBase)
	require.Equal(t, []string{".text", ".data"}, cfg.OutputSections)
	require.Equal(t, "static", cfg.Mode)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("COLD_IMAGE_BASE", "8388608") // 0x800000, differs from the default
	t.Setenv("COLD_MODE", "static")

	cfg, err := Load(viper.New())
	require.NoError(t, err)
	require.Equal(t, uint64(8388608), cfg.ImageBase)
	require.Equal(t, "static", cfg.Mode)
}
