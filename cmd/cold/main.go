// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command cold is a thin driver around the link package: it parses
// flags, builds a link.Config, and invokes the core pipeline (spec.md
// §6 "Driver → core").
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aclements/cold/dump"
	"github.com/aclements/cold/internal/coldcfg"
	"github.com/aclements/cold/link"
)

var (
	colorError = color.New(color.FgRed, color.Bold)
	colorInfo  = color.New(color.FgCyan)
)

var (
	outputPath     string
	staticMode     bool
	debugMode      bool
	imageBaseFlag  uint64
	outputSections []string
	cfgFile        string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		colorError.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cold [flags] inputs...",
		Short: "A static linker core for ELF relocatable objects",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runLink,
		// main reports the returned error itself, exactly once.
		SilenceErrors: true,
	}

	flags := cmd.Flags()
	flags.StringVarP(&outputPath, "output", "o", "", "output path (required)")
	flags.BoolVarP(&staticMode, "static", "s", false, "select static link mode (required: dynamic linking is not implemented)")
	flags.BoolVarP(&debugMode, "debug", "d", false, "print a disassembly listing of the linked output")
	flags.Uint64Var(&imageBaseFlag, "image-base", 0, "override the image base (default 0x400000)")
	flags.StringSliceVar(&outputSections, "output-sections", nil, "override the ordered output-section list")
	flags.StringVar(&cfgFile, "config", "", "path to a config file")
	cmd.MarkFlagRequired("output")

	return cmd
}

func runLink(cmd *cobra.Command, args []string) error {
	setupLogging()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}
	cfg, err := coldcfg.Load(v)
	if err != nil {
		return err
	}
	if imageBaseFlag != 0 {
		cfg.ImageBase = imageBaseFlag
	}
	if len(outputSections) > 0 {
		cfg.OutputSections = outputSections
	}
	if staticMode {
		cfg.Mode = "static"
	} else {
		cfg.Mode = "dynamic"
	}

	slog.Info("linking", "inputs", len(args), "output", outputPath, "image_base", fmt.Sprintf("%#x", cfg.ImageBase))

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()

	writer := &link.FlatWriter{W: out}
	if err := link.Run(context.Background(), cfg, args, writer); err != nil {
		return err
	}

	if debugMode {
		return printDebugListing(cfg, args)
	}
	return nil
}

// printDebugListing re-links the same inputs into an in-memory Context
// (cheap relative to the link itself) so it can walk the final,
// relocated .text image and the resolved symbol table without the
// pipeline needing to thread a debug-dump hook through every stage.
func printDebugListing(cfg link.Config, paths []string) error {
	c := link.NewContext(cfg)
	if err := link.LoadAll(context.Background(), c, paths); err != nil {
		return err
	}
	if err := link.Resolve(c); err != nil {
		return err
	}
	if _, err := link.Layout(c); err != nil {
		return err
	}
	if err := link.Finalize(c); err != nil {
		return err
	}
	if err := link.Relocate(context.Background(), c); err != nil {
		return err
	}

	symName := func(addr uint64) (string, uint64) {
		for name, sym := range c.Globals {
			if sym.Defined() && sym.FinalAddress == addr {
				return name, addr
			}
		}
		return "", 0
	}

	for _, sec := range link.CollectOutputSections(c) {
		if sec.Name != ".text" {
			continue
		}
		colorInfo.Fprintf(os.Stdout, "disassembly of %s:\n", sec.Name)
		arch := "amd64"
		if len(c.Objects) > 0 {
			arch = c.Objects[0].Arch.GoArch
		}
		if err := dump.Listing(os.Stdout, arch, sec.Data, sec.Address, symName); err != nil {
			return err
		}
	}
	return nil
}

func setupLogging() {
	level := slog.LevelWarn
	if debugMode {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
