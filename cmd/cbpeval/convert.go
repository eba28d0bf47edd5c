// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/jsimmons-labs/cbpeval/intelpt"
	"github.com/jsimmons-labs/cbpeval/perffile"
	"github.com/jsimmons-labs/cbpeval/trace"
)

var convertCommand = &cli.Command{
	Name:  "intel_pt_converter",
	Usage: "reconstruct a branch event stream from a perf.data Intel-PT capture",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "trace-path", Required: true, Usage: "input perf.data `file`"},
		&cli.StringFlag{Name: "output-path", Required: true, Usage: "output trace container `file`"},
	},
	Action: func(c *cli.Context) error {
		return runConvert(c.String("trace-path"), c.String("output-path"))
	},
}

func runConvert(tracePath, outputPath string) error {
	f, err := perffile.Open(tracePath)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := trace.Create(outputPath)
	if err != nil {
		return err
	}

	log.Info().Str("input", tracePath).Msg("reconstructing Intel-PT capture")

	images, err := intelpt.Reconstruct(f, w)
	if err != nil {
		w.Finish()
		os.Remove(outputPath)
		return err
	}
	w.Images(images)

	if err := w.Finish(); err != nil {
		os.Remove(outputPath)
		return err
	}

	log.Info().
		Str("output", outputPath).
		Int("branches", w.NumBranches()).
		Int("images", len(images)).
		Msg("wrote trace container")
	return nil
}
