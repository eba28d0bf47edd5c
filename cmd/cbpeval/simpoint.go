// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"github.com/jsimmons-labs/cbpeval/intelpt"
	"github.com/jsimmons-labs/cbpeval/internal/workerpool"
	"github.com/jsimmons-labs/cbpeval/simpoint"
	"github.com/jsimmons-labs/cbpeval/trace"
)

var simpointCommand = &cli.Command{
	Name:  "simpoint",
	Usage: "slice one or more traces into fixed-instruction windows and select representative SimPoint phases",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "trace-path", Required: true, Usage: "input trace container `file`(s); pass more than one to batch through a worker pool"},
		&cli.Uint64Flag{Name: "size", Required: true, Usage: "slice size in instructions"},
		&cli.StringFlag{Name: "output-prefix", Required: true, Usage: "output file `prefix` (single trace) or output `directory` (batch)"},
		&cli.IntFlag{Name: "workers", Value: 4, Usage: "concurrent worker count for batch runs"},
	},
	Action: func(c *cli.Context) error {
		return runSimpointBatch(c.StringSlice("trace-path"), c.Uint64("size"), c.String("output-prefix"), c.Int("workers"))
	},
}

// runSimpointBatch fans a single trace out directly, or multiple
// traces across a bounded worker pool, each producing its own
// sidecar, log, and phase slices under a prefix derived from the
// trace's own base name.
func runSimpointBatch(tracePaths []string, size uint64, outputPrefix string, workers int) error {
	if len(tracePaths) == 0 {
		return fmt.Errorf("cbpeval: --trace-path requires at least one file")
	}
	if len(tracePaths) == 1 {
		return runSimpoint(tracePaths[0], size, outputPrefix)
	}

	log.Info().Int("traces", len(tracePaths)).Int("workers", workers).Msg("batch slicing")
	jobs := make([]workerpool.Job, len(tracePaths))
	for i, tracePath := range tracePaths {
		tracePath := tracePath
		prefix := filepath.Join(outputPrefix, batchPrefixName(tracePath))
		jobs[i] = func() error { return runSimpoint(tracePath, size, prefix) }
	}
	return workerpool.New(workers).Run(jobs)
}

// batchPrefixName derives a per-trace output prefix from its base
// name, stripping any extension.
func batchPrefixName(tracePath string) string {
	base := filepath.Base(tracePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func runSimpoint(tracePath string, size uint64, outputPrefix string) error {
	r, err := trace.Open(tracePath)
	if err != nil {
		return err
	}
	defer r.Close()

	instIndex, err := intelpt.InstIndexMapping(r.Images())
	if err != nil {
		return err
	}

	log.Info().Str("trace", tracePath).Uint64("size", size).Msg("slicing trace")
	slices, total, err := simpoint.SliceTrace(r, instIndex, size)
	if err != nil {
		return err
	}

	phases, err := simpoint.SelectPhases(slices)
	if err != nil {
		return err
	}

	logPath := fmt.Sprintf("%s-simpoint-%d.log", outputPrefix, len(phases))
	if err := writeSimpointLog(logPath, phases, len(slices)); err != nil {
		return err
	}

	result := simpoint.Result{
		TracePath:         tracePath,
		Size:              size,
		TotalInstructions: total,
		Phases:            phases,
	}
	sidecarPath := outputPrefix + ".json"
	if err := simpoint.WriteSidecar(sidecarPath, result); err != nil {
		return err
	}

	bar := progressbar.Default(int64(len(phases)), "writing sliced traces")
	for i, phase := range phases {
		slicePath := fmt.Sprintf("%s-phase%d.cbp", outputPrefix, i)
		if err := simpoint.WriteSlice(r, instIndex, phase, slicePath); err != nil {
			return err
		}
		bar.Add(1)
	}

	log.Info().
		Int("phases", len(phases)).
		Int("slices", len(slices)).
		Uint64("total_instructions", total).
		Msg("selected SimPoint phases")
	return nil
}

// writeSimpointLog writes a plain-text record of the chosen model: one
// line per phase, weight followed by its representative slice's
// instruction bounds, trailing with the slice count the model was fit
// against.
func writeSimpointLog(path string, phases []simpoint.Phase, numSlices int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, p := range phases {
		if _, err := fmt.Fprintf(f, "%d\t%d\t%d\n", p.Weight, p.StartInstruction, p.EndInstruction); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(f, "# %d slices, %d phases\n", numSlices, len(phases))
	return err
}
