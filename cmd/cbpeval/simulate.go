// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/jsimmons-labs/cbpeval/harness"
	"github.com/jsimmons-labs/cbpeval/intelpt"
	"github.com/jsimmons-labs/cbpeval/internal/workerpool"
	"github.com/jsimmons-labs/cbpeval/predictor"
	"github.com/jsimmons-labs/cbpeval/predictor/tage"
	"github.com/jsimmons-labs/cbpeval/trace"
)

var simulateCommand = &cli.Command{
	Name:  "simulate",
	Usage: "replay one or more traces against a predictor and collect misprediction statistics",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "trace-path", Required: true, Usage: "input trace container `file`(s); pass more than one to batch through a worker pool"},
		&cli.StringFlag{Name: "predictor", Required: true, Usage: "predictor `name`: always-not-taken, last-outcome, tage"},
		&cli.StringFlag{Name: "tage-config", Usage: "TOML config `file`, required when --predictor=tage"},
		&cli.StringFlag{Name: "indirect-predictor", Value: "last-target", Usage: "indirect predictor `name`, or \"none\""},
		&cli.Uint64Flag{Name: "skip", Usage: "instructions to skip before warmup"},
		&cli.Uint64Flag{Name: "warmup", Usage: "instructions to warm up the predictor without collecting statistics"},
		&cli.Uint64Flag{Name: "simulate", Required: true, Usage: "instructions to simulate and collect statistics over"},
		&cli.StringFlag{Name: "output-path", Required: true, Usage: "output result `file` (single trace) or output `directory` (batch)"},
		&cli.IntFlag{Name: "workers", Value: 4, Usage: "concurrent worker count for batch runs"},
	},
	Action: func(c *cli.Context) error {
		return runSimulateBatch(simulateArgs{
			tracePaths:        c.StringSlice("trace-path"),
			predictorName:     c.String("predictor"),
			tageConfig:        c.String("tage-config"),
			indirectPredictor: c.String("indirect-predictor"),
			skip:              c.Uint64("skip"),
			warmup:            c.Uint64("warmup"),
			simulate:          c.Uint64("simulate"),
			outputPath:        c.String("output-path"),
			workers:           c.Int("workers"),
		})
	},
}

type simulateArgs struct {
	tracePaths        []string
	predictorName     string
	tageConfig        string
	indirectPredictor string
	skip, warmup      uint64
	simulate          uint64
	outputPath        string
	workers           int
}

func buildConditionalPredictor(name, tageConfigPath string) (predictor.ConditionalBranchPredictor, error) {
	if name == "tage" {
		if tageConfigPath == "" {
			return nil, fmt.Errorf("cbpeval: --tage-config is required for --predictor=tage")
		}
		return tage.New(tageConfigPath)
	}
	return predictor.NewConditional(name)
}

func buildIndirectPredictor(name string) (predictor.IndirectBranchPredictor, error) {
	if name == "none" || name == "" {
		return nil, nil
	}
	return predictor.NewIndirect(name)
}

// runSimulateBatch fans a single trace out directly, or multiple
// traces across a bounded worker pool, each producing its own result
// file.
func runSimulateBatch(args simulateArgs) error {
	if len(args.tracePaths) == 0 {
		return fmt.Errorf("cbpeval: --trace-path requires at least one file")
	}
	if len(args.tracePaths) == 1 {
		return runSimulate(args.tracePaths[0], args, args.outputPath)
	}

	log.Info().Int("traces", len(args.tracePaths)).Int("workers", args.workers).Msg("batch simulating")
	jobs := make([]workerpool.Job, len(args.tracePaths))
	for i, tracePath := range args.tracePaths {
		tracePath := tracePath
		outputPath := filepath.Join(args.outputPath, batchResultName(tracePath))
		jobs[i] = func() error { return runSimulate(tracePath, args, outputPath) }
	}
	return workerpool.New(args.workers).Run(jobs)
}

// batchResultName derives a per-trace result filename from its base
// name, stripping any extension, so a directory of traces produces a
// directory of correspondingly named result files.
func batchResultName(tracePath string) string {
	base := filepath.Base(tracePath)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".json"
}

func runSimulate(tracePath string, args simulateArgs, outputPath string) error {
	r, err := trace.Open(tracePath)
	if err != nil {
		return err
	}
	defer r.Close()

	instIndex, err := intelpt.InstIndexMapping(r.Images())
	if err != nil {
		return err
	}

	cond, err := buildConditionalPredictor(args.predictorName, args.tageConfig)
	if err != nil {
		return err
	}
	ind, err := buildIndirectPredictor(args.indirectPredictor)
	if err != nil {
		return err
	}

	log.Info().
		Str("trace", tracePath).
		Str("predictor", args.predictorName).
		Uint64("skip", args.skip).
		Uint64("warmup", args.warmup).
		Uint64("simulate", args.simulate).
		Msg("simulating predictor")

	res, err := harness.Simulate(r, instIndex, cond, ind, args.skip, args.warmup, args.simulate)
	if err != nil {
		return err
	}
	res.Predictor = args.predictorName
	res.TracePath = tracePath

	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}

	log.Info().
		Str("output", outputPath).
		Float64("cmpki", res.CMPKI).
		Float64("impki", res.IMPKI).
		Msg("wrote simulation result")
	return nil
}
