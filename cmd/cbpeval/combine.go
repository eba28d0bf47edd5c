// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/jsimmons-labs/cbpeval/harness"
	"github.com/jsimmons-labs/cbpeval/simpoint"
)

var combineCommand = &cli.Command{
	Name:  "combine",
	Usage: "merge per-slice or per-command simulation results into a single report",
	Subcommands: []*cli.Command{
		combineSimpointCommand,
		combineCommandCommand,
	},
}

var combineSimpointCommand = &cli.Command{
	Name:  "simpoint",
	Usage: "combine per-phase results, weighted by SimPoint phase weight",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "simpoint-path", Required: true, Usage: "SimPoint sidecar `file` (*.json) from the simpoint command"},
		&cli.StringFlag{Name: "result-dir", Required: true, Usage: "directory containing one result JSON per phase, named result-phase<N>.json"},
		&cli.StringFlag{Name: "output-path", Required: true, Usage: "output combined result `file` (JSON)"},
	},
	Action: func(c *cli.Context) error {
		return runCombineSimpoint(c.String("simpoint-path"), c.String("result-dir"), c.String("output-path"))
	},
}

var combineCommandCommand = &cli.Command{
	Name:  "command",
	Usage: "combine independent simulate results with uniform weight",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "command-paths", Required: true, Usage: "result JSON `files` to combine"},
		&cli.StringFlag{Name: "output-path", Required: true, Usage: "output combined result `file` (JSON)"},
	},
	Action: func(c *cli.Context) error {
		return runCombineCommands(c.StringSlice("command-paths"), c.String("output-path"))
	},
}

func loadResult(path string) (*harness.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r harness.Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("cbpeval: parsing %s: %w", path, err)
	}
	return &r, nil
}

func loadSimpointResult(path string) (simpoint.Result, error) {
	var r simpoint.Result
	data, err := os.ReadFile(path)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("cbpeval: parsing %s: %w", path, err)
	}
	return r, nil
}

func writeResult(path string, r *harness.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func runCombineSimpoint(simpointPath, resultDir, outputPath string) error {
	spResult, err := loadSimpointResult(simpointPath)
	if err != nil {
		return err
	}

	phaseResults := make([]*harness.Result, len(spResult.Phases))
	for i := range spResult.Phases {
		path := filepath.Join(resultDir, fmt.Sprintf("result-phase%d.json", i))
		r, err := loadResult(path)
		if err != nil {
			return err
		}
		phaseResults[i] = r
	}

	log.Info().Int("phases", len(phaseResults)).Msg("combining SimPoint phase results")
	combined, err := harness.Combine(spResult, phaseResults)
	if err != nil {
		return err
	}

	if err := writeResult(outputPath, combined); err != nil {
		return err
	}
	log.Info().Str("output", outputPath).Float64("cmpki", combined.CMPKI).Msg("wrote combined result")
	return nil
}

func runCombineCommands(paths []string, outputPath string) error {
	if len(paths) == 0 {
		return fmt.Errorf("cbpeval: --command-paths requires at least one file")
	}

	results := make([]*harness.Result, len(paths))
	for i, path := range paths {
		r, err := loadResult(path)
		if err != nil {
			return err
		}
		results[i] = r
	}

	log.Info().Int("commands", len(results)).Msg("combining command results")
	combined, err := harness.CombineCommands(results)
	if err != nil {
		return err
	}

	if err := writeResult(outputPath, combined); err != nil {
		return err
	}
	log.Info().Str("output", outputPath).Float64("cmpki", combined.CMPKI).Msg("wrote combined result")
	return nil
}
