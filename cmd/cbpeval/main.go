// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command cbpeval drives the branch-prediction evaluation pipeline:
// reconstructing Intel-PT captures into trace containers, selecting
// representative SimPoint phases, simulating predictors against a
// trace, and combining/reporting the resulting misprediction metrics.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	app := &cli.App{
		Name:  "cbpeval",
		Usage: "branch-prediction evaluation pipeline",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug-level logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			convertCommand,
			simpointCommand,
			simulateCommand,
			combineCommand,
			reportCommand,
			traceInfoCommand,
			perfdumpCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("cbpeval failed")
	}
}
