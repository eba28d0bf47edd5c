// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/jsimmons-labs/cbpeval/perffile"
)

var perfdumpCommand = &cli.Command{
	Name:  "perfdump",
	Usage: "print the MMAP2 and AUXTRACE records of a perf.data file",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "trace-path", Required: true, Usage: "input perf.data `file`"},
	},
	Action: func(c *cli.Context) error {
		return runPerfdump(c.String("trace-path"))
	},
}

func runPerfdump(tracePath string) error {
	f, err := perffile.Open(tracePath)
	if err != nil {
		return err
	}
	defer f.Close()

	rs := f.Records()
	var nMmap, nAux int
	var auxBytes uint64
	for rs.Next() {
		switch r := rs.Record.(type) {
		case *perffile.RecordMmap2:
			nMmap++
			fmt.Printf("MMAP2 start=%#x len=%#x file_offset=%#x filename=%q\n", r.Start, r.Len, r.FileOffset, r.Filename)
		case *perffile.RecordAuxtrace:
			nAux++
			auxBytes += uint64(len(r.Data))
			fmt.Printf("AUXTRACE data_size=%d\n", len(r.Data))
		}
	}
	if err := rs.Err(); err != nil {
		return err
	}

	fmt.Printf("\n%d MMAP2 records, %d AUXTRACE records (%d bytes total)\n", nMmap, nAux, auxBytes)
	return nil
}
