// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/jsimmons-labs/cbpeval/branch"
	"github.com/jsimmons-labs/cbpeval/trace"
)

var traceInfoCommand = &cli.Command{
	Name:  "trace-info",
	Usage: "dump a trace container's entry stream and summary counts",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "trace-path", Required: true, Usage: "input trace container `file`"},
		&cli.BoolFlag{Name: "entries", Usage: "print every (branch_index, branch, taken) entry"},
	},
	Action: func(c *cli.Context) error {
		return runTraceInfo(c.String("trace-path"), c.Bool("entries"))
	},
}

func runTraceInfo(tracePath string, printEntries bool) error {
	r, err := trace.Open(tracePath)
	if err != nil {
		return err
	}
	defer r.Close()

	branches := r.Branches()
	images := r.Images()

	fmt.Printf("branches: %d\n", len(branches))
	fmt.Printf("images: %d\n", len(images))
	fmt.Printf("entries: %d\n", r.NumEntries())
	for _, img := range images {
		fmt.Printf("  image %#x+%#x %s\n", img.Start, img.Len, img.Filename)
	}

	it, err := r.Entries()
	if err != nil {
		return err
	}
	defer it.Close()

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	var takenCounts, notTakenCounts uint64
	typeCounts := make(map[branch.Type]uint64)

	for it.Next() {
		e := it.Entry()
		idx := e.Index()
		taken := e.Taken()
		if taken {
			takenCounts++
		} else {
			notTakenCounts++
		}
		if int(idx) < len(branches) {
			typeCounts[branches[idx].Type]++
		}

		if printEntries {
			b := branches[idx]
			fmt.Fprintf(w, "%d\t%#x -> %#x\t%s\ttaken=%v\n", idx, b.InstAddr, b.TargAddr, b.Type, taken)
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	w.Flush()

	fmt.Printf("\ntaken: %d\nnot taken: %d\n", takenCounts, notTakenCounts)
	for typ := branch.DirectJump; typ < branch.Invalid; typ++ {
		if n := typeCounts[typ]; n > 0 {
			fmt.Printf("  %s: %d\n", typ, n)
		}
	}
	return nil
}
