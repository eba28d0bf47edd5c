// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/jsimmons-labs/cbpeval/harness"
)

var reportCommand = &cli.Command{
	Name:  "report",
	Usage: "print a CMPKI/IMPKI comparison table and H2P summary across combined results",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{Name: "result-paths", Required: true, Usage: "combined result JSON `files`, one per benchmark"},
		&cli.IntFlag{Name: "top-n", Value: 10, Usage: "number of hard-to-predict branches to list per benchmark"},
	},
	Action: func(c *cli.Context) error {
		return runReport(c.StringSlice("result-paths"), c.Int("top-n"))
	},
}

func runReport(paths []string, topN int) error {
	if len(paths) == 0 {
		return fmt.Errorf("cbpeval: --result-paths requires at least one file")
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"benchmark", "predictor", "cmpki", "impki", "cond accuracy", "ind accuracy", "h2p count"})
	table.SetAutoFormatHeaders(false)

	var sumCMPKI, sumIMPKI float64
	var n int

	for _, path := range paths {
		res, err := loadResult(path)
		if err != nil {
			return err
		}
		name := benchmarkName(path)

		condAcc := "-"
		if res.CondBranchAccuracy != nil {
			condAcc = fmt.Sprintf("%.2f%%", *res.CondBranchAccuracy)
		}
		indAcc := "-"
		if res.IndBranchAccuracy != nil {
			indAcc = fmt.Sprintf("%.2f%%", *res.IndBranchAccuracy)
		}

		h2p := harness.ClassifyH2P(res)
		table.Append([]string{
			name,
			res.Predictor,
			fmt.Sprintf("%.4f", res.CMPKI),
			fmt.Sprintf("%.4f", res.IMPKI),
			condAcc,
			indAcc,
			fmt.Sprintf("%d", h2p.Count),
		})

		sumCMPKI += res.CMPKI
		sumIMPKI += res.IMPKI
		n++

		if h2p.Count > 0 {
			printH2P(name, h2p, topN)
		}
	}

	if n > 0 {
		table.Append([]string{"average", "", fmt.Sprintf("%.4f", sumCMPKI/float64(n)), fmt.Sprintf("%.4f", sumIMPKI/float64(n)), "", "", ""})
	}
	table.Render()
	return nil
}

func benchmarkName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func printH2P(name string, h2p harness.H2PSummary, topN int) {
	top := h2p.Branches
	if topN >= 0 && topN < len(top) {
		top = top[:topN]
	}
	fmt.Printf("\n%s: top %d of %d hard-to-predict branches\n", name, len(top), h2p.Count)
	h2pTable := tablewriter.NewWriter(os.Stdout)
	h2pTable.SetHeader([]string{"inst addr", "targ addr", "type", "executions", "mispredicts"})
	for _, b := range top {
		h2pTable.Append([]string{
			fmt.Sprintf("%#x", b.Branch.InstAddr),
			fmt.Sprintf("%#x", b.Branch.TargAddr),
			b.Branch.Type.String(),
			fmt.Sprintf("%d", b.ExecutionCount),
			fmt.Sprintf("%d", b.MispredCount),
		})
	}
	h2pTable.Render()
}
