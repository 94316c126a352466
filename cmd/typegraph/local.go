// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/typegraph/services/typegraph"
	"github.com/AleutianAI/typegraph/services/typegraph/cache"
	"github.com/AleutianAI/typegraph/services/typegraph/dot"
	"github.com/AleutianAI/typegraph/services/typegraph/facts"
	"github.com/AleutianAI/typegraph/services/typegraph/index"
	badgerstore "github.com/AleutianAI/typegraph/services/typegraph/storage/badger"
)

// buildFromFile loads a fact file and builds its index in-process.
func buildFromFile(ctx context.Context, flags *rootFlags, path string) (*index.Index, error) {
	cfg, err := flags.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)
	defer logger.Close()

	set, err := facts.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return index.Build(ctx, set.Facts, cfg.BuildOptions(logger.Slog())...)
}

func newQueryCmd(flags *rootFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "query FILE QUERY [NAME]",
		Short: "Run one query against a fact file",
		Long: `Builds the index of FILE and prints the result of QUERY, one name per line.

Queries: ` + strings.Join(queryNames(), ", "),
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := buildFromFile(cmd.Context(), flags, args[0])
			if err != nil {
				return err
			}
			var name string
			if len(args) == 3 {
				name = args[2]
			}
			results, err := idx.Run(cmd.Context(), index.Query(args[1]), name)
			if err != nil {
				return err
			}
			return printNames(cmd.OutOrStdout(), results, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as a JSON array")
	return cmd
}

func queryNames() []string {
	all := index.Queries()
	names := make([]string, len(all))
	for i, q := range all {
		names[i] = string(q)
	}
	return names
}

func printNames(w io.Writer, names []string, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		return enc.Encode(names)
	}
	bw := bufio.NewWriter(w)
	for _, n := range names {
		fmt.Fprintln(bw, n)
	}
	return bw.Flush()
}

func newDotCmd(flags *rootFlags) *cobra.Command {
	var output, layout, size string
	var noSplit bool

	cmd := &cobra.Command{
		Use:   "dot FILE",
		Short: "Render a fact file's type graph in GraphViz format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := buildFromFile(cmd.Context(), flags, args[0])
			if err != nil {
				return err
			}

			opts := []dot.Option{dot.WithSplitLabels(!noSplit)}
			if layout != "" {
				opts = append(opts, dot.WithLayout(layout))
			}
			if size != "" {
				opts = append(opts, dot.WithSize(size))
			}

			if output == "" || output == "-" {
				return dot.Render(cmd.OutOrStdout(), idx.Graph(), opts...)
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := dot.Render(f, idx.Graph(), opts...); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&layout, "layout", "", "GraphViz layout engine (default neato)")
	cmd.Flags().StringVar(&size, "size", "", `page size, e.g. "400,400"`)
	cmd.Flags().BoolVar(&noSplit, "no-split", false, "do not wrap labels after the last '.'")
	return cmd
}

func newImportCmd(flags *rootFlags) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Store a fact file as a snapshot in the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)
			defer logger.Close()
			log := logger.Slog()

			db, err := badgerstore.Open(cfg.StoreConfig(log))
			if err != nil {
				return err
			}
			defer db.Close()

			svcCfg := typegraph.DefaultServiceConfig()
			svcCfg.Logger = log
			svcCfg.BuildOptions = cfg.BuildOptions(log)
			svc := typegraph.NewService(badgerstore.NewFactStore(db), cache.New(cache.WithMaxEntries(1)), svcCfg)

			info, stats, err := svc.ImportFile(cmd.Context(), args[0], name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d facts\t%d entities\t%d dropped\n",
				info.ID, info.Name, info.FactCount, stats.NodesCreated, stats.DroppedTotal())
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "snapshot name (default: file name)")
	return cmd
}
