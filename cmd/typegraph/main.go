// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command typegraph indexes type-relationship facts and answers
// reachability queries over them.
//
// Usage:
//
//	typegraph serve --config typegraph.yaml
//	typegraph query facts.yaml subclasses com.example.Animal
//	typegraph dot facts.yaml -o types.dot
//	typegraph import facts.yaml --name nightly
//
// Example requests against a running server:
//
//	# Create a snapshot
//	curl -X POST http://localhost:8090/v1/typegraph/snapshots \
//	  -H "Content-Type: application/json" \
//	  -d '{"facts": [{"name": "Animal"}, {"name": "Dog", "superclasses": ["Animal"]}]}'
//
//	# Query it
//	curl "http://localhost:8090/v1/typegraph/snapshots/$ID/query/subclasses?name=Animal"
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/typegraph/pkg/logging"
	"github.com/AleutianAI/typegraph/services/typegraph"
	"github.com/AleutianAI/typegraph/services/typegraph/config"
)

// Set at build time with -ldflags "-X main.version=...".
var version = typegraph.ServiceVersion

// rootFlags are the persistent flags shared by every command.
type rootFlags struct {
	configPath string
	logLevel   string
	jsonLogs   bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "typegraph",
		Short:         "Index type-relationship facts and query them",
		Long:          `typegraph builds a transitive index of class, interface and annotation relationships from a fact file and answers ancestor, descendant and annotation queries.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	root.PersistentFlags().BoolVar(&flags.jsonLogs, "json-logs", false, "force JSON log output")

	root.AddCommand(
		newServeCmd(flags),
		newQueryCmd(flags),
		newDotCmd(flags),
		newImportCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the typegraph version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "typegraph %s\n", version)
		},
	}
}

// loadConfig loads the config file and applies the logging flags.
func (f *rootFlags) loadConfig() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	if f.jsonLogs {
		cfg.Logging.JSON = true
	}
	return cfg, nil
}

// newLogger creates the process logger and installs it as slog's default.
// Output is JSON whenever stderr is not a terminal.
func newLogger(cfg config.Config) *logging.Logger {
	lc := cfg.LoggerConfig()
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		lc.JSON = true
	}
	logger := logging.New(lc)
	slog.SetDefault(logger.Slog())
	return logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
