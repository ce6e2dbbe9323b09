// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Command dialogos is a demonstration CLI harness that drives one
// session of the dialogue-and-research orchestration core end to end:
// it reads an opening query, runs the clarification dialogue against a
// terminal, then hands the resulting research context to the six-stage
// research pipeline and prints the resulting bundle. It is not the
// product surface the core specifies — report rendering, a
// real REPL shell, and durable config loading are external
// collaborators this harness only sketches.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var devLogging bool

	root := &cobra.Command{
		Use:   "dialogos",
		Short: "Dynamic Personalization Engine + Research Pipeline demo harness",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to dialogos.yaml (optional)")
	root.PersistentFlags().BoolVar(&devLogging, "dev", false, "use development (console) logging instead of JSON")

	root.AddCommand(newRunCmd(&configPath, &devLogging))
	root.AddCommand(newVersionCmd())
	return root
}

func newLogger(dev bool) *zap.Logger {
	var logger *zap.Logger
	var err error
	if dev {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
