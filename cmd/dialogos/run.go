// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danpilot/dialogos/internal/convmemory"
	"github.com/danpilot/dialogos/internal/convstate"
	"github.com/danpilot/dialogos/internal/llmclient"
	"github.com/danpilot/dialogos/internal/memorystore"
	"github.com/danpilot/dialogos/internal/orchestrator"
	"github.com/danpilot/dialogos/internal/pipeline"
	"github.com/danpilot/dialogos/internal/sessionstore"
	"github.com/danpilot/dialogos/pkg/llm"
	"github.com/danpilot/dialogos/pkg/session"
)

func newRunCmd(configPath *string, devLogging *bool) *cobra.Command {
	var llmBaseURL string
	var sessionDir string

	cmd := &cobra.Command{
		Use:   "run [query]",
		Short: "Run one clarification dialogue and research pipeline session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(*configPath)
			if err != nil {
				return fmt.Errorf("loading settings: %w", err)
			}

			logger := newLogger(*devLogging)
			defer logger.Sync()

			var client llm.Client
			if llmBaseURL != "" {
				c := llmclient.New(llmBaseURL, os.Getenv("DIALOGOS_LLM_API_KEY"))
				c.Logger = logger
				client = c
			}

			memory := convmemory.New()
			if settings.Memory.CrossSessionLearning {
				dbDir := settings.Memory.DatabasePath
				if dbDir == "" {
					dbDir = "."
				}
				store, err := memorystore.Open(dbDir)
				if err != nil {
					return fmt.Errorf("opening cross-session memory store: %w", err)
				}
				defer store.Close()
				_ = memory.Load(store)
				defer memory.Persist(store)
			}

			var sessStore session.Store
			var fileStore *sessionstore.Store
			if sessionDir != "" {
				store, err := sessionstore.New(sessionDir)
				if err != nil {
					return fmt.Errorf("opening session store: %w", err)
				}
				sessStore = store
				fileStore = store
			}

			orch := &orchestrator.Orchestrator{
				Settings: settings,
				Client:   client,
				Memory:   memory,
				Sink:     newTerminalSink(cmd.OutOrStdout(), cmd.InOrStdin()),
				Store:    sessStore,
				Logger:   logger,
			}

			ctx := context.Background()
			result, err := orch.Run(ctx, args[0])
			if err != nil {
				if result.State == nil {
					return fmt.Errorf("running dialogue: %w", err)
				}
				logger.Sugar().Warnw("dialogue aborted, continuing with partial state", "session_id", result.State.SessionID, "error", err)
			}

			if fileStore != nil {
				if err := fileStore.ExportYAML(ctx, result.State.SessionID, result.State); err != nil {
					logger.Sugar().Warnw("session YAML export failed", "session_id", result.State.SessionID, "error", err)
				}
			}

			researchCtx := convstate.Snapshot(result.State)
			pipe := &pipeline.Pipeline{
				Client:   client,
				Settings: settings,
				Progress: &progressPrinter{out: cmd.ErrOrStderr()},
				Logger:   logger,
			}
			bundle := pipe.Run(ctx, result.State.SessionID, researchCtx)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(bundle)
		},
	}

	cmd.Flags().StringVar(&llmBaseURL, "llm-url", "", "LLM generation endpoint (unset disables the AI path, using rule-based fallback only)")
	cmd.Flags().StringVar(&sessionDir, "session-dir", "", "directory for optional session snapshot persistence")
	return cmd
}
