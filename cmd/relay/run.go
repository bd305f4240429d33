package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/victorarias/agentic-relay/agentic/attempt"
	"github.com/victorarias/agentic-relay/agentic/compaction"
	"github.com/victorarias/agentic-relay/agentic/overflow"
	"github.com/victorarias/agentic-relay/agentic/telemetry"
	"github.com/victorarias/agentic-relay/agentic/truncate"
)

func (a *app) runCmd() *cobra.Command {
	var printEvents bool
	cmd := &cobra.Command{
		Use:   "run <attempt1.jsonl> [attempt2.jsonl ...]",
		Short: "Run the overflow controller over recorded attempts",
		Long: "Run drives one turn through the overflow controller. Attempt N replays file N; " +
			"attempts past the last file replay the last file again.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTurn(cmd, args, printEvents)
		},
	}
	cmd.Flags().BoolVar(&printEvents, "events", false, "Print canonical events as JSON lines to stderr")
	return cmd
}

func (a *app) runTurn(cmd *cobra.Command, files []string, printEvents bool) error {
	ctx := cmd.Context()
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	reg, err := a.registry()
	if err != nil {
		return err
	}
	emitter, report, err := a.emitter()
	if err != nil {
		return err
	}
	defer report()

	execCfg := attempt.Config{
		Source:   attempt.Files(files),
		Store:    store,
		Tools:    reg,
		Provider: a.cfg.Provider,
		Timeout:  time.Duration(a.cfg.AttemptTimeoutSeconds) * time.Second,
		Logger:   a.logger,
	}
	if printEvents {
		execCfg.Sink = eventPrinter(a.errOut)
	}
	exec, err := attempt.New(execCfg)
	if err != nil {
		return err
	}

	summarizer, err := a.summarizer(ctx)
	if err != nil {
		return err
	}
	compactor, err := compaction.New(compaction.Config{
		Store:      store,
		Summarizer: summarizer,
		KeepLast:   a.cfg.KeepLast,
		Logger:     a.logger,
	})
	if err != nil {
		return err
	}
	truncator, err := truncate.NewSessionTruncator(truncate.SessionConfig{Store: store, Logger: a.logger})
	if err != nil {
		return err
	}

	// Stored sessions can already be over budget before the first attempt.
	pre, err := compactor.CompactIfNeeded(ctx, compaction.Params{
		SessionKey:          a.cfg.SessionKey,
		SessionID:           a.sessionID,
		ContextWindowTokens: a.cfg.ContextWindow,
	})
	if err != nil {
		return err
	}
	if pre.Compacted {
		a.logger.Info("compacted stored session before the turn", "tokens_before", pre.TokensBefore, "tokens_after", pre.TokensAfter)
	}

	ctrl := overflow.New(overflow.Config{
		Attempts:              exec,
		Compactor:             compactor,
		Truncator:             truncator,
		Telemetry:             emitter,
		Tracer:                telemetry.Tracer(),
		Logger:                a.logger,
		Runtime:               a.cfg.Runtime,
		Provider:              a.cfg.Provider,
		SessionKey:            a.cfg.SessionKey,
		ContextWindowTokens:   a.cfg.ContextWindow,
		MaxAttempts:           a.cfg.MaxAttempts,
		MaxCompactionAttempts: a.cfg.MaxCompactionAttempts,
	})
	result, runErr := ctrl.Run(ctx)
	if result.Payloads != nil || result.Meta.Attempts > 0 {
		if err := writeJSON(a.out, result); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fmt.Errorf("run: %w", runErr)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
