package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/victorarias/agentic-relay/agentic/stream"
)

const maxLineBytes = 16 << 20

func (a *app) replayCmd() *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "replay <stream.jsonl>",
		Short: "Translate a recorded provider stream into canonical events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runReplay(cmd, args[0], quiet)
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the summary line")
	return cmd
}

func (a *app) runReplay(cmd *cobra.Command, path string, quiet bool) error {
	ctx := cmd.Context()
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	defer file.Close()

	cfg := stream.Config{Store: store, Logger: a.logger}
	if !quiet {
		cfg.Sink = eventPrinter(a.out)
	}
	adapter := stream.New(cfg)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line, skipped := 0, 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		if err := adapter.TranslateLine(ctx, scanner.Bytes()); err != nil {
			skipped++
			a.logger.Warn("skipping malformed line", "line", line, "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("replay: read %s: %w", path, err)
	}

	fmt.Fprintf(a.errOut, "session=%s messages=%d skipped=%d lifecycle=%s\n",
		adapter.SessionID(), len(adapter.Messages()), skipped, adapter.Lifecycle())
	if providerErr := adapter.Err(); providerErr != nil {
		return fmt.Errorf("replay: provider reported failure: %w", providerErr)
	}
	return nil
}
