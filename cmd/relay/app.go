package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/victorarias/agentic-relay/agentic"
	"github.com/victorarias/agentic-relay/agentic/compaction"
	"github.com/victorarias/agentic-relay/agentic/context/budget"
	"github.com/victorarias/agentic-relay/agentic/events"
	"github.com/victorarias/agentic-relay/agentic/history"
	provider "github.com/victorarias/agentic-relay/agentic/providers/anthropic"
	"github.com/victorarias/agentic-relay/agentic/telemetry"
	"github.com/victorarias/agentic-relay/cmd/relay/config"
)

// app holds state shared by every command.
type app struct {
	out    io.Writer
	errOut io.Writer

	configPath string
	envFile    string
	sessionID  string

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}
	cmd := &cobra.Command{
		Use:           "relay",
		Short:         "Canonical event relay and overflow recovery for agent streams",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to a YAML or JSON5 configuration file")
	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", "", "Path to a .env file (default .env when present)")
	cmd.PersistentFlags().StringVar(&a.sessionID, "session", "", "Session id for the session store (default: a new id)")
	cmd.AddCommand(a.replayCmd(), a.repairCmd(), a.runCmd())
	return cmd
}

func (a *app) init() error {
	if err := config.LoadDotEnv(a.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = telemetry.NewLogger(cfg.LogLevel, cfg.LogFormat, a.errOut)
	if strings.TrimSpace(a.sessionID) == "" {
		a.sessionID = uuid.NewString()
	}
	return nil
}

// openStore picks the SQLite, file or in-memory session store, in that
// order of preference.
func (a *app) openStore(ctx context.Context) (history.Rewriter, func(), error) {
	switch {
	case a.cfg.SessionDB != "":
		store, err := history.OpenSQLite(ctx, history.SQLiteConfig{
			Path:      a.cfg.SessionDB,
			SessionID: a.sessionID,
			Logger:    a.logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case a.cfg.SessionDir != "":
		store, err := history.NewFileStore(a.cfg.SessionDir, a.sessionID)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return history.NewMemoryStore(), func() {}, nil
	}
}

// summarizer prefers the Anthropic API, then Vertex, then the offline
// extractive summary.
func (a *app) summarizer(ctx context.Context) (budget.Compactor, error) {
	switch {
	case a.cfg.Anthropic.APIKey != "" && a.cfg.Anthropic.Model != "":
		return provider.New(provider.Config{
			APIKey:  a.cfg.Anthropic.APIKey,
			Model:   a.cfg.Anthropic.Model,
			BaseURL: a.cfg.Anthropic.BaseURL,
		})
	case a.cfg.Vertex.Project != "" && a.cfg.Vertex.Model != "":
		return provider.NewVertex(ctx, provider.VertexConfig{
			Project:  a.cfg.Vertex.Project,
			Location: a.cfg.Vertex.Location,
			Model:    a.cfg.Vertex.Model,
		})
	default:
		a.logger.Debug("no summarization model configured, using extractive summaries")
		return compaction.Extractive{}, nil
	}
}

// emitter builds the telemetry backend. The returned report function
// writes collected counters, when the backend keeps any.
func (a *app) emitter() (telemetry.Emitter, func(), error) {
	switch strings.ToLower(a.cfg.Metrics) {
	case "prometheus":
		registry := prometheus.NewRegistry()
		metrics, err := telemetry.NewPrometheusMetrics(registry)
		if err != nil {
			return nil, nil, err
		}
		return metrics, func() { a.reportMetrics(registry) }, nil
	case "otel":
		return telemetry.NewOTelMetrics(nil), func() {}, nil
	case "none":
		return telemetry.Nop{}, func() {}, nil
	default:
		logger := a.logger
		return telemetry.EmitterFunc(func(ctx context.Context, e telemetry.Event) {
			args := []any{"metric", e.Metric}
			for k, v := range e.Fields {
				args = append(args, k, v)
			}
			logger.InfoContext(ctx, "telemetry", args...)
		}), func() {}, nil
	}
}

func (a *app) reportMetrics(registry *prometheus.Registry) {
	families, err := registry.Gather()
	if err != nil {
		a.logger.Warn("gather metrics failed", "error", err)
		return
	}
	for _, family := range families {
		for _, m := range family.GetMetric() {
			var labels []string
			for _, pair := range m.GetLabel() {
				labels = append(labels, pair.GetName()+"="+pair.GetValue())
			}
			fmt.Fprintf(a.errOut, "%s{%s} %g\n", family.GetName(), strings.Join(labels, ","), m.GetCounter().GetValue())
		}
	}
}

func (a *app) registry() (*agentic.Registry, error) {
	defs, err := a.cfg.ToolDefinitions()
	if err != nil {
		return nil, err
	}
	reg := agentic.NewRegistry(agentic.WithPolicy(a.cfg.Policy()))
	if err := reg.Register(defs...); err != nil {
		return nil, err
	}
	return reg, nil
}

// eventPrinter writes each event as one JSON line.
func eventPrinter(w io.Writer) events.Sink {
	enc := json.NewEncoder(w)
	return events.SinkFunc(func(e events.Event) {
		_ = enc.Encode(e)
	})
}
