package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/chatreview"
	"github.com/hupe1980/chatreview/config"
	"github.com/hupe1980/chatreview/internal/tracing"
	"github.com/hupe1980/chatreview/model"
	"github.com/hupe1980/chatreview/websearch"
)

func runServe(cmd *cobra.Command, path, addr string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: chatreview.Version,
		SampleRatio:    cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	app, err := chatreview.New(cfg)
	if err != nil {
		return err
	}
	logger := app.Logger()
	logger.Info("chatreview.start",
		"version", chatreview.Version,
		"addr", cfg.Server.Addr,
		"model_provider", cfg.Model.Provider,
		"model", cfg.Model.Name,
		"storage", cfg.Storage.Driver,
	)

	serveErr := app.Serve(ctx)
	closeErr := app.Close()
	logger.Info("chatreview.stopped")
	if serveErr != nil {
		return serveErr
	}
	return closeErr
}

func runPing(cmd *cobra.Command, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	m, err := chatreview.NewModel(cfg.Model)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Model.Timeout)
	defer cancel()
	if err := model.Ping(ctx, m); err != nil {
		return err
	}
	info := m.Info()
	fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (%s)\n", info.Name, info.Provider)
	return nil
}

func runSearch(cmd *cobra.Command, path string, args []string, topK int) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	client := websearch.NewClient(func(o *websearch.Options) {
		o.Backend = websearch.Backend(cfg.WebSearch.Backend)
		o.URL = cfg.WebSearch.URL
		o.Timeout = cfg.WebSearch.Timeout
	})
	results, err := client.Search(cmd.Context(), strings.Join(args, " "), topK)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
