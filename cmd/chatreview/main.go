// Package main provides the chatreview CLI.
//
// Start the interview service:
//
//	chatreview serve --config chatreview.yaml
//
// Check that the model answers:
//
//	chatreview ping
//
// Interview yourself against a running server:
//
//	chatreview chat --server http://localhost:8000 --role ds --scenario ds-junior-ml
//
// Configuration falls back to built-in defaults plus the environment
// variables LM_STUDIO_URL, LM_MODEL, SANDBOX_CODE_URL, SANDBOX_SQL_URL,
// WEB_SEARCH_URL, ALLOW_ORIGINS and DATABASE_URL.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/chatreview"
)

// Build information, set with -ldflags "-X main.commit=...".
var (
	commit = "none"
	date   = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chatreview",
		Short: "Interactive technical interview service",
		Long: `chatreview runs mock technical interviews. A language model asks the
questions, scores answers through tool calls and looks things up in a
retrieval index or on the web. Code and SQL answers run in external sandboxes.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", chatreview.Version, commit, date),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", os.Getenv("CHATREVIEW_CONFIG"), "Path to a YAML or JSON5 configuration file")

	root.AddCommand(
		buildServeCmd(),
		buildPingCmd(),
		buildSearchCmd(),
		buildChatCmd(),
		buildIngestCmd(),
	)
	return root
}
