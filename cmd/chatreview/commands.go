package main

import (
	"github.com/spf13/cobra"
)

func buildServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API.

Sessions live in memory while they are active. Completed sessions are
archived to the configured store (memory or sqlite). SIGINT and SIGTERM
shut the server down gracefully and archive every live session.`,
		Example: `  chatreview serve
  chatreview serve --config /etc/chatreview.yaml --addr :9000`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, configPath(cmd), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

func buildPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the configured model answers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPing(cmd, configPath(cmd))
		},
	}
}

func buildSearchCmd() *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a web search with the configured backend",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, configPath(cmd), args, topK)
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 3, "Number of results")
	return cmd
}

func buildChatCmd() *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Take an interview against a running server",
		Long: `Take an interview against a running server.

Each line you type is sent as a candidate answer and the interviewer's reply
is streamed back. Commands: /code <file> submits the file for the current
coding task, /sql <query> submits a query, /score prints the summary and
/quit completes the session.`,
		Example: `  chatreview chat --role ds --scenario ds-junior-ml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Server, "server", "http://localhost:8000", "Base URL of the chatreview API")
	cmd.Flags().StringVar(&opts.Role, "role", "ds", "Role id")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "ds-junior-ml", "Scenario id")
	return cmd
}

func buildIngestCmd() *cobra.Command {
	var opts ingestOptions
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Upload documents into a retrieval corpus of a running server",
		Args:  cobra.MinimumNArgs(1),
		Example: `  chatreview ingest --corpus ml-notes docs/*.md`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.Server, "server", "http://localhost:8000", "Base URL of the chatreview API")
	cmd.Flags().StringVar(&opts.Corpus, "corpus", "", "Corpus id (created when missing)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "Corpus name used when the corpus is created")
	_ = cmd.MarkFlagRequired("corpus")
	return cmd
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
