package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/rag"
	"github.com/hupe1980/chatreview/scoring"
)

type chatOptions struct {
	Server   string
	Role     string
	Scenario string
}

type ingestOptions struct {
	Server string
	Corpus string
	Name   string
}

func runChat(cmd *cobra.Command, opts chatOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	client := newAPIClient(opts.Server)

	var sess core.SessionSnapshot
	if err := client.postJSON(ctx, "/sessions", map[string]string{
		"role_id":     opts.Role,
		"scenario_id": opts.Scenario,
	}, &sess); err != nil {
		return err
	}
	var scenario core.Scenario
	if err := client.getJSON(ctx, "/scenarios/"+sess.ScenarioID, &scenario); err != nil {
		return err
	}
	fmt.Fprintf(out, "session %s: %s (%d tasks)\n\n", sess.ID, scenario.Name, len(scenario.Tasks))

	// The interviewer opens the conversation.
	if err := interviewerTurn(ctx, client, sess.ID, out); err != nil {
		return err
	}

	in := bufio.NewScanner(cmd.InOrStdin())
	in.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for {
		fmt.Fprint(out, "> ")
		if !in.Scan() {
			break
		}
		line := strings.TrimSpace(in.Text())
		if line == "" {
			continue
		}
		done, err := handleChatLine(ctx, client, sess.ID, scenario, line, out)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
		if done {
			return nil
		}
	}
	return in.Err()
}

// handleChatLine runs one line of input and reports whether the chat ended.
func handleChatLine(ctx context.Context, client *apiClient, sessionID string, scenario core.Scenario, line string, out io.Writer) (bool, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit":
		var snap core.SessionSnapshot
		if err := client.postJSON(ctx, "/sessions/"+sessionID+"/complete", nil, &snap); err != nil {
			return true, err
		}
		return true, printSummary(ctx, client, sessionID, out)
	case "/score":
		return false, printSummary(ctx, client, sessionID, out)
	case "/code":
		task, err := currentTask(ctx, client, sessionID, scenario, core.TaskCoding)
		if err != nil {
			return false, err
		}
		code, err := os.ReadFile(strings.TrimSpace(arg))
		if err != nil {
			return false, err
		}
		var res map[string]any
		if err := client.postJSON(ctx, "/sessions/"+sessionID+"/submit/code", map[string]string{
			"task_id": task.ID,
			"code":    string(code),
		}, &res); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "sandbox: success=%v\n", res["success"])
		return false, interviewerTurn(ctx, client, sessionID, out)
	case "/sql":
		task, err := currentTask(ctx, client, sessionID, scenario, core.TaskSQL)
		if err != nil {
			return false, err
		}
		var res map[string]any
		if err := client.postJSON(ctx, "/sessions/"+sessionID+"/submit/sql", map[string]string{
			"task_id": task.ID,
			"query":   arg,
		}, &res); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "sandbox: success=%v\n", res["success"])
		return false, interviewerTurn(ctx, client, sessionID, out)
	}

	if err := client.postJSON(ctx, "/sessions/"+sessionID+"/messages", map[string]string{
		"sender": string(core.SenderCandidate),
		"text":   line,
	}, nil); err != nil {
		return false, err
	}
	if err := interviewerTurn(ctx, client, sessionID, out); err != nil {
		return false, err
	}

	var snap core.SessionSnapshot
	if err := client.getJSON(ctx, "/sessions/"+sessionID, &snap); err != nil {
		return false, err
	}
	if snap.State == core.StateCompleted {
		fmt.Fprintln(out, "\ninterview completed")
		return true, printSummary(ctx, client, sessionID, out)
	}
	return false, nil
}

func interviewerTurn(ctx context.Context, client *apiClient, sessionID string, out io.Writer) error {
	_, err := client.streamTurn(ctx, sessionID, func(token string) {
		fmt.Fprint(out, token)
	})
	fmt.Fprintln(out)
	return err
}

// currentTask resolves the session's current task, falling back to the
// first task of the wanted type.
func currentTask(ctx context.Context, client *apiClient, sessionID string, scenario core.Scenario, want core.TaskType) (core.Task, error) {
	var snap core.SessionSnapshot
	if err := client.getJSON(ctx, "/sessions/"+sessionID, &snap); err != nil {
		return core.Task{}, err
	}
	if t, ok := scenario.Task(snap.CurrentTaskID); ok && t.Type == want {
		return t, nil
	}
	for _, t := range scenario.Tasks {
		if t.Type == want {
			return t, nil
		}
	}
	return core.Task{}, fmt.Errorf("scenario has no %s task", want)
}

func printSummary(ctx context.Context, client *apiClient, sessionID string, out io.Writer) error {
	var sum scoring.Summary
	if err := client.getJSON(ctx, "/sessions/"+sessionID+"/summary", &sum); err != nil {
		return err
	}
	fmt.Fprintf(out, "score: %g / %g\n", sum.Total, sum.Max)
	for task, pts := range sum.PerTask {
		fmt.Fprintf(out, "  %s: %g\n", task, pts)
	}
	if len(sum.Unscored) > 0 {
		fmt.Fprintf(out, "  unscored: %s\n", strings.Join(sum.Unscored, ", "))
	}
	return nil
}

func runIngest(cmd *cobra.Command, opts ingestOptions, files []string) error {
	ctx := cmd.Context()
	client := newAPIClient(opts.Server)

	var corpus rag.Corpus
	err := client.getJSON(ctx, "/rag/corpora/"+opts.Corpus, &corpus)
	var apiErr *apiError
	if err != nil {
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
			return err
		}
		name := opts.Name
		if name == "" {
			name = opts.Corpus
		}
		if err := client.postJSON(ctx, "/rag/corpora", map[string]string{"id": opts.Corpus, "name": name}, &corpus); err != nil {
			return err
		}
	}

	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var doc rag.Document
		if err := client.postJSON(ctx, "/rag/corpora/"+opts.Corpus+"/documents", map[string]any{
			"filename": filepath.Base(path),
			"content":  string(content),
			"metadata": map[string]any{"source": path},
		}, &doc); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", path, doc.ID)
	}
	return nil
}
