package tool

import (
	"context"
	"strings"

	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/scoring"
	"github.com/hupe1980/chatreview/websearch"
)

// Names of the built-in interview tools.
const (
	RAGSearchName = "rag_search"
	WebSearchName = "web_search"
	ScoreTaskName = "score_task"
)

// RAGSearchArgs are the arguments of rag_search.
type RAGSearchArgs struct {
	CorpusID string `json:"corpus_id,omitempty" jsonschema_description:"Knowledge corpus to search. Defaults to the scenario corpus."`
	Query    string `json:"query" jsonschema:"minLength=1" jsonschema_description:"What to look up in the knowledge base."`
	TopK     int    `json:"top_k,omitempty" jsonschema:"minimum=1,maximum=20" jsonschema_description:"Number of documents to return."`
}

// NewRAGSearchTool returns rag_search backed by r. An omitted corpus_id
// falls back to the scenario's corpus; an unknown corpus fails with
// core.ErrNotFound.
func NewRAGSearchTool(r core.Retriever, defaultTopK int) *FunctionTool {
	if defaultTopK <= 0 {
		defaultTopK = 3
	}
	return NewTypedTool(RAGSearchName,
		"Search the interview knowledge base for material related to the current topic.",
		func(tc *core.ToolContext, args RAGSearchArgs) (any, error) {
			corpusID := strings.TrimSpace(args.CorpusID)
			if corpusID == "" {
				corpusID = tc.Scenario().RAGCorpusID
			}
			if corpusID == "" {
				return nil, core.Errorf("tool.rag_search", core.ErrInvalidArgument, "no corpus_id given and the scenario has no corpus")
			}
			topK := args.TopK
			if topK <= 0 {
				topK = defaultTopK
			}
			results, err := r.Search(tc.Context(), corpusID, args.Query, topK)
			if err != nil {
				return nil, err
			}
			return map[string]any{"corpus_id": corpusID, "results": results}, nil
		})
}

// WebSearchArgs are the arguments of web_search.
type WebSearchArgs struct {
	Query string `json:"query" jsonschema:"minLength=1" jsonschema_description:"Search query."`
	TopK  int    `json:"top_k,omitempty" jsonschema:"minimum=1,maximum=10" jsonschema_description:"Number of results to return."`
}

// NewWebSearchTool returns web_search backed by s. Search failures never
// abort the turn; they produce an empty result set with a note.
func NewWebSearchTool(s websearch.Searcher) *FunctionTool {
	return NewTypedTool(WebSearchName,
		"Search the web for up-to-date facts. Use sparingly and only when the knowledge base has no answer.",
		func(tc *core.ToolContext, args WebSearchArgs) (any, error) {
			results, err := s.Search(tc.Context(), args.Query, args.TopK)
			if err != nil {
				tc.LogWarn("tool.web_search.failed", "error", err.Error())
				return map[string]any{
					"query":   args.Query,
					"results": []websearch.Result{},
					"note":    "web search is unavailable right now",
				}, nil
			}
			if results == nil {
				results = []websearch.Result{}
			}
			return map[string]any{"query": args.Query, "results": results}, nil
		})
}

// Scorer records a validated score for a session.
type Scorer interface {
	RecordScore(ctx context.Context, sessionID, taskID string, points float64, rationale string) (core.Score, error)
}

// ScoreTaskArgs are the arguments of score_task. Some models send the
// rationale as "comment"; both are accepted.
type ScoreTaskArgs struct {
	TaskID    string  `json:"task_id" jsonschema:"minLength=1" jsonschema_description:"Identifier of the task being scored."`
	Points    float64 `json:"points" jsonschema_description:"Awarded points, at most the task's max_points."`
	Rationale string  `json:"rationale,omitempty" jsonschema_description:"Short justification shown to the candidate."`
	Comment   string  `json:"comment,omitempty"`
}

// NewScoreTaskTool returns score_task. Points are checked against the
// scenario before the score is handed to s.
func NewScoreTaskTool(s Scorer) *FunctionTool {
	return NewTypedTool(ScoreTaskName,
		"Record the candidate's score for a task once it has been discussed. Points must not exceed the task's max_points.",
		func(tc *core.ToolContext, args ScoreTaskArgs) (any, error) {
			task, points, err := scoring.ValidateFor(tc.Scenario(), args.TaskID, args.Points)
			if err != nil {
				return nil, err
			}
			rationale := args.Rationale
			if rationale == "" {
				rationale = args.Comment
			}
			sc, err := s.RecordScore(tc.Context(), tc.SessionID(), task.ID, points, rationale)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"status":     "recorded",
				"task_id":    sc.TaskID,
				"awarded":    sc.Awarded,
				"max_points": sc.Max,
				"rationale":  sc.Rationale,
			}, nil
		})
}
