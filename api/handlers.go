package api

import (
	"net/http"
	"strings"

	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/internal/sse"
	"github.com/hupe1980/chatreview/rag"
	"github.com/hupe1980/chatreview/sandbox"
)

const defaultSearchTopK = 3

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": len(s.eng.Sessions()),
		"in_turn":  s.eng.InFlight(),
	})
}

// handlePing checks that the language model answers.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	info, err := s.eng.Ping(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "model": info})
}

// Catalog

func (s *Server) handleRoles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Catalog().Roles())
}

func (s *Server) handleRoleScenarios(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.eng.Catalog().Role(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.eng.Catalog().Scenarios(id))
}

func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Catalog().Scenarios(r.URL.Query().Get("role_id")))
}

func (s *Server) handleScenario(w http.ResponseWriter, r *http.Request) {
	sc, err := s.eng.Catalog().Scenario(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleSQLScenario(w http.ResponseWriter, r *http.Request) {
	sc, err := s.eng.Catalog().SQLScenario(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// Sessions

type createSessionRequest struct {
	RoleID     string `json:"role_id"`
	ScenarioID string `json:"scenario_id"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.RoleID == "" || req.ScenarioID == "" {
		s.writeError(w, r, core.Errorf("api.CreateSession", core.ErrInvalidArgument, "role_id and scenario_id are required"))
		return
	}
	snap, err := s.eng.CreateSession(r.Context(), req.RoleID, req.ScenarioID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.eng.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.eng.Messages(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

type appendMessageRequest struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
	TaskID string `json:"task_id,omitempty"`
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var req appendMessageRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Sender == "" {
		req.Sender = string(core.SenderCandidate)
	}
	sender, err := core.ParseSender(req.Sender)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msg, err := s.eng.AppendMessage(r.Context(), r.PathValue("id"), sender, req.Text, req.TaskID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// handleTurn streams a model turn as server-sent events. Tool calls are
// internal to the turn and are not forwarded; the stream ends with exactly
// one done or error event. Errors before the first event are plain JSON.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	stream, err := s.eng.RequestModelTurn(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer stream.Close()

	sw, err := sse.NewWriter(w)
	if err != nil {
		s.writeError(w, r, core.E("api.Turn", core.ErrInvalidState, err))
		return
	}
	for stream.Next() {
		ev := stream.Current()
		if ev.Type == core.EventToolCall {
			continue
		}
		if err := sw.Send(ev); err != nil {
			s.opts.Logger.Debug("api.turn.client_gone", "session_id", r.PathValue("id"), "error", err)
			return
		}
	}
	// A reader detached at the turn deadline never saw the terminal event.
	if err := stream.Err(); err != nil && r.Context().Err() == nil && !stream.Current().IsTerminal() {
		_ = sw.Send(core.ErrorEvent(err))
	}
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	scores, err := s.eng.Scores(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

type recordScoreRequest struct {
	TaskID    string   `json:"task_id"`
	Points    *float64 `json:"points"`
	Rationale string   `json:"rationale,omitempty"`
}

func (s *Server) handleRecordScore(w http.ResponseWriter, r *http.Request) {
	var req recordScoreRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.TaskID == "" || req.Points == nil {
		s.writeError(w, r, core.Errorf("api.RecordScore", core.ErrInvalidArgument, "task_id and points are required"))
		return
	}
	sc, err := s.eng.RecordScore(r.Context(), r.PathValue("id"), req.TaskID, *req.Points, req.Rationale)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sc)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.eng.Summary(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type submitCodeRequest struct {
	TaskID   string `json:"task_id"`
	Language string `json:"language,omitempty"`
	Code     string `json:"code"`
	TestsID  string `json:"tests_id,omitempty"`
}

func (s *Server) handleSubmitCode(w http.ResponseWriter, r *http.Request) {
	var req submitCodeRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.eng.SubmitCode(r.Context(), r.PathValue("id"), req.TaskID, sandbox.CodeRequest{
		Language: req.Language,
		Code:     req.Code,
		TestsID:  req.TestsID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type submitSQLRequest struct {
	TaskID        string `json:"task_id"`
	SQLScenarioID string `json:"sql_scenario_id,omitempty"`
	Query         string `json:"query"`
}

func (s *Server) handleSubmitSQL(w http.ResponseWriter, r *http.Request) {
	var req submitSQLRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.eng.SubmitSQL(r.Context(), r.PathValue("id"), req.TaskID, sandbox.SQLRequest{
		SQLScenarioID: req.SQLScenarioID,
		Query:         req.Query,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.eng.Submissions(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	snap, err := s.eng.CompleteSession(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type searchRequest struct {
	CorpusID string `json:"corpus_id,omitempty"`
	Query    string `json:"query"`
	TopK     int    `json:"top_k,omitempty"`
}

func (s *Server) handleWebSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.TopK <= 0 {
		req.TopK = defaultSearchTopK
	}
	results, err := s.eng.WebSearch(r.Context(), r.PathValue("id"), req.Query, req.TopK)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": req.Query, "results": results})
}

// Retrieval index

type createCorpusRequest struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (s *Server) handleCorpora(w http.ResponseWriter, _ *http.Request) {
	corpora := s.kb.Corpora()
	if corpora == nil {
		corpora = []rag.Corpus{}
	}
	writeJSON(w, http.StatusOK, corpora)
}

func (s *Server) handleCreateCorpus(w http.ResponseWriter, r *http.Request) {
	var req createCorpusRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.writeError(w, r, core.Errorf("api.CreateCorpus", core.ErrInvalidArgument, "name is required"))
		return
	}
	c, err := s.kb.CreateCorpus(req.ID, req.Name, req.Description)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleCorpus(w http.ResponseWriter, r *http.Request) {
	c, err := s.kb.Corpus(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type addDocumentRequest struct {
	Filename string         `json:"filename"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var req addDocumentRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	doc, err := s.kb.AddDocument(r.PathValue("id"), req.Filename, req.Content, req.Metadata)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.kb.Documents(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []rag.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.kb.Document(r.PathValue("id"), r.PathValue("doc"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleRAGSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.CorpusID == "" || strings.TrimSpace(req.Query) == "" {
		s.writeError(w, r, core.Errorf("api.RAGSearch", core.ErrInvalidArgument, "corpus_id and query are required"))
		return
	}
	if req.TopK <= 0 {
		req.TopK = defaultSearchTopK
	}
	results, err := s.kb.Search(r.Context(), req.CorpusID, req.Query, req.TopK)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if results == nil {
		results = []core.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"corpus_id": req.CorpusID,
		"query":     req.Query,
		"top_k":     req.TopK,
		"results":   results,
	})
}
