// Package api exposes the interview engine over HTTP: JSON endpoints for
// sessions, scoring, submissions, the catalog and the retrieval index, plus
// a server-sent event stream for model turns.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/hupe1980/chatreview/core"
	"github.com/hupe1980/chatreview/engine"
	"github.com/hupe1980/chatreview/logging"
	"github.com/hupe1980/chatreview/rag"
)

// KnowledgeBase is the document store behind the /rag endpoints.
type KnowledgeBase interface {
	core.Retriever
	CreateCorpus(id, name, description string) (rag.Corpus, error)
	Corpora() []rag.Corpus
	Corpus(id string) (rag.Corpus, error)
	AddDocument(corpusID, filename, content string, metadata map[string]any) (rag.Document, error)
	Documents(corpusID string) ([]rag.Document, error)
	Document(corpusID, documentID string) (rag.Document, error)
}

// Options configure a Server.
type Options struct {
	// AllowedOrigins lists origins allowed by CORS; "*" allows any.
	AllowedOrigins []string

	Logger logging.Logger

	// Metrics, when set, is mounted at MetricsPath.
	Metrics     http.Handler
	MetricsPath string

	// MaxBodyBytes bounds JSON request bodies.
	MaxBodyBytes int64
}

// Server routes HTTP requests to the engine.
type Server struct {
	eng  *engine.Engine
	kb   KnowledgeBase
	opts Options
	mux  *http.ServeMux
}

// New creates a server for eng and kb.
func New(eng *engine.Engine, kb KnowledgeBase, optFns ...func(o *Options)) *Server {
	opts := Options{
		AllowedOrigins: []string{"*"},
		Logger:         logging.NoOpLogger{},
		MetricsPath:    "/metrics",
		MaxBodyBytes:   4 << 20,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if sl, ok := opts.Logger.(*logging.StructuredLogger); ok {
		opts.Logger = sl.WithComponent("api")
	}

	s := &Server{eng: eng, kb: kb, opts: opts, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ping", s.handlePing)

	s.mux.HandleFunc("GET /roles", s.handleRoles)
	s.mux.HandleFunc("GET /roles/{id}/scenarios", s.handleRoleScenarios)
	s.mux.HandleFunc("GET /scenarios", s.handleScenarios)
	s.mux.HandleFunc("GET /scenarios/{id}", s.handleScenario)
	s.mux.HandleFunc("GET /sql-scenarios/{id}", s.handleSQLScenario)

	s.mux.HandleFunc("POST /sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("GET /sessions/{id}/messages", s.handleMessages)
	s.mux.HandleFunc("POST /sessions/{id}/messages", s.handleAppendMessage)
	s.mux.HandleFunc("POST /sessions/{id}/turn", s.handleTurn)
	s.mux.HandleFunc("GET /sessions/{id}/scores", s.handleScores)
	s.mux.HandleFunc("POST /sessions/{id}/scores", s.handleRecordScore)
	s.mux.HandleFunc("GET /sessions/{id}/summary", s.handleSummary)
	s.mux.HandleFunc("POST /sessions/{id}/submit/code", s.handleSubmitCode)
	s.mux.HandleFunc("POST /sessions/{id}/submit/sql", s.handleSubmitSQL)
	s.mux.HandleFunc("GET /sessions/{id}/submissions", s.handleSubmissions)
	s.mux.HandleFunc("POST /sessions/{id}/complete", s.handleComplete)
	s.mux.HandleFunc("POST /sessions/{id}/web-search", s.handleWebSearch)

	s.mux.HandleFunc("GET /rag/corpora", s.handleCorpora)
	s.mux.HandleFunc("POST /rag/corpora", s.handleCreateCorpus)
	s.mux.HandleFunc("GET /rag/corpora/{id}", s.handleCorpus)
	s.mux.HandleFunc("GET /rag/corpora/{id}/documents", s.handleDocuments)
	s.mux.HandleFunc("POST /rag/corpora/{id}/documents", s.handleAddDocument)
	s.mux.HandleFunc("GET /rag/corpora/{id}/documents/{doc}", s.handleDocument)
	s.mux.HandleFunc("POST /rag/search", s.handleRAGSearch)

	if s.opts.Metrics != nil {
		s.mux.Handle("GET "+s.opts.MetricsPath, s.opts.Metrics)
	}
}

// Handler returns the root handler with CORS and request logging applied.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.cors(s.mux))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("api.server.start", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.opts.Logger.Info("api.server.shutdown", "addr", addr)
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// statusRecorder captures the response status for logging. It forwards
// Flush so event streams keep working behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.opts.Logger.Debug("api.request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration_ms", time.Since(start).Milliseconds())
	})
}
