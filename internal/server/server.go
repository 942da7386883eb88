package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/TobiSchelling/NewsTopics/internal/database"
	"github.com/TobiSchelling/NewsTopics/internal/pipeline"
	"github.com/TobiSchelling/NewsTopics/internal/query"
	"github.com/TobiSchelling/NewsTopics/internal/report"
)

var reportPage = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="ko">
<head>
<meta charset="utf-8">
<title>News topics {{.Date}}</title>
<style>body{font-family:sans-serif;max-width:48rem;margin:2rem auto;line-height:1.5}</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// Runner starts pipeline runs.
type Runner interface {
	RunWithRetry(ctx context.Context, at time.Time, attempts int) (*pipeline.Result, error)
}

// Pinger checks storage connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures optional server collaborators. A nil Runner disables
// POST /api/runs.
type Options struct {
	Runner  Runner
	Pinger  Pinger
	Retries int
}

// Server is the HTTP front end over the query service.
type Server struct {
	svc      *query.Service
	composer *report.Composer
	opts     Options
	logger   *slog.Logger
	mux      *http.ServeMux
	now      func() time.Time

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// New creates a new Server.
func New(svc *query.Service, composer *report.Composer, opts Options, logger *slog.Logger) *Server {
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:      svc,
		composer: composer,
		opts:     opts,
		logger:   logger.With("component", "server"),
		mux:      http.NewServeMux(),
		now:      time.Now,
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Wait blocks until background runs started by the server finish.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/dates", s.handleDates)
	s.mux.HandleFunc("GET /api/articles", s.handleArticles)
	s.mux.HandleFunc("GET /api/keywords", s.handleKeywords)
	s.mux.HandleFunc("GET /api/trends", s.handleTrends)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/runs", s.handleStartRun)
	s.mux.HandleFunc("GET /report/{date}", s.handleReport)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

func (s *Server) handleDates(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeError(w, err)
		return
	}
	n := 0
	if limit != nil {
		n = *limit
	}
	days, err := s.svc.Dates(r.Context(), n)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, query.Success(map[string]any{"dates": days}, ""))
}

func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	topicID, err := intParam(r, "topic")
	if err != nil {
		s.writeError(w, err)
		return
	}
	rows, err := s.svc.Articles(r.Context(), query.ArticleQuery{
		Start:   q.Get("start"),
		End:     q.Get("end"),
		TopicID: topicID,
		Keyword: q.Get("keyword"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	msg := ""
	if len(rows) == 0 {
		msg = "no articles matched"
	}
	s.writeJSON(w, http.StatusOK, query.Success(map[string]any{"count": len(rows), "articles": rows}, msg))
}

func (s *Server) handleKeywords(w http.ResponseWriter, r *http.Request) {
	topicID, err := intParam(r, "topic")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if topicID == nil {
		s.writeError(w, &query.Error{Kind: query.KindInvalid, Message: "topic is required"})
		return
	}
	rep, err := s.svc.KeywordFrequency(r.Context(), r.URL.Query().Get("date"), *topicID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, query.Success(rep, ""))
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days")
	if err != nil {
		s.writeError(w, err)
		return
	}
	topicID, err := intParam(r, "topic")
	if err != nil {
		s.writeError(w, err)
		return
	}
	n := 7
	if days != nil {
		n = *days
	}
	trends, err := s.svc.Trends(r.Context(), n, topicID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, query.Success(trends, ""))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Status(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, query.Success(stats, ""))
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if s.opts.Runner == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, query.Envelope{Status: "error", Message: "runs are not enabled on this server"})
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.writeJSON(w, http.StatusConflict, query.Envelope{Status: "error", Message: "a run is already in progress"})
		return
	}
	s.running = true
	s.mu.Unlock()

	at := s.now()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}()
		defer func() {
			if v := recover(); v != nil {
				s.logger.Error("background run panicked", "panic", v)
			}
		}()
		res, err := s.opts.Runner.RunWithRetry(context.Background(), at, s.opts.Retries)
		if err != nil {
			s.logger.Error("background run failed", "error", err)
			return
		}
		s.logger.Info("background run finished", "run_id", res.RunID, "skipped", res.Skipped)
	}()

	s.writeJSON(w, http.StatusAccepted, query.Success(
		map[string]any{"started_at": at.Format(time.RFC3339)}, "run started"))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if _, err := database.ParseDay(date); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rep, err := s.composer.Compose(r.Context(), date)
	if err != nil {
		s.logger.Error("composing report", "date", date, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	body, err := report.RenderHTML(rep.Markdown)
	if err != nil {
		s.logger.Error("rendering report", "date", date, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := reportPage.Execute(w, map[string]any{
		"Date": date,
		"Body": template.HTML(body), //nolint: gosec
	}); err != nil {
		s.logger.Error("writing report page", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Pinger != nil {
		if err := s.opts.Pinger.Ping(r.Context()); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, query.Envelope{Status: "error", Message: err.Error()})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, query.Envelope{Status: "success", Message: "ok"})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := query.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.writeJSON(w, status, query.Failure(err))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

func intParam(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &query.Error{Kind: query.KindInvalid, Message: fmt.Sprintf("%s must be an integer, got %q", name, raw)}
	}
	return &n, nil
}

// Serve listens on 127.0.0.1:port until ctx is cancelled.
func Serve(ctx context.Context, srv *Server, port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	hs := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		srv.logger.Info("server listening", "url", "http://"+addr)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			return err
		}
		srv.Wait()
		return nil
	}
}
