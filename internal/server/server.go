package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"esgrag/internal/domain"
	"esgrag/internal/journal"
	"esgrag/internal/render"
	"esgrag/internal/service"
)

// Asker answers a single question.
type Asker interface {
	Execute(ctx context.Context, question string, opts service.Options) (domain.QueryResult, error)
}

// Recorder stores served queries.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) (string, error)
}

// Config configures the HTTP API. An empty APIKey disables authentication.
type Config struct {
	APIKey     string
	RatePerSec float64
	Burst      int
}

// Server is the HTTP API over the question answering service.
type Server struct {
	asker    Asker
	recorder Recorder
	apiKey   string
	limiter  *rate.Limiter
	mux      *http.ServeMux
}

// New creates a new Server. recorder may be nil.
func New(asker Asker, recorder Recorder, cfg Config) *Server {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	if cfg.APIKey == "" {
		log.Printf("warning: no API key configured, authentication disabled")
	}
	s := &Server{
		asker:    asker,
		recorder: recorder,
		apiKey:   cfg.APIKey,
		limiter:  rate.NewLimiter(limit, burst),
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server, middleware included.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.cors(s.authenticate(s.rateLimit(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /ask-fast", s.handleAsk(service.Options{}))
	s.mux.HandleFunc("POST /ask-accurate", s.handleAsk(service.Options{Accurate: true}))
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	domain.QueryResult
	AnswerHTML string `json:"answerHtml,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAsk(opts service.Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid JSON body"})
			return
		}

		res, err := s.asker.Execute(r.Context(), req.Question, opts)
		s.record(r.Context(), req.Question, opts.Mode(), res, err)
		if err != nil {
			if errors.Is(err, domain.ErrEmptyQuestion) {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Question is required"})
				return
			}
			log.Printf("[%s] %s failed: %v", requestID(r), r.URL.Path, err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{
				Error:   "Internal server error",
				Details: err.Error(),
				Stage:   domain.StageOf(err),
			})
			return
		}

		out := askResponse{QueryResult: res}
		if r.URL.Query().Get("format") == "html" {
			html, err := render.HTML(res.Answer)
			if err != nil {
				log.Printf("[%s] rendering answer: %v", requestID(r), err)
			} else {
				out.AnswerHTML = html
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (s *Server) record(ctx context.Context, question string, mode domain.Mode, res domain.QueryResult, err error) {
	if s.recorder == nil || errors.Is(err, domain.ErrEmptyQuestion) {
		return
	}
	e := journal.Entry{
		Question:  question,
		Mode:      string(mode),
		KpiTables: len(res.KpiTables),
		Sources:   len(res.Sources),
		Elapsed:   res.Time,
	}
	if err != nil {
		e.Stage = domain.StageOf(err)
		e.Error = err.Error()
	}
	if _, rerr := s.recorder.Record(context.WithoutCancel(ctx), e); rerr != nil {
		log.Printf("journal: %v", rerr)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writing response: %v", err)
	}
}

type ctxKey struct{}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		start := time.Now()
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
		log.Printf("[%s] %s %s %d %s", id, r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, x-api-key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" || r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("x-api-key")
		if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" && !s.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
