package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/lure/internal/agent"
	"github.com/MikeSquared-Agency/lure/internal/engine"
	"github.com/MikeSquared-Agency/lure/internal/report"
	"github.com/MikeSquared-Agency/lure/internal/session"
	"github.com/MikeSquared-Agency/lure/internal/stage"
)

const maxBodyBytes = 64 << 10

// Engine is the conversation core behind the HTTP surface.
type Engine interface {
	HandleTurn(ctx context.Context, in engine.Incoming) (string, error)
	Session(ctx context.Context, id string) (*session.Session, error)
	Report(ctx context.Context, id string) ([]byte, error)
	Terminate(ctx context.Context, id, reason string) error
}

type Server struct {
	router  *chi.Mux
	port    int
	engine  Engine
	logger  *slog.Logger
	metrics http.Handler
}

// NewServer builds the router. metrics may be nil.
func NewServer(port int, apiKey string, eng Engine, metrics http.Handler, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:  router,
		port:    port,
		engine:  eng,
		logger:  logger,
		metrics: metrics,
	}

	router.Get("/health", s.health)
	if metrics != nil {
		router.Handle("/metrics", metrics)
	}

	router.Group(func(r chi.Router) {
		r.Use(APIKeyMiddleware(apiKey))
		r.Post("/honeypot", s.honeypot)
		r.Get("/api/v1/sessions/{id}", s.getSession)
		r.Get("/api/v1/sessions/{id}/report", s.getReport)
		r.Post("/api/v1/sessions/{id}/terminate", s.terminate)
	})

	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Addr() string { return fmt.Sprintf(":%d", s.port) }

// APIKeyMiddleware rejects requests whose x-api-key header does not match key.
func APIKeyMiddleware(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("x-api-key")
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// honeypotResponse is the whole reply contract: consumers reject any other
// field.
type honeypotResponse struct {
	Status string `json:"status"`
	Reply  string `json:"reply"`
}

func (s *Server) honeypot(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req honeypotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	in, err := req.incoming()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := s.engine.HandleTurn(r.Context(), in)
	if errors.Is(err, engine.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		// the caller always gets a reply; the turn is lost but the
		// conversation stays alive
		s.logger.Error("turn failed, sending fallback reply", "session_id", in.SessionID, "error", err)
		reply = agent.Fallback(agent.GoalKeepAlive, 0)
	}

	writeJSON(w, http.StatusOK, honeypotResponse{Status: "success", Reply: reply})
}

type sessionView struct {
	SessionID             string                 `json:"sessionId"`
	Stage                 stage.Stage            `json:"stage"`
	TurnCount             int                    `json:"turnCount"`
	ScamDetected          bool                   `json:"scamDetected"`
	ConfidenceScore       float64                `json:"confidenceScore"`
	ScamType              stage.ScamType         `json:"scamType,omitempty"`
	Concluded             bool                   `json:"concluded"`
	ConclusionReason      string                 `json:"conclusionReason,omitempty"`
	Tactics               []stage.Tactic         `json:"tactics"`
	Transitions           []stage.Transition     `json:"transitions"`
	Delivery              session.DeliveryStatus `json:"delivery,omitempty"`
	DeliveryAttempts      int                    `json:"deliveryAttempts"`
	ExtractedIntelligence report.Intelligence    `json:"extractedIntelligence"`
	History               []session.Turn         `json:"history"`
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.engine.Session(r.Context(), id)
	if err != nil {
		s.writeLookupError(w, id, err)
		return
	}

	view := sessionView{
		SessionID:             sess.ID,
		Stage:                 sess.Stage,
		TurnCount:             sess.TurnCount,
		ScamDetected:          sess.ScamDetected,
		ConfidenceScore:       sess.Confidence,
		ScamType:              sess.ScamType,
		Concluded:             sess.Concluded,
		ConclusionReason:      sess.ConclusionReason,
		Tactics:               sess.Tactics,
		Transitions:           sess.Transitions,
		Delivery:              sess.Delivery,
		DeliveryAttempts:      sess.DeliveryAttempts,
		ExtractedIntelligence: report.Build(sess).ExtractedIntelligence,
		History:               sess.History,
	}
	if view.Tactics == nil {
		view.Tactics = []stage.Tactic{}
	}
	if view.Transitions == nil {
		view.Transitions = []stage.Transition{}
	}
	if view.History == nil {
		view.History = []session.Turn{}
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := s.engine.Report(r.Context(), id)
	if err != nil {
		s.writeLookupError(w, id, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

type terminateRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) terminate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req terminateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}

	if err := s.engine.Terminate(r.Context(), id, req.Reason); err != nil {
		s.writeLookupError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "terminated", "sessionId": id})
}

func (s *Server) writeLookupError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, engine.ErrNotConcluded):
		writeError(w, http.StatusConflict, "session not concluded")
	default:
		s.logger.Error("session request failed", "session_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"status": "error", "message": msg})
}
