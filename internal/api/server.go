package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arbiterhq/arbiter/internal/compiler"
	"github.com/arbiterhq/arbiter/internal/engine"
	"github.com/arbiterhq/arbiter/internal/events"
	"github.com/arbiterhq/arbiter/internal/notify"
	"github.com/arbiterhq/arbiter/internal/rules"
	"github.com/arbiterhq/arbiter/internal/sandbox"
	"github.com/arbiterhq/arbiter/internal/service"
	"github.com/arbiterhq/arbiter/internal/store"
	"github.com/arbiterhq/arbiter/internal/transcript"
)

type Server struct {
	router   *chi.Mux
	port     int
	apiToken string

	compiler *compiler.Compiler
	service  *service.Service
	harness  *sandbox.Harness
	store    store.VersionStore
	notifier *notify.Notifier
	bus      service.Publisher
	logger   *slog.Logger
}

// Deps are the wired collaborators. Notifier and Bus may be nil.
type Deps struct {
	Compiler *compiler.Compiler
	Service  *service.Service
	Harness  *sandbox.Harness
	Store    store.VersionStore
	Notifier *notify.Notifier
	Bus      service.Publisher
	Logger   *slog.Logger
}

func NewServer(port int, apiToken string, deps Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		apiToken: apiToken,
		compiler: deps.Compiler,
		service:  deps.Service,
		harness:  deps.Harness,
		store:    deps.Store,
		notifier: deps.Notifier,
		bus:      deps.Bus,
		logger:   deps.Logger,
	}

	router.Get("/health", s.health)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(bearerAuth(apiToken))

		r.Route("/compile/sessions", func(r chi.Router) {
			r.Post("/", s.startSession)
			r.Get("/{sessionID}", s.getSession)
			r.Post("/{sessionID}/answers", s.answerClarification)
			r.Post("/{sessionID}/synthesize", s.synthesize)
			r.Post("/{sessionID}/approve", s.approve)
		})

		r.Route("/policies/{policyID}", func(r chi.Router) {
			r.Get("/rulesets", s.listVersions)
			r.Get("/rulesets/{version}", s.getVersion)
			r.Get("/active", s.getActive)
			r.Put("/active", s.setActive)
		})
		r.Get("/rulesets/hash/{hash}", s.getByHash)

		r.Post("/evaluate", s.evaluate)
		r.Post("/sandbox/evaluate", s.sandboxEvaluate)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// bearerAuth rejects requests without the configured token. An empty
// configured token disables auth (local development).
func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" {
				got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
				if got != token {
					writeError(w, http.StatusUnauthorized, "invalid or missing bearer token", nil)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, detail any) {
	body := map[string]any{"error": msg}
	if detail != nil {
		body["detail"] = detail
	}
	writeJSON(w, status, body)
}

// writeTypedError maps the error taxonomy onto status codes, keeping
// "your input was insufficient" (400) distinct from "state moved under you"
// (409) and "the candidate is invalid" (422).
func (s *Server) writeTypedError(w http.ResponseWriter, err error) {
	var (
		valErr    *rules.ValidationError
		confErr   *rules.ConflictError
		structErr *transcript.StructuralError
		versErr   *store.VersionConflictError
		frozenErr *store.FrozenError
		openErr   *compiler.UnansweredError
		synthErr  *compiler.SynthesisError
		inconsErr *engine.InconsistencyError
	)
	switch {
	// SynthesisError wraps the validation failure that caused it; match it
	// first so the raw candidate survives into the response.
	case errors.As(err, &synthErr):
		writeError(w, http.StatusUnprocessableEntity, synthErr.Error(), map[string]any{
			"raw_candidate": synthErr.RawCandidate,
			"cause":         synthErr.Cause.Error(),
		})
	case errors.As(err, &valErr):
		writeError(w, http.StatusUnprocessableEntity, "rule set failed validation", valErr.Issues)
	case errors.As(err, &confErr):
		writeError(w, http.StatusConflict, "rule set contains contradictory rules", confErr.Conflicts)
	case errors.As(err, &openErr):
		writeError(w, http.StatusConflict, "required clarifications are unanswered", openErr.ClarificationIDs)
	case errors.As(err, &versErr):
		writeError(w, http.StatusConflict, versErr.Error(), nil)
	case errors.As(err, &frozenErr):
		writeError(w, http.StatusConflict, frozenErr.Error(), nil)
	case errors.As(err, &structErr):
		writeError(w, http.StatusBadRequest, structErr.Error(), nil)
	case errors.As(err, &inconsErr):
		// Validator defect, not an input problem.
		writeError(w, http.StatusInternalServerError, inconsErr.Error(), nil)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, compiler.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), nil)
	}
}

// publishApproved emits the approval event and the review-channel note.
// Both are best-effort: the version is already frozen.
func (s *Server) publishApproved(r *http.Request, rs *rules.RuleSet) {
	if s.bus != nil {
		if err := s.bus.Publish(events.SubjectRuleSetApproved, map[string]any{
			"policy_id":    rs.PolicyID,
			"version":      rs.Version,
			"content_hash": rs.ContentHash,
			"approved_by":  rs.ApprovedBy,
		}); err != nil {
			s.logger.Warn("failed to publish ruleset approved", "error", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Approved(r.Context(), rs); err != nil {
			s.logger.Warn("failed to notify approval", "error", err)
		}
	}
}
