package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/internal/compiler"
	"github.com/arbiterhq/arbiter/internal/rules"
	"github.com/arbiterhq/arbiter/internal/service"
	"github.com/arbiterhq/arbiter/internal/transcript"
)

// evaluate runs one call against a policy's approved rule set and persists
// the result.
func (s *Server) evaluate(w http.ResponseWriter, r *http.Request) {
	var evt service.TranscriptReadyEvent
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err.Error())
		return
	}
	rec, err := s.service.Evaluate(r.Context(), &evt)
	if err != nil {
		s.writeTypedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type sandboxRequest struct {
	// Either a full inline rule set or a draft session id.
	RuleSet    *rules.RuleSet   `json:"ruleset,omitempty"`
	SessionID  string           `json:"session_id,omitempty"`
	Transcript transcript.Input `json:"transcript"`
}

// sandboxEvaluate previews a rule set against a sample transcript. Nothing
// is persisted and no events fire.
func (s *Server) sandboxEvaluate(w http.ResponseWriter, r *http.Request) {
	var req sandboxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err.Error())
		return
	}

	rs := req.RuleSet
	if rs == nil && req.SessionID != "" {
		session, sessErr := s.sessionByID(req.SessionID)
		if sessErr != nil {
			s.writeTypedError(w, sessErr)
			return
		}
		rs = session.Draft
	}
	if rs == nil {
		writeError(w, http.StatusBadRequest, "provide a ruleset or a session_id with a synthesized draft", nil)
		return
	}

	summary, err := s.harness.Run(rs, &req.Transcript)
	if err != nil {
		s.writeTypedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) sessionByID(id string) (*compiler.Session, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, compiler.ErrSessionNotFound
	}
	session, err := s.compiler.Get(parsed)
	if err != nil {
		return nil, err
	}
	if session.Draft == nil {
		return nil, fmt.Errorf("session %s has no synthesized draft", id)
	}
	return session, nil
}
