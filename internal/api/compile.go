package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type startSessionRequest struct {
	PolicyID      string   `json:"policy_id"`
	PolicyText    string   `json:"policy_text"`
	CategoryNotes string   `json:"category_notes,omitempty"`
	Categories    []string `json:"categories"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err.Error())
		return
	}
	session, err := s.compiler.StartSession(r.Context(), req.PolicyID, req.PolicyText, req.CategoryNotes, req.Categories)
	if err != nil {
		s.writeTypedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id", nil)
		return
	}
	session, err := s.compiler.Get(id)
	if err != nil {
		s.writeTypedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type answerRequest struct {
	ClarificationID string `json:"clarification_id"`
	Answer          string `json:"answer"`
}

func (s *Server) answerClarification(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id", nil)
		return
	}
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err.Error())
		return
	}
	session, err := s.compiler.Answer(id, req.ClarificationID, req.Answer)
	if err != nil {
		s.writeTypedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) synthesize(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id", nil)
		return
	}
	session, err := s.compiler.Synthesize(r.Context(), id)
	if err != nil {
		s.writeTypedError(w, err)
		return
	}

	if s.notifier != nil && session.Draft != nil {
		if err := s.notifier.DraftReady(r.Context(), session.Draft, session.ID.String()); err != nil {
			s.logger.Warn("failed to notify draft ready", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, session)
}

type approveRequest struct {
	ApprovedBy  string `json:"approved_by"`
	ContentHash string `json:"content_hash"`
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id", nil)
		return
	}
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err.Error())
		return
	}

	rs, err := s.compiler.Approve(r.Context(), id, req.ApprovedBy, req.ContentHash)
	if err != nil {
		s.writeTypedError(w, err)
		return
	}
	s.publishApproved(r, rs)
	writeJSON(w, http.StatusOK, rs)
}
