package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// The ruleset endpoints are the audit/version API: any historical version is
// retrievable by number or content hash, so a past evaluation can be
// reproduced against the exact snapshot that produced it.

func (s *Server) listVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.store.ListVersions(r.Context(), chi.URLParam(r, "policyID"))
	if err != nil {
		s.writeTypedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"policy_id": chi.URLParam(r, "policyID"),
		"versions":  versions,
	})
}

func (s *Server) getVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		writeError(w, http.StatusBadRequest, "invalid version number", nil)
		return
	}
	rs, err := s.store.GetByVersion(r.Context(), chi.URLParam(r, "policyID"), version)
	if err != nil {
		s.writeTypedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) getByHash(w http.ResponseWriter, r *http.Request) {
	rs, err := s.store.GetByHash(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		s.writeTypedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) getActive(w http.ResponseWriter, r *http.Request) {
	rs, err := s.store.Active(r.Context(), chi.URLParam(r, "policyID"))
	if err != nil {
		s.writeTypedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

type setActiveRequest struct {
	Version         int `json:"version"`
	ExpectedCurrent int `json:"expected_current"`
}

func (s *Server) setActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err.Error())
		return
	}
	policyID := chi.URLParam(r, "policyID")
	if err := s.store.SetActive(r.Context(), policyID, req.Version, req.ExpectedCurrent); err != nil {
		s.writeTypedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"policy_id":      policyID,
		"active_version": req.Version,
	})
}
