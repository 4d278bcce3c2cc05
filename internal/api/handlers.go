package api

import (
	"net/http"
	"strconv"
)

// SearchRequest is the tenant search body.
type SearchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
	WordMatch  bool   `json:"word_match"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.resolveTenant(w, r)
	if !ok {
		return
	}
	var req SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, rt.Search(r.Context(), req.Query, req.MaxResults, req.WordMatch))
}

// FetchRequest is the cached-document fetch body.
type FetchRequest struct {
	URI     string `json:"uri"`
	Context string `json:"context"`
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.resolveTenant(w, r)
	if !ok {
		return
	}
	var req FetchRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.URI == "" {
		writeError(w, http.StatusBadRequest, "uri is required")
		return
	}
	writeJSON(w, http.StatusOK, rt.Fetch(r.Context(), req.URI, req.Context))
}

func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.resolveTenant(w, r)
	if !ok {
		return
	}
	path := r.URL.Query().Get("path")
	depth := 0
	if raw := r.URL.Query().Get("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "depth must be an integer")
			return
		}
		depth = parsed
	}
	writeJSON(w, http.StatusOK, rt.BrowseTree(r.Context(), path, depth))
}

// SyncTriggerRequest forces aspects of the next sync cycle.
type SyncTriggerRequest struct {
	ForceCrawler  bool `json:"force_crawler"`
	ForceFullSync bool `json:"force_full_sync"`
}

func (s *Server) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.resolveTenant(w, r)
	if !ok {
		return
	}
	var req SyncTriggerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp := rt.TriggerSync(r.Context(), req.ForceCrawler, req.ForceFullSync)
	status := http.StatusAccepted
	if !resp.Success {
		status = http.StatusConflict
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.resolveTenant(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rt.SyncStatus(r.Context()))
}
