package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rivadaviam/AI.me/pkg/audit"
	"github.com/rivadaviam/AI.me/pkg/auth"
	"github.com/rivadaviam/AI.me/pkg/extract"
	"github.com/rivadaviam/AI.me/pkg/graph"
	"github.com/rivadaviam/AI.me/pkg/reason"
	"github.com/rivadaviam/AI.me/pkg/storage"
	"github.com/rivadaviam/AI.me/pkg/version"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Stats(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"uptime":   time.Since(s.started).String(),
		"requests": s.requestCount.Load(),
		"errors":   s.errorCount.Load(),
		"stats":    stats,
	})
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.db.Auth().Authenticate(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleRevoke invalidates the caller's own bearer token. withAuth has
// already validated it.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	s.db.Auth().Revoke(bearerToken(r))
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (s *Server) handleGraphs(w http.ResponseWriter, r *http.Request) {
	ids, err := s.db.Graphs(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if ids == nil {
		ids = []graph.GraphID{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"graphs": ids})
}

type publishRequest struct {
	Kind      string        `json:"kind"`
	Summary   string        `json:"summary,omitempty"`
	ExpiresAt time.Time     `json:"expires_at,omitzero"`
	Nodes     []*graph.Node `json:"nodes"`
	Edges     []*graph.Edge `json:"edges"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	graphID := graph.GraphID(r.PathValue("id"))

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	v, err := s.db.PublishVersion(r.Context(), storage.Publication{
		GraphID:   graphID,
		Kind:      version.Kind(req.Kind),
		Summary:   req.Summary,
		ExpiresAt: req.ExpiresAt,
		Nodes:     req.Nodes,
		Edges:     req.Edges,
	})
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	vs, err := s.db.Versions(r.Context(), graph.GraphID(r.PathValue("id")))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"versions": vs})
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	from, err1 := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
	to, err2 := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
	if err1 != nil || err2 != nil {
		s.writeError(w, http.StatusBadRequest, "from and to query parameters required")
		return
	}

	d, err := s.db.DiffVersions(r.Context(), graph.GraphID(r.PathValue("id")), from, to)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req reason.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GraphID == "" {
		s.writeError(w, http.StatusBadRequest, "graph_id required")
		return
	}

	d, err := s.db.Query(r.Context(), req)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		s.writeError(w, http.StatusBadRequest, "session_id query parameter required")
		return
	}

	events := s.db.Trace(sessionID)
	if events == nil {
		events = []*audit.Event{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := audit.Query{
		SessionID:     r.URL.Query().Get("session_id"),
		CorrelationID: r.URL.Query().Get("correlation_id"),
		UserID:        r.URL.Query().Get("user_id"),
		GraphID:       r.URL.Query().Get("graph_id"),
	}
	if kind := r.URL.Query().Get("kind"); kind != "" {
		q.Kinds = []audit.Kind{audit.Kind(kind)}
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = n
	}

	events := s.db.AuditEvents(q)
	if events == nil {
		events = []*audit.Event{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// writeStoreError maps domain errors onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, version.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, version.ErrExpired):
		s.writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, extract.ErrInvalidFilter),
		errors.Is(err, version.ErrInvalidKind),
		errors.Is(err, storage.ErrInvalidData):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrStoreClosed):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error":  message,
		"status": status,
	})
}
