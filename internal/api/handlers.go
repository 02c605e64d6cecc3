package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/wesm/livefind/internal/livesearch"
	"github.com/wesm/livefind/internal/scheduler"
)

// StatsResponse represents index statistics.
type StatsResponse struct {
	TotalItems     int64 `json:"total_items"`
	Files          int64 `json:"files"`
	Folders        int64 `json:"folders"`
	MailMessages   int64 `json:"mail_messages"`
	Roots          int64 `json:"roots"`
	ReuseScopes    int64 `json:"reuse_scopes"`
	OpenSessions   int   `json:"open_sessions"`
	DatabaseSize   int64 `json:"database_size_bytes"`
	FullTextSearch bool  `json:"full_text_search"`
}

// SessionResponse is returned when a session is created.
type SessionResponse struct {
	ID string `json:"id"`
}

// QueryRequest submits search text to a session.
type QueryRequest struct {
	Text string `json:"text"`
	livesearch.Options
}

// QueryResponse acknowledges a submission.
type QueryResponse struct {
	Cookie uint64 `json:"cookie"`
}

// EventResponse is one publication, as returned by the results endpoint
// and sent as SSE data.
type EventResponse struct {
	Kind      string                    `json:"kind"`
	Cookie    uint64                    `json:"cookie"`
	Text      string                    `json:"text,omitempty"`
	Records   []livesearch.ResultRecord `json:"records,omitempty"`
	Truncated bool                      `json:"truncated,omitempty"`
	Error     string                    `json:"error,omitempty"`
}

// IndexRequest asks for an immediate re-index of a scheduled root.
type IndexRequest struct {
	Root string `json:"root"`
}

// SchedulerStatusResponse represents scheduler status.
type SchedulerStatusResponse struct {
	Running bool                   `json:"running"`
	Roots   []scheduler.RootStatus `json:"roots"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

func toEventResponse(ev livesearch.Event) EventResponse {
	out := EventResponse{Kind: ev.Kind.String(), Cookie: ev.Cookie}
	switch ev.Kind {
	case livesearch.EventResults:
		if ev.Results != nil {
			out.Text = ev.Results.Text
			out.Records = ev.Results.Records
			out.Truncated = ev.Results.Truncated
		}
	case livesearch.EventFailed:
		if ev.Err != nil {
			out.Error = ev.Err.Error()
		}
	}
	return out
}

// handleStats returns index statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats()
	if err != nil {
		s.logger.Error("failed to get stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to retrieve statistics")
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		TotalItems:     stats.ItemCount,
		Files:          stats.FileCount,
		Folders:        stats.FolderCount,
		MailMessages:   stats.MailCount,
		Roots:          stats.RootCount,
		ReuseScopes:    stats.ScopeCount,
		OpenSessions:   s.sessions.count(),
		DatabaseSize:   stats.DatabaseSize,
		FullTextSearch: stats.FTSEnabled,
	})
}

// handleCreateSession opens a live-search session.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.create()
	if errors.Is(err, errTooManySessions) {
		writeError(w, http.StatusServiceUnavailable, "too_many_sessions", err.Error())
		return
	}
	if err != nil {
		s.logger.Error("failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to create session")
		return
	}
	s.logger.Debug("session created", "session", sess.id)
	writeJSON(w, http.StatusCreated, SessionResponse{ID: sess.id})
}

// lookupSession resolves the {id} URL parameter, writing a 404 when the
// session does not exist.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*session, bool) {
	sess, err := s.sessions.get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "Session not found")
		return nil, false
	}
	return sess, true
}

// handleSessionQuery submits text and toggles; results arrive on the
// event stream or the results endpoint.
func (s *Server) handleSessionQuery(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req QueryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Request body must be a JSON query")
		return
	}

	cookie := sess.coord.Submit(req.Text, req.Options)
	writeJSON(w, http.StatusAccepted, QueryResponse{Cookie: cookie})
}

// handleSessionResults returns the newest publication. With ?wait=true it
// first waits for the session to go idle.
func (s *Server) handleSessionResults(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	if wait := r.URL.Query().Get("wait"); wait == "true" || wait == "1" {
		if err := sess.coord.WaitIdle(r.Context()); err != nil {
			writeError(w, http.StatusGatewayTimeout, "timeout", "Search did not finish in time")
			return
		}
	}

	ev := sess.lastEvent()
	if ev.Cookie == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(ev))
}

// handleSessionEvents streams publications as server-sent events until the
// client disconnects or the session is closed.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	if !sess.claimStream() {
		writeError(w, http.StatusConflict, "conflict", errStreamActive.Error())
		return
	}
	defer sess.releaseStream()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Warn("event stream not flushable", "session", sess.id, "error", err)
		return
	}

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case ev := <-sess.events.Events():
			if err := writeSSE(w, ev); err != nil {
				s.logger.Debug("event stream write failed", "session", sess.id, "error", err)
				return
			}
			sess.touch(time.Now())
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// writeSSE writes one event in text/event-stream framing.
func writeSSE(w http.ResponseWriter, ev livesearch.Event) error {
	data, err := json.Marshal(toEventResponse(ev))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Cookie, ev.Kind, data)
	return err
}

// handleCloseSession closes a session and its coordinator.
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.close(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, "not_found", "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSchedulerStatus returns the re-index scheduler status.
func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusOK, SchedulerStatusResponse{Roots: []scheduler.RootStatus{}})
		return
	}
	writeJSON(w, http.StatusOK, SchedulerStatusResponse{
		Running: s.scheduler.IsRunning(),
		Roots:   s.scheduler.Status(),
	})
}

// handleTriggerIndex starts an immediate re-index of a scheduled root.
func (s *Server) handleTriggerIndex(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil || strings.TrimSpace(req.Root) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "Request body must name a root")
		return
	}
	if s.scheduler == nil || !s.scheduler.IsScheduled(req.Root) {
		writeError(w, http.StatusNotFound, "not_found", "Root is not scheduled for indexing")
		return
	}
	if err := s.scheduler.TriggerIndex(req.Root); err != nil {
		writeError(w, http.StatusConflict, "conflict", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":  "accepted",
		"message": "Re-index started for " + req.Root,
	})
}
