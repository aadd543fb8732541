package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/pacetech/docflow/internal/docflow/db"
	"github.com/pacetech/docflow/internal/docflow/schema"
	docsync "github.com/pacetech/docflow/internal/docflow/sync"
)

var (
	_ docsync.Indicator      = (*Server)(nil)
	_ docsync.ResultObserver = (*Server)(nil)
)

// FormSummary is one row of GET /api/forms. Content and images are left out.
type FormSummary struct {
	LocalID      int64         `json:"localId"`
	FormType     string        `json:"formType"`
	Title        string        `json:"title"`
	Status       schema.Status `json:"status"`
	LastModified time.Time     `json:"lastModified"`
	SyncAttempts int           `json:"syncAttempts"`
	LastError    string        `json:"lastError,omitempty"`
	RemoteID     string        `json:"remoteId,omitempty"`
	DocumentURL  string        `json:"documentUrl,omitempty"`
}

// SyncRequestResponse is the body of POST /api/sync.
type SyncRequestResponse struct {
	Queued bool `json:"queued"`
}

// State returns the last indicator state.
func (s *Server) State() docsync.IndicatorState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// SetIndicator implements sync.Indicator.
func (s *Server) SetIndicator(state docsync.IndicatorState) {
	if !state.Valid() {
		s.logger.Warn().Str("state", string(state)).Msg("ignoring unknown indicator state")
		return
	}

	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()

	s.Broadcast(s.indicatorMessage(state))
}

// SyncComplete implements sync.ResultObserver. The pass result is followed by
// fresh stats.
func (s *Server) SyncComplete(res docsync.Result) {
	data, err := json.Marshal(res)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal sync result")
		return
	}
	s.Broadcast(Message{Type: MessageTypeSyncComplete, Timestamp: time.Now(), Data: data})

	if msg := s.statsMessage(); msg.Type != "" {
		s.Broadcast(msg)
	}
}

func (s *Server) indicatorMessage(state docsync.IndicatorState) Message {
	data, _ := json.Marshal(IndicatorData{State: state})
	return Message{Type: MessageTypeIndicator, Timestamp: time.Now(), Data: data}
}

// statsMessage returns a zero Message when stats are unavailable.
func (s *Server) statsMessage() Message {
	if s.source == nil {
		return Message{}
	}

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	stats, err := s.source.GetStats(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read stats")
		return Message{}
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return Message{}
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: data}
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"indicator": s.State(),
		"clients":   s.ClientCount(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}

	stats, err := s.source.GetStats(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("stats query failed")
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleForms lists records. Query: status, formType, limit.
func (s *Server) handleForms(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}

	q := r.URL.Query()
	filter := db.ListFilter{
		Status:   schema.Status(q.Get("status")),
		FormType: q.Get("formType"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", filter.Status))
		return
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	recs, err := s.source.List(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("list query failed")
		writeError(w, http.StatusInternalServerError, "failed to list forms")
		return
	}

	out := make([]FormSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, s.summarize(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) summarize(rec *schema.Record) FormSummary {
	title := rec.FormType
	if cfg, ok := s.formTypes.Get(rec.FormType); ok {
		title = cfg.Title(rec)
	}
	return FormSummary{
		LocalID:      rec.LocalID,
		FormType:     rec.FormType,
		Title:        title,
		Status:       rec.Status,
		LastModified: rec.LastModified,
		SyncAttempts: rec.SyncAttempts,
		LastError:    rec.LastError,
		RemoteID:     rec.RemoteID,
		DocumentURL:  rec.DocumentURL,
	}
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.requester == nil {
		writeError(w, http.StatusServiceUnavailable, "sync not available")
		return
	}

	queued := s.requester.RequestSync("dashboard")
	writeJSON(w, http.StatusAccepted, SyncRequestResponse{Queued: queued})
}

// handleRoot returns basic server information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>DocFlow</title>
</head>
<body>
    <h1>DocFlow Sync Dashboard</h1>
    <p>Indicator: <strong>%s</strong></p>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Stats: <a href="/api/stats">/api/stats</a> &middot; Forms: <a href="/api/forms">/api/forms</a></p>
</body>
</html>`, s.State(), r.Host)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
