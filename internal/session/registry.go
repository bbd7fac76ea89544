// Package session implements the per-connection state of the alert
// distribution engine: the registry of live sessions, each with its own
// dismissed-alert set and outbound channel, plus the idle-session sweeper.
//
// The registry exclusively owns Session records. All mutation paths (create,
// dismiss, touch, fan-out, sweep) are serialized behind one mutex so a
// session can never be mutated mid-sweep or mid-fanout. Delivery itself is
// decoupled from mutation: Channel implementations are expected to enqueue
// without blocking (the websocket layer drains a buffered queue per
// connection), so one slow client cannot stall the registry.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/dilduck/fallcentalert/internal/domain"
)

// Outbound event names, matching the wire protocol consumed by clients.
const (
	EventProductsUpdate = "products-update"
	EventSessionAlerts  = "session-alerts"
	EventNewAlert       = "new-alert"
	EventAlertClosed    = "alert-closed"
	EventCrawlStarted   = "crawling-started"
	EventCrawlFinished  = "crawling-finished"
	EventSettingsUpdate = "settings-update"
)

// Channel is the outbound delivery handle of one connected client.
//
// Send must not block: implementations enqueue the event and report an error
// only when the client can no longer accept events (queue full or connection
// gone). A Send failure affects only that session; the registry logs it and
// carries on delivering to others.
type Channel interface {
	Send(event string, payload any) error
}

// session is one live connection's state. The dismissed set only grows during
// the session's lifetime and is discarded in full when the session is
// destroyed; reconnecting with the same ID after destruction starts fresh.
type session struct {
	id           string
	ch           Channel
	dismissed    map[int64]struct{}
	createdAt    time.Time
	lastActivity time.Time
}

// Info is the externally visible summary of one session, exposed by the
// registry stats endpoint.
type Info struct {
	SessionID      string    `json:"session_id"`
	DismissedCount int       `json:"dismissed_count"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Stats summarizes the registry for observability. TotalAlerts is the size
// of the retained global alert log window, before any per-session filtering.
type Stats struct {
	ActiveSessions int    `json:"active_sessions"`
	TotalAlerts    int    `json:"total_alerts"`
	Sessions       []Info `json:"sessions"`
}

// alertSource is the read-only view of the global alert log the registry
// needs for join-time replay and visibility filtering.
type alertSource interface {
	Snapshot() []domain.Alert
}

// activeSessions gauges the number of live sessions in the registry.
var activeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "fallcentalert_active_sessions",
	Help: "Current number of live client sessions.",
})

func init() {
	prometheus.MustRegister(activeSessions)
}

// Registry tracks all live sessions. It is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session

	log    alertSource
	logger zerolog.Logger
	now    func() time.Time // test seam
}

// NewRegistry constructs an empty Registry reading alert history from log.
func NewRegistry(log alertSource, logger zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		log:      log,
		logger:   logger.With().Str("component", "session-registry").Logger(),
		now:      time.Now,
	}
}

// NewID generates a collision-resistant session identifier for clients that
// did not supply their own.
func NewID() string { return uuid.NewString() }

// CreateOrAttach registers sessionID with the given outbound channel. A blank
// sessionID gets a generated one. If the session is already live, only the
// channel is replaced (reconnect with the same ID); the dismissed set
// survives. If it is not live, a fresh session with an empty dismissed set is
// created: a previously destroyed session is never resurrected.
//
// In both cases the catalog-consistent alert backlog (log snapshot minus the
// session's dismissed set) is replayed on the channel, and the effective
// session ID is returned.
func (r *Registry) CreateOrAttach(sessionID string, ch Channel) string {
	if sessionID == "" {
		sessionID = NewID()
	}

	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		s.ch = ch
		s.lastActivity = r.now()
	} else {
		now := r.now()
		s = &session{
			id:           sessionID,
			ch:           ch,
			dismissed:    make(map[int64]struct{}),
			createdAt:    now,
			lastActivity: now,
		}
		r.sessions[sessionID] = s
		activeSessions.Set(float64(len(r.sessions)))
	}
	backlog := r.visibleLocked(s)
	r.mu.Unlock()

	if err := ch.Send(EventSessionAlerts, backlog); err != nil {
		r.logger.Warn().Str("session_id", sessionID).Err(err).Msg("backlog replay failed")
	}
	r.logger.Info().Str("session_id", sessionID).Bool("reattached", ok).Msg("session attached")
	return sessionID
}

// Dismiss hides alertID for sessionID only. It returns false when the session
// is not live. On success the alert ID is added to the session's dismissed
// set, activity is bumped, and a delivery confirmation is sent on that
// session's channel only.
func (r *Registry) Dismiss(sessionID string, alertID int64) bool {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn().Str("session_id", sessionID).Int64("alert_id", alertID).Msg("dismiss for unknown session")
		return false
	}
	s.dismissed[alertID] = struct{}{}
	s.lastActivity = r.now()
	ch := s.ch
	r.mu.Unlock()

	if err := ch.Send(EventAlertClosed, alertID); err != nil {
		r.logger.Warn().Str("session_id", sessionID).Int64("alert_id", alertID).Err(err).Msg("dismiss confirmation failed")
	}
	return true
}

// Touch bumps the session's last-activity timestamp. Unknown sessions are a
// no-op.
func (r *Registry) Touch(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		s.lastActivity = r.now()
	}
}

// VisibleAlerts returns the log snapshot filtered to exclude alerts the
// session has dismissed, oldest first. The second result is false when the
// session is not live; an empty slice with ok=true simply means everything
// was dismissed or the log is empty.
func (r *Registry) VisibleAlerts(sessionID string) ([]domain.Alert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return r.visibleLocked(s), true
}

// visibleLocked filters the current log snapshot through the session's
// dismissed set. Callers must hold r.mu.
func (r *Registry) visibleLocked(s *session) []domain.Alert {
	snap := r.log.Snapshot()
	out := make([]domain.Alert, 0, len(snap))
	for _, a := range snap {
		if _, dismissed := s.dismissed[a.ID]; !dismissed {
			out = append(out, a)
		}
	}
	return out
}

// Destroy removes the session record entirely. The dismissed set is discarded
// with it. Destroying an unknown session is a no-op.
func (r *Registry) Destroy(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return
	}
	delete(r.sessions, sessionID)
	activeSessions.Set(float64(len(r.sessions)))
	r.logger.Info().Str("session_id", sessionID).Msg("session destroyed")
}

// SweepIdle removes every session whose last activity is older than threshold
// relative to now, returning the number removed. Safe to call concurrently
// with normal operations.
func (r *Registry) SweepIdle(now time.Time, threshold time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if now.Sub(s.lastActivity) > threshold {
			delete(r.sessions, id)
			removed++
			r.logger.Info().Str("session_id", id).Msg("idle session swept")
		}
	}
	if removed > 0 {
		activeSessions.Set(float64(len(r.sessions)))
	}
	return removed
}

// FanOut delivers a freshly minted alert to every live session whose
// dismissed set does not contain it (always true for a brand-new ID, since
// the ID did not exist at any earlier dismissal). It returns the number of
// sessions the alert was handed to.
func (r *Registry) FanOut(a domain.Alert) int {
	r.mu.Lock()
	type target struct {
		id string
		ch Channel
	}
	targets := make([]target, 0, len(r.sessions))
	for id, s := range r.sessions {
		if _, dismissed := s.dismissed[a.ID]; dismissed {
			continue
		}
		targets = append(targets, target{id: id, ch: s.ch})
	}
	r.mu.Unlock()

	delivered := 0
	for _, t := range targets {
		if err := t.ch.Send(EventNewAlert, a); err != nil {
			r.logger.Warn().Str("session_id", t.id).Int64("alert_id", a.ID).Err(err).Msg("alert delivery failed")
			continue
		}
		delivered++
	}
	return delivered
}

// Broadcast sends an event to every live session. Individual delivery
// failures are logged and do not disrupt delivery to other sessions.
func (r *Registry) Broadcast(event string, payload any) {
	r.mu.Lock()
	type target struct {
		id string
		ch Channel
	}
	targets := make([]target, 0, len(r.sessions))
	for id, s := range r.sessions {
		targets = append(targets, target{id: id, ch: s.ch})
	}
	r.mu.Unlock()

	for _, t := range targets {
		if err := t.ch.Send(event, payload); err != nil {
			r.logger.Warn().Str("session_id", t.id).Str("event", event).Err(err).Msg("broadcast delivery failed")
		}
	}
}

// Has reports whether sessionID is live.
func (r *Registry) Has(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[sessionID]
	return ok
}

// Stats returns a snapshot of registry state for observability endpoints.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{
		ActiveSessions: len(r.sessions),
		TotalAlerts:    len(r.log.Snapshot()),
		Sessions:       make([]Info, 0, len(r.sessions)),
	}
	for id, s := range r.sessions {
		st.Sessions = append(st.Sessions, Info{
			SessionID:      id,
			DismissedCount: len(s.dismissed),
			CreatedAt:      s.createdAt,
			LastActivityAt: s.lastActivity,
		})
	}
	return st
}
