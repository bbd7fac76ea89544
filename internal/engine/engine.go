// Package engine implements the distribution engine: it orchestrates crawl
// runs, catalog ingestion, alert classification, appends to the global alert
// log, and fan-out of new alerts to every live session. It also owns the
// runtime settings and exposes catalog statistics.
//
// Concurrency model: one mutex serializes every state-mutating pass
// (ingest → classify → append → fan-out, session attach, settings update,
// ban), so all sessions observe each ingestion batch as a single atomic
// update and a joining session can never replay half a batch. Fetching from
// the crawl source happens outside the mutex: concurrent fetches are allowed
// and their merges serialize, with catalog dedup making the overlap harmless.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/dilduck/fallcentalert/internal/alert"
	"github.com/dilduck/fallcentalert/internal/catalog"
	"github.com/dilduck/fallcentalert/internal/domain"
	"github.com/dilduck/fallcentalert/internal/session"
)

// Source supplies raw product records on demand. Implementations may fail
// (network or parse errors); the engine treats a failed fetch as zero new
// products and reports the error to all sessions without crashing.
type Source interface {
	Fetch(ctx context.Context) ([]domain.Product, error)
}

// Persister receives the engine's durable state. Persistence failures are
// best-effort: logged, never fatal. The alert log and session registry are
// intentionally not part of this contract.
type Persister interface {
	SaveProducts(ctx context.Context, products []domain.Product) error
	SaveSettings(ctx context.Context, settings domain.Settings) error
}

// State is the full-state snapshot sent to a session on init and broadcast
// after every catalog change.
type State struct {
	Products []domain.Product `json:"products"`
	Settings domain.Settings  `json:"settings"`
	Stats    domain.Stats     `json:"stats"`
}

// Engine wires the catalog, classifier, alert log, and session registry
// together. It is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	settings domain.Settings

	catalog  *catalog.Store
	log      *alert.Log
	registry *session.Registry
	source   Source
	store    Persister // may be nil (no persistence collaborator)

	running atomic.Int32 // crawl runs currently in flight
	logger  zerolog.Logger
	now     func() time.Time // test seam
}

// New constructs an Engine. store may be nil when no persistence collaborator
// is configured (e.g. in tests).
func New(cat *catalog.Store, log *alert.Log, reg *session.Registry, src Source, store Persister, settings domain.Settings, logger zerolog.Logger) *Engine {
	return &Engine{
		settings: settings,
		catalog:  cat,
		log:      log,
		registry: reg,
		source:   src,
		store:    store,
		logger:   logger.With().Str("component", "engine").Logger(),
		now:      time.Now,
	}
}

// Busy reports whether at least one crawl run is in flight. Schedulers use
// this to skip overlapping scheduled runs; manual triggers ignore it.
func (e *Engine) Busy() bool { return e.running.Load() > 0 }

// Settings returns a copy of the current runtime settings.
func (e *Engine) Settings() domain.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settingsLocked()
}

func (e *Engine) settingsLocked() domain.Settings {
	s := e.settings
	s.Keywords = append([]string(nil), e.settings.Keywords...)
	return s
}

// UpdateSettings applies a partial settings update, persists the result
// (best-effort), broadcasts settings-update to all sessions, and returns the
// merged settings.
func (e *Engine) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) domain.Settings {
	e.mu.Lock()
	e.settings = patch.Apply(e.settings)
	merged := e.settingsLocked()
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.SaveSettings(ctx, merged); err != nil {
			e.logger.Error().Err(err).Msg("settings persistence failed")
		}
	}
	e.registry.Broadcast(session.EventSettingsUpdate, merged)
	e.logger.Info().Msg("settings updated")
	return merged
}

// IngestAndAlert runs one ingestion batch: dedup into the catalog, classify
// each newly added product, mint alerts in the global log, and fan each alert
// out to every live session that has not dismissed it. The whole pass holds
// the engine mutex, so sessions observe the batch atomically and alerts reach
// each session in increasing ID order.
//
// It returns the newly added products and the generated alerts.
func (e *Engine) IngestAndAlert(raw []domain.Product) ([]domain.Product, []domain.Alert) {
	e.mu.Lock()
	defer e.mu.Unlock()

	added := e.catalog.Ingest(raw)
	catalogSize.Set(float64(e.catalog.Len()))

	var alerts []domain.Alert
	for i, p := range added {
		category, message, ok := alert.Classify(p, e.settings)
		if !ok {
			continue
		}
		// The classified category supersedes the crawled shelf label, so
		// per-category catalog stats reflect classification.
		e.catalog.SetCategory(p.ID, category)
		added[i].Category = category
		a := e.log.Append(category, p.Title, message, p.Discount, p.Price, p.URL, p.ID)
		alertsGenerated.WithLabelValues(string(category)).Inc()
		delivered := e.registry.FanOut(a)
		e.logger.Debug().
			Int64("alert_id", a.ID).
			Str("category", string(category)).
			Int("delivered", delivered).
			Msg("alert fanned out")
		alerts = append(alerts, a)
	}
	return added, alerts
}

// Crawl performs one full crawl run: fetch from the source, ingest and alert,
// then broadcast progress and the refreshed state to all sessions. The fetch
// itself runs outside the engine mutex.
//
// A fetch failure is recovered locally: it is broadcast as a
// crawling-finished event carrying the error and returned in the result,
// never propagated as a crash.
func (e *Engine) Crawl(ctx context.Context, manual bool) domain.CrawlResult {
	e.running.Add(1)
	defer e.running.Add(-1)

	e.registry.Broadcast(session.EventCrawlStarted, struct{}{})
	e.logger.Info().Bool("manual", manual).Msg("crawl started")

	raw, err := e.source.Fetch(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("crawl fetch failed")
		crawlRuns.WithLabelValues("error").Inc()
		res := domain.CrawlResult{Error: err.Error()}
		e.registry.Broadcast(session.EventCrawlFinished, res)
		return res
	}

	added, alerts := e.IngestAndAlert(raw)
	res := domain.CrawlResult{
		NewProducts: added,
		Alerts:      alerts,
		Total:       len(raw),
	}
	crawlRuns.WithLabelValues("ok").Inc()

	e.registry.Broadcast(session.EventCrawlFinished, res)
	e.registry.Broadcast(session.EventProductsUpdate, e.State())
	e.persistProducts(ctx)

	e.logger.Info().
		Int("total", len(raw)).
		Int("new_products", len(added)).
		Int("alerts", len(alerts)).
		Msg("crawl finished")
	return res
}

// SkipCrawl records a scheduled run that was skipped because another run was
// already in flight.
func (e *Engine) SkipCrawl() {
	crawlRuns.WithLabelValues("skipped").Inc()
	e.logger.Debug().Msg("scheduled crawl skipped, run already in flight")
}

// BanProduct removes a product from the catalog and broadcasts the refreshed
// state. Alerts already referencing the product stay in the log and remain
// visible to sessions that have not dismissed them: banning never recalls
// alerts.
func (e *Engine) BanProduct(ctx context.Context, productID string) {
	e.mu.Lock()
	e.catalog.Remove(productID)
	catalogSize.Set(float64(e.catalog.Len()))
	e.mu.Unlock()

	e.logger.Info().Str("product_id", productID).Msg("product banned")
	e.registry.Broadcast(session.EventProductsUpdate, e.State())
	e.persistProducts(ctx)
}

// AttachSession registers (or reattaches) a session under the engine mutex so
// that its backlog replay is consistent with batch boundaries, then sends the
// full-state snapshot on the new channel. It returns the effective session ID.
func (e *Engine) AttachSession(sessionID string, ch session.Channel) string {
	e.mu.Lock()
	id := e.registry.CreateOrAttach(sessionID, ch)
	st := e.stateLocked()
	e.mu.Unlock()

	if err := ch.Send(session.EventProductsUpdate, st); err != nil {
		e.logger.Warn().Str("session_id", id).Err(err).Msg("initial state delivery failed")
	}
	return id
}

// DismissAlert hides alertID for the given session only, confirming on that
// session's channel. It returns false when the session is not live; the
// failure never surfaces to other sessions.
func (e *Engine) DismissAlert(sessionID string, alertID int64) bool {
	return e.registry.Dismiss(sessionID, alertID)
}

// MarkSeen records a client-side "seen" action. The catalog is untouched;
// the action only refreshes the session's activity.
func (e *Engine) MarkSeen(sessionID, productID string) {
	e.registry.Touch(sessionID)
	e.logger.Debug().Str("session_id", sessionID).Str("product_id", productID).Msg("product marked seen")
}

// Touch refreshes the session's activity timestamp.
func (e *Engine) Touch(sessionID string) {
	e.registry.Touch(sessionID)
}

// DestroySession removes the session on explicit disconnect.
func (e *Engine) DestroySession(sessionID string) {
	e.registry.Destroy(sessionID)
}

// State returns the full-state snapshot: all products, current settings, and
// catalog statistics.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() State {
	return State{
		Products: e.catalog.All(),
		Settings: e.settingsLocked(),
		Stats:    e.catalog.Stats(e.now()),
	}
}

// Stats returns current catalog statistics.
func (e *Engine) Stats() domain.Stats {
	return e.catalog.Stats(e.now())
}

// CatalogVersion returns the catalog's mutation counter, used by the HTTP
// layer for weak ETags on product listings.
func (e *Engine) CatalogVersion() int64 {
	return e.catalog.Version()
}

// persistProducts saves the current catalog through the persistence
// collaborator, best-effort.
func (e *Engine) persistProducts(ctx context.Context) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveProducts(ctx, e.catalog.All()); err != nil {
		e.logger.Error().Err(err).Msg("catalog persistence failed")
	}
}
