package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dilduck/fallcentalert/internal/domain"
	"github.com/dilduck/fallcentalert/internal/session"
)

// Inbound event names, matching the wire protocol clients send.
const (
	eventSessionInit    = "session-init"
	eventManualCrawl    = "manual-crawl"
	eventMarkAsSeen     = "mark-as-seen"
	eventBanProduct     = "ban-product"
	eventCloseAlert     = "close-alert"
	eventUpdateSettings = "update-settings"

	// eventSessionReady acknowledges session-init and carries the effective
	// session ID (needed when the server generated one).
	eventSessionReady = "session-ready"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Engine is the subset of the distribution engine driven by client actions.
type Engine interface {
	AttachSession(sessionID string, ch session.Channel) string
	DestroySession(sessionID string)
	DismissAlert(sessionID string, alertID int64) bool
	MarkSeen(sessionID, productID string)
	BanProduct(ctx context.Context, productID string)
	UpdateSettings(ctx context.Context, patch domain.SettingsPatch) domain.Settings
	Touch(sessionID string)
	Crawl(ctx context.Context, manual bool) domain.CrawlResult
}

// Handler upgrades HTTP requests to websocket connections and runs the event
// protocol against the engine.
type Handler struct {
	eng      Engine
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler constructs a websocket Handler. Origin checking is delegated to
// the HTTP layer's CORS posture.
func NewHandler(eng Engine, logger zerolog.Logger) *Handler {
	return &Handler{
		eng: eng,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.With().Str("component", "ws").Logger(),
	}
}

// Serve is the Gin handler for GET /ws.
func (h *Handler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote an HTTP error to the client.
		h.logger.Warn().Err(err).Str("remote_ip", c.ClientIP()).Msg("websocket upgrade failed")
		return
	}

	ch := newChannel()
	go h.writePump(conn, ch)
	h.readPump(c.Request.Context(), conn, ch)
}

// writePump drains the channel's outbound queue onto the connection and keeps
// the connection alive with pings. It exits when the queue is closed or a
// write fails.
func (h *Handler) writePump(conn *websocket.Conn, ch *channel) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case env, ok := <-ch.out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(env); err != nil {
				h.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// inbound payloads

type sessionInitPayload struct {
	SessionID string `json:"session_id"`
}

type productPayload struct {
	ProductID string `json:"product_id"`
}

type alertPayload struct {
	AlertID int64 `json:"alert_id"`
}

// readPump decodes inbound envelopes and dispatches them to the engine until
// the connection drops, then destroys the session. A malformed message is
// logged and skipped; it never terminates the session.
func (h *Handler) readPump(ctx context.Context, conn *websocket.Conn, ch *channel) {
	var sessionID string
	defer func() {
		ch.close()
		_ = conn.Close()
		if sessionID != "" {
			h.eng.DestroySession(sessionID)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("session_id", sessionID).Msg("websocket read failed")
			}
			return
		}

		if env.Event != eventSessionInit && sessionID == "" {
			h.logger.Warn().Str("event", env.Event).Msg("event before session-init ignored")
			continue
		}

		switch env.Event {
		case eventSessionInit:
			var p sessionInitPayload
			h.decode(env.Data, &p)
			sessionID = h.eng.AttachSession(p.SessionID, ch)
			if err := ch.Send(eventSessionReady, sessionInitPayload{SessionID: sessionID}); err != nil {
				h.logger.Warn().Str("session_id", sessionID).Err(err).Msg("session ack failed")
			}

		case eventManualCrawl:
			h.eng.Touch(sessionID)
			// Manual triggers are exempt from the scheduler's busy check.
			go h.eng.Crawl(context.WithoutCancel(ctx), true)

		case eventMarkAsSeen:
			var p productPayload
			if h.decode(env.Data, &p) {
				h.eng.MarkSeen(sessionID, p.ProductID)
			}

		case eventBanProduct:
			var p productPayload
			if h.decode(env.Data, &p) {
				h.eng.Touch(sessionID)
				h.eng.BanProduct(ctx, p.ProductID)
			}

		case eventCloseAlert:
			var p alertPayload
			if h.decode(env.Data, &p) {
				if !h.eng.DismissAlert(sessionID, p.AlertID) {
					h.logger.Warn().Str("session_id", sessionID).Int64("alert_id", p.AlertID).Msg("dismiss failed")
				}
			}

		case eventUpdateSettings:
			var patch domain.SettingsPatch
			if h.decode(env.Data, &patch) {
				h.eng.Touch(sessionID)
				h.eng.UpdateSettings(ctx, patch)
			}

		default:
			h.logger.Warn().Str("event", env.Event).Str("session_id", sessionID).Msg("unknown event ignored")
		}
	}
}

// decode unmarshals an event payload, logging and reporting failure.
func (h *Handler) decode(data json.RawMessage, v any) bool {
	if len(data) == 0 {
		return true
	}
	if err := json.Unmarshal(data, v); err != nil {
		h.logger.Warn().Err(err).Msg("malformed event payload ignored")
		return false
	}
	return true
}
