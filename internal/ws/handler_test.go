package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dilduck/fallcentalert/internal/domain"
	"github.com/dilduck/fallcentalert/internal/session"
)

// ----- Fake engine -----

type fakeEngine struct {
	mu sync.Mutex

	attachID     string
	attachedCh   session.Channel
	destroyedID  string
	dismissedID  int64
	seenProduct  string
	bannedID     string
	patched      *domain.SettingsPatch
	crawlManual  bool
	crawls       int
	touches      int
	dismissOK    bool
}

func (f *fakeEngine) AttachSession(sessionID string, ch session.Channel) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sessionID == "" {
		sessionID = "generated-id"
	}
	f.attachID = sessionID
	f.attachedCh = ch
	return sessionID
}

func (f *fakeEngine) DestroySession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyedID = sessionID
}

func (f *fakeEngine) DismissAlert(sessionID string, alertID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissedID = alertID
	return f.dismissOK
}

func (f *fakeEngine) MarkSeen(sessionID, productID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seenProduct = productID
}

func (f *fakeEngine) BanProduct(ctx context.Context, productID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bannedID = productID
}

func (f *fakeEngine) UpdateSettings(ctx context.Context, patch domain.SettingsPatch) domain.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patched = &patch
	return domain.DefaultSettings()
}

func (f *fakeEngine) Touch(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touches++
}

func (f *fakeEngine) Crawl(ctx context.Context, manual bool) domain.CrawlResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crawls++
	f.crawlManual = manual
	return domain.CrawlResult{}
}

// ----- Harness -----

func dial(t *testing.T, eng Engine) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(eng, zerolog.Nop())
	r.GET("/ws", h.Serve)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	if err := conn.WriteJSON(Envelope{Event: event, Data: data}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// ----- Tests -----

func TestSessionInit_AcksWithEffectiveID(t *testing.T) {
	eng := &fakeEngine{}
	conn := dial(t, eng)

	send(t, conn, eventSessionInit, map[string]string{"session_id": ""})

	env := readEvent(t, conn)
	if env.Event != eventSessionReady {
		t.Fatalf("event = %q, want %q", env.Event, eventSessionReady)
	}
	data := env.Data.(map[string]any)
	if data["session_id"] != "generated-id" {
		t.Errorf("session_id = %v", data["session_id"])
	}
}

func TestEventsBeforeInitAreIgnored(t *testing.T) {
	eng := &fakeEngine{}
	conn := dial(t, eng)

	send(t, conn, eventBanProduct, map[string]string{"product_id": "p1"})
	send(t, conn, eventSessionInit, map[string]string{"session_id": "s1"})
	readEvent(t, conn) // session-ready

	eng.mu.Lock()
	banned := eng.bannedID
	eng.mu.Unlock()
	if banned != "" {
		t.Errorf("ban before init was dispatched: %q", banned)
	}
}

func TestDispatch(t *testing.T) {
	eng := &fakeEngine{dismissOK: true}
	conn := dial(t, eng)

	send(t, conn, eventSessionInit, map[string]string{"session_id": "s1"})
	readEvent(t, conn)

	send(t, conn, eventMarkAsSeen, map[string]string{"product_id": "p7"})
	send(t, conn, eventBanProduct, map[string]string{"product_id": "p8"})
	send(t, conn, eventCloseAlert, map[string]any{"alert_id": 3})
	send(t, conn, eventUpdateSettings, map[string]any{"crawling_interval": 9})
	send(t, conn, eventManualCrawl, nil)

	waitFor(t, func() bool {
		eng.mu.Lock()
		defer eng.mu.Unlock()
		return eng.seenProduct == "p7" && eng.bannedID == "p8" &&
			eng.dismissedID == 3 && eng.patched != nil && eng.crawls == 1
	})

	eng.mu.Lock()
	defer eng.mu.Unlock()
	if !eng.crawlManual {
		t.Error("manual crawl not flagged manual")
	}
	if eng.patched.CrawlIntervalMinutes == nil || *eng.patched.CrawlIntervalMinutes != 9 {
		t.Errorf("patch = %+v", eng.patched)
	}
}

func TestMalformedPayloadIsSkipped(t *testing.T) {
	eng := &fakeEngine{}
	conn := dial(t, eng)

	send(t, conn, eventSessionInit, map[string]string{"session_id": "s1"})
	readEvent(t, conn)

	// alert_id has the wrong type; the event is dropped, the connection
	// survives and later events still work.
	send(t, conn, eventCloseAlert, map[string]any{"alert_id": "not-a-number"})
	send(t, conn, eventMarkAsSeen, map[string]string{"product_id": "p1"})

	waitFor(t, func() bool {
		eng.mu.Lock()
		defer eng.mu.Unlock()
		return eng.seenProduct == "p1"
	})

	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.dismissedID != 0 {
		t.Errorf("malformed close-alert dispatched: %d", eng.dismissedID)
	}
}

func TestDisconnectDestroysSession(t *testing.T) {
	eng := &fakeEngine{}
	conn := dial(t, eng)

	send(t, conn, eventSessionInit, map[string]string{"session_id": "s1"})
	readEvent(t, conn)

	conn.Close()

	waitFor(t, func() bool {
		eng.mu.Lock()
		defer eng.mu.Unlock()
		return eng.destroyedID == "s1"
	})
}
