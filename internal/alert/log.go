package alert

import (
	"sync"
	"time"

	"github.com/dilduck/fallcentalert/internal/domain"
)

// DefaultLogCapacity is the maximum number of alerts retained for replay to
// newly joined sessions.
const DefaultLogCapacity = 100

// Log is the capacity-bounded, append-only global alert log. IDs are assigned
// from a process-local counter and are strictly increasing with no reuse,
// even across eviction. Evicting an alert does not un-deliver it from
// sessions that already received it; it only stops replay to sessions that
// join afterward.
//
// This type is safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	capacity int
	alerts   []domain.Alert // ascending ID order, oldest first
	lastID   int64

	now func() time.Time // test seam
}

// NewLog constructs an empty Log. Capacities <= 0 are coerced to
// DefaultLogCapacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &Log{capacity: capacity, now: time.Now}
}

// Append mints a new alert: it assigns the next ID, stamps the current UTC
// time, appends, and evicts the oldest entries if the log exceeds capacity.
// The created alert is returned for fan-out.
func (l *Log) Append(category domain.AlertCategory, title, description string, discount int, price float64, url, productID string) domain.Alert {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastID++
	a := domain.Alert{
		ID:          l.lastID,
		Category:    category,
		Title:       title,
		Description: description,
		Discount:    discount,
		Price:       price,
		URL:         url,
		ProductID:   productID,
		Timestamp:   l.now().UTC(),
	}
	l.alerts = append(l.alerts, a)
	if over := len(l.alerts) - l.capacity; over > 0 {
		l.alerts = append([]domain.Alert(nil), l.alerts[over:]...)
	}
	return a
}

// Snapshot returns a copy of the currently retained window, oldest first.
func (l *Log) Snapshot() []domain.Alert {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Alert, len(l.alerts))
	copy(out, l.alerts)
	return out
}

// RemoveByID deletes one alert from the retained window. Removing an unknown
// ID is a no-op.
func (l *Log) RemoveByID(alertID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, a := range l.alerts {
		if a.ID == alertID {
			l.alerts = append(l.alerts[:i], l.alerts[i+1:]...)
			return
		}
	}
}

// Len returns the number of retained alerts.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.alerts)
}
