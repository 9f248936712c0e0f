package scaler

import (
	"sync"

	"github.com/zycxfyh/adaptive-balancer/pkg/models"
)

const (
	defaultEventCap = 1000
	defaultAlertCap = 100
)

// History is the bounded in-memory record of scaling activity. Oldest
// entries are evicted first; nothing is persisted beyond this log.
type History struct {
	mu       sync.RWMutex
	events   []*models.ScaleEvent
	alerts   []*models.Alert
	eventCap int
	alertCap int
}

func NewHistory() *History {
	return &History{
		eventCap: defaultEventCap,
		alertCap: defaultAlertCap,
	}
}

func (h *History) Append(event *models.ScaleEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, event)
	if len(h.events) > h.eventCap {
		h.events = h.events[len(h.events)-h.eventCap:]
	}
}

func (h *History) AppendAlert(alert *models.Alert) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.alerts = append(h.alerts, alert)
	if len(h.alerts) > h.alertCap {
		h.alerts = h.alerts[len(h.alerts)-h.alertCap:]
	}
}

// Events returns up to limit events, newest first. limit <= 0 returns all.
func (h *History) Events(limit int) []*models.ScaleEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := len(h.events)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]*models.ScaleEvent, 0, n)
	for i := len(h.events) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.events[i])
	}
	return out
}

// Alerts returns all retained alerts, newest first.
func (h *History) Alerts() []*models.Alert {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*models.Alert, 0, len(h.alerts))
	for i := len(h.alerts) - 1; i >= 0; i-- {
		out = append(out, h.alerts[i])
	}
	return out
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events)
}
