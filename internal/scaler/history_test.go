package scaler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zycxfyh/adaptive-balancer/pkg/models"
)

func TestHistory_EventsNewestFirst(t *testing.T) {
	h := NewHistory()

	for i := 0; i < 3; i++ {
		h.Append(models.NewScaleEvent(models.ActionScaleUp, i, i+1, fmt.Sprintf("event %d", i), models.TriggerPolicy, models.ScaleEventSuccess))
	}

	events := h.Events(0)
	require.Len(t, events, 3)
	assert.Equal(t, "event 2", events[0].Reason)
	assert.Equal(t, "event 0", events[2].Reason)
}

func TestHistory_EventsLimit(t *testing.T) {
	h := NewHistory()

	for i := 0; i < 10; i++ {
		h.Append(models.NewScaleEvent(models.ActionScaleUp, i, i+1, fmt.Sprintf("event %d", i), models.TriggerPolicy, models.ScaleEventSuccess))
	}

	events := h.Events(4)
	require.Len(t, events, 4)
	assert.Equal(t, "event 9", events[0].Reason)
	assert.Equal(t, "event 6", events[3].Reason)
}

func TestHistory_EventCapEvictsOldest(t *testing.T) {
	h := NewHistory()

	for i := 0; i < defaultEventCap+50; i++ {
		h.Append(models.NewScaleEvent(models.ActionScaleUp, i, i+1, fmt.Sprintf("event %d", i), models.TriggerPolicy, models.ScaleEventSuccess))
	}

	assert.Equal(t, defaultEventCap, h.Len())

	events := h.Events(0)
	assert.Equal(t, fmt.Sprintf("event %d", defaultEventCap+49), events[0].Reason)
	assert.Equal(t, "event 50", events[len(events)-1].Reason)
}

func TestHistory_AlertCapEvictsOldest(t *testing.T) {
	h := NewHistory()

	for i := 0; i < defaultAlertCap+20; i++ {
		h.AppendAlert(models.NewAlert(models.AlertSystemAnomaly, models.AlertSeverityWarning, fmt.Sprintf("alert %d", i)))
	}

	alerts := h.Alerts()
	require.Len(t, alerts, defaultAlertCap)
	assert.Equal(t, fmt.Sprintf("alert %d", defaultAlertCap+19), alerts[0].Message)
	assert.Equal(t, "alert 20", alerts[len(alerts)-1].Message)
}

func TestHistory_Empty(t *testing.T) {
	h := NewHistory()

	assert.Empty(t, h.Events(0))
	assert.Empty(t, h.Alerts())
	assert.Equal(t, 0, h.Len())
}
