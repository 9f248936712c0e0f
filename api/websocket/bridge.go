package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/zycxfyh/adaptive-balancer/internal/logger"
	"github.com/zycxfyh/adaptive-balancer/pkg/models"
)

// EventBridge forwards bus events to WebSocket clients.
type EventBridge struct {
	hub        *Hub
	eventsChan <-chan *models.Event
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewEventBridge(hub *Hub, eventsChan <-chan *models.Event) *EventBridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventBridge{
		hub:        hub,
		eventsChan: eventsChan,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (b *EventBridge) Start() {
	go b.run()
	logger.Info("WebSocket event bridge started")
}

func (b *EventBridge) Stop() {
	b.cancel()
	logger.Info("WebSocket event bridge stopped")
}

func (b *EventBridge) run() {
	for {
		select {
		case <-b.ctx.Done():
			return
		case event, ok := <-b.eventsChan:
			if !ok {
				logger.Info("Event channel closed, stopping bridge")
				return
			}
			b.forward(event)
		}
	}
}

// StreamEvent is the message format sent to WebSocket clients.
type StreamEvent struct {
	Type      string      `json:"type"`
	Topic     string      `json:"topic"`
	Service   string      `json:"service,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Severity  string      `json:"severity,omitempty"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

func (b *EventBridge) forward(event *models.Event) {
	topic := topicFor(event.Type)
	if topic == "" {
		return
	}

	msg := StreamEvent{
		Type:      string(event.Type),
		Topic:     topic,
		Service:   event.Service,
		Timestamp: event.Timestamp,
		Severity:  string(event.Severity),
		Message:   event.Message,
		Data:      event.Data,
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logger.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	b.hub.Broadcast(topic, data)
}

// topicFor maps bus event types onto client-facing subscription topics.
func topicFor(eventType models.EventType) string {
	switch eventType {
	case models.EventTypeInstanceAdded, models.EventTypeInstanceRemoved,
		models.EventTypeInstanceHealthy, models.EventTypeInstanceUnhealthy:
		return "instances"
	case models.EventTypeDecisionMade:
		return "decisions"
	case models.EventTypeScalingStarted, models.EventTypeScalingComplete, models.EventTypeScalingFailed:
		return "scaling"
	case models.EventTypeAlert:
		return "alerts"
	case models.EventTypeError:
		return "errors"
	default:
		return ""
	}
}
