package events

import (
	"github.com/zycxfyh/adaptive-balancer/pkg/models"
)

// Publisher is a typed facade over the event bus.
type Publisher struct {
	bus     *EventBus
	service string
}

func NewPublisher(bus *EventBus, service string) *Publisher {
	return &Publisher{bus: bus, service: service}
}

func (p *Publisher) publish(event *models.Event) {
	p.bus.Publish(event)
}

func (p *Publisher) InstanceAdded(instanceID, url string) {
	event := models.NewEvent(models.EventTypeInstanceAdded, p.service, "Instance added").
		WithData(map[string]interface{}{"instance_id": instanceID, "url": url})
	p.publish(event)
}

func (p *Publisher) InstanceRemoved(instanceID string) {
	event := models.NewEvent(models.EventTypeInstanceRemoved, p.service, "Instance removed").
		WithData(map[string]interface{}{"instance_id": instanceID})
	p.publish(event)
}

func (p *Publisher) InstanceHealthy(instanceID string) {
	event := models.NewEvent(models.EventTypeInstanceHealthy, p.service, "Instance back in rotation").
		WithData(map[string]interface{}{"instance_id": instanceID})
	p.publish(event)
}

func (p *Publisher) InstanceUnhealthy(instanceID string) {
	event := models.NewEvent(models.EventTypeInstanceUnhealthy, p.service, "Instance out of rotation").
		WithSeverity(models.SeverityWarning).
		WithData(map[string]interface{}{"instance_id": instanceID})
	p.publish(event)
}

func (p *Publisher) DecisionMade(decision *models.ScalingDecision) {
	msg := "Scaling decision: " + string(decision.Action)
	event := models.NewEvent(models.EventTypeDecisionMade, p.service, msg).
		WithData(decision)
	p.publish(event)
}

func (p *Publisher) ScalingStarted(decision *models.ScalingDecision) {
	msg := "Scaling started: " + string(decision.Action)
	event := models.NewEvent(models.EventTypeScalingStarted, p.service, msg).
		WithData(decision)
	p.publish(event)
}

func (p *Publisher) ScalingComplete(scaleEvent *models.ScaleEvent) {
	msg := "Scaling complete: " + string(scaleEvent.Action)
	event := models.NewEvent(models.EventTypeScalingComplete, p.service, msg).
		WithData(scaleEvent)
	p.publish(event)
}

func (p *Publisher) ScalingFailed(reason string, err error) {
	msg := "Scaling failed: " + reason
	event := models.NewEvent(models.EventTypeScalingFailed, p.service, msg).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{
			"reason": reason,
			"error":  err.Error(),
		})
	p.publish(event)
}

func (p *Publisher) Alert(alert *models.Alert) {
	severity := models.SeverityWarning
	if alert.Severity == models.AlertSeverityCritical {
		severity = models.SeverityCritical
	}
	event := models.NewEvent(models.EventTypeAlert, p.service, alert.Message).
		WithSeverity(severity).
		WithData(alert)
	p.publish(event)
}

func (p *Publisher) Error(message string, err error) {
	event := models.NewEvent(models.EventTypeError, p.service, message).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{
			"error": err.Error(),
		})
	p.publish(event)
}
