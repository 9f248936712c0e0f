package models

import "time"

type ScaleEventStatus string

const (
	ScaleEventSuccess ScaleEventStatus = "success"
	ScaleEventPartial ScaleEventStatus = "partial"
	ScaleEventAborted ScaleEventStatus = "aborted"
	ScaleEventFailed  ScaleEventStatus = "failed"
	ScaleEventNoop    ScaleEventStatus = "noop"
)

type ScaleTrigger string

const (
	TriggerPolicy ScaleTrigger = "policy"
	TriggerManual ScaleTrigger = "manual"
)

// ScaleEvent records one executed (or attempted) scaling operation.
// Events live only in a bounded in-memory log.
type ScaleEvent struct {
	ID            string           `json:"id"`
	Action        ScalingAction    `json:"action"`
	FromInstances int              `json:"from_instances"`
	ToInstances   int              `json:"to_instances"`
	Reason        string           `json:"reason"`
	Trigger       ScaleTrigger     `json:"trigger"`
	Status        ScaleEventStatus `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Decision      *ScalingDecision `json:"decision,omitempty"`
}

func NewScaleEvent(action ScalingAction, from, to int, reason string, trigger ScaleTrigger, status ScaleEventStatus) *ScaleEvent {
	return &ScaleEvent{
		ID:            NewUUID(),
		Action:        action,
		FromInstances: from,
		ToInstances:   to,
		Reason:        reason,
		Trigger:       trigger,
		Status:        status,
		Timestamp:     time.Now(),
	}
}

func (e *ScaleEvent) WithDecision(d *ScalingDecision) *ScaleEvent {
	e.Decision = d
	return e
}
