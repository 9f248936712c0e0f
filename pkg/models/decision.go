package models

import "time"

type ScalingAction string

const (
	ActionScaleUp   ScalingAction = "scale_up"
	ActionScaleDown ScalingAction = "scale_down"
	ActionNone      ScalingAction = "none"
)

// PolicyVote is a single policy's opinion for one evaluation tick.
type PolicyVote struct {
	Policy          string  `json:"policy"`
	ShouldScale     bool    `json:"should_scale"`
	TargetInstances int     `json:"target_instances"`
	Confidence      float64 `json:"confidence"`
	Reasoning       string  `json:"reasoning"`
}

// ScalingDecision is the fused output of all policy votes for one tick.
// It is produced by the fusion engine and consumed immediately by the
// scaling executor.
type ScalingDecision struct {
	Action               ScalingAction `json:"action"`
	TargetInstances      int           `json:"target_instances"`
	Confidence           float64       `json:"confidence"`
	Reasoning            string        `json:"reasoning"`
	ContributingPolicies []PolicyVote  `json:"contributing_policies,omitempty"`
	Timestamp            time.Time     `json:"timestamp"`
}

func (d *ScalingDecision) ShouldExecute() bool {
	return d.Action != ActionNone
}

func (d *ScalingDecision) InstanceDelta(current int) int {
	return d.TargetInstances - current
}
