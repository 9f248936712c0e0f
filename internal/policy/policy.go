package policy

import (
	"errors"

	"github.com/zycxfyh/adaptive-balancer/pkg/models"
)

// ErrEvaluationFailed wraps a policy vote that could not be computed. The
// fusion engine treats it as "skip this policy for this tick", never as a
// reason to abort the evaluation loop.
var ErrEvaluationFailed = errors.New("policy evaluation failed")

// ScalingPolicy is a stateless predicate over one metrics snapshot. Both
// directions are consulted every tick; the fusion engine decides which votes
// win.
type ScalingPolicy interface {
	Name() string
	ShouldScaleUp(snapshot models.MetricsSnapshot, currentInstances int) (models.PolicyVote, error)
	ShouldScaleDown(snapshot models.MetricsSnapshot, currentInstances int) (models.PolicyVote, error)
}

func noVote(name string) models.PolicyVote {
	return models.PolicyVote{Policy: name, ShouldScale: false}
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
