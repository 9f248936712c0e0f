package fusion

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/zycxfyh/adaptive-balancer/internal/logger"
	"github.com/zycxfyh/adaptive-balancer/internal/policy"
	"github.com/zycxfyh/adaptive-balancer/pkg/models"

	"github.com/montanaflynn/stats"
)

type Config struct {
	MinInstances  int
	MaxInstances  int
	MinConfidence float64
}

// Engine fuses the votes of all registered scaling policies into a single
// decision per tick. Up-votes take priority over down-votes: when the two
// disagree the engine scales up, which is the anti-flapping bias.
type Engine struct {
	config    Config
	policies  []policy.ScalingPolicy
	predictor *Predictor
	costGate  *CostGate
}

func NewEngine(cfg Config, policies []policy.ScalingPolicy) *Engine {
	if cfg.MinInstances <= 0 {
		cfg.MinInstances = 1
	}
	if cfg.MaxInstances < cfg.MinInstances {
		cfg.MaxInstances = cfg.MinInstances
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.5
	}
	return &Engine{config: cfg, policies: policies}
}

func (e *Engine) WithPredictor(p *Predictor) *Engine {
	e.predictor = p
	return e
}

func (e *Engine) WithCostGate(g *CostGate) *Engine {
	e.costGate = g
	return e
}

// Evaluate collects one up-vote and one down-vote from every policy and
// fuses them. A policy that fails or panics is logged and excluded from the
// current tick only.
func (e *Engine) Evaluate(snapshot models.MetricsSnapshot, currentInstances int) *models.ScalingDecision {
	if e.predictor != nil {
		e.predictor.Record(snapshot)
	}

	var upVotes, downVotes []models.PolicyVote

	for _, p := range e.policies {
		if vote, ok := e.safeVote(p.Name(), func() (models.PolicyVote, error) {
			return p.ShouldScaleUp(snapshot, currentInstances)
		}); ok && vote.ShouldScale {
			upVotes = append(upVotes, vote)
		}

		if vote, ok := e.safeVote(p.Name(), func() (models.PolicyVote, error) {
			return p.ShouldScaleDown(snapshot, currentInstances)
		}); ok && vote.ShouldScale {
			downVotes = append(downVotes, vote)
		}
	}

	// Up-votes win the tick outright; down-votes are only considered when
	// no policy wants more capacity.
	if len(upVotes) > 0 {
		return e.fuseScaleUp(upVotes, snapshot, currentInstances)
	}
	if len(downVotes) > 0 {
		return e.fuseScaleDown(downVotes, currentInstances)
	}

	return &models.ScalingDecision{
		Action:          models.ActionNone,
		TargetInstances: currentInstances,
		Reasoning:       "no policy voted",
		Timestamp:       time.Now(),
	}
}

// safeVote isolates a policy: an error or panic excludes it from this tick.
func (e *Engine) safeVote(name string, vote func() (models.PolicyVote, error)) (result models.PolicyVote, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("policy", name).Errorf("Policy panicked, skipping this tick: %v", r)
			ok = false
		}
	}()

	result, err := vote()
	if err != nil {
		logger.WithField("policy", name).Warnf("Policy evaluation failed, skipping this tick: %v", err)
		return models.PolicyVote{}, false
	}
	return result, true
}

// fuseScaleUp averages the proposed targets weighted by confidence:
// round(sum(target*conf) / sum(conf)), clamped to MaxInstances.
// Fused confidence is min(sum(conf)/N, 1).
func (e *Engine) fuseScaleUp(votes []models.PolicyVote, snapshot models.MetricsSnapshot, current int) *models.ScalingDecision {
	var weightedSum, confSum float64
	for _, v := range votes {
		weightedSum += float64(v.TargetInstances) * v.Confidence
		confSum += v.Confidence
	}

	target := current + 1
	if confSum > 0 {
		target = int(math.Round(weightedSum / confSum))
	}
	if target > e.config.MaxInstances {
		target = e.config.MaxInstances
	}

	confidence := confSum / float64(len(votes))
	if confidence > 1.0 {
		confidence = 1.0
	}

	reasoning := joinReasons(votes)

	if target <= current {
		return &models.ScalingDecision{
			Action:               models.ActionNone,
			TargetInstances:      current,
			Confidence:           confidence,
			Reasoning:            "fused scale-up target already satisfied: " + reasoning,
			ContributingPolicies: votes,
			Timestamp:            time.Now(),
		}
	}

	// Low-confidence up-votes are dropped unless the trend predictor
	// projects high load, in which case acting early is cheaper than
	// reacting late.
	if confidence < e.config.MinConfidence {
		if e.predictor == nil || !e.predictor.PredictsHighLoad() {
			return &models.ScalingDecision{
				Action:               models.ActionNone,
				TargetInstances:      current,
				Confidence:           confidence,
				Reasoning:            fmt.Sprintf("confidence %.2f below threshold %.2f: %s", confidence, e.config.MinConfidence, reasoning),
				ContributingPolicies: votes,
				Timestamp:            time.Now(),
			}
		}
		projected, _ := e.predictor.ProjectedCPU()
		reasoning = fmt.Sprintf("%s; accepted at low confidence, projected cpu %.0f%%", reasoning, projected*100)
	}

	if e.costGate != nil {
		adjusted, shrunk := e.costGate.Adjust(current, target, snapshot)
		if shrunk {
			reasoning = fmt.Sprintf("%s; cost gate reduced target %d -> %d", reasoning, target, adjusted)
			target = adjusted
		}
	}

	return &models.ScalingDecision{
		Action:               models.ActionScaleUp,
		TargetInstances:      target,
		Confidence:           confidence,
		Reasoning:            reasoning,
		ContributingPolicies: votes,
		Timestamp:            time.Now(),
	}
}

// fuseScaleDown is conservative: the largest (least aggressive) proposed
// target wins, floored at MinInstances. Fused confidence is the mean.
func (e *Engine) fuseScaleDown(votes []models.PolicyVote, current int) *models.ScalingDecision {
	target := e.config.MinInstances
	confidences := make([]float64, 0, len(votes))
	for _, v := range votes {
		if v.TargetInstances > target {
			target = v.TargetInstances
		}
		confidences = append(confidences, v.Confidence)
	}

	confidence, _ := stats.Mean(confidences)
	reasoning := joinReasons(votes)

	if target >= current {
		return &models.ScalingDecision{
			Action:               models.ActionNone,
			TargetInstances:      current,
			Confidence:           confidence,
			Reasoning:            "fused scale-down target already satisfied: " + reasoning,
			ContributingPolicies: votes,
			Timestamp:            time.Now(),
		}
	}

	return &models.ScalingDecision{
		Action:               models.ActionScaleDown,
		TargetInstances:      target,
		Confidence:           confidence,
		Reasoning:            reasoning,
		ContributingPolicies: votes,
		Timestamp:            time.Now(),
	}
}

func joinReasons(votes []models.PolicyVote) string {
	reasons := make([]string, 0, len(votes))
	for _, v := range votes {
		reasons = append(reasons, v.Policy+": "+v.Reasoning)
	}
	return strings.Join(reasons, "; ")
}
