package fusion

import (
	"sync"
	"time"

	"github.com/zycxfyh/adaptive-balancer/pkg/models"

	"github.com/montanaflynn/stats"
)

type PredictorConfig struct {
	HistorySize    int
	SampleWindow   int
	ForecastWindow time.Duration
	LoadThreshold  float64
}

// Predictor keeps a bounded history of metrics snapshots and extrapolates
// CPU with a least-squares linear trend. It never triggers scaling on its
// own; it only makes the fusion engine more willing to accept an up-vote.
type Predictor struct {
	config  PredictorConfig
	mu      sync.RWMutex
	history []models.MetricsSnapshot
}

func NewPredictor(cfg PredictorConfig) *Predictor {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 60
	}
	if cfg.SampleWindow <= 0 {
		cfg.SampleWindow = 10
	}
	if cfg.ForecastWindow <= 0 {
		cfg.ForecastWindow = 5 * time.Minute
	}
	if cfg.LoadThreshold <= 0 {
		cfg.LoadThreshold = 0.8
	}
	return &Predictor{config: cfg}
}

func (p *Predictor) Record(snapshot models.MetricsSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.history = append(p.history, snapshot)
	if len(p.history) > p.config.HistorySize {
		p.history = p.history[len(p.history)-p.config.HistorySize:]
	}
}

// ProjectedCPU extrapolates the CPU trend over the forecast window. The
// second return is false when there are not enough samples to fit a line.
func (p *Predictor) ProjectedCPU() (float64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	window := p.history
	if len(window) > p.config.SampleWindow {
		window = window[len(window)-p.config.SampleWindow:]
	}
	if len(window) < 3 {
		return 0, false
	}

	origin := window[0].Timestamp
	series := make(stats.Series, 0, len(window))
	for _, s := range window {
		series = append(series, stats.Coordinate{
			X: s.Timestamp.Sub(origin).Seconds(),
			Y: s.CPU,
		})
	}

	fitted, err := stats.LinearRegression(series)
	if err != nil || len(fitted) < 2 {
		return 0, false
	}

	first, last := fitted[0], fitted[len(fitted)-1]
	if last.X == first.X {
		return 0, false
	}
	slope := (last.Y - first.Y) / (last.X - first.X)

	current := window[len(window)-1].CPU
	projected := current + slope*p.config.ForecastWindow.Seconds()
	if projected < 0 {
		projected = 0
	}
	return projected, true
}

// PredictsHighLoad reports whether the projected CPU exceeds the configured
// load threshold.
func (p *Predictor) PredictsHighLoad() bool {
	projected, ok := p.ProjectedCPU()
	return ok && projected > p.config.LoadThreshold
}
