package balancer

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zycxfyh/adaptive-balancer/internal/registry"
)

func TestHealthChecker_ProbeAll(t *testing.T) {
	healthyUpstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthyUpstream.Close()

	sickUpstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer sickUpstream.Close()

	reg := registry.New()
	reg.Add(registry.NewInstance("i-ok", healthyUpstream.URL, 1.0, nil, 0))
	reg.Add(registry.NewInstance("i-bad", sickUpstream.URL, 1.0, nil, 0))
	reg.Add(registry.NewInstance("i-gone", "http://127.0.0.1:1", 1.0, nil, 0))

	checker := NewHealthChecker(HealthCheckerConfig{
		Registry: reg,
		Timeout:  500 * time.Millisecond,
	})

	checker.ProbeAll()

	ok, _ := reg.Get("i-ok")
	bad, _ := reg.Get("i-bad")
	gone, _ := reg.Get("i-gone")

	assert.True(t, ok.Healthy())
	assert.False(t, bad.Healthy())
	assert.False(t, gone.Healthy())
}

func TestHealthChecker_RecoveryFlipsBack(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	reg := registry.New()
	reg.Add(registry.NewInstance("i-1", upstream.URL, 1.0, nil, 0))

	checker := NewHealthChecker(HealthCheckerConfig{
		Registry: reg,
		Timeout:  500 * time.Millisecond,
	})

	checker.ProbeAll()
	inst, _ := reg.Get("i-1")
	require.False(t, inst.Healthy())

	failing.Store(false)
	checker.ProbeAll()
	assert.True(t, inst.Healthy())
}

func TestHealthChecker_ProbePath(t *testing.T) {
	var probedPath atomic.Value

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probedPath.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	reg := registry.New()
	reg.Add(registry.NewInstance("i-1", upstream.URL, 1.0, nil, 0))

	checker := NewHealthChecker(HealthCheckerConfig{
		Registry: reg,
		Path:     "/healthz",
	})
	checker.ProbeAll()

	assert.Equal(t, "/healthz", probedPath.Load())
}

func TestHealthChecker_NeverRemovesInstances(t *testing.T) {
	reg := registry.New()
	reg.Add(registry.NewInstance("i-1", "http://127.0.0.1:1", 1.0, nil, 0))

	checker := NewHealthChecker(HealthCheckerConfig{
		Registry: reg,
		Timeout:  200 * time.Millisecond,
	})
	checker.ProbeAll()

	// Unreachable instances go out of rotation but stay registered.
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, 0, reg.HealthyCount())
}

func TestHealthChecker_StartStop(t *testing.T) {
	checker := NewHealthChecker(HealthCheckerConfig{
		Registry: registry.New(),
		Interval: 10 * time.Millisecond,
	})

	checker.Start()
	checker.Start() // second start is a no-op
	time.Sleep(30 * time.Millisecond)
	checker.Stop()
	checker.Stop()
}
