package provider

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrStartFailed  = errors.New("instance start failed")
	ErrStopFailed   = errors.New("instance stop failed")
	ErrCallTimeout  = errors.New("provider call timed out")
	ErrNotSupported = errors.New("provider does not support operation")
)

// ProviderError wraps a failed lifecycle call with its operation and, where
// known, the instance involved.
type ProviderError struct {
	Op         string
	InstanceID string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.InstanceID != "" {
		return fmt.Sprintf("provider %s failed for instance %s: %v", e.Op, e.InstanceID, e.Err)
	}
	return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// InstanceInfo describes one compute unit as the provider reports it.
type InstanceInfo struct {
	ID       string            `json:"id"`
	URL      string            `json:"url"`
	Weight   float64           `json:"weight,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type StartOptions struct {
	Index int
}

// Provider starts and stops compute units of a named service. All calls
// block on external I/O and must respect the caller's context.
type Provider interface {
	StartInstance(ctx context.Context, serviceName string, opts StartOptions) (*InstanceInfo, error)
	StopInstance(ctx context.Context, instanceID string) (bool, error)
	GetRunningInstances(ctx context.Context, serviceName string) ([]*InstanceInfo, error)
	HealthCheck(ctx context.Context) error
}
