package registry

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v4"
)

// Registry is the authoritative map of instance id to instance state. It is
// shared between the load balancer and the scaling executor; both mutate
// individual instances through their own atomics rather than taking a
// registry-wide lock.
type Registry struct {
	instances *xsync.Map[string, *Instance]
}

func New() *Registry {
	return &Registry{
		instances: xsync.NewMap[string, *Instance](),
	}
}

// Add inserts an instance, overwriting any previous instance with the same id.
func (r *Registry) Add(inst *Instance) {
	r.instances.Store(inst.ID, inst)
}

// Remove deletes an instance and returns it, or nil if it was not present.
func (r *Registry) Remove(id string) *Instance {
	inst, ok := r.instances.LoadAndDelete(id)
	if !ok {
		return nil
	}
	return inst
}

func (r *Registry) Get(id string) (*Instance, bool) {
	return r.instances.Load(id)
}

func (r *Registry) Len() int {
	return r.instances.Size()
}

// List returns all instances sorted by id. The fixed order is what makes
// tie-breaks (least_connections first-match) deterministic.
func (r *Registry) List() []*Instance {
	all := make([]*Instance, 0, r.instances.Size())
	r.instances.Range(func(_ string, inst *Instance) bool {
		all = append(all, inst)
		return true
	})
	sort.Slice(all, func(a, b int) bool { return all[a].ID < all[b].ID })
	return all
}

// Healthy returns the currently-healthy instances sorted by id.
func (r *Registry) Healthy() []*Instance {
	healthy := make([]*Instance, 0, r.instances.Size())
	r.instances.Range(func(_ string, inst *Instance) bool {
		if inst.Healthy() {
			healthy = append(healthy, inst)
		}
		return true
	})
	sort.Slice(healthy, func(a, b int) bool { return healthy[a].ID < healthy[b].ID })
	return healthy
}

func (r *Registry) HealthyCount() int {
	count := 0
	r.instances.Range(func(_ string, inst *Instance) bool {
		if inst.Healthy() {
			count++
		}
		return true
	})
	return count
}

// LoadFactor is connections / max(totalInstanceCount, 1) for one instance.
func (r *Registry) LoadFactor(inst *Instance) float64 {
	total := r.instances.Size()
	if total < 1 {
		total = 1
	}
	return float64(inst.Connections()) / float64(total)
}

// TotalConnections sums active connections across the fleet.
func (r *Registry) TotalConnections() int64 {
	var total int64
	r.instances.Range(func(_ string, inst *Instance) bool {
		total += inst.Connections()
		return true
	})
	return total
}
