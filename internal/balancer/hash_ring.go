package balancer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zycxfyh/adaptive-balancer/internal/registry"
)

const defaultVirtualNodes = 100

// hashRing is a consistent-hashing ring where every instance owns a fixed
// number of virtual-node positions. A request key routes to the nearest
// virtual node at or after its hash, wrapping at the end of the ring. Nodes
// owned by currently-unhealthy instances are skipped clockwise.
type hashRing struct {
	virtualNodes int

	mu        sync.RWMutex
	positions []uint64          // sorted
	owners    map[uint64]string // position -> instance id
}

func newHashRing(virtualNodes int) *hashRing {
	if virtualNodes <= 0 {
		virtualNodes = defaultVirtualNodes
	}
	return &hashRing{
		virtualNodes: virtualNodes,
		owners:       make(map[uint64]string),
	}
}

func (s *hashRing) Name() string { return AlgorithmConsistentHashing }

func (s *hashRing) Select(clientKey string, healthy []*registry.Instance) *registry.Instance {
	byID := make(map[string]*registry.Instance, len(healthy))
	for _, inst := range healthy {
		byID[inst.ID] = inst
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.positions) == 0 {
		return healthy[0]
	}

	target := hashKey(clientKey)
	start := sort.Search(len(s.positions), func(i int) bool {
		return s.positions[i] >= target
	})

	// Walk clockwise until a virtual node owned by a healthy instance.
	for i := 0; i < len(s.positions); i++ {
		pos := s.positions[(start+i)%len(s.positions)]
		if inst, ok := byID[s.owners[pos]]; ok {
			return inst
		}
	}
	return healthy[0]
}

func (s *hashRing) InstanceAdded(inst *registry.Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-adding the same id replaces its nodes.
	s.removeLocked(inst.ID)

	for i := 0; i < s.virtualNodes; i++ {
		pos := hashKey(fmt.Sprintf("%s#%d", inst.ID, i))
		if _, taken := s.owners[pos]; taken {
			continue
		}
		s.owners[pos] = inst.ID
		s.positions = append(s.positions, pos)
	}
	sort.Slice(s.positions, func(a, b int) bool { return s.positions[a] < s.positions[b] })
}

func (s *hashRing) InstanceRemoved(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *hashRing) removeLocked(id string) {
	kept := s.positions[:0]
	for _, pos := range s.positions {
		if s.owners[pos] == id {
			delete(s.owners, pos)
			continue
		}
		kept = append(kept, pos)
	}
	s.positions = kept
}
