package balancer

import (
	"hash/fnv"
	"sync"

	"github.com/zycxfyh/adaptive-balancer/internal/registry"
)

// ipHash maps a client key to a fixed instance. The mapping is memoized so a
// key keeps routing to the same instance while it stays healthy; once that
// instance is unhealthy or removed, the memo entry is evicted and the next
// call recomputes against the current healthy set.
type ipHash struct {
	mu   sync.Mutex
	memo map[string]string // client key -> instance id
}

func newIPHash() *ipHash {
	return &ipHash{memo: make(map[string]string)}
}

func (s *ipHash) Name() string { return AlgorithmIPHash }

func (s *ipHash) Select(clientKey string, healthy []*registry.Instance) *registry.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.memo[clientKey]; ok {
		for _, inst := range healthy {
			if inst.ID == id {
				return inst
			}
		}
		// Sticky target is gone or unhealthy; recompute.
		delete(s.memo, clientKey)
	}

	inst := healthy[hashKey(clientKey)%uint64(len(healthy))]
	s.memo[clientKey] = inst.ID
	return inst
}

func (s *ipHash) InstanceAdded(_ *registry.Instance) {}

func (s *ipHash) InstanceRemoved(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, target := range s.memo {
		if target == id {
			delete(s.memo, key)
		}
	}
}

func hashKey(key string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return h.Sum64()
}
