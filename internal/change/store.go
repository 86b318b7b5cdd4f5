// Package change implements the change-diff engine: it snapshots an entry
// before a modify, correlates the snapshot with the post-write notification
// through an operation id, computes per-attribute before/after deltas and
// fans them out as generic and semantic change events.
package change

import (
	"sync"
	"sync/atomic"
	"time"
)

// storeShards is the number of lock shards in the correlation store. Sharding
// keeps unrelated in-flight operations from serializing on one mutex.
const storeShards = 16

// PreImage is the full attribute snapshot of an entry captured immediately
// before a modify is applied.
type PreImage struct {
	DN         string
	Attributes map[string][]string
	CapturedAt time.Time
}

// Store is the operation correlation store: a map from operation id to
// captured pre-image, bridging the pre-write and post-write stages of one
// logical modify. Ids are strictly increasing for the process lifetime and
// are not persisted; correlation only needs to survive one in-flight call.
//
// If a post-write stage never arrives the pre-image leaks for the process
// lifetime, which is acceptable given the id space.
type Store struct {
	counter atomic.Uint64
	shards  [storeShards]storeShard
}

type storeShard struct {
	mu     sync.Mutex
	images map[uint64]*PreImage
}

// NewStore creates an empty correlation store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i].images = make(map[uint64]*PreImage)
	}
	return s
}

// Begin allocates and returns the next operation id.
func (s *Store) Begin() uint64 {
	return s.counter.Add(1)
}

// Capture stores a pre-image under an operation id.
func (s *Store) Capture(id uint64, img *PreImage) {
	shard := &s.shards[id%storeShards]
	shard.mu.Lock()
	shard.images[id] = img
	shard.mu.Unlock()
}

// Consume retrieves and removes the pre-image for an operation id. A missing
// pre-image is a recoverable condition the caller must log and skip, never
// treat as fatal.
func (s *Store) Consume(id uint64) (*PreImage, bool) {
	shard := &s.shards[id%storeShards]
	shard.mu.Lock()
	defer shard.mu.Unlock()

	img, ok := shard.images[id]
	if ok {
		delete(shard.images, id)
	}
	return img, ok
}

// Pending returns the number of captured pre-images not yet consumed.
func (s *Store) Pending() int {
	total := 0
	for i := range s.shards {
		s.shards[i].mu.Lock()
		total += len(s.shards[i].images)
		s.shards[i].mu.Unlock()
	}
	return total
}
