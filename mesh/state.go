package mesh

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// subscriberBuffer is the channel depth handed to each subscriber
const subscriberBuffer = 4

// StateTracker holds the live engine state served over HTTP: the projected
// mesh and the most recent assembled frame. Subscribers receive each new
// result; a subscriber that falls behind misses frames instead of blocking
// assembly.
type StateTracker struct {
	mu          sync.RWMutex
	vertices    []Vertex
	mapping     *MappingTable
	stats       ProjectionStats
	latest      *FrameResult
	cloths      *PressureGrid
	pants       *PressureGrid
	processed   uint64
	rejected    uint64
	dropped     uint64
	subscribers map[int]chan *FrameResult
	nextSubID   int
	cachePath   string // path to the last-frame cache file; empty disables persistence
}

// NewStateTracker creates a new state tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{
		subscribers: make(map[int]chan *FrameResult),
	}
}

// NewStateTrackerWithCache creates a state tracker that persists the latest
// frame result to cachePath. If the file exists, the cached result is loaded
// on creation so /scalars answers before the first live frame.
func NewStateTrackerWithCache(cachePath string) *StateTracker {
	st := NewStateTracker()
	st.cachePath = cachePath
	if cachePath != "" {
		if res, err := LoadFrameResult(cachePath); err == nil {
			st.latest = res
		}
	}
	return st
}

// SetMesh stores the vertices and their mapping
func (st *StateTracker) SetMesh(vertices []Vertex, table *MappingTable, stats ProjectionStats) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.vertices = vertices
	st.mapping = table
	st.stats = stats

	// A cached result for a different mesh is useless
	if st.latest != nil && len(st.latest.Scalars) != table.Len() {
		st.latest = nil
	}
}

// Vertices returns the mesh vertices
func (st *StateTracker) Vertices() []Vertex {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.vertices
}

// Mapping returns the current mapping table
func (st *StateTracker) Mapping() *MappingTable {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.mapping
}

// Stats returns the projection diagnostics of the current mesh
func (st *StateTracker) Stats() ProjectionStats {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.stats
}

// Update records an assembled frame together with the raw grids of that frame
// and notifies subscribers.
func (st *StateTracker) Update(res *FrameResult, cloths, pants *PressureGrid) {
	st.mu.Lock()
	st.latest = res
	st.cloths = cloths
	st.pants = pants
	st.processed++
	for _, ch := range st.subscribers {
		select {
		case ch <- res:
		default:
			st.dropped++
		}
	}
	cachePath := st.cachePath
	st.mu.Unlock()

	if cachePath != "" {
		if err := SaveFrameResult(res, cachePath); err != nil {
			log.Printf("[STATE] warning: failed to save frame cache: %v", err)
		}
	}
}

// Reject counts a frame that could not be decoded or assembled
func (st *StateTracker) Reject() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.rejected++
}

// Latest returns the most recent assembled frame, or nil
func (st *StateTracker) Latest() *FrameResult {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.latest
}

// Grid returns the last grid of the given name as it arrived on the wire,
// before conditioning or upsampling, or nil
func (st *StateTracker) Grid(name GridName) *PressureGrid {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if name == GridPants {
		return st.pants
	}
	return st.cloths
}

// Counters returns processed, rejected and dropped (subscriber) frame counts
func (st *StateTracker) Counters() (processed, rejected, dropped uint64) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.processed, st.rejected, st.dropped
}

// Subscribe registers a listener for new frame results. The returned cancel
// function unregisters it and closes the channel.
func (st *StateTracker) Subscribe() (<-chan *FrameResult, func()) {
	st.mu.Lock()
	defer st.mu.Unlock()

	id := st.nextSubID
	st.nextSubID++
	ch := make(chan *FrameResult, subscriberBuffer)
	st.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			st.mu.Lock()
			defer st.mu.Unlock()
			delete(st.subscribers, id)
			close(ch)
		})
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscribers
func (st *StateTracker) SubscriberCount() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.subscribers)
}

// SaveFrameResult writes a FrameResult to disk as JSON.
func SaveFrameResult(res *FrameResult, path string) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal frame result: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write frame cache: %w", err)
	}
	return nil
}

// LoadFrameResult reads a FrameResult from a JSON file on disk.
func LoadFrameResult(path string) (*FrameResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frame cache: %w", err)
	}
	var res FrameResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("unmarshal frame cache: %w", err)
	}
	return &res, nil
}
