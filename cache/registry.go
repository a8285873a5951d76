package cache

import (
	"sync"

	"github.com/leo-levin/weft/wefterr"
)

// Manager owns every cache buffer and cross-domain transfer buffer for one
// compiled unit; compiled units hold only non-owning references to it. It
// is rebuilt on recompile; callers swap the old Manager out only after the
// new compiled unit is in place.
type Manager struct {
	mu      sync.RWMutex
	pixel   map[string]*PixelCache
	scalar  map[string]*ScalarCache
	crossIn map[string]float64 // "bundle.strand" -> latest refreshed value
	last    map[string]float64 // cache id -> most recent tapped result
}

// NewManager builds an empty Manager, allocating one buffer per descriptor
// according to its Storage mode. Pixel-addressed caches are sized for
// width*height; scalar caches ignore them.
func NewManager(descriptors []*Descriptor, width, height int) *Manager {
	m := &Manager{
		pixel:   map[string]*PixelCache{},
		scalar:  map[string]*ScalarCache{},
		crossIn: map[string]float64{},
		last:    map[string]float64{},
	}
	for _, d := range descriptors {
		histSize := int(d.HistorySize)
		if histSize < 1 {
			histSize = 1
		}
		switch d.Storage {
		case "pixelAddressed":
			m.pixel[d.ID] = NewPixelCache(width, height, histSize)
		default:
			m.scalar[d.ID] = NewScalarCache(histSize)
		}
	}
	return m
}

// Resize reallocates every pixel-addressed cache for new output
// dimensions, called by the coordinator when those dimensions change.
func (m *Manager) Resize(width, height int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pc := range m.pixel {
		pc.Resize(width, height)
	}
}

// TickPixel advances the named pixel-addressed cache. Returns a
// ResourceError if id was never allocated (a codegen/runtime descriptor
// mismatch).
func (m *Manager) TickPixel(id string, pixel, tapIndex int, value, signal float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc, ok := m.pixel[id]
	if !ok {
		return 0, &wefterr.ResourceError{Hardware: "cache", Msg: "unknown pixel cache id " + id}
	}
	result := pc.Tick(pixel, tapIndex, value, signal)
	m.last[id] = result
	return result, nil
}

// TickScalar advances the named scalar cache.
func (m *Manager) TickScalar(id string, tapIndex int, value, signal float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.scalar[id]
	if !ok {
		return 0, &wefterr.ResourceError{Hardware: "cache", Msg: "unknown scalar cache id " + id}
	}
	result := sc.Tick(tapIndex, value, signal)
	m.last[id] = result
	return result, nil
}

// PeekScalarHistory returns a scalar cache's current (pre-tick) history
// slots, letting a self-referential value expression read its own prior
// state (audio's equivalent of the visual kernel's direct history-slot-0
// read) without advancing the cache.
func (m *Manager) PeekScalarHistory(id string) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc, ok := m.scalar[id]
	if !ok {
		return nil
	}
	return sc.History
}

// LastResult returns the most recently tapped value for a cache id, used
// to resolve a CacheRead node (a cross-bundle cycle broken at analysis
// time) to the other bundle's last-computed tick result.
func (m *Manager) LastResult(id string) (float64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.last[id]
	return v, ok
}

// WriteCrossDomain publishes a value for a "bundle.strand" cross-domain
// slot. Called once per audio callback / once per visual frame: single
// writer, single reader per slot, refreshed between ticks.
func (m *Manager) WriteCrossDomain(slot string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.crossIn[slot] = value
}

// ReadCrossDomain reads the last-refreshed value for a cross-domain slot;
// zero if it was never written (the other backend hasn't produced a tick
// yet).
func (m *Manager) ReadCrossDomain(slot string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.crossIn[slot]
}
