// Package cache implements WEFT's cache manager (C7): pixel-addressed and
// scalar history/signal buffers with signal-edge-triggered tick semantics.
// Edge-triggering means a cache only shifts its history when the
// signal value changes from the previous tick, letting feedback and delay
// run independent of any particular backend's native tick rate.
package cache

import (
	"math"

	"github.com/leo-levin/weft/analysis"
)

// Descriptor is the subset of analysis.CacheNodeDescriptor the manager
// needs to allocate and size a cache's buffers.
type Descriptor = analysis.CacheNodeDescriptor

// PixelCache is a pixel-addressed float history: history has
// width*height*historySize slots, signal has width*height slots
// initialized to NaN (the "never ticked" sentinel).
type PixelCache struct {
	Width, Height int
	HistorySize   int
	History       []float64
	Signal        []float64
}

// NewPixelCache allocates a pixel cache sized for width*height pixels.
func NewPixelCache(width, height, historySize int) *PixelCache {
	pc := &PixelCache{
		Width: width, Height: height, HistorySize: historySize,
		History: make([]float64, width*height*historySize),
		Signal:  make([]float64, width*height),
	}
	for i := range pc.Signal {
		pc.Signal[i] = math.NaN()
	}
	return pc
}

// Tick advances the cache at the given pixel index (row-major, y*width+x)
// and returns the tapped history value, applied per cell.
func (pc *PixelCache) Tick(pixel, tapIndex int, currentValue, currentSignal float64) float64 {
	base := pixel * pc.HistorySize
	prevSignal := pc.Signal[pixel]
	if math.IsNaN(prevSignal) || prevSignal != currentSignal {
		for slot := pc.HistorySize - 1; slot > 0; slot-- {
			pc.History[base+slot] = pc.History[base+slot-1]
		}
		pc.History[base] = currentValue
		pc.Signal[pixel] = currentSignal
	}
	tap := tapIndex
	if tap > pc.HistorySize-1 {
		tap = pc.HistorySize - 1
	}
	return pc.History[base+tap]
}

// Resize reallocates the cache for a new pixel dimension, discarding prior
// history; called when output dimensions change.
func (pc *PixelCache) Resize(width, height int) {
	*pc = *NewPixelCache(width, height, pc.HistorySize)
}

// ScalarCache is a one-history, one-signal cache: audio caches and
// spatial-coordinate-free visual caches.
type ScalarCache struct {
	HistorySize int
	History     []float64
	Signal      float64
}

// NewScalarCache allocates a scalar cache with its signal sentinel set to
// NaN (never ticked).
func NewScalarCache(historySize int) *ScalarCache {
	return &ScalarCache{
		HistorySize: historySize,
		History:     make([]float64, historySize),
		Signal:      math.NaN(),
	}
}

// Tick advances the scalar cache and returns the tapped history value.
func (sc *ScalarCache) Tick(tapIndex int, currentValue, currentSignal float64) float64 {
	if math.IsNaN(sc.Signal) || sc.Signal != currentSignal {
		for slot := sc.HistorySize - 1; slot > 0; slot-- {
			sc.History[slot] = sc.History[slot-1]
		}
		sc.History[0] = currentValue
		sc.Signal = currentSignal
	}
	tap := tapIndex
	if tap > sc.HistorySize-1 {
		tap = sc.HistorySize - 1
	}
	return sc.History[tap]
}
