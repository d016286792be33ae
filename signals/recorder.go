// Package signals keeps the buy and sell markers a chart renderer overlays on
// the bar series.
package signals

import (
	"sync"
	"time"
)

// Marker is one executed action plotted at (Time, Price).
type Marker struct {
	Time  time.Time
	Price float64
}

// Recorder holds two append-only marker sequences. Growth is unbounded;
// renderers window with LastBuys/LastSells.
type Recorder struct {
	mu    sync.RWMutex
	buys  []Marker
	sells []Marker
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) RecordBuy(t time.Time, price float64) {
	r.mu.Lock()
	r.buys = append(r.buys, Marker{Time: t, Price: price})
	r.mu.Unlock()
}

func (r *Recorder) RecordSell(t time.Time, price float64) {
	r.mu.Lock()
	r.sells = append(r.sells, Marker{Time: t, Price: price})
	r.mu.Unlock()
}

func (r *Recorder) Buys() []Marker { return r.LastBuys(0) }

func (r *Recorder) Sells() []Marker { return r.LastSells(0) }

// LastBuys returns a copy of the newest n buy markers; n <= 0 means all.
func (r *Recorder) LastBuys(n int) []Marker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return tail(r.buys, n)
}

// LastSells returns a copy of the newest n sell markers; n <= 0 means all.
func (r *Recorder) LastSells(n int) []Marker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return tail(r.sells, n)
}

func tail(ms []Marker, n int) []Marker {
	if n <= 0 || n > len(ms) {
		n = len(ms)
	}
	out := make([]Marker, n)
	copy(out, ms[len(ms)-n:])
	return out
}
