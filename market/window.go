package market

import "sync"

// Window keeps the most recent bars, oldest first, up to a fixed size. It is
// safe for concurrent use so a renderer can read while the engine appends.
type Window struct {
	mu   sync.RWMutex
	size int
	bars []Bar
}

// NewWindow returns a window holding at most size bars. A size below one is
// treated as one.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{size: size, bars: make([]Bar, 0, size)}
}

// Push appends b, evicting the oldest bar when the window is full. A bar with
// the same timestamp as the newest bar replaces it.
func (w *Window) Push(b Bar) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if n := len(w.bars); n > 0 && w.bars[n-1].Time.Equal(b.Time) {
		w.bars[n-1] = b
		return
	}
	if len(w.bars) == w.size {
		copy(w.bars, w.bars[1:])
		w.bars = w.bars[:len(w.bars)-1]
	}
	w.bars = append(w.bars, b)
}

// Bars returns a copy of the window contents.
func (w *Window) Bars() []Bar {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Bar, len(w.bars))
	copy(out, w.bars)
	return out
}

// Last returns the newest bar.
func (w *Window) Last() (Bar, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.bars) == 0 {
		return Bar{}, false
	}
	return w.bars[len(w.bars)-1], true
}

func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.bars)
}
