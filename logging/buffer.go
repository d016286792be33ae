package logging

import (
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Buffer is a logrus hook that keeps the last N formatted lines of the
// entries it matches. Each engine owns one, filtered on its symbol field,
// and hands it to whatever renders the engine.
type Buffer struct {
	mu     sync.Mutex
	lines  []string
	size   int
	fields logrus.Fields
}

// NewBuffer keeps up to size lines of entries whose fields include every
// key/value in match. A nil match accepts everything.
func NewBuffer(size int, match logrus.Fields) *Buffer {
	if size <= 0 {
		size = 200
	}
	return &Buffer{size: size, fields: match, lines: make([]string, 0, size)}
}

func (b *Buffer) Levels() []logrus.Level { return logrus.AllLevels }

func (b *Buffer) Fire(e *logrus.Entry) error {
	for k, v := range b.fields {
		if got, ok := e.Data[k]; !ok || got != v {
			return nil
		}
	}
	line, err := e.String()
	if err != nil {
		return err
	}
	b.append(strings.TrimRight(line, "\n"))
	return nil
}

func (b *Buffer) append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.lines) == b.size {
		copy(b.lines, b.lines[1:])
		b.lines = b.lines[:b.size-1]
	}
	b.lines = append(b.lines, line)
}

// Lines returns the buffered lines, oldest first.
func (b *Buffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}

// fanout is the single hook Attach installs on a logger. Buffers come and
// go behind it, so the logger's hook list stays the same length.
type fanout struct {
	mu   sync.RWMutex
	bufs map[*Buffer]struct{}
}

func (f *fanout) Levels() []logrus.Level { return logrus.AllLevels }

func (f *fanout) Fire(e *logrus.Entry) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for b := range f.bufs {
		if err := b.Fire(e); err != nil {
			return err
		}
	}
	return nil
}

// attachMu serializes installing the fanout hook.
var attachMu sync.Mutex

// Attach routes l's entries into b until the returned detach func is
// called. Detach is safe to call more than once.
func Attach(l *logrus.Logger, b *Buffer) (detach func()) {
	attachMu.Lock()
	var f *fanout
	for _, h := range l.Hooks[logrus.InfoLevel] {
		if fo, ok := h.(*fanout); ok {
			f = fo
			break
		}
	}
	if f == nil {
		f = &fanout{bufs: make(map[*Buffer]struct{})}
		l.AddHook(f)
	}
	attachMu.Unlock()

	f.mu.Lock()
	f.bufs[b] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.bufs, b)
			f.mu.Unlock()
		})
	}
}
