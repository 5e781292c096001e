package cleanup

import (
	"path/filepath"
	"sync"
)

// Leases marks files as in use. Age-based sweeps leave a leased file alone
// until every holder has released it. Leases live only in memory.
// The zero value is ready to use.
type Leases struct {
	mu      sync.Mutex
	holders map[string]int
}

// NewLeases returns an empty lease table.
func NewLeases() *Leases {
	return &Leases{holders: make(map[string]int)}
}

// Acquire marks path as in use and returns a release func. Calling release
// more than once has no further effect.
func (l *Leases) Acquire(path string) (release func()) {
	key := filepath.Clean(path)

	l.mu.Lock()
	if l.holders == nil {
		l.holders = make(map[string]int)
	}
	l.holders[key]++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.holders[key] <= 1 {
				delete(l.holders, key)
				return
			}
			l.holders[key]--
		})
	}
}

// Held reports whether path currently has at least one holder.
func (l *Leases) Held(path string) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holders[filepath.Clean(path)] > 0
}

// Len returns the number of leased paths.
func (l *Leases) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.holders)
}
