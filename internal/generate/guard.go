package generate

import "sync"

// tokenArena is the duplicate-request guard: one ownership token per
// segment index. An attempt must acquire its index's token before its
// first suspension point and release it unconditionally when done, so
// an initial run and a manual retry can never both work the same
// segment.
type tokenArena struct {
	mu   sync.Mutex
	held []bool
}

func newTokenArena(n int) *tokenArena {
	return &tokenArena{held: make([]bool, n)}
}

// Acquire takes the token for index i. It returns false when the index
// is out of range or the token is already held.
func (a *tokenArena) Acquire(i int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i < 0 || i >= len(a.held) || a.held[i] {
		return false
	}
	a.held[i] = true
	return true
}

// Release returns the token for index i. Releasing an unheld or
// out-of-range token is a no-op.
func (a *tokenArena) Release(i int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i >= 0 && i < len(a.held) {
		a.held[i] = false
	}
}

// Held reports whether the token for index i is currently held.
func (a *tokenArena) Held(i int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return i >= 0 && i < len(a.held) && a.held[i]
}
