package dedup

// Window remembers the last N ids in arrival order. It is not safe for
// concurrent use; callers guard it with their own lock.
type Window struct {
	ring []string
	next int
	full bool
	seen map[string]struct{}
}

// NewWindow creates a window holding up to size ids. A size below 1 returns
// a disabled window that never reports duplicates.
func NewWindow(size int) *Window {
	if size < 1 {
		return &Window{}
	}
	return &Window{
		ring: make([]string, size),
		seen: make(map[string]struct{}, size),
	}
}

// Seen records id and reports whether it was already in the window.
// Empty ids are never considered duplicates.
func (w *Window) Seen(id string) bool {
	if id == "" || len(w.ring) == 0 {
		return false
	}
	if _, ok := w.seen[id]; ok {
		return true
	}

	// Evict the oldest id once the ring has wrapped
	if w.full {
		delete(w.seen, w.ring[w.next])
	}
	w.ring[w.next] = id
	w.seen[id] = struct{}{}
	w.next = (w.next + 1) % len(w.ring)
	if w.next == 0 {
		w.full = true
	}
	return false
}

// Reset forgets every id. Called when a new broker session starts, since
// message ids are only unique within one session.
func (w *Window) Reset() {
	for i := range w.ring {
		w.ring[i] = ""
	}
	clear(w.seen)
	w.next = 0
	w.full = false
}

// Len returns the number of remembered ids.
func (w *Window) Len() int {
	return len(w.seen)
}
