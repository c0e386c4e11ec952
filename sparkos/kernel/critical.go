package kernel

import "sync"

// Critical is the kernel's only lock: it stands in for masking interrupts.
// Every wait list, free list, counter and the timer skip list is protected by
// it. Code already inside the section calls the ...Locked helpers instead of
// entering again.
type Critical struct {
	mu  sync.Mutex
	seq uint32
}

// Token is the saved state returned by Lock and consumed by Restore.
type Token struct {
	seq uint32
}

// Lock enters the critical section.
func (c *Critical) Lock() Token {
	c.mu.Lock()
	c.seq++
	return Token{seq: c.seq}
}

// Restore leaves the critical section entered by the Lock that returned tok.
func (c *Critical) Restore(tok Token) {
	if tok.seq == 0 || tok.seq != c.seq {
		c.mu.Unlock()
		fatalf("critical section restored with stale token %d (current %d)", tok.seq, c.seq)
	}
	c.mu.Unlock()
}
