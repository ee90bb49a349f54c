package sshexec

import "sync"

// capture accumulates stdout and stderr up to limit bytes. The first write
// past the limit closes full, so the caller can end the session instead of
// draining output that will be rejected anyway.
type capture struct {
	mu       sync.Mutex
	buf      []byte
	limit    int
	overflow bool
	full     chan struct{}
}

func newCapture(limit int) *capture {
	return &capture{limit: limit, full: make(chan struct{})}
}

func (c *capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	room := c.limit - len(c.buf)
	if len(p) > room {
		if !c.overflow {
			c.overflow = true
			close(c.full)
		}
		if room > 0 {
			c.buf = append(c.buf, p[:room]...)
		}
		return len(p), nil
	}
	c.buf = append(c.buf, p...)
	return len(p), nil
}

func (c *capture) result() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(c.buf), c.overflow
}
