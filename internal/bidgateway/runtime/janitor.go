package runtime

import (
	"context"
	"time"
)

// StartJanitor closes completed sessions once they have been kept for the
// retention window, so late subscribers still get the final events.
func (c *Coordinator) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := c.clock.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				c.evictCompleted(c.clock.Now())
			}
		}
	}()
}

func (c *Coordinator) evictCompleted(now time.Time) int {
	c.mu.Lock()
	expired := make([]string, 0)
	for id, rt := range c.sessions {
		done := rt.completedAt.Load()
		if done == 0 {
			continue
		}
		if now.Sub(time.Unix(0, done)) >= c.opts.Retention {
			expired = append(expired, id)
		}
	}
	c.mu.Unlock()

	for _, id := range expired {
		c.Close(id, "retention_elapsed")
	}
	return len(expired)
}
