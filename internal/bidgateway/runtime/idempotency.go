package runtime

// requestCache remembers the first result per request id, evicting the
// oldest entries past max.
type requestCache struct {
	max     int
	order   []string
	entries map[string]reply
}

func newRequestCache(max int) *requestCache {
	if max <= 0 {
		max = 1024
	}
	return &requestCache{max: max, entries: map[string]reply{}}
}

func (c *requestCache) get(key string) (reply, bool) {
	r, ok := c.entries[key]
	return r, ok
}

func (c *requestCache) put(key string, r reply) {
	if _, ok := c.entries[key]; ok {
		return
	}
	c.entries[key] = r
	c.order = append(c.order, key)
	for len(c.order) > c.max {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
}

func requestKey(principal, requestID string) string {
	if requestID == "" {
		return ""
	}
	return principal + "\x00" + requestID
}
