package filter

import "sync"

// Cache remembers the last response it passed down, and hands it out
// again for an identical request. Any upstream change drops it, and a
// pull that overlapped a change is not kept.
type Cache struct {
	Base

	mu   sync.Mutex
	gen  uint64 // bumped on every upstream change
	key  string
	resp *Response
	hits int
}

func NewCache(prev Node) *Cache {
	c := &Cache{}
	c.Init(c, "cache", prev)
	return c
}

func (c *Cache)Image(req *Request) *Response {
	key := req.key()

	c.mu.Lock()
	if c.resp != nil && c.key == key {
		c.hits++
		resp := c.resp.Clone()
		c.mu.Unlock()
		return resp
	}
	gen := c.gen
	c.mu.Unlock()

	resp := c.Base.Image(req)

	c.mu.Lock()
	if c.gen == gen {
		c.key, c.resp = key, resp
	}
	c.mu.Unlock()

	return resp.Clone()
}

func (c *Cache)Hits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits
}

func (c *Cache)PreviousChanged(ev ChangeEvent) {
	c.mu.Lock()
	c.gen++
	c.resp = nil
	c.mu.Unlock()
	c.Changed(ev.Reason)
}
