package youtube

import (
	"net/http"

	"github.com/gregjones/httpcache"
	lru "github.com/hashicorp/golang-lru/v2"
)

// defaultCacheEntries caps the responses kept by NewClient. Search URLs carry
// the watermark and the rotating key, so most entries are never read again.
const defaultCacheEntries = 128

var _ httpcache.Cache = (*lruCache)(nil)

// lruCache is an httpcache.Cache that evicts the least recently used
// response once it holds size entries.
type lruCache struct {
	entries *lru.Cache[string, []byte]
}

func newLRUCache(size int) *lruCache {
	if size < 1 {
		size = 1
	}
	// lru.New only fails for a non-positive size.
	entries, _ := lru.New[string, []byte](size)
	return &lruCache{entries: entries}
}

func (c *lruCache) Get(key string) ([]byte, bool) {
	return c.entries.Get(key)
}

func (c *lruCache) Set(key string, resp []byte) {
	c.entries.Add(key, resp)
}

func (c *lruCache) Delete(key string) {
	c.entries.Remove(key)
}

// Len returns the number of cached responses.
func (c *lruCache) Len() int {
	return c.entries.Len()
}

// newCachingTransport returns an httpcache transport backed by a bounded
// cache over base. A nil base uses http.DefaultTransport.
func newCachingTransport(cache httpcache.Cache, base http.RoundTripper) *httpcache.Transport {
	t := httpcache.NewTransport(cache)
	t.Transport = base
	return t
}
