package youtube

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gregjones/httpcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newLRUCache(2)

	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	_, ok := c.Get("a")
	require.True(t, ok)
	c.Set("c", []byte("3"))

	assert.Equal(t, 2, c.Len())
	_, ok = c.Get("b")
	assert.False(t, ok, "b was least recently used")
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte("1"), got)

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestLRUCache_NonPositiveSize(t *testing.T) {
	c := newLRUCache(0)
	c.Set("a", []byte("1"))
	c.Set("b", []byte("2"))
	assert.Equal(t, 1, c.Len())
}

func TestCachingTransport_BoundedAcrossWatermarks(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "private, max-age=300")
		_, _ = io.WriteString(w, searchResponse)
	}))
	t.Cleanup(srv.Close)

	const size = 4
	cache := newLRUCache(size)
	client := &http.Client{Transport: newCachingTransport(cache, srv.Client().Transport)}

	get := func(publishedAfter time.Time) *http.Response {
		t.Helper()
		q := url.Values{}
		q.Set("part", "snippet")
		q.Set("key", "key-a")
		q.Set("publishedAfter", publishedAfter.UTC().Format(time.RFC3339))
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/search?"+q.Encode(), nil)
		require.NoError(t, err)
		resp, err := client.Do(req)
		require.NoError(t, err)
		_, err = io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		return resp
	}

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	var last time.Time
	for i := 0; i < 5*size; i++ {
		last = base.Add(time.Duration(i) * time.Minute)
		get(last)
	}

	assert.Equal(t, 5*size, int(hits.Load()))
	assert.Equal(t, size, cache.Len(), "cache stays at its cap as the watermark moves")

	resp := get(last)
	assert.Equal(t, "1", resp.Header.Get(httpcache.XFromCache), "latest response is still served from cache")
	assert.Equal(t, 5*size, int(hits.Load()))

	get(base)
	assert.Equal(t, 5*size+1, int(hits.Load()), "oldest response was evicted")
	assert.Equal(t, size, cache.Len())
}
