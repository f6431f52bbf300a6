package application_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ericfisherdev/tubefeed/internal/domain/model"
	"github.com/ericfisherdev/tubefeed/internal/domain/port/driven"
)

// --- In-memory KVStore ---

type memKV struct {
	mu     sync.Mutex
	data   map[string]string
	getErr error
	setErr error
}

var _ driven.KVStore = (*memKV)(nil)

func newMemKV() *memKV {
	return &memKV{data: make(map[string]string)}
}

func (m *memKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *memKV) MultiSet(_ context.Context, pairs map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	for k, v := range pairs {
		m.data[k] = v
	}
	return nil
}

func (m *memKV) Close() error { return nil }

// --- Controllable clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// --- In-memory VideoStore ---

type memVideoStore struct {
	mu        sync.Mutex
	videos    map[string]model.Video
	upserts   int
	upsertErr error
	latestErr error
}

var _ driven.VideoStore = (*memVideoStore)(nil)

func newMemVideoStore() *memVideoStore {
	return &memVideoStore{videos: make(map[string]model.Video)}
}

func (m *memVideoStore) LatestPublishedAt(_ context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.latestErr != nil {
		return time.Time{}, false, m.latestErr
	}
	var latest time.Time
	var found bool
	for _, v := range m.videos {
		if !found || v.PublishedAt.After(latest) {
			latest = v.PublishedAt
			found = true
		}
	}
	return latest, found, nil
}

func (m *memVideoStore) UpsertBatch(_ context.Context, videos []model.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	for _, v := range videos {
		m.videos[v.VideoID] = v
	}
	return nil
}

func (m *memVideoStore) sorted(match func(model.Video) bool) []model.Video {
	out := make([]model.Video, 0, len(m.videos))
	for _, v := range m.videos {
		if match(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	return out
}

func page(videos []model.Video, offset, limit int) []model.Video {
	if offset >= len(videos) {
		return []model.Video{}
	}
	end := offset + limit
	if end > len(videos) {
		end = len(videos)
	}
	return videos[offset:end]
}

func (m *memVideoStore) ListPage(_ context.Context, offset, limit int) ([]model.Video, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.sorted(func(model.Video) bool { return true })
	return page(all, offset, limit), len(all), nil
}

func (m *memVideoStore) SearchText(_ context.Context, pattern string, offset, limit int) ([]model.Video, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := strings.ToLower(pattern)
	all := m.sorted(func(v model.Video) bool {
		return strings.Contains(strings.ToLower(v.Title), p) || strings.Contains(strings.ToLower(v.Description), p)
	})
	return page(all, offset, limit), len(all), nil
}

func (m *memVideoStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.videos)
}

// --- Scripted SearchClient ---

type searchCall struct {
	APIKey string
	Query  model.SearchQuery
}

type fakeSearchClient struct {
	mu      sync.Mutex
	calls   []searchCall
	respond func(call searchCall) ([]model.SearchItem, error)
}

var _ driven.SearchClient = (*fakeSearchClient)(nil)

func (f *fakeSearchClient) Search(_ context.Context, apiKey string, q model.SearchQuery) ([]model.SearchItem, error) {
	f.mu.Lock()
	call := searchCall{APIKey: apiKey, Query: q}
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.respond == nil {
		return nil, nil
	}
	return f.respond(call)
}

func (f *fakeSearchClient) Calls() []searchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]searchCall(nil), f.calls...)
}

// item builds a complete raw search item.
func item(id string, publishedAt time.Time) model.SearchItem {
	return model.SearchItem{
		VideoID:      id,
		Title:        "title " + id,
		Description:  "description " + id,
		PublishedAt:  publishedAt.UTC().Format(time.RFC3339),
		ChannelID:    "chan-1",
		ChannelTitle: "Channel One",
	}
}
