package youtube

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/tubefeed/internal/application"
	"github.com/ericfisherdev/tubefeed/internal/domain/model"
	"github.com/ericfisherdev/tubefeed/internal/domain/port/driven"
)

const searchResponse = `{
  "kind": "youtube#searchListResponse",
  "pageInfo": {"totalResults": 2, "resultsPerPage": 2},
  "items": [
    {
      "id": {"kind": "youtube#video", "videoId": "vid-1"},
      "snippet": {
        "publishedAt": "2026-03-10T12:00:00Z",
        "channelId": "UC1",
        "title": "Derby &amp; highlights",
        "description": "All the goals",
        "channelTitle": "Sports One",
        "thumbnails": {
          "default": {"url": "https://i.ytimg.com/vi/vid-1/default.jpg", "width": 120, "height": 90},
          "high": {"url": "https://i.ytimg.com/vi/vid-1/hqdefault.jpg"}
        }
      }
    },
    {
      "id": {"kind": "youtube#video", "videoId": "vid-2"},
      "snippet": {
        "publishedAt": "2026-03-10T11:00:00Z",
        "channelId": "UC2",
        "title": "Press conference"
      }
    }
  ]
}`

const quotaResponse = `{
  "error": {
    "code": 403,
    "message": "The request cannot be completed because you have exceeded your quota.",
    "errors": [{"message": "quota exceeded", "domain": "youtube.quota", "reason": "quotaExceeded"}]
  }
}`

func setupTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithHTTPClient(srv.Client(), srv.URL)
}

func TestSearch_RequestParameters(t *testing.T) {
	var got *http.Request
	client := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": []}`))
	})

	after := time.Date(2026, 3, 10, 9, 15, 30, 0, time.FixedZone("UTC+1", 3600))
	items, err := client.Search(context.Background(), "secret-key", model.SearchQuery{
		Text:           "football",
		PublishedAfter: after,
		MaxResults:     25,
	})
	require.NoError(t, err)
	assert.Empty(t, items)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, "/youtube/v3/search", got.URL.Path)

	q := got.URL.Query()
	assert.Equal(t, "secret-key", q.Get("key"))
	assert.Equal(t, "snippet", q.Get("part"))
	assert.Equal(t, "football", q.Get("q"))
	assert.Equal(t, "video", q.Get("type"))
	assert.Equal(t, "date", q.Get("order"))
	assert.Equal(t, "25", q.Get("maxResults"))
	assert.Equal(t, "2026-03-10T08:15:30Z", q.Get("publishedAfter"))
}

func TestSearch_KeyVariesPerCall(t *testing.T) {
	var keys []string
	client := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"items": []}`))
	})

	q := model.SearchQuery{Text: "football", MaxResults: 5}
	_, err := client.Search(context.Background(), "key-a", q)
	require.NoError(t, err)
	_, err = client.Search(context.Background(), "key-b", q)
	require.NoError(t, err)

	assert.Equal(t, []string{"key-a", "key-b"}, keys)
}

func TestSearch_MapsItems(t *testing.T) {
	client := setupTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchResponse))
	})

	items, err := client.Search(context.Background(), "k", model.SearchQuery{Text: "football", MaxResults: 50})
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "vid-1", first.VideoID)
	assert.Equal(t, "Derby &amp; highlights", first.Title, "raw text is left for normalization")
	assert.Equal(t, "All the goals", first.Description)
	assert.Equal(t, "2026-03-10T12:00:00Z", first.PublishedAt)
	assert.Equal(t, "UC1", first.ChannelID)
	assert.Equal(t, "Sports One", first.ChannelTitle)
	require.NotNil(t, first.Thumbnails.Default)
	assert.Equal(t, int64(120), first.Thumbnails.Default.Width)
	assert.Nil(t, first.Thumbnails.Medium)
	require.NotNil(t, first.Thumbnails.High)
	assert.Zero(t, first.Thumbnails.High.Width)

	second := items[1]
	assert.Equal(t, "vid-2", second.VideoID)
	assert.Empty(t, second.ChannelTitle)
	assert.Nil(t, second.Thumbnails.Default)
}

func TestSearch_QuotaExceeded(t *testing.T) {
	client := setupTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(quotaResponse))
	})

	_, err := client.Search(context.Background(), "k", model.SearchQuery{Text: "football", MaxResults: 5})
	require.Error(t, err)

	var apiErr *driven.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "quotaExceeded", apiErr.Reason)
	assert.Contains(t, apiErr.Message, "exceeded your quota")
	assert.True(t, application.IsQuotaRejection(err))
}

func TestSearch_ServerErrorIsNotQuota(t *testing.T) {
	client := setupTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad request"))
	})

	_, err := client.Search(context.Background(), "k", model.SearchQuery{Text: "football", MaxResults: 5})
	require.Error(t, err)

	var apiErr *driven.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "bad request", apiErr.Message)
	assert.False(t, application.IsQuotaRejection(err))
}

func TestSearch_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client := NewClientWithHTTPClient(srv.Client(), srv.URL)
	srv.Close()

	_, err := client.Search(context.Background(), "very-secret-key", model.SearchQuery{Text: "football", MaxResults: 5})
	require.Error(t, err)

	var apiErr *driven.APIError
	assert.False(t, errors.As(err, &apiErr))
	assert.NotContains(t, err.Error(), "very-secret-key")
	assert.False(t, application.IsQuotaRejection(err))
}

func TestNewClientWithHTTPClient_EndpointSlash(t *testing.T) {
	c := NewClientWithHTTPClient(&http.Client{}, "http://127.0.0.1:9")
	assert.Equal(t, "http://127.0.0.1:9/", c.endpoint)
	assert.Equal(t, http.DefaultTransport, c.base)
}
