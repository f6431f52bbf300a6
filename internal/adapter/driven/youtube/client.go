// Package youtube implements the SearchClient port using the YouTube Data API
// v3 client library.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/ericfisherdev/tubefeed/internal/domain/model"
	"github.com/ericfisherdev/tubefeed/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SearchClient = (*Client)(nil)

const requestTimeout = 30 * time.Second

// Client implements the driven.SearchClient port. The API key varies per call,
// so a service is built for each search on top of a shared base transport.
type Client struct {
	base     http.RoundTripper
	timeout  time.Duration
	endpoint string
}

// NewClient creates a YouTube search client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching, LRU-bounded)
//  2. API key injection per call
//  3. youtube/v3 (Data API client)
func NewClient() *Client {
	return &Client{
		base:    newCachingTransport(newLRUCache(defaultCacheEntries), nil),
		timeout: requestTimeout,
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and
// endpoint. An empty endpoint uses the library's default. This constructor is
// intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, endpoint string) *Client {
	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if endpoint != "" && !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	return &Client{
		base:     base,
		timeout:  httpClient.Timeout,
		endpoint: endpoint,
	}
}

// Search runs search.list with part=snippet, type=video, order=date, bounded
// by q.PublishedAfter and q.MaxResults. API rejections are returned as
// *driven.APIError.
func (c *Client) Search(ctx context.Context, apiKey string, q model.SearchQuery) ([]model.SearchItem, error) {
	svc, err := c.service(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	call := svc.Search.List([]string{"snippet"}).
		Q(q.Text).
		Type("video").
		Order("date").
		MaxResults(int64(q.MaxResults)).
		Context(ctx)
	if !q.PublishedAfter.IsZero() {
		call = call.PublishedAfter(q.PublishedAfter.UTC().Format(time.RFC3339))
	}

	resp, err := call.Do()
	if err != nil {
		return nil, mapError(err)
	}

	slog.Debug("youtube search complete",
		"query", q.Text,
		"results", len(resp.Items),
		"total_results", totalResults(resp),
	)

	items := make([]model.SearchItem, 0, len(resp.Items))
	for _, r := range resp.Items {
		items = append(items, mapSearchResult(r))
	}
	return items, nil
}

func (c *Client) service(ctx context.Context, apiKey string) (*yt.Service, error) {
	httpClient := &http.Client{
		Transport: &transport.APIKey{Key: apiKey, Transport: c.base},
		Timeout:   c.timeout,
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}

	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return svc, nil
}

// mapError converts a *googleapi.Error into a *driven.APIError. Transport
// errors drop the request URL, which carries the API key.
func mapError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			return fmt.Errorf("youtube search: %s: %w", uerr.Op, uerr.Err)
		}
		return fmt.Errorf("youtube search: %w", err)
	}

	apiErr := &driven.APIError{
		StatusCode: gerr.Code,
		Message:    gerr.Message,
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(gerr.Body)
	}
	if len(gerr.Errors) > 0 {
		apiErr.Reason = gerr.Errors[0].Reason
	}
	return apiErr
}

func mapSearchResult(r *yt.SearchResult) model.SearchItem {
	var item model.SearchItem
	if r == nil {
		return item
	}
	if r.Id != nil {
		item.VideoID = r.Id.VideoId
	}

	s := r.Snippet
	if s == nil {
		return item
	}
	item.Title = s.Title
	item.Description = s.Description
	item.PublishedAt = s.PublishedAt
	item.ChannelID = s.ChannelId
	item.ChannelTitle = s.ChannelTitle

	if s.Thumbnails != nil {
		item.Thumbnails = model.RawThumbnails{
			Default: mapThumbnail(s.Thumbnails.Default),
			Medium:  mapThumbnail(s.Thumbnails.Medium),
			High:    mapThumbnail(s.Thumbnails.High),
		}
	}
	return item
}

func mapThumbnail(t *yt.Thumbnail) *model.Thumbnail {
	if t == nil || t.Url == "" {
		return nil
	}
	return &model.Thumbnail{URL: t.Url, Width: t.Width, Height: t.Height}
}

func totalResults(resp *yt.SearchListResponse) int64 {
	if resp.PageInfo == nil {
		return 0
	}
	return resp.PageInfo.TotalResults
}
