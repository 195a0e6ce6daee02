package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"feedmirror/internal/models"
	"feedmirror/internal/providers"
	"feedmirror/internal/structures"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// CurrentState is the full initial snapshot from the aggregation server.
// Timestamp becomes the client's synchronization watermark.
type CurrentState struct {
	Timestamp  int64             `json:"timestamp"`
	Categories []models.Category `json:"categories"`
	Feeds      []models.Feed     `json:"feeds"`
	Items      []models.Item     `json:"items"`
	// Per-feed newest item time, RFC3339. Display hints only; seeds the
	// nav without a full item fetch.
	NewestTimestamps map[int64]string `json:"newestTimestamps"`
}

// ServerUpdates is the delta since a given timestamp. MustRefresh means
// the client state is unrecoverably stale and only a restart helps.
type ServerUpdates struct {
	Timestamp   int64             `json:"timestamp"`
	Categories  []models.Category `json:"categories,omitempty"`
	Feeds       []models.Feed     `json:"feeds,omitempty"`
	Items       []models.Item     `json:"items,omitempty"`
	MustRefresh bool              `json:"mustRefresh,omitempty"`
}

// GetItemsRequest targets at most one of FeedIDs/CategoryID, and exactly
// one of Unread, ReadBefore or ReadAfter is meaningful per request.
type GetItemsRequest struct {
	CategoryID      *int64     `json:"categoryId,omitempty"`
	FeedIDs         []int64    `json:"feedIds,omitempty"`
	IncludeFeeds    bool       `json:"includeFeeds,omitempty"`
	Unread          bool       `json:"unread,omitempty"`
	ReadBefore      *time.Time `json:"readBefore,omitempty"`
	ReadBeforeCount int        `json:"readBeforeCount,omitempty"`
	ReadAfter       *time.Time `json:"readAfter,omitempty"`
}

type GetItemsResponse struct {
	Items []models.Item `json:"items"`
	Feeds []models.Feed `json:"feeds,omitempty"`
}

type AddFeedRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	// Force the feed through even if it doesn't appear valid
	Force bool `json:"force"`
}

type AddFeedResponse struct {
	// "success" with a feed, "candidates" with detected feed URLs the
	// user must pick from, or "invalid"
	Status     string       `json:"status"`
	Candidates []string     `json:"candidates,omitempty"`
	Feed       *models.Feed `json:"feed,omitempty"`
}

// FeedEdits carries only the fields the user changed.
type FeedEdits struct {
	UserTitle     *string `json:"userTitle,omitempty"`
	SiteURL       *string `json:"siteUrl,omitempty"`
	CategoryID    *int64  `json:"categoryId,omitempty"`
	ClearCategory bool    `json:"clearCategory,omitempty"`
	Disabled      *bool   `json:"disabled,omitempty"`
}

type CategoryEdits struct {
	Name       *string `json:"name,omitempty"`
	Title      *string `json:"title,omitempty"`
	HiddenNav  *bool   `json:"hiddenNav,omitempty"`
	HiddenMain *bool   `json:"hiddenMain,omitempty"`
	Disabled   *bool   `json:"disabled,omitempty"`
}

type AddCategoryRequest struct {
	Name       string `json:"name"`
	Title      string `json:"title"`
	HiddenNav  bool   `json:"hiddenNav"`
	HiddenMain bool   `json:"hiddenMain"`
}

type ClientInterface interface {
	CurrentState(ctx context.Context) (*CurrentState, error)
	UpdatesSince(ctx context.Context, timestamp int64) (*ServerUpdates, error)
	GetItems(ctx context.Context, req GetItemsRequest) (*GetItemsResponse, error)
	MarkItemRead(ctx context.Context, id int64, read bool) (models.Item, error)
	MarkFeedRead(ctx context.Context, feedID int64, maxItemID int64) ([]models.Item, error)
	AddFeed(ctx context.Context, req AddFeedRequest) (*AddFeedResponse, error)
	EditFeed(ctx context.Context, id int64, edits FeedEdits) (models.Feed, error)
	AddCategory(ctx context.Context, req AddCategoryRequest) (models.Category, error)
	EditCategory(ctx context.Context, id int64, edits CategoryEdits) (models.Category, error)
	ReorderCategories(ctx context.Context, ids []int64) ([]models.Category, error)
}

// Client talks to the upstream aggregation server. Responses may be
// gzip-encoded; decompression is handled here so callers only ever see
// decoded JSON.
type Client struct {
	baseURL string
	http    *http.Client
	logger  providers.Logger
}

func NewClient(conf *structures.Config, logger providers.Logger) ClientInterface {
	return &Client{
		baseURL: strings.TrimSuffix(conf.Upstream.BaseURL, "/"),
		http: &http.Client{
			Timeout: conf.Upstream.Timeout,
			Transport: &http.Transport{
				// We decompress ourselves, don't double up
				DisableCompression: true,
			},
		},
		logger: logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		gson, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", path, err)
		}
		reader = bytes.NewReader(gson)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upstream %s: status %d: %s",
			path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var r io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("upstream %s: bad gzip: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) CurrentState(ctx context.Context) (*CurrentState, error) {
	var cs CurrentState
	if err := c.do(ctx, http.MethodGet, "/api/current", nil, &cs); err != nil {
		return nil, err
	}
	return &cs, nil
}

func (c *Client) UpdatesSince(ctx context.Context, timestamp int64) (*ServerUpdates, error) {
	var su ServerUpdates
	path := "/api/updates/" + strconv.FormatInt(timestamp, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &su); err != nil {
		return nil, err
	}
	return &su, nil
}

func (c *Client) GetItems(ctx context.Context, req GetItemsRequest) (*GetItemsResponse, error) {
	var resp GetItemsResponse
	if err := c.do(ctx, http.MethodPost, "/api/items", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) MarkItemRead(ctx context.Context, id int64, read bool) (models.Item, error) {
	state := "read"
	if !read {
		state = "unread"
	}
	path := fmt.Sprintf("/api/items/%d/%s", id, state)

	var item models.Item
	err := c.do(ctx, http.MethodPost, path, struct{}{}, &item)
	return item, err
}

func (c *Client) MarkFeedRead(ctx context.Context, feedID int64, maxItemID int64) ([]models.Item, error) {
	path := fmt.Sprintf("/api/feeds/%d/read", feedID)
	req := struct {
		MaxItemID int64 `json:"maxItemId"`
	}{MaxItemID: maxItemID}

	var resp struct {
		Items []models.Item `json:"items"`
	}
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *Client) AddFeed(ctx context.Context, req AddFeedRequest) (*AddFeedResponse, error) {
	var resp AddFeedResponse
	if err := c.do(ctx, http.MethodPost, "/api/feeds/add", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) EditFeed(ctx context.Context, id int64, edits FeedEdits) (models.Feed, error) {
	path := fmt.Sprintf("/api/feeds/%d/edit", id)
	req := struct {
		Edit FeedEdits `json:"edit"`
	}{Edit: edits}

	var feed models.Feed
	err := c.do(ctx, http.MethodPost, path, req, &feed)
	return feed, err
}

func (c *Client) AddCategory(ctx context.Context, req AddCategoryRequest) (models.Category, error) {
	var cat models.Category
	err := c.do(ctx, http.MethodPost, "/api/categories/add", req, &cat)
	return cat, err
}

func (c *Client) EditCategory(ctx context.Context, id int64, edits CategoryEdits) (models.Category, error) {
	path := fmt.Sprintf("/api/categories/%d/edit", id)
	req := struct {
		Edit CategoryEdits `json:"edit"`
	}{Edit: edits}

	var cat models.Category
	err := c.do(ctx, http.MethodPost, path, req, &cat)
	return cat, err
}

func (c *Client) ReorderCategories(ctx context.Context, ids []int64) ([]models.Category, error) {
	req := struct {
		CategoryIDs []int64 `json:"categoryIds"`
	}{CategoryIDs: ids}

	var resp struct {
		Categories []models.Category `json:"categories"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/categories/reorder", req, &resp); err != nil {
		return nil, err
	}
	return resp.Categories, nil
}
