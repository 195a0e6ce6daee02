package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"feedmirror/internal/models"
	"feedmirror/internal/providers"
	"feedmirror/internal/upstream"
)

// MockLogger implements providers.Logger and records calls.
type MockLogger struct {
	mu   sync.Mutex
	Logs []LogEntry
}

type LogEntry struct {
	Level  string
	Type   providers.TypeEnum
	Format string
	Args   []interface{}
}

func (m *MockLogger) record(level string, t providers.TypeEnum, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, LogEntry{Level: level, Type: t, Format: format, Args: args})
}

func (m *MockLogger) Errorf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("error", t, format, args...)
}
func (m *MockLogger) Warnf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("warn", t, format, args...)
}
func (m *MockLogger) Debugf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("debug", t, format, args...)
}
func (m *MockLogger) Infof(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("info", t, format, args...)
}
func (m *MockLogger) Fatalf(t providers.TypeEnum, format string, args ...interface{}) {
	m.record("fatal", t, format, args...)
}
func (m *MockLogger) Close() {}

// Warnings returns the number of warn-level entries recorded so far.
func (m *MockLogger) Warnings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Logs {
		if e.Level == "warn" {
			n++
		}
	}
	return n
}

// MockCache implements providers.CacheProviderInterface.
type MockCache struct {
	mu   sync.Mutex
	Data map[string][]byte
}

func NewMockCache() *MockCache {
	return &MockCache{Data: make(map[string][]byte)}
}

func (m *MockCache) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.Data[key]
	return val, ok
}

func (m *MockCache) Set(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[key] = value
}

// MockNotifier implements providers.NotifierInterface and records every
// notification.
type MockNotifier struct {
	mu            sync.Mutex
	Notifications []providers.Notification
}

func (m *MockNotifier) Notify(kind providers.NotifyKind, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications = append(m.Notifications, providers.Notification{Kind: kind, Message: message})
}

func (m *MockNotifier) Recent(limit int) []providers.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.Notifications) {
		limit = len(m.Notifications)
	}
	out := make([]providers.Notification, limit)
	copy(out, m.Notifications[len(m.Notifications)-limit:])
	return out
}

func (m *MockNotifier) Count(kind providers.NotifyKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, note := range m.Notifications {
		if note.Kind == kind {
			n++
		}
	}
	return n
}

// MockMetrics implements providers.MetricsProviderInterface with plain
// counters.
type MockMetrics struct {
	mu               sync.Mutex
	Requests         int
	CacheHits        int
	CacheMisses      int
	MergesChanged    int
	MergesNoop       int
	Replays          int
	UpdatesPublished int
	Backfills        map[string]int
	FetchErrors      map[string]int
	Entities         map[string]int
	Loading          int
}

func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		Backfills:   make(map[string]int),
		FetchErrors: make(map[string]int),
		Entities:    make(map[string]int),
	}
}

func (m *MockMetrics) IncRequestsTotal(endpoint string, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests++
}

func (m *MockMetrics) ObserveRequestDuration(endpoint string, duration time.Duration) {}

func (m *MockMetrics) IncCacheHits() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheHits++
}

func (m *MockMetrics) IncCacheMisses() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CacheMisses++
}

func (m *MockMetrics) IncMerges(changed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if changed {
		m.MergesChanged++
	} else {
		m.MergesNoop++
	}
}

func (m *MockMetrics) IncReplays() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Replays++
}

func (m *MockMetrics) IncUpdatesPublished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdatesPublished++
}

func (m *MockMetrics) IncBackfills(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Backfills[kind]++
}

func (m *MockMetrics) IncFetchErrors(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchErrors[op]++
}

func (m *MockMetrics) SetEntitiesTotal(kind string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entities[kind] = count
}

func (m *MockMetrics) SetLoading(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Loading = count
}

// ErrMockUnset is returned by MockUpstreamClient methods without an
// injected implementation.
var ErrMockUnset = errors.New("mock behavior not set")

// MockUpstreamClient implements upstream.ClientInterface with
// injectable behavior per method.
type MockUpstreamClient struct {
	mu    sync.Mutex
	Calls []string

	CurrentStateFn      func(ctx context.Context) (*upstream.CurrentState, error)
	UpdatesSinceFn      func(ctx context.Context, timestamp int64) (*upstream.ServerUpdates, error)
	GetItemsFn          func(ctx context.Context, req upstream.GetItemsRequest) (*upstream.GetItemsResponse, error)
	MarkItemReadFn      func(ctx context.Context, id int64, read bool) (models.Item, error)
	MarkFeedReadFn      func(ctx context.Context, feedID, maxItemID int64) ([]models.Item, error)
	AddFeedFn           func(ctx context.Context, req upstream.AddFeedRequest) (*upstream.AddFeedResponse, error)
	EditFeedFn          func(ctx context.Context, id int64, edits upstream.FeedEdits) (models.Feed, error)
	AddCategoryFn       func(ctx context.Context, req upstream.AddCategoryRequest) (models.Category, error)
	EditCategoryFn      func(ctx context.Context, id int64, edits upstream.CategoryEdits) (models.Category, error)
	ReorderCategoriesFn func(ctx context.Context, ids []int64) ([]models.Category, error)
}

func (m *MockUpstreamClient) called(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, name)
}

// CallCount returns how many times the named method was invoked.
func (m *MockUpstreamClient) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c == name {
			n++
		}
	}
	return n
}

func (m *MockUpstreamClient) CurrentState(ctx context.Context) (*upstream.CurrentState, error) {
	m.called("CurrentState")
	if m.CurrentStateFn != nil {
		return m.CurrentStateFn(ctx)
	}
	return nil, ErrMockUnset
}

func (m *MockUpstreamClient) UpdatesSince(ctx context.Context, timestamp int64) (*upstream.ServerUpdates, error) {
	m.called("UpdatesSince")
	if m.UpdatesSinceFn != nil {
		return m.UpdatesSinceFn(ctx, timestamp)
	}
	return nil, ErrMockUnset
}

func (m *MockUpstreamClient) GetItems(ctx context.Context, req upstream.GetItemsRequest) (*upstream.GetItemsResponse, error) {
	m.called("GetItems")
	if m.GetItemsFn != nil {
		return m.GetItemsFn(ctx, req)
	}
	return nil, ErrMockUnset
}

func (m *MockUpstreamClient) MarkItemRead(ctx context.Context, id int64, read bool) (models.Item, error) {
	m.called("MarkItemRead")
	if m.MarkItemReadFn != nil {
		return m.MarkItemReadFn(ctx, id, read)
	}
	return models.Item{}, ErrMockUnset
}

func (m *MockUpstreamClient) MarkFeedRead(ctx context.Context, feedID, maxItemID int64) ([]models.Item, error) {
	m.called("MarkFeedRead")
	if m.MarkFeedReadFn != nil {
		return m.MarkFeedReadFn(ctx, feedID, maxItemID)
	}
	return nil, ErrMockUnset
}

func (m *MockUpstreamClient) AddFeed(ctx context.Context, req upstream.AddFeedRequest) (*upstream.AddFeedResponse, error) {
	m.called("AddFeed")
	if m.AddFeedFn != nil {
		return m.AddFeedFn(ctx, req)
	}
	return nil, ErrMockUnset
}

func (m *MockUpstreamClient) EditFeed(ctx context.Context, id int64, edits upstream.FeedEdits) (models.Feed, error) {
	m.called("EditFeed")
	if m.EditFeedFn != nil {
		return m.EditFeedFn(ctx, id, edits)
	}
	return models.Feed{}, ErrMockUnset
}

func (m *MockUpstreamClient) AddCategory(ctx context.Context, req upstream.AddCategoryRequest) (models.Category, error) {
	m.called("AddCategory")
	if m.AddCategoryFn != nil {
		return m.AddCategoryFn(ctx, req)
	}
	return models.Category{}, ErrMockUnset
}

func (m *MockUpstreamClient) EditCategory(ctx context.Context, id int64, edits upstream.CategoryEdits) (models.Category, error) {
	m.called("EditCategory")
	if m.EditCategoryFn != nil {
		return m.EditCategoryFn(ctx, id, edits)
	}
	return models.Category{}, ErrMockUnset
}

func (m *MockUpstreamClient) ReorderCategories(ctx context.Context, ids []int64) ([]models.Category, error) {
	m.called("ReorderCategories")
	if m.ReorderCategoriesFn != nil {
		return m.ReorderCategoriesFn(ctx, ids)
	}
	return nil, ErrMockUnset
}
