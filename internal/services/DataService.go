package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"feedmirror/internal/models"
	"feedmirror/internal/providers"
	"feedmirror/internal/structures"
	"feedmirror/internal/upstream"
)

var (
	// ErrMustRefresh means the upstream server can no longer produce a
	// delta for our timestamp. Only a full restart recovers from this.
	ErrMustRefresh = errors.New("local state too old, full reload required")

	ErrUnknownFeed     = errors.New("unknown feed")
	ErrUnknownCategory = errors.New("unknown category")
)

type DataServiceInterface interface {
	// Bootstrap fetches the full upstream state and primes the cache.
	// Safe to call again after a failure; a no-op once it has succeeded.
	Bootstrap(ctx context.Context) error
	// Refresh applies the delta since the current sync timestamp.
	Refresh(ctx context.Context) error
	IsInitialized() bool
	IsStale() bool
	Timestamp() int64
	Snapshot() *models.Data
	// DataForFilters blocks until the cache is primed, then returns the
	// matching subset.
	DataForFilters(ctx context.Context, f models.Filters) (models.FilteredData, error)
	Subscribe(fn UpdateListener) func()
	OnFeedUpdates(fn func()) func()
	OnCategoryUpdates(fn func()) func()
	// PushUpdates feeds locally-originated updates through the same merge
	// pipeline as server deltas.
	PushUpdates(u models.Updates)
	PushEmpty()
	GetFeed(id int64) (models.Feed, error)
	GetCategory(id int64) (models.Category, bool)
	GetCategoryByName(name string) (models.Category, bool)
	// InitialTimestampForFeed is the newest item time the server reported
	// at bootstrap, a display hint for feeds whose items aren't cached.
	InitialTimestampForFeed(id int64) (time.Time, bool)
	HasAllRead(feedID int64) bool
	HasAllReadCategory(categoryID int64) bool
	// FetchMoreReadForFeed pages older read items into the cache. A page
	// shorter than the configured size proves the read history is
	// exhausted.
	FetchMoreReadForFeed(ctx context.Context, feedID int64) error
	FetchMoreReadForCategory(ctx context.Context, categoryID int64) error
}

// DataService owns the canonical cache: the merged Data, the sync
// timestamp, and per-entity fetch metadata. All mutation funnels through
// handleUpdates under one mutex, so consumers always observe a cache
// that some single sequence of merges could have produced.
type DataService struct {
	conf       *structures.Config
	client     upstream.ClientInterface
	bus        *UpdateBus
	loading    *LoadingService
	refreshSvc *RefreshService
	notifier   providers.NotifierInterface
	logger     providers.Logger
	metrics    providers.MetricsProviderInterface

	mu            sync.Mutex
	timestamp     int64
	stale         bool
	data          *models.Data
	feedMeta      map[int64]*models.FeedMetadata
	categoryMeta  map[int64]*models.CategoryMetadata
	initialNewest map[int64]time.Time

	initDone    bool
	initialized chan struct{}
}

func NewDataService(
	conf *structures.Config,
	client upstream.ClientInterface,
	bus *UpdateBus,
	loading *LoadingService,
	refreshSvc *RefreshService,
	notifier providers.NotifierInterface,
	logger providers.Logger,
	metrics providers.MetricsProviderInterface) DataServiceInterface {
	ds := &DataService{
		conf:          conf,
		client:        client,
		bus:           bus,
		loading:       loading,
		refreshSvc:    refreshSvc,
		notifier:      notifier,
		logger:        logger,
		metrics:       metrics,
		data:          &models.Data{},
		feedMeta:      make(map[int64]*models.FeedMetadata),
		categoryMeta:  make(map[int64]*models.CategoryMetadata),
		initialNewest: make(map[int64]time.Time),
		initialized:   make(chan struct{}),
	}
	refreshSvc.OnStarted(func() {
		go ds.runRefresh()
	})
	return ds
}

func (ds *DataService) Bootstrap(ctx context.Context) error {
	if ds.IsInitialized() {
		return nil
	}

	ds.loading.StartLoading()
	defer ds.loading.FinishLoading()

	state, err := ds.client.CurrentState(ctx)
	if err != nil {
		ds.metrics.IncFetchErrors("current")
		ds.notifier.Notify(providers.NotifyError, "Failed to load initial state: "+err.Error())
		return err
	}

	ds.mu.Lock()
	ds.timestamp = state.Timestamp
	ds.data = &models.Data{
		Categories: state.Categories,
		Feeds:      state.Feeds,
		Items:      state.Items,
	}
	for id, raw := range state.NewestTimestamps {
		t, perr := time.Parse(time.RFC3339, raw)
		if perr != nil {
			ds.logger.Warnf(providers.TypeSync,
				"Unparseable newest item time for feed %d: %q", id, raw)
			continue
		}
		ds.initialNewest[id] = t
	}
	for _, c := range state.Categories {
		ds.categoryMeta[c.ID] = models.NewCategoryMetadata(c)
	}
	// The initial snapshot carries every unread item there is, so all
	// feeds start with their unread set fully covered.
	for _, f := range state.Feeds {
		ds.feedMeta[f.ID] = models.NewFeedMetadata(f, true, false)
		if f.CategoryID != nil {
			if cm, ok := ds.categoryMeta[*f.CategoryID]; ok {
				cm.FeedIDs[f.ID] = struct{}{}
			}
		}
	}
	ds.bus.SetSnapshot(ds.data)
	ds.setEntityGaugesLocked()
	if !ds.initDone {
		ds.initDone = true
		close(ds.initialized)
	}
	d := ds.data
	ts := ds.timestamp
	ds.mu.Unlock()

	ds.logger.Infof(providers.TypeSync,
		"Loaded initial state at timestamp %d: %d categories, %d feeds, %d items",
		ts, len(d.Categories), len(d.Feeds), len(d.Items))

	ds.bus.Publish(models.Updates{
		Refresh:    true,
		Categories: d.Categories,
		Feeds:      d.Feeds,
		Items:      d.Items,
	})
	return nil
}

func (ds *DataService) Refresh(ctx context.Context) error {
	if !ds.IsInitialized() {
		return nil
	}
	if ds.IsStale() {
		return ErrMustRefresh
	}

	ds.loading.StartLoading()
	defer ds.loading.FinishLoading()

	su, err := ds.client.UpdatesSince(ctx, ds.Timestamp())
	if err != nil {
		ds.metrics.IncFetchErrors("updates")
		ds.notifier.Notify(providers.NotifyError, "Failed to fetch updates: "+err.Error())
		return err
	}
	if su.MustRefresh {
		ds.mu.Lock()
		ds.stale = true
		ds.mu.Unlock()
		ds.notifier.Notify(providers.NotifyStale,
			"Server can no longer compute a delta for this session")
		return ErrMustRefresh
	}

	ds.handleUpdates(models.Updates{
		Refresh:    true,
		Categories: su.Categories,
		Feeds:      su.Feeds,
		Items:      su.Items,
	})

	// Advance only after the delta is merged, so a crash between the two
	// re-fetches rather than skips.
	ds.mu.Lock()
	if su.Timestamp > ds.timestamp {
		ds.timestamp = su.Timestamp
	}
	ds.mu.Unlock()
	return nil
}

func (ds *DataService) runRefresh() {
	defer ds.refreshSvc.FinishRefresh()

	ctx, cancel := context.WithTimeout(context.Background(), ds.conf.Upstream.Timeout)
	defer cancel()
	if err := ds.Refresh(ctx); err != nil {
		ds.logger.Debugf(providers.TypeSync, "Refresh aborted: %s", err)
	}
}

func (ds *DataService) IsInitialized() bool {
	select {
	case <-ds.initialized:
		return true
	default:
		return false
	}
}

func (ds *DataService) IsStale() bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.stale
}

func (ds *DataService) Timestamp() int64 {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.timestamp
}

func (ds *DataService) Snapshot() *models.Data {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.data
}

func (ds *DataService) DataForFilters(ctx context.Context, f models.Filters) (models.FilteredData, error) {
	select {
	case <-ds.initialized:
	case <-ctx.Done():
		return models.EmptyFilteredData, ctx.Err()
	}

	ds.mu.Lock()
	d := ds.data
	ds.mu.Unlock()
	return models.NewFilteredData(d.Filter(f), f), nil
}

func (ds *DataService) Subscribe(fn UpdateListener) func() {
	return ds.bus.Subscribe(fn)
}

func (ds *DataService) OnFeedUpdates(fn func()) func() {
	return ds.bus.SubscribeFeeds(fn)
}

func (ds *DataService) OnCategoryUpdates(fn func()) func() {
	return ds.bus.SubscribeCategories(fn)
}

func (ds *DataService) PushUpdates(u models.Updates) {
	ds.handleUpdates(u)
}

func (ds *DataService) PushEmpty() {
	ds.bus.PublishEmpty()
}

func (ds *DataService) GetFeed(id int64) (models.Feed, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	fm, ok := ds.feedMeta[id]
	if !ok {
		return models.Feed{}, ErrUnknownFeed
	}
	return fm.Feed, nil
}

func (ds *DataService) GetCategory(id int64) (models.Category, bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	cm, ok := ds.categoryMeta[id]
	if !ok {
		return models.Category{}, false
	}
	return cm.Category, true
}

func (ds *DataService) GetCategoryByName(name string) (models.Category, bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	for _, cm := range ds.categoryMeta {
		if cm.Category.Name == name {
			return cm.Category, true
		}
	}
	return models.Category{}, false
}

func (ds *DataService) InitialTimestampForFeed(id int64) (time.Time, bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	t, ok := ds.initialNewest[id]
	return t, ok
}

func (ds *DataService) HasAllRead(feedID int64) bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	fm, ok := ds.feedMeta[feedID]
	return ok && fm.AllRead
}

func (ds *DataService) HasAllReadCategory(categoryID int64) bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	cm, ok := ds.categoryMeta[categoryID]
	return ok && cm.AllRead
}

// handleUpdates is the single merge pipeline. It folds u into the cache,
// reconciles metadata, queues any backfills the metadata demands, and
// publishes either the delta or, when a metadata transition invalidates
// consumer-side filtering, a replay of the full state. Reports whether a
// replay was published.
func (ds *DataService) handleUpdates(u models.Updates) bool {
	ds.mu.Lock()
	d, changed := ds.data.Merge(u, models.Filters{})
	ds.metrics.IncMerges(changed)

	var backfillUnread map[int64]struct{}
	var backfillRead map[int64]time.Time
	replayed := false
	if changed {
		ds.data = d
		var mustReplay bool
		mustReplay, backfillUnread, backfillRead = ds.mergeMetadataLocked(u)
		if mustReplay {
			// Consumers filtered this entity's dependents against its old
			// state; a delta can't fix that, only the full state can.
			replayed = true
			u = models.Updates{
				Refresh:    u.Refresh,
				Categories: d.Categories,
				Feeds:      d.Feeds,
				Items:      d.Items,
			}
			ds.metrics.IncReplays()
		}
		ds.bus.SetSnapshot(d)
		ds.setEntityGaugesLocked()
	} else {
		u = models.Updates{Refresh: u.Refresh}
	}
	ds.mu.Unlock()

	ds.maybeBackfill(backfillUnread, backfillRead)
	ds.bus.Publish(u)
	return replayed
}

// mergeMetadataLocked reconciles metadata with an update batch that has
// already been merged into ds.data. Tier order matters here too: feed
// decisions read the category metadata updated just above them.
func (ds *DataService) mergeMetadataLocked(u models.Updates) (bool, map[int64]struct{}, map[int64]time.Time) {
	mustReplay := false
	backfillUnread := make(map[int64]struct{})
	backfillRead := make(map[int64]time.Time)

	for _, c := range u.Categories {
		cm, ok := ds.categoryMeta[c.ID]
		if !ok {
			cm = models.NewCategoryMetadata(c)
			ds.categoryMeta[c.ID] = cm
			for _, f := range ds.data.Feeds {
				if f.CategoryID != nil && *f.CategoryID == c.ID {
					cm.FeedIDs[f.ID] = struct{}{}
				}
			}
			mustReplay = true
			continue
		}
		if cm.Category.CommitTimestamp > c.CommitTimestamp {
			continue
		}
		old := cm.Category
		cm.Category = c
		if old.Disabled != c.Disabled ||
			old.HiddenMain != c.HiddenMain ||
			old.HiddenNav != c.HiddenNav {
			mustReplay = true
		}
	}

	for _, f := range u.Feeds {
		fm, ok := ds.feedMeta[f.ID]
		if !ok {
			// A feed created after our sync timestamp has no history the
			// server could be withholding from us.
			fresh := f.CreateTimestamp >= ds.timestamp
			fm = models.NewFeedMetadata(f, fresh, fresh)
			ds.feedMeta[f.ID] = fm
			if f.CategoryID != nil {
				if cm, ok := ds.categoryMeta[*f.CategoryID]; ok {
					cm.FeedIDs[f.ID] = struct{}{}
				}
			}
			if f.Disabled {
				continue
			}
			if f.CategoryID != nil {
				mustReplay = true
			}
			if !fm.HasUnread {
				backfillUnread[f.ID] = struct{}{}
			}
			continue
		}

		if fm.Feed.CommitTimestamp > f.CommitTimestamp {
			continue
		}
		old := fm.Feed
		fm.Feed = f
		categoryChanged := !eqCategoryID(old.CategoryID, f.CategoryID)
		if categoryChanged {
			if old.CategoryID != nil {
				if cm, ok := ds.categoryMeta[*old.CategoryID]; ok {
					delete(cm.FeedIDs, f.ID)
				}
			}
			if f.CategoryID != nil {
				if cm, ok := ds.categoryMeta[*f.CategoryID]; ok {
					cm.FeedIDs[f.ID] = struct{}{}
				}
			}
		}

		if f.Disabled {
			if !old.Disabled {
				mustReplay = true
			}
			continue
		}
		if old.Disabled {
			mustReplay = true
		}
		if !fm.HasUnread {
			backfillUnread[f.ID] = struct{}{}
		}
		if categoryChanged {
			mustReplay = true
		}
		// A feed newly enabled or moved into a category may lack read
		// items its new home has already paged in.
		if categoryChanged || old.Disabled {
			if wm, ok := ds.readBackfillBoundaryLocked(f); ok && !fm.HasReadAfter(wm) {
				backfillRead[f.ID] = wm
			}
		}
	}

	return mustReplay, backfillUnread, backfillRead
}

// readBackfillBoundaryLocked finds how far back the feed's category has
// paged read items, the coverage a member feed is expected to match.
func (ds *DataService) readBackfillBoundaryLocked(f models.Feed) (time.Time, bool) {
	if f.CategoryID == nil {
		return time.Time{}, false
	}
	cm, ok := ds.categoryMeta[*f.CategoryID]
	if !ok {
		return time.Time{}, false
	}
	if wm, ok := cm.ReadAfter(); ok {
		return wm, true
	}
	if cm.AllRead {
		return time.Unix(0, 0), true
	}
	return time.Time{}, false
}

func (ds *DataService) maybeBackfill(unread map[int64]struct{}, read map[int64]time.Time) {
	if len(unread) > 0 {
		ids := make([]int64, 0, len(unread))
		for id := range unread {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		ds.metrics.IncBackfills("unread")
		ds.logger.Debugf(providers.TypeSync, "Backfilling unread items for feeds %v", ids)
		go ds.backfillItems(upstream.GetItemsRequest{FeedIDs: ids, Unread: true})
	}

	// One request per distinct boundary, so feeds sharing a category's
	// watermark ride together.
	byBoundary := make(map[time.Time][]int64)
	for id, wm := range read {
		byBoundary[wm] = append(byBoundary[wm], id)
	}
	for wm, ids := range byBoundary {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		after := wm
		ds.metrics.IncBackfills("read")
		ds.logger.Debugf(providers.TypeSync,
			"Backfilling read items since %s for feeds %v", after.Format(time.RFC3339), ids)
		go ds.backfillItems(upstream.GetItemsRequest{FeedIDs: ids, ReadAfter: &after})
	}
}

func (ds *DataService) backfillItems(req upstream.GetItemsRequest) {
	ds.loading.StartLoading()
	defer ds.loading.FinishLoading()

	ctx, cancel := context.WithTimeout(context.Background(), ds.conf.Upstream.Timeout)
	defer cancel()
	resp, err := ds.client.GetItems(ctx, req)
	if err != nil {
		ds.metrics.IncFetchErrors("items")
		ds.notifier.Notify(providers.NotifyError, "Failed to backfill items: "+err.Error())
		return
	}

	// Mark coverage before merging so the merge's own metadata pass
	// doesn't queue the same backfill again.
	ds.mu.Lock()
	for _, fid := range req.FeedIDs {
		fm, ok := ds.feedMeta[fid]
		if !ok {
			continue
		}
		if req.Unread {
			fm.HasUnread = true
		}
		if req.ReadAfter != nil {
			fm.SetReadAfter(*req.ReadAfter)
		}
	}
	ds.mu.Unlock()

	ds.handleUpdates(models.Updates{Feeds: resp.Feeds, Items: resp.Items})
}

func (ds *DataService) FetchMoreReadForFeed(ctx context.Context, feedID int64) error {
	ds.mu.Lock()
	fm, ok := ds.feedMeta[feedID]
	if !ok {
		ds.mu.Unlock()
		return ErrUnknownFeed
	}
	if fm.AllRead {
		ds.mu.Unlock()
		return nil
	}
	boundary, ok := fm.ReadAfter()
	if !ok {
		boundary = time.Now()
	}
	pageSize := ds.conf.Sync.ReadPageSize
	ds.mu.Unlock()

	ds.loading.StartLoading()
	defer ds.loading.FinishLoading()
	ds.metrics.IncBackfills("read")

	resp, err := ds.client.GetItems(ctx, upstream.GetItemsRequest{
		FeedIDs:         []int64{feedID},
		ReadBefore:      &boundary,
		ReadBeforeCount: pageSize,
	})
	if err != nil {
		ds.metrics.IncFetchErrors("items")
		ds.notifier.Notify(providers.NotifyError, "Failed to fetch read items: "+err.Error())
		return err
	}

	ds.mu.Lock()
	exhausted := false
	if len(resp.Items) < pageSize {
		if !fm.AllRead {
			fm.AllRead = true
			exhausted = true
		}
	} else if oldest := oldestItemTime(resp.Items); !oldest.IsZero() {
		fm.SetReadAfter(oldest)
	}
	ds.mu.Unlock()

	if !ds.handleUpdates(models.Updates{Feeds: resp.Feeds, Items: resp.Items}) && exhausted {
		// Nothing new to merge, but consumers still need to re-derive
		// their "has more" state.
		ds.bus.PublishEmpty()
	}
	return nil
}

func (ds *DataService) FetchMoreReadForCategory(ctx context.Context, categoryID int64) error {
	ds.mu.Lock()
	cm, ok := ds.categoryMeta[categoryID]
	if !ok {
		ds.mu.Unlock()
		return ErrUnknownCategory
	}
	if cm.AllRead {
		ds.mu.Unlock()
		return nil
	}
	boundary, ok := cm.ReadAfter()
	if !ok {
		boundary = time.Now()
	}
	pageSize := ds.conf.Sync.ReadPageSize
	ds.mu.Unlock()

	ds.loading.StartLoading()
	defer ds.loading.FinishLoading()
	ds.metrics.IncBackfills("read")

	resp, err := ds.client.GetItems(ctx, upstream.GetItemsRequest{
		CategoryID:      &categoryID,
		IncludeFeeds:    true,
		ReadBefore:      &boundary,
		ReadBeforeCount: pageSize,
	})
	if err != nil {
		ds.metrics.IncFetchErrors("items")
		ds.notifier.Notify(providers.NotifyError, "Failed to fetch read items: "+err.Error())
		return err
	}

	ds.mu.Lock()
	exhausted := false
	oldest := oldestItemTime(resp.Items)
	if len(resp.Items) < pageSize {
		if !cm.AllRead {
			cm.AllRead = true
			exhausted = true
		}
		// The page covered everything, so every member feed's read
		// history is complete too.
		for fid := range cm.FeedIDs {
			if fm, ok := ds.feedMeta[fid]; ok {
				fm.AllRead = true
			}
		}
	}
	if !oldest.IsZero() {
		cm.SetReadAfter(oldest)
		// A category page spans all member feeds, so each one's own
		// coverage extends at least as far.
		for fid := range cm.FeedIDs {
			if fm, ok := ds.feedMeta[fid]; ok {
				fm.SetReadAfter(oldest)
			}
		}
	}
	ds.mu.Unlock()

	if !ds.handleUpdates(models.Updates{Feeds: resp.Feeds, Items: resp.Items}) && exhausted {
		ds.bus.PublishEmpty()
	}
	return nil
}

func (ds *DataService) setEntityGaugesLocked() {
	ds.metrics.SetEntitiesTotal("categories", len(ds.data.Categories))
	ds.metrics.SetEntitiesTotal("feeds", len(ds.data.Feeds))
	ds.metrics.SetEntitiesTotal("items", len(ds.data.Items))
}

func eqCategoryID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func oldestItemTime(items []models.Item) time.Time {
	var oldest time.Time
	for _, it := range items {
		if oldest.IsZero() || it.Timestamp.Before(oldest) {
			oldest = it.Timestamp
		}
	}
	return oldest
}
