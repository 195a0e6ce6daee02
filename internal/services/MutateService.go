package services

import (
	"context"
	"errors"
	"sort"

	"feedmirror/internal/models"
	"feedmirror/internal/providers"
	"feedmirror/internal/upstream"
)

var ErrUnknownItem = errors.New("unknown item")

type MutateServiceInterface interface {
	// MarkItemRead flips an item's read state, optimistically in the
	// cache first, then authoritatively via the server.
	MarkItemRead(ctx context.Context, id int64, read bool) (models.Item, error)
	// MarkFeedRead marks every item of the feed up to maxItemID as read.
	// Zero maxItemID means up to the newest cached item.
	MarkFeedRead(ctx context.Context, feedID, maxItemID int64) error
	AddFeed(ctx context.Context, req upstream.AddFeedRequest) (*upstream.AddFeedResponse, error)
	EditFeed(ctx context.Context, id int64, edits upstream.FeedEdits) (models.Feed, error)
	AddCategory(ctx context.Context, req upstream.AddCategoryRequest) (models.Category, error)
	EditCategory(ctx context.Context, id int64, edits upstream.CategoryEdits) (models.Category, error)
	ReorderCategories(ctx context.Context, ids []int64) ([]models.Category, error)
}

// MutateService performs user mutations against the upstream server.
// Every mutation is applied to the cache optimistically before the
// request goes out; on failure the pre-mutation entity is pushed back,
// which the merge admits because the commit timestamps are equal. The
// server's response entity carries a newer commit timestamp and always
// wins over the optimistic copy.
type MutateService struct {
	data     DataServiceInterface
	client   upstream.ClientInterface
	loading  *LoadingService
	notifier providers.NotifierInterface
	logger   providers.Logger
	metrics  providers.MetricsProviderInterface
}

func NewMutateService(
	data DataServiceInterface,
	client upstream.ClientInterface,
	loading *LoadingService,
	notifier providers.NotifierInterface,
	logger providers.Logger,
	metrics providers.MetricsProviderInterface) MutateServiceInterface {
	return &MutateService{
		data:     data,
		client:   client,
		loading:  loading,
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
	}
}

func (ms *MutateService) findItem(id int64) (models.Item, bool) {
	items := ms.data.Snapshot().Items
	i := sort.Search(len(items), func(i int) bool { return items[i].ID >= id })
	if i < len(items) && items[i].ID == id {
		return items[i], true
	}
	return models.Item{}, false
}

func (ms *MutateService) MarkItemRead(ctx context.Context, id int64, read bool) (models.Item, error) {
	it, ok := ms.findItem(id)
	if !ok {
		return models.Item{}, ErrUnknownItem
	}
	if it.Read == read {
		return it, nil
	}

	optimistic := it
	optimistic.Read = read
	ms.data.PushUpdates(models.Updates{Items: []models.Item{optimistic}})

	ms.loading.StartLoading()
	nit, err := ms.client.MarkItemRead(ctx, id, read)
	ms.loading.FinishLoading()
	if err != nil {
		ms.rollback(models.Updates{Items: []models.Item{it}}, "item", err)
		return it, err
	}

	ms.data.PushUpdates(models.Updates{Items: []models.Item{nit}})
	return nit, nil
}

func (ms *MutateService) MarkFeedRead(ctx context.Context, feedID, maxItemID int64) error {
	snap := ms.data.Snapshot()
	var originals, optimistic []models.Item
	var newestID int64
	for _, it := range snap.Items {
		if it.FeedID != feedID {
			continue
		}
		if it.ID > newestID {
			newestID = it.ID
		}
		if it.Read || (maxItemID > 0 && it.ID > maxItemID) {
			continue
		}
		originals = append(originals, it)
		o := it
		o.Read = true
		optimistic = append(optimistic, o)
	}
	if maxItemID == 0 {
		maxItemID = newestID
	}

	if len(optimistic) > 0 {
		ms.data.PushUpdates(models.Updates{Items: optimistic})
	}

	ms.loading.StartLoading()
	items, err := ms.client.MarkFeedRead(ctx, feedID, maxItemID)
	ms.loading.FinishLoading()
	if err != nil {
		if len(originals) > 0 {
			ms.rollback(models.Updates{Items: originals}, "feed", err)
		} else {
			ms.fail("feed", err)
		}
		return err
	}

	sortItemsByID(items)
	ms.data.PushUpdates(models.Updates{Items: items})
	return nil
}

func (ms *MutateService) AddFeed(ctx context.Context, req upstream.AddFeedRequest) (*upstream.AddFeedResponse, error) {
	ms.loading.StartLoading()
	resp, err := ms.client.AddFeed(ctx, req)
	ms.loading.FinishLoading()
	if err != nil {
		ms.fail("feed", err)
		return nil, err
	}

	if resp.Feed != nil {
		ms.data.PushUpdates(models.Updates{Feeds: []models.Feed{*resp.Feed}})
	}
	return resp, nil
}

func (ms *MutateService) EditFeed(ctx context.Context, id int64, edits upstream.FeedEdits) (models.Feed, error) {
	old, err := ms.data.GetFeed(id)
	if err != nil {
		return models.Feed{}, err
	}

	optimistic := old
	if edits.UserTitle != nil {
		optimistic.UserTitle = *edits.UserTitle
	}
	if edits.SiteURL != nil {
		optimistic.SiteURL = *edits.SiteURL
	}
	if edits.ClearCategory {
		optimistic.CategoryID = nil
	} else if edits.CategoryID != nil {
		cid := *edits.CategoryID
		optimistic.CategoryID = &cid
	}
	if edits.Disabled != nil {
		optimistic.Disabled = *edits.Disabled
	}
	ms.data.PushUpdates(models.Updates{Feeds: []models.Feed{optimistic}})

	ms.loading.StartLoading()
	nf, err := ms.client.EditFeed(ctx, id, edits)
	ms.loading.FinishLoading()
	if err != nil {
		ms.rollback(models.Updates{Feeds: []models.Feed{old}}, "feed", err)
		return old, err
	}

	ms.data.PushUpdates(models.Updates{Feeds: []models.Feed{nf}})
	return nf, nil
}

func (ms *MutateService) AddCategory(ctx context.Context, req upstream.AddCategoryRequest) (models.Category, error) {
	ms.loading.StartLoading()
	cat, err := ms.client.AddCategory(ctx, req)
	ms.loading.FinishLoading()
	if err != nil {
		ms.fail("category", err)
		return models.Category{}, err
	}

	ms.data.PushUpdates(models.Updates{Categories: []models.Category{cat}})
	return cat, nil
}

func (ms *MutateService) EditCategory(ctx context.Context, id int64, edits upstream.CategoryEdits) (models.Category, error) {
	old, ok := ms.data.GetCategory(id)
	if !ok {
		return models.Category{}, ErrUnknownCategory
	}

	optimistic := old
	if edits.Name != nil {
		optimistic.Name = *edits.Name
	}
	if edits.Title != nil {
		optimistic.Title = *edits.Title
	}
	if edits.HiddenNav != nil {
		optimistic.HiddenNav = *edits.HiddenNav
	}
	if edits.HiddenMain != nil {
		optimistic.HiddenMain = *edits.HiddenMain
	}
	if edits.Disabled != nil {
		optimistic.Disabled = *edits.Disabled
	}
	ms.data.PushUpdates(models.Updates{Categories: []models.Category{optimistic}})

	ms.loading.StartLoading()
	nc, err := ms.client.EditCategory(ctx, id, edits)
	ms.loading.FinishLoading()
	if err != nil {
		ms.rollback(models.Updates{Categories: []models.Category{old}}, "category", err)
		return old, err
	}

	ms.data.PushUpdates(models.Updates{Categories: []models.Category{nc}})
	return nc, nil
}

func (ms *MutateService) ReorderCategories(ctx context.Context, ids []int64) ([]models.Category, error) {
	snap := ms.data.Snapshot()
	byID := make(map[int64]models.Category, len(snap.Categories))
	for _, c := range snap.Categories {
		byID[c.ID] = c
	}

	var originals, optimistic []models.Category
	for pos, id := range ids {
		c, ok := byID[id]
		if !ok {
			continue
		}
		originals = append(originals, c)
		oc := c
		p := int64(pos)
		oc.SortPosition = &p
		optimistic = append(optimistic, oc)
	}
	sortCategoriesByID(originals)
	sortCategoriesByID(optimistic)
	if len(optimistic) > 0 {
		ms.data.PushUpdates(models.Updates{Categories: optimistic})
	}

	ms.loading.StartLoading()
	cats, err := ms.client.ReorderCategories(ctx, ids)
	ms.loading.FinishLoading()
	if err != nil {
		if len(originals) > 0 {
			ms.rollback(models.Updates{Categories: originals}, "category", err)
		} else {
			ms.fail("category", err)
		}
		return nil, err
	}

	sortCategoriesByID(cats)
	ms.data.PushUpdates(models.Updates{Categories: cats})
	return cats, nil
}

func (ms *MutateService) rollback(u models.Updates, kind string, err error) {
	ms.fail(kind, err)
	ms.data.PushUpdates(u)
}

func (ms *MutateService) fail(kind string, err error) {
	ms.metrics.IncFetchErrors("mutation")
	ms.notifier.Notify(providers.NotifyError, "Failed to update "+kind+": "+err.Error())
}

func sortItemsByID(items []models.Item) {
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
}

func sortCategoriesByID(cats []models.Category) {
	sort.Slice(cats, func(i, j int) bool { return cats[i].ID < cats[j].ID })
}
