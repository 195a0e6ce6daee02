package services

import (
	"context"
	"testing"
	"time"

	"feedmirror/internal/models"
	"feedmirror/internal/testutil"
	"feedmirror/internal/upstream"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMutateFixture(t *testing.T) (MutateServiceInterface, DataServiceInterface, *dsDeps) {
	t.Helper()
	ds, deps := bootstrapped(t, &testutil.MockUpstreamClient{})
	ms := NewMutateService(ds, deps.client, deps.loading, deps.notifier, deps.logger, deps.metrics)
	return ms, ds, deps
}

func snapshotItem(t *testing.T, ds DataServiceInterface, id int64) models.Item {
	t.Helper()
	for _, it := range ds.Snapshot().Items {
		if it.ID == id {
			return it
		}
	}
	t.Fatalf("item %d not in snapshot", id)
	return models.Item{}
}

func TestMutateService_MarkItemRead(t *testing.T) {
	ms, ds, deps := newMutateFixture(t)
	deps.client.MarkItemReadFn = func(_ context.Context, id int64, read bool) (models.Item, error) {
		it := snapshotItem(t, ds, id)
		it.Read = read
		it.CommitTimestamp = 10
		return it, nil
	}

	it, err := ms.MarkItemRead(context.Background(), 1, true)
	require.NoError(t, err)
	assert.True(t, it.Read)
	assert.True(t, snapshotItem(t, ds, 1).Read)
	assert.Equal(t, int64(10), snapshotItem(t, ds, 1).CommitTimestamp)
	assert.Equal(t, 0, deps.loading.Count())
}

func TestMutateService_MarkItemReadAlreadyInState(t *testing.T) {
	ms, _, deps := newMutateFixture(t)

	it, err := ms.MarkItemRead(context.Background(), 1, false)
	require.NoError(t, err)
	assert.False(t, it.Read)
	assert.Equal(t, 0, deps.client.CallCount("MarkItemRead"))
}

func TestMutateService_MarkItemReadUnknown(t *testing.T) {
	ms, _, _ := newMutateFixture(t)
	_, err := ms.MarkItemRead(context.Background(), 99, true)
	assert.ErrorIs(t, err, ErrUnknownItem)
}

func TestMutateService_MarkItemReadRollsBackOnFailure(t *testing.T) {
	ms, ds, deps := newMutateFixture(t)
	deps.client.MarkItemReadFn = func(context.Context, int64, bool) (models.Item, error) {
		// The optimistic flip is already visible at this point
		assert.True(t, snapshotItem(t, ds, 1).Read)
		return models.Item{}, assert.AnError
	}

	it, err := ms.MarkItemRead(context.Background(), 1, true)
	require.ErrorIs(t, err, assert.AnError)
	assert.False(t, it.Read)
	assert.False(t, snapshotItem(t, ds, 1).Read)
	assert.Equal(t, 1, deps.notifier.Count("error"))
	assert.Equal(t, 0, deps.loading.Count())
}

func TestMutateService_MarkFeedReadUpToMax(t *testing.T) {
	ms, ds, deps := newMutateFixture(t)
	ds.PushUpdates(models.Updates{Items: []models.Item{
		{ID: 3, FeedID: 1, Timestamp: time.Unix(900, 0), CommitTimestamp: 2},
		{ID: 4, FeedID: 1, Timestamp: time.Unix(950, 0), CommitTimestamp: 2},
	}})

	var gotMax int64
	deps.client.MarkFeedReadFn = func(_ context.Context, feedID, maxItemID int64) ([]models.Item, error) {
		gotMax = maxItemID
		return []models.Item{
			{ID: 1, FeedID: 1, Timestamp: time.Unix(800, 0), Read: true, CommitTimestamp: 10},
			{ID: 3, FeedID: 1, Timestamp: time.Unix(900, 0), Read: true, CommitTimestamp: 10},
		}, nil
	}

	require.NoError(t, ms.MarkFeedRead(context.Background(), 1, 3))
	assert.Equal(t, int64(3), gotMax)
	assert.True(t, snapshotItem(t, ds, 1).Read)
	assert.True(t, snapshotItem(t, ds, 3).Read)
	assert.False(t, snapshotItem(t, ds, 4).Read)
}

func TestMutateService_MarkFeedReadZeroMeansNewestCached(t *testing.T) {
	ms, ds, deps := newMutateFixture(t)
	ds.PushUpdates(models.Updates{Items: []models.Item{
		{ID: 3, FeedID: 1, Timestamp: time.Unix(900, 0), CommitTimestamp: 2},
	}})

	var gotMax int64
	deps.client.MarkFeedReadFn = func(_ context.Context, feedID, maxItemID int64) ([]models.Item, error) {
		gotMax = maxItemID
		return nil, nil
	}

	require.NoError(t, ms.MarkFeedRead(context.Background(), 1, 0))
	assert.Equal(t, int64(3), gotMax)
}

func TestMutateService_MarkFeedReadRollsBackOnFailure(t *testing.T) {
	ms, ds, deps := newMutateFixture(t)
	deps.client.MarkFeedReadFn = func(context.Context, int64, int64) ([]models.Item, error) {
		return nil, assert.AnError
	}

	require.Error(t, ms.MarkFeedRead(context.Background(), 1, 0))
	assert.False(t, snapshotItem(t, ds, 1).Read)
	assert.Equal(t, 1, deps.notifier.Count("error"))
}

func TestMutateService_AddFeedPushesResult(t *testing.T) {
	ms, ds, deps := newMutateFixture(t)
	deps.client.AddFeedFn = func(_ context.Context, req upstream.AddFeedRequest) (*upstream.AddFeedResponse, error) {
		assert.Equal(t, "http://new.example/rss", req.URL)
		return &upstream.AddFeedResponse{
			Status: "success",
			Feed:   &models.Feed{ID: 5, URL: req.URL, CreateTimestamp: 2000, CommitTimestamp: 10},
		}, nil
	}

	resp, err := ms.AddFeed(context.Background(), upstream.AddFeedRequest{URL: "http://new.example/rss"})
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Status)
	assert.Len(t, ds.Snapshot().Feeds, 3)

	f, err := ds.GetFeed(5)
	require.NoError(t, err)
	assert.Equal(t, "http://new.example/rss", f.URL)
}

func TestMutateService_AddFeedCandidatesNotCached(t *testing.T) {
	ms, ds, deps := newMutateFixture(t)
	deps.client.AddFeedFn = func(context.Context, upstream.AddFeedRequest) (*upstream.AddFeedResponse, error) {
		return &upstream.AddFeedResponse{
			Status:     "candidates",
			Candidates: []string{"http://site.example/feed.xml"},
		}, nil
	}

	resp, err := ms.AddFeed(context.Background(), upstream.AddFeedRequest{URL: "http://site.example"})
	require.NoError(t, err)
	assert.Len(t, resp.Candidates, 1)
	assert.Len(t, ds.Snapshot().Feeds, 2)
}

func TestMutateService_EditFeedRollsBackOnFailure(t *testing.T) {
	ms, ds, deps := newMutateFixture(t)
	deps.client.EditFeedFn = func(context.Context, int64, upstream.FeedEdits) (models.Feed, error) {
		// Optimistic copy is live while the request is in flight
		f, _ := ds.GetFeed(1)
		assert.Nil(t, f.CategoryID)
		return models.Feed{}, assert.AnError
	}

	old, err := ms.EditFeed(context.Background(), 1, upstream.FeedEdits{ClearCategory: true})
	require.ErrorIs(t, err, assert.AnError)
	require.NotNil(t, old.CategoryID)

	f, err := ds.GetFeed(1)
	require.NoError(t, err)
	require.NotNil(t, f.CategoryID)
	assert.Equal(t, int64(1), *f.CategoryID)
	assert.Equal(t, 1, deps.notifier.Count("error"))
}

func TestMutateService_EditFeedAppliesServerCopy(t *testing.T) {
	ms, ds, deps := newMutateFixture(t)
	deps.client.EditFeedFn = func(_ context.Context, id int64, edits upstream.FeedEdits) (models.Feed, error) {
		f, _ := ds.GetFeed(id)
		f.UserTitle = *edits.UserTitle
		f.CommitTimestamp = 10
		return f, nil
	}

	title := "renamed"
	nf, err := ms.EditFeed(context.Background(), 1, upstream.FeedEdits{UserTitle: &title})
	require.NoError(t, err)
	assert.Equal(t, "renamed", nf.UserTitle)

	f, err := ds.GetFeed(1)
	require.NoError(t, err)
	assert.Equal(t, "renamed", f.UserTitle)
	assert.Equal(t, int64(10), f.CommitTimestamp)
}

func TestMutateService_EditCategoryRollsBackOnFailure(t *testing.T) {
	ms, ds, deps := newMutateFixture(t)
	deps.client.EditCategoryFn = func(context.Context, int64, upstream.CategoryEdits) (models.Category, error) {
		return models.Category{}, assert.AnError
	}

	hidden := true
	_, err := ms.EditCategory(context.Background(), 1, upstream.CategoryEdits{HiddenNav: &hidden})
	require.ErrorIs(t, err, assert.AnError)

	c, ok := ds.GetCategory(1)
	require.True(t, ok)
	assert.False(t, c.HiddenNav)
}

func TestMutateService_EditCategoryUnknown(t *testing.T) {
	ms, _, _ := newMutateFixture(t)
	name := "x"
	_, err := ms.EditCategory(context.Background(), 99, upstream.CategoryEdits{Name: &name})
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestMutateService_AddCategory(t *testing.T) {
	ms, ds, deps := newMutateFixture(t)
	deps.client.AddCategoryFn = func(_ context.Context, req upstream.AddCategoryRequest) (models.Category, error) {
		return models.Category{ID: 2, Name: req.Name, Title: req.Title, CommitTimestamp: 10}, nil
	}

	cat, err := ms.AddCategory(context.Background(), upstream.AddCategoryRequest{Name: "tech", Title: "Tech"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), cat.ID)

	c, ok := ds.GetCategoryByName("tech")
	require.True(t, ok)
	assert.Equal(t, "Tech", c.Title)
}

func TestMutateService_ReorderCategories(t *testing.T) {
	ms, ds, deps := newMutateFixture(t)
	ds.PushUpdates(models.Updates{Categories: []models.Category{
		{ID: 2, Name: "tech", Title: "Tech", CommitTimestamp: 2},
	}})

	deps.client.ReorderCategoriesFn = func(_ context.Context, ids []int64) ([]models.Category, error) {
		assert.Equal(t, []int64{2, 1}, ids)
		p0, p1 := int64(0), int64(1)
		return []models.Category{
			{ID: 2, Name: "tech", Title: "Tech", SortPosition: &p0, CommitTimestamp: 10},
			{ID: 1, Name: "news", Title: "News", SortPosition: &p1, CommitTimestamp: 10},
		}, nil
	}

	cats, err := ms.ReorderCategories(context.Background(), []int64{2, 1})
	require.NoError(t, err)
	require.Len(t, cats, 2)
	// Pushed batches are ID-ascending regardless of the requested order
	assert.Equal(t, int64(1), cats[0].ID)

	c1, _ := ds.GetCategory(1)
	c2, _ := ds.GetCategory(2)
	require.NotNil(t, c1.SortPosition)
	require.NotNil(t, c2.SortPosition)
	assert.Equal(t, int64(1), *c1.SortPosition)
	assert.Equal(t, int64(0), *c2.SortPosition)
}

func TestMutateService_ReorderCategoriesRollsBackOnFailure(t *testing.T) {
	ms, ds, deps := newMutateFixture(t)
	deps.client.ReorderCategoriesFn = func(context.Context, []int64) ([]models.Category, error) {
		return nil, assert.AnError
	}

	_, err := ms.ReorderCategories(context.Background(), []int64{1})
	require.ErrorIs(t, err, assert.AnError)

	c, ok := ds.GetCategory(1)
	require.True(t, ok)
	assert.Nil(t, c.SortPosition)
}
