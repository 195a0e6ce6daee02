package services

import (
	"testing"
	"time"

	"feedmirror/internal/models"
	"feedmirror/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUnreadFixture(t *testing.T) (*UnreadService, DataServiceInterface, *dsDeps) {
	t.Helper()
	ds, deps := bootstrapped(t, &testutil.MockUpstreamClient{})
	us := NewUnreadService(ds, deps.logger)
	t.Cleanup(us.Close)
	return us, ds, deps
}

func TestUnreadService_PrimedFromSnapshot(t *testing.T) {
	us, _, _ := newUnreadFixture(t)

	assert.Equal(t, 2, us.MainUnread())
	assert.Equal(t, 1, us.FeedUnread(1))
	assert.Equal(t, 1, us.FeedUnread(2))
	assert.Equal(t, 1, us.CategoryUnread(1))
}

func TestUnreadService_ReadUpdateDecrements(t *testing.T) {
	us, ds, _ := newUnreadFixture(t)

	ds.PushUpdates(models.Updates{Items: []models.Item{
		{ID: 1, FeedID: 1, Timestamp: time.Unix(800, 0), Read: true, CommitTimestamp: 2},
	}})

	assert.Equal(t, 0, us.FeedUnread(1))
	assert.Equal(t, 0, us.CategoryUnread(1))
	assert.Equal(t, 1, us.MainUnread())

	// Flipping it back is counted again, not double-counted
	ds.PushUpdates(models.Updates{Items: []models.Item{
		{ID: 1, FeedID: 1, Timestamp: time.Unix(800, 0), CommitTimestamp: 3},
	}})
	assert.Equal(t, 1, us.FeedUnread(1))
	assert.Equal(t, 2, us.MainUnread())
}

func TestUnreadService_HiddenCategoryExcludedFromMain(t *testing.T) {
	us, ds, _ := newUnreadFixture(t)

	ds.PushUpdates(models.Updates{Categories: []models.Category{
		{ID: 1, Name: "news", Title: "News", HiddenMain: true, CommitTimestamp: 2},
	}})

	// Feed 1 belongs to the hidden category; feed 2 is uncategorized
	assert.Equal(t, 1, us.MainUnread())
	assert.Equal(t, 1, us.FeedUnread(1))

	nav := us.Nav()
	assert.Equal(t, 1, nav.MainUnread)
	// Hidden from main still shows in the nav pane
	require.Len(t, nav.Categories, 1)
	assert.Equal(t, 1, nav.Categories[0].Unread)
}

func TestUnreadService_HiddenNavCategoryOmitted(t *testing.T) {
	us, ds, _ := newUnreadFixture(t)

	ds.PushUpdates(models.Updates{Categories: []models.Category{
		{ID: 1, Name: "news", Title: "News", HiddenNav: true, CommitTimestamp: 2},
	}})

	nav := us.Nav()
	assert.Empty(t, nav.Categories)
	assert.Equal(t, 1, nav.MainUnread)
}

func TestUnreadService_DisabledFeedExcluded(t *testing.T) {
	us, ds, _ := newUnreadFixture(t)

	ds.PushUpdates(models.Updates{Feeds: []models.Feed{
		{ID: 2, URL: "http://b.example/rss", Disabled: true, CreateTimestamp: 900, CommitTimestamp: 2},
	}})

	assert.Equal(t, 1, us.MainUnread())
	nav := us.Nav()
	assert.Empty(t, nav.Uncategorized)
}

func TestUnreadService_NavShape(t *testing.T) {
	us, ds, _ := newUnreadFixture(t)

	p0 := int64(0)
	ds.PushUpdates(models.Updates{
		Categories: []models.Category{
			{ID: 2, Name: "tech", Title: "Tech", SortPosition: &p0, CommitTimestamp: 2},
		},
		Feeds: []models.Feed{
			{ID: 3, URL: "http://c.example/rss", CategoryID: catp(2), CreateTimestamp: 2000, CommitTimestamp: 2},
		},
	})

	nav := us.Nav()
	require.Len(t, nav.Categories, 2)
	// Positioned categories come before positionless ones
	assert.Equal(t, "tech", nav.Categories[0].Category.Name)
	assert.Equal(t, "news", nav.Categories[1].Category.Name)
	require.Len(t, nav.Categories[1].Feeds, 1)
	assert.Equal(t, int64(1), nav.Categories[1].Feeds[0].Feed.ID)
	require.Len(t, nav.Uncategorized, 1)
	assert.Equal(t, int64(2), nav.Uncategorized[0].Feed.ID)
	assert.Equal(t, 2, nav.MainUnread)
}

func TestUnreadService_FeedsWithUnreadSortFirst(t *testing.T) {
	us, ds, _ := newUnreadFixture(t)

	// Feed 3 joins feed 2 as uncategorized, no items cached
	ds.PushUpdates(models.Updates{Feeds: []models.Feed{
		{ID: 3, URL: "http://c.example/rss", Title: "Aardvark Weekly", CreateTimestamp: 2000, CommitTimestamp: 2},
	}})

	nav := us.Nav()
	require.Len(t, nav.Uncategorized, 2)
	// Feed 2 has an unread item, so it wins despite the title order
	assert.Equal(t, int64(2), nav.Uncategorized[0].Feed.ID)
	assert.Equal(t, int64(3), nav.Uncategorized[1].Feed.ID)
}

func TestUnreadService_NewestSeededFromBootstrapHint(t *testing.T) {
	us, ds, _ := newUnreadFixture(t)

	// Feed 3 arrives with no cached items, but the server reported its
	// newest item time at bootstrap
	ds.PushUpdates(models.Updates{Feeds: []models.Feed{
		{ID: 3, URL: "http://c.example/rss", CreateTimestamp: 2000, CommitTimestamp: 2},
	}})

	nav := us.Nav()
	require.Len(t, nav.Uncategorized, 2)
	for _, fs := range nav.Uncategorized {
		if fs.Feed.ID == 3 {
			assert.Equal(t, int64(1000), fs.NewestItem.Unix())
			return
		}
	}
	t.Fatal("feed 3 missing from nav")
}

func TestUnreadService_UnknownFeedItemWarns(t *testing.T) {
	us, _, deps := newUnreadFixture(t)

	// The cache rejects orphan items, so only a server batch that skips
	// the cache could carry one; feed it to the listener directly
	us.handleUpdates(models.Updates{Items: []models.Item{
		{ID: 50, FeedID: 77, Timestamp: time.Unix(990, 0), CommitTimestamp: 2},
	}})

	assert.Equal(t, 1, us.FeedUnread(77))
	assert.Greater(t, deps.logger.Warnings(), 0)
}
