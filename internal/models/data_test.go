package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int64) *int64 { return &v }

func testItem(id, feedID, commit int64, read bool) Item {
	return Item{
		ID:              id,
		FeedID:          feedID,
		Title:           "item",
		Timestamp:       time.Unix(1000+id, 0),
		Read:            read,
		CommitTimestamp: commit,
	}
}

func testFeed(id, commit int64) Feed {
	return Feed{ID: id, URL: "http://example.com/feed", CommitTimestamp: commit}
}

func testCategory(id int64, name string, commit int64) Category {
	return Category{ID: id, Name: name, Title: name, CommitTimestamp: commit}
}

func TestData_MergeAddsNewEntities(t *testing.T) {
	d := &Data{}
	nd, changed := d.Merge(Updates{
		Categories: []Category{testCategory(1, "news", 1)},
		Feeds:      []Feed{testFeed(1, 1), testFeed(2, 1)},
		Items:      []Item{testItem(1, 1, 1, false), testItem(2, 2, 1, false)},
	}, Filters{})

	require.True(t, changed)
	assert.Len(t, nd.Categories, 1)
	assert.Len(t, nd.Feeds, 2)
	assert.Len(t, nd.Items, 2)
	// Original untouched
	assert.Empty(t, d.Items)
}

func TestData_MergeKeepsOrderById(t *testing.T) {
	d := &Data{
		Feeds: []Feed{testFeed(1, 1)},
		Items: []Item{testItem(1, 1, 1, false), testItem(3, 1, 1, false)},
	}
	nd, changed := d.Merge(Updates{Items: []Item{testItem(2, 1, 1, false)}}, Filters{})

	require.True(t, changed)
	require.Len(t, nd.Items, 3)
	assert.Equal(t, int64(1), nd.Items[0].ID)
	assert.Equal(t, int64(2), nd.Items[1].ID)
	assert.Equal(t, int64(3), nd.Items[2].ID)
}

func TestData_MergeLowerCommitLoses(t *testing.T) {
	current := testItem(1, 1, 5, true)
	d := &Data{Feeds: []Feed{testFeed(1, 1)}, Items: []Item{current}}

	stale := testItem(1, 1, 3, false)
	nd, changed := d.Merge(Updates{Items: []Item{stale}}, Filters{})

	// The stale echo still counts as a change, but the cached entity wins
	require.True(t, changed)
	require.Len(t, nd.Items, 1)
	assert.True(t, nd.Items[0].Read)
	assert.Equal(t, int64(5), nd.Items[0].CommitTimestamp)
}

func TestData_MergeEqualCommitUpdateWins(t *testing.T) {
	current := testItem(1, 1, 5, false)
	d := &Data{Feeds: []Feed{testFeed(1, 1)}, Items: []Item{current}}

	optimistic := current
	optimistic.Read = true
	nd, changed := d.Merge(Updates{Items: []Item{optimistic}}, Filters{})

	require.True(t, changed)
	assert.True(t, nd.Items[0].Read)
}

func TestData_MergeNoOpReturnsSameReference(t *testing.T) {
	d := &Data{Feeds: []Feed{testFeed(1, 1)}, Items: []Item{testItem(1, 1, 5, false)}}
	nd, changed := d.Merge(Updates{}, Filters{})

	assert.False(t, changed)
	assert.Same(t, d, nd)
}

func TestData_MergeIsIdempotentForOlderEchoes(t *testing.T) {
	d := &Data{}
	u := Updates{Feeds: []Feed{testFeed(1, 1)}, Items: []Item{testItem(1, 1, 5, true)}}
	d1, _ := d.Merge(u, Filters{})
	d2, _ := d1.Merge(u, Filters{})

	assert.Equal(t, d1.Items, d2.Items)
}

func TestData_FilterUnreadOnly(t *testing.T) {
	d := &Data{
		Feeds: []Feed{testFeed(1, 1)},
		Items: []Item{testItem(1, 1, 1, true), testItem(2, 1, 1, false)},
	}
	fd := d.Filter(Filters{UnreadOnly: true})

	require.Len(t, fd.Items, 1)
	assert.Equal(t, int64(2), fd.Items[0].ID)
}

func TestFilteredData_KeepUnlessRefresh(t *testing.T) {
	f := Filters{UnreadOnly: true, KeepUnlessRefresh: true}
	base := &Data{
		Feeds: []Feed{testFeed(1, 1)},
		Items: []Item{testItem(1, 1, 1, false)},
	}
	fd := NewFilteredData(base.Filter(f), f)

	// Marking the item read outside a refresh keeps it in place
	read := testItem(1, 1, 2, true)
	fd, changed := fd.Merge(Updates{Items: []Item{read}})
	require.True(t, changed)
	require.Len(t, fd.Items(), 1)
	assert.True(t, fd.Items()[0].Read)

	// The next refresh sweeps it out
	fd, changed = fd.Merge(Updates{Refresh: true})
	require.True(t, changed)
	assert.Empty(t, fd.Items())
}

func TestFilteredData_MergeNoOpPreservesReceiver(t *testing.T) {
	f := Filters{UnreadOnly: true}
	fd := NewFilteredData(&Data{}, f)

	nfd, changed := fd.Merge(Updates{})
	assert.False(t, changed)
	assert.Same(t, fd.Data, nfd.Data)
}

func TestUpdates_IsEmpty(t *testing.T) {
	assert.True(t, Updates{}.IsEmpty())
	assert.False(t, Updates{Refresh: true}.IsEmpty())
	assert.False(t, Updates{Items: []Item{testItem(1, 1, 1, false)}}.IsEmpty())
}
