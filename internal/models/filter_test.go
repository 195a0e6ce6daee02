package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func categorizedFeed(id, commit int64, categoryID int64) Feed {
	f := testFeed(id, commit)
	f.CategoryID = intp(categoryID)
	return f
}

func TestFilters_ValidOnlyExcludesDisabledFeedsAndTheirItems(t *testing.T) {
	disabled := testFeed(2, 1)
	disabled.Disabled = true
	d := &Data{
		Feeds: []Feed{testFeed(1, 1), disabled},
		Items: []Item{testItem(1, 1, 1, false), testItem(2, 2, 1, false)},
	}

	fd := d.Filter(Filters{ValidOnly: true})

	require.Len(t, fd.Feeds, 1)
	assert.Equal(t, int64(1), fd.Feeds[0].ID)
	require.Len(t, fd.Items, 1)
	assert.Equal(t, int64(1), fd.Items[0].ID)
}

func TestFilters_MainViewHidesHiddenCategories(t *testing.T) {
	hidden := testCategory(1, "comics", 1)
	hidden.HiddenMain = true
	d := &Data{
		Categories: []Category{hidden, testCategory(2, "news", 1)},
		Feeds:      []Feed{categorizedFeed(1, 1, 1), categorizedFeed(2, 1, 2)},
		Items:      []Item{testItem(1, 1, 1, false), testItem(2, 2, 1, false)},
	}

	fd := d.Filter(Filters{ValidOnly: true, IsMainView: true})

	require.Len(t, fd.Categories, 1)
	assert.Equal(t, "news", fd.Categories[0].Name)
	require.Len(t, fd.Feeds, 1)
	assert.Equal(t, int64(2), fd.Feeds[0].ID)
	require.Len(t, fd.Items, 1)
	assert.Equal(t, int64(2), fd.Items[0].ID)
}

func TestFilters_CategoryNamePinsHiddenCategory(t *testing.T) {
	hidden := testCategory(1, "comics", 1)
	hidden.HiddenMain = true
	d := &Data{
		Categories: []Category{hidden, testCategory(2, "news", 1)},
		Feeds:      []Feed{categorizedFeed(1, 1, 1), categorizedFeed(2, 1, 2), testFeed(3, 1)},
		Items:      []Item{testItem(1, 1, 1, false), testItem(2, 2, 1, false), testItem(3, 3, 1, false)},
	}

	// Addressing a hidden category by name includes it and only it
	fd := d.Filter(Filters{ValidOnly: true, CategoryName: "comics"})

	require.Len(t, fd.Categories, 1)
	assert.Equal(t, "comics", fd.Categories[0].Name)
	require.Len(t, fd.Feeds, 1)
	assert.Equal(t, int64(1), fd.Feeds[0].ID)
	require.Len(t, fd.Items, 1)
	assert.Equal(t, int64(1), fd.Items[0].ID)
}

func TestFilters_FeedIDScopesItems(t *testing.T) {
	d := &Data{
		Feeds: []Feed{testFeed(1, 1), testFeed(2, 1)},
		Items: []Item{testItem(1, 1, 1, false), testItem(2, 2, 1, false)},
	}

	fd := d.Filter(Filters{FeedID: intp(2)})

	require.Len(t, fd.Feeds, 1)
	assert.Equal(t, int64(2), fd.Feeds[0].ID)
	require.Len(t, fd.Items, 1)
	assert.Equal(t, int64(2), fd.Items[0].ID)
}

func TestFilters_ItemIDsAllowListOverridesReadState(t *testing.T) {
	d := &Data{
		Feeds: []Feed{testFeed(1, 1)},
		Items: []Item{testItem(1, 1, 1, true), testItem(2, 1, 1, true), testItem(3, 1, 1, false)},
	}

	fd := d.Filter(Filters{UnreadOnly: true, ItemIDs: []int64{2}})

	// Only the allow-listed item survives, read or not
	require.Len(t, fd.Items, 1)
	assert.Equal(t, int64(2), fd.Items[0].ID)
}

func TestFilters_ExcludeTiers(t *testing.T) {
	d := &Data{
		Categories: []Category{testCategory(1, "news", 1)},
		Feeds:      []Feed{testFeed(1, 1)},
		Items:      []Item{testItem(1, 1, 1, false)},
	}

	fd := d.Filter(Filters{ExcludeItems: true})
	assert.Len(t, fd.Feeds, 1)
	assert.Empty(t, fd.Items)
}

func TestFilters_KeyIsCanonical(t *testing.T) {
	a := Filters{UnreadOnly: true, ItemIDs: []int64{3, 1, 2}}
	b := Filters{UnreadOnly: true, ItemIDs: []int64{1, 2, 3}}

	assert.Equal(t, a.Key(), b.Key())
	assert.True(t, a.Equal(b))
}

func TestFilters_KeyDistinguishesScopes(t *testing.T) {
	assert.NotEqual(t,
		Filters{FeedID: intp(1)}.Key(),
		Filters{FeedID: intp(2)}.Key())
	assert.NotEqual(t,
		Filters{CategoryName: "news"}.Key(),
		Filters{CategoryName: "tech"}.Key())
	assert.NotEqual(t, Filters{UnreadOnly: true}.Key(), Filters{}.Key())
}

func TestEmptyFilters_MatchNothing(t *testing.T) {
	d := &Data{
		Categories: []Category{testCategory(1, "news", 1)},
		Feeds:      []Feed{testFeed(1, 1)},
		Items:      []Item{testItem(1, 1, 1, false)},
	}

	fd := d.Filter(EmptyFilters)
	assert.Empty(t, fd.Categories)
	assert.Empty(t, fd.Feeds)
	assert.Empty(t, fd.Items)
}
