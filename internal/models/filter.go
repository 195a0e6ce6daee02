package models

import (
	"sort"
	"strconv"
	"strings"
)

// Filters describes what a consumer wants out of the cache. Pure data, no
// behavior; interpreted by DataFilter during a merge pass. The zero value
// keeps everything unconditionally.
type Filters struct {
	// Discard all invalid (disabled, read, etc) feeds or items.
	// Unread items of discarded feeds are also "invalid".
	ValidOnly bool `json:"validOnly,omitempty"`
	// Exclude items that have been read
	UnreadOnly bool `json:"unreadOnly,omitempty"`
	IsMainView bool `json:"isMainView,omitempty"`
	// Keep existing entities unconditionally on non-refresh updates, so
	// background deltas don't shuffle rows out from under the user.
	// Meaningless without ValidOnly or UnreadOnly.
	KeepUnlessRefresh bool `json:"keepUnlessRefresh,omitempty"`
	// A matching category (and its feeds/items) is kept even when
	// ValidOnly would exclude it
	CategoryName string `json:"categoryName,omitempty"`
	FeedID       *int64 `json:"feedId,omitempty"`
	// Explicit allow-list; matching items are always admitted
	ItemIDs []int64 `json:"itemIds,omitempty"`
	// Skip whole entity tiers, mostly to improve performance.
	// These are applied first and will break some other filters.
	ExcludeCategories bool `json:"excludeCategories,omitempty"`
	ExcludeFeeds      bool `json:"excludeFeeds,omitempty"`
	ExcludeItems      bool `json:"excludeItems,omitempty"`
	// Set by consumers that never request new data on their own
	DoNotFetch bool `json:"doNotFetch,omitempty"`
}

// EmptyFilters matches nothing in any tier.
var EmptyFilters = Filters{
	ExcludeCategories: true,
	ExcludeFeeds:      true,
	ExcludeItems:      true,
}

// Key returns a canonical fingerprint. Two structurally equal filters
// produce the same key, which is what consumers compare and what the
// response cache is keyed by.
func (f Filters) Key() string {
	var b strings.Builder
	appendFlag := func(tag string, v bool) {
		if v {
			b.WriteString(tag)
			b.WriteByte(';')
		}
	}
	appendFlag("valid", f.ValidOnly)
	appendFlag("unread", f.UnreadOnly)
	appendFlag("main", f.IsMainView)
	appendFlag("keep", f.KeepUnlessRefresh)
	appendFlag("nocat", f.ExcludeCategories)
	appendFlag("nofeed", f.ExcludeFeeds)
	appendFlag("noitem", f.ExcludeItems)
	appendFlag("nofetch", f.DoNotFetch)
	if f.CategoryName != "" {
		b.WriteString("cat=")
		b.WriteString(f.CategoryName)
		b.WriteByte(';')
	}
	if f.FeedID != nil {
		b.WriteString("feed=")
		b.WriteString(strconv.FormatInt(*f.FeedID, 10))
		b.WriteByte(';')
	}
	if len(f.ItemIDs) != 0 {
		ids := append([]int64(nil), f.ItemIDs...)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		b.WriteString("items=")
		for i, id := range ids {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.FormatInt(id, 10))
		}
		b.WriteByte(';')
	}
	return b.String()
}

// Equal compares filters by value.
func (f Filters) Equal(other Filters) bool {
	return f.Key() == other.Key()
}

// DataFilter answers, for every candidate entity of a single merge pass,
// "keep existing?" and "admit new?". It accumulates state while the pass
// runs, so it must not be reused across merges, and categories must be
// evaluated before feeds and feeds before items: each tier only consults
// state populated by the previous one.
type DataFilter struct {
	f            Filters
	keepExisting bool
	itemIDs      map[int64]struct{}
	// Categories hidden from the main view, recorded when rejected so
	// their feeds and items are rejected too
	excludedCategories map[int64]struct{}
	// Feeds admitted this pass, consulted by the item rules
	includedFeedIDs map[int64]struct{}
	categoryID      int64
	categoryPinned  bool
}

func NewDataFilter(refresh bool, f Filters) *DataFilter {
	df := &DataFilter{
		f:                  f,
		keepExisting:       !refresh && f.KeepUnlessRefresh,
		excludedCategories: make(map[int64]struct{}),
		includedFeedIDs:    make(map[int64]struct{}),
	}
	if len(f.ItemIDs) != 0 {
		df.itemIDs = make(map[int64]struct{}, len(f.ItemIDs))
		for _, id := range f.ItemIDs {
			df.itemIDs[id] = struct{}{}
		}
	}
	return df
}

func (df *DataFilter) KeepExistingCategory(c Category) bool {
	if df.f.CategoryName != "" {
		if df.f.CategoryName == c.Name {
			df.categoryID = c.ID
			df.categoryPinned = true
			return true
		}
		return false
	}

	if df.keepExisting {
		return true
	}

	return df.AddNewCategory(c)
}

func (df *DataFilter) AddNewCategory(c Category) bool {
	if df.f.CategoryName != "" {
		if df.f.CategoryName == c.Name {
			df.categoryID = c.ID
			df.categoryPinned = true
			return true
		}
		return false
	}

	if !c.Disabled && df.f.IsMainView && (c.HiddenMain || c.HiddenNav) {
		// Hidden categories are only included when referenced
		// directly by name
		df.excludedCategories[c.ID] = struct{}{}
		return false
	}

	return !df.f.ValidOnly || !c.Disabled
}

func (df *DataFilter) KeepExistingFeed(f Feed) bool {
	if df.f.FeedID != nil {
		if *df.f.FeedID == f.ID {
			df.includedFeedIDs[f.ID] = struct{}{}
			return true
		}
		return false
	}

	if df.categoryPinned && (f.CategoryID == nil || *f.CategoryID != df.categoryID) {
		return false
	}

	if f.CategoryID != nil {
		if _, ok := df.excludedCategories[*f.CategoryID]; ok {
			return false
		}
	}

	if df.keepExisting {
		df.includedFeedIDs[f.ID] = struct{}{}
		return true
	}

	return df.AddNewFeed(f)
}

func (df *DataFilter) AddNewFeed(f Feed) bool {
	if df.f.FeedID != nil {
		if *df.f.FeedID == f.ID {
			df.includedFeedIDs[f.ID] = struct{}{}
			return true
		}
		return false
	}

	if df.f.ValidOnly && f.Disabled {
		return false
	}

	if f.CategoryID != nil {
		if _, ok := df.excludedCategories[*f.CategoryID]; ok {
			return false
		}
	}

	if df.f.CategoryName != "" &&
		(!df.categoryPinned || f.CategoryID == nil || *f.CategoryID != df.categoryID) {
		return false
	}

	df.includedFeedIDs[f.ID] = struct{}{}
	return true
}

func (df *DataFilter) KeepExistingItem(i Item) bool {
	if len(df.includedFeedIDs) != 0 || df.categoryPinned {
		if _, ok := df.includedFeedIDs[i.FeedID]; !ok {
			return false
		}
	}

	if df.keepExisting {
		return true
	}

	return df.AddNewItem(i)
}

func (df *DataFilter) AddNewItem(i Item) bool {
	if len(df.itemIDs) != 0 {
		if _, ok := df.itemIDs[i.ID]; ok {
			return true
		}
	}

	if df.f.UnreadOnly && i.Read {
		return false
	}

	if _, ok := df.includedFeedIDs[i.FeedID]; !ok {
		return false
	}

	if df.f.FeedID != nil && *df.f.FeedID != i.FeedID {
		return false
	}

	if len(df.itemIDs) != 0 {
		return false
	}
	return true
}
