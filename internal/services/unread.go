package services

import (
	"sort"
	"strings"
	"sync"
	"time"

	"feedmirror/internal/models"
	"feedmirror/internal/providers"
)

// FeedStatus is one feed's line in the navigation summary.
type FeedStatus struct {
	Feed       models.Feed `json:"feed"`
	Unread     int         `json:"unread"`
	NewestItem time.Time   `json:"newestItem"`
}

type CategoryStatus struct {
	Category models.Category `json:"category"`
	Unread   int             `json:"unread"`
	Feeds    []FeedStatus    `json:"feeds"`
}

// NavSnapshot is a point-in-time view of unread state across the whole
// cache, shaped the way a navigation pane consumes it.
type NavSnapshot struct {
	MainUnread    int              `json:"mainUnread"`
	Categories    []CategoryStatus `json:"categories"`
	Uncategorized []FeedStatus     `json:"uncategorized"`
}

type feedTally struct {
	feed models.Feed
	// IDs of cached unread items
	unread map[int64]struct{}
	// Newest item time seen, seeded from the bootstrap hint so feeds
	// whose items aren't cached still sort sensibly
	newest time.Time
}

// UnreadService derives unread counts from the update stream. It keeps
// per-feed unread ID sets incrementally; aggregates are computed on
// demand, which is cheap at feed granularity.
type UnreadService struct {
	logger providers.Logger
	data   DataServiceInterface

	mu         sync.Mutex
	feeds      map[int64]*feedTally
	categories map[int64]models.Category
	unsub      func()
}

func NewUnreadService(data DataServiceInterface, logger providers.Logger) *UnreadService {
	us := &UnreadService{
		logger:     logger,
		data:       data,
		feeds:      make(map[int64]*feedTally),
		categories: make(map[int64]models.Category),
	}
	us.unsub = data.Subscribe(us.handleUpdates)
	return us
}

func (us *UnreadService) Close() {
	if us.unsub != nil {
		us.unsub()
	}
}

func (us *UnreadService) handleUpdates(u models.Updates) {
	us.mu.Lock()
	defer us.mu.Unlock()

	for _, c := range u.Categories {
		if old, ok := us.categories[c.ID]; ok && old.CommitTimestamp > c.CommitTimestamp {
			continue
		}
		us.categories[c.ID] = c
	}

	for _, f := range u.Feeds {
		ft, ok := us.feeds[f.ID]
		if !ok {
			ft = &feedTally{feed: f, unread: make(map[int64]struct{})}
			if t, ok := us.data.InitialTimestampForFeed(f.ID); ok {
				ft.newest = t
			}
			us.feeds[f.ID] = ft
			continue
		}
		if ft.feed.CommitTimestamp > f.CommitTimestamp {
			continue
		}
		ft.feed = f
	}

	for _, it := range u.Items {
		ft, ok := us.feeds[it.FeedID]
		if !ok {
			// Items are merged after feeds within a batch, so this only
			// happens if the server sent an item for a feed we've never
			// been told about.
			us.logger.Warnf(providers.TypeSync,
				"Item %d references unknown feed %d", it.ID, it.FeedID)
			ft = &feedTally{unread: make(map[int64]struct{})}
			ft.feed.ID = it.FeedID
			us.feeds[it.FeedID] = ft
		}
		if it.Read {
			delete(ft.unread, it.ID)
		} else {
			ft.unread[it.ID] = struct{}{}
		}
		if it.Timestamp.After(ft.newest) {
			ft.newest = it.Timestamp
		}
	}
}

// countsInMain reports whether a feed's unread items belong in the
// main-view total.
func (us *UnreadService) countsInMain(f models.Feed) bool {
	if f.Disabled {
		return false
	}
	if f.CategoryID == nil {
		return true
	}
	c, ok := us.categories[*f.CategoryID]
	if !ok {
		return true
	}
	return !c.Disabled && !c.HiddenMain && !c.HiddenNav
}

func (us *UnreadService) MainUnread() int {
	us.mu.Lock()
	defer us.mu.Unlock()

	total := 0
	for _, ft := range us.feeds {
		if us.countsInMain(ft.feed) {
			total += len(ft.unread)
		}
	}
	return total
}

func (us *UnreadService) FeedUnread(id int64) int {
	us.mu.Lock()
	defer us.mu.Unlock()

	if ft, ok := us.feeds[id]; ok {
		return len(ft.unread)
	}
	return 0
}

func (us *UnreadService) CategoryUnread(id int64) int {
	us.mu.Lock()
	defer us.mu.Unlock()

	total := 0
	for _, ft := range us.feeds {
		f := ft.feed
		if f.Disabled || f.CategoryID == nil || *f.CategoryID != id {
			continue
		}
		total += len(ft.unread)
	}
	return total
}

// Nav builds the full navigation summary: visible categories in sort
// order with their feeds, then uncategorized feeds.
func (us *UnreadService) Nav() NavSnapshot {
	us.mu.Lock()
	defer us.mu.Unlock()

	var snap NavSnapshot
	feedsByCategory := make(map[int64][]FeedStatus)
	for _, ft := range us.feeds {
		f := ft.feed
		if f.Disabled {
			continue
		}
		fs := FeedStatus{Feed: f, Unread: len(ft.unread), NewestItem: ft.newest}
		if us.countsInMain(f) {
			snap.MainUnread += fs.Unread
		}
		if f.CategoryID == nil {
			snap.Uncategorized = append(snap.Uncategorized, fs)
			continue
		}
		if c, ok := us.categories[*f.CategoryID]; !ok || c.Disabled {
			snap.Uncategorized = append(snap.Uncategorized, fs)
			continue
		}
		feedsByCategory[*f.CategoryID] = append(feedsByCategory[*f.CategoryID], fs)
	}

	for _, c := range us.categories {
		if c.Disabled || c.HiddenNav {
			continue
		}
		cs := CategoryStatus{Category: c, Feeds: feedsByCategory[c.ID]}
		for _, fs := range cs.Feeds {
			cs.Unread += fs.Unread
		}
		sortFeedStatuses(cs.Feeds)
		snap.Categories = append(snap.Categories, cs)
	}
	sortFeedStatuses(snap.Uncategorized)

	sort.Slice(snap.Categories, func(i, j int) bool {
		return categoryLess(snap.Categories[i].Category, snap.Categories[j].Category)
	})
	return snap
}

// categoryLess orders by sort position, positionless categories last,
// ties broken by ID so the order is total.
func categoryLess(a, b models.Category) bool {
	switch {
	case a.SortPosition != nil && b.SortPosition != nil:
		if *a.SortPosition != *b.SortPosition {
			return *a.SortPosition < *b.SortPosition
		}
	case a.SortPosition != nil:
		return true
	case b.SortPosition != nil:
		return false
	}
	return a.ID < b.ID
}

// sortFeedStatuses puts feeds with unread items first, then newest
// activity, then title.
func sortFeedStatuses(feeds []FeedStatus) {
	sort.Slice(feeds, func(i, j int) bool {
		a, b := feeds[i], feeds[j]
		if (a.Unread > 0) != (b.Unread > 0) {
			return a.Unread > 0
		}
		if !a.NewestItem.Equal(b.NewestItem) {
			return a.NewestItem.After(b.NewestItem)
		}
		at := strings.ToLower(a.Feed.DisplayTitle())
		bt := strings.ToLower(b.Feed.DisplayTitle())
		if at != bt {
			return at < bt
		}
		return a.Feed.ID < b.Feed.ID
	})
}
