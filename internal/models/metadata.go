package models

import "time"

// FeedMetadata tracks what the server is known to have already supplied
// for one feed, independent of what Data currently materializes. Created
// on first sighting of a feed and never destroyed, disabled feeds
// included.
type FeedMetadata struct {
	Feed Feed
	// True if every currently-unread item for this feed is cached,
	// at least up to the sync timestamp
	HasUnread bool
	// True only when every read item ever created for the feed is cached
	AllRead bool
	// All read items with timestamp >= readAfter are cached.
	// Zero means no read history has been deliberately fetched.
	readAfter time.Time
}

func NewFeedMetadata(f Feed, hasUnread, allRead bool) *FeedMetadata {
	return &FeedMetadata{Feed: f, HasUnread: hasUnread, AllRead: allRead}
}

// SetReadAfter extends the watermark. Coverage only ever grows: a call
// with a date at or after the current watermark is a no-op. Once the
// watermark reaches the feed's creation time every read item is covered.
func (m *FeedMetadata) SetReadAfter(d time.Time) {
	if d.IsZero() {
		return
	}
	if !m.readAfter.IsZero() && !d.Before(m.readAfter) {
		return
	}
	if !d.After(time.Unix(m.Feed.CreateTimestamp, 0)) {
		m.AllRead = true
	}
	m.readAfter = d
}

// HasReadAfter reports whether every read item with timestamp >= d is cached.
func (m *FeedMetadata) HasReadAfter(d time.Time) bool {
	if m.AllRead {
		return true
	}
	return !m.readAfter.IsZero() && !m.readAfter.After(d)
}

// ReadAfter returns the current watermark and whether one is set.
func (m *FeedMetadata) ReadAfter() (time.Time, bool) {
	return m.readAfter, !m.readAfter.IsZero()
}

// CategoryMetadata is the category-granularity analogue, aggregating over
// the category's member feeds.
type CategoryMetadata struct {
	Category Category
	FeedIDs  map[int64]struct{}
	AllRead  bool
	readAfter time.Time
}

func NewCategoryMetadata(c Category) *CategoryMetadata {
	return &CategoryMetadata{
		Category: c,
		FeedIDs:  make(map[int64]struct{}),
	}
}

func (m *CategoryMetadata) SetReadAfter(d time.Time) {
	if d.IsZero() {
		return
	}
	if !m.readAfter.IsZero() && !d.Before(m.readAfter) {
		return
	}
	m.readAfter = d
}

func (m *CategoryMetadata) HasReadAfter(d time.Time) bool {
	if m.AllRead {
		return true
	}
	return !m.readAfter.IsZero() && !m.readAfter.After(d)
}

func (m *CategoryMetadata) ReadAfter() (time.Time, bool) {
	return m.readAfter, !m.readAfter.IsZero()
}
