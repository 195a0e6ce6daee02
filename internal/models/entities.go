package models

import (
	"regexp"
	"time"
)

// CategoryNameRegex matches the short names categories are addressed by.
var CategoryNameRegex = regexp.MustCompile(`^[a-z][a-z0-9-]+$`)

// Category groups feeds. Disabled categories are kept in the cache but
// excluded from default views.
type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	Disabled bool   `json:"disabled"`
	// This category and its feeds are hidden in the nav bar
	HiddenNav bool `json:"hiddenNav"`
	// Items in this category are hidden in the main view
	HiddenMain      bool   `json:"hiddenMain"`
	SortPosition    *int64 `json:"sortPosition,omitempty"`
	CommitTimestamp int64  `json:"commitTimestamp"`
}

type Feed struct {
	ID         int64  `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	UserTitle  string `json:"userTitle,omitempty"`
	SiteURL    string `json:"siteUrl"`
	CategoryID *int64 `json:"categoryId,omitempty"`
	Disabled   bool   `json:"disabled"`
	// RFC3339 timestamp of the oldest consecutive fetch failure, empty when healthy
	FailingSince string `json:"failingSince,omitempty"`
	// Unix seconds. Anchors whether the feed predates the client's sync point.
	CreateTimestamp int64 `json:"createTimestamp"`
	CommitTimestamp int64 `json:"commitTimestamp"`
}

// DisplayTitle returns the user override when present.
func (f Feed) DisplayTitle() string {
	if f.UserTitle != "" {
		return f.UserTitle
	}
	if f.Title != "" {
		return f.Title
	}
	if f.SiteURL != "" {
		return f.SiteURL
	}
	return f.URL
}

type Item struct {
	ID     int64  `json:"id"`
	FeedID int64  `json:"feedId"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	// Publish time, used for display ordering
	Timestamp       time.Time `json:"timestamp"`
	Read            bool      `json:"read"`
	CommitTimestamp int64     `json:"commitTimestamp"`
}

// entity is the common surface the merge algorithm needs. commitTimestamp
// is the authoritative recency marker: a record with a lower commit
// timestamp never overwrites a cached one.
type entity interface {
	entityID() int64
	entityCommit() int64
}

func (c Category) entityID() int64     { return c.ID }
func (c Category) entityCommit() int64 { return c.CommitTimestamp }
func (f Feed) entityID() int64         { return f.ID }
func (f Feed) entityCommit() int64     { return f.CommitTimestamp }
func (i Item) entityID() int64         { return i.ID }
func (i Item) entityCommit() int64     { return i.CommitTimestamp }
