package models

// Updates is a sparse delta against the cache. All updates of any kind,
// server-pushed or locally originated, get expressed as one of these.
type Updates struct {
	// Whether this came from a user-triggered refresh or a replay
	Refresh    bool       `json:"refresh"`
	Categories []Category `json:"categories,omitempty"`
	Feeds      []Feed     `json:"feeds,omitempty"`
	Items      []Item     `json:"items,omitempty"`
}

func (u Updates) IsEmpty() bool {
	return !u.Refresh &&
		len(u.Categories) == 0 &&
		len(u.Feeds) == 0 &&
		len(u.Items) == 0
}

// Data is the local mirror: three sequences sorted by ID in ascending
// order, each ID unique within its sequence.
type Data struct {
	Categories []Category `json:"categories"`
	Feeds      []Feed     `json:"feeds"`
	Items      []Item     `json:"items"`
}

// mergeEntities merges an ID-ascending update sequence into an ID-ascending
// existing sequence without mutating either. On an ID collision the entity
// with the lower commit timestamp loses; the winner is still subjected to
// keepExisting, since a stale echo can represent a still-valid record.
func mergeEntities[T entity](
	existing []T,
	updates []T,
	keepExisting func(T) bool,
	addNew func(T) bool) ([]T, bool) {
	merged := make([]T, 0, len(existing)+len(updates))
	changed := false

	di := 0
	for _, ue := range updates {
		for di < len(existing) && existing[di].entityID() < ue.entityID() {
			de := existing[di]
			if keepExisting(de) {
				merged = append(merged, de)
			} else {
				changed = true
			}
			di++
		}
		if di < len(existing) && existing[di].entityID() == ue.entityID() {
			de := existing[di]
			di++
			if ue.entityCommit() < de.entityCommit() {
				if keepExisting(de) {
					merged = append(merged, de)
					continue
				}
			} else if keepExisting(ue) {
				merged = append(merged, ue)
			}
			changed = true
		} else if addNew(ue) {
			changed = true
			merged = append(merged, ue)
		}
	}

	for ; di < len(existing); di++ {
		de := existing[di]
		if keepExisting(de) {
			merged = append(merged, de)
		} else {
			changed = true
		}
	}

	return merged, changed
}

// Filter returns the subset of d matching f. Built by admission into an
// empty Data rather than retention, so excluded tiers always come back
// empty.
func (d *Data) Filter(f Filters) *Data {
	nd, _ := (&Data{}).Merge(Updates{
		Refresh:    true,
		Categories: d.Categories,
		Feeds:      d.Feeds,
		Items:      d.Items,
	}, f)
	return nd
}

// Merge folds u into d under f and reports whether anything changed.
// When nothing changed the original *Data is returned untouched; consumers
// rely on that reference equality to skip re-render and re-sort work.
func (d *Data) Merge(u Updates, f Filters) (*Data, bool) {
	df := NewDataFilter(u.Refresh, f)
	var cats []Category
	var feeds []Feed
	var items []Item
	changed := false
	c := false

	// Tier order matters: the feed rules consult category decisions and
	// the item rules consult feed decisions.
	if !f.ExcludeCategories {
		cats, c = mergeEntities(
			d.Categories,
			u.Categories,
			df.KeepExistingCategory,
			df.AddNewCategory,
		)
		changed = changed || c
	}
	if !f.ExcludeFeeds {
		feeds, c = mergeEntities(
			d.Feeds,
			u.Feeds,
			df.KeepExistingFeed,
			df.AddNewFeed,
		)
		changed = changed || c
	}
	if !f.ExcludeItems {
		items, c = mergeEntities(
			d.Items,
			u.Items,
			df.KeepExistingItem,
			df.AddNewItem,
		)
		changed = changed || c
	}
	if !changed {
		return d, false
	}
	return &Data{Categories: cats, Feeds: feeds, Items: items}, true
}

// FilteredData pairs a Data subset with the filters that produced it.
type FilteredData struct {
	Data    *Data
	Filters Filters
}

func NewFilteredData(d *Data, f Filters) FilteredData {
	return FilteredData{Data: d, Filters: f}
}

var EmptyFilteredData = FilteredData{Data: &Data{}, Filters: EmptyFilters}

// Merge folds u through the pair's own filters. The unchanged fast path
// carries through: the receiver is returned as-is when nothing changed.
func (fd FilteredData) Merge(u Updates) (FilteredData, bool) {
	nd, changed := fd.Data.Merge(u, fd.Filters)
	if !changed {
		return fd, false
	}
	return FilteredData{Data: nd, Filters: fd.Filters}, true
}

func (fd FilteredData) Categories() []Category { return fd.Data.Categories }
func (fd FilteredData) Feeds() []Feed          { return fd.Data.Feeds }
func (fd FilteredData) Items() []Item          { return fd.Data.Items }
