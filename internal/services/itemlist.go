package services

import (
	"context"
	"sort"
	"sync"

	"feedmirror/internal/models"
	"feedmirror/internal/providers"
)

// ItemList maintains one filtered view of the cache in display order:
// newest first, ties broken by ID descending. In-place updates take a
// fast path that patches the sorted slice directly; anything the fast
// path can't prove consistent falls back to a full re-sort.
type ItemList struct {
	logger providers.Logger

	mu       sync.Mutex
	filtered models.FilteredData
	sorted   []models.Item
	unsub    func()
}

func NewItemList(f models.Filters, logger providers.Logger) *ItemList {
	return &ItemList{
		logger:   logger,
		filtered: models.NewFilteredData(&models.Data{}, f),
	}
}

func (l *ItemList) Filters() models.Filters {
	return l.filtered.Filters
}

// Items returns the current view in display order.
func (l *ItemList) Items() []models.Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Item(nil), l.sorted...)
}

func (l *ItemList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sorted)
}

// Apply folds an update batch into the view.
func (l *ItemList) Apply(u models.Updates) {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.filtered
	nfd, changed := l.filtered.Merge(u)
	if !changed {
		return
	}
	l.filtered = nfd

	// The fast path only handles in-place changes: same membership, same
	// display positions. Refreshes and membership changes re-sort.
	if !u.Refresh &&
		len(old.Items()) == len(nfd.Items()) &&
		len(u.Items) < len(l.sorted) {
		if l.mergeSorted(u.Items) {
			return
		}
		l.logger.Warnf(providers.TypeSync,
			"Sorted view out of sync with cache for filters %q, re-sorting", l.filtered.Filters.Key())
	}
	l.sorted = sortItemsForDisplay(nfd.Items())
}

// mergeSorted patches update items into the sorted slice without moving
// anything. Reports false if any admitted item is not already at its
// display position, which means positions shifted and the caller must
// re-sort.
func (l *ItemList) mergeSorted(updates []models.Item) bool {
	items := l.filtered.Items()
	admitted := make([]models.Item, 0, len(updates))
	for _, it := range updates {
		i := sort.Search(len(items), func(i int) bool { return items[i].ID >= it.ID })
		if i < len(items) && items[i].ID == it.ID {
			// Take the merge winner, not the raw update
			admitted = append(admitted, items[i])
		}
	}
	if len(admitted) == 0 {
		return true
	}
	sort.Slice(admitted, func(i, j int) bool {
		return itemDisplayLess(admitted[i], admitted[j])
	})

	si := 0
	for _, it := range admitted {
		for si < len(l.sorted) && itemDisplayLess(l.sorted[si], it) {
			si++
		}
		if si >= len(l.sorted) || l.sorted[si].ID != it.ID {
			return false
		}
		l.sorted[si] = it
		si++
	}
	return true
}

func itemDisplayLess(a, b models.Item) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.ID > b.ID
}

func sortItemsForDisplay(items []models.Item) []models.Item {
	sorted := append([]models.Item(nil), items...)
	sort.Slice(sorted, func(i, j int) bool {
		return itemDisplayLess(sorted[i], sorted[j])
	})
	return sorted
}

// ItemListRegistry hands out one shared ItemList per distinct filter
// fingerprint. Filters arrive from query parameters, so the population
// is bounded by the feed and category counts.
type ItemListRegistry struct {
	logger providers.Logger
	data   DataServiceInterface

	mu    sync.Mutex
	lists map[string]*ItemList
}

func NewItemListRegistry(data DataServiceInterface, logger providers.Logger) *ItemListRegistry {
	return &ItemListRegistry{
		logger: logger,
		data:   data,
		lists:  make(map[string]*ItemList),
	}
}

// GetOrCreate returns the live view for f, creating and subscribing it
// on first use. Blocks until the cache is primed.
func (r *ItemListRegistry) GetOrCreate(ctx context.Context, f models.Filters) (*ItemList, error) {
	key := f.Key()
	r.mu.Lock()
	if l, ok := r.lists[key]; ok {
		r.mu.Unlock()
		return l, nil
	}
	r.mu.Unlock()

	if _, err := r.data.DataForFilters(ctx, models.EmptyFilters); err != nil {
		return nil, err
	}

	l := NewItemList(f, r.logger)
	// Subscribing primes the list with a full-state replay
	unsub := r.data.Subscribe(l.Apply)

	r.mu.Lock()
	if existing, ok := r.lists[key]; ok {
		r.mu.Unlock()
		unsub()
		return existing, nil
	}
	l.unsub = unsub
	r.lists[key] = l
	r.mu.Unlock()
	return l, nil
}

func (r *ItemListRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lists {
		if l.unsub != nil {
			l.unsub()
		}
	}
	r.lists = make(map[string]*ItemList)
}
