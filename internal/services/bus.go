package services

import (
	"sync"

	"feedmirror/internal/models"
	"feedmirror/internal/providers"
)

// UpdateListener receives every published update batch in order.
type UpdateListener func(models.Updates)

type subscription struct {
	id int64
	fn UpdateListener
}

type signalSub struct {
	id int64
	fn func()
}

// UpdateBus fans merged updates out to subscribers. Listeners are
// invoked synchronously in subscription order, so a listener observes
// batches in exactly the order they were published. A subscriber that
// arrives after the cache is primed is immediately replayed the full
// current state as a refresh batch.
type UpdateBus struct {
	logger  providers.Logger
	metrics providers.MetricsProviderInterface

	mu       sync.Mutex
	nextID   int64
	subs     []subscription
	feedSubs []signalSub
	catSubs  []signalSub
	snapshot *models.Data
}

func NewUpdateBus(logger providers.Logger, metrics providers.MetricsProviderInterface) *UpdateBus {
	return &UpdateBus{
		logger:  logger,
		metrics: metrics,
	}
}

// SetSnapshot records the full state used to prime late subscribers.
func (b *UpdateBus) SetSnapshot(d *models.Data) {
	b.mu.Lock()
	b.snapshot = d
	b.mu.Unlock()
}

// Snapshot returns the current full state, which may be nil before the
// first successful load.
func (b *UpdateBus) Snapshot() *models.Data {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshot
}

// Subscribe registers fn and returns its unsubscribe function. If a
// snapshot exists fn is first called with the full state as a refresh
// batch, so every subscriber starts from a consistent baseline.
func (b *UpdateBus) Subscribe(fn UpdateListener) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	snap := b.snapshot
	b.mu.Unlock()

	if snap != nil {
		fn(models.Updates{
			Refresh:    true,
			Categories: snap.Categories,
			Feeds:      snap.Feeds,
			Items:      snap.Items,
		})
	}

	return func() {
		b.mu.Lock()
		b.subs = removeSub(b.subs, id)
		b.mu.Unlock()
	}
}

// SubscribeFeeds registers a signal fired whenever a batch carries feed
// updates.
func (b *UpdateBus) SubscribeFeeds(fn func()) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.feedSubs = append(b.feedSubs, signalSub{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		b.feedSubs = removeSignal(b.feedSubs, id)
		b.mu.Unlock()
	}
}

// SubscribeCategories registers a signal fired whenever a batch carries
// category updates.
func (b *UpdateBus) SubscribeCategories(fn func()) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.catSubs = append(b.catSubs, signalSub{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		b.catSubs = removeSignal(b.catSubs, id)
		b.mu.Unlock()
	}
}

// Publish delivers u to all subscribers. Empty batches are suppressed;
// use PublishEmpty to deliberately wake consumers without a delta.
func (b *UpdateBus) Publish(u models.Updates) {
	if u.IsEmpty() {
		return
	}
	b.publish(u)
}

// PublishEmpty forces an empty batch through, prompting consumers to
// re-derive anything computed from state outside the cache itself.
func (b *UpdateBus) PublishEmpty() {
	b.publish(models.Updates{})
}

func (b *UpdateBus) publish(u models.Updates) {
	b.mu.Lock()
	listeners := make([]UpdateListener, 0, len(b.subs))
	for _, s := range b.subs {
		listeners = append(listeners, s.fn)
	}
	var feedFns, catFns []func()
	if len(u.Feeds) > 0 {
		for _, s := range b.feedSubs {
			feedFns = append(feedFns, s.fn)
		}
	}
	if len(u.Categories) > 0 {
		for _, s := range b.catSubs {
			catFns = append(catFns, s.fn)
		}
	}
	b.mu.Unlock()

	b.metrics.IncUpdatesPublished()
	for _, fn := range listeners {
		fn(u)
	}
	for _, fn := range feedFns {
		fn()
	}
	for _, fn := range catFns {
		fn()
	}
}

func removeSub(subs []subscription, id int64) []subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

func removeSignal(subs []signalSub, id int64) []signalSub {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}
