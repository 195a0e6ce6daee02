package services

import "sync"

// RefreshService coordinates user- and scheduler-triggered refreshes.
// Concurrent refresh requests are deduplicated: a refresh that is
// already running absorbs later starts until it finishes.
type RefreshService struct {
	mu         sync.Mutex
	refreshing bool
	started    []func()
	finished   []func()
}

func NewRefreshService() *RefreshService {
	return &RefreshService{}
}

// OnStarted registers a callback invoked whenever a refresh begins.
func (rs *RefreshService) OnStarted(fn func()) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.started = append(rs.started, fn)
}

// OnFinished registers a callback invoked whenever a refresh completes.
func (rs *RefreshService) OnFinished(fn func()) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.finished = append(rs.finished, fn)
}

func (rs *RefreshService) StartRefresh() {
	rs.mu.Lock()
	if rs.refreshing {
		rs.mu.Unlock()
		return
	}
	rs.refreshing = true
	fns := append([]func(){}, rs.started...)
	rs.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (rs *RefreshService) FinishRefresh() {
	rs.mu.Lock()
	if !rs.refreshing {
		rs.mu.Unlock()
		return
	}
	rs.refreshing = false
	fns := append([]func(){}, rs.finished...)
	rs.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (rs *RefreshService) IsRefreshing() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.refreshing
}
