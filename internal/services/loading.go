package services

import (
	"sync"

	"feedmirror/internal/providers"
)

// LoadingService tracks in-flight upstream operations with a balanced
// counter. Every StartLoading must be matched by exactly one
// FinishLoading on both success and failure paths.
type LoadingService struct {
	mu      sync.Mutex
	sem     int
	metrics providers.MetricsProviderInterface
}

func NewLoadingService(metrics providers.MetricsProviderInterface) *LoadingService {
	return &LoadingService{metrics: metrics}
}

func (ls *LoadingService) StartLoading() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.sem++
	ls.metrics.SetLoading(ls.sem)
}

func (ls *LoadingService) FinishLoading() {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.sem > 0 {
		ls.sem--
		ls.metrics.SetLoading(ls.sem)
	}
}

func (ls *LoadingService) IsLoading() bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.sem > 0
}

func (ls *LoadingService) Count() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.sem
}
