package controllers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"feedmirror/internal/models"
	"feedmirror/internal/providers"
	"feedmirror/internal/services"
	"feedmirror/internal/upstream"

	json "github.com/goccy/go-json"
)

const maxRequestBodySize = 1 << 20 // 1 MB

type ApiController struct {
	logger   providers.Logger
	data     services.DataServiceInterface
	mutate   services.MutateServiceInterface
	unread   *services.UnreadService
	lists    *services.ItemListRegistry
	refresh  *services.RefreshService
	loading  *services.LoadingService
	notifier providers.NotifierInterface
	cache    providers.CacheProviderInterface
}

func NewApiController(
	logger providers.Logger,
	data services.DataServiceInterface,
	mutate services.MutateServiceInterface,
	unread *services.UnreadService,
	lists *services.ItemListRegistry,
	refresh *services.RefreshService,
	loading *services.LoadingService,
	notifier providers.NotifierInterface,
	cache providers.CacheProviderInterface) *ApiController {
	return &ApiController{
		logger:   logger,
		data:     data,
		mutate:   mutate,
		unread:   unread,
		lists:    lists,
		refresh:  refresh,
		loading:  loading,
		notifier: notifier,
		cache:    cache,
	}
}

func (ac *ApiController) serveFromCacheOrCompute(w http.ResponseWriter, cacheKey string, compute func() (any, error)) {
	if data, ok := ac.cache.Get(cacheKey); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	result, err := compute()
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	gson, err := json.Marshal(result)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ac.cache.Set(cacheKey, gson)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(gson)
}

func (ac *ApiController) writeJSON(w http.ResponseWriter, v any) {
	gson, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(gson)
}

func (ac *ApiController) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return false
	}
	return true
}

func (ac *ApiController) mutationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUnknownItem),
		errors.Is(err, services.ErrUnknownFeed),
		errors.Is(err, services.ErrUnknownCategory):
		http.Error(w, "Not Found", http.StatusNotFound)
	default:
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
	}
}

type stateResponse struct {
	Timestamp  int64 `json:"timestamp"`
	Stale      bool  `json:"stale"`
	Loading    bool  `json:"loading"`
	Refreshing bool  `json:"refreshing"`
	Categories int   `json:"categories"`
	Feeds      int   `json:"feeds"`
	Items      int   `json:"items"`
}

func (ac *ApiController) GetState(w http.ResponseWriter, r *http.Request) {
	snap := ac.data.Snapshot()
	ac.writeJSON(w, stateResponse{
		Timestamp:  ac.data.Timestamp(),
		Stale:      ac.data.IsStale(),
		Loading:    ac.loading.IsLoading(),
		Refreshing: ac.refresh.IsRefreshing(),
		Categories: len(snap.Categories),
		Feeds:      len(snap.Feeds),
		Items:      len(snap.Items),
	})
}

func (ac *ApiController) GetCategories(w http.ResponseWriter, r *http.Request) {
	ac.serveFromCacheOrCompute(w, "categories", func() (any, error) {
		fd, err := ac.data.DataForFilters(r.Context(), models.Filters{
			ValidOnly:    true,
			ExcludeFeeds: true,
			ExcludeItems: true,
		})
		if err != nil {
			return nil, err
		}
		return fd.Categories(), nil
	})
}

func (ac *ApiController) GetFeeds(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	ac.serveFromCacheOrCompute(w, "feeds:"+category, func() (any, error) {
		fd, err := ac.data.DataForFilters(r.Context(), models.Filters{
			ValidOnly:    true,
			CategoryName: category,
			ExcludeItems: true,
		})
		if err != nil {
			return nil, err
		}
		return fd.Feeds(), nil
	})
}

type itemsResponse struct {
	Items []models.Item `json:"items"`
	// Whether the server has no more read items beyond what's cached
	AllRead bool `json:"allRead"`
}

// itemFilters maps query parameters onto cache filters. A feed or
// category scope pins the view; without one the request is treated as
// the main view over all visible feeds.
func itemFilters(q url.Values) (models.Filters, error) {
	f := models.Filters{ValidOnly: true}

	if raw := q.Get("feed"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return f, err
		}
		f.FeedID = &id
	}
	if category := q.Get("category"); category != "" {
		if f.FeedID != nil {
			return f, errors.New("feed and category are mutually exclusive")
		}
		f.CategoryName = category
	}
	if f.FeedID == nil && f.CategoryName == "" {
		f.IsMainView = true
	}
	if q.Get("unread") == "true" {
		f.UnreadOnly = true
		// Keep read items in place until the next refresh so marking an
		// item read doesn't pull it out from under the reader
		f.KeepUnlessRefresh = true
	}
	return f, nil
}

func (ac *ApiController) GetItems(w http.ResponseWriter, r *http.Request) {
	f, err := itemFilters(r.URL.Query())
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	ac.serveFromCacheOrCompute(w, "items:"+f.Key(), func() (any, error) {
		list, err := ac.lists.GetOrCreate(r.Context(), f)
		if err != nil {
			return nil, err
		}
		resp := itemsResponse{Items: list.Items()}
		if f.FeedID != nil {
			resp.AllRead = ac.data.HasAllRead(*f.FeedID)
		} else if f.CategoryName != "" {
			if c, ok := ac.data.GetCategoryByName(f.CategoryName); ok {
				resp.AllRead = ac.data.HasAllReadCategory(c.ID)
			}
		}
		return resp, nil
	})
}

func (ac *ApiController) GetUnread(w http.ResponseWriter, r *http.Request) {
	ac.serveFromCacheOrCompute(w, "nav", func() (any, error) {
		return ac.unread.Nav(), nil
	})
}

func (ac *ApiController) GetNotifications(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ac.writeJSON(w, ac.notifier.Recent(limit))
}

func (ac *ApiController) TriggerRefresh(w http.ResponseWriter, r *http.Request) {
	ac.refresh.StartRefresh()
	w.WriteHeader(http.StatusAccepted)
}

type itemStateRequest struct {
	ID   int64 `json:"id"`
	Read bool  `json:"read"`
}

func (ac *ApiController) SetItemState(w http.ResponseWriter, r *http.Request) {
	var req itemStateRequest
	if !ac.decode(w, r, &req) {
		return
	}
	item, err := ac.mutate.MarkItemRead(r.Context(), req.ID, req.Read)
	if err != nil {
		ac.mutationError(w, err)
		return
	}
	ac.writeJSON(w, item)
}

type feedReadRequest struct {
	ID        int64 `json:"id"`
	MaxItemID int64 `json:"maxItemId"`
}

func (ac *ApiController) MarkFeedRead(w http.ResponseWriter, r *http.Request) {
	var req feedReadRequest
	if !ac.decode(w, r, &req) {
		return
	}
	if err := ac.mutate.MarkFeedRead(r.Context(), req.ID, req.MaxItemID); err != nil {
		ac.mutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (ac *ApiController) AddFeed(w http.ResponseWriter, r *http.Request) {
	var req upstream.AddFeedRequest
	if !ac.decode(w, r, &req) {
		return
	}
	if req.URL == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	resp, err := ac.mutate.AddFeed(r.Context(), req)
	if err != nil {
		ac.mutationError(w, err)
		return
	}
	ac.writeJSON(w, resp)
}

type editFeedRequest struct {
	ID   int64              `json:"id"`
	Edit upstream.FeedEdits `json:"edit"`
}

func (ac *ApiController) EditFeed(w http.ResponseWriter, r *http.Request) {
	var req editFeedRequest
	if !ac.decode(w, r, &req) {
		return
	}
	feed, err := ac.mutate.EditFeed(r.Context(), req.ID, req.Edit)
	if err != nil {
		ac.mutationError(w, err)
		return
	}
	ac.writeJSON(w, feed)
}

func (ac *ApiController) AddCategory(w http.ResponseWriter, r *http.Request) {
	var req upstream.AddCategoryRequest
	if !ac.decode(w, r, &req) {
		return
	}
	if !models.CategoryNameRegex.MatchString(req.Name) {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	cat, err := ac.mutate.AddCategory(r.Context(), req)
	if err != nil {
		ac.mutationError(w, err)
		return
	}
	ac.writeJSON(w, cat)
}

type editCategoryRequest struct {
	ID   int64                  `json:"id"`
	Edit upstream.CategoryEdits `json:"edit"`
}

func (ac *ApiController) EditCategory(w http.ResponseWriter, r *http.Request) {
	var req editCategoryRequest
	if !ac.decode(w, r, &req) {
		return
	}
	if req.Edit.Name != nil && !models.CategoryNameRegex.MatchString(*req.Edit.Name) {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	cat, err := ac.mutate.EditCategory(r.Context(), req.ID, req.Edit)
	if err != nil {
		ac.mutationError(w, err)
		return
	}
	ac.writeJSON(w, cat)
}

type reorderCategoriesRequest struct {
	CategoryIDs []int64 `json:"categoryIds"`
}

func (ac *ApiController) ReorderCategories(w http.ResponseWriter, r *http.Request) {
	var req reorderCategoriesRequest
	if !ac.decode(w, r, &req) {
		return
	}
	cats, err := ac.mutate.ReorderCategories(r.Context(), req.CategoryIDs)
	if err != nil {
		ac.mutationError(w, err)
		return
	}
	ac.writeJSON(w, cats)
}

type moreReadRequest struct {
	FeedID   *int64 `json:"feedId,omitempty"`
	Category string `json:"category,omitempty"`
}

// FetchMoreRead pages older read items into the cache for one feed or
// one category.
func (ac *ApiController) FetchMoreRead(w http.ResponseWriter, r *http.Request) {
	var req moreReadRequest
	if !ac.decode(w, r, &req) {
		return
	}

	var err error
	switch {
	case req.FeedID != nil:
		err = ac.data.FetchMoreReadForFeed(r.Context(), *req.FeedID)
	case req.Category != "":
		c, ok := ac.data.GetCategoryByName(req.Category)
		if !ok {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		err = ac.data.FetchMoreReadForCategory(r.Context(), c.ID)
	default:
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err != nil {
		ac.mutationError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
