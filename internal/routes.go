package internal

import (
	"net/http"

	"feedmirror/internal/controllers"
	"feedmirror/internal/providers"
	"feedmirror/internal/structures"
)

func InitRoutes(apiController *controllers.ApiController, conf *structures.Config) providers.RouterProviderInterface {
	routers := providers.NewRouterProvider()

	routers.Get("/api/state", http.HandlerFunc(apiController.GetState))
	routers.Get("/api/categories", http.HandlerFunc(apiController.GetCategories))
	routers.Get("/api/feeds", http.HandlerFunc(apiController.GetFeeds))
	routers.Get("/api/items", http.HandlerFunc(apiController.GetItems))
	routers.Get("/api/unread", http.HandlerFunc(apiController.GetUnread))
	routers.Get("/api/notifications", http.HandlerFunc(apiController.GetNotifications))

	routers.Post("/api/refresh", http.HandlerFunc(apiController.TriggerRefresh))
	routers.Post("/api/items/state", http.HandlerFunc(apiController.SetItemState))
	routers.Post("/api/feeds/read", http.HandlerFunc(apiController.MarkFeedRead))
	routers.Post("/api/feeds/add", http.HandlerFunc(apiController.AddFeed))
	routers.Post("/api/feeds/edit", http.HandlerFunc(apiController.EditFeed))
	routers.Post("/api/categories/add", http.HandlerFunc(apiController.AddCategory))
	routers.Post("/api/categories/edit", http.HandlerFunc(apiController.EditCategory))
	routers.Post("/api/categories/reorder", http.HandlerFunc(apiController.ReorderCategories))
	routers.Post("/api/more-read", http.HandlerFunc(apiController.FetchMoreRead))
	return routers
}
