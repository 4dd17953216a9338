package router

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eun2chd/allround/handler"
	"github.com/eun2chd/allround/logger"
	"github.com/eun2chd/allround/middleware"
)

func Setup(h *handler.Handler, log logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.PrometheusMiddleware(h.ServiceName))

	r.Use(cors.New(cors.Config{
		AllowAllOrigins:           true,
		AllowMethods:              []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:              []string{"Authorization", "Content-Type", "X-Client-Info", "Apikey", handler.UserHeader},
		ExposeHeaders:             []string{"Content-Length"},
		OptionsResponseStatusCode: http.StatusOK,
	}))

	r.OPTIONS("/crawl/:source", h.CrawlOptions)
	r.GET("/crawl/:source", h.Crawl)
	r.POST("/crawl/:source", h.Crawl)

	api := r.Group("/api")
	{
		api.GET("/contests", h.ListContests)
		api.GET("/contests/filters", h.ContestFilters)
		api.GET("/sources", h.ListSources)
		api.GET("/notifications", h.ListNotifications)
		api.POST("/notifications/read-all", h.MarkAllNotificationsRead)
		api.POST("/notifications/delete-all", h.DeleteAllNotifications)
		api.POST("/notifications/:id/read", h.MarkNotificationRead)
		api.POST("/notifications/:id/delete", h.DeleteNotification)
	}

	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
