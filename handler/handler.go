// Package handler holds the gin handlers for the crawl entry points and the
// read APIs over stored contests and notifications.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eun2chd/allround/logger"
	"github.com/eun2chd/allround/model"
	"github.com/eun2chd/allround/source"
	"github.com/eun2chd/allround/store"
)

type Crawler interface {
	Crawl(ctx context.Context, slug string, forceFull bool) (*model.CrawlResult, error)
	Sources() []*source.Source
}

type ContestReader interface {
	ListContests(ctx context.Context, q store.ContestQuery) ([]model.ContestRecord, int64, error)
	ContestFilters(ctx context.Context) (categories, sources []string, err error)
}

type NotificationReader interface {
	ListUserNotifications(ctx context.Context, userID string, limit int) ([]model.UserNotification, int, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	MarkDeleted(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	MarkAllDeleted(ctx context.Context, userID string) (int64, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps wires a Handler. When ConfigErr is set the store-backed fields may be
// nil and every store-backed endpoint answers with a config_error.
type Deps struct {
	Crawler       Crawler
	Contests      ContestReader
	Notifications NotificationReader
	Pinger        Pinger
	Log           logger.Logger
	RunTimeout    time.Duration
	ServiceName   string
	ConfigErr     error
}

type Handler struct {
	Deps
}

func New(d Deps) *Handler {
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	if d.ServiceName == "" {
		d.ServiceName = "allround-crawler"
	}
	return &Handler{Deps: d}
}

// configured writes the config_error response and returns false when the
// store is not set up.
func (h *Handler) configured(c *gin.Context) bool {
	if h.ConfigErr == nil {
		return true
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error":   h.ConfigErr.Error(),
		"code":    "config_error",
	})
	return false
}

func queryTimeout(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 10*time.Second)
}

func errorJSON(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}
