package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eun2chd/allround/logger"
	"github.com/eun2chd/allround/store"
)

const (
	defaultLimit = 10
	maxLimit     = 100
	allLimit     = 2000
)

// ListContests pages through stored contests, newest first.
func (h *Handler) ListContests(c *gin.Context) {
	if !h.configured(c) {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxLimit {
		limit = defaultLimit
	}
	if all := c.Query("all"); all == "1" || all == "true" {
		page, limit = 1, allLimit
	}

	q := store.ContestQuery{
		Source:   c.Query("source"),
		Category: c.Query("category"),
		Search:   c.Query("q"),
		Page:     page,
		Limit:    limit,
	}

	ctx, cancel := queryTimeout(c)
	defer cancel()

	records, total, err := h.Contests.ListContests(ctx, q)
	if err != nil {
		h.Log.Error("List contests failed", logger.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Database query failed")
		return
	}

	c.Header("Cache-Control", "public, max-age=60")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    records,
		"total":   total,
		"page":    page,
		"limit":   limit,
	})
}

// ContestFilters lists the categories and sources present in the store.
func (h *Handler) ContestFilters(c *gin.Context) {
	if !h.configured(c) {
		return
	}

	ctx, cancel := queryTimeout(c)
	defer cancel()

	categories, sources, err := h.Contests.ContestFilters(ctx)
	if err != nil {
		h.Log.Error("Contest filters failed", logger.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Database query failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"categories": categories,
		"sources":    sources,
	})
}

// ListSources describes the registered sources.
func (h *Handler) ListSources(c *gin.Context) {
	if !h.configured(c) {
		return
	}
	data := make([]gin.H, 0)
	for _, s := range h.Crawler.Sources() {
		data = append(data, gin.H{"slug": s.Slug, "name": s.Name, "mode": s.Mode})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}
