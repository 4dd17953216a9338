package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eun2chd/allround/logger"
	"github.com/eun2chd/allround/source"
)

// CrawlOptions answers preflight requests with an empty 200.
func (h *Handler) CrawlOptions(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
	c.Status(http.StatusOK)
}

// Crawl runs one invocation for the :source slug. A full run is forced by
// ?full=1|true or a JSON body {"full": true|1}.
func (h *Handler) Crawl(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	if !h.configured(c) {
		return
	}

	slug := c.Param("source")
	full := forceFull(c)

	ctx := c.Request.Context()
	if h.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.RunTimeout)
		defer cancel()
	}

	h.Log.Info("Crawl requested",
		logger.String("slug", slug),
		logger.Bool("force_full", full),
	)

	result, err := h.Crawler.Crawl(ctx, slug, full)
	if errors.Is(err, source.ErrUnknownSource) {
		errorJSON(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		if result == nil {
			errorJSON(c, http.StatusInternalServerError, err.Error())
			return
		}
		c.JSON(http.StatusInternalServerError, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func forceFull(c *gin.Context) bool {
	switch c.Query("full") {
	case "1", "true":
		return true
	}
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return false
	}
	raw, err := c.GetRawData()
	if err != nil || len(raw) == 0 {
		return false
	}
	var body struct {
		Full json.RawMessage `json:"full"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return false
	}
	switch string(body.Full) {
	case "true", "1":
		return true
	}
	return false
}
