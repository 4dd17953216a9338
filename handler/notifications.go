package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eun2chd/allround/logger"
	"github.com/eun2chd/allround/model"
	"github.com/eun2chd/allround/store"
)

// UserHeader identifies the caller of the notification endpoints.
const UserHeader = "X-User-ID"

// ListNotifications returns the caller's notifications. Anonymous callers get
// an empty list.
func (h *Handler) ListNotifications(c *gin.Context) {
	if !h.configured(c) {
		return
	}

	userID := c.GetHeader(UserHeader)
	if userID == "" {
		c.JSON(http.StatusOK, gin.H{"success": true, "data": []model.UserNotification{}, "unread_count": 0})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > maxLimit {
		limit = 50
	}

	ctx, cancel := queryTimeout(c)
	defer cancel()

	items, unread, err := h.Notifications.ListUserNotifications(ctx, userID, limit)
	if err != nil {
		h.Log.Error("List notifications failed", logger.String("user_id", userID), logger.Error(err))
		errorJSON(c, http.StatusInternalServerError, "Database query failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": items, "unread_count": unread})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	h.updateNotification(c, false)
}

// DeleteNotification hides the notification for the caller only.
func (h *Handler) DeleteNotification(c *gin.Context) {
	h.updateNotification(c, true)
}

func (h *Handler) updateNotification(c *gin.Context, remove bool) {
	if !h.configured(c) {
		return
	}
	userID := c.GetHeader(UserHeader)
	if userID == "" {
		errorJSON(c, http.StatusUnauthorized, "Login required")
		return
	}

	ctx, cancel := queryTimeout(c)
	defer cancel()

	id := c.Param("id")
	var err error
	if remove {
		err = h.Notifications.MarkDeleted(ctx, userID, id)
	} else {
		err = h.Notifications.MarkRead(ctx, userID, id)
	}
	switch {
	case errors.Is(err, store.ErrNotificationNotFound):
		errorJSON(c, http.StatusNotFound, err.Error())
	case err != nil:
		h.Log.Error("Update notification failed",
			logger.String("user_id", userID),
			logger.String("notification_id", id),
			logger.Error(err),
		)
		errorJSON(c, http.StatusInternalServerError, "Database update failed")
	default:
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (h *Handler) MarkAllNotificationsRead(c *gin.Context) {
	h.updateAllNotifications(c, false)
}

// DeleteAllNotifications hides every notification for the caller.
func (h *Handler) DeleteAllNotifications(c *gin.Context) {
	h.updateAllNotifications(c, true)
}

func (h *Handler) updateAllNotifications(c *gin.Context, remove bool) {
	if !h.configured(c) {
		return
	}
	userID := c.GetHeader(UserHeader)
	if userID == "" {
		errorJSON(c, http.StatusUnauthorized, "Login required")
		return
	}

	ctx, cancel := queryTimeout(c)
	defer cancel()

	var n int64
	var err error
	if remove {
		n, err = h.Notifications.MarkAllDeleted(ctx, userID)
	} else {
		n, err = h.Notifications.MarkAllRead(ctx, userID)
	}
	if err != nil {
		h.Log.Error("Bulk notification update failed",
			logger.String("user_id", userID),
			logger.Bool("delete", remove),
			logger.Error(err),
		)
		errorJSON(c, http.StatusInternalServerError, "Database update failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": n})
}
