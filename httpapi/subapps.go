package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/heidian/pingxx-gateway/channel"
)

func (h *handlers) getSubApp(c *gin.Context) {
	appID, subAppID := c.Param("app_id"), c.Param("sub_app_id")
	subApp, err := h.deps.Store.FindSubApp(c.Request.Context(), appID, subAppID)
	if err != nil {
		fail(c, err)
		return
	}
	methods, err := h.deps.Store.ListConfiguredChannels(c.Request.Context(), appID, subAppID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"object":            "sub_app",
		"id":                subApp.ID,
		"app_id":            subApp.AppID,
		"display_name":      subApp.DisplayName,
		"available_methods": methods,
		"created_at":        subApp.CreatedAt,
	})
}

func isKnownChannel(tag string) bool {
	for _, c := range channel.AvailableChannels {
		if c == tag {
			return true
		}
	}
	return false
}

type upsertChannelParamsByPathRequest struct {
	Params map[string]interface{} `json:"params" binding:"required"`
}

func (h *handlers) upsertChannelParamsByPath(c *gin.Context) {
	channelTag := c.Param("channel")
	if !isKnownChannel(channelTag) {
		badRequest(c, "unknown channel %q", channelTag)
		return
	}
	var req upsertChannelParamsByPathRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	h.upsertChannelParams(c, channelTag, req.Params)
}

type upsertChannelParamsByBodyRequest struct {
	Channel string                 `json:"channel" binding:"required"`
	Params  map[string]interface{} `json:"params" binding:"required"`
}

func (h *handlers) upsertChannelParamsByBody(c *gin.Context) {
	var req upsertChannelParamsByBodyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	if !isKnownChannel(req.Channel) {
		badRequest(c, "unknown channel %q", req.Channel)
		return
	}
	h.upsertChannelParams(c, req.Channel, req.Params)
}

func (h *handlers) upsertChannelParams(c *gin.Context, channelTag string, params map[string]interface{}) {
	appID, subAppID := c.Param("app_id"), c.Param("sub_app_id")
	if _, err := h.deps.Store.FindSubApp(c.Request.Context(), appID, subAppID); err != nil {
		fail(c, err)
		return
	}
	row, err := h.deps.Store.UpsertChannelParams(c.Request.Context(), appID, subAppID, channelTag, params)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"object":     "channel_params",
		"app_id":     row.AppID,
		"sub_app_id": row.SubAppID,
		"channel":    row.Channel,
		"params":     row.Params,
	})
}
