// Package httpapi wires the gin routes from the external interface table
// onto the charge/refund/notify engines: bind the request, delegate to the
// engine, and render either the JSON response or the mapped error status.
package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/heidian/pingxx-gateway/charge"
	"github.com/heidian/pingxx-gateway/middleware"
	"github.com/heidian/pingxx-gateway/notify"
	"github.com/heidian/pingxx-gateway/refund"
	"github.com/heidian/pingxx-gateway/store"
)

// Deps bundles everything a route handler needs.
type Deps struct {
	Store   *store.Store
	Charges *charge.Engine
	Refunds *refund.Engine
	Notify  *notify.Pipeline
}

// NewRouter builds the gin engine and registers every route from the
// external interface table. apiKey gates every /v1 and /notify/:history_id/retry
// route behind a static bearer token; the two channel callback routes skip
// it since they authenticate via the channel's own signature instead.
func NewRouter(deps Deps, apiKey string, mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	for _, m := range mw {
		r.Use(m)
	}

	h := &handlers{deps: deps}

	v1 := r.Group("/v1", middleware.Bearer(apiKey))
	{
		v1.POST("/orders", h.createOrder)
		v1.GET("/orders/:order_id", h.getOrder)
		v1.POST("/orders/:order_id/pay", h.payOrder)
		v1.POST("/orders/:order_id/order_refunds", h.createOrderRefund)
		v1.GET("/orders/:order_id/order_refunds/:refund_id", h.getOrderRefund)

		v1.POST("/charges", h.createCharge)
		v1.GET("/charges/:charge_id", h.getCharge)
		v1.GET("/charges/:charge_id/notify_history", h.getChargeNotifyHistory)
		v1.POST("/charges/:charge_id/refunds", h.createChargeRefund)
		v1.GET("/charges/:charge_id/refunds/:refund_id", h.getChargeRefund)

		v1.GET("/apps/:app_id/sub_apps/:sub_app_id", h.getSubApp)
		v1.PUT("/apps/:app_id/sub_apps/:sub_app_id/channels/:channel", h.upsertChannelParamsByPath)
		v1.POST("/apps/:app_id/sub_apps/:sub_app_id/channels", h.upsertChannelParamsByBody)
	}

	r.POST("/notify/charges/:charge_id", h.chargeNotify)
	r.POST("/notify/charges/:charge_id/refunds/:refund_id", h.refundNotify)
	r.POST("/notify/:history_id/retry", middleware.Bearer(apiKey), h.retryNotify)

	return r
}

type handlers struct {
	deps Deps
}
