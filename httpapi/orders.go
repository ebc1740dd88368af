package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/heidian/pingxx-gateway/apierr"
	"github.com/heidian/pingxx-gateway/channel"
	"github.com/heidian/pingxx-gateway/charge"
	"github.com/heidian/pingxx-gateway/db"
	"github.com/heidian/pingxx-gateway/idgen"
	"github.com/heidian/pingxx-gateway/model"
	"github.com/heidian/pingxx-gateway/refund"
)

type createOrderRequest struct {
	AppID           string                 `json:"app_id" binding:"required"`
	SubAppID        string                 `json:"sub_app_id"`
	UID             string                 `json:"uid"`
	MerchantOrderNo string                 `json:"merchant_order_no" binding:"required"`
	Amount          int64                  `json:"amount" binding:"required"`
	Subject         string                 `json:"subject"`
	Body            string                 `json:"body"`
	Currency        string                 `json:"currency"`
	ClientIP        string                 `json:"client_ip"`
	TimeExpire      int64                  `json:"time_expire"`
	Metadata        map[string]interface{} `json:"metadata"`
}

func (h *handlers) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	if _, err := h.deps.Store.FindApp(c.Request.Context(), req.AppID); err != nil {
		fail(c, err)
		return
	}
	if req.SubAppID != "" {
		if _, err := h.deps.Store.FindSubApp(c.Request.Context(), req.AppID, req.SubAppID); err != nil {
			fail(c, err)
			return
		}
	}
	if req.Currency == "" {
		req.Currency = "cny"
	}

	order := &model.Order{
		ID:              idgen.New(idgen.PrefixOrder),
		AppID:           req.AppID,
		SubAppID:        req.SubAppID,
		UID:             req.UID,
		MerchantOrderNo: req.MerchantOrderNo,
		Amount:          req.Amount,
		Status:          model.OrderStatusCreated,
		ClientIP:        req.ClientIP,
		Subject:         req.Subject,
		Body:            req.Body,
		Currency:        req.Currency,
		TimeExpire:      req.TimeExpire,
		Metadata:        db.JSONField(req.Metadata),
	}
	if err := h.deps.Store.Orders.Create(c.Request.Context(), order); err != nil {
		fail(c, apierr.Wrap(apierr.Unexpected, err, "persist order"))
		return
	}
	c.JSON(http.StatusOK, h.renderOrder(c, order))
}

func (h *handlers) getOrder(c *gin.Context) {
	order, err := h.deps.Store.FindOrder(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.renderOrder(c, order))
}

type payOrderRequest struct {
	Channel  string              `json:"channel" binding:"required"`
	Amount   int64               `json:"amount"`
	ClientIP string              `json:"client_ip"`
	Subject  string              `json:"subject"`
	Body     string              `json:"body"`
	Currency string              `json:"currency"`
	Extra    channel.ChargeExtra `json:"extra"`
}

func (h *handlers) payOrder(c *gin.Context) {
	var req payOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	order, err := h.deps.Store.FindOrder(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		fail(c, err)
		return
	}
	if req.Amount == 0 {
		req.Amount = order.Amount
	}

	chg, err := h.deps.Charges.CreateUnderOrder(c.Request.Context(), order.AppID, order, charge.CreateChargeRequest{
		Channel:  req.Channel,
		Amount:   req.Amount,
		ClientIP: req.ClientIP,
		Subject:  req.Subject,
		Body:     req.Body,
		Currency: req.Currency,
		Extra:    req.Extra,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.renderOrder(c, order, chg))
}

type createOrderRefundRequest struct {
	Charge        string `json:"charge" binding:"required"`
	ChargeAmount  int64  `json:"charge_amount" binding:"required"`
	Description   string `json:"description"`
	FundingSource string `json:"funding_source"`
}

func (h *handlers) createOrderRefund(c *gin.Context) {
	var req createOrderRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	orderID := c.Param("order_id")
	if _, err := h.deps.Store.FindOrder(c.Request.Context(), orderID); err != nil {
		fail(c, err)
		return
	}
	chg, err := h.deps.Store.FindCharge(c.Request.Context(), req.Charge)
	if err != nil {
		fail(c, err)
		return
	}
	if chg.OrderID != orderID {
		fail(c, apierr.New(apierr.BadRequest, "charge %q does not belong to order %q", req.Charge, orderID))
		return
	}

	rf, err := h.deps.Refunds.Create(c.Request.Context(), chg, refund.CreateRefundRequest{
		Amount:        req.ChargeAmount,
		Description:   req.Description,
		FundingSource: req.FundingSource,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": []interface{}{renderRefund(rf)}})
}

func (h *handlers) getOrderRefund(c *gin.Context) {
	rf, err := h.deps.Store.FindRefundScopedToOrder(c.Request.Context(), c.Param("order_id"), c.Param("refund_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, renderRefund(rf))
}

// renderOrder builds the Order JSON response with charge_essentials and
// the full attempt list inlined, per §4.6 step 5 / the supplemented
// charge_essentials projection.
func (h *handlers) renderOrder(c *gin.Context, order *model.Order, latest ...*model.Charge) gin.H {
	charges, err := h.deps.Store.ListChargesByOrder(c.Request.Context(), order.ID)
	if err != nil {
		charges = nil
	}

	essentialsList := make([]charge.ChargeEssentials, 0, len(charges))
	for _, ch := range charges {
		essentialsList = append(essentialsList, charge.Essentials(&ch))
	}

	var active *charge.ChargeEssentials
	if len(latest) > 0 && latest[0] != nil {
		e := charge.Essentials(latest[0])
		active = &e
	} else if len(charges) > 0 {
		e := charge.Essentials(&charges[0])
		active = &e
	}

	return gin.H{
		"object":            "order",
		"id":                order.ID,
		"app_id":            order.AppID,
		"sub_app_id":        order.SubAppID,
		"uid":               order.UID,
		"merchant_order_no": order.MerchantOrderNo,
		"amount":            order.Amount,
		"amount_paid":       order.AmountPaid,
		"amount_refunded":   order.AmountRefunded,
		"status":            order.Status,
		"paid":              order.Paid,
		"refunded":          order.Refunded,
		"client_ip":         order.ClientIP,
		"subject":           order.Subject,
		"body":              order.Body,
		"currency":          order.Currency,
		"time_expire":       order.TimeExpire,
		"time_paid":         order.TimePaid,
		"metadata":          order.Metadata,
		"created_at":        order.CreatedAt,
		"charge_essentials": active,
		"charges":           essentialsList,
	}
}
