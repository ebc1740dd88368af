package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/heidian/pingxx-gateway/apierr"
	"github.com/heidian/pingxx-gateway/channel"
	"github.com/heidian/pingxx-gateway/charge"
	"github.com/heidian/pingxx-gateway/model"
	"github.com/heidian/pingxx-gateway/refund"
)

type createChargeRequest struct {
	AppID           string              `json:"app_id" binding:"required"`
	SubAppID        string              `json:"sub_app_id"`
	Channel         string              `json:"channel" binding:"required"`
	Amount          int64               `json:"amount" binding:"required"`
	MerchantOrderNo string              `json:"merchant_order_no" binding:"required"`
	ClientIP        string              `json:"client_ip"`
	Subject         string              `json:"subject"`
	Body            string              `json:"body"`
	Currency        string              `json:"currency"`
	TimeExpire      int64               `json:"time_expire"`
	Extra           channel.ChargeExtra `json:"extra"`
}

// createCharge is the basic API's direct create-charge endpoint: a Charge
// attached to an App (and, optionally, a SubApp) with no parent Order.
func (h *handlers) createCharge(c *gin.Context) {
	var req createChargeRequest
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

	chg, err := h.deps.Charges.CreateBasic(c.Request.Context(), req.AppID, req.SubAppID, charge.CreateChargeRequest{
		Channel:         req.Channel,
		Amount:          req.Amount,
		ClientIP:        req.ClientIP,
		Subject:         req.Subject,
		Body:            req.Body,
		Currency:        req.Currency,
		Extra:           req.Extra,
		MerchantOrderNo: req.MerchantOrderNo,
		TimeExpire:      req.TimeExpire,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, renderCharge(chg))
}

func (h *handlers) getCharge(c *gin.Context) {
	chg, err := h.deps.Store.FindCharge(c.Request.Context(), c.Param("charge_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, renderCharge(chg))
}

func (h *handlers) getChargeNotifyHistory(c *gin.Context) {
	rows, err := h.deps.Store.NotifyHistories.FindByCondition(c.Request.Context(), "charge_id = ?", c.Param("charge_id"))
	if err != nil {
		fail(c, apierr.Wrap(apierr.Unexpected, err, "list notify history"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": rows})
}

type createRefundRequest struct {
	Amount        int64  `json:"amount" binding:"required"`
	Description   string `json:"description"`
	FundingSource string `json:"funding_source"`
}

func (h *handlers) createChargeRefund(c *gin.Context) {
	var req createRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: %v", err)
		return
	}
	chg, err := h.deps.Store.FindCharge(c.Request.Context(), c.Param("charge_id"))
	if err != nil {
		fail(c, err)
		return
	}
	rf, err := h.deps.Refunds.Create(c.Request.Context(), chg, refund.CreateRefundRequest{
		Amount:        req.Amount,
		Description:   req.Description,
		FundingSource: req.FundingSource,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, renderRefund(rf))
}

func (h *handlers) getChargeRefund(c *gin.Context) {
	rf, err := h.deps.Store.FindRefundScoped(c.Request.Context(), c.Param("charge_id"), c.Param("refund_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, renderRefund(rf))
}

func renderCharge(chg *model.Charge) gin.H {
	return gin.H{
		"object":            "charge",
		"id":                chg.ID,
		"app_id":            chg.AppID,
		"sub_app_id":        chg.SubAppID,
		"order_id":          chg.OrderID,
		"channel":           chg.Channel,
		"merchant_order_no": chg.MerchantOrderNo,
		"amount":            chg.Amount,
		"client_ip":         chg.ClientIP,
		"subject":           chg.Subject,
		"body":              chg.Body,
		"currency":          chg.Currency,
		"extra":             chg.Extra,
		"credential":        chg.Credential,
		"time_expire":       chg.TimeExpire,
		"time_paid":         chg.TimePaid,
		"paid":              chg.Paid,
		"failure_code":      chg.FailureCode,
		"failure_msg":       chg.FailureMsg,
		"created_at":        chg.CreatedAt,
	}
}

func renderRefund(rf *model.Refund) gin.H {
	return gin.H{
		"object":            "refund",
		"id":                rf.ID,
		"app_id":            rf.AppID,
		"charge_id":         rf.ChargeID,
		"order_id":          rf.OrderID,
		"merchant_order_no": rf.MerchantOrderNo,
		"amount":            rf.Amount,
		"status":            rf.Status,
		"description":       rf.Description,
		"extra":             rf.Extra,
		"time_succeed":      rf.TimeSucceed,
		"failure_code":      rf.FailureCode,
		"failure_msg":       rf.FailureMsg,
		"created_at":        rf.CreatedAt,
	}
}
