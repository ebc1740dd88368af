package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/heidian/pingxx-gateway/apierr"
)

// chargeNotify is the channel-initiated charge callback. It carries no
// bearer token; the channel handler's signature verification inside the
// notify pipeline is the only authentication.
func (h *handlers) chargeNotify(c *gin.Context) {
	chargeID := c.Param("charge_id")
	raw, err := c.GetRawData()
	if err != nil {
		fail(c, apierr.Wrap(apierr.Unexpected, err, "read notify body"))
		return
	}
	c.Set("charge_id", chargeID)

	ack, err := h.deps.Notify.ProcessCharge(c.Request.Context(), chargeID, string(raw))
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(ack))
}

func (h *handlers) refundNotify(c *gin.Context) {
	chargeID, refundID := c.Param("charge_id"), c.Param("refund_id")
	raw, err := c.GetRawData()
	if err != nil {
		fail(c, apierr.Wrap(apierr.Unexpected, err, "read notify body"))
		return
	}
	c.Set("charge_id", chargeID)
	c.Set("refund_id", refundID)

	ack, err := h.deps.Notify.ProcessRefund(c.Request.Context(), chargeID, refundID, string(raw))
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(ack))
}

// retryNotify replays a stored ChargeNotifyHistory row through the same
// pipeline, for operator-triggered redelivery.
func (h *handlers) retryNotify(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("history_id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid history_id %q", c.Param("history_id"))
		return
	}
	ack, err := h.deps.Notify.Retry(c.Request.Context(), uint(id))
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(ack))
}
