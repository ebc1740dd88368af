// Package refund implements the create-refund lifecycle: invoke the
// channel handler, persist the Refund, and propagate a synchronous
// terminal success onto the parent Order.
package refund

import (
	"context"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/heidian/pingxx-gateway/apierr"
	"github.com/heidian/pingxx-gateway/channel"
	"github.com/heidian/pingxx-gateway/db"
	"github.com/heidian/pingxx-gateway/idgen"
	"github.com/heidian/pingxx-gateway/model"
	"github.com/heidian/pingxx-gateway/store"
)

// CreateRefundRequest is the inbound payload for both the order-refund and
// the direct charge-refund endpoints.
type CreateRefundRequest struct {
	Amount        int64
	Description   string
	FundingSource string
}

// Engine creates and retrieves Refunds.
type Engine struct {
	store      *store.Store
	apiBase    string
	httpClient *http.Client
}

func NewEngine(s *store.Store, apiBase string, httpClient *http.Client) *Engine {
	return &Engine{store: s, apiBase: apiBase, httpClient: httpClient}
}

// Create loads the parent Charge (and Order, if attached), invokes the
// channel handler, persists the Refund, and — if the handler reports a
// synchronous terminal success (the Alipay OpenAPI path) — updates the
// parent Order atomically in the same transaction.
func (e *Engine) Create(ctx context.Context, chg *model.Charge, req CreateRefundRequest) (*model.Refund, error) {
	refundID := idgen.New(idgen.PrefixRefund)
	refundMerchantOrderNo := strings.TrimPrefix(refundID, idgen.PrefixRefund)

	params, err := e.store.FindChannelParams(ctx, chg.AppID, chg.SubAppID, chg.Channel)
	if err != nil {
		return nil, err
	}

	handler, err := channel.New(chg.Channel, params.Params, e.apiBase, e.httpClient)
	if err != nil {
		return nil, err
	}

	result, err := handler.CreateRefund(ctx, channel.RefundRequest{
		ChargeID:              chg.ID,
		ChargeAmount:          chg.Amount,
		ChargeMerchantOrderNo: chg.MerchantOrderNo,
		RefundID:              refundID,
		RefundAmount:          req.Amount,
		RefundMerchantOrderNo: refundMerchantOrderNo,
		Description:           req.Description,
		Extra:                 channel.RefundExtra{FundingSource: req.FundingSource},
	})
	if err != nil {
		return nil, err
	}

	rf := &model.Refund{
		ID:              refundID,
		AppID:           chg.AppID,
		ChargeID:        chg.ID,
		OrderID:         chg.OrderID,
		MerchantOrderNo: refundMerchantOrderNo,
		Amount:          req.Amount,
		Status:          string(result.Status),
		Description:     req.Description,
		Extra:           extraToJSONField(result.Extra),
		FailureCode:     result.FailureCode,
		FailureMsg:      result.FailureMsg,
	}
	if result.Status == channel.RefundSucceeded {
		now := time.Now()
		rf.TimeSucceed = &now
	}

	txErr := e.store.Tx.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(rf).Error; err != nil {
			return err
		}
		if result.Status == channel.RefundSucceeded && chg.OrderID != "" {
			var order model.Order
			if err := tx.First(&order, "id = ?", chg.OrderID).Error; err != nil {
				return err
			}
			order.Refunded = true
			order.AmountRefunded += req.Amount
			order.Status = model.OrderStatusRefunded
			if err := tx.Save(&order).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, apierr.Wrap(apierr.Unexpected, txErr, "persist refund")
	}

	return rf, nil
}

func extraToJSONField(extra map[string]interface{}) db.JSONField {
	if extra == nil {
		return nil
	}
	return db.JSONField(extra)
}

// Retrieve loads a Refund, rejecting cross-charge lookups.
func (e *Engine) Retrieve(ctx context.Context, chargeID, refundID string) (*model.Refund, error) {
	return e.store.FindRefundScoped(ctx, chargeID, refundID)
}
