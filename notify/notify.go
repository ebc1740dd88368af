// Package notify implements the inbound-callback pipeline shared by every
// channel: record the raw body before anything is trusted, verify and
// decode it through the channel handler, apply the forward-only state
// transition idempotently, fan out a webhook on terminal success, and
// hand back the channel-specific acknowledgement literal.
package notify

import (
	"context"
	"net/http"
	"time"

	"gorm.io/gorm"

	"github.com/heidian/pingxx-gateway/apierr"
	"github.com/heidian/pingxx-gateway/channel"
	"github.com/heidian/pingxx-gateway/event"
	"github.com/heidian/pingxx-gateway/model"
	"github.com/heidian/pingxx-gateway/store"
	"github.com/heidian/pingxx-gateway/wechat"
	"github.com/heidian/pingxx-gateway/webhook"
)

const ackAlipay = "success"

// Pipeline processes inbound charge and refund notifies.
type Pipeline struct {
	store      *store.Store
	bus        *event.Manager
	apiBase    string
	httpClient *http.Client
}

func NewPipeline(s *store.Store, bus *event.Manager, apiBase string, httpClient *http.Client) *Pipeline {
	return &Pipeline{store: s, bus: bus, apiBase: apiBase, httpClient: httpClient}
}

func ackFor(channelTag string) string {
	switch channelTag {
	case channel.Wx, channel.WxLite:
		return wechat.AckXML
	default:
		return ackAlipay
	}
}

// ProcessCharge records, verifies, and applies a charge notify, returning
// the literal the channel expects in the HTTP response body.
func (p *Pipeline) ProcessCharge(ctx context.Context, chargeID, rawBody string) (string, error) {
	chg, err := p.store.FindCharge(ctx, chargeID)
	if err != nil {
		return "", err
	}

	if err := p.store.NotifyHistories.Create(ctx, &model.ChargeNotifyHistory{
		ChargeID: chargeID,
		RawBody:  rawBody,
	}); err != nil {
		return "", apierr.Wrap(apierr.Unexpected, err, "record charge notify")
	}

	ack := ackFor(chg.Channel)

	if chg.Paid {
		return ack, nil
	}

	params, err := p.store.FindChannelParams(ctx, chg.AppID, chg.SubAppID, chg.Channel)
	if err != nil {
		return "", err
	}
	handler, err := channel.New(chg.Channel, params.Params, p.apiBase, p.httpClient)
	if err != nil {
		return "", err
	}

	outcome, err := handler.ProcessChargeNotify(rawBody)
	if err != nil {
		return "", err
	}
	if outcome.MerchantOrderNo != chg.MerchantOrderNo {
		return "", apierr.New(apierr.ApiError, "notify merchant_order_no %q does not match charge %q", outcome.MerchantOrderNo, chg.MerchantOrderNo)
	}
	if outcome.Status == channel.NotifySuccess && outcome.AmountFen != chg.Amount {
		return "", apierr.New(apierr.ApiError, "notify amount %d does not match charge amount %d", outcome.AmountFen, chg.Amount)
	}
	if outcome.Status != channel.NotifySuccess {
		chg.FailureMsg = outcome.FailureMsg
		if err := p.store.Charges.Update(ctx, chg); err != nil {
			return "", apierr.Wrap(apierr.Unexpected, err, "persist charge failure")
		}
		return ack, nil
	}

	var order *model.Order
	txErr := p.store.Tx.Transaction(ctx, func(tx *gorm.DB) error {
		fresh := &model.Charge{}
		if err := tx.First(fresh, "id = ?", chg.ID).Error; err != nil {
			return err
		}
		if fresh.Paid {
			chg = fresh
			return nil
		}
		now := time.Now()
		fresh.Paid = true
		fresh.TimePaid = &now
		if err := tx.Save(fresh).Error; err != nil {
			return err
		}
		chg = fresh

		if fresh.OrderID != "" {
			o := &model.Order{}
			if err := tx.First(o, "id = ?", fresh.OrderID).Error; err != nil {
				return err
			}
			if !o.Paid {
				o.Paid = true
				o.TimePaid = &now
				o.AmountPaid = fresh.Amount
				o.Status = model.OrderStatusPaid
				if err := tx.Save(o).Error; err != nil {
					return err
				}
			}
			order = o
		}
		return nil
	})
	if txErr != nil {
		return "", apierr.Wrap(apierr.Unexpected, txErr, "persist charge success")
	}

	p.emitSuccess(chg, order)
	return ack, nil
}

// ProcessRefund records, verifies, and applies a refund notify (the WeChat
// asynchronous refund path; Alipay OpenAPI refunds resolve synchronously
// and never reach this entry point).
func (p *Pipeline) ProcessRefund(ctx context.Context, chargeID, refundID, rawBody string) (string, error) {
	chg, err := p.store.FindCharge(ctx, chargeID)
	if err != nil {
		return "", err
	}
	rf, err := p.store.FindRefundScoped(ctx, chargeID, refundID)
	if err != nil {
		return "", err
	}

	if err := p.store.NotifyHistories.Create(ctx, &model.ChargeNotifyHistory{
		ChargeID: chargeID,
		RefundID: refundID,
		RawBody:  rawBody,
	}); err != nil {
		return "", apierr.Wrap(apierr.Unexpected, err, "record refund notify")
	}

	ack := ackFor(chg.Channel)

	if rf.Status != model.RefundStatusPending {
		return ack, nil
	}

	params, err := p.store.FindChannelParams(ctx, chg.AppID, chg.SubAppID, chg.Channel)
	if err != nil {
		return "", err
	}
	handler, err := channel.New(chg.Channel, params.Params, p.apiBase, p.httpClient)
	if err != nil {
		return "", err
	}

	outcome, err := handler.ProcessRefundNotify(rawBody)
	if err != nil {
		return "", err
	}
	if outcome.RefundMerchantOrderNo != rf.MerchantOrderNo {
		return "", apierr.New(apierr.ApiError, "notify refund merchant_order_no %q does not match refund %q", outcome.RefundMerchantOrderNo, rf.MerchantOrderNo)
	}
	if outcome.Status == channel.NotifySuccess && outcome.AmountFen != rf.Amount {
		return "", apierr.New(apierr.ApiError, "notify refund amount %d does not match refund amount %d", outcome.AmountFen, rf.Amount)
	}

	if outcome.Status != channel.NotifySuccess {
		rf.Status = model.RefundStatusFailed
		rf.FailureMsg = outcome.FailureMsg
		if err := p.store.Refunds.Update(ctx, rf); err != nil {
			return "", apierr.Wrap(apierr.Unexpected, err, "persist refund failure")
		}
		return ack, nil
	}

	txErr := p.store.Tx.Transaction(ctx, func(tx *gorm.DB) error {
		fresh := &model.Refund{}
		if err := tx.First(fresh, "id = ?", rf.ID).Error; err != nil {
			return err
		}
		if fresh.Status != model.RefundStatusPending {
			rf = fresh
			return nil
		}
		now := time.Now()
		fresh.Status = model.RefundStatusSucceeded
		fresh.TimeSucceed = &now
		if err := tx.Save(fresh).Error; err != nil {
			return err
		}
		rf = fresh

		if fresh.OrderID != "" {
			o := &model.Order{}
			if err := tx.First(o, "id = ?", fresh.OrderID).Error; err != nil {
				return err
			}
			o.Refunded = true
			o.AmountRefunded += fresh.Amount
			o.Status = model.OrderStatusRefunded
			if err := tx.Save(o).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return "", apierr.Wrap(apierr.Unexpected, txErr, "persist refund success")
	}

	return ack, nil
}

// Retry replays a recorded notify history row through the same pipeline,
// for the manual "resend this callback" operator endpoint.
func (p *Pipeline) Retry(ctx context.Context, historyID uint) (string, error) {
	h, err := p.store.NotifyHistories.FindByID(ctx, historyID)
	if err != nil {
		return "", apierr.Wrap(apierr.Unexpected, err, "load notify history")
	}
	if h == nil {
		return "", apierr.New(apierr.DoesNotExist, "notify history %d not found", historyID)
	}
	if h.RefundID != "" {
		return p.ProcessRefund(ctx, h.ChargeID, h.RefundID, h.RawBody)
	}
	return p.ProcessCharge(ctx, h.ChargeID, h.RawBody)
}

func (p *Pipeline) emitSuccess(chg *model.Charge, order *model.Order) {
	if p.bus == nil {
		return
	}
	if order != nil {
		ev := event.NewBaseEvent(webhook.EventOrderSucceeded)
		ev.SetPayloadValue("app_id", order.AppID)
		ev.SetPayloadValue("data", order)
		_ = p.bus.Dispatch(ev)
		return
	}
	ev := event.NewBaseEvent(webhook.EventChargeSucceeded)
	ev.SetPayloadValue("app_id", chg.AppID)
	ev.SetPayloadValue("data", chg)
	_ = p.bus.Dispatch(ev)
}
