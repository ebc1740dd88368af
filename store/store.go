// Package store wraps db.GenericRepository with the typed, domain-specific
// lookups the charge/refund/notify engines need (scoped channel params,
// cross-entity guards, notify history, webhook fanout targets).
package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/heidian/pingxx-gateway/apierr"
	"github.com/heidian/pingxx-gateway/db"
	"github.com/heidian/pingxx-gateway/model"
)

// Store bundles every repository the engines depend on.
type Store struct {
	Apps             *db.GenericRepository[model.App]
	SubApps          *db.GenericRepository[model.SubApp]
	ChannelParams    *db.GenericRepository[model.ChannelParams]
	Orders           *db.GenericRepository[model.Order]
	Charges          *db.GenericRepository[model.Charge]
	Refunds          *db.GenericRepository[model.Refund]
	NotifyHistories  *db.GenericRepository[model.ChargeNotifyHistory]
	WebhookConfigs   *db.GenericRepository[model.AppWebhookConfig]
	WebhookHistories *db.GenericRepository[model.AppWebhookHistory]

	// Tx runs the atomic parent-Order updates the refund engine and the
	// notify pipeline need when a channel reports a terminal result.
	Tx *db.TransactionManager

	gdb *gorm.DB
}

func New(gdb *gorm.DB) *Store {
	return &Store{
		Apps:             db.NewGenericRepository[model.App](gdb),
		SubApps:          db.NewGenericRepository[model.SubApp](gdb),
		ChannelParams:    db.NewGenericRepository[model.ChannelParams](gdb),
		Orders:           db.NewGenericRepository[model.Order](gdb),
		Charges:          db.NewGenericRepository[model.Charge](gdb),
		Refunds:          db.NewGenericRepository[model.Refund](gdb),
		NotifyHistories:  db.NewGenericRepository[model.ChargeNotifyHistory](gdb),
		WebhookConfigs:   db.NewGenericRepository[model.AppWebhookConfig](gdb),
		WebhookHistories: db.NewGenericRepository[model.AppWebhookHistory](gdb),
		Tx:               db.NewTransactionManager(gdb),
		gdb:              gdb,
	}
}

// DB exposes the underlying *gorm.DB for transactional engine code
// (the Tx field's db.TransactionManager wraps the same handle).
func (s *Store) DB() *gorm.DB {
	return s.gdb
}

// FindChannelParams resolves the ChannelParams row for exactly (appID,
// subAppID, channel); an empty subAppID selects the app-level row (basic
// API usage). A sub-app lookup does not fall back to the app-level row.
func (s *Store) FindChannelParams(ctx context.Context, appID, subAppID, channelTag string) (*model.ChannelParams, error) {
	row, err := s.ChannelParams.First(ctx, "app_id = ? AND sub_app_id = ? AND channel = ?", appID, subAppID, channelTag)
	if err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "load channel params")
	}
	if row == nil {
		return nil, apierr.New(apierr.MalformedRequest, "no channel params configured for channel %q", channelTag)
	}
	return row, nil
}

// FindApp loads an App by id, failing with DoesNotExist on a miss.
func (s *Store) FindApp(ctx context.Context, appID string) (*model.App, error) {
	row, err := s.Apps.FindByID(ctx, appID)
	if err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "load app")
	}
	if row == nil {
		return nil, apierr.New(apierr.DoesNotExist, "app %q not found", appID)
	}
	return row, nil
}

// FindSubApp loads a SubApp by id scoped to appID, failing with
// DoesNotExist on a miss or a cross-app lookup.
func (s *Store) FindSubApp(ctx context.Context, appID, subAppID string) (*model.SubApp, error) {
	row, err := s.SubApps.FindByID(ctx, subAppID)
	if err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "load sub_app")
	}
	if row == nil || row.AppID != appID {
		return nil, apierr.New(apierr.DoesNotExist, "sub_app %q not found under app %q", subAppID, appID)
	}
	return row, nil
}

// FindOrder loads an Order by id, failing with DoesNotExist on a miss.
func (s *Store) FindOrder(ctx context.Context, orderID string) (*model.Order, error) {
	row, err := s.Orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "load order")
	}
	if row == nil {
		return nil, apierr.New(apierr.DoesNotExist, "order %q not found", orderID)
	}
	return row, nil
}

// FindCharge loads a Charge by id, failing with DoesNotExist on a miss.
func (s *Store) FindCharge(ctx context.Context, chargeID string) (*model.Charge, error) {
	row, err := s.Charges.FindByID(ctx, chargeID)
	if err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "load charge")
	}
	if row == nil {
		return nil, apierr.New(apierr.DoesNotExist, "charge %q not found", chargeID)
	}
	return row, nil
}

// ListChargesByOrder returns every Charge attempted against an Order,
// most recent first (the first element is the "active" attempt).
func (s *Store) ListChargesByOrder(ctx context.Context, orderID string) ([]model.Charge, error) {
	var rows []model.Charge
	err := s.gdb.WithContext(ctx).Where("order_id = ?", orderID).Order("created_at desc").Find(&rows).Error
	if err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "list charges for order")
	}
	return rows, nil
}

// FindRefund loads a Refund by id, failing with DoesNotExist on a miss.
func (s *Store) FindRefund(ctx context.Context, refundID string) (*model.Refund, error) {
	row, err := s.Refunds.FindByID(ctx, refundID)
	if err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "load refund")
	}
	if row == nil {
		return nil, apierr.New(apierr.DoesNotExist, "refund %q not found", refundID)
	}
	return row, nil
}

// FindRefundScoped loads a Refund, rejecting lookups that don't belong to
// the given Charge (cross-order/charge lookup guard from the refund
// engine's retrieval rules).
func (s *Store) FindRefundScoped(ctx context.Context, chargeID, refundID string) (*model.Refund, error) {
	refund, err := s.FindRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if refund.ChargeID != chargeID {
		return nil, apierr.New(apierr.BadRequest, "refund %q does not belong to charge %q", refundID, chargeID)
	}
	return refund, nil
}

// FindRefundScopedToOrder loads a Refund, rejecting lookups that don't
// belong to the given Order (the order-refund retrieval endpoint's
// cross-linkage guard).
func (s *Store) FindRefundScopedToOrder(ctx context.Context, orderID, refundID string) (*model.Refund, error) {
	refund, err := s.FindRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if refund.OrderID != orderID {
		return nil, apierr.New(apierr.BadRequest, "refund %q does not belong to order %q", refundID, orderID)
	}
	return refund, nil
}

// ListConfiguredChannels returns the channel tags with a ChannelParams row
// under (appID, subAppID), the join the SubApp retrieval response uses to
// report "available methods".
func (s *Store) ListConfiguredChannels(ctx context.Context, appID, subAppID string) ([]string, error) {
	rows, err := s.ChannelParams.FindByCondition(ctx, "app_id = ? AND sub_app_id = ?", appID, subAppID)
	if err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "list channel params")
	}
	tags := make([]string, 0, len(rows))
	for _, row := range rows {
		tags = append(tags, row.Channel)
	}
	return tags, nil
}

// UpsertChannelParams creates or replaces the ChannelParams row for
// (appID, subAppID, channelTag), keyed on the same unique scope
// FindChannelParams reads from.
func (s *Store) UpsertChannelParams(ctx context.Context, appID, subAppID, channelTag string, params map[string]interface{}) (*model.ChannelParams, error) {
	row, err := s.ChannelParams.First(ctx, "app_id = ? AND sub_app_id = ? AND channel = ?", appID, subAppID, channelTag)
	if err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "load channel params")
	}
	if row == nil {
		row = &model.ChannelParams{
			AppID:    appID,
			SubAppID: subAppID,
			Channel:  channelTag,
			Params:   db.JSONField(params),
		}
		if err := s.ChannelParams.Create(ctx, row); err != nil {
			return nil, apierr.Wrap(apierr.Unexpected, err, "create channel params")
		}
		return row, nil
	}
	row.Params = db.JSONField(params)
	if err := s.ChannelParams.Update(ctx, row); err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "update channel params")
	}
	return row, nil
}
