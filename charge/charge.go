// Package charge implements the create-charge lifecycle: mint a channel
// credential, persist the Charge, and render the unified response.
package charge

import (
	"context"
	"net/http"
	"time"

	"github.com/heidian/pingxx-gateway/apierr"
	"github.com/heidian/pingxx-gateway/channel"
	"github.com/heidian/pingxx-gateway/db"
	"github.com/heidian/pingxx-gateway/idgen"
	"github.com/heidian/pingxx-gateway/model"
	"github.com/heidian/pingxx-gateway/store"
)

// CreateChargeRequest is the inbound payload for both the order-flow and
// the basic-API create-charge endpoints.
type CreateChargeRequest struct {
	Channel         string
	Amount          int64
	ClientIP        string
	Subject         string
	Body            string
	Currency        string
	Extra           channel.ChargeExtra
	MerchantOrderNo string // only used by the basic API; order flow copies Order.MerchantOrderNo
	TimeExpire      int64  // only used by the basic API; order flow copies Order.TimeExpire
}

// Engine creates and retrieves Charges.
type Engine struct {
	store      *store.Store
	apiBase    string
	httpClient *http.Client
}

func NewEngine(s *store.Store, apiBase string, httpClient *http.Client) *Engine {
	return &Engine{store: s, apiBase: apiBase, httpClient: httpClient}
}

// CreateUnderOrder creates a Charge against an existing Order.
func (e *Engine) CreateUnderOrder(ctx context.Context, appID string, order *model.Order, req CreateChargeRequest) (*model.Charge, error) {
	req.MerchantOrderNo = order.MerchantOrderNo
	req.TimeExpire = order.TimeExpire
	if req.Subject == "" {
		req.Subject = order.Subject
	}
	if req.Body == "" {
		req.Body = order.Body
	}
	if req.Currency == "" {
		req.Currency = order.Currency
	}
	return e.create(ctx, appID, order.SubAppID, order.ID, req)
}

// CreateBasic creates a Charge directly against an App (no Order).
func (e *Engine) CreateBasic(ctx context.Context, appID, subAppID string, req CreateChargeRequest) (*model.Charge, error) {
	return e.create(ctx, appID, subAppID, "", req)
}

func (e *Engine) create(ctx context.Context, appID, subAppID, orderID string, req CreateChargeRequest) (*model.Charge, error) {
	chargeID := idgen.New(idgen.PrefixCharge)

	params, err := e.store.FindChannelParams(ctx, appID, subAppID, req.Channel)
	if err != nil {
		return nil, err
	}

	handler, err := channel.New(req.Channel, params.Params, e.apiBase, e.httpClient)
	if err != nil {
		return nil, err
	}

	credential, err := handler.CreateCredential(ctx, channel.ChargeRequest{
		ChargeID:        chargeID,
		Amount:          req.Amount,
		MerchantOrderNo: req.MerchantOrderNo,
		ClientIP:        req.ClientIP,
		TimeExpire:      req.TimeExpire,
		Subject:         req.Subject,
		Body:            req.Body,
		Extra:           req.Extra,
	})
	if err != nil {
		return nil, err
	}

	chg := &model.Charge{
		ID:              chargeID,
		AppID:           appID,
		SubAppID:        subAppID,
		OrderID:         orderID,
		Channel:         req.Channel,
		MerchantOrderNo: req.MerchantOrderNo,
		Amount:          req.Amount,
		ClientIP:        req.ClientIP,
		Subject:         req.Subject,
		Body:            req.Body,
		Currency:        req.Currency,
		Extra:           extraToJSONField(req.Extra),
		Credential: db.JSONField{
			"object":      "credential",
			req.Channel:   credential,
		},
		TimeExpire: req.TimeExpire,
		Paid:       false,
	}

	if err := e.store.Charges.Create(ctx, chg); err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "persist charge")
	}
	return chg, nil
}

func extraToJSONField(extra channel.ChargeExtra) db.JSONField {
	m := db.JSONField{}
	if extra.SuccessURL != "" {
		m["success_url"] = extra.SuccessURL
	}
	if extra.CancelURL != "" {
		m["cancel_url"] = extra.CancelURL
	}
	if extra.OpenID != "" {
		m["open_id"] = extra.OpenID
	}
	return m
}

// Retrieve loads a Charge by id.
func (e *Engine) Retrieve(ctx context.Context, chargeID string) (*model.Charge, error) {
	return e.store.FindCharge(ctx, chargeID)
}

// ChargeEssentials is the compact object the spec calls "charge_essentials",
// inlined into Order/Charge responses so a client need not make a second
// request to learn whether the most recent attempt paid.
type ChargeEssentials struct {
	ID          string       `json:"id"`
	Channel     string       `json:"channel"`
	Paid        bool         `json:"paid"`
	Credential  db.JSONField `json:"credential,omitempty"`
	Extra       db.JSONField `json:"extra,omitempty"`
	TimePaid    *time.Time   `json:"time_paid,omitempty"`
	FailureCode string       `json:"failure_code,omitempty"`
	FailureMsg  string       `json:"failure_msg,omitempty"`
}

// Essentials projects a Charge down to its essentials, including the
// channel credential a client needs to actually complete payment.
func Essentials(c *model.Charge) ChargeEssentials {
	return ChargeEssentials{
		ID:          c.ID,
		Channel:     c.Channel,
		Paid:        c.Paid,
		Credential:  c.Credential,
		Extra:       c.Extra,
		TimePaid:    c.TimePaid,
		FailureCode: c.FailureCode,
		FailureMsg:  c.FailureMsg,
	}
}
