// Package model defines the persisted entities of the gateway: apps,
// sub-apps, channel credentials, orders, charges, refunds, and the
// audit trails for inbound notifications and outbound webhooks.
package model

import (
	"time"

	"github.com/heidian/pingxx-gateway/db"
)

// App is an integrating merchant.
type App struct {
	ID          string `gorm:"primaryKey;size:64" json:"id"`
	DisplayName string `json:"display_name"`
	db.TimestampModel
}

func (App) TableName() string { return "apps" }

// SubApp scopes a receipt/service entity under an App. Not every channel
// requires one; an App may carry ChannelParams directly.
type SubApp struct {
	ID          string `gorm:"primaryKey;size:64" json:"id"`
	AppID       string `gorm:"index;size:64" json:"app_id"`
	DisplayName string `json:"display_name"`
	db.TimestampModel
}

func (SubApp) TableName() string { return "sub_apps" }

// ChannelParams holds the credentials and endpoints for one channel under
// one (App, SubApp?) scope. SubAppID is empty when the params are attached
// directly to the App (basic API usage).
type ChannelParams struct {
	ID        uint         `gorm:"primaryKey" json:"-"`
	AppID     string       `gorm:"uniqueIndex:idx_channel_scope;size:64" json:"app_id"`
	SubAppID  string       `gorm:"uniqueIndex:idx_channel_scope;size:64" json:"sub_app_id,omitempty"`
	Channel   string       `gorm:"uniqueIndex:idx_channel_scope;size:32" json:"channel"`
	Params    db.JSONField `json:"params"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (ChannelParams) TableName() string { return "channel_params" }

// Order is a merchant-initiated intent to be paid.
type Order struct {
	ID               string       `gorm:"primaryKey;size:64" json:"id"`
	AppID            string       `gorm:"index;size:64" json:"app_id"`
	SubAppID         string       `gorm:"index;size:64" json:"sub_app_id,omitempty"`
	UID              string       `json:"uid,omitempty"`
	MerchantOrderNo  string       `gorm:"index;size:64" json:"merchant_order_no"`
	Amount           int64        `json:"amount"`
	AmountPaid       int64        `json:"amount_paid"`
	AmountRefunded   int64        `json:"amount_refunded"`
	Status           string       `gorm:"size:16" json:"status"`
	Paid             bool         `json:"paid"`
	Refunded         bool         `json:"refunded"`
	ClientIP         string       `json:"client_ip,omitempty"`
	Subject          string       `json:"subject"`
	Body             string       `json:"body"`
	Currency         string       `gorm:"size:8" json:"currency"`
	TimeExpire       int64        `json:"time_expire,omitempty"`
	TimePaid         *time.Time   `json:"time_paid,omitempty"`
	Metadata         db.JSONField `json:"metadata,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

const (
	OrderStatusCreated  = "created"
	OrderStatusPaid     = "paid"
	OrderStatusRefunded = "refunded"
)

// Charge is a single payment attempt against an Order, or, in the basic
// API, directly against an App.
type Charge struct {
	ID              string       `gorm:"primaryKey;size:64" json:"id"`
	AppID           string       `gorm:"index;size:64" json:"app_id"`
	SubAppID        string       `gorm:"index;size:64" json:"sub_app_id,omitempty"`
	OrderID         string       `gorm:"index;size:64" json:"order_id,omitempty"`
	Channel         string       `gorm:"size:32" json:"channel"`
	MerchantOrderNo string       `gorm:"index;size:64" json:"merchant_order_no"`
	Amount          int64        `json:"amount"`
	ClientIP        string       `json:"client_ip,omitempty"`
	Subject         string       `json:"subject"`
	Body            string       `json:"body"`
	Currency        string       `gorm:"size:8" json:"currency"`
	Extra           db.JSONField `json:"extra,omitempty"`
	Credential      db.JSONField `json:"credential,omitempty"`
	TimeExpire      int64        `json:"time_expire,omitempty"`
	TimePaid        *time.Time   `json:"time_paid,omitempty"`
	Paid            bool         `json:"paid"`
	FailureCode     string       `json:"failure_code,omitempty"`
	FailureMsg      string       `json:"failure_msg,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func (Charge) TableName() string { return "charges" }

// Refund is a refund attempt against a Charge.
type Refund struct {
	ID              string       `gorm:"primaryKey;size:64" json:"id"`
	AppID           string       `gorm:"index;size:64" json:"app_id"`
	ChargeID        string       `gorm:"index;size:64" json:"charge_id"`
	OrderID         string       `gorm:"index;size:64" json:"order_id,omitempty"`
	MerchantOrderNo string       `gorm:"index;size:64" json:"merchant_order_no"`
	Amount          int64        `json:"amount"`
	Status          string       `gorm:"size:16" json:"status"`
	Description     string       `json:"description,omitempty"`
	Extra           db.JSONField `json:"extra,omitempty"`
	TimeSucceed     *time.Time   `json:"time_succeed,omitempty"`
	FailureCode     string       `json:"failure_code,omitempty"`
	FailureMsg      string       `json:"failure_msg,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func (Refund) TableName() string { return "refunds" }

const (
	RefundStatusPending   = "pending"
	RefundStatusSucceeded = "succeeded"
	RefundStatusFailed    = "failed"
)

// ChargeNotifyHistory is one row per inbound channel callback. Append-only.
type ChargeNotifyHistory struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ChargeID  string    `gorm:"index;size:64" json:"charge_id"`
	RefundID  string    `gorm:"index;size:64" json:"refund_id,omitempty"`
	RawBody   string    `gorm:"type:text" json:"raw_body"`
	CreatedAt time.Time `json:"created_at"`
}

func (ChargeNotifyHistory) TableName() string { return "charge_notify_histories" }

// AppWebhookConfig is a merchant-registered webhook endpoint.
type AppWebhookConfig struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AppID     string    `gorm:"index;size:64" json:"app_id"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AppWebhookConfig) TableName() string { return "app_webhook_configs" }

// AppWebhookHistory is one row per outbound webhook delivery attempt.
type AppWebhookHistory struct {
	ID         string       `gorm:"primaryKey;size:64" json:"id"`
	AppID      string       `gorm:"index;size:64" json:"app_id"`
	Endpoint   string       `json:"endpoint"`
	EventType  string       `gorm:"size:32" json:"event_type"`
	Payload    db.JSONField `json:"payload"`
	StatusCode int          `json:"status_code"`
	Response   string       `gorm:"type:text" json:"response,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

func (AppWebhookHistory) TableName() string { return "app_webhook_histories" }
