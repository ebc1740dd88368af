// Package channel adapts the four supported payment channels — Alipay PC
// Direct, Alipay WAP, WeChat Pub, WeChat Lite — to one ChannelHandler
// contract, selecting between the Alipay MAPI/OpenAPI codecs and the
// WeChat V2 codec underneath.
package channel

import "context"

const (
	Alipay    = "alipay_pc_direct"
	AlipayWap = "alipay_wap"
	Wx        = "wx_pub"
	WxLite    = "wx_lite"
)

// ChargeExtra carries the channel-scoped options a create-charge caller
// supplies; only the fields a given channel needs are required.
type ChargeExtra struct {
	SuccessURL string `json:"success_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
	OpenID     string `json:"open_id,omitempty"`
}

// ChargeRequest is everything a handler needs to mint a credential.
type ChargeRequest struct {
	ChargeID        string
	Amount          int64
	MerchantOrderNo string
	ClientIP        string
	TimeExpire      int64
	Subject         string
	Body            string
	Extra           ChargeExtra
}

// RefundExtra carries channel-scoped refund options.
type RefundExtra struct {
	FundingSource string `json:"funding_source,omitempty"` // wechat only: unsettled_funds | recharge_funds
}

// RefundRequest is everything a handler needs to submit a refund.
type RefundRequest struct {
	ChargeID              string
	ChargeAmount          int64
	ChargeMerchantOrderNo string
	RefundID             string
	RefundAmount          int64
	RefundMerchantOrderNo string
	Description           string
	Extra                 RefundExtra
}

// RefundStatus is the outcome of a create_refund call or a refund notify.
type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundSucceeded RefundStatus = "succeeded"
	RefundFailed    RefundStatus = "failed"
)

// RefundResult is the handler's verdict on a create_refund call.
type RefundResult struct {
	Status      RefundStatus
	Amount      int64
	Description string
	Extra       map[string]interface{}
	FailureCode string
	FailureMsg  string
}

// NotifyOutcome is the verdict on an inbound charge or refund notify.
type NotifyOutcome struct {
	Status          RefundStatus // Success maps to RefundSucceeded, Fail to RefundFailed
	MerchantOrderNo string
	RefundMerchantOrderNo string
	AmountFen       int64
	FailureMsg      string
}

const (
	NotifySuccess = RefundSucceeded
	NotifyFail    = RefundFailed
)

// Handler is the contract every channel implementation satisfies.
type Handler interface {
	CreateCredential(ctx context.Context, req ChargeRequest) (map[string]interface{}, error)
	ProcessChargeNotify(rawBody string) (*NotifyOutcome, error)
	CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	ProcessRefundNotify(rawBody string) (*NotifyOutcome, error)
}
