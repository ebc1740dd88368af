package channel

import (
	"context"

	"github.com/heidian/pingxx-gateway/db"
)

// WxLiteHandler handles the "wx_lite" channel tag: WeChat's mini-program
// payment flow. It reuses the same unifiedorder/JSAPI/refund machinery
// as WxPub, reading the wx_lite-prefixed ChannelParams fields instead.
type WxLiteHandler struct {
	cfg     *WxLiteConfig
	apiBase string
}

func NewWxLite(raw db.JSONField, apiBase string) (*WxLiteHandler, error) {
	cfg, err := parseWxLiteConfig(raw)
	if err != nil {
		return nil, err
	}
	return &WxLiteHandler{cfg: cfg, apiBase: apiBase}, nil
}

func (h *WxLiteHandler) CreateCredential(ctx context.Context, req ChargeRequest) (map[string]interface{}, error) {
	return wxCreateCredential(ctx, h.cfg.AppID, h.cfg.MchID, h.cfg.Key, h.apiBase, req)
}

func (h *WxLiteHandler) ProcessChargeNotify(rawBody string) (*NotifyOutcome, error) {
	return wxProcessChargeNotify(h.cfg.Key, rawBody)
}

func (h *WxLiteHandler) CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	return wxCreateRefund(ctx, h.cfg.AppID, h.cfg.MchID, h.cfg.Key, h.cfg.ClientCert, h.cfg.ClientKey, h.apiBase, req)
}

func (h *WxLiteHandler) ProcessRefundNotify(rawBody string) (*NotifyOutcome, error) {
	return wxProcessRefundNotify(h.cfg.Key, rawBody)
}
