package channel

import (
	"context"
	"net/http"

	"github.com/heidian/pingxx-gateway/alipay"
	"github.com/heidian/pingxx-gateway/db"
)

// AlipayWapHandler handles the "alipay_wap" channel tag: Alipay's mobile web
// payment flow. It shares 90% of its internals with AlipayPcDirect,
// differing only in the service/method strings passed to the shared
// MAPI/OpenAPI helpers.
type AlipayWapHandler struct {
	cfg        *AlipayConfig
	apiBase    string
	httpClient *http.Client
}

func NewAlipayWap(raw db.JSONField, apiBase string, httpClient *http.Client) (*AlipayWapHandler, error) {
	cfg, err := parseAlipayConfig(raw)
	if err != nil {
		return nil, err
	}
	return &AlipayWapHandler{cfg: cfg, apiBase: apiBase, httpClient: httpClient}, nil
}

func (h *AlipayWapHandler) CreateCredential(ctx context.Context, req ChargeRequest) (map[string]interface{}, error) {
	return alipayCreateCredential(h.cfg, h.apiBase, alipay.MapiServiceWAP, alipay.OpenApiMethodWAP, req)
}

func (h *AlipayWapHandler) ProcessChargeNotify(rawBody string) (*NotifyOutcome, error) {
	return alipayProcessChargeNotify(h.cfg, rawBody)
}

func (h *AlipayWapHandler) CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	return alipayCreateRefund(ctx, h.httpClient, h.cfg, h.apiBase, req)
}

func (h *AlipayWapHandler) ProcessRefundNotify(rawBody string) (*NotifyOutcome, error) {
	return alipayProcessChargeNotify(h.cfg, rawBody)
}
