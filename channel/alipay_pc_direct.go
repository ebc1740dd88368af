package channel

import (
	"context"
	"net/http"

	"github.com/heidian/pingxx-gateway/alipay"
	"github.com/heidian/pingxx-gateway/apierr"
	"github.com/heidian/pingxx-gateway/db"
	"github.com/heidian/pingxx-gateway/idgen"
)

// AlipayPcDirect handles the "alipay_pc_direct" channel tag: Alipay's PC web-page
// payment flow, switching between the MAPI and OpenAPI codecs based on
// the ChannelParams' alipay_version.
type AlipayPcDirect struct {
	cfg        *AlipayConfig
	apiBase    string
	httpClient *http.Client
}

func NewAlipayPcDirect(raw db.JSONField, apiBase string, httpClient *http.Client) (*AlipayPcDirect, error) {
	cfg, err := parseAlipayConfig(raw)
	if err != nil {
		return nil, err
	}
	return &AlipayPcDirect{cfg: cfg, apiBase: apiBase, httpClient: httpClient}, nil
}

func (h *AlipayPcDirect) CreateCredential(ctx context.Context, req ChargeRequest) (map[string]interface{}, error) {
	return alipayCreateCredential(h.cfg, h.apiBase, alipay.MapiServicePC, alipay.OpenApiMethodPC, req)
}

func (h *AlipayPcDirect) ProcessChargeNotify(rawBody string) (*NotifyOutcome, error) {
	return alipayProcessChargeNotify(h.cfg, rawBody)
}

func (h *AlipayPcDirect) CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	return alipayCreateRefund(ctx, h.httpClient, h.cfg, h.apiBase, req)
}

func (h *AlipayPcDirect) ProcessRefundNotify(rawBody string) (*NotifyOutcome, error) {
	return alipayProcessChargeNotify(h.cfg, rawBody)
}

// alipayCreateCredential is shared by AlipayPcDirect and AlipayWapHandler;
// they differ only in which service/method string they feed in, not in
// the MAPI/OpenAPI switch itself.
func alipayCreateCredential(cfg *AlipayConfig, apiBase, mapiService, openapiMethod string, req ChargeRequest) (map[string]interface{}, error) {
	if req.Extra.SuccessURL == "" {
		return nil, apierr.New(apierr.MalformedRequest, "missing success_url in charge extra")
	}

	switch cfg.AlipayVersion {
	case AlipayVersionMapi:
		key, err := cfg.mapiPrivateKey()
		if err != nil {
			return nil, apierr.Wrap(apierr.InvalidConfig, err, "parse alipay mapi private key")
		}
		m, err := alipay.BuildChargeRequest(alipay.MapiChargeParams{
			Service:         mapiService,
			AlipayPID:       cfg.AlipayPID,
			NotifyURL:       chargeNotifyURL(apiBase, req.ChargeID),
			ReturnURL:       req.Extra.SuccessURL,
			MerchantOrderNo: req.MerchantOrderNo,
			AmountFen:       req.Amount,
			TimeExpire:      req.TimeExpire,
			Subject:         req.Subject,
			Body:            req.Body,
		}, key)
		if err != nil {
			return nil, err
		}
		return toAnyMap(m), nil
	case AlipayVersionOpenAPI:
		key, err := cfg.openapiPrivateKey()
		if err != nil {
			return nil, apierr.Wrap(apierr.InvalidConfig, err, "parse alipay openapi private key")
		}
		m, err := alipay.BuildChargeRequest(alipay.OpenApiChargeParams{
			Method:          openapiMethod,
			AlipayAppID:     cfg.AlipayAppID,
			AlipayPID:       cfg.AlipayPID,
			NotifyURL:       chargeNotifyURL(apiBase, req.ChargeID),
			ReturnURL:       req.Extra.SuccessURL,
			ChargeID:        req.ChargeID,
			MerchantOrderNo: req.MerchantOrderNo,
			AmountFen:       req.Amount,
			TimeExpire:      req.TimeExpire,
			Subject:         req.Subject,
			Body:            req.Body,
		}, key)
		if err != nil {
			return nil, err
		}
		return toAnyMap(m), nil
	default:
		return nil, apierr.New(apierr.InvalidConfig, "unknown alipay_version %d", cfg.AlipayVersion)
	}
}

func alipayProcessChargeNotify(cfg *AlipayConfig, rawBody string) (*NotifyOutcome, error) {
	switch cfg.AlipayVersion {
	case AlipayVersionMapi:
		pub, err := cfg.mapiPublicKey()
		if err != nil {
			return nil, apierr.Wrap(apierr.InvalidConfig, err, "parse alipay mapi public key")
		}
		n, err := alipay.VerifyAndParseChargeNotify(rawBody, pub)
		if err != nil {
			return nil, err
		}
		return &NotifyOutcome{
			Status:          statusFromBool(alipay.TradeStatusSucceeded(n.TradeStatus)),
			MerchantOrderNo: n.MerchantOrderNo,
			AmountFen:       n.AmountFen,
		}, nil
	case AlipayVersionOpenAPI:
		pub, err := cfg.openapiPublicKey()
		if err != nil {
			return nil, apierr.Wrap(apierr.InvalidConfig, err, "parse alipay openapi public key")
		}
		n, err := alipay.VerifyAndParseChargeNotify(rawBody, pub)
		if err != nil {
			return nil, err
		}
		return &NotifyOutcome{
			Status:          statusFromBool(alipay.TradeStatusSucceeded(n.TradeStatus)),
			MerchantOrderNo: n.MerchantOrderNo,
			AmountFen:       n.AmountFen,
		}, nil
	default:
		return nil, apierr.New(apierr.InvalidConfig, "unknown alipay_version %d", cfg.AlipayVersion)
	}
}

func alipayCreateRefund(ctx context.Context, httpClient *http.Client, cfg *AlipayConfig, apiBase string, req RefundRequest) (*RefundResult, error) {
	switch cfg.AlipayVersion {
	case AlipayVersionMapi:
		key, err := cfg.mapiPrivateKey()
		if err != nil {
			return nil, apierr.Wrap(apierr.InvalidConfig, err, "parse alipay mapi private key")
		}
		url, err := alipay.BuildRefundURL(alipay.MapiRefundParams{
			AlipayPID:       cfg.AlipayPID,
			NotifyURL:       refundNotifyURL(apiBase, req.ChargeID, req.RefundID),
			MerchantOrderNo: req.ChargeMerchantOrderNo,
			AmountFen:       req.RefundAmount,
			Description:     req.Description,
			RefundIDSuffix:  idgen.New11DigitSuffix(),
		}, key)
		if err != nil {
			return nil, err
		}
		return &RefundResult{
			Status:      RefundPending,
			Amount:      req.RefundAmount,
			Description: req.Description,
			Extra:       map[string]interface{}{"confirmation_url": url},
		}, nil
	case AlipayVersionOpenAPI:
		key, err := cfg.openapiPrivateKey()
		if err != nil {
			return nil, apierr.Wrap(apierr.InvalidConfig, err, "parse alipay openapi private key")
		}
		result, err := alipay.SendRefund(ctx, httpClient, alipay.OpenApiRefundParams{
			AlipayAppID:           cfg.AlipayAppID,
			ChargeMerchantOrderNo: req.ChargeMerchantOrderNo,
			RefundMerchantOrderNo: req.RefundMerchantOrderNo,
			AmountFen:             req.RefundAmount,
			Description:           req.Description,
			GatewayURL:            cfg.AlipayGatewayURL,
		}, key)
		if err != nil {
			return nil, err
		}
		succeeded, failureMsg := alipay.ClassifyRefundResult(result)
		if succeeded {
			return &RefundResult{Status: RefundSucceeded, Amount: req.RefundAmount, Description: req.Description}, nil
		}
		return &RefundResult{Status: RefundFailed, Amount: req.RefundAmount, Description: req.Description, FailureMsg: failureMsg}, nil
	default:
		return nil, apierr.New(apierr.InvalidConfig, "unknown alipay_version %d", cfg.AlipayVersion)
	}
}

func statusFromBool(ok bool) RefundStatus {
	if ok {
		return RefundSucceeded
	}
	return RefundFailed
}

func toAnyMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
