package channel

import (
	"context"
	"net/http"

	"github.com/heidian/pingxx-gateway/apierr"
	"github.com/heidian/pingxx-gateway/db"
	"github.com/heidian/pingxx-gateway/wechat"
)

// WxPub handles the "wx_pub" channel tag: WeChat's JSAPI in-official-
// account payment flow.
type WxPub struct {
	cfg     *WxPubConfig
	apiBase string
}

func NewWxPub(raw db.JSONField, apiBase string) (*WxPub, error) {
	cfg, err := parseWxPubConfig(raw)
	if err != nil {
		return nil, err
	}
	return &WxPub{cfg: cfg, apiBase: apiBase}, nil
}

func (h *WxPub) CreateCredential(ctx context.Context, req ChargeRequest) (map[string]interface{}, error) {
	return wxCreateCredential(ctx, h.cfg.AppID, h.cfg.MchID, h.cfg.Key, h.apiBase, req)
}

func (h *WxPub) ProcessChargeNotify(rawBody string) (*NotifyOutcome, error) {
	return wxProcessChargeNotify(h.cfg.Key, rawBody)
}

func (h *WxPub) CreateRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	return wxCreateRefund(ctx, h.cfg.AppID, h.cfg.MchID, h.cfg.Key, h.cfg.ClientCert, h.cfg.ClientKey, h.apiBase, req)
}

func (h *WxPub) ProcessRefundNotify(rawBody string) (*NotifyOutcome, error) {
	return wxProcessRefundNotify(h.cfg.Key, rawBody)
}

// wxCreateCredential is shared by WxPub and WxLiteHandler: build+sign the
// unifiedorder request, submit it synchronously, then mint the JSAPI
// credential from the returned prepay_id.
func wxCreateCredential(ctx context.Context, appID, mchID, key, apiBase string, req ChargeRequest) (map[string]interface{}, error) {
	if req.Extra.OpenID == "" {
		return nil, apierr.New(apierr.MalformedRequest, "missing open_id in charge extra")
	}

	xmlPayload, nonceStr, err := wechat.BuildUnifiedOrderRequest(wechat.UnifiedOrderParams{
		AppID:           appID,
		MchID:           mchID,
		OpenID:          req.Extra.OpenID,
		ClientIP:        req.ClientIP,
		MerchantOrderNo: req.MerchantOrderNo,
		AmountFen:       req.Amount,
		TimeExpire:      req.TimeExpire,
		Body:            req.Body,
		NotifyURL:       chargeNotifyURL(apiBase, req.ChargeID),
	}, key)
	if err != nil {
		return nil, err
	}

	rawResp, err := postUnifiedOrder(ctx, xmlPayload)
	if err != nil {
		return nil, err
	}

	result, err := wechat.ParseUnifiedOrderResponse(rawResp)
	if err != nil {
		return nil, err
	}

	credential := wechat.BuildJSAPICredential(appID, nonceStr, result.PrepayID, key)
	return map[string]interface{}{
		"appId":     credential.AppID,
		"timeStamp": credential.TimeStamp,
		"nonceStr":  credential.NonceStr,
		"package":   credential.Package,
		"signType":  credential.SignType,
		"paySign":   credential.PaySign,
	}, nil
}

func wxProcessChargeNotify(key, rawBody string) (*NotifyOutcome, error) {
	n, err := wechat.VerifyAndParseChargeNotify(rawBody, key)
	if err != nil {
		return nil, err
	}
	return &NotifyOutcome{
		Status:          statusFromBool(n.ResultCode == "SUCCESS"),
		MerchantOrderNo: n.MerchantOrderNo,
		AmountFen:       n.AmountFen,
	}, nil
}

func wxCreateRefund(ctx context.Context, appID, mchID, key, clientCert, clientKey, apiBase string, req RefundRequest) (*RefundResult, error) {
	if clientCert == "" || clientKey == "" {
		return nil, apierr.New(apierr.InvalidConfig, "missing wechat client certificate for refund")
	}
	httpClient, err := wechat.NewMTLSClient(clientCert, clientKey)
	if err != nil {
		return nil, err
	}

	_, err = wechat.SendRefund(ctx, httpClient, wechat.RefundParams{
		AppID:                 appID,
		MchID:                 mchID,
		ChargeMerchantOrderNo: req.ChargeMerchantOrderNo,
		RefundMerchantOrderNo: req.RefundMerchantOrderNo,
		ChargeAmountFen:       req.ChargeAmount,
		RefundAmountFen:       req.RefundAmount,
		NotifyURL:             refundNotifyURL(apiBase, req.ChargeID, req.RefundID),
	}, key)
	if err != nil {
		return nil, err
	}

	return &RefundResult{
		Status:      RefundPending,
		Amount:      req.RefundAmount,
		Description: req.Description,
	}, nil
}

func wxProcessRefundNotify(key, rawBody string) (*NotifyOutcome, error) {
	n, err := wechat.VerifyAndParseRefundNotify(rawBody, key)
	if err != nil {
		return nil, err
	}
	outcome := &NotifyOutcome{
		MerchantOrderNo:       n.MerchantOrderNo,
		RefundMerchantOrderNo: n.RefundMerchantOrderNo,
		AmountFen:             n.AmountFen,
	}
	if n.RefundStatus == "SUCCESS" {
		outcome.Status = RefundSucceeded
	} else {
		outcome.Status = RefundFailed
		outcome.FailureMsg = n.RefundStatus
	}
	return outcome, nil
}

func postUnifiedOrder(ctx context.Context, xmlPayload string) (string, error) {
	return postXML(ctx, wechat.UnifiedOrderURL, xmlPayload)
}

func postXML(ctx context.Context, url, xmlPayload string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, stringsReader(xmlPayload))
	if err != nil {
		return "", apierr.Wrap(apierr.Unexpected, err, "build wechat request")
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", apierr.Wrap(apierr.ApiError, err, "send wechat request")
	}
	defer resp.Body.Close()

	return readAll(resp)
}
