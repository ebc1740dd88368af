package alipay

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/heidian/pingxx-gateway/apierr"
	"github.com/heidian/pingxx-gateway/signing"
)

const OpenApiGatewayURL = "https://openapi.alipay.com/gateway.do"

const (
	OpenApiMethodPC  = "alipay.trade.page.pay"
	OpenApiMethodWAP = "alipay.trade.wap.pay"
)

// OpenApiChargeParams are the inputs needed to build an OpenAPI page-pay
// or wap-pay request.
type OpenApiChargeParams struct {
	Method          string
	AlipayAppID     string
	AlipayPID       string
	NotifyURL       string
	ReturnURL       string
	ChargeID        string
	MerchantOrderNo string
	AmountFen       int64
	TimeExpire      int64
	Subject         string
	Body            string
}

type openApiBizContent struct {
	Body            string            `json:"body"`
	Subject         string            `json:"subject"`
	OutTradeNo      string            `json:"out_trade_no"`
	TotalAmount     string            `json:"total_amount"`
	ProductCode     string            `json:"product_code"`
	ExtendParams    map[string]string `json:"extend_params"`
	TimeoutExpress  string            `json:"timeout_express"`
	PassbackParams  string            `json:"passback_params"`
}

// BuildChargeRequest constructs and signs the OpenAPI request envelope.
// The returned map includes channel_url, transport-only and excluded from
// signing and from the eventual query string.
func BuildChargeRequest(p OpenApiChargeParams, privateKey *rsa.PrivateKey) (map[string]string, error) {
	timeoutExpress, err := itBPayFromExpire(p.TimeExpire)
	if err != nil {
		return nil, err
	}

	biz := openApiBizContent{
		Body:           p.Body,
		Subject:        p.Subject,
		OutTradeNo:     p.MerchantOrderNo,
		TotalAmount:    formatYuan(p.AmountFen),
		ProductCode:    "FAST_INSTANT_TRADE_PAY",
		ExtendParams:   map[string]string{"sys_service_provider_id": p.AlipayPID},
		TimeoutExpress: timeoutExpress,
		PassbackParams: p.ChargeID,
	}
	bizBytes, err := json.Marshal(biz)
	if err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "marshal biz_content")
	}

	m := map[string]string{
		"channel_url": OpenApiGatewayURL,
		"app_id":      p.AlipayAppID,
		"method":      p.Method,
		"format":      "JSON",
		"charset":     "utf-8",
		"sign_type":   "RSA2",
		"timestamp":   time.Now().UTC().Format("2006-01-02 15:04:05"),
		"version":     "1.0",
		"biz_content": string(bizBytes),
		"notify_url":  p.NotifyURL,
		"return_url":  p.ReturnURL,
	}

	sig, err := signOpenApi(m, privateKey)
	if err != nil {
		return nil, err
	}
	m["sign"] = sig
	return m, nil
}

func signOpenApi(m map[string]string, privateKey *rsa.PrivateKey) (string, error) {
	canonical := signing.Canonical(m, "sign", "channel_url")
	return signing.SignRSASHA256(canonical, privateKey)
}

// VerifyOpenApi verifies an OpenAPI signature over m (sign and channel_url
// excluded from the canonical string, as in signOpenApi).
func VerifyOpenApi(m map[string]string, sig string, publicKey *rsa.PublicKey) (bool, error) {
	canonical := signing.Canonical(m, "sign", "channel_url")
	return signing.VerifyRSASHA256(canonical, sig, publicKey)
}

// VerifyAndParseChargeNotify mirrors MapiNotify parsing but requires
// sign_type=RSA2 and reads total_amount instead of total_fee.
func VerifyAndParseChargeNotify(rawBody string, publicKey *rsa.PublicKey) (*MapiNotify, error) {
	m, err := ParseNotify(rawBody)
	if err != nil {
		return nil, err
	}

	signType, sign := m["sign_type"], m["sign"]
	tradeStatus, outTradeNo, totalAmount := m["trade_status"], m["out_trade_no"], m["total_amount"]
	if signType == "" || sign == "" || tradeStatus == "" || outTradeNo == "" || totalAmount == "" {
		return nil, apierr.New(apierr.ApiError, "missing required params")
	}
	if signType != "RSA2" {
		return nil, apierr.New(apierr.ApiError, "sign_type not RSA2")
	}

	amountYuan, err := strconv.ParseFloat(totalAmount, 64)
	if err != nil {
		return nil, apierr.Wrap(apierr.ApiError, err, "invalid total_amount")
	}

	ok, err := VerifyOpenApi(m, sign, publicKey)
	if err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "verify openapi signature")
	}
	if !ok {
		return nil, apierr.New(apierr.ApiError, "wrong rsa2 signature")
	}

	return &MapiNotify{
		TradeStatus:     tradeStatus,
		MerchantOrderNo: outTradeNo,
		AmountFen:       int64(amountYuan*100 + 0.5),
	}, nil
}

// OpenApiRefundParams are the inputs needed to build a signed refund
// request and submit it to the gateway.
type OpenApiRefundParams struct {
	AlipayAppID             string
	ChargeMerchantOrderNo   string
	RefundMerchantOrderNo   string
	AmountFen               int64
	Description             string
	// GatewayURL overrides OpenApiGatewayURL when set, e.g. for sandbox
	// testing.
	GatewayURL string
}

type openApiRefundBizContent struct {
	RefundAmount  string `json:"refund_amount"`
	OutTradeNo    string `json:"out_trade_no"`
	OutRequestNo  string `json:"out_request_no"`
	RefundReason  string `json:"refund_reason"`
}

// OpenApiRefundResult is the subset of the alipay_trade_refund_response
// object the refund engine needs to classify the outcome.
type OpenApiRefundResult struct {
	Code       string `json:"code"`
	Msg        string `json:"msg"`
	FundChange string `json:"fund_change"`
}

// SendRefund builds, signs, and POSTs a refund request, then extracts the
// alipay_trade_refund_response envelope from the JSON body.
func SendRefund(ctx context.Context, httpClient *http.Client, p OpenApiRefundParams, privateKey *rsa.PrivateKey) (*OpenApiRefundResult, error) {
	biz := openApiRefundBizContent{
		RefundAmount: formatYuan(p.AmountFen),
		OutTradeNo:   p.ChargeMerchantOrderNo,
		OutRequestNo: p.RefundMerchantOrderNo,
		RefundReason: p.Description,
	}
	bizBytes, err := json.Marshal(biz)
	if err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "marshal refund biz_content")
	}

	m := map[string]string{
		"app_id":      p.AlipayAppID,
		"method":      "alipay.trade.refund",
		"format":      "JSON",
		"charset":     "utf-8",
		"sign_type":   "RSA2",
		"timestamp":   time.Now().UTC().Format("2006-01-02 15:04:05"),
		"version":     "1.0",
		"biz_content": string(bizBytes),
	}
	sig, err := signOpenApi(m, privateKey)
	if err != nil {
		return nil, err
	}
	m["sign"] = sig

	values := url.Values{}
	for k, v := range m {
		values.Set(k, v)
	}

	gatewayURL := p.GatewayURL
	if gatewayURL == "" {
		gatewayURL = OpenApiGatewayURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gatewayURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "build openapi refund request")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, apierr.Wrap(apierr.ApiError, err, "send openapi refund request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "read openapi refund response")
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "decode openapi refund response")
	}
	inner, ok := envelope["alipay_trade_refund_response"]
	if !ok {
		return nil, apierr.New(apierr.ApiError, "missing alipay_trade_refund_response: %s", strings.TrimSpace(string(body)))
	}

	var result OpenApiRefundResult
	if err := json.Unmarshal(inner, &result); err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "decode alipay_trade_refund_response")
	}
	return &result, nil
}

// ClassifyRefundResult applies the code/fund_change success rule: code
// 10000 with fund_change=Y is succeeded; code 10000 without fund_change=Y
// must be confirmed out-of-band and is treated as failed here; any other
// code is failed with msg surfaced as the failure message.
func ClassifyRefundResult(r *OpenApiRefundResult) (succeeded bool, failureMsg string) {
	if r.Code != "10000" {
		return false, r.Msg
	}
	if r.FundChange == "Y" {
		return true, ""
	}
	return false, fmt.Sprintf("refund not confirmed (fund_change=%q); query alipay to confirm", r.FundChange)
}
