// Package alipay implements Alipay's legacy MAPI form-urlencoded protocol
// and its modern OpenAPI JSON biz_content protocol, sharing the canonical
// signing primitives from the signing package.
package alipay

import (
	"crypto/rsa"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/heidian/pingxx-gateway/apierr"
	"github.com/heidian/pingxx-gateway/signing"
)

const MapiGatewayURL = "https://mapi.alipay.com/gateway.do"

const (
	MapiServicePC  = "create_direct_pay_by_user"
	MapiServiceWAP = "alipay.wap.create.direct.pay.by.user"
)

// MapiChargeParams are the inputs the caller (a channel handler) collects
// from ChargeRequest and ChannelParams before building the MAPI payload.
type MapiChargeParams struct {
	Service         string
	AlipayPID       string
	NotifyURL       string
	ReturnURL       string
	MerchantOrderNo string
	AmountFen       int64
	TimeExpire      int64
	Subject         string
	Body            string
}

// BuildChargeRequest constructs and signs the legacy form payload for a
// create-direct-pay request. The returned map includes channel_url, which
// is transport-only and must be excluded before POSTing the signed fields.
func BuildChargeRequest(p MapiChargeParams, privateKey *rsa.PrivateKey) (map[string]string, error) {
	itBPay, err := itBPayFromExpire(p.TimeExpire)
	if err != nil {
		return nil, err
	}

	m := map[string]string{
		"channel_url":     MapiGatewayURL,
		"service":         p.Service,
		"_input_charset":  "utf-8",
		"return_url":      p.ReturnURL,
		"notify_url":      p.NotifyURL,
		"partner":         p.AlipayPID,
		"out_trade_no":    p.MerchantOrderNo,
		"subject":         p.Subject,
		"body":            p.Body,
		"total_fee":       formatYuan(p.AmountFen),
		"payment_type":    "1",
		"seller_id":       p.AlipayPID,
		"it_b_pay":        itBPay,
		"sign_type":       "RSA",
	}

	sig, err := signMapi(m, privateKey)
	if err != nil {
		return nil, err
	}
	m["sign"] = sig
	return m, nil
}

func itBPayFromExpire(timeExpire int64) (string, error) {
	now := time.Now().Unix()
	if timeExpire <= now {
		return "", apierr.New(apierr.MalformedRequest, "time_expire is in the past")
	}
	seconds := timeExpire - now
	minutes := seconds / 60
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("%dm", minutes), nil
}

func formatYuan(fen int64) string {
	return fmt.Sprintf("%.2f", float64(fen)/100.0)
}

// signMapi signs the payload map with RSA-SHA1 over the canonical string
// with sign, sign_type, and channel_url dropped.
func signMapi(m map[string]string, privateKey *rsa.PrivateKey) (string, error) {
	canonical := signing.Canonical(m, "sign", "sign_type", "channel_url")
	return signing.SignRSASHA1(canonical, privateKey)
}

// VerifyMapi verifies a MAPI signature over m (sign, sign_type, and
// channel_url excluded from the canonical string, as in signMapi).
func VerifyMapi(m map[string]string, sig string, publicKey *rsa.PublicKey) (bool, error) {
	canonical := signing.Canonical(m, "sign", "sign_type", "channel_url")
	return signing.VerifyRSASHA1(canonical, sig, publicKey)
}

// MapiRefundParams are the inputs needed to build a signed MAPI refund URL.
type MapiRefundParams struct {
	AlipayPID       string
	NotifyURL       string
	MerchantOrderNo string
	AmountFen       int64
	Description     string
	RefundIDSuffix  string // ms-epoch+random portion used to build batch_no
}

// BuildRefundURL constructs the signed query string for the MAPI refund
// endpoint and returns the full user-actionable URL.
func BuildRefundURL(p MapiRefundParams, privateKey *rsa.PrivateKey) (string, error) {
	now := time.Now().UTC()
	batchNo := now.Format("20060102") + p.RefundIDSuffix
	refundDate := now.Format("2006-01-02 15:04:05")
	detailData := fmt.Sprintf("%s^%s^%s", p.MerchantOrderNo, formatYuan(p.AmountFen), p.Description)

	m := map[string]string{
		"service":         "refund_fastpay_by_platform_pwd",
		"partner":         p.AlipayPID,
		"_input_charset":  "utf-8",
		"sign_type":       "RSA",
		"notify_url":      p.NotifyURL,
		"seller_user_id":  p.AlipayPID,
		"refund_date":     refundDate,
		"batch_no":        batchNo,
		"batch_num":       "1",
		"detail_data":     detailData,
	}

	sig, err := signMapi(m, privateKey)
	if err != nil {
		return "", err
	}
	m["sign"] = sig

	values := url.Values{}
	for k, v := range m {
		values.Set(k, v)
	}
	return MapiGatewayURL + "?" + values.Encode(), nil
}

// MapiNotify is the parsed and verified result of an inbound MAPI callback.
type MapiNotify struct {
	TradeStatus     string
	MerchantOrderNo string
	AmountFen       int64
}

// ParseNotify parses an application/x-www-form-urlencoded MAPI callback
// body. The "+"-before-decode substitution is load-bearing: every literal
// "+" in the body is turned into a space before percent-decoding runs, so
// the "+"-encoded spaces inside timestamp values decode to spaces, while a
// "+" inside the sign value (sent percent-encoded as "%2B") decodes back
// to "+" unchanged.
func ParseNotify(rawBody string) (map[string]string, error) {
	replaced := strings.ReplaceAll(rawBody, "+", " ")
	m := make(map[string]string)
	for _, pair := range strings.Split(replaced, "&") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		val, err := url.QueryUnescape(kv[1])
		if err != nil {
			val = kv[1]
		}
		m[kv[0]] = val
	}
	return m, nil
}

// VerifyAndParseChargeNotify validates the required fields of a MAPI
// charge notify, verifies its RSA-SHA1 signature, and returns the
// normalized result.
func VerifyAndParseChargeNotify(rawBody string, publicKey *rsa.PublicKey) (*MapiNotify, error) {
	m, err := ParseNotify(rawBody)
	if err != nil {
		return nil, err
	}

	signType, sign := m["sign_type"], m["sign"]
	tradeStatus, outTradeNo, totalFee := m["trade_status"], m["out_trade_no"], m["total_fee"]
	if signType == "" || sign == "" || tradeStatus == "" || outTradeNo == "" || totalFee == "" {
		return nil, apierr.New(apierr.ApiError, "missing required params")
	}
	if signType != "RSA" {
		return nil, apierr.New(apierr.ApiError, "sign_type not RSA")
	}

	amountYuan, err := strconv.ParseFloat(totalFee, 64)
	if err != nil {
		return nil, apierr.Wrap(apierr.ApiError, err, "invalid total_fee")
	}

	ok, err := VerifyMapi(m, sign, publicKey)
	if err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "verify mapi signature")
	}
	if !ok {
		return nil, apierr.New(apierr.ApiError, "wrong rsa signature")
	}

	return &MapiNotify{
		TradeStatus:     tradeStatus,
		MerchantOrderNo: outTradeNo,
		AmountFen:       int64(amountYuan*100 + 0.5),
	}, nil
}

// TradeStatusSucceeded reports whether a MAPI trade_status indicates a
// completed payment.
func TradeStatusSucceeded(status string) bool {
	return status == "TRADE_SUCCESS" || status == "TRADE_FINISHED"
}
