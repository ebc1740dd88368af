// Package wechat implements WeChat Pay's V2 XML-envelope protocol:
// unifiedorder, JSAPI credential minting, charge notify verification,
// mutual-TLS refund submission, and AES-256-ECB refund notify decryption.
package wechat

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/heidian/pingxx-gateway/apierr"
	"github.com/heidian/pingxx-gateway/signing"
)

const (
	UnifiedOrderURL = "https://api.mch.weixin.qq.com/pay/unifiedorder"
	RefundURL       = "https://api.mch.weixin.qq.com/secapi/pay/refund"
)

var shanghai = mustLoadShanghai()

func mustLoadShanghai() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

// UnifiedOrderParams are the inputs collected from ChargeRequest and
// ChannelParams before building a unifiedorder request.
type UnifiedOrderParams struct {
	AppID           string
	MchID           string
	OpenID          string
	ClientIP        string
	MerchantOrderNo string
	AmountFen       int64
	TimeExpire      int64
	Body            string
	NotifyURL       string
}

// BuildUnifiedOrderRequest constructs the signed XML payload and returns it
// alongside the nonce actually used (the JSAPI credential reuses it).
func BuildUnifiedOrderRequest(p UnifiedOrderParams, key string) (xmlPayload string, nonceStr string, err error) {
	nonceStr = signing.NonceStr()
	timeExpire := time.Unix(p.TimeExpire, 0).In(shanghai).Format("20060102150405")

	m := map[string]string{
		"appid":            p.AppID,
		"mch_id":           p.MchID,
		"nonce_str":        nonceStr,
		"body":             truncateUTF8(p.Body, 127),
		"out_trade_no":     p.MerchantOrderNo,
		"total_fee":        strconv.FormatInt(p.AmountFen, 10),
		"spbill_create_ip": p.ClientIP,
		"time_expire":      timeExpire,
		"notify_url":       p.NotifyURL,
		"trade_type":       "JSAPI",
		"openid":           p.OpenID,
	}
	sig := signV2(m, key)
	m["sign"] = sig

	order := []string{"appid", "mch_id", "nonce_str", "sign", "body", "out_trade_no",
		"total_fee", "spbill_create_ip", "time_expire", "notify_url", "trade_type", "openid"}
	return buildXML(m, order), nonceStr, nil
}

// truncateUTF8 truncates s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Cutting at n is safe only when b[n], the first byte dropped, starts
	// a rune rather than continuing one.
	b := []byte(s)
	for n > 0 && !isUTF8Boundary(b[:n+1]) {
		n--
	}
	return string(b[:n])
}

func isUTF8Boundary(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	last := b[len(b)-1]
	return last&0xC0 != 0x80
}

func signV2(m map[string]string, key string) string {
	canonical := signing.Canonical(m, "sign")
	return signing.SignMD5(canonical, key)
}

// buildXML renders m as a CDATA-wrapped <xml>...</xml> envelope, iterating
// keys in the given order for a deterministic, readable wire body.
func buildXML(m map[string]string, order []string) string {
	var b strings.Builder
	b.WriteString("<xml>")
	seen := make(map[string]struct{}, len(order))
	for _, k := range order {
		v, ok := m[k]
		if !ok {
			continue
		}
		seen[k] = struct{}{}
		fmt.Fprintf(&b, "<%s><![CDATA[%s]]></%s>", k, v, k)
	}
	for k, v := range m {
		if _, ok := seen[k]; ok {
			continue
		}
		fmt.Fprintf(&b, "<%s><![CDATA[%s]]></%s>", k, v, k)
	}
	b.WriteString("</xml>")
	return b.String()
}

// xmlToMap flattens a one-level-deep <xml><k>v</k>...</xml> document into a
// string map, accepting both CharData and CDATA children.
func xmlToMap(payload string) (map[string]string, error) {
	decoder := xml.NewDecoder(strings.NewReader(payload))
	m := make(map[string]string)
	var currentKey string
	depth := 0
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apierr.Wrap(apierr.ApiError, err, "parse xml")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 {
				currentKey = t.Name.Local
			}
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 2 && currentKey != "" {
				text := strings.TrimSpace(string(t))
				if text != "" {
					m[currentKey] = text
				}
			}
		}
	}
	return m, nil
}

// UnifiedOrderResult is the subset of the unifiedorder response the charge
// engine needs.
type UnifiedOrderResult struct {
	PrepayID string
}

// ParseUnifiedOrderResponse validates return_code/result_code and extracts
// prepay_id.
func ParseUnifiedOrderResponse(rawBody string) (*UnifiedOrderResult, error) {
	m, err := xmlToMap(rawBody)
	if err != nil {
		return nil, err
	}
	if m["return_code"] != "SUCCESS" {
		return nil, apierr.New(apierr.ApiError, "unifiedorder return_code != SUCCESS: %s", m["return_msg"])
	}
	if m["result_code"] != "SUCCESS" {
		return nil, apierr.New(apierr.ApiError, "unifiedorder result_code != SUCCESS: %s", m["err_code_des"])
	}
	prepayID := m["prepay_id"]
	if prepayID == "" {
		return nil, apierr.New(apierr.ApiError, "unifiedorder response missing prepay_id")
	}
	return &UnifiedOrderResult{PrepayID: prepayID}, nil
}

// JSAPICredential is the object handed back to the client SDK to invoke
// WeChat's in-page payment.
type JSAPICredential struct {
	AppID     string `json:"appId"`
	TimeStamp string `json:"timeStamp"`
	NonceStr  string `json:"nonceStr"`
	Package   string `json:"package"`
	SignType  string `json:"signType"`
	PaySign   string `json:"paySign"`
}

// BuildJSAPICredential signs a fresh payload for the client SDK, reusing
// the nonce from the unifiedorder request.
func BuildJSAPICredential(appID, nonceStr, prepayID, key string) JSAPICredential {
	m := map[string]string{
		"appId":     appID,
		"timeStamp": strconv.FormatInt(time.Now().Unix(), 10),
		"nonceStr":  nonceStr,
		"package":   "prepay_id=" + prepayID,
		"signType":  "MD5",
	}
	paySign := signV2(m, key)
	return JSAPICredential{
		AppID:     m["appId"],
		TimeStamp: m["timeStamp"],
		NonceStr:  m["nonceStr"],
		Package:   m["package"],
		SignType:  m["signType"],
		PaySign:   paySign,
	}
}

// ChargeNotify is the parsed and verified result of an inbound WeChat
// charge callback.
type ChargeNotify struct {
	ResultCode      string
	MerchantOrderNo string
	AmountFen       int64
}

// VerifyAndParseChargeNotify validates return_code, the required fields,
// and the V2 MD5 signature of an inbound charge notify.
func VerifyAndParseChargeNotify(rawBody string, key string) (*ChargeNotify, error) {
	m, err := xmlToMap(rawBody)
	if err != nil {
		return nil, err
	}
	if m["return_code"] != "SUCCESS" {
		return nil, apierr.New(apierr.ApiError, "return_code not SUCCESS")
	}

	sig, resultCode, outTradeNo, totalFee := m["sign"], m["result_code"], m["out_trade_no"], m["total_fee"]
	if sig == "" || resultCode == "" || outTradeNo == "" || totalFee == "" {
		return nil, apierr.New(apierr.ApiError, "missing required params")
	}

	amountFen, err := strconv.ParseInt(totalFee, 10, 64)
	if err != nil {
		return nil, apierr.Wrap(apierr.ApiError, err, "invalid total_fee")
	}

	verifyMap := make(map[string]string, len(m))
	for k, v := range m {
		if k == "sign" {
			continue
		}
		verifyMap[k] = v
	}
	canonical := signing.Canonical(verifyMap)
	if !signing.VerifyMD5(canonical, key, sig) {
		return nil, apierr.New(apierr.ApiError, "wrong md5 signature")
	}

	return &ChargeNotify{
		ResultCode:      resultCode,
		MerchantOrderNo: outTradeNo,
		AmountFen:       amountFen,
	}, nil
}

// RefundParams are the inputs needed to build and submit a mTLS refund
// request.
type RefundParams struct {
	AppID                 string
	MchID                 string
	ChargeMerchantOrderNo string
	RefundMerchantOrderNo string
	ChargeAmountFen       int64
	RefundAmountFen       int64
	NotifyURL             string
}

// NewMTLSClient builds an *http.Client presenting the given PEM
// PKCS#8 client certificate/key pair, as the WeChat refund endpoint
// requires per merchant.
func NewMTLSClient(clientCertPEM, clientKeyPEM string) (*http.Client, error) {
	cert, err := tls.X509KeyPair([]byte(clientCertPEM), []byte(clientKeyPEM))
	if err != nil {
		return nil, apierr.Wrap(apierr.InvalidConfig, err, "load wechat client certificate")
	}
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			},
		},
	}, nil
}

// SendRefund builds, signs, and POSTs a refund request over the given mTLS
// client, returning the parsed response map on a SUCCESS return_code.
func SendRefund(ctx context.Context, httpClient *http.Client, p RefundParams, key string) (map[string]string, error) {
	m := map[string]string{
		"appid":          p.AppID,
		"mch_id":         p.MchID,
		"nonce_str":      signing.NonceStr(),
		"out_trade_no":   p.ChargeMerchantOrderNo,
		"out_refund_no":  p.RefundMerchantOrderNo,
		"total_fee":      strconv.FormatInt(p.ChargeAmountFen, 10),
		"refund_fee":     strconv.FormatInt(p.RefundAmountFen, 10),
		"notify_url":     p.NotifyURL,
	}
	m["sign"] = signV2(m, key)

	order := []string{"appid", "mch_id", "nonce_str", "sign", "out_trade_no", "out_refund_no", "total_fee", "refund_fee", "notify_url"}
	xmlPayload := buildXML(m, order)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, RefundURL, bytes.NewBufferString(xmlPayload))
	if err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "build wechat refund request")
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, apierr.Wrap(apierr.ApiError, err, "send wechat refund request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Wrap(apierr.Unexpected, err, "read wechat refund response")
	}

	respMap, err := xmlToMap(string(body))
	if err != nil {
		return nil, err
	}
	if respMap["return_code"] != "SUCCESS" {
		return nil, apierr.New(apierr.ApiError, "wx refund api return_code != SUCCESS: %s", respMap["return_msg"])
	}
	return respMap, nil
}

// RefundNotify is the parsed result of an inbound refund notify, after
// decrypting req_info.
type RefundNotify struct {
	RefundStatus    string
	MerchantOrderNo string
	RefundMerchantOrderNo string
	AmountFen       int64
}

// VerifyAndParseRefundNotify decrypts the req_info field with AES-256-ECB
// and parses the resulting inner XML document.
func VerifyAndParseRefundNotify(rawBody string, key string) (*RefundNotify, error) {
	outer, err := xmlToMap(rawBody)
	if err != nil {
		return nil, err
	}
	if outer["return_code"] != "SUCCESS" {
		return nil, apierr.New(apierr.ApiError, "return_code not SUCCESS")
	}
	reqInfo := outer["req_info"]
	if reqInfo == "" {
		return nil, apierr.New(apierr.ApiError, "missing required params")
	}

	plaintext, err := signing.DecryptAES256ECB(reqInfo, key)
	if err != nil {
		return nil, apierr.Wrap(apierr.ApiError, err, "decrypt req_info")
	}

	inner, err := xmlToMap(plaintext)
	if err != nil {
		return nil, err
	}

	refundStatus, outTradeNo, outRefundNo, refundFee := inner["refund_status"], inner["out_trade_no"], inner["out_refund_no"], inner["refund_fee"]
	if refundStatus == "" || outTradeNo == "" || outRefundNo == "" || refundFee == "" {
		return nil, apierr.New(apierr.ApiError, "missing required params in req_info")
	}

	amountFen, err := strconv.ParseInt(refundFee, 10, 64)
	if err != nil {
		return nil, apierr.Wrap(apierr.ApiError, err, "invalid refund_fee")
	}

	return &RefundNotify{
		RefundStatus:          refundStatus,
		MerchantOrderNo:       outTradeNo,
		RefundMerchantOrderNo: outRefundNo,
		AmountFen:             amountFen,
	}, nil
}

// AckXML is the literal WeChat expects in the HTTP response body after any
// notify is processed, success or failure.
const AckXML = `<xml><return_code><![CDATA[SUCCESS]]></return_code><return_msg><![CDATA[OK]]></return_msg></xml>`
