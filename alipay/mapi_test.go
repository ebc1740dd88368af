package alipay

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

// TestBuildChargeRequestPC exercises scenario 1 from the notify/create
// charge test matrix: a PC direct-pay request against alipay_version=1.
func TestBuildChargeRequestPC(t *testing.T) {
	key := genRSAKey(t)

	req, err := BuildChargeRequest(MapiChargeParams{
		Service:         MapiServicePC,
		AlipayPID:       "2088612364840749",
		NotifyURL:       "https://api.example.com/notify/charges/ch_123",
		ReturnURL:       "https://example.com/return",
		MerchantOrderNo: "85020240601184136264",
		AmountFen:       800,
		TimeExpire:      time.Now().Unix() + 30*60,
		Subject:         "test order",
		Body:            "test order body",
	}, key)
	require.NoError(t, err)

	assert.Equal(t, "create_direct_pay_by_user", req["service"])
	assert.Equal(t, "8.00", req["total_fee"])
	assert.Equal(t, "30m", req["it_b_pay"])
	assert.Equal(t, "RSA", req["sign_type"])
	require.NotEmpty(t, req["sign"])

	ok, err := VerifyMapi(req, req["sign"], &key.PublicKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestParseNotifyPlusQuirk locks down the "+"-before-decode behavior: a "+"
// inside a timestamp value must become a space, while a "+" inside sign
// (itself percent-encoded there by upstream) must round-trip unchanged.
func TestParseNotifyPlusQuirk(t *testing.T) {
	sign := "ab+cd/ef=="
	rawBody := fmt.Sprintf("gmt_create=2024-06-09+18%%3A07%%3A41&out_trade_no=abc&sign=%s",
		strings.ReplaceAll(url.QueryEscape(sign), "+", "%2B"))

	m, err := ParseNotify(rawBody)
	require.NoError(t, err)

	assert.Equal(t, "2024-06-09 18:07:41", m["gmt_create"])
	assert.Equal(t, sign, m["sign"])
	assert.Equal(t, "abc", m["out_trade_no"])
}

// TestVerifyAndParseChargeNotify exercises scenario 3's shape: a
// form-encoded notify with a valid signature transitions to succeeded.
func TestVerifyAndParseChargeNotify(t *testing.T) {
	key := genRSAKey(t)

	m := map[string]string{
		"trade_status": "TRADE_SUCCESS",
		"out_trade_no": "85020240601184136264",
		"total_fee":    "8.00",
		"sign_type":    "RSA",
	}
	sig, err := signMapi(m, key)
	require.NoError(t, err)
	m["sign"] = sig

	values := url.Values{}
	for k, v := range m {
		values.Set(k, v)
	}
	rawBody := values.Encode()

	notify, err := VerifyAndParseChargeNotify(rawBody, &key.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, "85020240601184136264", notify.MerchantOrderNo)
	assert.Equal(t, int64(800), notify.AmountFen)
	assert.True(t, TradeStatusSucceeded(notify.TradeStatus))
}
