package wechat

import (
	"crypto/aes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heidian/pingxx-gateway/signing"
)

const testKey = "testwechatkey1234567890abcdef12"

func TestBuildUnifiedOrderRequestAndJSAPICredential(t *testing.T) {
	xmlPayload, nonce, err := BuildUnifiedOrderRequest(UnifiedOrderParams{
		AppID:           "wx1234567890",
		MchID:           "1234567890",
		OpenID:          "o-openid",
		ClientIP:        "127.0.0.1",
		MerchantOrderNo: "85020240601184136264",
		AmountFen:       800,
		TimeExpire:      1717920000,
		Body:            "test order",
		NotifyURL:       "https://api.example.com/notify/charges/ch_123",
	}, testKey)
	require.NoError(t, err)
	require.NotEmpty(t, nonce)
	assert.Contains(t, xmlPayload, "<appid><![CDATA[wx1234567890]]></appid>")
	assert.Contains(t, xmlPayload, "<total_fee><![CDATA[800]]></total_fee>")

	m, err := xmlToMap(xmlPayload)
	require.NoError(t, err)
	sig := m["sign"]
	require.NotEmpty(t, sig)
	delete(m, "sign")
	assert.True(t, signing.VerifyMD5(signing.Canonical(m), testKey, sig))

	cred := BuildJSAPICredential("wx1234567890", nonce, "wx12345", testKey)
	assert.Equal(t, "wx1234567890", cred.AppID)
	assert.Equal(t, nonce, cred.NonceStr)
	assert.Equal(t, "prepay_id=wx12345", cred.Package)
	assert.Equal(t, "MD5", cred.SignType)
	require.NotEmpty(t, cred.PaySign)

	verifyMap := map[string]string{
		"appId":     cred.AppID,
		"timeStamp": cred.TimeStamp,
		"nonceStr":  cred.NonceStr,
		"package":   cred.Package,
		"signType":  cred.SignType,
	}
	assert.True(t, signing.VerifyMD5(signing.Canonical(verifyMap), testKey, cred.PaySign))
}

func TestParseUnifiedOrderResponse(t *testing.T) {
	ok := `<xml><return_code><![CDATA[SUCCESS]]></return_code><result_code><![CDATA[SUCCESS]]></result_code><prepay_id><![CDATA[wx12345]]></prepay_id></xml>`
	result, err := ParseUnifiedOrderResponse(ok)
	require.NoError(t, err)
	assert.Equal(t, "wx12345", result.PrepayID)

	failed := `<xml><return_code><![CDATA[FAIL]]></return_code><return_msg><![CDATA[signature error]]></return_msg></xml>`
	_, err = ParseUnifiedOrderResponse(failed)
	assert.Error(t, err)
}

func TestVerifyAndParseChargeNotifyWechat(t *testing.T) {
	m := map[string]string{
		"return_code":  "SUCCESS",
		"result_code":  "SUCCESS",
		"out_trade_no": "85020240601184136264",
		"total_fee":    "800",
	}
	sig := signV2(m, testKey)
	m["sign"] = sig

	order := []string{"return_code", "result_code", "out_trade_no", "total_fee", "sign"}
	xmlPayload := buildXML(m, order)

	notify, err := VerifyAndParseChargeNotify(xmlPayload, testKey)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", notify.ResultCode)
	assert.Equal(t, "85020240601184136264", notify.MerchantOrderNo)
	assert.Equal(t, int64(800), notify.AmountFen)
}

// encryptAES256ECBForTest mirrors signing.DecryptAES256ECB's key derivation
// (lowercase hex md5 of the channel key) to build a req_info fixture.
func encryptAES256ECBForTest(t *testing.T, plaintext, channelKey string) string {
	t.Helper()
	sum := md5.Sum([]byte(channelKey))
	aesKey := []byte(hex.EncodeToString(sum[:]))

	block, err := aes.NewCipher(aesKey)
	require.NoError(t, err)

	data := []byte(plaintext)
	padLen := aes.BlockSize - len(data)%aes.BlockSize
	padding := make([]byte, padLen)
	for i := range padding {
		padding[i] = byte(padLen)
	}
	padded := append(data, padding...)

	ciphertext := make([]byte, len(padded))
	for start := 0; start < len(padded); start += aes.BlockSize {
		block.Encrypt(ciphertext[start:start+aes.BlockSize], padded[start:start+aes.BlockSize])
	}
	return base64.StdEncoding.EncodeToString(ciphertext)
}

// TestVerifyAndParseRefundNotify exercises scenario 5: req_info decrypts to
// a refund_status=SUCCESS document and the parsed amount matches refund_fee.
func TestVerifyAndParseRefundNotify(t *testing.T) {
	innerXML := fmt.Sprintf(
		"<root><refund_status><![CDATA[SUCCESS]]></refund_status>"+
			"<out_trade_no><![CDATA[%s]]></out_trade_no>"+
			"<out_refund_no><![CDATA[%s]]></out_refund_no>"+
			"<refund_fee><![CDATA[%d]]></refund_fee></root>",
		"85020240601184136264", "85020240601184136264-r1", 1000,
	)
	reqInfo := encryptAES256ECBForTest(t, innerXML, testKey)

	rawBody := fmt.Sprintf(
		"<xml><return_code><![CDATA[SUCCESS]]></return_code><req_info><![CDATA[%s]]></req_info></xml>",
		reqInfo,
	)

	notify, err := VerifyAndParseRefundNotify(rawBody, testKey)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", notify.RefundStatus)
	assert.Equal(t, "85020240601184136264", notify.MerchantOrderNo)
	assert.Equal(t, "85020240601184136264-r1", notify.RefundMerchantOrderNo)
	assert.Equal(t, int64(1000), notify.AmountFen)
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "abc", truncateUTF8("abc", 10))
	assert.Equal(t, "ab", truncateUTF8("abcdef", 2))
}
