package channel

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heidian/pingxx-gateway/alipay"
	"github.com/heidian/pingxx-gateway/db"
)

func genRSAKeyPEM(t *testing.T) (privPEM, pubPEM string, key *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	privPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))

	return privPEM, pubPEM, key
}

func TestNewDispatchesOnChannelTag(t *testing.T) {
	httpClient := &http.Client{}

	for _, tag := range AvailableChannels {
		h, err := New(tag, db.JSONField{}, "https://api.example.com", httpClient)
		require.NoErrorf(t, err, "channel %q", tag)
		assert.NotNil(t, h)
	}

	_, err := New("unknown_channel", db.JSONField{}, "https://api.example.com", httpClient)
	assert.Error(t, err)
}

func TestAvailableChannelsMatchesContractConstants(t *testing.T) {
	assert.ElementsMatch(t, []string{Alipay, AlipayWap, Wx, WxLite}, AvailableChannels)
	assert.Equal(t, "alipay_pc_direct", Alipay)
	assert.Equal(t, "alipay_wap", AlipayWap)
	assert.Equal(t, "wx_pub", Wx)
	assert.Equal(t, "wx_lite", WxLite)
}

// TestAlipayPcDirectCreateCredentialMapi exercises the full channel-level
// dispatch for a MAPI-configured sub app, asserting the handler produces a
// verifiable credential without requiring the notify/charge engines.
func TestAlipayPcDirectCreateCredentialMapi(t *testing.T) {
	privPEM, pubPEM, key := genRSAKeyPEM(t)

	raw := db.JSONField{
		"alipay_pid":         "2088612364840749",
		"alipay_version":     float64(AlipayVersionMapi),
		"alipay_private_key": privPEM,
		"alipay_public_key":  pubPEM,
	}

	h, err := New(Alipay, raw, "https://api.example.com", &http.Client{})
	require.NoError(t, err)

	cred, err := h.CreateCredential(context.Background(), ChargeRequest{
		ChargeID:        "ch_123",
		Amount:          800,
		MerchantOrderNo: "85020240601184136264",
		TimeExpire:      time.Now().Unix() + 1800,
		Subject:         "test",
		Body:            "test body",
		Extra:           ChargeExtra{SuccessURL: "https://example.com/return"},
	})
	require.NoError(t, err)
	assert.Equal(t, "create_direct_pay_by_user", cred["service"])
	assert.NotEmpty(t, cred["sign"])

	m := make(map[string]string, len(cred))
	for k, v := range cred {
		m[k] = v.(string)
	}
	ok, err := alipay.VerifyMapi(m, m["sign"], &key.PublicKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAlipayPcDirectMissingSuccessURL(t *testing.T) {
	privPEM, pubPEM, _ := genRSAKeyPEM(t)
	raw := db.JSONField{
		"alipay_pid":         "2088612364840749",
		"alipay_version":     float64(AlipayVersionMapi),
		"alipay_private_key": privPEM,
		"alipay_public_key":  pubPEM,
	}
	h, err := New(Alipay, raw, "https://api.example.com", &http.Client{})
	require.NoError(t, err)

	_, err = h.CreateCredential(context.Background(), ChargeRequest{ChargeID: "ch_123", Amount: 800})
	assert.Error(t, err)
}
