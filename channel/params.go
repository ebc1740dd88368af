package channel

import (
	"crypto/rsa"
	"encoding/json"

	"github.com/heidian/pingxx-gateway/apierr"
	"github.com/heidian/pingxx-gateway/db"
	"github.com/heidian/pingxx-gateway/signing"
)

// AlipayConfig is the ChannelParams schema shared by AlipayPcDirect and
// AlipayWap; only the channel tag differs, not the field names.
type AlipayConfig struct {
	AlipayPID          string `json:"alipay_pid"`
	AlipaySecurityKey  string `json:"alipay_security_key,omitempty"`
	AlipayAccount      string `json:"alipay_account,omitempty"`
	AlipayVersion      int    `json:"alipay_version"`
	AlipayAppID        string `json:"alipay_app_id,omitempty"`
	AlipaySignType     string `json:"alipay_sign_type,omitempty"` // record-only
	AlipayPrivateKey      string `json:"alipay_private_key,omitempty"`
	AlipayPublicKey       string `json:"alipay_public_key,omitempty"`
	AlipayPrivateKeyRSA2  string `json:"alipay_private_key_rsa2,omitempty"`
	AlipayPublicKeyRSA2   string `json:"alipay_public_key_rsa2,omitempty"`
	// AlipayGatewayURL overrides the OpenAPI gateway endpoint, e.g. for
	// Alipay's sandbox environment. Empty means production.
	AlipayGatewayURL string `json:"alipay_gateway_url,omitempty"`
}

const (
	AlipayVersionMapi    = 1
	AlipayVersionOpenAPI = 2
)

func parseAlipayConfig(raw db.JSONField) (*AlipayConfig, error) {
	var cfg AlipayConfig
	if err := remarshal(raw, &cfg); err != nil {
		return nil, apierr.Wrap(apierr.InvalidConfig, err, "decode alipay channel params")
	}
	return &cfg, nil
}

func (c *AlipayConfig) mapiPrivateKey() (*rsa.PrivateKey, error) {
	return signing.ParsePKCS8PrivateKey(c.AlipayPrivateKey)
}

func (c *AlipayConfig) mapiPublicKey() (*rsa.PublicKey, error) {
	return signing.ParsePKIXPublicKey(c.AlipayPublicKey)
}

func (c *AlipayConfig) openapiPrivateKey() (*rsa.PrivateKey, error) {
	return signing.ParsePKCS8PrivateKey(c.AlipayPrivateKeyRSA2)
}

func (c *AlipayConfig) openapiPublicKey() (*rsa.PublicKey, error) {
	return signing.ParsePKIXPublicKey(c.AlipayPublicKeyRSA2)
}

// WxPubConfig is the ChannelParams schema for the WeChat Pub (JSAPI)
// channel.
type WxPubConfig struct {
	AppID      string `json:"wx_pub_app_id"`
	MchID      string `json:"wx_pub_mch_id"`
	Key        string `json:"wx_pub_key"`
	ClientCert string `json:"wx_pub_client_cert,omitempty"`
	ClientKey  string `json:"wx_pub_client_key,omitempty"`
}

// WxLiteConfig is the ChannelParams schema for the WeChat Lite (mini
// program) channel; same shape, distinct field names.
type WxLiteConfig struct {
	AppID      string `json:"wx_lite_app_id"`
	MchID      string `json:"wx_lite_mch_id"`
	Key        string `json:"wx_lite_key"`
	ClientCert string `json:"wx_lite_client_cert,omitempty"`
	ClientKey  string `json:"wx_lite_client_key,omitempty"`
}

func parseWxPubConfig(raw db.JSONField) (*WxPubConfig, error) {
	var cfg WxPubConfig
	if err := remarshal(raw, &cfg); err != nil {
		return nil, apierr.Wrap(apierr.InvalidConfig, err, "decode wx_pub channel params")
	}
	return &cfg, nil
}

func parseWxLiteConfig(raw db.JSONField) (*WxLiteConfig, error) {
	var cfg WxLiteConfig
	if err := remarshal(raw, &cfg); err != nil {
		return nil, apierr.Wrap(apierr.InvalidConfig, err, "decode wx_lite channel params")
	}
	return &cfg, nil
}

// remarshal round-trips a generic JSON map into a concrete struct. The
// ChannelParams column is stored schema-less (one JSON bag per channel),
// so each handler decodes only the fields it recognizes.
func remarshal(raw db.JSONField, dst interface{}) error {
	bytes, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, dst)
}
