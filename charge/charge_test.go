package charge

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
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/heidian/pingxx-gateway/alipay"
	"github.com/heidian/pingxx-gateway/channel"
	"github.com/heidian/pingxx-gateway/db"
	"github.com/heidian/pingxx-gateway/idgen"
	"github.com/heidian/pingxx-gateway/model"
	"github.com/heidian/pingxx-gateway/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&model.App{}, &model.SubApp{}, &model.ChannelParams{},
		&model.Order{}, &model.Charge{}, &model.Refund{},
		&model.ChargeNotifyHistory{}, &model.AppWebhookConfig{}, &model.AppWebhookHistory{},
	))
	return store.New(gdb)
}

func seedAlipayMapiChannel(t *testing.T, s *store.Store, appID, subAppID string) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	privPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))

	row := &model.ChannelParams{
		AppID:    appID,
		SubAppID: subAppID,
		Channel:  channel.Alipay,
		Params: db.JSONField{
			"alipay_pid":         "2088612364840749",
			"alipay_version":     float64(channel.AlipayVersionMapi),
			"alipay_private_key": privPEM,
			"alipay_public_key":  pubPEM,
		},
	}
	require.NoError(t, s.ChannelParams.Create(context.Background(), row))
	return key
}

func TestEngineCreateBasic(t *testing.T) {
	s := newTestStore(t)
	key := seedAlipayMapiChannel(t, s, "app_1", "")

	e := NewEngine(s, "https://api.example.com", &http.Client{})
	chg, err := e.CreateBasic(context.Background(), "app_1", "", CreateChargeRequest{
		Channel:         channel.Alipay,
		Amount:          800,
		MerchantOrderNo: "85020240601184136264",
		Subject:         "test",
		Body:            "test body",
		Currency:        "cny",
		TimeExpire:      time.Now().Unix() + 1800,
		Extra:           channel.ChargeExtra{SuccessURL: "https://example.com/return"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, chg.ID)
	assert.Equal(t, int64(800), chg.Amount)
	assert.False(t, chg.Paid)
	assert.Empty(t, chg.OrderID)
	require.NotNil(t, chg.Credential)
	assert.Equal(t, "credential", chg.Credential["object"])

	got, err := e.Retrieve(context.Background(), chg.ID)
	require.NoError(t, err)
	assert.Equal(t, chg.ID, got.ID)

	credential, ok := chg.Credential[channel.Alipay].(map[string]interface{})
	require.True(t, ok)
	m := make(map[string]string, len(credential))
	for k, v := range credential {
		m[k] = v.(string)
	}
	verified, err := alipay.VerifyMapi(m, m["sign"], &key.PublicKey)
	require.NoError(t, err)
	assert.True(t, verified)
}

func TestEngineCreateUnderOrder(t *testing.T) {
	s := newTestStore(t)
	seedAlipayMapiChannel(t, s, "app_1", "sub_1")

	order := &model.Order{
		ID:              idgen.New(idgen.PrefixOrder),
		AppID:           "app_1",
		SubAppID:        "sub_1",
		MerchantOrderNo: "85020240601184136264",
		Amount:          800,
		Status:          model.OrderStatusCreated,
		Currency:        "cny",
		Subject:         "order subject",
		TimeExpire:      time.Now().Unix() + 1800,
	}
	require.NoError(t, s.Orders.Create(context.Background(), order))

	e := NewEngine(s, "https://api.example.com", &http.Client{})
	chg, err := e.CreateUnderOrder(context.Background(), "app_1", order, CreateChargeRequest{
		Channel: channel.Alipay,
		Amount:  800,
		Extra:   channel.ChargeExtra{SuccessURL: "https://example.com/return"},
	})
	require.NoError(t, err)
	assert.Equal(t, order.ID, chg.OrderID)
	assert.Equal(t, order.MerchantOrderNo, chg.MerchantOrderNo)
	assert.Equal(t, order.Subject, chg.Subject)
}

func TestEssentialsProjection(t *testing.T) {
	now := time.Now()
	chg := &model.Charge{ID: "ch_1", Channel: channel.Alipay, Paid: true, TimePaid: &now, FailureCode: "", FailureMsg: ""}
	e := Essentials(chg)
	assert.Equal(t, "ch_1", e.ID)
	assert.True(t, e.Paid)
	assert.Equal(t, &now, e.TimePaid)
}
