package notify

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/heidian/pingxx-gateway/channel"
	"github.com/heidian/pingxx-gateway/db"
	"github.com/heidian/pingxx-gateway/event"
	"github.com/heidian/pingxx-gateway/idgen"
	"github.com/heidian/pingxx-gateway/model"
	"github.com/heidian/pingxx-gateway/signing"
	"github.com/heidian/pingxx-gateway/store"
	"github.com/heidian/pingxx-gateway/webhook"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&model.App{}, &model.SubApp{}, &model.ChannelParams{},
		&model.Order{}, &model.Charge{}, &model.Refund{},
		&model.ChargeNotifyHistory{},
	))
	return store.New(gdb)
}

func genRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func pemPair(t *testing.T, key *rsa.PrivateKey) (privPEM, pubPEM string) {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	privPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	return privPEM, pubPEM
}

func setupChargeFixture(t *testing.T, s *store.Store, key *rsa.PrivateKey) (*model.Order, *model.Charge) {
	t.Helper()
	privPEM, pubPEM := pemPair(t, key)

	require.NoError(t, s.ChannelParams.Create(context.Background(), &model.ChannelParams{
		AppID:   "app_1",
		Channel: channel.Alipay,
		Params: db.JSONField{
			"alipay_pid":         "2088612364840749",
			"alipay_version":     float64(channel.AlipayVersionMapi),
			"alipay_private_key": privPEM,
			"alipay_public_key":  pubPEM,
		},
	}))

	order := &model.Order{
		ID:              idgen.New(idgen.PrefixOrder),
		AppID:           "app_1",
		MerchantOrderNo: "85020240601184136264",
		Amount:          800,
		Status:          model.OrderStatusCreated,
		Currency:        "cny",
	}
	require.NoError(t, s.Orders.Create(context.Background(), order))

	chg := &model.Charge{
		ID:              idgen.New(idgen.PrefixCharge),
		AppID:           "app_1",
		OrderID:         order.ID,
		Channel:         channel.Alipay,
		MerchantOrderNo: order.MerchantOrderNo,
		Amount:          800,
	}
	require.NoError(t, s.Charges.Create(context.Background(), chg))

	return order, chg
}

// signedMapiNotifyBody builds a form-encoded Alipay MAPI charge notify
// body, signed the same way alipay.signMapi signs one (RSA-SHA1 over the
// canonical string excluding sign/sign_type).
func signedMapiNotifyBody(t *testing.T, key *rsa.PrivateKey, tradeStatus, merchantOrderNo string, amountFen int64) string {
	t.Helper()
	m := map[string]string{
		"trade_status": tradeStatus,
		"out_trade_no": merchantOrderNo,
		"total_fee":    fmt.Sprintf("%.2f", float64(amountFen)/100.0),
		"sign_type":    "RSA",
	}
	canonical := signing.Canonical(m, "sign", "sign_type")
	sig, err := signing.SignRSASHA1(canonical, key)
	require.NoError(t, err)
	m["sign"] = sig

	values := url.Values{}
	for k, v := range m {
		values.Set(k, v)
	}
	return values.Encode()
}

func TestProcessChargeSuccessUpdatesChargeAndOrder(t *testing.T) {
	s := newTestStore(t)
	key := genRSAKey(t)
	order, chg := setupChargeFixture(t, s, key)

	bus := event.NewManager()
	var dispatched []string
	require.NoError(t, bus.AddListenerFunc(webhook.EventOrderSucceeded, func(e event.Event) error {
		dispatched = append(dispatched, e.GetName())
		return nil
	}))

	p := NewPipeline(s, bus, "https://api.example.com", &http.Client{})

	rawBody := signedMapiNotifyBody(t, key, "TRADE_SUCCESS", chg.MerchantOrderNo, chg.Amount)
	ack, err := p.ProcessCharge(context.Background(), chg.ID, rawBody)
	require.NoError(t, err)
	assert.Equal(t, "success", ack)

	updatedChg, err := s.FindCharge(context.Background(), chg.ID)
	require.NoError(t, err)
	assert.True(t, updatedChg.Paid)
	require.NotNil(t, updatedChg.TimePaid)

	updatedOrder, err := s.FindOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, updatedOrder.Paid)
	assert.Equal(t, model.OrderStatusPaid, updatedOrder.Status)
	assert.Equal(t, chg.Amount, updatedOrder.AmountPaid)

	require.Len(t, dispatched, 1)

	// A second, identical notify must be idempotent: no re-dispatch, no
	// re-application of the Order transition.
	ack2, err := p.ProcessCharge(context.Background(), chg.ID, rawBody)
	require.NoError(t, err)
	assert.Equal(t, "success", ack2)
	assert.Len(t, dispatched, 1)

	reloaded, err := s.FindOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, chg.Amount, reloaded.AmountPaid)
}

func TestProcessChargeRejectsAmountMismatch(t *testing.T) {
	s := newTestStore(t)
	key := genRSAKey(t)
	_, chg := setupChargeFixture(t, s, key)

	p := NewPipeline(s, nil, "https://api.example.com", &http.Client{})

	rawBody := signedMapiNotifyBody(t, key, "TRADE_SUCCESS", chg.MerchantOrderNo, chg.Amount+100)
	_, err := p.ProcessCharge(context.Background(), chg.ID, rawBody)
	assert.Error(t, err)

	updatedChg, err := s.FindCharge(context.Background(), chg.ID)
	require.NoError(t, err)
	assert.False(t, updatedChg.Paid)
}

func TestProcessChargeRejectsMerchantOrderNoMismatch(t *testing.T) {
	s := newTestStore(t)
	key := genRSAKey(t)
	_, chg := setupChargeFixture(t, s, key)

	p := NewPipeline(s, nil, "https://api.example.com", &http.Client{})

	rawBody := signedMapiNotifyBody(t, key, "TRADE_SUCCESS", "some-other-merchant-order-no", chg.Amount)
	_, err := p.ProcessCharge(context.Background(), chg.ID, rawBody)
	assert.Error(t, err)
}

func TestProcessChargeFailureAcksWithoutPaying(t *testing.T) {
	s := newTestStore(t)
	key := genRSAKey(t)
	_, chg := setupChargeFixture(t, s, key)

	p := NewPipeline(s, nil, "https://api.example.com", &http.Client{})

	rawBody := signedMapiNotifyBody(t, key, "TRADE_CLOSED", chg.MerchantOrderNo, chg.Amount)
	ack, err := p.ProcessCharge(context.Background(), chg.ID, rawBody)
	require.NoError(t, err)
	assert.Equal(t, "success", ack)

	updatedChg, err := s.FindCharge(context.Background(), chg.ID)
	require.NoError(t, err)
	assert.False(t, updatedChg.Paid)
}

func TestRetryReplaysStoredNotify(t *testing.T) {
	s := newTestStore(t)
	key := genRSAKey(t)
	_, chg := setupChargeFixture(t, s, key)

	p := NewPipeline(s, nil, "https://api.example.com", &http.Client{})

	rawBody := signedMapiNotifyBody(t, key, "TRADE_SUCCESS", chg.MerchantOrderNo, chg.Amount)
	_, err := p.ProcessCharge(context.Background(), chg.ID, rawBody)
	require.NoError(t, err)

	histories, err := s.NotifyHistories.FindByCondition(context.Background(), "charge_id = ?", chg.ID)
	require.NoError(t, err)
	require.Len(t, histories, 1)

	ack, err := p.Retry(context.Background(), histories[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "success", ack)
}
