package refund

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/heidian/pingxx-gateway/channel"
	"github.com/heidian/pingxx-gateway/db"
	"github.com/heidian/pingxx-gateway/idgen"
	"github.com/heidian/pingxx-gateway/model"
	"github.com/heidian/pingxx-gateway/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&model.App{}, &model.SubApp{}, &model.ChannelParams{},
		&model.Order{}, &model.Charge{}, &model.Refund{},
	))
	return store.New(gdb)
}

func genRSAPEMPair(t *testing.T) (privPEM, pubPEM string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	privPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	return privPEM, pubPEM
}

// TestCreateSynchronousSuccessUpdatesOrder exercises the Alipay OpenAPI
// path, whose create_refund call resolves synchronously: a successful
// gateway response must mark the parent Order refunded in the same
// transaction as the Refund insert.
func TestCreateSynchronousSuccessUpdatesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body, _ := json.Marshal(map[string]interface{}{
			"alipay_trade_refund_response": map[string]string{
				"code": "10000", "msg": "Success", "fund_change": "Y",
			},
		})
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	s := newTestStore(t)
	privPEM, pubPEM := genRSAPEMPair(t)

	require.NoError(t, s.ChannelParams.Create(context.Background(), &model.ChannelParams{
		AppID:   "app_1",
		Channel: channel.Alipay,
		Params: db.JSONField{
			"alipay_pid":               "2088612364840749",
			"alipay_version":           float64(channel.AlipayVersionOpenAPI),
			"alipay_app_id":            "2021000000600000",
			"alipay_private_key_rsa2":  privPEM,
			"alipay_public_key_rsa2":   pubPEM,
			"alipay_gateway_url":       srv.URL,
		},
	}))

	order := &model.Order{
		ID:              idgen.New(idgen.PrefixOrder),
		AppID:           "app_1",
		MerchantOrderNo: "85020240601184136264",
		Amount:          800,
		Status:          model.OrderStatusPaid,
		Paid:            true,
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
		Paid:            true,
	}
	require.NoError(t, s.Charges.Create(context.Background(), chg))

	e := NewEngine(s, "https://api.example.com", srv.Client())
	rf, err := e.Create(context.Background(), chg, CreateRefundRequest{Amount: 500, Description: "customer request"})
	require.NoError(t, err)
	assert.Equal(t, string(channel.RefundSucceeded), rf.Status)
	assert.NotNil(t, rf.TimeSucceed)

	updated, err := s.FindOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, updated.Refunded)
	assert.Equal(t, int64(500), updated.AmountRefunded)
	assert.Equal(t, model.OrderStatusRefunded, updated.Status)
}

// TestCreatePendingDoesNotTouchOrder exercises the Alipay MAPI path, whose
// create_refund call only returns a confirmation URL: the refund stays
// pending and the parent Order must stay untouched.
func TestCreatePendingDoesNotTouchOrder(t *testing.T) {
	s := newTestStore(t)
	privPEM, pubPEM := genRSAPEMPair(t)

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
		Status:          model.OrderStatusPaid,
		Paid:            true,
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
		Paid:            true,
	}
	require.NoError(t, s.Charges.Create(context.Background(), chg))

	e := NewEngine(s, "https://api.example.com", &http.Client{})
	rf, err := e.Create(context.Background(), chg, CreateRefundRequest{Amount: 500, Description: "customer request"})
	require.NoError(t, err)
	assert.Equal(t, string(channel.RefundPending), rf.Status)
	assert.Nil(t, rf.TimeSucceed)
	require.NotNil(t, rf.Extra)
	assert.NotEmpty(t, rf.Extra["confirmation_url"])

	updated, err := s.FindOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.False(t, updated.Refunded)
	assert.Equal(t, int64(0), updated.AmountRefunded)
}

func TestRetrieveRejectsCrossChargeLookup(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Charges.Create(context.Background(), &model.Charge{ID: "ch_a", AppID: "app_1", Channel: channel.Alipay}))
	require.NoError(t, s.Charges.Create(context.Background(), &model.Charge{ID: "ch_b", AppID: "app_1", Channel: channel.Alipay}))
	require.NoError(t, s.Refunds.Create(context.Background(), &model.Refund{ID: "re_1", ChargeID: "ch_b", Amount: 100}))

	e := NewEngine(s, "https://api.example.com", &http.Client{})
	_, err := e.Retrieve(context.Background(), "ch_a", "re_1")
	assert.Error(t, err)

	rf, err := e.Retrieve(context.Background(), "ch_b", "re_1")
	require.NoError(t, err)
	assert.Equal(t, "re_1", rf.ID)
}
