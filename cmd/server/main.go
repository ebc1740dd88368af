// Command server runs the payment gateway's HTTP API: it loads
// configuration, opens the database, wires the charge/refund/notify
// engines and the webhook emitter onto the shared event bus, and serves
// the routes from the external interface table.
package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heidian/pingxx-gateway/charge"
	"github.com/heidian/pingxx-gateway/config"
	"github.com/heidian/pingxx-gateway/db"
	dbutil "github.com/heidian/pingxx-gateway/db/util"
	"github.com/heidian/pingxx-gateway/event"
	_ "github.com/heidian/pingxx-gateway/ginmode"
	"github.com/heidian/pingxx-gateway/httpapi"
	"github.com/heidian/pingxx-gateway/middleware"
	"github.com/heidian/pingxx-gateway/model"
	"github.com/heidian/pingxx-gateway/notify"
	"github.com/heidian/pingxx-gateway/refund"
	"github.com/heidian/pingxx-gateway/signing"
	"github.com/heidian/pingxx-gateway/store"
	"github.com/heidian/pingxx-gateway/webhook"
)

func main() {
	envFile := os.Getenv("PINGXX_ENV_FILE")
	cfg, err := config.Load(envFile)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	logrus.Infof("opening database driver=%s dsn=%s", cfg.DatabaseDriver, dbutil.MaskDSN(cfg.DatabaseURL))
	gdb, err := db.Open(cfg.DatabaseDriver, cfg.DatabaseURL, db.DefaultOptions())
	if err != nil {
		log.Fatalf("db: open: %v", err)
	}
	if err := db.AutoMigrate(gdb,
		&model.App{}, &model.SubApp{}, &model.ChannelParams{},
		&model.Order{}, &model.Charge{}, &model.Refund{},
		&model.ChargeNotifyHistory{}, &model.AppWebhookConfig{}, &model.AppWebhookHistory{},
	); err != nil {
		log.Fatalf("db: migrate: %v", err)
	}

	webhookKey, err := signing.ParsePKCS8PrivateKey(cfg.WebhookRSA256PrivateKey)
	if err != nil {
		log.Fatalf("config: parse webhook private key: %v", err)
	}

	s := store.New(gdb)
	bus := event.NewManager()

	channelHTTPClient := &http.Client{Timeout: 20 * time.Second}
	webhookHTTPClient := &http.Client{Timeout: 10 * time.Second}

	webhook.NewEmitter(s, webhookKey, webhookHTTPClient).Attach(bus)

	chargeEngine := charge.NewEngine(s, cfg.ApiBase, channelHTTPClient)
	refundEngine := refund.NewEngine(s, cfg.ApiBase, channelHTTPClient)
	notifyPipeline := notify.NewPipeline(s, bus, cfg.ApiBase, channelHTTPClient)

	router := httpapi.NewRouter(httpapi.Deps{
		Store:   s,
		Charges: chargeEngine,
		Refunds: refundEngine,
		Notify:  notifyPipeline,
	}, cfg.ApiLiveKey, middleware.Logger(), middleware.Recovery())

	logrus.Infof("listening on %s", cfg.Addr)
	if err := router.Run(cfg.Addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
