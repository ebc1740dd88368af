// Package webhook signs and delivers merchant-facing events, fed by the
// notify pipeline through the shared event bus.
package webhook

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/heidian/pingxx-gateway/apierr"
	"github.com/heidian/pingxx-gateway/db"
	"github.com/heidian/pingxx-gateway/event"
	"github.com/heidian/pingxx-gateway/idgen"
	"github.com/heidian/pingxx-gateway/model"
	"github.com/heidian/pingxx-gateway/signing"
	"github.com/heidian/pingxx-gateway/store"
)

const (
	EventChargeSucceeded = "charge.succeeded"
	EventOrderSucceeded  = "order.succeeded"

	// SignatureHeader carries the base64 RSA-SHA256 signature of the exact
	// bytes in the request body.
	SignatureHeader = "X-PingPlusPlus-Signature"
)

// Envelope is the outbound event object POSTed to merchant endpoints.
type Envelope struct {
	ID      string      `json:"id"`
	Object  string      `json:"object"`
	Created int64       `json:"created"`
	Type    string      `json:"type"`
	Data    EnvelopeData `json:"data"`
}

type EnvelopeData struct {
	Object interface{} `json:"object"`
}

// Emitter signs and POSTs event envelopes, recording one AppWebhookHistory
// row per attempt.
type Emitter struct {
	store      *store.Store
	privateKey *rsa.PrivateKey
	httpClient *http.Client
}

func NewEmitter(s *store.Store, privateKey *rsa.PrivateKey, httpClient *http.Client) *Emitter {
	return &Emitter{store: s, privateKey: privateKey, httpClient: httpClient}
}

// Attach registers the emitter as a listener on the shared event bus for
// charge.succeeded and order.succeeded events dispatched by the notify
// pipeline.
func (e *Emitter) Attach(bus *event.Manager) {
	handler := func(ev event.Event) error {
		appID, _ := ev.GetPayloadValue("app_id")
		data, _ := ev.GetPayloadValue("data")
		appIDStr, _ := appID.(string)
		if appIDStr == "" {
			return nil
		}
		return e.EmitToApp(context.Background(), appIDStr, ev.GetName(), data)
	}
	_ = bus.AddListenerFunc(EventChargeSucceeded, handler)
	_ = bus.AddListenerFunc(EventOrderSucceeded, handler)
}

// EmitToApp builds the signed envelope once and POSTs it to every
// AppWebhookConfig registered for appID, recording one history row per
// attempt. One attempt per endpoint; no automatic retry.
func (e *Emitter) EmitToApp(ctx context.Context, appID, eventType string, data interface{}) error {
	configs, err := e.store.WebhookConfigs.FindByCondition(ctx, "app_id = ?", appID)
	if err != nil {
		return apierr.Wrap(apierr.Unexpected, err, "load webhook configs")
	}
	if len(configs) == 0 {
		return nil
	}

	envelope := Envelope{
		ID:      idgen.New(idgen.PrefixEvent),
		Object:  "event",
		Created: time.Now().Unix(),
		Type:    eventType,
		Data:    EnvelopeData{Object: data},
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return apierr.Wrap(apierr.Unexpected, err, "marshal webhook envelope")
	}

	sig, err := signing.SignRSASHA256(string(body), e.privateKey)
	if err != nil {
		return apierr.Wrap(apierr.Unexpected, err, "sign webhook envelope")
	}

	for _, cfg := range configs {
		statusCode, responseText := e.deliver(ctx, cfg.URL, body, sig)
		history := &model.AppWebhookHistory{
			ID:         idgen.New(idgen.PrefixEvent),
			AppID:      appID,
			Endpoint:   cfg.URL,
			EventType:  eventType,
			Payload:    db.JSONField{"envelope": json.RawMessage(body)},
			StatusCode: statusCode,
			Response:   responseText,
		}
		if err := e.store.WebhookHistories.Create(ctx, history); err != nil {
			return apierr.Wrap(apierr.Unexpected, err, "persist webhook history")
		}
	}
	return nil
}

// deliver POSTs the exact signed bytes to endpoint and reports the
// response; a network failure is recorded as status 500.
func (e *Emitter) deliver(ctx context.Context, endpoint string, body []byte, sig string) (statusCode int, responseText string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return http.StatusInternalServerError, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, sig)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return http.StatusInternalServerError, err.Error()
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, ""
	}
	return resp.StatusCode, string(respBody)
}
