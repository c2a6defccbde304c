package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/metrics"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/storage/models"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/pkg/logger"
)

const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
)

var errDeliveryFailed = errors.New("webhook delivery failed")

type Store interface {
	ListActiveWebhooks(ctx context.Context, tenantID string) ([]models.Webhook, error)
	RecordWebhookDelivery(ctx context.Context, id string, failed bool) error
}

// Notifier delivers signed event payloads to a tenant's subscribed webhooks.
// Deliveries are fire-and-forget: failures are counted, never retried, and
// never reach the triggering operation.
type Notifier struct {
	store  Store
	client *http.Client
}

func NewNotifier(store Store, timeout time.Duration) *Notifier {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		store:  store,
		client: &http.Client{Timeout: timeout},
	}
}

func (n *Notifier) Notify(tenantID, event string, payload map[string]interface{}) {
	go n.deliverAll(tenantID, event, payload)
}

// NotifySync delivers inline so the caller can observe completion.
func (n *Notifier) NotifySync(ctx context.Context, tenantID, event string, payload map[string]interface{}) {
	n.deliver(ctx, tenantID, event, payload)
}

// DeliverTo posts one event to a single webhook regardless of its event
// subscriptions. The test endpoint uses it to exercise an endpoint before the
// tenant subscribes it to real events.
func (n *Notifier) DeliverTo(ctx context.Context, hook *models.Webhook, event string, payload map[string]interface{}) error {
	encoded, err := json.Marshal(n.envelope(hook.TenantID, event, payload))
	if err != nil {
		return err
	}

	failed := !n.post(ctx, hook, event, encoded)
	n.record(ctx, hook.ID, failed)

	if failed {
		return errDeliveryFailed
	}
	return nil
}

func (n *Notifier) deliverAll(tenantID, event string, payload map[string]interface{}) {
	// Detached from the request; deliveries get their own deadline via the
	// HTTP client timeout.
	n.deliver(context.Background(), tenantID, event, payload)
}

func (n *Notifier) deliver(ctx context.Context, tenantID, event string, payload map[string]interface{}) {
	hooks, err := n.store.ListActiveWebhooks(ctx, tenantID)
	if err != nil {
		logger.Warn("Failed to list webhooks", zap.String("tenant_id", tenantID), zap.Error(err))
		return
	}

	encoded, err := json.Marshal(n.envelope(tenantID, event, payload))
	if err != nil {
		logger.Warn("Failed to encode webhook payload", zap.Error(err))
		return
	}

	for _, hook := range hooks {
		if !hook.SubscribedTo(event) {
			continue
		}

		failed := !n.post(ctx, &hook, event, encoded)
		n.record(ctx, hook.ID, failed)
	}
}

func (n *Notifier) envelope(tenantID, event string, payload map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"event":     event,
		"tenant_id": tenantID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      payload,
	}
}

func (n *Notifier) record(ctx context.Context, hookID string, failed bool) {
	if failed {
		metrics.WebhookDeliveries.WithLabelValues("failure").Inc()
	} else {
		metrics.WebhookDeliveries.WithLabelValues("success").Inc()
	}

	if err := n.store.RecordWebhookDelivery(ctx, hookID, failed); err != nil {
		logger.Warn("Failed to record webhook delivery", zap.Error(err))
	}
}

func (n *Notifier) post(ctx context.Context, hook *models.Webhook, event string, body []byte) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		logger.Warn("Failed to build webhook request", zap.String("url", hook.URL), zap.Error(err))
		return false
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderSignature, Sign(hook.Secret, body))

	resp, err := n.client.Do(req)
	if err != nil {
		logger.Warn("Webhook delivery failed",
			zap.String("url", hook.URL),
			zap.String("event", event),
			zap.Error(err),
		)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		logger.Warn("Webhook delivery rejected",
			zap.String("url", hook.URL),
			zap.String("event", event),
			zap.Int("status", resp.StatusCode),
		)
		return false
	}

	logger.Debug("Webhook delivered",
		zap.String("url", hook.URL),
		zap.String("event", event),
	)
	return true
}

// Sign computes the hex HMAC-SHA256 of the serialized payload with the
// webhook's secret. Receivers verify the same digest.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
