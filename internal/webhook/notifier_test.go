package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/storage/models"
)

type fakeHookStore struct {
	hooks     []models.Webhook
	delivered map[string]int
	failed    map[string]int
}

func newFakeHookStore(hooks ...models.Webhook) *fakeHookStore {
	return &fakeHookStore{
		hooks:     hooks,
		delivered: make(map[string]int),
		failed:    make(map[string]int),
	}
}

func (s *fakeHookStore) ListActiveWebhooks(ctx context.Context, tenantID string) ([]models.Webhook, error) {
	return s.hooks, nil
}

func (s *fakeHookStore) RecordWebhookDelivery(ctx context.Context, id string, failed bool) error {
	s.delivered[id]++
	if failed {
		s.failed[id]++
	}
	return nil
}

func TestNotifySignedDelivery(t *testing.T) {
	var gotBody []byte
	var gotSig, gotEvent string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(HeaderSignature)
		gotEvent = r.Header.Get(HeaderEvent)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newFakeHookStore(models.Webhook{
		ID:       "hook-1",
		TenantID: "tenant-a",
		URL:      server.URL,
		Events:   []string{"document.uploaded"},
		Secret:   "s3cret",
		IsActive: true,
	})

	n := NewNotifier(store, 5*time.Second)
	n.NotifySync(context.Background(), "tenant-a", "document.uploaded", map[string]interface{}{
		"document_id": "doc-1",
	})

	require.NotEmpty(t, gotBody)
	assert.Equal(t, "document.uploaded", gotEvent)
	assert.Equal(t, Sign("s3cret", gotBody), gotSig)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(gotBody, &payload))
	assert.Equal(t, "document.uploaded", payload["event"])
	assert.Equal(t, "tenant-a", payload["tenant_id"])
	assert.NotEmpty(t, payload["timestamp"])

	data, ok := payload["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "doc-1", data["document_id"])

	assert.Equal(t, 1, store.delivered["hook-1"])
	assert.Equal(t, 0, store.failed["hook-1"])
}

func TestNotifySkipsUnsubscribedHooks(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	store := newFakeHookStore(models.Webhook{
		ID:       "hook-1",
		URL:      server.URL,
		Events:   []string{"document.failed"},
		Secret:   "s3cret",
		IsActive: true,
	})

	n := NewNotifier(store, 5*time.Second)
	n.NotifySync(context.Background(), "tenant-a", "document.uploaded", nil)

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, store.delivered["hook-1"])
}

func TestNotifyCountsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := newFakeHookStore(models.Webhook{
		ID:       "hook-1",
		URL:      server.URL,
		Events:   []string{"document.uploaded"},
		Secret:   "s3cret",
		IsActive: true,
	})

	n := NewNotifier(store, 5*time.Second)
	n.NotifySync(context.Background(), "tenant-a", "document.uploaded", nil)

	assert.Equal(t, 1, store.delivered["hook-1"])
	assert.Equal(t, 1, store.failed["hook-1"])
}

func TestNotifyUnreachableTarget(t *testing.T) {
	store := newFakeHookStore(models.Webhook{
		ID:       "hook-1",
		URL:      "http://127.0.0.1:1", // nothing listens here
		Events:   []string{"document.uploaded"},
		Secret:   "s3cret",
		IsActive: true,
	})

	n := NewNotifier(store, time.Second)
	n.NotifySync(context.Background(), "tenant-a", "document.uploaded", nil)

	assert.Equal(t, 1, store.delivered["hook-1"])
	assert.Equal(t, 1, store.failed["hook-1"])
}

func TestDeliverToIgnoresSubscriptions(t *testing.T) {
	var gotEvent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEvent = r.Header.Get(HeaderEvent)
	}))
	defer server.Close()

	store := newFakeHookStore()
	hook := &models.Webhook{
		ID:       "hook-1",
		TenantID: "tenant-a",
		URL:      server.URL,
		Events:   []string{"document.uploaded"}, // not subscribed to webhook.test
		Secret:   "s3cret",
		IsActive: true,
	}

	n := NewNotifier(store, 5*time.Second)
	err := n.DeliverTo(context.Background(), hook, "webhook.test", map[string]interface{}{"webhook_id": "hook-1"})
	require.NoError(t, err)

	assert.Equal(t, "webhook.test", gotEvent)
	assert.Equal(t, 1, store.delivered["hook-1"])
}

func TestDeliverToReportsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	store := newFakeHookStore()
	hook := &models.Webhook{ID: "hook-1", TenantID: "tenant-a", URL: server.URL, Secret: "s3cret", IsActive: true}

	n := NewNotifier(store, 5*time.Second)
	err := n.DeliverTo(context.Background(), hook, "webhook.test", nil)
	require.Error(t, err)
	assert.Equal(t, 1, store.failed["hook-1"])
}

func TestSignDeterministic(t *testing.T) {
	body := []byte(`{"event":"document.uploaded"}`)

	assert.Equal(t, Sign("secret", body), Sign("secret", body))
	assert.NotEqual(t, Sign("secret", body), Sign("other", body))
	assert.Len(t, Sign("secret", body), 64)
}
