package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/auth"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/storage/models"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/webhook"
)

var knownEvents = map[string]bool{
	"document.uploaded": true,
	"document.failed":   true,
	"webhook.test":      true,
}

type WebhookStore interface {
	InsertWebhook(ctx context.Context, w *models.Webhook) error
	GetWebhook(ctx context.Context, tenantID, id string) (*models.Webhook, error)
	ListWebhooks(ctx context.Context, tenantID string) ([]models.Webhook, error)
	UpdateWebhook(ctx context.Context, w *models.Webhook) error
	DeleteWebhook(ctx context.Context, tenantID, id string) error
}

type WebhookHandler struct {
	store    WebhookStore
	notifier *webhook.Notifier
}

func NewWebhookHandler(store WebhookStore, notifier *webhook.Notifier) *WebhookHandler {
	return &WebhookHandler{store: store, notifier: notifier}
}

// Create registers a webhook endpoint. The signing secret is generated
// server-side and returned exactly once, in this response.
func (h *WebhookHandler) Create(c *fiber.Ctx) error {
	var req struct {
		URL    string   `json:"url"`
		Events []string `json:"events"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := validateWebhookInput(req.URL, req.Events); err != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err})
	}

	secret, err := generateSecret()
	if err != nil {
		return respondError(c, err)
	}

	hook := &models.Webhook{
		ID:        uuid.New().String(),
		TenantID:  auth.TenantID(c),
		URL:       req.URL,
		Events:    req.Events,
		Secret:    secret,
		IsActive:  true,
		CreatedAt: time.Now(),
	}

	if err := h.store.InsertWebhook(c.Context(), hook); err != nil {
		return respondError(c, err)
	}

	resp := webhookJSON(hook)
	resp["secret"] = secret
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *WebhookHandler) List(c *fiber.Ctx) error {
	hooks, err := h.store.ListWebhooks(c.Context(), auth.TenantID(c))
	if err != nil {
		return respondError(c, err)
	}

	out := make([]fiber.Map, 0, len(hooks))
	for i := range hooks {
		out = append(out, webhookJSON(&hooks[i]))
	}
	return c.JSON(fiber.Map{"webhooks": out, "count": len(out)})
}

func (h *WebhookHandler) Get(c *fiber.Ctx) error {
	hook, err := h.store.GetWebhook(c.Context(), auth.TenantID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(webhookJSON(hook))
}

func (h *WebhookHandler) Update(c *fiber.Ctx) error {
	var req struct {
		URL      *string  `json:"url"`
		Events   []string `json:"events"`
		IsActive *bool    `json:"is_active"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	hook, err := h.store.GetWebhook(c.Context(), auth.TenantID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	if req.URL != nil {
		hook.URL = *req.URL
	}
	if req.Events != nil {
		hook.Events = req.Events
	}
	if req.IsActive != nil {
		hook.IsActive = *req.IsActive
	}

	if msg := validateWebhookInput(hook.URL, hook.Events); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	if err := h.store.UpdateWebhook(c.Context(), hook); err != nil {
		return respondError(c, err)
	}
	return c.JSON(webhookJSON(hook))
}

func (h *WebhookHandler) Delete(c *fiber.Ctx) error {
	if err := h.store.DeleteWebhook(c.Context(), auth.TenantID(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Test fires a webhook.test event at this endpoint synchronously, ignoring its
// event subscriptions, so the caller learns immediately whether the target
// accepts signed deliveries.
func (h *WebhookHandler) Test(c *fiber.Ctx) error {
	hook, err := h.store.GetWebhook(c.Context(), auth.TenantID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	if err := h.notifier.DeliverTo(c.Context(), hook, "webhook.test", map[string]interface{}{
		"webhook_id": hook.ID,
	}); err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "test delivery failed, check the endpoint and delivery counters",
		})
	}

	return c.JSON(fiber.Map{"status": "test event delivered"})
}

func validateWebhookInput(rawURL string, events []string) string {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "url must be a valid http(s) URL"
	}
	if len(events) == 0 {
		return "At least one event is required"
	}
	for _, e := range events {
		if !knownEvents[e] {
			return "Unknown event: " + e
		}
	}
	return ""
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func webhookJSON(w *models.Webhook) fiber.Map {
	m := fiber.Map{
		"id":                w.ID,
		"url":               w.URL,
		"events":            w.Events,
		"is_active":         w.IsActive,
		"total_deliveries":  w.TotalDeliveries,
		"failed_deliveries": w.FailedDeliveries,
		"created_at":        w.CreatedAt.UTC(),
	}
	if w.LastTriggeredAt != nil {
		m["last_triggered_at"] = w.LastTriggeredAt.UTC()
	}
	return m
}
