package handlers

import (
	"context"
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/storage/models"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/pkg/logger"
)

type AdminStore interface {
	ListTenants(ctx context.Context) ([]models.Tenant, error)
	GetTenantStats(ctx context.Context, tenantID string) (*models.TenantStats, error)
	ListDocuments(ctx context.Context, tenantID string) ([]models.Document, error)
	DeleteTenant(ctx context.Context, id string) error
}

type VectorCleaner interface {
	DeleteByDocument(ctx context.Context, documentID string) error
}

// AdminHandler serves the operator endpoints. These sit behind a static API
// key, not tenant tokens; with no key configured they are disabled entirely.
type AdminHandler struct {
	store    AdminStore
	vectorDB VectorCleaner
	apiKey   string
}

func NewAdminHandler(store AdminStore, vectorDB VectorCleaner, apiKey string) *AdminHandler {
	return &AdminHandler{store: store, vectorDB: vectorDB, apiKey: apiKey}
}

func (h *AdminHandler) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if h.apiKey == "" {
			return fiber.NewError(fiber.StatusForbidden, "admin API is disabled")
		}
		key := c.Get("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) != 1 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid admin key")
		}
		return c.Next()
	}
}

func (h *AdminHandler) ListTenants(c *fiber.Ctx) error {
	tenants, err := h.store.ListTenants(c.Context())
	if err != nil {
		return respondError(c, err)
	}

	out := make([]fiber.Map, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, fiber.Map{
			"id":                  t.ID,
			"name":                t.Name,
			"max_documents":       t.MaxDocuments,
			"max_queries_per_day": t.MaxQueriesPerDay,
			"created_at":          t.CreatedAt.UTC(),
		})
	}
	return c.JSON(fiber.Map{"tenants": out, "count": len(out)})
}

func (h *AdminHandler) TenantStats(c *fiber.Ctx) error {
	stats, err := h.store.GetTenantStats(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"tenant_id":      stats.TenantID,
		"tenant_name":    stats.TenantName,
		"document_count": stats.DocumentCount,
		"total_queries":  stats.TotalQueries,
		"storage_bytes":  stats.StorageBytes,
	})
}

// DeleteTenant removes the tenant's vector points document by document before
// dropping the relational rows, so nothing stays searchable afterwards.
func (h *AdminHandler) DeleteTenant(c *fiber.Ctx) error {
	tenantID := c.Params("id")

	docs, err := h.store.ListDocuments(c.Context(), tenantID)
	if err != nil {
		return respondError(c, err)
	}

	for _, doc := range docs {
		if err := h.vectorDB.DeleteByDocument(c.Context(), doc.ID); err != nil {
			return respondError(c, err)
		}
	}

	if err := h.store.DeleteTenant(c.Context(), tenantID); err != nil {
		return respondError(c, err)
	}

	logger.Info("Tenant deleted",
		zap.String("tenant_id", tenantID),
		zap.Int("documents_removed", len(docs)),
	)
	return c.SendStatus(fiber.StatusNoContent)
}
