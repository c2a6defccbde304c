package handlers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/auth"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/storage/models"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/pkg/logger"
)

const (
	defaultMaxDocuments     = 100
	defaultMaxQueriesPerDay = 100
)

type AuthStore interface {
	CreateUserWithTenant(ctx context.Context, user *models.User, tenant *models.Tenant) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	GetTenantByOwner(ctx context.Context, ownerID string) (*models.Tenant, error)
}

type AuthHandler struct {
	store  AuthStore
	tokens *auth.TokenManager
}

func NewAuthHandler(store AuthStore, tokens *auth.TokenManager) *AuthHandler {
	return &AuthHandler{store: store, tokens: tokens}
}

// Register creates a user plus its tenant and returns an access token. Every
// user owns exactly one tenant.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		TenantName string `json:"tenant_name"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "A valid email is required"})
	}
	if len(req.Password) < 8 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Password must be at least 8 characters"})
	}
	if strings.TrimSpace(req.TenantName) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "tenant_name is required"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return respondError(c, err)
	}

	now := time.Now()
	user := &models.User{
		ID:             uuid.New().String(),
		Email:          req.Email,
		HashedPassword: string(hashed),
		IsActive:       true,
		CreatedAt:      now,
	}
	tenant := &models.Tenant{
		ID:               uuid.New().String(),
		Name:             strings.TrimSpace(req.TenantName),
		OwnerID:          user.ID,
		MaxDocuments:     defaultMaxDocuments,
		MaxQueriesPerDay: defaultMaxQueriesPerDay,
		CreatedAt:        now,
	}

	if err := h.store.CreateUserWithTenant(c.Context(), user, tenant); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Email already registered"})
		}
		return respondError(c, err)
	}

	token, err := h.tokens.Issue(user.ID, tenant.ID)
	if err != nil {
		return respondError(c, err)
	}

	logger.Info("User registered",
		zap.String("user_id", user.ID),
		zap.String("tenant_id", tenant.ID),
	)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"access_token": token,
		"token_type":   "bearer",
		"tenant_id":    tenant.ID,
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	user, err := h.store.GetUserByEmail(c.Context(), strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid email or password"})
	}
	if !user.IsActive {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Account is disabled"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid email or password"})
	}

	tenant, err := h.store.GetTenantByOwner(c.Context(), user.ID)
	if err != nil {
		return respondError(c, err)
	}

	token, err := h.tokens.Issue(user.ID, tenant.ID)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"access_token": token,
		"token_type":   "bearer",
		"tenant_id":    tenant.ID,
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	tenant, err := h.store.GetTenant(c.Context(), auth.TenantID(c))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"user_id": auth.UserID(c),
		"tenant": fiber.Map{
			"id":                  tenant.ID,
			"name":                tenant.Name,
			"max_documents":       tenant.MaxDocuments,
			"max_queries_per_day": tenant.MaxQueriesPerDay,
		},
	})
}
