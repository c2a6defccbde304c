package handlers

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/auth"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/retrieval"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/pkg/logger"
)

// WebSocketHandler streams query answers over a websocket. The token comes in
// as a query parameter because browsers cannot set headers on websocket
// upgrades; scoping afterwards is identical to the HTTP path.
type WebSocketHandler struct {
	pipeline *retrieval.Pipeline
	tokens   *auth.TokenManager
}

func NewWebSocketHandler(pipeline *retrieval.Pipeline, tokens *auth.TokenManager) *WebSocketHandler {
	return &WebSocketHandler{pipeline: pipeline, tokens: tokens}
}

// Upgrade authenticates the connection and rejects non-websocket requests.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	claims, err := h.tokens.Verify(c.Query("token"))
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
	}

	c.Locals(auth.LocalTenantID, claims.TenantID)
	return c.Next()
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	tenantID, _ := c.Locals(auth.LocalTenantID).(string)

	logger.Info("WebSocket connection established", zap.String("tenant_id", tenantID))

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed", zap.String("tenant_id", tenantID))
	}()

	for {
		var msg struct {
			Type    string         `json:"type"`
			Query   string         `json:"query"`
			Filters *filterPayload `json:"filters"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			break
		}

		if msg.Type != "query" {
			continue
		}

		if err := h.streamResponse(c, tenantID, msg.Query, msg.Filters); err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, "Failed to process query")
		}
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, tenantID, queryText string, filters *filterPayload) error {
	filterReq, err := filters.toRequest()
	if err != nil {
		h.sendError(c, "Dates must be RFC 3339 timestamps")
		return nil
	}

	h.sendChunk(c, "status", "Processing query...")

	response, err := h.pipeline.Query(context.Background(), tenantID, retrieval.QueryRequest{
		Query:   queryText,
		Filters: filterReq,
	})
	if err != nil {
		return err
	}

	for _, word := range strings.Fields(response.Answer) {
		if err := h.sendChunk(c, "chunk", word+" "); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]interface{}{
		"type":            "complete",
		"query_id":        response.ID,
		"sources":         response.Sources,
		"filters_applied": response.FiltersApplied,
		"latency_ms":      response.LatencyMS,
	})
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}
