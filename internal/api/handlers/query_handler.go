package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/auth"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/retrieval"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/storage/models"
)

type QueryLogStore interface {
	ListQueryLogs(ctx context.Context, tenantID string, limit int) ([]models.QueryLog, error)
}

type QueryHandler struct {
	pipeline *retrieval.Pipeline
	logs     QueryLogStore
}

func NewQueryHandler(pipeline *retrieval.Pipeline, logs QueryLogStore) *QueryHandler {
	return &QueryHandler{pipeline: pipeline, logs: logs}
}

type filterPayload struct {
	DocumentIDs []string `json:"document_ids"`
	Categories  []string `json:"categories"`
	Tags        []string `json:"tags"`
	FileTypes   []string `json:"file_types"`
	DateFrom    string   `json:"date_from"`
	DateTo      string   `json:"date_to"`
}

func (f *filterPayload) toRequest() (*retrieval.FilterRequest, error) {
	if f == nil {
		return nil, nil
	}

	req := &retrieval.FilterRequest{
		DocumentIDs: f.DocumentIDs,
		Categories:  f.Categories,
		Tags:        f.Tags,
		FileTypes:   f.FileTypes,
	}

	if f.DateFrom != "" {
		t, err := time.Parse(time.RFC3339, f.DateFrom)
		if err != nil {
			return nil, err
		}
		req.DateFrom = &t
	}
	if f.DateTo != "" {
		t, err := time.Parse(time.RFC3339, f.DateTo)
		if err != nil {
			return nil, err
		}
		req.DateTo = &t
	}
	return req, nil
}

// HandleQuery answers a question over the tenant's documents. The tenant scope
// comes from the access token, never from the body.
func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req struct {
		Query   string         `json:"query"`
		Filters *filterPayload `json:"filters"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	filters, err := req.Filters.toRequest()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Dates must be RFC 3339 timestamps"})
	}

	response, err := h.pipeline.Query(c.Context(), auth.TenantID(c), retrieval.QueryRequest{
		Query:   req.Query,
		Filters: filters,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(response)
}

func (h *QueryHandler) GetQueryLogs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	logs, err := h.logs.ListQueryLogs(c.Context(), auth.TenantID(c), limit)
	if err != nil {
		return respondError(c, err)
	}

	out := make([]fiber.Map, 0, len(logs))
	for _, l := range logs {
		entry := fiber.Map{
			"id":               l.ID,
			"query_text":       l.QueryText,
			"filters_applied":  l.FiltersApplied,
			"answer_length":    l.AnswerLength,
			"sources_count":    l.SourcesCount,
			"response_time_ms": l.ResponseTimeMS,
			"success":          l.Success,
			"created_at":       l.CreatedAt.UTC(),
		}
		if l.ErrorMessage != "" {
			entry["error_message"] = l.ErrorMessage
		}
		out = append(out, entry)
	}

	return c.JSON(fiber.Map{"logs": out, "count": len(out)})
}
