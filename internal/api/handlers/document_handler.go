package handlers

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/auth"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/ingestion"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/storage/models"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
}

func NewDocumentHandler(processor *ingestion.Processor) *DocumentHandler {
	return &DocumentHandler{processor: processor}
}

// Upload ingests a multipart file with optional metadata form fields. The
// response carries the final document state, COMPLETED or FAILED.
func (h *DocumentHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "A file is required"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Failed to open uploaded file"})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Failed to read uploaded file"})
	}

	up := ingestion.Upload{
		Filename:    fileHeader.Filename,
		FileType:    fileType(fileHeader.Filename),
		Data:        data,
		Category:    strings.TrimSpace(c.FormValue("category")),
		Tags:        parseTags(c.FormValue("tags")),
		Description: strings.TrimSpace(c.FormValue("description")),
	}

	doc, err := h.processor.Ingest(c.Context(), auth.TenantID(c), up)
	if err != nil {
		return respondError(c, err)
	}

	logger.Info("Document uploaded",
		zap.String("document_id", doc.ID),
		zap.String("filename", doc.Filename),
	)

	return c.Status(fiber.StatusCreated).JSON(documentJSON(doc))
}

func (h *DocumentHandler) List(c *fiber.Ctx) error {
	docs, err := h.processor.List(c.Context(), auth.TenantID(c))
	if err != nil {
		return respondError(c, err)
	}

	out := make([]fiber.Map, 0, len(docs))
	for i := range docs {
		out = append(out, documentJSON(&docs[i]))
	}
	return c.JSON(fiber.Map{"documents": out, "count": len(out)})
}

func (h *DocumentHandler) Get(c *fiber.Ctx) error {
	doc, err := h.processor.Get(c.Context(), auth.TenantID(c), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(documentJSON(doc))
}

// UpdateMetadata changes category, tags or description; omitted fields keep
// their value.
func (h *DocumentHandler) UpdateMetadata(c *fiber.Ctx) error {
	var req struct {
		Category    *string  `json:"category"`
		Tags        []string `json:"tags"`
		Description *string  `json:"description"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	doc, err := h.processor.UpdateMetadata(c.Context(), auth.TenantID(c), c.Params("id"), ingestion.MetadataUpdate{
		Category:    req.Category,
		Tags:        req.Tags,
		Description: req.Description,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(documentJSON(doc))
}

func (h *DocumentHandler) Delete(c *fiber.Ctx) error {
	if err := h.processor.Delete(c.Context(), auth.TenantID(c), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func documentJSON(doc *models.Document) fiber.Map {
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}

	m := fiber.Map{
		"id":          doc.ID,
		"filename":    doc.Filename,
		"file_size":   doc.FileSize,
		"file_type":   doc.FileType,
		"status":      doc.Status,
		"chunk_count": doc.ChunkCount,
		"category":    doc.Category,
		"tags":        tags,
		"description": doc.Description,
		"created_at":  doc.CreatedAt.UTC(),
		"updated_at":  doc.UpdatedAt.UTC(),
	}
	if doc.ErrorMessage != "" {
		m["error_message"] = doc.ErrorMessage
	}
	if doc.ProcessedAt != nil {
		m["processed_at"] = doc.ProcessedAt.UTC()
	}
	return m
}

func fileType(filename string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
}

func parseTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}
