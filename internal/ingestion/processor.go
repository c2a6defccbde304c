package ingestion

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/domain"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/extract"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/metrics"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/storage/models"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/vector/milvus"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/pkg/logger"
)

type DocumentStore interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	CountDocumentsByTenant(ctx context.Context, tenantID string) (int, error)
	InsertDocument(ctx context.Context, doc *models.Document) error
	UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, chunkCount int, errorMessage string, processedAt *time.Time) error
	UpdateDocumentMetadata(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, tenantID, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, tenantID string) ([]models.Document, error)
	DeleteDocument(ctx context.Context, tenantID, id string) error
}

type VectorIndex interface {
	Upsert(ctx context.Context, points []milvus.ChunkPoint) error
	DeleteByDocument(ctx context.Context, documentID string) error
	UpdatePayload(ctx context.Context, documentID string, meta milvus.ChunkMetadata) error
}

type Embedder interface {
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Notifier delivers webhook events. Delivery is fire-and-forget and must never
// influence the triggering operation's result.
type Notifier interface {
	Notify(tenantID, event string, payload map[string]interface{})
}

// Processor runs the ingestion workflow: quota check, extract, chunk, index,
// commit. A document row in FAILED state is the visible trace of any failure
// after extraction.
type Processor struct {
	store        DocumentStore
	vectorDB     VectorIndex
	embedder     Embedder
	notifier     Notifier
	extractors   *extract.Registry
	chunker      *Chunker
	minTextChars int
}

func NewProcessor(store DocumentStore, vectorDB VectorIndex, embedder Embedder, notifier Notifier, extractors *extract.Registry, chunker *Chunker, minTextChars int) *Processor {
	if minTextChars == 0 {
		minTextChars = 10
	}
	return &Processor{
		store:        store,
		vectorDB:     vectorDB,
		embedder:     embedder,
		notifier:     notifier,
		extractors:   extractors,
		chunker:      chunker,
		minTextChars: minTextChars,
	}
}

type Upload struct {
	Filename    string
	FileType    string
	Data        []byte
	Category    string
	Tags        []string
	Description string
}

// Ingest processes one upload for the tenant. Quota and validation failures
// create no state; failures after the document row exists leave it FAILED with
// an error message and best-effort cleanup of any chunks already indexed.
func (p *Processor) Ingest(ctx context.Context, tenantID string, up Upload) (*models.Document, error) {
	tenant, err := p.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	count, err := p.store.CountDocumentsByTenant(ctx, tenantID)
	if err != nil {
		return nil, domain.Dependency("failed to check document quota", err)
	}
	if count >= tenant.MaxDocuments {
		metrics.QuotaRejections.WithLabelValues("documents").Inc()
		return nil, domain.QuotaExceeded("document limit of %d reached", tenant.MaxDocuments)
	}

	text, err := p.extractors.Extract(up.FileType, up.Data)
	if err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(text) < p.minTextChars {
		return nil, domain.Validation("document text too short: need at least %d characters", p.minTextChars)
	}

	now := time.Now()
	doc := &models.Document{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Filename:    up.Filename,
		FileSize:    int64(len(up.Data)),
		FileType:    up.FileType,
		Status:      models.StatusProcessing,
		Category:    up.Category,
		Tags:        up.Tags,
		Description: up.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// The row goes in before chunking so a later failure stays observable as
	// a FAILED document instead of a vanished upload.
	if err := p.store.InsertDocument(ctx, doc); err != nil {
		return nil, domain.Dependency("failed to create document record", err)
	}

	chunks := p.chunker.Split(text)
	logger.Info("Document chunked",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(chunks)),
	)

	embeddings, err := p.embedder.GenerateBatchEmbeddings(ctx, chunks)
	if err != nil {
		return nil, p.fail(ctx, doc, err)
	}
	if len(embeddings) != len(chunks) {
		return nil, p.fail(ctx, doc, fmt.Errorf("embedding count mismatch: got %d, expected %d", len(embeddings), len(chunks)))
	}

	points := make([]milvus.ChunkPoint, len(chunks))
	meta := chunkMetadata(doc)
	for i, chunkText := range chunks {
		points[i] = milvus.ChunkPoint{
			ID:        fmt.Sprintf("%s_chunk_%d", doc.ID, i),
			Embedding: embeddings[i],
			Text:      chunkText,
			Meta:      meta,
		}
	}

	if err := p.vectorDB.Upsert(ctx, points); err != nil {
		return nil, p.fail(ctx, doc, err)
	}

	processedAt := time.Now()
	if err := p.store.UpdateDocumentStatus(ctx, doc.ID, models.StatusCompleted, len(chunks), "", &processedAt); err != nil {
		return nil, p.fail(ctx, doc, fmt.Errorf("failed to commit document: %w", err))
	}

	doc.Status = models.StatusCompleted
	doc.ChunkCount = len(chunks)
	doc.ProcessedAt = &processedAt

	metrics.DocumentsIngested.WithLabelValues("completed").Inc()
	metrics.ChunksIndexed.Add(float64(len(chunks)))

	p.notifier.Notify(tenantID, "document.uploaded", map[string]interface{}{
		"document_id": doc.ID,
		"filename":    doc.Filename,
		"chunk_count": doc.ChunkCount,
	})

	logger.Info("Document ingested",
		zap.String("document_id", doc.ID),
		zap.String("tenant_id", tenantID),
		zap.Int("chunks", len(chunks)),
	)

	return doc, nil
}

// fail marks the document FAILED and removes any chunks already indexed so no
// orphaned points survive a partial ingestion. Both steps are best-effort.
func (p *Processor) fail(ctx context.Context, doc *models.Document, cause error) error {
	metrics.DocumentsIngested.WithLabelValues("failed").Inc()
	logger.Error("Ingestion failed",
		zap.String("document_id", doc.ID),
		zap.String("tenant_id", doc.TenantID),
		zap.Error(cause),
	)

	if err := p.store.UpdateDocumentStatus(ctx, doc.ID, models.StatusFailed, 0, cause.Error(), nil); err != nil {
		logger.Warn("Failed to mark document as failed", zap.Error(err))
	}

	if err := p.vectorDB.DeleteByDocument(ctx, doc.ID); err != nil {
		logger.Warn("Failed to clean up chunks of failed ingestion", zap.Error(err))
	}

	p.notifier.Notify(doc.TenantID, "document.failed", map[string]interface{}{
		"document_id": doc.ID,
		"filename":    doc.Filename,
		"error":       cause.Error(),
	})

	if domain.KindOf(cause) != domain.KindUnknown {
		return cause
	}
	return domain.Dependency("ingestion failed", cause)
}

// Delete removes the vector points first, then the relational row; if the
// vector delete fails the row stays so the document never silently loses its
// record while chunks remain searchable.
func (p *Processor) Delete(ctx context.Context, tenantID, documentID string) error {
	if _, err := p.store.GetDocument(ctx, tenantID, documentID); err != nil {
		return err
	}

	if err := p.vectorDB.DeleteByDocument(ctx, documentID); err != nil {
		return err
	}

	if err := p.store.DeleteDocument(ctx, tenantID, documentID); err != nil {
		return err
	}

	logger.Info("Document deleted",
		zap.String("document_id", documentID),
		zap.String("tenant_id", tenantID),
	)
	return nil
}

type MetadataUpdate struct {
	Category    *string
	Tags        []string
	Description *string
}

// UpdateMetadata changes the filterable fields on both the relational row and
// every vector point of the document.
func (p *Processor) UpdateMetadata(ctx context.Context, tenantID, documentID string, update MetadataUpdate) (*models.Document, error) {
	doc, err := p.store.GetDocument(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}

	if update.Category != nil {
		doc.Category = *update.Category
	}
	if update.Tags != nil {
		doc.Tags = update.Tags
	}
	if update.Description != nil {
		doc.Description = *update.Description
	}

	if err := p.store.UpdateDocumentMetadata(ctx, doc); err != nil {
		return nil, err
	}

	if doc.Status == models.StatusCompleted {
		if err := p.vectorDB.UpdatePayload(ctx, documentID, chunkMetadata(doc)); err != nil {
			return nil, err
		}
	}

	return doc, nil
}

func (p *Processor) Get(ctx context.Context, tenantID, documentID string) (*models.Document, error) {
	return p.store.GetDocument(ctx, tenantID, documentID)
}

func (p *Processor) List(ctx context.Context, tenantID string) ([]models.Document, error) {
	return p.store.ListDocuments(ctx, tenantID)
}

func chunkMetadata(doc *models.Document) milvus.ChunkMetadata {
	return milvus.ChunkMetadata{
		TenantID:    doc.TenantID,
		DocumentID:  doc.ID,
		FileName:    doc.Filename,
		FileType:    doc.FileType,
		FileSize:    doc.FileSize,
		Category:    doc.Category,
		Tags:        doc.Tags,
		UploadDate:  doc.CreatedAt.Unix(),
		Description: doc.Description,
	}
}
