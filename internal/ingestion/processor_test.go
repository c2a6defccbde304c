package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/domain"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/extract"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/storage/models"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/vector/milvus"
)

type fakeDocStore struct {
	tenant    *models.Tenant
	docs      map[string]*models.Document
	count     int
	statusLog []models.DocumentStatus
}

func newFakeDocStore(tenant *models.Tenant) *fakeDocStore {
	return &fakeDocStore{tenant: tenant, docs: make(map[string]*models.Document)}
}

func (s *fakeDocStore) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	return s.tenant, nil
}

func (s *fakeDocStore) CountDocumentsByTenant(ctx context.Context, tenantID string) (int, error) {
	return s.count, nil
}

func (s *fakeDocStore) InsertDocument(ctx context.Context, doc *models.Document) error {
	copied := *doc
	s.docs[doc.ID] = &copied
	return nil
}

func (s *fakeDocStore) UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, chunkCount int, errorMessage string, processedAt *time.Time) error {
	doc, ok := s.docs[id]
	if !ok {
		return domain.NotFound("document not found")
	}
	doc.Status = status
	doc.ChunkCount = chunkCount
	doc.ErrorMessage = errorMessage
	doc.ProcessedAt = processedAt
	s.statusLog = append(s.statusLog, status)
	return nil
}

func (s *fakeDocStore) UpdateDocumentMetadata(ctx context.Context, doc *models.Document) error {
	stored, ok := s.docs[doc.ID]
	if !ok {
		return domain.NotFound("document not found")
	}
	stored.Category = doc.Category
	stored.Tags = doc.Tags
	stored.Description = doc.Description
	return nil
}

func (s *fakeDocStore) GetDocument(ctx context.Context, tenantID, id string) (*models.Document, error) {
	doc, ok := s.docs[id]
	if !ok || doc.TenantID != tenantID {
		return nil, domain.NotFound("document not found")
	}
	copied := *doc
	return &copied, nil
}

func (s *fakeDocStore) ListDocuments(ctx context.Context, tenantID string) ([]models.Document, error) {
	var out []models.Document
	for _, doc := range s.docs {
		if doc.TenantID == tenantID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (s *fakeDocStore) DeleteDocument(ctx context.Context, tenantID, id string) error {
	if _, ok := s.docs[id]; !ok {
		return domain.NotFound("document not found")
	}
	delete(s.docs, id)
	return nil
}

type fakeIndex struct {
	points      []milvus.ChunkPoint
	deleted     []string
	updatedMeta *milvus.ChunkMetadata
	upsertErr   error
	deleteErr   error
}

func (i *fakeIndex) Upsert(ctx context.Context, points []milvus.ChunkPoint) error {
	if i.upsertErr != nil {
		return i.upsertErr
	}
	i.points = append(i.points, points...)
	return nil
}

func (i *fakeIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	if i.deleteErr != nil {
		return i.deleteErr
	}
	i.deleted = append(i.deleted, documentID)
	return nil
}

func (i *fakeIndex) UpdatePayload(ctx context.Context, documentID string, meta milvus.ChunkMetadata) error {
	i.updatedMeta = &meta
	return nil
}

type fakeBatchEmbedder struct {
	err error
}

func (e *fakeBatchEmbedder) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1.0}
	}
	return out, nil
}

type fakeNotifier struct {
	events []string
}

func (n *fakeNotifier) Notify(tenantID, event string, payload map[string]interface{}) {
	n.events = append(n.events, event)
}

func newTestProcessor(store *fakeDocStore, index *fakeIndex, embedder *fakeBatchEmbedder, notifier *fakeNotifier) *Processor {
	chunker, _ := NewChunker(50, 10)
	return NewProcessor(store, index, embedder, notifier, extract.NewRegistry(), chunker, 10)
}

func textUpload(body string) Upload {
	return Upload{Filename: "notes.txt", FileType: "txt", Data: []byte(body), Category: "notes", Tags: []string{"a"}}
}

func TestIngestSuccess(t *testing.T) {
	store := newFakeDocStore(&models.Tenant{ID: "tenant-a", MaxDocuments: 10})
	index := &fakeIndex{}
	notifier := &fakeNotifier{}
	p := newTestProcessor(store, index, &fakeBatchEmbedder{}, notifier)

	body := strings.Repeat("searchable content ", 10)
	doc, err := p.Ingest(context.Background(), "tenant-a", textUpload(body))
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, doc.Status)
	assert.Equal(t, len(index.points), doc.ChunkCount)
	assert.NotNil(t, doc.ProcessedAt)

	require.NotEmpty(t, index.points)
	for _, point := range index.points {
		assert.Equal(t, doc.ID, point.Meta.DocumentID)
		assert.Equal(t, "tenant-a", point.Meta.TenantID)
		assert.Contains(t, point.ID, doc.ID)
		assert.Contains(t, point.ID, "_chunk_")
	}

	assert.Equal(t, []string{"document.uploaded"}, notifier.events)
}

func TestIngestDocumentQuota(t *testing.T) {
	store := newFakeDocStore(&models.Tenant{ID: "tenant-a", MaxDocuments: 3})
	store.count = 3
	p := newTestProcessor(store, &fakeIndex{}, &fakeBatchEmbedder{}, &fakeNotifier{})

	_, err := p.Ingest(context.Background(), "tenant-a", textUpload("plenty of text here to pass the minimum"))
	require.Error(t, err)
	assert.Equal(t, domain.KindQuotaExceeded, domain.KindOf(err))
	assert.Empty(t, store.docs, "quota rejection must create no document row")
}

func TestIngestUnsupportedType(t *testing.T) {
	store := newFakeDocStore(&models.Tenant{ID: "tenant-a", MaxDocuments: 10})
	p := newTestProcessor(store, &fakeIndex{}, &fakeBatchEmbedder{}, &fakeNotifier{})

	_, err := p.Ingest(context.Background(), "tenant-a", Upload{Filename: "x.exe", FileType: "exe", Data: []byte("binary")})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Empty(t, store.docs)
}

func TestIngestTextTooShort(t *testing.T) {
	store := newFakeDocStore(&models.Tenant{ID: "tenant-a", MaxDocuments: 10})
	p := newTestProcessor(store, &fakeIndex{}, &fakeBatchEmbedder{}, &fakeNotifier{})

	_, err := p.Ingest(context.Background(), "tenant-a", textUpload("tiny"))
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Empty(t, store.docs)
}

func TestIngestTextLengthCountsRunes(t *testing.T) {
	store := newFakeDocStore(&models.Tenant{ID: "tenant-a", MaxDocuments: 10})
	p := newTestProcessor(store, &fakeIndex{}, &fakeBatchEmbedder{}, &fakeNotifier{})

	// 8 runes but 24 bytes; the minimum is measured in runes.
	up := textUpload("日本語のテキスト")
	_, err := p.Ingest(context.Background(), "tenant-a", up)
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Empty(t, store.docs)

	doc, err := p.Ingest(context.Background(), "tenant-a", textUpload("十文字ちょうどの本文です"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, doc.Status)
}

func TestIngestEmbeddingFailureLeavesFailedRow(t *testing.T) {
	store := newFakeDocStore(&models.Tenant{ID: "tenant-a", MaxDocuments: 10})
	index := &fakeIndex{}
	notifier := &fakeNotifier{}
	embedErr := domain.Dependency("embedding request failed", errors.New("timeout"))
	p := newTestProcessor(store, index, &fakeBatchEmbedder{err: embedErr}, notifier)

	_, err := p.Ingest(context.Background(), "tenant-a", textUpload(strings.Repeat("content ", 20)))
	require.Error(t, err)
	assert.Equal(t, domain.KindDependency, domain.KindOf(err))

	require.Len(t, store.docs, 1)
	for _, doc := range store.docs {
		assert.Equal(t, models.StatusFailed, doc.Status)
		assert.NotEmpty(t, doc.ErrorMessage)
		assert.Contains(t, index.deleted, doc.ID, "failed ingestion must clean up its chunks")
	}

	assert.Equal(t, []string{"document.failed"}, notifier.events)
}

func TestIngestIndexFailureLeavesFailedRow(t *testing.T) {
	store := newFakeDocStore(&models.Tenant{ID: "tenant-a", MaxDocuments: 10})
	index := &fakeIndex{upsertErr: domain.Dependency("vector store unavailable", errors.New("conn refused"))}
	p := newTestProcessor(store, index, &fakeBatchEmbedder{}, &fakeNotifier{})

	_, err := p.Ingest(context.Background(), "tenant-a", textUpload(strings.Repeat("content ", 20)))
	require.Error(t, err)

	require.Len(t, store.docs, 1)
	for _, doc := range store.docs {
		assert.Equal(t, models.StatusFailed, doc.Status)
	}
}

func TestDeleteRemovesVectorsThenRow(t *testing.T) {
	store := newFakeDocStore(&models.Tenant{ID: "tenant-a", MaxDocuments: 10})
	index := &fakeIndex{}
	p := newTestProcessor(store, index, &fakeBatchEmbedder{}, &fakeNotifier{})

	doc, err := p.Ingest(context.Background(), "tenant-a", textUpload(strings.Repeat("content ", 20)))
	require.NoError(t, err)

	require.NoError(t, p.Delete(context.Background(), "tenant-a", doc.ID))
	assert.Contains(t, index.deleted, doc.ID)
	assert.Empty(t, store.docs)
}

func TestDeleteKeepsRowWhenVectorDeleteFails(t *testing.T) {
	store := newFakeDocStore(&models.Tenant{ID: "tenant-a", MaxDocuments: 10})
	index := &fakeIndex{}
	p := newTestProcessor(store, index, &fakeBatchEmbedder{}, &fakeNotifier{})

	doc, err := p.Ingest(context.Background(), "tenant-a", textUpload(strings.Repeat("content ", 20)))
	require.NoError(t, err)

	index.deleteErr = domain.Dependency("vector store unavailable", errors.New("conn refused"))
	err = p.Delete(context.Background(), "tenant-a", doc.ID)
	require.Error(t, err)
	assert.Len(t, store.docs, 1, "row must survive a failed vector delete")
}

func TestDeleteUnknownDocument(t *testing.T) {
	store := newFakeDocStore(&models.Tenant{ID: "tenant-a", MaxDocuments: 10})
	p := newTestProcessor(store, &fakeIndex{}, &fakeBatchEmbedder{}, &fakeNotifier{})

	err := p.Delete(context.Background(), "tenant-a", "missing")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestDeleteOtherTenantsDocument(t *testing.T) {
	store := newFakeDocStore(&models.Tenant{ID: "tenant-a", MaxDocuments: 10})
	index := &fakeIndex{}
	p := newTestProcessor(store, index, &fakeBatchEmbedder{}, &fakeNotifier{})

	doc, err := p.Ingest(context.Background(), "tenant-a", textUpload(strings.Repeat("content ", 20)))
	require.NoError(t, err)

	err = p.Delete(context.Background(), "tenant-b", doc.ID)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	assert.Len(t, store.docs, 1)
}

func TestUpdateMetadataPropagatesToIndex(t *testing.T) {
	store := newFakeDocStore(&models.Tenant{ID: "tenant-a", MaxDocuments: 10})
	index := &fakeIndex{}
	p := newTestProcessor(store, index, &fakeBatchEmbedder{}, &fakeNotifier{})

	doc, err := p.Ingest(context.Background(), "tenant-a", textUpload(strings.Repeat("content ", 20)))
	require.NoError(t, err)

	category := "updated"
	updated, err := p.UpdateMetadata(context.Background(), "tenant-a", doc.ID, MetadataUpdate{
		Category: &category,
		Tags:     []string{"x", "y"},
	})
	require.NoError(t, err)

	assert.Equal(t, "updated", updated.Category)
	assert.Equal(t, []string{"x", "y"}, updated.Tags)
	assert.Empty(t, updated.Description, "description untouched when omitted")

	require.NotNil(t, index.updatedMeta)
	assert.Equal(t, "updated", index.updatedMeta.Category)
	assert.Equal(t, []string{"x", "y"}, index.updatedMeta.Tags)
	assert.Equal(t, "tenant-a", index.updatedMeta.TenantID)
}
