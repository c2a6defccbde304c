package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/domain"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/storage/models"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/vector/milvus"
)

type fakeStore struct {
	tenant *models.Tenant
	logs   []models.QueryLog
	logErr error
	tenErr error
}

func (s *fakeStore) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	if s.tenErr != nil {
		return nil, s.tenErr
	}
	return s.tenant, nil
}

func (s *fakeStore) InsertQueryLog(ctx context.Context, log *models.QueryLog) error {
	if s.logErr != nil {
		return s.logErr
	}
	s.logs = append(s.logs, *log)
	return nil
}

type fakeSearcher struct {
	expr    string
	topK    int
	results []milvus.SearchResult
	err     error
}

func (s *fakeSearcher) Search(ctx context.Context, queryEmbedding []float32, expr string, topK int) ([]milvus.SearchResult, error) {
	s.expr = expr
	s.topK = topK
	return s.results, s.err
}

type fakeEmbedder struct {
	calls int
	err   error
}

func (e *fakeEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeGenerator struct {
	answer      string
	contextText string
	err         error
}

func (g *fakeGenerator) GenerateAnswer(ctx context.Context, question, contextText string) (string, error) {
	g.contextText = contextText
	return g.answer, g.err
}

type fakeCache struct {
	embeddings map[string][]float32
	count      int64
	countErr   error
}

func (c *fakeCache) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error) {
	e, ok := c.embeddings[textHash]
	return e, ok, nil
}

func (c *fakeCache) SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error {
	if c.embeddings == nil {
		c.embeddings = make(map[string][]float32)
	}
	c.embeddings[textHash] = embedding
	return nil
}

func (c *fakeCache) IncrementDailyQueries(ctx context.Context, tenantID string) (int64, error) {
	if c.countErr != nil {
		return 0, c.countErr
	}
	c.count++
	return c.count, nil
}

func testTenant() *models.Tenant {
	return &models.Tenant{ID: "tenant-a", Name: "Acme", MaxDocuments: 100, MaxQueriesPerDay: 100}
}

func newTestPipeline(store *fakeStore, searcher *fakeSearcher, embedder *fakeEmbedder, gen *fakeGenerator, cache QueryCache) *Pipeline {
	return NewPipeline(store, searcher, embedder, gen, NewTermOverlapReranker(), cache, Config{})
}

func TestQueryEmptyRejectedAndLogged(t *testing.T) {
	store := &fakeStore{tenant: testTenant()}
	p := newTestPipeline(store, &fakeSearcher{}, &fakeEmbedder{}, &fakeGenerator{}, nil)

	_, err := p.Query(context.Background(), "tenant-a", QueryRequest{Query: "   "})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	require.Len(t, store.logs, 1)
	assert.False(t, store.logs[0].Success)
	assert.NotEmpty(t, store.logs[0].ErrorMessage)
}

func TestQueryTenantScopePropagates(t *testing.T) {
	store := &fakeStore{tenant: testTenant()}
	searcher := &fakeSearcher{results: []milvus.SearchResult{
		{ChunkID: "d1_chunk_0", DocumentID: "d1", FileName: "a.pdf", Text: "relevant text"},
	}}
	p := newTestPipeline(store, searcher, &fakeEmbedder{}, &fakeGenerator{answer: "the answer"}, nil)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := p.Query(context.Background(), "tenant-a", QueryRequest{
		Query:   "what is in the contract",
		Filters: &FilterRequest{Categories: []string{"contracts"}, DateFrom: &from},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(searcher.expr, `tenant_id == "tenant-a"`), "expr: %s", searcher.expr)
	assert.Contains(t, searcher.expr, `category in ["contracts"]`)
	assert.Equal(t, 5, searcher.topK)
}

func TestQuerySuccessResponseAndLog(t *testing.T) {
	store := &fakeStore{tenant: testTenant()}
	longText := strings.Repeat("x", 500)
	searcher := &fakeSearcher{results: []milvus.SearchResult{
		{ChunkID: "d1_chunk_0", DocumentID: "d1", FileName: "a.pdf", Category: "contracts", Text: "term sheet details " + longText},
		{ChunkID: "d2_chunk_0", DocumentID: "d2", FileName: "b.txt", Text: "unrelated"},
	}}
	gen := &fakeGenerator{answer: "The term sheet says X."}
	p := newTestPipeline(store, searcher, &fakeEmbedder{}, gen, nil)

	resp, err := p.Query(context.Background(), "tenant-a", QueryRequest{Query: "term sheet"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "The term sheet says X.", resp.Answer)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "d1", resp.Sources[0].DocumentID)
	assert.LessOrEqual(t, len([]rune(resp.Sources[0].Preview)), 203)
	assert.True(t, strings.HasSuffix(resp.Sources[0].Preview, "..."))
	assert.Equal(t, map[string]interface{}{"scope": "all_documents"}, resp.FiltersApplied)

	assert.Contains(t, gen.contextText, "[source_1] a.pdf")

	require.Len(t, store.logs, 1)
	log := store.logs[0]
	assert.True(t, log.Success)
	assert.Equal(t, resp.ID, log.ID)
	assert.Equal(t, "tenant-a", log.TenantID)
	assert.Equal(t, len(resp.Answer), log.AnswerLength)
	assert.Equal(t, 2, log.SourcesCount)
}

func TestQueryQuotaExceeded(t *testing.T) {
	store := &fakeStore{tenant: &models.Tenant{ID: "tenant-a", MaxQueriesPerDay: 2}}
	cache := &fakeCache{count: 2}
	p := newTestPipeline(store, &fakeSearcher{}, &fakeEmbedder{}, &fakeGenerator{}, cache)

	_, err := p.Query(context.Background(), "tenant-a", QueryRequest{Query: "anything"})
	require.Error(t, err)
	assert.Equal(t, domain.KindQuotaExceeded, domain.KindOf(err))

	require.Len(t, store.logs, 1)
	assert.False(t, store.logs[0].Success)
}

func TestQueryQuotaCounterUnavailableIsAdvisory(t *testing.T) {
	store := &fakeStore{tenant: testTenant()}
	cache := &fakeCache{countErr: errors.New("redis down")}
	searcher := &fakeSearcher{results: []milvus.SearchResult{{ChunkID: "c", Text: "t"}}}
	p := newTestPipeline(store, searcher, &fakeEmbedder{}, &fakeGenerator{answer: "ok"}, cache)

	_, err := p.Query(context.Background(), "tenant-a", QueryRequest{Query: "anything"})
	assert.NoError(t, err)
}

func TestQueryGenerationFailureLogged(t *testing.T) {
	store := &fakeStore{tenant: testTenant()}
	searcher := &fakeSearcher{results: []milvus.SearchResult{{ChunkID: "c", Text: "t"}}}
	genErr := domain.Dependency("llm request failed", errors.New("timeout"))
	p := newTestPipeline(store, searcher, &fakeEmbedder{}, &fakeGenerator{err: genErr}, nil)

	_, err := p.Query(context.Background(), "tenant-a", QueryRequest{Query: "anything"})
	require.Error(t, err)
	assert.Equal(t, domain.KindDependency, domain.KindOf(err))

	require.Len(t, store.logs, 1)
	assert.False(t, store.logs[0].Success)
}

func TestQueryEmbeddingCacheHitSkipsEmbedder(t *testing.T) {
	store := &fakeStore{tenant: testTenant()}
	searcher := &fakeSearcher{results: []milvus.SearchResult{{ChunkID: "c", Text: "t"}}}
	embedder := &fakeEmbedder{}
	cache := &fakeCache{}
	p := newTestPipeline(store, searcher, embedder, &fakeGenerator{answer: "ok"}, cache)

	_, err := p.Query(context.Background(), "tenant-a", QueryRequest{Query: "same question"})
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls)

	_, err = p.Query(context.Background(), "tenant-a", QueryRequest{Query: "same question"})
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.calls, "second query should hit the cache")
}

func TestQueryLogWriteFailureDoesNotMaskResult(t *testing.T) {
	store := &fakeStore{tenant: testTenant(), logErr: errors.New("disk full")}
	searcher := &fakeSearcher{results: []milvus.SearchResult{{ChunkID: "c", Text: "t"}}}
	p := newTestPipeline(store, searcher, &fakeEmbedder{}, &fakeGenerator{answer: "ok"}, nil)

	resp, err := p.Query(context.Background(), "tenant-a", QueryRequest{Query: "anything"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Answer)
}
