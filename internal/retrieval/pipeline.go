package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/domain"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/metrics"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/storage/models"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/vector/milvus"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/pkg/logger"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/pkg/utils"
)

type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type Generator interface {
	GenerateAnswer(ctx context.Context, question, contextText string) (string, error)
}

type VectorSearcher interface {
	Search(ctx context.Context, queryEmbedding []float32, expr string, topK int) ([]milvus.SearchResult, error)
}

type Store interface {
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	InsertQueryLog(ctx context.Context, log *models.QueryLog) error
}

// QueryCache caches query embeddings and tracks per-tenant daily query counts.
type QueryCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
	IncrementDailyQueries(ctx context.Context, tenantID string) (int64, error)
}

type Config struct {
	TopK          int
	TopN          int
	PreviewLength int
}

// Pipeline answers a tenant's question: build filter, similarity search,
// rerank, generate, log. The tenant id is taken only from the authenticated
// identity, never from the request body.
type Pipeline struct {
	store    Store
	vectorDB VectorSearcher
	embedder Embedder
	gen      Generator
	reranker Reranker
	cache    QueryCache
	cfg      Config
}

func NewPipeline(store Store, vectorDB VectorSearcher, embedder Embedder, gen Generator, reranker Reranker, cache QueryCache, cfg Config) *Pipeline {
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	if cfg.TopN == 0 {
		cfg.TopN = 3
	}
	if cfg.PreviewLength == 0 {
		cfg.PreviewLength = 200
	}
	return &Pipeline{
		store:    store,
		vectorDB: vectorDB,
		embedder: embedder,
		gen:      gen,
		reranker: reranker,
		cache:    cache,
		cfg:      cfg,
	}
}

type QueryRequest struct {
	Query   string
	Filters *FilterRequest
}

type Source struct {
	DocumentID string   `json:"document_id"`
	FileName   string   `json:"file_name"`
	Category   string   `json:"category,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Preview    string   `json:"preview"`
	Score      float32  `json:"score"`
}

type QueryResponse struct {
	ID             string                 `json:"id"`
	Answer         string                 `json:"answer"`
	Sources        []Source               `json:"sources"`
	FiltersApplied map[string]interface{} `json:"filters_applied"`
	LatencyMS      int                    `json:"latency_ms"`
}

// Query runs one retrieval attempt. Every attempt, successful or not, leaves
// exactly one query log row; the log write itself is best-effort and never
// masks the result.
func (p *Pipeline) Query(ctx context.Context, tenantID string, req QueryRequest) (*QueryResponse, error) {
	start := time.Now()
	queryID := uuid.New().String()
	summary := AppliedFiltersSummary(req.Filters)

	fail := func(err error) error {
		metrics.QueryTotal.WithLabelValues("failure").Inc()
		metrics.QueryDuration.WithLabelValues("failure").Observe(time.Since(start).Seconds())
		p.logAttempt(ctx, queryID, tenantID, req.Query, summary, 0, 0, start, err)
		return err
	}

	if strings.TrimSpace(req.Query) == "" {
		return nil, fail(domain.Validation("query must not be empty"))
	}

	if err := p.checkQueryQuota(ctx, tenantID); err != nil {
		return nil, fail(err)
	}

	expr, err := BuildFilterExpr(tenantID, req.Filters)
	if err != nil {
		return nil, fail(err)
	}

	embedding, err := p.queryEmbedding(ctx, req.Query)
	if err != nil {
		return nil, fail(err)
	}

	candidates, err := p.vectorDB.Search(ctx, embedding, expr, p.cfg.TopK)
	if err != nil {
		return nil, fail(err)
	}
	metrics.VectorResultsCount.Observe(float64(len(candidates)))

	top := p.reranker.Rerank(req.Query, candidates, p.cfg.TopN)

	answer, err := p.gen.GenerateAnswer(ctx, req.Query, p.assembleContext(top))
	if err != nil {
		return nil, fail(err)
	}

	sources := make([]Source, 0, len(top))
	for _, r := range top {
		sources = append(sources, Source{
			DocumentID: r.DocumentID,
			FileName:   r.FileName,
			Category:   r.Category,
			Tags:       r.Tags,
			Preview:    truncate(r.Text, p.cfg.PreviewLength),
			Score:      r.Score,
		})
	}

	p.logAttempt(ctx, queryID, tenantID, req.Query, summary, len(answer), len(sources), start, nil)

	metrics.QueryTotal.WithLabelValues("success").Inc()
	metrics.QueryDuration.WithLabelValues("success").Observe(time.Since(start).Seconds())

	latency := int(time.Since(start).Milliseconds())

	logger.Info("Query processed",
		zap.String("query_id", queryID),
		zap.String("tenant_id", tenantID),
		zap.Int("sources", len(sources)),
		zap.Int("latency_ms", latency),
	)

	return &QueryResponse{
		ID:             queryID,
		Answer:         answer,
		Sources:        sources,
		FiltersApplied: summary,
		LatencyMS:      latency,
	}, nil
}

func (p *Pipeline) checkQueryQuota(ctx context.Context, tenantID string) error {
	tenant, err := p.store.GetTenant(ctx, tenantID)
	if err != nil {
		return err
	}

	if p.cache == nil || tenant.MaxQueriesPerDay <= 0 {
		return nil
	}

	count, err := p.cache.IncrementDailyQueries(ctx, tenantID)
	if err != nil {
		// Quota tracking is advisory; an unreachable counter should not take
		// the query path down.
		logger.Warn("Failed to track query quota", zap.Error(err))
		return nil
	}
	if count > int64(tenant.MaxQueriesPerDay) {
		metrics.QuotaRejections.WithLabelValues("queries_per_day").Inc()
		return domain.QuotaExceeded("daily query limit of %d reached", tenant.MaxQueriesPerDay)
	}
	return nil
}

func (p *Pipeline) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	var textHash string
	if p.cache != nil {
		textHash = utils.HashString(query)
		if embedding, ok, err := p.cache.GetEmbedding(ctx, textHash); err == nil && ok {
			return embedding, nil
		}
	}

	embedding, err := p.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if err := p.cache.SetEmbedding(ctx, textHash, embedding, time.Hour); err != nil {
			logger.Warn("Failed to cache query embedding", zap.Error(err))
		}
	}
	return embedding, nil
}

func (p *Pipeline) assembleContext(results []milvus.SearchResult) string {
	if len(results) == 0 {
		return "No matching passages found."
	}

	var sb strings.Builder
	for i, r := range results {
		sb.WriteString(fmt.Sprintf("[source_%d] %s\n%s\n\n", i+1, r.FileName, r.Text))
	}
	return sb.String()
}

// logAttempt writes the audit row after the result is final. A failed write is
// logged and swallowed so it cannot mask the query outcome.
func (p *Pipeline) logAttempt(ctx context.Context, queryID, tenantID, queryText string, summary map[string]interface{}, answerLength, sourcesCount int, start time.Time, queryErr error) {
	record := &models.QueryLog{
		ID:             queryID,
		TenantID:       tenantID,
		QueryText:      queryText,
		FiltersApplied: summary,
		AnswerLength:   answerLength,
		SourcesCount:   sourcesCount,
		ResponseTimeMS: int(time.Since(start).Milliseconds()),
		Success:        queryErr == nil,
		CreatedAt:      time.Now(),
	}
	if queryErr != nil {
		record.ErrorMessage = queryErr.Error()
	}

	if err := p.store.InsertQueryLog(ctx, record); err != nil {
		logger.Warn("Failed to write query log",
			zap.String("query_id", queryID),
			zap.Error(err),
		)
	}
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
