package milvus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/domain"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/pkg/logger"
)

// Client is the gateway to the shared vector collection. All tenants share one
// collection; isolation happens through the tenant_id payload field and the
// filter expression passed to Search.
type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

// ChunkMetadata is the payload attached to every point. tenant_id must always
// equal the owning document's tenant.
type ChunkMetadata struct {
	TenantID    string
	DocumentID  string
	FileName    string
	FileType    string
	FileSize    int64
	Category    string
	Tags        []string
	UploadDate  int64
	Description string
}

type ChunkPoint struct {
	ID        string
	Embedding []float32
	Text      string
	Meta      ChunkMetadata
}

type SearchResult struct {
	ChunkID    string
	Text       string
	TenantID   string
	DocumentID string
	FileName   string
	FileType   string
	Category   string
	Tags       []string
	Score      float32
}

func NewClient(endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	cfg := client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	}

	c, err := client.NewClient(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) EnsureCollection(ctx context.Context) error {
	has, err := c.client.HasCollection(ctx, c.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", c.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: c.collectionName,
		Description:    "Tenant-scoped document chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "96"},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", c.vectorDim),
				},
			},
			{
				Name:       "tenant_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "document_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "file_name",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:       "file_type",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "32"},
			},
			{
				Name:     "file_size",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:       "category",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:     "tags",
				DataType: entity.FieldTypeJSON,
			},
			{
				Name:     "upload_date",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:       "description",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "1024"},
			},
			{
				Name:       "text",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "4096"},
			},
		},
	}

	err = c.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to build vector index: %w", err)
	}
	err = c.client.CreateIndex(ctx, c.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	// Filtered search hits tenant_id on every request.
	scalarIdx := entity.NewScalarIndex()
	err = c.client.CreateIndex(ctx, c.collectionName, "tenant_id", scalarIdx, false)
	if err != nil {
		return fmt.Errorf("failed to create tenant index: %w", err)
	}

	err = c.client.LoadCollection(ctx, c.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", c.collectionName))

	return nil
}

// Upsert writes points by chunk_id; re-upserting an id overwrites the point.
func (c *Client) Upsert(ctx context.Context, points []ChunkPoint) error {
	if len(points) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(points))
	embeddings := make([][]float32, len(points))
	tenantIDs := make([]string, len(points))
	documentIDs := make([]string, len(points))
	fileNames := make([]string, len(points))
	fileTypes := make([]string, len(points))
	fileSizes := make([]int64, len(points))
	categories := make([]string, len(points))
	tags := make([][]byte, len(points))
	uploadDates := make([]int64, len(points))
	descriptions := make([]string, len(points))
	texts := make([]string, len(points))

	for i, p := range points {
		chunkIDs[i] = p.ID
		embeddings[i] = p.Embedding
		tenantIDs[i] = p.Meta.TenantID
		documentIDs[i] = p.Meta.DocumentID
		fileNames[i] = p.Meta.FileName
		fileTypes[i] = p.Meta.FileType
		fileSizes[i] = p.Meta.FileSize
		categories[i] = p.Meta.Category
		uploadDates[i] = p.Meta.UploadDate
		descriptions[i] = p.Meta.Description
		texts[i] = p.Text

		tagList := p.Meta.Tags
		if tagList == nil {
			tagList = []string{}
		}
		tagsJSON, err := json.Marshal(tagList)
		if err != nil {
			return fmt.Errorf("failed to encode tags: %w", err)
		}
		tags[i] = tagsJSON
	}

	_, err := c.client.Upsert(
		ctx,
		c.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", c.vectorDim, embeddings),
		entity.NewColumnVarChar("tenant_id", tenantIDs),
		entity.NewColumnVarChar("document_id", documentIDs),
		entity.NewColumnVarChar("file_name", fileNames),
		entity.NewColumnVarChar("file_type", fileTypes),
		entity.NewColumnInt64("file_size", fileSizes),
		entity.NewColumnVarChar("category", categories),
		entity.NewColumnJSONBytes("tags", tags),
		entity.NewColumnInt64("upload_date", uploadDates),
		entity.NewColumnVarChar("description", descriptions),
		entity.NewColumnVarChar("text", texts),
	)
	if err != nil {
		return domain.Dependency("vector store upsert failed", err)
	}

	err = c.client.Flush(ctx, c.collectionName, false)
	if err != nil {
		return domain.Dependency("vector store flush failed", err)
	}

	logger.Info("Chunks upserted into vector store", zap.Int("count", len(points)))

	return nil
}

// DeleteByDocument removes every point carrying the document id.
func (c *Client) DeleteByDocument(ctx context.Context, documentID string) error {
	expr := fmt.Sprintf(`document_id == "%s"`, documentID)

	err := c.client.Delete(ctx, c.collectionName, "", expr)
	if err != nil {
		return domain.Dependency("vector store delete failed", err)
	}

	logger.Info("Document chunks deleted from vector store",
		zap.String("document_id", documentID),
	)
	return nil
}

// UpdatePayload rewrites the metadata on every point of a document. Milvus has
// no in-place payload update, so the points are read back and re-upserted with
// the new metadata under their original ids.
func (c *Client) UpdatePayload(ctx context.Context, documentID string, meta ChunkMetadata) error {
	expr := fmt.Sprintf(`document_id == "%s"`, documentID)

	rs, err := c.client.Query(ctx, c.collectionName, nil, expr,
		[]string{"chunk_id", "embedding", "text"})
	if err != nil {
		return domain.Dependency("vector store query failed", err)
	}

	var chunkIDs []string
	var embeddings [][]float32
	var texts []string

	for _, col := range rs {
		switch col.Name() {
		case "chunk_id":
			if vc, ok := col.(*entity.ColumnVarChar); ok {
				chunkIDs = vc.Data()
			}
		case "embedding":
			if fv, ok := col.(*entity.ColumnFloatVector); ok {
				embeddings = fv.Data()
			}
		case "text":
			if vc, ok := col.(*entity.ColumnVarChar); ok {
				texts = vc.Data()
			}
		}
	}

	if len(chunkIDs) == 0 {
		return nil
	}
	if len(embeddings) != len(chunkIDs) || len(texts) != len(chunkIDs) {
		return fmt.Errorf("inconsistent point data for document %s", documentID)
	}

	points := make([]ChunkPoint, len(chunkIDs))
	for i := range chunkIDs {
		points[i] = ChunkPoint{
			ID:        chunkIDs[i],
			Embedding: embeddings[i],
			Text:      texts[i],
			Meta:      meta,
		}
	}

	return c.Upsert(ctx, points)
}

// Search runs similarity search constrained by expr. Points failing the
// expression are never returned; callers build expr through the filter
// builder so the tenant clause is always present.
func (c *Client) Search(ctx context.Context, queryEmbedding []float32, expr string, topK int) ([]SearchResult, error) {
	sp, err := entity.NewIndexIvfFlatSearchParam(16)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	outputFields := []string{"chunk_id", "text", "tenant_id", "document_id",
		"file_name", "file_type", "category", "tags"}

	searchResult, err := c.client.Search(
		ctx,
		c.collectionName,
		[]string{},
		expr,
		outputFields,
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, domain.Dependency("vector store search failed", err)
	}

	results := make([]SearchResult, 0)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			result := SearchResult{Score: sr.Scores[i]}

			result.ChunkID = varcharAt(sr.Fields.GetColumn("chunk_id"), i)
			result.Text = varcharAt(sr.Fields.GetColumn("text"), i)
			result.TenantID = varcharAt(sr.Fields.GetColumn("tenant_id"), i)
			result.DocumentID = varcharAt(sr.Fields.GetColumn("document_id"), i)
			result.FileName = varcharAt(sr.Fields.GetColumn("file_name"), i)
			result.FileType = varcharAt(sr.Fields.GetColumn("file_type"), i)
			result.Category = varcharAt(sr.Fields.GetColumn("category"), i)
			result.Tags = tagsAt(sr.Fields.GetColumn("tags"), i)

			results = append(results, result)
		}
	}

	logger.Info("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
		zap.String("filter", expr),
	)

	return results, nil
}

func varcharAt(col entity.Column, i int) string {
	if col == nil {
		return ""
	}
	v, err := col.Get(i)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func tagsAt(col entity.Column, i int) []string {
	if col == nil {
		return nil
	}
	v, err := col.Get(i)
	if err != nil {
		return nil
	}
	raw, ok := v.([]byte)
	if !ok {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil
	}
	return tags
}
