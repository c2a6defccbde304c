package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/domain"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/storage/models"
	"github.com/ObiomaIkpe/AI-multitenant-SaaS/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		hashed_password TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		max_documents INTEGER NOT NULL DEFAULT 100,
		max_queries_per_day INTEGER NOT NULL DEFAULT 100,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (owner_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		file_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PROCESSING',
		chunk_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		processed_at INTEGER,
		category TEXT,
		tags TEXT NOT NULL DEFAULT '[]',
		description TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_documents_category ON documents(category);

	CREATE TABLE IF NOT EXISTS webhooks (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		url TEXT NOT NULL,
		events TEXT NOT NULL DEFAULT '[]',
		secret TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		total_deliveries INTEGER NOT NULL DEFAULT 0,
		failed_deliveries INTEGER NOT NULL DEFAULT 0,
		last_triggered_at INTEGER,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_webhooks_tenant ON webhooks(tenant_id);

	CREATE TABLE IF NOT EXISTS query_logs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		query_text TEXT NOT NULL,
		filters_applied TEXT NOT NULL DEFAULT '{}',
		answer_length INTEGER,
		sources_count INTEGER,
		response_time_ms INTEGER,
		success INTEGER NOT NULL DEFAULT 1,
		error_message TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (tenant_id) REFERENCES tenants(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_query_logs_tenant ON query_logs(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_query_logs_created ON query_logs(created_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// CreateUserWithTenant inserts both rows in one transaction so registration
// never leaves a user without a tenant.
func (c *Client) CreateUserWithTenant(ctx context.Context, user *models.User, tenant *models.Tenant) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	active := 0
	if user.IsActive {
		active = 1
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, hashed_password, is_active, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.HashedPassword, active, user.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tenants (id, name, owner_id, max_documents, max_queries_per_day, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		tenant.ID, tenant.Name, tenant.OwnerID, tenant.MaxDocuments, tenant.MaxQueriesPerDay, tenant.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert tenant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Info("Tenant registered",
		zap.String("tenant_id", tenant.ID),
		zap.String("name", tenant.Name),
	)
	return nil
}

func (c *Client) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	var active int
	var createdAt int64

	err := c.db.QueryRowContext(ctx,
		`SELECT id, email, hashed_password, is_active, created_at FROM users WHERE email = ?`, email,
	).Scan(&u.ID, &u.Email, &u.HashedPassword, &active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	u.IsActive = active == 1
	u.CreatedAt = time.Unix(createdAt, 0)
	return &u, nil
}

func (c *Client) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	var t models.Tenant
	var createdAt int64

	err := c.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, max_documents, max_queries_per_day, created_at FROM tenants WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.OwnerID, &t.MaxDocuments, &t.MaxQueriesPerDay, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("tenant not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	t.CreatedAt = time.Unix(createdAt, 0)
	return &t, nil
}

func (c *Client) GetTenantByOwner(ctx context.Context, ownerID string) (*models.Tenant, error) {
	var t models.Tenant
	var createdAt int64

	err := c.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, max_documents, max_queries_per_day, created_at FROM tenants WHERE owner_id = ?`, ownerID,
	).Scan(&t.ID, &t.Name, &t.OwnerID, &t.MaxDocuments, &t.MaxQueriesPerDay, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("tenant not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	t.CreatedAt = time.Unix(createdAt, 0)
	return &t, nil
}

func (c *Client) ListTenants(ctx context.Context) ([]models.Tenant, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, owner_id, max_documents, max_queries_per_day, created_at FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []models.Tenant
	for rows.Next() {
		var t models.Tenant
		var createdAt int64
		if err := rows.Scan(&t.ID, &t.Name, &t.OwnerID, &t.MaxDocuments, &t.MaxQueriesPerDay, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		t.CreatedAt = time.Unix(createdAt, 0)
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (c *Client) DeleteTenant(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM tenants WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("tenant not found")
	}
	return nil
}

func (c *Client) GetTenantStats(ctx context.Context, tenantID string) (*models.TenantStats, error) {
	tenant, err := c.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	stats := &models.TenantStats{TenantID: tenant.ID, TenantName: tenant.Name}

	err = c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(file_size), 0) FROM documents WHERE tenant_id = ?`, tenantID,
	).Scan(&stats.DocumentCount, &stats.StorageBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	err = c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM query_logs WHERE tenant_id = ?`, tenantID,
	).Scan(&stats.TotalQueries)
	if err != nil {
		return nil, fmt.Errorf("failed to count queries: %w", err)
	}

	return stats, nil
}

func (c *Client) InsertDocument(ctx context.Context, doc *models.Document) error {
	tagsJSON, _ := json.Marshal(doc.Tags)

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO documents (id, tenant_id, filename, file_size, file_type, status, chunk_count,
			error_message, category, tags, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.TenantID, doc.Filename, doc.FileSize, doc.FileType, string(doc.Status),
		doc.ChunkCount, doc.ErrorMessage, doc.Category, string(tagsJSON), doc.Description,
		doc.CreatedAt.Unix(), doc.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	logger.Debug("Document inserted",
		zap.String("document_id", doc.ID),
		zap.String("tenant_id", doc.TenantID),
	)
	return nil
}

// UpdateDocumentStatus moves a document through its lifecycle. processedAt is
// only set on COMPLETED.
func (c *Client) UpdateDocumentStatus(ctx context.Context, id string, status models.DocumentStatus, chunkCount int, errorMessage string, processedAt *time.Time) error {
	var processed interface{}
	if processedAt != nil {
		processed = processedAt.Unix()
	}

	_, err := c.db.ExecContext(ctx, `
		UPDATE documents SET status = ?, chunk_count = ?, error_message = ?, processed_at = ?, updated_at = ?
		WHERE id = ?`,
		string(status), chunkCount, errorMessage, processed, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	return nil
}

func (c *Client) UpdateDocumentMetadata(ctx context.Context, doc *models.Document) error {
	tagsJSON, _ := json.Marshal(doc.Tags)

	res, err := c.db.ExecContext(ctx, `
		UPDATE documents SET category = ?, tags = ?, description = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?`,
		doc.Category, string(tagsJSON), doc.Description, time.Now().Unix(), doc.ID, doc.TenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update document metadata: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("document not found")
	}
	return nil
}

const documentColumns = `id, tenant_id, filename, file_size, file_type, status, chunk_count,
	COALESCE(error_message, ''), processed_at, COALESCE(category, ''), tags,
	COALESCE(description, ''), created_at, updated_at`

func (c *Client) GetDocument(ctx context.Context, tenantID, id string) (*models.Document, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ? AND tenant_id = ?`, id, tenantID)

	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("document not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func (c *Client) ListDocuments(ctx context.Context, tenantID string) ([]models.Document, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE tenant_id = ? ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (c *Client) DeleteDocument(ctx context.Context, tenantID, id string) error {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM documents WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("document not found")
	}
	return nil
}

func (c *Client) CountDocumentsByTenant(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE tenant_id = ?`, tenantID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row scannable) (*models.Document, error) {
	var doc models.Document
	var status, tagsJSON string
	var processedAt sql.NullInt64
	var createdAt, updatedAt int64

	err := row.Scan(&doc.ID, &doc.TenantID, &doc.Filename, &doc.FileSize, &doc.FileType,
		&status, &doc.ChunkCount, &doc.ErrorMessage, &processedAt, &doc.Category,
		&tagsJSON, &doc.Description, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	doc.Status = models.DocumentStatus(status)
	if processedAt.Valid {
		t := time.Unix(processedAt.Int64, 0)
		doc.ProcessedAt = &t
	}
	json.Unmarshal([]byte(tagsJSON), &doc.Tags)
	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)
	return &doc, nil
}

func (c *Client) InsertWebhook(ctx context.Context, w *models.Webhook) error {
	eventsJSON, _ := json.Marshal(w.Events)

	active := 0
	if w.IsActive {
		active = 1
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO webhooks (id, tenant_id, url, events, secret, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.TenantID, w.URL, string(eventsJSON), w.Secret, active, w.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert webhook: %w", err)
	}
	return nil
}

const webhookColumns = `id, tenant_id, url, events, secret, is_active,
	total_deliveries, failed_deliveries, last_triggered_at, created_at`

func (c *Client) GetWebhook(ctx context.Context, tenantID, id string) (*models.Webhook, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE id = ? AND tenant_id = ?`, id, tenantID)

	w, err := scanWebhook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("webhook not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook: %w", err)
	}
	return w, nil
}

func (c *Client) ListWebhooks(ctx context.Context, tenantID string) ([]models.Webhook, error) {
	return c.listWebhooks(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE tenant_id = ? ORDER BY created_at`, tenantID)
}

// ListActiveWebhooks returns only active webhooks; the notifier filters by
// subscribed event in memory.
func (c *Client) ListActiveWebhooks(ctx context.Context, tenantID string) ([]models.Webhook, error) {
	return c.listWebhooks(ctx,
		`SELECT `+webhookColumns+` FROM webhooks WHERE tenant_id = ? AND is_active = 1`, tenantID)
}

func (c *Client) listWebhooks(ctx context.Context, query string, args ...interface{}) ([]models.Webhook, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	defer rows.Close()

	var hooks []models.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		hooks = append(hooks, *w)
	}
	return hooks, rows.Err()
}

func scanWebhook(row scannable) (*models.Webhook, error) {
	var w models.Webhook
	var eventsJSON string
	var active int
	var lastTriggered sql.NullInt64
	var createdAt int64

	err := row.Scan(&w.ID, &w.TenantID, &w.URL, &eventsJSON, &w.Secret, &active,
		&w.TotalDeliveries, &w.FailedDeliveries, &lastTriggered, &createdAt)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(eventsJSON), &w.Events)
	w.IsActive = active == 1
	if lastTriggered.Valid {
		t := time.Unix(lastTriggered.Int64, 0)
		w.LastTriggeredAt = &t
	}
	w.CreatedAt = time.Unix(createdAt, 0)
	return &w, nil
}

func (c *Client) UpdateWebhook(ctx context.Context, w *models.Webhook) error {
	eventsJSON, _ := json.Marshal(w.Events)

	active := 0
	if w.IsActive {
		active = 1
	}

	res, err := c.db.ExecContext(ctx, `
		UPDATE webhooks SET url = ?, events = ?, is_active = ? WHERE id = ? AND tenant_id = ?`,
		w.URL, string(eventsJSON), active, w.ID, w.TenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update webhook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("webhook not found")
	}
	return nil
}

func (c *Client) DeleteWebhook(ctx context.Context, tenantID, id string) error {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM webhooks WHERE id = ? AND tenant_id = ?`, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete webhook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("webhook not found")
	}
	return nil
}

func (c *Client) RecordWebhookDelivery(ctx context.Context, id string, failed bool) error {
	failedInc := 0
	if failed {
		failedInc = 1
	}

	_, err := c.db.ExecContext(ctx, `
		UPDATE webhooks SET total_deliveries = total_deliveries + 1,
			failed_deliveries = failed_deliveries + ?, last_triggered_at = ?
		WHERE id = ?`,
		failedInc, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to record webhook delivery: %w", err)
	}
	return nil
}

func (c *Client) InsertQueryLog(ctx context.Context, log *models.QueryLog) error {
	filtersJSON, _ := json.Marshal(log.FiltersApplied)

	success := 0
	if log.Success {
		success = 1
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO query_logs (id, tenant_id, query_text, filters_applied, answer_length,
			sources_count, response_time_ms, success, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.TenantID, log.QueryText, string(filtersJSON), log.AnswerLength,
		log.SourcesCount, log.ResponseTimeMS, success, log.ErrorMessage, log.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert query log: %w", err)
	}

	logger.Debug("Query logged",
		zap.String("query_id", log.ID),
		zap.String("tenant_id", log.TenantID),
		zap.Bool("success", log.Success),
	)
	return nil
}

func (c *Client) ListQueryLogs(ctx context.Context, tenantID string, limit int) ([]models.QueryLog, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, tenant_id, query_text, filters_applied, answer_length, sources_count,
			response_time_ms, success, COALESCE(error_message, ''), created_at
		FROM query_logs WHERE tenant_id = ? ORDER BY created_at DESC LIMIT ?`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list query logs: %w", err)
	}
	defer rows.Close()

	var logs []models.QueryLog
	for rows.Next() {
		var l models.QueryLog
		var filtersJSON string
		var success int
		var createdAt int64

		err := rows.Scan(&l.ID, &l.TenantID, &l.QueryText, &filtersJSON, &l.AnswerLength,
			&l.SourcesCount, &l.ResponseTimeMS, &success, &l.ErrorMessage, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		json.Unmarshal([]byte(filtersJSON), &l.FiltersApplied)
		l.Success = success == 1
		l.CreatedAt = time.Unix(createdAt, 0)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
