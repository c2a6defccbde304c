package models

import "time"

type DocumentStatus string

const (
	StatusProcessing DocumentStatus = "PROCESSING"
	StatusCompleted  DocumentStatus = "COMPLETED"
	StatusFailed     DocumentStatus = "FAILED"
)

type Tenant struct {
	ID               string
	Name             string
	OwnerID          string
	MaxDocuments     int
	MaxQueriesPerDay int
	CreatedAt        time.Time
}

type User struct {
	ID             string
	Email          string
	HashedPassword string
	IsActive       bool
	CreatedAt      time.Time
}

type Document struct {
	ID           string
	TenantID     string
	Filename     string
	FileSize     int64
	FileType     string
	Status       DocumentStatus
	ChunkCount   int
	ErrorMessage string
	ProcessedAt  *time.Time
	Category     string
	Tags         []string
	Description  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Webhook struct {
	ID                string
	TenantID          string
	URL               string
	Events            []string
	Secret            string
	IsActive          bool
	TotalDeliveries   int
	FailedDeliveries  int
	LastTriggeredAt   *time.Time
	CreatedAt         time.Time
}

func (w *Webhook) SubscribedTo(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// QueryLog is written once per query attempt and never mutated.
type QueryLog struct {
	ID             string
	TenantID       string
	QueryText      string
	FiltersApplied map[string]interface{}
	AnswerLength   int
	SourcesCount   int
	ResponseTimeMS int
	Success        bool
	ErrorMessage   string
	CreatedAt      time.Time
}

type TenantStats struct {
	TenantID      string
	TenantName    string
	DocumentCount int
	TotalQueries  int
	StorageBytes  int64
}
