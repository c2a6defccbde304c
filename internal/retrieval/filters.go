package retrieval

import (
	"fmt"
	"strings"
	"time"

	"github.com/ObiomaIkpe/AI-multitenant-SaaS/internal/domain"
)

// FilterRequest carries the optional query-time filters. Every field is
// independently optional; the tenant scope is never part of the request and
// comes from the authenticated identity only.
type FilterRequest struct {
	DocumentIDs []string
	Categories  []string
	Tags        []string
	FileTypes   []string
	DateFrom    *time.Time
	DateTo      *time.Time
}

func (r *FilterRequest) empty() bool {
	return r == nil || (len(r.DocumentIDs) == 0 && len(r.Categories) == 0 &&
		len(r.Tags) == 0 && len(r.FileTypes) == 0 && r.DateFrom == nil && r.DateTo == nil)
}

// BuildFilterExpr translates the tenant id plus optional filters into a single
// conjunctive Milvus boolean expression. The tenant clause is always emitted
// first and cannot be removed by any input; it is the sole query-time security
// boundary between tenants. Malformed values are rejected, never dropped.
func BuildFilterExpr(tenantID string, req *FilterRequest) (string, error) {
	if err := validateValue(tenantID); err != nil {
		return "", domain.Validation("invalid tenant id")
	}

	clauses := []string{fmt.Sprintf(`tenant_id == %s`, quote(tenantID))}

	if req != nil {
		inClauses := []struct {
			field  string
			values []string
		}{
			{"document_id", req.DocumentIDs},
			{"category", req.Categories},
			{"file_type", req.FileTypes},
		}
		for _, c := range inClauses {
			if len(c.values) == 0 {
				continue
			}
			list, err := quoteList(c.field, c.values)
			if err != nil {
				return "", err
			}
			clauses = append(clauses, fmt.Sprintf(`%s in %s`, c.field, list))
		}

		if len(req.Tags) > 0 {
			list, err := quoteList("tags", req.Tags)
			if err != nil {
				return "", err
			}
			clauses = append(clauses, fmt.Sprintf(`json_contains_any(tags, %s)`, list))
		}

		if req.DateFrom != nil {
			clauses = append(clauses, fmt.Sprintf(`upload_date >= %d`, req.DateFrom.Unix()))
		}
		if req.DateTo != nil {
			clauses = append(clauses, fmt.Sprintf(`upload_date <= %d`, req.DateTo.Unix()))
		}
	}

	return strings.Join(clauses, " && "), nil
}

// AppliedFiltersSummary reports only the filters actually applied, for query
// audit logs and responses.
func AppliedFiltersSummary(req *FilterRequest) map[string]interface{} {
	summary := make(map[string]interface{})

	if req != nil {
		if len(req.DocumentIDs) > 0 {
			summary["document_ids"] = req.DocumentIDs
		}
		if len(req.Categories) > 0 {
			summary["categories"] = req.Categories
		}
		if len(req.Tags) > 0 {
			summary["tags"] = req.Tags
		}
		if len(req.FileTypes) > 0 {
			summary["file_types"] = req.FileTypes
		}
		if req.DateFrom != nil || req.DateTo != nil {
			dateRange := make(map[string]interface{})
			if req.DateFrom != nil {
				dateRange["from"] = req.DateFrom.UTC().Format(time.RFC3339)
			}
			if req.DateTo != nil {
				dateRange["to"] = req.DateTo.UTC().Format(time.RFC3339)
			}
			summary["date_range"] = dateRange
		}
	}

	if len(summary) == 0 {
		summary["scope"] = "all_documents"
	}
	return summary
}

// validateValue rejects values that could break out of a quoted expression
// literal. Rejecting keeps the filter conjunctive; silently dropping a value
// would change query semantics.
func validateValue(v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("empty value")
	}
	if strings.ContainsAny(v, "\"\\\n\r") {
		return fmt.Errorf("value contains forbidden characters")
	}
	return nil
}

func quote(v string) string {
	return `"` + v + `"`
}

func quoteList(field string, values []string) (string, error) {
	quoted := make([]string, len(values))
	for i, v := range values {
		if err := validateValue(v); err != nil {
			return "", domain.Validation("invalid %s filter value %q: %v", field, v, err)
		}
		quoted[i] = quote(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]", nil
}
