// Package store: shared row serialization helpers for the SQL backends.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BeatBard/ccs-pops/internal/models"
)

// sessionRow carries the JSON-encoded columns of one sessions row between the
// driver-specific SQL and the shared (de)serialization below.
type sessionRow struct {
	planSnapshot   sql.NullString
	outletsVisited sql.NullString
	responseData   sql.NullString
}

// encodeSessionJSON serializes the structured session fields into their JSON
// column values. Empty fields encode as NULL so legacy rows and fresh rows
// look alike.
func encodeSessionJSON(s models.Session) (plan, visited, data sql.NullString, err error) {
	if len(s.PlanSnapshot) > 0 {
		b, merr := json.Marshal(s.PlanSnapshot)
		if merr != nil {
			return plan, visited, data, fmt.Errorf("failed to marshal plan snapshot: %w", merr)
		}
		plan = sql.NullString{String: string(b), Valid: true}
	}
	if len(s.OutletsVisited) > 0 {
		b, merr := json.Marshal(s.OutletsVisited)
		if merr != nil {
			return plan, visited, data, fmt.Errorf("failed to marshal outlets visited: %w", merr)
		}
		visited = sql.NullString{String: string(b), Valid: true}
	}
	if len(s.ResponseData) > 0 {
		b, merr := json.Marshal(s.ResponseData)
		if merr != nil {
			return plan, visited, data, fmt.Errorf("failed to marshal response data: %w", merr)
		}
		data = sql.NullString{String: string(b), Valid: true}
	}
	return plan, visited, data, nil
}

// decodeSessionJSON populates the structured session fields from their JSON
// column values and canonicalizes legacy state names.
func decodeSessionJSON(s *models.Session, row sessionRow) error {
	if row.planSnapshot.Valid && row.planSnapshot.String != "" {
		if err := json.Unmarshal([]byte(row.planSnapshot.String), &s.PlanSnapshot); err != nil {
			return fmt.Errorf("failed to unmarshal plan snapshot: %w", err)
		}
	}
	if row.outletsVisited.Valid && row.outletsVisited.String != "" {
		if err := json.Unmarshal([]byte(row.outletsVisited.String), &s.OutletsVisited); err != nil {
			return fmt.Errorf("failed to unmarshal outlets visited: %w", err)
		}
	}
	if row.responseData.Valid && row.responseData.String != "" {
		if err := json.Unmarshal([]byte(row.responseData.String), &s.ResponseData); err != nil {
			return fmt.Errorf("failed to unmarshal response data: %w", err)
		}
	}
	s.Canonicalize()
	return nil
}
