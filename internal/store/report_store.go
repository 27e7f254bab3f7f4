// Package store persists the history of completed analyses. Live session
// state is never stored; reset tears down the flow but keeps the archive.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/outubeused26-commits/FloraVeda/internal/domain"
)

// ReportRecord is one archived analysis.
type ReportRecord struct {
	ID             string              `json:"id"`
	CommonName     string              `json:"commonName"`
	ScientificName string              `json:"scientificName"`
	Country        string              `json:"country"`
	HealthStatus   domain.HealthStatus `json:"healthStatus"`
	Confidence     int                 `json:"confidence"`
	Report         *domain.PlantReport `json:"report,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
}

type ReportStore struct {
	db *sql.DB
}

func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

// Record archives one successful analysis.
func (s *ReportStore) Record(ctx context.Context, report *domain.PlantReport, country string) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (id, common_name, scientific_name, country, health_status, confidence, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), report.CommonName, report.ScientificName, country,
		string(report.HealthAssessment.Status), report.HealthAssessment.Confidence, string(payload))
	if err != nil {
		return fmt.Errorf("failed to record report: %w", err)
	}
	return nil
}

// List returns archived analyses, newest first, without full payloads.
func (s *ReportStore) List(ctx context.Context) ([]*ReportRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, common_name, scientific_name, country, health_status, confidence, created_at
		FROM reports ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var records []*ReportRecord
	for rows.Next() {
		rec := &ReportRecord{}
		var status string
		if err := rows.Scan(&rec.ID, &rec.CommonName, &rec.ScientificName, &rec.Country,
			&status, &rec.Confidence, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		rec.HealthStatus = domain.HealthStatus(status)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}
	return records, nil
}

// GetByID returns one archived analysis including its full report payload.
func (s *ReportStore) GetByID(ctx context.Context, id string) (*ReportRecord, error) {
	rec := &ReportRecord{}
	var status, payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, common_name, scientific_name, country, health_status, confidence, payload, created_at
		FROM reports WHERE id = ?
	`, id).Scan(&rec.ID, &rec.CommonName, &rec.ScientificName, &rec.Country,
		&status, &rec.Confidence, &payload, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	rec.HealthStatus = domain.HealthStatus(status)
	var report domain.PlantReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report payload: %w", err)
	}
	rec.Report = &report
	return rec, nil
}
