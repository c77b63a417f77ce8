package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source names the surface that produced a prediction.
type Source string

const (
	SourceAPI      Source = "api"
	SourceWeb      Source = "web"
	SourceCLI      Source = "cli"
	SourceTelegram Source = "telegram"
)

// Prediction is one row of the history.
type Prediction struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Source     Source    `json:"source"`
	Username   string    `json:"username,omitempty"`
	Filename   string    `json:"filename,omitempty"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence"`
}

// RecordPrediction inserts p, filling ID and CreatedAt when empty.
func (s *Store) RecordPrediction(ctx context.Context, p *Prediction) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
INSERT INTO predictions (id, created_at, source, username, filename, label, confidence)
VALUES (?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.CreatedAt, string(p.Source), p.Username, p.Filename, p.Label, p.Confidence)
	if err != nil {
		return fmt.Errorf("insert prediction %s: %w", p.ID, err)
	}
	return nil
}

// RecentPredictions returns up to limit rows, newest first.
func (s *Store) RecentPredictions(ctx context.Context, limit int) ([]Prediction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
SELECT id, created_at, source, username, filename, label, confidence
FROM predictions
ORDER BY created_at DESC, id
LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var out []Prediction
	for rows.Next() {
		var (
			p      Prediction
			source string
		)
		if err := rows.Scan(&p.ID, &p.CreatedAt, &source, &p.Username, &p.Filename, &p.Label, &p.Confidence); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		p.Source = Source(source)
		out = append(out, p)
	}
	return out, rows.Err()
}
