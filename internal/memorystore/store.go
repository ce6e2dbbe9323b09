// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package memorystore provides an optional SQLite-backed implementation
// of convmemory.MetricsStore so question-effectiveness metrics survive
// process restarts when cross-session learning is enabled
// (Settings.Memory.CrossSessionLearning). Follows the same
// WAL/foreign-keys pragma string and CREATE-TABLE-IF-NOT-EXISTS
// schema idiom as internal/knowledge.Store.
package memorystore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/danpilot/dialogos/pkg/types"
)

const dbFile = "memory.db"

// Store manages the question-metrics SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the metrics database at dir/memory.db, creating
// the schema if it does not yet exist.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating memory directory: %w", err)
	}

	dbPath := filepath.Join(dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	const stmt = `CREATE TABLE IF NOT EXISTS question_metrics (
		fingerprint TEXT PRIMARY KEY,
		times_asked INTEGER NOT NULL,
		avg_response_length REAL NOT NULL,
		effectiveness_score REAL NOT NULL,
		information_gain_estimate REAL NOT NULL,
		last_session_id TEXT
	)`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("executing schema statement: %w", err)
	}
	return nil
}

// SaveMetrics upserts every metric in metrics into the database.
func (s *Store) SaveMetrics(metrics []*types.QuestionMetrics) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	const stmt = `INSERT INTO question_metrics
		(fingerprint, times_asked, avg_response_length, effectiveness_score, information_gain_estimate, last_session_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			times_asked=excluded.times_asked,
			avg_response_length=excluded.avg_response_length,
			effectiveness_score=excluded.effectiveness_score,
			information_gain_estimate=excluded.information_gain_estimate,
			last_session_id=excluded.last_session_id`

	for _, qm := range metrics {
		if qm == nil || qm.QuestionFingerprint == "" {
			continue
		}
		if _, err := tx.Exec(stmt,
			qm.QuestionFingerprint,
			qm.TimesAsked,
			qm.AverageResponseLength,
			qm.EffectivenessScore,
			qm.InformationGainEstimate,
			qm.LastSessionID,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("upserting metrics for %s: %w", qm.QuestionFingerprint, err)
		}
	}

	return tx.Commit()
}

// LoadMetrics returns every persisted QuestionMetrics row.
func (s *Store) LoadMetrics() ([]*types.QuestionMetrics, error) {
	rows, err := s.db.Query(`SELECT fingerprint, times_asked, avg_response_length,
		effectiveness_score, information_gain_estimate, last_session_id
		FROM question_metrics`)
	if err != nil {
		return nil, fmt.Errorf("querying metrics: %w", err)
	}
	defer rows.Close()

	var out []*types.QuestionMetrics
	for rows.Next() {
		qm := &types.QuestionMetrics{}
		if err := rows.Scan(
			&qm.QuestionFingerprint,
			&qm.TimesAsked,
			&qm.AverageResponseLength,
			&qm.EffectivenessScore,
			&qm.InformationGainEstimate,
			&qm.LastSessionID,
		); err != nil {
			return nil, fmt.Errorf("scanning metrics row: %w", err)
		}
		out = append(out, qm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating metrics rows: %w", err)
	}

	return out, nil
}
