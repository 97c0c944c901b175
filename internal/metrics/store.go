package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const sqliteTime = "2006-01-02 15:04:05"

// RequestMetric records one backend call.
type RequestMetric struct {
	Endpoint  string
	Status    int
	OK        bool
	LatencyMS int64
	RequestID string
	Timestamp time.Time
}

// Store handles persistence of metrics to SQLite.
type Store struct {
	db *sql.DB
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record saves a metric to the database.
func (s *Store) Record(m RequestMetric) error {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	ok := 0
	if m.OK {
		ok = 1
	}

	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO request_metrics (endpoint, status, ok, latency_ms, request_id, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.Endpoint, m.Status, ok, m.LatencyMS, m.RequestID, ts.UTC().Format(sqliteTime),
	)
	if err != nil {
		return fmt.Errorf("failed to insert request metric: %w", err)
	}
	return nil
}

// DailyUsage represents request totals for a single day.
type DailyUsage struct {
	Date         string
	Requests     int
	Failures     int
	AvgLatencyMS int64
}

// GetDailyUsage retrieves usage for the last N days, newest first.
func (s *Store) GetDailyUsage(days int) ([]DailyUsage, error) {
	since := time.Now().UTC().AddDate(0, 0, -days).Format(sqliteTime)
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT substr(timestamp, 1, 10) AS day,
		        COUNT(*),
		        SUM(CASE WHEN ok = 0 THEN 1 ELSE 0 END),
		        AVG(latency_ms)
		 FROM request_metrics
		 WHERE timestamp >= ?
		 GROUP BY day
		 ORDER BY day DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily usage: %w", err)
	}
	defer rows.Close()

	var results []DailyUsage
	for rows.Next() {
		var (
			u   DailyUsage
			avg sql.NullFloat64
		)
		if err := rows.Scan(&u.Date, &u.Requests, &u.Failures, &avg); err != nil {
			return nil, fmt.Errorf("failed to scan daily usage: %w", err)
		}
		if avg.Valid {
			u.AvgLatencyMS = int64(avg.Float64)
		}
		results = append(results, u)
	}
	return results, rows.Err()
}

// Cleanup removes records older than the specified number of days.
func (s *Store) Cleanup(olderThanDays int) (int64, error) {
	threshold := time.Now().UTC().AddDate(0, 0, -olderThanDays).Format(sqliteTime)
	res, err := s.db.ExecContext(context.Background(),
		`DELETE FROM request_metrics WHERE timestamp < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up request metrics: %w", err)
	}
	return res.RowsAffected()
}
