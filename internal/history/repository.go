package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"grocery-planner/internal/cart"
)

const sqliteTime = "2006-01-02 15:04:05"

// StagedCart is a stored record of one successful staging.
type StagedCart struct {
	ID              int64
	MealType        string
	LocationID      string
	IngredientCount int
	Payload         cart.Payload
	Response        json.RawMessage
	CreatedAt       time.Time
}

// Repository is a database-backed log of staged carts and saved reports.
// Session state is never written here.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository.
func NewRepository(d *sql.DB) *Repository {
	return &Repository{db: d}
}

// RecordStage stores a staged payload with the backend's raw response.
func (r *Repository) RecordStage(ctx context.Context, payload cart.Payload, locationID string, resp cart.Response) (int64, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal staged payload: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO staged_carts (meal_type, location_id, ingredient_count, payload, response, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(payload.MealKind), locationID, payload.IngredientCount(),
		string(payloadJSON), string(resp), time.Now().UTC().Format(sqliteTime),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert staged cart: %w", err)
	}
	return res.LastInsertId()
}

// RecordReport stores where a report was saved.
func (r *Repository) RecordReport(ctx context.Context, stagedCartID int64, path string, size int, contentType string) error {
	var ref any
	if stagedCartID > 0 {
		ref = stagedCartID
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO saved_reports (staged_cart_id, path, size_bytes, content_type, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		ref, path, size, contentType, time.Now().UTC().Format(sqliteTime),
	)
	if err != nil {
		return fmt.Errorf("failed to insert saved report: %w", err)
	}
	return nil
}

// ListRecentStages retrieves the N most recent staged carts.
func (r *Repository) ListRecentStages(ctx context.Context, limit int) ([]StagedCart, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, meal_type, location_id, ingredient_count, payload, response, created_at
		 FROM staged_carts
		 ORDER BY id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list staged carts: %w", err)
	}
	defer rows.Close()

	var carts []StagedCart
	for rows.Next() {
		var (
			c        StagedCart
			payload  string
			response string
		)
		// the driver decodes DATETIME columns into time.Time
		if err := rows.Scan(&c.ID, &c.MealType, &c.LocationID, &c.IngredientCount, &payload, &response, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan staged cart: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &c.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal staged payload %d: %w", c.ID, err)
		}
		c.Response = json.RawMessage(response)
		carts = append(carts, c)
	}
	return carts, rows.Err()
}

// CountReports returns how many reports were saved for a staged cart.
func (r *Repository) CountReports(ctx context.Context, stagedCartID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM saved_reports WHERE staged_cart_id = ?`, stagedCartID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return n, nil
}
