package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"hostelcart/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Journal is the durable record of order submissions keyed by idempotency
// token. One token maps to at most one order: a retried submission whose
// token is already here is resolved locally instead of hitting the backend.
type Journal struct {
	db     *sql.DB
	logger *zerolog.Logger
}

func Open(path string, logger *zerolog.Logger) (*Journal, error) {
	// Создаем директорию для БД, если её нет
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to journal database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create journal tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("submission journal initialized")
	return &Journal{db: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS submissions (
            token TEXT PRIMARY KEY,
            order_id TEXT NOT NULL,
            total_amount REAL NOT NULL,
            status TEXT NOT NULL,
            bookings TEXT NOT NULL,
            submitted_at DATETIME NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_submitted_at ON submissions(submitted_at)`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_order_id ON submissions(order_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// Record stores the submission outcome. The token is the primary key, so a
// second record for the same token is ignored rather than duplicated.
func (j *Journal) Record(ctx context.Context, token string, order *models.Order) error {
	bookings, err := json.Marshal(order.Bookings)
	if err != nil {
		return fmt.Errorf("failed to marshal bookings: %w", err)
	}

	query := `INSERT OR IGNORE INTO submissions (token, order_id, total_amount, status, bookings, submitted_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	_, err = j.db.ExecContext(ctx, query,
		token,
		order.OrderID,
		order.TotalAmount,
		order.Status,
		string(bookings),
		order.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record submission: %w", err)
	}
	return nil
}

// Lookup returns the order id previously recorded for the token, if any.
func (j *Journal) Lookup(ctx context.Context, token string) (string, bool, error) {
	query := `SELECT order_id FROM submissions WHERE token = ?`

	var orderID string
	err := j.db.QueryRowContext(ctx, query, token).Scan(&orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up submission: %w", err)
	}
	return orderID, true, nil
}

// ListOrders returns all recorded orders submitted within the period,
// oldest first.
func (j *Journal) ListOrders(ctx context.Context, from, to time.Time) ([]*models.Order, error) {
	query := `SELECT order_id, total_amount, status, bookings, submitted_at
              FROM submissions
              WHERE submitted_at >= ? AND submitted_at <= ?
              ORDER BY submitted_at ASC`

	rows, err := j.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order := &models.Order{}
		var bookings string
		err := rows.Scan(&order.OrderID, &order.TotalAmount, &order.Status, &bookings, &order.SubmittedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		if err := json.Unmarshal([]byte(bookings), &order.Bookings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal bookings for order %s: %w", order.OrderID, err)
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
