// Package store persists network plan jobs in PostgreSQL so that results
// outlive the in-memory queue and survive restarts.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

// List limits applied by ListPlans
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ErrNotFound is returned when no plan has the requested ID
var ErrNotFound = errors.New("plan not found")

// Client wraps a PostgreSQL database connection
type Client struct {
	db  *sql.DB
	dsn string
}

// NewClient creates a new database client with connection pooling
func NewClient(dsn string) (*Client, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (also failed to close: %w)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{db: db, dsn: dsn}, nil
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// HealthCheck verifies database connectivity
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Migrate applies the embedded schema migrations. It opens its own connection
// because the migration driver closes the handle it is given.
func (c *Client) Migrate() error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	db, err := sql.Open("postgres", c.dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() { _, _ = m.Close() }() // nolint:errcheck // Close in defer, error not actionable

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SavePlan inserts a plan or updates its mutable columns
func (c *Client) SavePlan(ctx context.Context, p *Plan) error {
	query := `
		INSERT INTO network_plans (
			id, status, point_count, total_cost, request, result,
			error, created_at, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status       = EXCLUDED.status,
			total_cost   = EXCLUDED.total_cost,
			result       = EXCLUDED.result,
			error        = EXCLUDED.error,
			started_at   = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
	`

	_, err := c.db.ExecContext(ctx, query,
		p.ID,
		p.Status,
		p.PointCount,
		nullFloat(p.TotalCost),
		jsonParam(p.Request),
		jsonParam(p.Result),
		p.Error,
		p.CreatedAt,
		nullTime(p.StartedAt),
		nullTime(p.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("save plan failed: %w", err)
	}

	return nil
}

// GetPlan retrieves a plan by ID
func (c *Client) GetPlan(ctx context.Context, id string) (*Plan, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	query := `
		SELECT id, status, point_count, total_cost, request, result,
			error, created_at, started_at, completed_at
		FROM network_plans
		WHERE id = $1
	`

	p, err := scanPlan(c.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	return p, nil
}

// ListPlans returns plans newest first, optionally filtered by status
func (c *Client) ListPlans(ctx context.Context, status string, limit, offset int) ([]*Plan, error) {
	query := `
		SELECT id, status, point_count, total_cost, request, result,
			error, created_at, started_at, completed_at
		FROM network_plans
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`

	if offset < 0 {
		offset = 0
	}

	rows, err := c.db.QueryContext(ctx, query, status, ClampLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }() // nolint:errcheck // Close in defer, error not actionable

	plans := []*Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		plans = append(plans, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return plans, nil
}

// ClampLimit applies the default and maximum page sizes
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(row scanner) (*Plan, error) {
	var (
		p           Plan
		totalCost   sql.NullFloat64
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)

	err := row.Scan(
		&p.ID,
		&p.Status,
		&p.PointCount,
		&totalCost,
		&p.Request,
		&p.Result,
		&p.Error,
		&p.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if totalCost.Valid {
		p.TotalCost = &totalCost.Float64
	}
	if startedAt.Valid {
		p.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		p.CompletedAt = &completedAt.Time
	}

	return &p, nil
}

// jsonParam passes JSON as text; lib/pq would otherwise encode []byte as bytea
func jsonParam(raw []byte) any {
	if raw == nil {
		return nil
	}
	return string(raw)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
