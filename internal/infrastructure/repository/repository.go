// Package repository provides PostgreSQL persistence for samples,
// anomalies, thresholds, suppressions, and patterns.
package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/davidleathers/health-insights-backend/internal/domain/health"
)

// db is satisfied by both *pgxpool.Pool and pgx.Tx so repositories can run
// inside or outside a transaction.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func metricNames(metricSet []health.Metric) []string {
	names := make([]string, len(metricSet))
	for i, m := range metricSet {
		names[i] = m.String()
	}
	return names
}
