// Package store implements the Application Store (spec §4.2, C2): the
// transactional, Postgres-backed system of record for Profiles,
// Preferences, Credentials, Companies, Roles, and Applications. State
// transitions are centralized here rather than scattered across handlers
// (spec §9), grounded on
// tracker-service/internal/kanban/service.go's move-with-history-log
// pattern.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect creates and verifies a pgxpool connection pool, mirroring
// tracker-service/internal/db.NewPostgresPool.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return pool, nil
}
