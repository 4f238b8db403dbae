package main

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-categorizer/internal/infra/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresTarget struct {
	pool *pgxpool.Pool
}

func newPostgresTarget(ctx context.Context, url string) (*postgresTarget, error) {
	pool, err := postgres.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	return &postgresTarget{pool: pool}, nil
}

func (p *postgresTarget) EnsureSchemaMigrationsTable(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			checksum   TEXT,
			applied_by TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("EnsureSchemaMigrationsTable: %w", err)
	}
	return nil
}

func (p *postgresTarget) AppliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT version, name, applied_at, COALESCE(checksum, ''), COALESCE(applied_by, '')
		FROM schema_migrations
		ORDER BY version ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("AppliedMigrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (AppliedMigration, error) {
		var am AppliedMigration
		err := row.Scan(&am.Version, &am.Name, &am.AppliedAt, &am.Checksum, &am.AppliedBy)
		return am, err
	})
	if err != nil {
		return nil, fmt.Errorf("AppliedMigrations: %w", err)
	}
	return applied, nil
}

// Execute runs the migration in a transaction so a failed file leaves no
// partial schema behind.
func (p *postgresTarget) Execute(ctx context.Context, m Migration) error {
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, m.SQL)
		return err
	})
	if err != nil {
		return fmt.Errorf("executing migration %04d_%s: %w", m.Version, m.Name, err)
	}
	return nil
}

func (p *postgresTarget) Record(ctx context.Context, m Migration, appliedBy string) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO schema_migrations (version, name, checksum, applied_by)
		VALUES ($1, $2, $3, $4)
	`, m.Version, m.Name, m.Checksum, appliedBy)
	if err != nil {
		return fmt.Errorf("recording migration %04d_%s: %w", m.Version, m.Name, err)
	}
	return nil
}

func (p *postgresTarget) Close() error {
	p.pool.Close()
	return nil
}
