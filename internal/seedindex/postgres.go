package seedindex

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSnapshot stores the index in the patient_seeds table. A known seed
// is never overwritten by the unknown marker.
type PostgresSnapshot struct {
	db *pgxpool.Pool
}

// NewPostgresSnapshot creates a PostgresSnapshot.
func NewPostgresSnapshot(db *pgxpool.Pool) *PostgresSnapshot {
	return &PostgresSnapshot{db: db}
}

// Load implements Snapshotter.
func (p *PostgresSnapshot) Load(ctx context.Context) ([]Entry, error) {
	rows, err := p.db.Query(ctx, `SELECT address, seed FROM patient_seeds ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("query patient_seeds: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Address, &e.Seed); err != nil {
			return nil, fmt.Errorf("scan patient_seeds: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const upsertSeed = `
	INSERT INTO patient_seeds (address, seed, updated_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (address) DO UPDATE
	SET seed = EXCLUDED.seed, updated_at = NOW()
	WHERE patient_seeds.seed = 'unknown' AND EXCLUDED.seed <> 'unknown'`

var _ Upserter = (*PostgresSnapshot)(nil)

// Upsert implements Upserter with a single statement.
func (p *PostgresSnapshot) Upsert(ctx context.Context, e Entry) error {
	if _, err := p.db.Exec(ctx, upsertSeed, e.Address, e.Seed); err != nil {
		return fmt.Errorf("upsert patient_seeds: %w", err)
	}
	return nil
}

// Save implements Snapshotter. Rows are upserted; rows absent from entries
// are left in place.
func (p *PostgresSnapshot) Save(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(upsertSeed, e.Address, e.Seed)
	}
	br := p.db.SendBatch(ctx, batch)
	defer br.Close()
	for range entries {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert patient_seeds: %w", err)
		}
	}
	return nil
}
