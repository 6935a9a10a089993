package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"patch-forecast-lab/internal/domain"
	"patch-forecast-lab/internal/storage"
)

// SnapshotMetaStore implements storage.SnapshotMetaStore using PostgreSQL.
type SnapshotMetaStore struct {
	pool *Pool
}

// NewSnapshotMetaStore creates a new SnapshotMetaStore.
func NewSnapshotMetaStore(pool *Pool) *SnapshotMetaStore {
	return &SnapshotMetaStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotMetaStore = (*SnapshotMetaStore)(nil)

// Insert adds snapshot metadata. Returns ErrDuplicateKey if snapshot_id exists.
func (s *SnapshotMetaStore) Insert(ctx context.Context, m *domain.SnapshotMeta) error {
	query := `
		INSERT INTO model_snapshots (
			snapshot_id, run_id, epoch, val_loss, path, checksum, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.pool.Exec(ctx, query,
		m.SnapshotID,
		m.RunID,
		m.Epoch,
		m.ValLoss,
		m.Path,
		m.Checksum,
		m.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert snapshot meta: %w", err)
	}
	return nil
}

// GetByID retrieves metadata by snapshot ID. Returns ErrNotFound if not exists.
func (s *SnapshotMetaStore) GetByID(ctx context.Context, snapshotID string) (*domain.SnapshotMeta, error) {
	query := `
		SELECT snapshot_id, run_id, epoch, val_loss, path, checksum, created_at
		FROM model_snapshots
		WHERE snapshot_id = $1
	`

	row := s.pool.QueryRow(ctx, query, snapshotID)
	m, err := scanSnapshotMeta(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot meta by id: %w", err)
	}
	return m, nil
}

// GetByRunID retrieves all snapshots taken during a run, ordered by epoch ASC.
func (s *SnapshotMetaStore) GetByRunID(ctx context.Context, runID string) ([]*domain.SnapshotMeta, error) {
	query := `
		SELECT snapshot_id, run_id, epoch, val_loss, path, checksum, created_at
		FROM model_snapshots
		WHERE run_id = $1
		ORDER BY epoch ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get snapshot metas by run id: %w", err)
	}
	defer rows.Close()

	var metas []*domain.SnapshotMeta
	for rows.Next() {
		m, err := scanSnapshotMeta(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot meta row: %w", err)
		}
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot meta rows: %w", err)
	}
	return metas, nil
}

// scanSnapshotMeta scans a single row into a SnapshotMeta.
func scanSnapshotMeta(row pgx.Row) (*domain.SnapshotMeta, error) {
	var m domain.SnapshotMeta
	err := row.Scan(
		&m.SnapshotID,
		&m.RunID,
		&m.Epoch,
		&m.ValLoss,
		&m.Path,
		&m.Checksum,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
