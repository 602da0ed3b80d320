package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/confidential-ledger/internal/ledger"
)

// PostgresRecordStore implements RecordStore on Postgres.
type PostgresRecordStore struct {
	Pool *pgxpool.Pool
}

// NewPostgresRecordStore creates the store and ensures the schema exists.
func NewPostgresRecordStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresRecordStore, error) {
	s := &PostgresRecordStore{Pool: pool}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to init settlement schema: %w", err)
	}
	return s, nil
}

func (s *PostgresRecordStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS settlements (
		transaction_id BIGINT PRIMARY KEY,
		venue_id BIGINT NOT NULL,
		state TEXT NOT NULL,
		sender_affirmed BOOLEAN NOT NULL DEFAULT FALSE,
		receiver_affirmed BOOLEAN NOT NULL DEFAULT FALSE,
		mediator_affirmed BOOLEAN NOT NULL DEFAULT FALSE,
		pending_affirms INTEGER NOT NULL,
		memo TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS settlement_events (
		event_id BIGSERIAL PRIMARY KEY,
		transaction_id BIGINT NOT NULL,
		leg_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		block_hash BYTEA NOT NULL,
		event_index INTEGER NOT NULL,
		pending_affirms INTEGER NOT NULL,
		memo TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS processed_blocks (
		height BIGINT PRIMARY KEY,
		hash BYTEA NOT NULL,
		event_count INTEGER NOT NULL,
		processed_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS applied_events (
		block_hash BYTEA NOT NULL,
		event_index INTEGER NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (block_hash, event_index)
	);
	`
	_, err := s.Pool.Exec(ctx, schema)
	return err
}

func (s *PostgresRecordStore) SaveSettlement(ctx context.Context, rec *SettlementRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO settlements (transaction_id, venue_id, state, sender_affirmed, receiver_affirmed, mediator_affirmed, pending_affirms, memo, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (transaction_id) DO UPDATE SET
			state = EXCLUDED.state,
			sender_affirmed = EXCLUDED.sender_affirmed,
			receiver_affirmed = EXCLUDED.receiver_affirmed,
			mediator_affirmed = EXCLUDED.mediator_affirmed,
			pending_affirms = EXCLUDED.pending_affirms,
			memo = EXCLUDED.memo,
			updated_at = EXCLUDED.updated_at`,
		rec.TransactionID, rec.VenueID, rec.State,
		rec.SenderAffirmed, rec.ReceiverAffirmed, rec.MediatorAffirmed,
		rec.PendingAffirms, rec.Memo, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save settlement: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) GetSettlement(ctx context.Context, transactionID uint64) (*SettlementRecord, error) {
	var rec SettlementRecord
	err := s.Pool.QueryRow(ctx,
		`SELECT transaction_id, venue_id, state, sender_affirmed, receiver_affirmed, mediator_affirmed, pending_affirms, memo, created_at, updated_at
		 FROM settlements WHERE transaction_id = $1`,
		transactionID).Scan(&rec.TransactionID, &rec.VenueID, &rec.State,
		&rec.SenderAffirmed, &rec.ReceiverAffirmed, &rec.MediatorAffirmed,
		&rec.PendingAffirms, &rec.Memo, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.NotFound("settlement")
		}
		return nil, fmt.Errorf("failed to query settlement: %w", err)
	}
	return &rec, nil
}

func (s *PostgresRecordStore) ListSettlements(ctx context.Context) ([]*SettlementRecord, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT transaction_id, venue_id, state, sender_affirmed, receiver_affirmed, mediator_affirmed, pending_affirms, memo, created_at, updated_at
		 FROM settlements ORDER BY transaction_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlements: %w", err)
	}
	defer rows.Close()

	var out []*SettlementRecord
	for rows.Next() {
		var rec SettlementRecord
		if err := rows.Scan(&rec.TransactionID, &rec.VenueID, &rec.State,
			&rec.SenderAffirmed, &rec.ReceiverAffirmed, &rec.MediatorAffirmed,
			&rec.PendingAffirms, &rec.Memo, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan settlement: %w", err)
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

func (s *PostgresRecordStore) AppendSettlementEvent(ctx context.Context, ev *SettlementEventRecord) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO settlement_events (transaction_id, leg_id, kind, block_hash, event_index, pending_affirms, memo, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING event_id`,
		ev.TransactionID, ev.LegID, ev.Kind, ev.BlockHash, ev.EventIndex,
		ev.PendingAffirms, ev.Memo, ev.CreatedAt).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("failed to append settlement event: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) ListSettlementEvents(ctx context.Context, transactionID uint64) ([]*SettlementEventRecord, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT event_id, transaction_id, leg_id, kind, block_hash, event_index, pending_affirms, memo, created_at
		 FROM settlement_events WHERE transaction_id = $1 ORDER BY event_id`,
		transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlement events: %w", err)
	}
	defer rows.Close()

	var out []*SettlementEventRecord
	for rows.Next() {
		var ev SettlementEventRecord
		if err := rows.Scan(&ev.ID, &ev.TransactionID, &ev.LegID, &ev.Kind,
			&ev.BlockHash, &ev.EventIndex, &ev.PendingAffirms, &ev.Memo, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan settlement event: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

func (s *PostgresRecordStore) RecordBlock(ctx context.Context, block *BlockRecord) error {
	if block.ProcessedAt.IsZero() {
		block.ProcessedAt = time.Now().UTC()
	}
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO processed_blocks (height, hash, event_count, processed_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (height) DO UPDATE SET
			hash = EXCLUDED.hash,
			event_count = EXCLUDED.event_count,
			processed_at = EXCLUDED.processed_at`,
		block.Height, block.Hash, block.EventCount, block.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to record block: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) LastProcessedHeight(ctx context.Context) (uint64, error) {
	var height sql.NullInt64
	err := s.Pool.QueryRow(ctx, `SELECT MAX(height) FROM processed_blocks`).Scan(&height)
	if err != nil {
		return 0, fmt.Errorf("failed to query last processed height: %w", err)
	}
	if !height.Valid {
		return 0, nil
	}
	return uint64(height.Int64), nil
}

func (s *PostgresRecordStore) IsEventApplied(ctx context.Context, blockHash []byte, eventIndex uint32) (bool, error) {
	var n int
	err := s.Pool.QueryRow(ctx,
		`SELECT COUNT(1) FROM applied_events WHERE block_hash = $1 AND event_index = $2`,
		blockHash, eventIndex).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query applied event: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresRecordStore) MarkEventApplied(ctx context.Context, blockHash []byte, eventIndex uint32) (bool, error) {
	tag, err := s.Pool.Exec(ctx,
		`INSERT INTO applied_events (block_hash, event_index, applied_at)
		 VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`,
		blockHash, eventIndex, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to mark event applied: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
