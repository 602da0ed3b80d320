package settlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/confidential-ledger/internal/ledger"
)

// SQLiteRecordStore implements RecordStore on SQLite.
type SQLiteRecordStore struct {
	db *sql.DB
}

// NewSQLiteRecordStore creates the store and ensures the schema exists.
func NewSQLiteRecordStore(db *sql.DB) (*SQLiteRecordStore, error) {
	s := &SQLiteRecordStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to init settlement schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteRecordStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settlements (
		transaction_id INTEGER PRIMARY KEY,
		venue_id INTEGER NOT NULL,
		state TEXT NOT NULL,
		sender_affirmed INTEGER NOT NULL DEFAULT 0,
		receiver_affirmed INTEGER NOT NULL DEFAULT 0,
		mediator_affirmed INTEGER NOT NULL DEFAULT 0,
		pending_affirms INTEGER NOT NULL,
		memo TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS settlement_events (
		event_id INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_id INTEGER NOT NULL,
		leg_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		block_hash BLOB NOT NULL,
		event_index INTEGER NOT NULL,
		pending_affirms INTEGER NOT NULL,
		memo TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS processed_blocks (
		height INTEGER PRIMARY KEY,
		hash BLOB NOT NULL,
		event_count INTEGER NOT NULL,
		processed_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS applied_events (
		block_hash BLOB NOT NULL,
		event_index INTEGER NOT NULL,
		applied_at TIMESTAMP NOT NULL,
		PRIMARY KEY (block_hash, event_index)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveSettlement inserts or replaces the record for its transaction id.
func (s *SQLiteRecordStore) SaveSettlement(ctx context.Context, rec *SettlementRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settlements (transaction_id, venue_id, state, sender_affirmed, receiver_affirmed, mediator_affirmed, pending_affirms, memo, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(transaction_id) DO UPDATE SET
			state = excluded.state,
			sender_affirmed = excluded.sender_affirmed,
			receiver_affirmed = excluded.receiver_affirmed,
			mediator_affirmed = excluded.mediator_affirmed,
			pending_affirms = excluded.pending_affirms,
			memo = excluded.memo,
			updated_at = excluded.updated_at`,
		rec.TransactionID, rec.VenueID, rec.State,
		rec.SenderAffirmed, rec.ReceiverAffirmed, rec.MediatorAffirmed,
		rec.PendingAffirms, rec.Memo, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save settlement: %w", err)
	}
	return nil
}

// GetSettlement fetches the record for a transaction id.
func (s *SQLiteRecordStore) GetSettlement(ctx context.Context, transactionID uint64) (*SettlementRecord, error) {
	var rec SettlementRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT transaction_id, venue_id, state, sender_affirmed, receiver_affirmed, mediator_affirmed, pending_affirms, memo, created_at, updated_at
		 FROM settlements WHERE transaction_id = ?`,
		transactionID).Scan(&rec.TransactionID, &rec.VenueID, &rec.State,
		&rec.SenderAffirmed, &rec.ReceiverAffirmed, &rec.MediatorAffirmed,
		&rec.PendingAffirms, &rec.Memo, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.NotFound("settlement")
		}
		return nil, fmt.Errorf("failed to query settlement: %w", err)
	}
	return &rec, nil
}

// ListSettlements returns all settlement records.
func (s *SQLiteRecordStore) ListSettlements(ctx context.Context) ([]*SettlementRecord, error) {
	rows, err := s.db.QueryContext(ctx,
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

// AppendSettlementEvent appends one event to a transaction's history.
func (s *SQLiteRecordStore) AppendSettlementEvent(ctx context.Context, ev *SettlementEventRecord) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO settlement_events (transaction_id, leg_id, kind, block_hash, event_index, pending_affirms, memo, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.TransactionID, ev.LegID, ev.Kind, ev.BlockHash, ev.EventIndex, ev.PendingAffirms, ev.Memo, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append settlement event: %w", err)
	}
	ev.ID, _ = res.LastInsertId()
	return nil
}

// ListSettlementEvents returns the event history for a transaction.
func (s *SQLiteRecordStore) ListSettlementEvents(ctx context.Context, transactionID uint64) ([]*SettlementEventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, transaction_id, leg_id, kind, block_hash, event_index, pending_affirms, memo, created_at
		 FROM settlement_events WHERE transaction_id = ? ORDER BY event_id`,
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

// RecordBlock marks a block processed.
func (s *SQLiteRecordStore) RecordBlock(ctx context.Context, block *BlockRecord) error {
	if block.ProcessedAt.IsZero() {
		block.ProcessedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO processed_blocks (height, hash, event_count, processed_at)
		 VALUES (?, ?, ?, ?)`,
		block.Height, block.Hash, block.EventCount, block.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to record block: %w", err)
	}
	return nil
}

// LastProcessedHeight returns the highest recorded block height, 0 when no
// block was processed yet.
func (s *SQLiteRecordStore) LastProcessedHeight(ctx context.Context) (uint64, error) {
	var height sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(height) FROM processed_blocks`).Scan(&height)
	if err != nil {
		return 0, fmt.Errorf("failed to query last processed height: %w", err)
	}
	if !height.Valid {
		return 0, nil
	}
	return uint64(height.Int64), nil
}

// IsEventApplied reports whether (block hash, event index) was applied.
func (s *SQLiteRecordStore) IsEventApplied(ctx context.Context, blockHash []byte, eventIndex uint32) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM applied_events WHERE block_hash = ? AND event_index = ?`,
		blockHash, eventIndex).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query applied event: %w", err)
	}
	return n > 0, nil
}

// MarkEventApplied records (block hash, event index); false means the event
// was applied before.
func (s *SQLiteRecordStore) MarkEventApplied(ctx context.Context, blockHash []byte, eventIndex uint32) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO applied_events (block_hash, event_index, applied_at) VALUES (?, ?, ?)`,
		blockHash, eventIndex, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to mark event applied: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected == 1, nil
}
