package settlement

import (
	"context"
	"time"
)

// SettlementEventRecord is one chain event touching a settlement
// transaction, as appended by the reconciler.
type SettlementEventRecord struct {
	ID             int64     `json:"id"`
	TransactionID  uint64    `json:"transaction_id"`
	LegID          uint32    `json:"leg_id"`
	Kind           string    `json:"kind"`
	BlockHash      []byte    `json:"block_hash"`
	EventIndex     uint32    `json:"event_index"`
	PendingAffirms uint32    `json:"pending_affirms"`
	Memo           string    `json:"memo,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// BlockRecord marks a chain block as processed by the reconciler.
type BlockRecord struct {
	Height      uint64    `json:"height"`
	Hash        []byte    `json:"hash"`
	EventCount  int       `json:"event_count"`
	ProcessedAt time.Time `json:"processed_at"`
}

// RecordStore persists settlement records, their event history and the
// reconciler's block/event bookkeeping.
//
// MarkEventApplied is the replay guard: it records (block hash, event index)
// and reports false when the pair was seen before, so at-least-once event
// delivery folds to exactly-once application.
type RecordStore interface {
	SaveSettlement(ctx context.Context, rec *SettlementRecord) error
	GetSettlement(ctx context.Context, transactionID uint64) (*SettlementRecord, error)
	ListSettlements(ctx context.Context) ([]*SettlementRecord, error)

	AppendSettlementEvent(ctx context.Context, ev *SettlementEventRecord) error
	ListSettlementEvents(ctx context.Context, transactionID uint64) ([]*SettlementEventRecord, error)

	RecordBlock(ctx context.Context, block *BlockRecord) error
	LastProcessedHeight(ctx context.Context) (uint64, error)
	IsEventApplied(ctx context.Context, blockHash []byte, eventIndex uint32) (bool, error)
	MarkEventApplied(ctx context.Context, blockHash []byte, eventIndex uint32) (bool, error)
}
