// Package chain abstracts the settlement-chain node. The coordinator and the
// watcher only see the Client interface; the gRPC transport lives behind it.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
)

// WaitMode selects how long a submission blocks before the result is
// reported back.
type WaitMode int

const (
	// WaitInBlock resolves as soon as the transaction is in a block.
	WaitInBlock WaitMode = iota
	// WaitFinalized resolves once the block is finalized.
	WaitFinalized
)

// EventKind tags the chain events the reconciler understands.
type EventKind string

const (
	EventDeposit             EventKind = "deposit"
	EventWithdraw            EventKind = "withdraw"
	EventDepositIncoming     EventKind = "deposit_incoming"
	EventAssetCreated        EventKind = "asset_created"
	EventTransactionCreated  EventKind = "transaction_created"
	EventTransactionAffirmed EventKind = "transaction_affirmed"
	EventTransactionExecuted EventKind = "transaction_executed"
	EventTransactionRejected EventKind = "transaction_rejected"
)

// Block is a chain block header.
type Block struct {
	Height     uint64
	Hash       []byte
	ParentHash []byte
}

// Event is one chain event, ordered within its block by Index.
type Event struct {
	Index          uint32
	Kind           EventKind
	Account        []byte
	AssetID        string
	EncAmount      []byte
	TransactionID  uint64
	LegID          uint32
	PendingAffirms uint32
	Memo           string
}

// IncomingBalance is one pending incoming entry for an account.
type IncomingBalance struct {
	AssetID     string
	EncIncoming []byte
}

// TransactionLeg describes one leg of a settlement transaction as the chain
// sees it.
type TransactionLeg struct {
	TransactionID uint64
	LegID         uint32
	Sender        []byte
	Receiver      []byte
	Mediators     [][]byte
	Auditors      [][]byte
	AssetIDs      []string
}

// AssetDetails is the chain-side asset record.
type AssetDetails struct {
	AssetID     string
	Owner       []byte
	Auditors    [][]byte
	Mediators   [][]byte
	TotalSupply uint64
}

// BalanceUpdate is a post-transaction balance the node reports back.
type BalanceUpdate struct {
	Account    []byte
	AssetID    string
	EncBalance []byte
}

// AffirmationUpdate is the chain's remaining affirmation count for a
// transaction the submission touched.
type AffirmationUpdate struct {
	TransactionID  uint64
	PendingAffirms uint32
}

// TransactionResult is the outcome of a watched submission.
type TransactionResult struct {
	Success            bool
	InBlock            []byte
	Finalized          bool
	Err                string
	BalanceUpdates     []BalanceUpdate
	AffirmationUpdates []AffirmationUpdate
}

// Call is a chain call with a canonical encoding; signatures are computed
// over Encode().
type Call struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// NewCall builds a call, serializing params canonically.
func NewCall(method string, params any) (*Call, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode call params: %w", err)
	}
	return &Call{Method: method, Params: raw}, nil
}

// Encode returns the canonical byte encoding of the call.
func (c *Call) Encode() ([]byte, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode call: %w", err)
	}
	return raw, nil
}

// BlockStream yields blocks in height order.
type BlockStream interface {
	Recv() (*Block, error)
}

// Signer signs chain submissions. It matches signing.Signer so managed
// signers plug in directly.
type Signer interface {
	AccountIdentity() []byte
	Sign(payload []byte) ([]byte, error)
}

// Client is the node capability the coordinator and watcher consume.
type Client interface {
	SubscribeBlocks(ctx context.Context, startHeight uint64) (BlockStream, error)
	GetBlockEvents(ctx context.Context, blockHash []byte) ([]*Event, error)
	GetAccountBalance(ctx context.Context, account []byte, assetID string) ([]byte, error)
	GetIncomingBalance(ctx context.Context, account []byte, assetID string) ([]byte, error)
	ListIncomingBalances(ctx context.Context, account []byte) ([]IncomingBalance, error)
	GetTransactionLeg(ctx context.Context, transactionID uint64, legID uint32) (*TransactionLeg, error)
	GetAssetDetails(ctx context.Context, assetID string) (*AssetDetails, error)
	GetAccountIdentity(ctx context.Context, account []byte) ([]byte, error)
	// SubmitAndWatch signs the call, submits it and blocks until the
	// requested wait mode resolves or ctx is done.
	SubmitAndWatch(ctx context.Context, call *Call, signer Signer, wait WaitMode) (*TransactionResult, error)
}
