// Package watcher reconciles the local ledger with the chain. A single
// background loop processes blocks strictly in height order; balance events
// for local accounts are decrypted and folded into the ledger, settlement
// lifecycle events are appended to the settlement records.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/confidential-ledger/internal/chain"
	"github.com/example/confidential-ledger/internal/ledger"
	"github.com/example/confidential-ledger/internal/proofs"
	"github.com/example/confidential-ledger/internal/scheme"
	"github.com/example/confidential-ledger/internal/settlement"
	"github.com/example/confidential-ledger/pkg/audit"
)

// PersistenceError aborts the current block: the watcher retries the block
// instead of advancing past a write it could not make.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistence(err error) error {
	return &PersistenceError{Err: err}
}

// Watcher is the chain reconciler.
type Watcher struct {
	client  chain.Client
	store   ledger.Store
	records settlement.RecordStore
	engine  *proofs.Engine
	trail   *audit.ChainLogger
	logger  *slog.Logger

	// retryInterval paces resubscription and block retries after failures.
	retryInterval time.Duration
}

// New wires a watcher. trail may be nil.
func New(client chain.Client, store ledger.Store, records settlement.RecordStore, engine *proofs.Engine, trail *audit.ChainLogger, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		client:        client,
		store:         store,
		records:       records,
		engine:        engine,
		trail:         trail,
		logger:        logger.With("component", "watcher"),
		retryInterval: 5 * time.Second,
	}
}

// Run processes blocks until ctx is cancelled, resubscribing after stream
// failures. It always resumes from the block after the last one fully
// processed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		err := w.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			w.logger.Error("block stream interrupted, resubscribing", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.retryInterval):
		}
	}
}

func (w *Watcher) runOnce(ctx context.Context) error {
	last, err := w.records.LastProcessedHeight(ctx)
	if err != nil {
		return err
	}
	stream, err := w.client.SubscribeBlocks(ctx, last+1)
	if err != nil {
		return err
	}
	w.logger.Info("subscribed to blocks", "start_height", last+1)

	for {
		block, err := stream.Recv()
		if err != nil {
			return err
		}
		// A persistence failure must not advance the cursor: retry the
		// same block until the write goes through or ctx ends.
		for {
			err := w.processBlock(ctx, block)
			if err == nil {
				break
			}
			var pe *PersistenceError
			if !errors.As(err, &pe) {
				return err
			}
			w.logger.Error("block processing failed, retrying", "height", block.Height, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.retryInterval):
			}
		}
	}
}

func (w *Watcher) processBlock(ctx context.Context, block *chain.Block) error {
	start := time.Now()
	events, err := w.client.GetBlockEvents(ctx, block.Hash)
	if err != nil {
		return err
	}

	for _, ev := range events {
		applied, err := w.records.IsEventApplied(ctx, block.Hash, ev.Index)
		if err != nil {
			return persistence(err)
		}
		if applied {
			eventsSkippedTotal.WithLabelValues("duplicate").Inc()
			continue
		}
		if err := w.applyEvent(ctx, block, ev); err != nil {
			var pe *PersistenceError
			if errors.As(err, &pe) {
				return err
			}
			// Malformed events are logged and skipped; they must not
			// wedge the block.
			w.logger.Warn("skipping malformed event",
				"height", block.Height, "index", ev.Index, "kind", ev.Kind, "error", err)
			eventsSkippedTotal.WithLabelValues("malformed").Inc()
		} else {
			eventsAppliedTotal.WithLabelValues(string(ev.Kind)).Inc()
		}
		if _, err := w.records.MarkEventApplied(ctx, block.Hash, ev.Index); err != nil {
			return persistence(err)
		}
	}

	// The block record moves the resume cursor, so it lands only once every
	// event is in. A crash mid-block restarts at this block and the applied
	// markers fold the replay to a no-op.
	if err := w.records.RecordBlock(ctx, &settlement.BlockRecord{
		Height:     block.Height,
		Hash:       block.Hash,
		EventCount: len(events),
	}); err != nil {
		return persistence(err)
	}

	blocksProcessedTotal.Inc()
	lastProcessedHeight.Set(float64(block.Height))
	blockProcessingSeconds.Observe(time.Since(start).Seconds())
	return nil
}

func (w *Watcher) applyEvent(ctx context.Context, block *chain.Block, ev *chain.Event) error {
	switch ev.Kind {
	case chain.EventDeposit, chain.EventWithdraw:
		return w.applyBalanceEvent(ctx, ev)
	case chain.EventDepositIncoming:
		// Pending incoming funds move into the spendable balance only
		// through an apply-incoming call; nothing to fold here.
		w.logger.Info("incoming deposit observed",
			"asset_id", ev.AssetID, "height", block.Height)
		return nil
	case chain.EventAssetCreated:
		if ev.AssetID == "" {
			return fmt.Errorf("asset created event without asset id")
		}
		if _, err := w.store.EnsureAsset(ctx, ev.AssetID); err != nil {
			return persistence(err)
		}
		return nil
	case chain.EventTransactionCreated, chain.EventTransactionAffirmed,
		chain.EventTransactionExecuted, chain.EventTransactionRejected:
		return w.applySettlementEvent(ctx, block, ev)
	default:
		return fmt.Errorf("unknown event kind %q", ev.Kind)
	}
}

// applyBalanceEvent resyncs a local account's balance row from the encrypted
// balance the event carries. Events for accounts this service does not hold
// keys for are ignored.
func (w *Watcher) applyBalanceEvent(ctx context.Context, ev *chain.Event) error {
	account, err := w.store.GetAccount(ctx, ev.Account)
	if ledger.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return persistence(err)
	}
	if _, err := w.store.EnsureAsset(ctx, ev.AssetID); err != nil {
		return persistence(err)
	}

	row, err := w.engine.AccountAsset(ctx, ev.Account, ev.AssetID)
	if err == nil {
		defer row.Account.Wipe()
		update, uerr := w.engine.UpdateBalance(ctx, row, ev.EncAmount)
		if uerr != nil {
			return uerr
		}
		if _, cerr := w.engine.Commit(ctx, update, true); cerr != nil {
			return persistence(cerr)
		}
		return nil
	}
	if !ledger.IsNotFound(err) {
		return persistence(err)
	}

	// First sighting of this (account, asset): decrypt and create the row.
	withSecret, err := w.store.GetAccountWithSecret(ctx, ev.Account)
	if err != nil {
		return persistence(err)
	}
	defer withSecret.Wipe()
	keys, err := withSecret.EncryptionKeys()
	if err != nil {
		return err
	}
	ct, err := scheme.DecodeCiphertext(ev.EncAmount)
	if err != nil {
		return fmt.Errorf("failed to decode event balance: %w", err)
	}
	balance, err := keys.Secret.Decrypt(ct, scheme.MaxTotalSupply)
	if err != nil {
		return fmt.Errorf("failed to decrypt event balance: %w", err)
	}
	update := &ledger.UpdateAccountAsset{
		AccountID:  account.ID,
		AssetID:    ev.AssetID,
		Balance:    balance,
		EncBalance: ev.EncAmount,
	}
	if _, err := w.store.UpdateAccountAsset(ctx, update, true); err != nil {
		return persistence(err)
	}
	return nil
}

// applySettlementEvent appends the event to the transaction history and
// advances the local record. The chain's pending-affirmation count is
// authoritative.
func (w *Watcher) applySettlementEvent(ctx context.Context, block *chain.Block, ev *chain.Event) error {
	rec, err := w.records.GetSettlement(ctx, ev.TransactionID)
	if ledger.IsNotFound(err) {
		rec = &settlement.SettlementRecord{
			TransactionID:  ev.TransactionID,
			State:          settlement.StateCreated,
			PendingAffirms: ev.PendingAffirms,
			Memo:           ev.Memo,
		}
	} else if err != nil {
		return persistence(err)
	}

	switch ev.Kind {
	case chain.EventTransactionCreated:
		rec.PendingAffirms = ev.PendingAffirms
	case chain.EventTransactionAffirmed:
		if !rec.State.Terminal() {
			rec.PendingAffirms = ev.PendingAffirms
		}
	case chain.EventTransactionExecuted:
		if !rec.State.Terminal() {
			rec.PendingAffirms = 0
			if err := rec.Execute(); err != nil {
				return err
			}
		}
	case chain.EventTransactionRejected:
		if !rec.State.Terminal() {
			if err := rec.Reject(); err != nil {
				return err
			}
		}
	}

	if err := w.records.SaveSettlement(ctx, rec); err != nil {
		return persistence(err)
	}
	if err := w.records.AppendSettlementEvent(ctx, &settlement.SettlementEventRecord{
		TransactionID:  ev.TransactionID,
		LegID:          ev.LegID,
		Kind:           string(ev.Kind),
		BlockHash:      block.Hash,
		EventIndex:     ev.Index,
		PendingAffirms: ev.PendingAffirms,
		Memo:           ev.Memo,
	}); err != nil {
		return persistence(err)
	}
	if w.trail != nil {
		w.trail.Append(string(ev.Kind), ev.TransactionID, ev.Memo)
	}
	return nil
}
