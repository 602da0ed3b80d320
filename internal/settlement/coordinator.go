package settlement

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/example/confidential-ledger/internal/chain"
	"github.com/example/confidential-ledger/internal/ledger"
	"github.com/example/confidential-ledger/internal/proofs"
	"github.com/example/confidential-ledger/internal/scheme"
	"github.com/example/confidential-ledger/internal/signing"
	"github.com/example/confidential-ledger/pkg/audit"
)

// ChainRejectedError reports a submission the chain accepted for processing
// but refused to apply.
type ChainRejectedError struct {
	Method string
	Reason string
}

func (e *ChainRejectedError) Error() string {
	return fmt.Sprintf("chain rejected %s: %s", e.Method, e.Reason)
}

// Coordinator drives settlement flows end to end: it queries the chain,
// builds proofs through the engine, submits signed calls and commits ledger
// updates only after the chain reports success.
type Coordinator struct {
	store   ledger.Store
	records RecordStore
	engine  *proofs.Engine
	client  chain.Client
	signers signing.Manager
	trail   *audit.ChainLogger
	logger  *slog.Logger
	wait    chain.WaitMode
}

// NewCoordinator wires a coordinator. trail may be nil to disable the audit
// trail.
func NewCoordinator(store ledger.Store, records RecordStore, engine *proofs.Engine, client chain.Client, signers signing.Manager, trail *audit.ChainLogger, logger *slog.Logger, wait chain.WaitMode) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:   store,
		records: records,
		engine:  engine,
		client:  client,
		signers: signers,
		trail:   trail,
		logger:  logger.With("component", "settlement_coordinator"),
		wait:    wait,
	}
}

// Call parameter shapes; the chain consumes the canonical JSON encoding.

type assetAffirmation struct {
	AssetID string `json:"asset_id"`
	Amount  uint64 `json:"amount,omitempty"`
	Proof   []byte `json:"proof,omitempty"`
}

type legAffirmation struct {
	TransactionID uint64             `json:"transaction_id"`
	LegID         uint32             `json:"leg_id"`
	Party         Party              `json:"party"`
	Affirmations  []assetAffirmation `json:"affirmations"`
}

type affirmTransactionsParams struct {
	Legs []legAffirmation `json:"legs"`
}

type applyIncomingParams struct {
	Account []byte `json:"account"`
	AssetID string `json:"asset_id"`
}

type executeTransactionParams struct {
	TransactionID uint64 `json:"transaction_id"`
}

type createVenueParams struct{}

type allowVenuesParams struct {
	AssetID string   `json:"asset_id"`
	Venues  []uint64 `json:"venues"`
}

type createAssetParams struct {
	Ticker    string   `json:"ticker"`
	Auditors  [][]byte `json:"auditors"`
	Mediators [][]byte `json:"mediators"`
}

type mintParams struct {
	Account []byte `json:"account"`
	AssetID string `json:"asset_id"`
	Amount  uint64 `json:"amount"`
}

type initAccountParams struct {
	Account []byte `json:"account"`
}

// LegInput describes one leg of a new settlement transaction.
type LegInput struct {
	Sender    []byte   `json:"sender"`
	Receiver  []byte   `json:"receiver"`
	Mediators [][]byte `json:"mediators"`
	Auditors  [][]byte `json:"auditors"`
	AssetIDs  []string `json:"asset_ids"`
}

type createTransactionParams struct {
	VenueID uint64     `json:"venue_id"`
	Legs    []LegInput `json:"legs"`
	Memo    string     `json:"memo,omitempty"`
}

// pendingAffirmation is one prepared leg affirmation plus the ledger updates
// to commit once the chain accepts it.
type pendingAffirmation struct {
	leg     legAffirmation
	updates []*ledger.UpdateAccountAsset
}

// buildAffirmation prepares one leg affirmation. Sender legs carry transfer
// proofs built against the chain's view of the sender balance; receiver and
// mediator legs carry the claimed amounts.
func (c *Coordinator) buildAffirmation(ctx context.Context, accountPK []byte, leg AffirmLeg) (*pendingAffirmation, error) {
	legInfo, err := c.client.GetTransactionLeg(ctx, leg.TransactionID, leg.LegID)
	if err != nil {
		return nil, err
	}

	pa := &pendingAffirmation{
		leg: legAffirmation{TransactionID: leg.TransactionID, LegID: leg.LegID, Party: leg.Party},
	}

	switch leg.Party {
	case PartySender:
		if !bytes.Equal(legInfo.Sender, accountPK) {
			return nil, fmt.Errorf("account is not the sender of leg %d/%d", leg.TransactionID, leg.LegID)
		}
		for _, aa := range leg.Amounts {
			row, err := c.engine.AccountAsset(ctx, accountPK, aa.AssetID)
			if err != nil {
				return nil, err
			}
			chainBalance, err := c.client.GetAccountBalance(ctx, accountPK, aa.AssetID)
			if err != nil {
				row.Account.Wipe()
				return nil, err
			}
			update, proof, err := c.engine.CreateSendProof(ctx, row, chainBalance, legInfo.Receiver, legInfo.Auditors, aa.Amount)
			row.Account.Wipe()
			if err != nil {
				return nil, err
			}
			pa.updates = append(pa.updates, update)
			pa.leg.Affirmations = append(pa.leg.Affirmations, assetAffirmation{AssetID: aa.AssetID, Proof: proof.Encode()})
		}
	case PartyReceiver:
		if !bytes.Equal(legInfo.Receiver, accountPK) {
			return nil, fmt.Errorf("account is not the receiver of leg %d/%d", leg.TransactionID, leg.LegID)
		}
		for _, aa := range leg.Amounts {
			pa.leg.Affirmations = append(pa.leg.Affirmations, assetAffirmation{AssetID: aa.AssetID, Amount: aa.Amount})
		}
	case PartyMediator:
		found := false
		for _, m := range legInfo.Mediators {
			if bytes.Equal(m, accountPK) {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("account is not a mediator of leg %d/%d", leg.TransactionID, leg.LegID)
		}
		for _, aa := range leg.Amounts {
			pa.leg.Affirmations = append(pa.leg.Affirmations, assetAffirmation{AssetID: aa.AssetID, Amount: aa.Amount})
		}
	default:
		return nil, fmt.Errorf("unknown settlement party %q", leg.Party)
	}
	return pa, nil
}

// affirm submits prepared affirmations and, on success, commits their ledger
// updates and advances the local records.
func (c *Coordinator) affirm(ctx context.Context, signer signing.Signer, prepared []*pendingAffirmation) (*chain.TransactionResult, error) {
	params := affirmTransactionsParams{}
	for _, pa := range prepared {
		params.Legs = append(params.Legs, pa.leg)
	}
	call, err := chain.NewCall("affirm_transactions", params)
	if err != nil {
		return nil, err
	}
	res, err := c.client.SubmitAndWatch(ctx, call, signer, c.wait)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		c.logger.Warn("affirmation rejected by chain", "error", res.Err)
		return res, &ChainRejectedError{Method: "affirm_transactions", Reason: res.Err}
	}

	pendingByTx := make(map[uint64]uint32, len(res.AffirmationUpdates))
	for _, au := range res.AffirmationUpdates {
		pendingByTx[au.TransactionID] = au.PendingAffirms
	}
	for _, pa := range prepared {
		for _, update := range pa.updates {
			if _, err := c.engine.Commit(ctx, update, false); err != nil {
				return res, fmt.Errorf("failed to commit balance for transaction %d: %w", pa.leg.TransactionID, err)
			}
		}
		var pending *uint32
		if count, ok := pendingByTx[pa.leg.TransactionID]; ok {
			pending = &count
		}
		if err := c.recordAffirmation(ctx, pa.leg.TransactionID, pa.leg.Party, pending); err != nil {
			return res, err
		}
	}
	return res, nil
}

// recordAffirmation advances the local record. The chain's pending count is
// authoritative: when the submission result did not report one, the current
// value stands until the reconciler sees the affirmation event.
func (c *Coordinator) recordAffirmation(ctx context.Context, transactionID uint64, party Party, chainPending *uint32) error {
	rec, err := c.records.GetSettlement(ctx, transactionID)
	if ledger.IsNotFound(err) {
		rec = &SettlementRecord{TransactionID: transactionID, State: StateCreated}
	} else if err != nil {
		return err
	}
	pending := rec.PendingAffirms
	if chainPending != nil {
		pending = *chainPending
	}
	if err := rec.Affirm(party, pending); err != nil {
		return err
	}
	if err := c.records.SaveSettlement(ctx, rec); err != nil {
		return err
	}
	if c.trail != nil {
		c.trail.Append("transaction_affirmed", transactionID, fmt.Sprintf("party: %s", party))
	}
	return nil
}

// AffirmAsSender affirms a leg as its sender, building the transfer proofs.
func (c *Coordinator) AffirmAsSender(ctx context.Context, signerName string, accountPK []byte, leg AffirmLeg) (*chain.TransactionResult, error) {
	leg.Party = PartySender
	return c.affirmOne(ctx, signerName, accountPK, leg)
}

// AffirmAsReceiver affirms a leg as its receiver.
func (c *Coordinator) AffirmAsReceiver(ctx context.Context, signerName string, accountPK []byte, leg AffirmLeg) (*chain.TransactionResult, error) {
	leg.Party = PartyReceiver
	return c.affirmOne(ctx, signerName, accountPK, leg)
}

// AffirmAsMediator affirms a leg as one of its mediators.
func (c *Coordinator) AffirmAsMediator(ctx context.Context, signerName string, accountPK []byte, leg AffirmLeg) (*chain.TransactionResult, error) {
	leg.Party = PartyMediator
	return c.affirmOne(ctx, signerName, accountPK, leg)
}

func (c *Coordinator) affirmOne(ctx context.Context, signerName string, accountPK []byte, leg AffirmLeg) (*chain.TransactionResult, error) {
	signer, err := c.signers.GetSigner(ctx, signerName)
	if err != nil {
		return nil, err
	}
	pa, err := c.buildAffirmation(ctx, accountPK, leg)
	if err != nil {
		return nil, err
	}
	return c.affirm(ctx, signer, []*pendingAffirmation{pa})
}

// AffirmTransactions affirms a batch of legs in one submission. All proofs
// are computed before anything is sent.
func (c *Coordinator) AffirmTransactions(ctx context.Context, signerName string, accountPK []byte, legs []AffirmLeg) (*chain.TransactionResult, error) {
	signer, err := c.signers.GetSigner(ctx, signerName)
	if err != nil {
		return nil, err
	}
	prepared := make([]*pendingAffirmation, 0, len(legs))
	for _, leg := range legs {
		pa, err := c.buildAffirmation(ctx, accountPK, leg)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, pa)
	}
	return c.affirm(ctx, signer, prepared)
}

// ApplyIncoming moves the pending incoming balance for one asset into the
// account's spendable balance, on chain and locally.
func (c *Coordinator) ApplyIncoming(ctx context.Context, signerName string, accountPK []byte, assetID string) (*ledger.AccountAsset, error) {
	signer, err := c.signers.GetSigner(ctx, signerName)
	if err != nil {
		return nil, err
	}
	incoming, err := c.client.GetIncomingBalance(ctx, accountPK, assetID)
	if err != nil {
		return nil, err
	}
	if len(incoming) == 0 {
		return nil, ledger.NotFound("incoming balance")
	}

	call, err := chain.NewCall("apply_incoming", applyIncomingParams{Account: accountPK, AssetID: assetID})
	if err != nil {
		return nil, err
	}
	res, err := c.client.SubmitAndWatch(ctx, call, signer, c.wait)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, &ChainRejectedError{Method: "apply_incoming", Reason: res.Err}
	}

	row, err := c.engine.AccountAsset(ctx, accountPK, assetID)
	if ledger.IsNotFound(err) {
		// Account was funded before opting in locally: resync the whole
		// balance from the chain instead of folding the delta.
		chainBalance, err := c.client.GetAccountBalance(ctx, accountPK, assetID)
		if err != nil {
			return nil, err
		}
		return c.ResyncBalance(ctx, accountPK, assetID, chainBalance)
	}
	if err != nil {
		return nil, err
	}
	defer row.Account.Wipe()

	update, err := c.engine.ApplyIncoming(ctx, row, incoming)
	if err != nil {
		return nil, err
	}
	return c.engine.Commit(ctx, update, true)
}

// ApplyAllIncoming applies every pending incoming balance of the account.
func (c *Coordinator) ApplyAllIncoming(ctx context.Context, signerName string, accountPK []byte) ([]*ledger.AccountAsset, error) {
	pending, err := c.client.ListIncomingBalances(ctx, accountPK)
	if err != nil {
		return nil, err
	}
	var applied []*ledger.AccountAsset
	for _, entry := range pending {
		row, err := c.ApplyIncoming(ctx, signerName, accountPK, entry.AssetID)
		if err != nil {
			return applied, err
		}
		applied = append(applied, row)
	}
	return applied, nil
}

// ResyncBalance replaces the local balance row with the chain's view.
func (c *Coordinator) ResyncBalance(ctx context.Context, accountPK []byte, assetID string, encBalance []byte) (*ledger.AccountAsset, error) {
	if _, err := c.store.EnsureAsset(ctx, assetID); err != nil {
		return nil, err
	}
	account, err := c.store.GetAccountWithSecret(ctx, accountPK)
	if err != nil {
		return nil, err
	}
	defer account.Wipe()

	keys, err := account.EncryptionKeys()
	if err != nil {
		return nil, err
	}
	ct, err := scheme.DecodeCiphertext(encBalance)
	if err != nil {
		return nil, fmt.Errorf("failed to decode chain balance: %w", err)
	}
	balance, err := keys.Secret.Decrypt(ct, scheme.MaxTotalSupply)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt chain balance: %w", err)
	}

	var prevVersion int64
	if row, err := c.store.GetAccountAsset(ctx, accountPK, assetID); err == nil {
		prevVersion = row.Version
	} else if !ledger.IsNotFound(err) {
		return nil, err
	}
	update := &ledger.UpdateAccountAsset{
		AccountID:   account.ID,
		AssetID:     assetID,
		Balance:     balance,
		EncBalance:  encBalance,
		PrevVersion: prevVersion,
	}
	return c.store.UpdateAccountAsset(ctx, update, true)
}

// ExecuteSettlement executes a fully affirmed transaction.
func (c *Coordinator) ExecuteSettlement(ctx context.Context, signerName string, transactionID uint64) (*chain.TransactionResult, error) {
	signer, err := c.signers.GetSigner(ctx, signerName)
	if err != nil {
		return nil, err
	}
	call, err := chain.NewCall("execute_transaction", executeTransactionParams{TransactionID: transactionID})
	if err != nil {
		return nil, err
	}
	res, err := c.client.SubmitAndWatch(ctx, call, signer, c.wait)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, &ChainRejectedError{Method: "execute_transaction", Reason: res.Err}
	}

	rec, err := c.records.GetSettlement(ctx, transactionID)
	if ledger.IsNotFound(err) {
		rec = &SettlementRecord{TransactionID: transactionID, State: StateCreated}
	} else if err != nil {
		return res, err
	}
	rec.PendingAffirms = 0
	if err := rec.Execute(); err != nil {
		return res, err
	}
	if err := c.records.SaveSettlement(ctx, rec); err != nil {
		return res, err
	}
	if c.trail != nil {
		c.trail.Append("transaction_executed", transactionID, "")
	}
	return res, nil
}

// CreateSettlement creates a settlement transaction on a venue. The local
// record is created by the reconciler when the creation event lands.
func (c *Coordinator) CreateSettlement(ctx context.Context, signerName string, venueID uint64, legs []LegInput, memo string) (*chain.TransactionResult, error) {
	return c.submit(ctx, signerName, "create_transaction", createTransactionParams{VenueID: venueID, Legs: legs, Memo: memo})
}

// CreateVenue creates a settlement venue owned by the signer.
func (c *Coordinator) CreateVenue(ctx context.Context, signerName string) (*chain.TransactionResult, error) {
	return c.submit(ctx, signerName, "create_venue", createVenueParams{})
}

// AllowVenues allowlists venues for an asset.
func (c *Coordinator) AllowVenues(ctx context.Context, signerName string, assetID string, venues []uint64) (*chain.TransactionResult, error) {
	return c.submit(ctx, signerName, "allow_venues", allowVenuesParams{AssetID: assetID, Venues: venues})
}

// CreateAsset creates a confidential asset on chain.
func (c *Coordinator) CreateAsset(ctx context.Context, signerName string, ticker string, auditors, mediators [][]byte) (*chain.TransactionResult, error) {
	return c.submit(ctx, signerName, "create_confidential_asset", createAssetParams{Ticker: ticker, Auditors: auditors, Mediators: mediators})
}

// InitAccount registers a confidential account on chain.
func (c *Coordinator) InitAccount(ctx context.Context, signerName string, accountPK []byte) (*chain.TransactionResult, error) {
	return c.submit(ctx, signerName, "create_account", initAccountParams{Account: accountPK})
}

// Mint mints amount of an asset into an account, on chain and locally.
func (c *Coordinator) Mint(ctx context.Context, signerName string, accountPK []byte, assetID string, amount uint64) (*chain.TransactionResult, error) {
	res, err := c.submit(ctx, signerName, "mint", mintParams{Account: accountPK, AssetID: assetID, Amount: amount})
	if err != nil {
		return res, err
	}
	for _, bu := range res.BalanceUpdates {
		if !bytes.Equal(bu.Account, accountPK) || bu.AssetID != assetID {
			continue
		}
		if _, err := c.ResyncBalance(ctx, accountPK, assetID, bu.EncBalance); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (c *Coordinator) submit(ctx context.Context, signerName, method string, params any) (*chain.TransactionResult, error) {
	signer, err := c.signers.GetSigner(ctx, signerName)
	if err != nil {
		return nil, err
	}
	call, err := chain.NewCall(method, params)
	if err != nil {
		return nil, err
	}
	res, err := c.client.SubmitAndWatch(ctx, call, signer, c.wait)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, &ChainRejectedError{Method: method, Reason: res.Err}
	}
	return res, nil
}

// IncomingView is a decrypted pending incoming balance.
type IncomingView struct {
	AssetID     string `json:"asset_id"`
	EncIncoming []byte `json:"enc_incoming"`
	Amount      uint64 `json:"amount"`
}

// GetIncomingBalance returns the pending incoming balance for one asset,
// decrypted under the account's key.
func (c *Coordinator) GetIncomingBalance(ctx context.Context, accountPK []byte, assetID string) (*IncomingView, error) {
	incoming, err := c.client.GetIncomingBalance(ctx, accountPK, assetID)
	if err != nil {
		return nil, err
	}
	if len(incoming) == 0 {
		return nil, ledger.NotFound("incoming balance")
	}
	amount, err := c.decryptFor(ctx, accountPK, incoming)
	if err != nil {
		return nil, err
	}
	return &IncomingView{AssetID: assetID, EncIncoming: incoming, Amount: amount}, nil
}

// GetIncomingBalances returns all pending incoming balances for an account.
func (c *Coordinator) GetIncomingBalances(ctx context.Context, accountPK []byte) ([]*IncomingView, error) {
	entries, err := c.client.ListIncomingBalances(ctx, accountPK)
	if err != nil {
		return nil, err
	}
	out := make([]*IncomingView, 0, len(entries))
	for _, entry := range entries {
		amount, err := c.decryptFor(ctx, accountPK, entry.EncIncoming)
		if err != nil {
			return nil, err
		}
		out = append(out, &IncomingView{AssetID: entry.AssetID, EncIncoming: entry.EncIncoming, Amount: amount})
	}
	return out, nil
}

func (c *Coordinator) decryptFor(ctx context.Context, accountPK []byte, encrypted []byte) (uint64, error) {
	account, err := c.store.GetAccountWithSecret(ctx, accountPK)
	if err != nil {
		return 0, err
	}
	defer account.Wipe()
	keys, err := account.EncryptionKeys()
	if err != nil {
		return 0, err
	}
	ct, err := scheme.DecodeCiphertext(encrypted)
	if err != nil {
		return 0, fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	return keys.Secret.Decrypt(ct, scheme.MaxTotalSupply)
}
