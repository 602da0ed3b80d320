package watcher

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/confidential-ledger/internal/chain"
	"github.com/example/confidential-ledger/internal/crypto"
	"github.com/example/confidential-ledger/internal/ledger"
	"github.com/example/confidential-ledger/internal/proofs"
	"github.com/example/confidential-ledger/internal/scheme"
	"github.com/example/confidential-ledger/internal/settlement"
	"github.com/example/confidential-ledger/pkg/audit"
)

// fakeNode replays a scripted chain for watcher tests.
type fakeNode struct {
	blocks       []*chain.Block
	eventsByHash map[string][]*chain.Event
	startHeights []uint64
}

func newFakeNode() *fakeNode {
	return &fakeNode{eventsByHash: make(map[string][]*chain.Event)}
}

func (f *fakeNode) addBlock(height uint64, events ...*chain.Event) *chain.Block {
	hash := []byte{byte(height), 0xb1, 0x0c}
	block := &chain.Block{Height: height, Hash: hash}
	f.blocks = append(f.blocks, block)
	f.eventsByHash[string(hash)] = events
	return block
}

type fakeStream struct {
	blocks []*chain.Block
	pos    int
}

func (s *fakeStream) Recv() (*chain.Block, error) {
	if s.pos >= len(s.blocks) {
		return nil, io.EOF
	}
	b := s.blocks[s.pos]
	s.pos++
	return b, nil
}

func (f *fakeNode) SubscribeBlocks(ctx context.Context, startHeight uint64) (chain.BlockStream, error) {
	f.startHeights = append(f.startHeights, startHeight)
	var pending []*chain.Block
	for _, b := range f.blocks {
		if b.Height >= startHeight {
			pending = append(pending, b)
		}
	}
	return &fakeStream{blocks: pending}, nil
}

func (f *fakeNode) GetBlockEvents(ctx context.Context, blockHash []byte) ([]*chain.Event, error) {
	return f.eventsByHash[string(blockHash)], nil
}

func (f *fakeNode) GetAccountBalance(ctx context.Context, account []byte, assetID string) ([]byte, error) {
	return nil, nil
}

func (f *fakeNode) GetIncomingBalance(ctx context.Context, account []byte, assetID string) ([]byte, error) {
	return nil, nil
}

func (f *fakeNode) ListIncomingBalances(ctx context.Context, account []byte) ([]chain.IncomingBalance, error) {
	return nil, nil
}

func (f *fakeNode) GetTransactionLeg(ctx context.Context, transactionID uint64, legID uint32) (*chain.TransactionLeg, error) {
	return nil, errors.New("not scripted")
}

func (f *fakeNode) GetAssetDetails(ctx context.Context, assetID string) (*chain.AssetDetails, error) {
	return &chain.AssetDetails{AssetID: assetID}, nil
}

func (f *fakeNode) GetAccountIdentity(ctx context.Context, account []byte) ([]byte, error) {
	return account, nil
}

func (f *fakeNode) SubmitAndWatch(ctx context.Context, call *chain.Call, signer chain.Signer, wait chain.WaitMode) (*chain.TransactionResult, error) {
	return &chain.TransactionResult{Success: true}, nil
}

type watcherEnv struct {
	store   *ledger.SQLiteStore
	records *settlement.SQLiteRecordStore
	engine  *proofs.Engine
	node    *fakeNode
	watcher *Watcher
}

func newWatcherEnv(t *testing.T) *watcherEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	kms, err := crypto.NewFileBasedKMS(crypto.FileBasedKMSConfig{KeyStorePath: t.TempDir()})
	require.NoError(t, err)
	store, err := ledger.NewSQLiteStore(db, crypto.NewAEADEncryptor(kms))
	require.NoError(t, err)
	records, err := settlement.NewSQLiteRecordStore(db)
	require.NoError(t, err)

	node := newFakeNode()
	engine := proofs.NewEngine(store, nil, nil)
	w := New(node, store, records, engine, audit.NewChainLogger(), nil)
	return &watcherEnv{store: store, records: records, engine: engine, node: node, watcher: w}
}

// newLocalAccount creates an account and returns its public key and an
// encryption of balance under its key.
func (env *watcherEnv) newLocalAccount(t *testing.T, ctx context.Context, balance uint64) ([]byte, []byte) {
	t.Helper()

	account, err := env.store.CreateAccount(ctx)
	require.NoError(t, err)
	withSecret, err := env.store.GetAccountWithSecret(ctx, account.PublicKey)
	require.NoError(t, err)
	defer withSecret.Wipe()
	keys, err := withSecret.EncryptionKeys()
	require.NoError(t, err)
	enc, err := scheme.Encrypt(keys.Public, balance, nil)
	require.NoError(t, err)
	return account.PublicKey, enc.Bytes()
}

func TestDepositEventCreatesBalanceRow(t *testing.T) {
	env := newWatcherEnv(t)
	ctx := context.Background()

	accountPK, encBalance := env.newLocalAccount(t, ctx, 900)
	block := env.node.addBlock(1, &chain.Event{
		Index: 0, Kind: chain.EventDeposit,
		Account: accountPK, AssetID: "asset-1", EncAmount: encBalance,
	})
	require.NoError(t, env.watcher.processBlock(ctx, block))

	// The asset was mirrored and the row created with the decrypted value.
	row, err := env.store.GetAccountAsset(ctx, accountPK, "asset-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(900), row.Balance)
	assert.Equal(t, encBalance, []byte(row.EncBalance))

	_, err = env.store.GetAsset(ctx, "asset-1")
	require.NoError(t, err)
}

func TestForeignAccountEventIgnored(t *testing.T) {
	env := newWatcherEnv(t)
	ctx := context.Background()

	block := env.node.addBlock(1, &chain.Event{
		Index: 0, Kind: chain.EventDeposit,
		Account: []byte("not-our-key"), AssetID: "asset-1", EncAmount: []byte{1, 2, 3},
	})
	require.NoError(t, env.watcher.processBlock(ctx, block))

	accounts, err := env.store.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestMalformedEventSkipped(t *testing.T) {
	env := newWatcherEnv(t)
	ctx := context.Background()

	accountPK, encBalance := env.newLocalAccount(t, ctx, 100)
	block := env.node.addBlock(1,
		&chain.Event{Index: 0, Kind: chain.EventDeposit, Account: accountPK, AssetID: "asset-1", EncAmount: []byte("garbage")},
		&chain.Event{Index: 1, Kind: chain.EventDeposit, Account: accountPK, AssetID: "asset-1", EncAmount: encBalance},
	)

	// The malformed event is skipped, the valid one still lands.
	require.NoError(t, env.watcher.processBlock(ctx, block))
	row, err := env.store.GetAccountAsset(ctx, accountPK, "asset-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), row.Balance)
}

func TestDuplicateEventsFoldToOneApplication(t *testing.T) {
	env := newWatcherEnv(t)
	ctx := context.Background()

	accountPK, encBalance := env.newLocalAccount(t, ctx, 500)
	block := env.node.addBlock(1, &chain.Event{
		Index: 0, Kind: chain.EventDeposit,
		Account: accountPK, AssetID: "asset-1", EncAmount: encBalance,
	})

	require.NoError(t, env.watcher.processBlock(ctx, block))
	first, err := env.store.GetAccountAsset(ctx, accountPK, "asset-1")
	require.NoError(t, err)

	// Replaying the whole block is a no-op: the row version is untouched.
	require.NoError(t, env.watcher.processBlock(ctx, block))
	second, err := env.store.GetAccountAsset(ctx, accountPK, "asset-1")
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.Balance, second.Balance)
}

func TestSettlementLifecycleEvents(t *testing.T) {
	env := newWatcherEnv(t)
	ctx := context.Background()

	b1 := env.node.addBlock(1, &chain.Event{
		Index: 0, Kind: chain.EventTransactionCreated,
		TransactionID: 5, PendingAffirms: 3, Memo: "otc",
	})
	b2 := env.node.addBlock(2, &chain.Event{
		Index: 0, Kind: chain.EventTransactionAffirmed,
		TransactionID: 5, LegID: 0, PendingAffirms: 2,
	})
	b3 := env.node.addBlock(3, &chain.Event{
		Index: 0, Kind: chain.EventTransactionExecuted,
		TransactionID: 5,
	})

	require.NoError(t, env.watcher.processBlock(ctx, b1))
	rec, err := env.records.GetSettlement(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, settlement.StateCreated, rec.State)
	assert.Equal(t, uint32(3), rec.PendingAffirms)
	assert.Equal(t, "otc", rec.Memo)

	require.NoError(t, env.watcher.processBlock(ctx, b2))
	rec, err = env.records.GetSettlement(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), rec.PendingAffirms)

	require.NoError(t, env.watcher.processBlock(ctx, b3))
	rec, err = env.records.GetSettlement(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, settlement.StateExecuted, rec.State)

	events, err := env.records.ListSettlementEvents(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

// flakyStore fails a fixed number of balance writes before recovering.
type flakyStore struct {
	ledger.Store
	failures int
}

func (s *flakyStore) UpdateAccountAsset(ctx context.Context, update *ledger.UpdateAccountAsset, upsert bool) (*ledger.AccountAsset, error) {
	if s.failures > 0 {
		s.failures--
		return nil, errors.New("disk full")
	}
	return s.Store.UpdateAccountAsset(ctx, update, upsert)
}

func TestCursorHoldsUntilEventsLand(t *testing.T) {
	env := newWatcherEnv(t)
	ctx := context.Background()

	accountPK, encBalance := env.newLocalAccount(t, ctx, 10)
	block := env.node.addBlock(1, &chain.Event{
		Index: 0, Kind: chain.EventDeposit,
		Account: accountPK, AssetID: "asset-1", EncAmount: encBalance,
	})

	flaky := &flakyStore{Store: env.store, failures: 1}
	w := New(env.node, flaky, env.records, env.engine, nil, nil)

	// The balance write fails, so the block must not be recorded: a restart
	// here has to resume at block 1, not past it.
	err := w.processBlock(ctx, block)
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)

	height, err := env.records.LastProcessedHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), height)
	_, err = env.store.GetAccountAsset(ctx, accountPK, "asset-1")
	assert.True(t, ledger.IsNotFound(err))

	// The retry applies the deposit and only then advances the cursor.
	require.NoError(t, w.processBlock(ctx, block))
	height, err = env.records.LastProcessedHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), height)
	row, err := env.store.GetAccountAsset(ctx, accountPK, "asset-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), row.Balance)
}

func TestResumeAfterRestart(t *testing.T) {
	env := newWatcherEnv(t)
	ctx := context.Background()

	env.node.addBlock(1)
	env.node.addBlock(2)

	// First run drains the scripted stream and ends with io.EOF.
	err := env.watcher.runOnce(ctx)
	assert.ErrorIs(t, err, io.EOF)

	height, err := env.records.LastProcessedHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), height)

	// A fresh watcher over the same records resumes at the next block.
	restarted := New(env.node, env.store, env.records, env.engine, nil, nil)
	env.node.addBlock(3)
	err = restarted.runOnce(ctx)
	assert.ErrorIs(t, err, io.EOF)

	require.Len(t, env.node.startHeights, 2)
	assert.Equal(t, uint64(1), env.node.startHeights[0])
	assert.Equal(t, uint64(3), env.node.startHeights[1])

	height, err = env.records.LastProcessedHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), height)
}
