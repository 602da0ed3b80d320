package proofs

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/confidential-ledger/internal/crypto"
	"github.com/example/confidential-ledger/internal/ledger"
	"github.com/example/confidential-ledger/internal/scheme"
)

type testEnv struct {
	store  *ledger.SQLiteStore
	engine *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	kms, err := crypto.NewFileBasedKMS(crypto.FileBasedKMSConfig{KeyStorePath: t.TempDir()})
	require.NoError(t, err)

	store, err := ledger.NewSQLiteStore(db, crypto.NewAEADEncryptor(kms))
	require.NoError(t, err)

	return &testEnv{store: store, engine: NewEngine(store, nil, nil)}
}

// newFundedAccount creates an account opted into a fresh asset with the given
// minted balance.
func (env *testEnv) newFundedAccount(t *testing.T, ctx context.Context, assetID string, balance uint64) *ledger.AccountAssetWithSecret {
	t.Helper()

	account, err := env.store.CreateAccount(ctx)
	require.NoError(t, err)
	_, err = env.store.InitAccountAsset(ctx, account.PublicKey, assetID)
	require.NoError(t, err)

	aa, err := env.engine.AccountAsset(ctx, account.PublicKey, assetID)
	require.NoError(t, err)
	t.Cleanup(aa.Account.Wipe)

	if balance > 0 {
		update, err := env.engine.Mint(ctx, aa, balance)
		require.NoError(t, err)
		_, err = env.engine.Commit(ctx, update, false)
		require.NoError(t, err)

		aa, err = env.engine.AccountAsset(ctx, account.PublicKey, assetID)
		require.NoError(t, err)
		t.Cleanup(aa.Account.Wipe)
	}
	return aa
}

func (env *testEnv) createAsset(t *testing.T, ctx context.Context) string {
	t.Helper()
	asset, err := env.store.CreateAsset(ctx, "", "TST")
	require.NoError(t, err)
	return asset.ID
}

func (env *testEnv) reload(t *testing.T, ctx context.Context, aa *ledger.AccountAssetWithSecret) *ledger.AccountAssetWithSecret {
	t.Helper()
	fresh, err := env.engine.AccountAsset(ctx, aa.Account.PublicKey, aa.AssetID)
	require.NoError(t, err)
	t.Cleanup(fresh.Account.Wipe)
	return fresh
}

func TestMint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assetID := env.createAsset(t, ctx)
	aa := env.newFundedAccount(t, ctx, assetID, 0)

	update, err := env.engine.Mint(ctx, aa, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), update.Balance)

	committed, err := env.engine.Commit(ctx, update, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), committed.Balance)

	// Ciphertext tracks the plaintext shadow after the commit.
	fresh := env.reload(t, ctx, aa)
	amount, err := env.engine.Decrypt(fresh, fresh.EncBalance)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), amount)
}

func TestMintOverflow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assetID := env.createAsset(t, ctx)
	aa := env.newFundedAccount(t, ctx, assetID, 1000)

	_, err := env.engine.Mint(ctx, aa, scheme.MaxTotalSupply)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMintThenSend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assetID := env.createAsset(t, ctx)
	sender := env.newFundedAccount(t, ctx, assetID, 1000)
	receiver := env.newFundedAccount(t, ctx, assetID, 0)

	update, proof, err := env.engine.CreateSendProof(
		ctx, sender, nil, receiver.Account.PublicKey, nil, 400)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), update.Balance)

	_, err = env.engine.Commit(ctx, update, false)
	require.NoError(t, err)

	// Receiver validates the proof against the claimed amount.
	proofBytes := proof.Encode()
	res := env.engine.ReceiverVerify(ctx, proofBytes, receiver, 400)
	assert.True(t, res.IsValid)
	require.NotNil(t, res.Amount)
	assert.Equal(t, uint64(400), *res.Amount)

	// Off-by-one amounts fail without being program errors.
	res = env.engine.ReceiverVerify(ctx, proofBytes, receiver, 401)
	assert.False(t, res.IsValid)
	assert.NotEmpty(t, res.ErrMsg)

	// Receiver folds the sender-slot ciphertext in via apply-incoming; the
	// incoming ciphertext on chain is encrypted under the receiver's key, so
	// here we model it with the receiver's own encryption of the amount.
	keys, err := receiver.Account.EncryptionKeys()
	require.NoError(t, err)
	incoming, err := scheme.Encrypt(keys.Public, 400, nil)
	require.NoError(t, err)
	incUpdate, err := env.engine.ApplyIncoming(ctx, receiver, incoming.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint64(400), incUpdate.Balance)
	_, err = env.engine.Commit(ctx, incUpdate, false)
	require.NoError(t, err)

	// Conservation: sender 600, receiver 400.
	senderNow := env.reload(t, ctx, sender)
	receiverNow := env.reload(t, ctx, receiver)
	assert.Equal(t, uint64(600), senderNow.Balance)
	assert.Equal(t, uint64(400), receiverNow.Balance)
	senderDec, err := env.engine.Decrypt(senderNow, senderNow.EncBalance)
	require.NoError(t, err)
	receiverDec, err := env.engine.Decrypt(receiverNow, receiverNow.EncBalance)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), senderDec+receiverDec)
}

func TestCreateSendProofInsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assetID := env.createAsset(t, ctx)
	sender := env.newFundedAccount(t, ctx, assetID, 100)
	receiver := env.newFundedAccount(t, ctx, assetID, 0)

	_, _, err := env.engine.CreateSendProof(
		ctx, sender, nil, receiver.Account.PublicKey, nil, 101)
	assert.ErrorIs(t, err, scheme.ErrInsufficientBalance)
}

func TestCreateSendProofWithChainPrior(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assetID := env.createAsset(t, ctx)
	sender := env.newFundedAccount(t, ctx, assetID, 100)
	receiver := env.newFundedAccount(t, ctx, assetID, 0)

	// The chain's view of the sender balance may differ from the local row;
	// the proof is built against the supplied ciphertext, decrypted fresh.
	keys, err := sender.Account.EncryptionKeys()
	require.NoError(t, err)
	chainBalance, err := scheme.Encrypt(keys.Public, 250, nil)
	require.NoError(t, err)

	update, proof, err := env.engine.CreateSendProof(
		ctx, sender, chainBalance.Bytes(), receiver.Account.PublicKey, nil, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), update.Balance)

	res := env.engine.VerifySendProof(
		sender.Account.PublicKey, chainBalance.Bytes(), receiver.Account.PublicKey, nil, proof.Encode())
	assert.True(t, res.IsValid)
}

func TestBurnProof(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assetID := env.createAsset(t, ctx)
	aa := env.newFundedAccount(t, ctx, assetID, 500)

	update, proof, err := env.engine.CreateBurnProof(ctx, aa, nil, nil, 200)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), update.Balance)

	res := env.engine.VerifySendProof(aa.Account.PublicKey, nil, nil, nil, proof.Encode())
	assert.True(t, res.IsValid)
}

func TestAuditorVerify(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assetID := env.createAsset(t, ctx)
	sender := env.newFundedAccount(t, ctx, assetID, 1000)
	receiver := env.newFundedAccount(t, ctx, assetID, 0)
	auditor := env.newFundedAccount(t, ctx, assetID, 0)

	_, proof, err := env.engine.CreateSendProof(
		ctx, sender, nil, receiver.Account.PublicKey,
		[][]byte{auditor.Account.PublicKey}, 750)
	require.NoError(t, err)
	proofBytes := proof.Encode()

	// Auditor recovers the amount without being told it.
	res := env.engine.AuditorVerify(ctx, proofBytes, auditor, 0, nil)
	assert.True(t, res.IsValid)
	require.NotNil(t, res.Amount)
	assert.Equal(t, uint64(750), *res.Amount)

	// A claimed amount is checked.
	claimed := uint64(750)
	res = env.engine.AuditorVerify(ctx, proofBytes, auditor, 0, &claimed)
	assert.True(t, res.IsValid)

	wrong := uint64(751)
	res = env.engine.AuditorVerify(ctx, proofBytes, auditor, 0, &wrong)
	assert.False(t, res.IsValid)

	// The receiver keys do not open the auditor slot.
	res = env.engine.AuditorVerify(ctx, proofBytes, receiver, 0, nil)
	assert.False(t, res.IsValid)
}

func TestVerifySendProofMalformed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assetID := env.createAsset(t, ctx)
	aa := env.newFundedAccount(t, ctx, assetID, 0)

	res := env.engine.VerifySendProof(aa.Account.PublicKey, nil, nil, nil, []byte("garbage"))
	assert.False(t, res.IsValid)
	assert.NotEmpty(t, res.ErrMsg)

	res = env.engine.ReceiverVerify(ctx, []byte{0xff, 0x01}, aa, 1)
	assert.False(t, res.IsValid)
}

func TestUpdateBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assetID := env.createAsset(t, ctx)
	aa := env.newFundedAccount(t, ctx, assetID, 100)

	keys, err := aa.Account.EncryptionKeys()
	require.NoError(t, err)
	chainView, err := scheme.Encrypt(keys.Public, 1234, nil)
	require.NoError(t, err)

	update, err := env.engine.UpdateBalance(ctx, aa, chainView.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), update.Balance)
	assert.Equal(t, chainView.Bytes(), []byte(update.EncBalance))

	_, err = env.engine.Commit(ctx, update, false)
	require.NoError(t, err)
}

func TestStaleUpdateRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	assetID := env.createAsset(t, ctx)
	aa := env.newFundedAccount(t, ctx, assetID, 0)

	first, err := env.engine.Mint(ctx, aa, 10)
	require.NoError(t, err)
	second, err := env.engine.Mint(ctx, aa, 20)
	require.NoError(t, err)

	_, err = env.engine.Commit(ctx, first, false)
	require.NoError(t, err)

	// Both updates were derived from the same version; the second loses.
	_, err = env.engine.Commit(ctx, second, false)
	assert.ErrorIs(t, err, ledger.ErrStaleBalance)
}
