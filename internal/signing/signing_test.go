package signing

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/confidential-ledger/internal/crypto"
)

func newTestManager(t *testing.T) *DBManager {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	kms, err := crypto.NewFileBasedKMS(crypto.FileBasedKMSConfig{KeyStorePath: t.TempDir()})
	require.NoError(t, err)

	manager, err := NewDBManager(db, crypto.NewAEADEncryptor(kms))
	require.NoError(t, err)
	return manager
}

func TestCreateAndGetSigner(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	info, err := manager.CreateSigner(ctx, "treasury")
	require.NoError(t, err)
	assert.Equal(t, "treasury", info.Name)
	assert.Len(t, info.PublicKey, ed25519.PublicKeySize)

	signer, err := manager.GetSigner(ctx, "treasury")
	require.NoError(t, err)
	assert.Equal(t, info.PublicKey, signer.AccountIdentity())

	payload := []byte("canonical call encoding")
	sig, err := signer.Sign(payload)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(ed25519.PublicKey(info.PublicKey), payload, sig))
}

func TestGetSignerNotFound(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	_, err := manager.GetSigner(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = manager.GetSignerInfo(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSigners(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	_, err := manager.CreateSigner(ctx, "alice")
	require.NoError(t, err)
	_, err = manager.CreateSigner(ctx, "bob")
	require.NoError(t, err)

	signers, err := manager.ListSigners(ctx)
	require.NoError(t, err)
	require.Len(t, signers, 2)
	assert.Equal(t, "alice", signers[0].Name)
	assert.Equal(t, "bob", signers[1].Name)

	info, err := manager.GetSignerInfo(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", info.Name)
}

func TestDuplicateSignerName(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	_, err := manager.CreateSigner(ctx, "alice")
	require.NoError(t, err)
	_, err = manager.CreateSigner(ctx, "alice")
	assert.Error(t, err)
}
