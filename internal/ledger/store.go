package ledger

import (
	"context"
)

// Store is the persistence contract for the confidential ledger. Two
// implementations exist: SQLite (default deployment) and Postgres.
//
// UpdateAccountAsset is the single write path for balances: plaintext and
// ciphertext are replaced together, guarded by the row version the update
// was derived from. With upsert=false a missing row is a NotFoundError;
// with upsert=true (chain reconciliation) the row is created.
type Store interface {
	CreateUser(ctx context.Context, username string) (*User, error)
	GetUser(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)

	CreateAsset(ctx context.Context, assetID, ticker string) (*Asset, error)
	GetAsset(ctx context.Context, assetID string) (*Asset, error)
	GetAssetByTicker(ctx context.Context, ticker string) (*Asset, error)
	ListAssets(ctx context.Context) ([]*Asset, error)
	// EnsureAsset mirrors a chain-created asset locally, create-if-absent.
	EnsureAsset(ctx context.Context, assetID string) (*Asset, error)

	CreateAccount(ctx context.Context) (*Account, error)
	GetAccount(ctx context.Context, publicKey []byte) (*Account, error)
	ListAccounts(ctx context.Context) ([]*Account, error)
	GetAccountWithSecret(ctx context.Context, publicKey []byte) (*AccountWithSecret, error)

	InitAccountAsset(ctx context.Context, publicKey []byte, assetID string) (*AccountAsset, error)
	GetAccountAsset(ctx context.Context, publicKey []byte, assetID string) (*AccountAsset, error)
	GetAccountAssetWithSecret(ctx context.Context, publicKey []byte, assetID string) (*AccountAssetWithSecret, error)
	ListAccountAssets(ctx context.Context, publicKey []byte) ([]*AccountAsset, error)
	UpdateAccountAsset(ctx context.Context, update *UpdateAccountAsset, upsert bool) (*AccountAsset, error)
}
