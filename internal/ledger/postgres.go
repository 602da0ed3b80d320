package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/confidential-ledger/internal/crypto"
	"github.com/example/confidential-ledger/internal/scheme"
)

// PostgresStore implements Store on Postgres for multi-instance deployments.
type PostgresStore struct {
	Pool      *pgxpool.Pool
	encryptor *crypto.AEADEncryptor
}

// NewPostgresStore creates the store and ensures the schema exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, encryptor *crypto.AEADEncryptor) (*PostgresStore, error) {
	s := &PostgresStore{Pool: pool, encryptor: encryptor}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id BIGSERIAL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS assets (
		asset_id TEXT PRIMARY KEY,
		ticker TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS accounts (
		account_id BIGSERIAL PRIMARY KEY,
		public_key BYTEA UNIQUE NOT NULL,
		secret_ciphertext BYTEA NOT NULL,
		secret_key_enc BYTEA NOT NULL,
		secret_nonce BYTEA NOT NULL,
		key_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS account_assets (
		account_asset_id BIGSERIAL PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES accounts(account_id),
		asset_id TEXT NOT NULL,
		balance BIGINT NOT NULL,
		enc_balance BYTEA NOT NULL,
		version BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE(account_id, asset_id)
	);
	`
	_, err := s.Pool.Exec(ctx, schema)
	return err
}

// CreateUser inserts a user.
func (s *PostgresStore) CreateUser(ctx context.Context, username string) (*User, error) {
	now := time.Now().UTC()
	var u User
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO users (username, created_at, updated_at) VALUES ($1, $2, $3)
		 RETURNING user_id, username, created_at, updated_at`,
		username, now, now).Scan(&u.ID, &u.Username, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return &u, nil
}

// GetUser fetches a user by name.
func (s *PostgresStore) GetUser(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.Pool.QueryRow(ctx,
		`SELECT user_id, username, created_at, updated_at FROM users WHERE username = $1`,
		username).Scan(&u.ID, &u.Username, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFound("user")
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

// ListUsers returns all users.
func (s *PostgresStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT user_id, username, created_at, updated_at FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// CreateAsset inserts an asset. An empty assetID gets a fresh UUID.
func (s *PostgresStore) CreateAsset(ctx context.Context, assetID, ticker string) (*Asset, error) {
	if assetID == "" {
		assetID = uuid.New().String()
	}
	now := time.Now().UTC()
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO assets (asset_id, ticker, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		assetID, ticker, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert asset: %w", err)
	}
	return &Asset{ID: assetID, Ticker: ticker, CreatedAt: now, UpdatedAt: now}, nil
}

// GetAsset fetches an asset by id.
func (s *PostgresStore) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	var a Asset
	err := s.Pool.QueryRow(ctx,
		`SELECT asset_id, ticker, created_at, updated_at FROM assets WHERE asset_id = $1`,
		assetID).Scan(&a.ID, &a.Ticker, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFound("asset")
		}
		return nil, fmt.Errorf("failed to query asset: %w", err)
	}
	return &a, nil
}

// GetAssetByTicker fetches an asset by its ticker symbol.
func (s *PostgresStore) GetAssetByTicker(ctx context.Context, ticker string) (*Asset, error) {
	var a Asset
	err := s.Pool.QueryRow(ctx,
		`SELECT asset_id, ticker, created_at, updated_at FROM assets WHERE ticker = $1`,
		ticker).Scan(&a.ID, &a.Ticker, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFound("asset")
		}
		return nil, fmt.Errorf("failed to query asset: %w", err)
	}
	return &a, nil
}

// ListAssets returns all assets.
func (s *PostgresStore) ListAssets(ctx context.Context) ([]*Asset, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT asset_id, ticker, created_at, updated_at FROM assets ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []*Asset
	for rows.Next() {
		var a Asset
		if err := rows.Scan(&a.ID, &a.Ticker, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, &a)
	}
	return assets, rows.Err()
}

// EnsureAsset mirrors a chain-created asset locally, create-if-absent.
func (s *PostgresStore) EnsureAsset(ctx context.Context, assetID string) (*Asset, error) {
	now := time.Now().UTC()
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO assets (asset_id, ticker, created_at, updated_at) VALUES ($1, '', $2, $3)
		 ON CONFLICT (asset_id) DO NOTHING`,
		assetID, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure asset: %w", err)
	}
	return s.GetAsset(ctx, assetID)
}

// CreateAccount generates a fresh key pair and stores it, secret sealed.
func (s *PostgresStore) CreateAccount(ctx context.Context) (*Account, error) {
	keys, err := scheme.GenerateKeyPair(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	defer keys.Secret.Wipe()

	publicKey := keys.Public.Bytes()
	secretKey := keys.Secret.Bytes()
	defer wipeBytes(secretKey)

	keyID, err := s.encryptor.KeyID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve key id: %w", err)
	}
	sealed, err := s.encryptor.Encrypt(ctx, secretKey, keyID, publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to seal secret key: %w", err)
	}

	now := time.Now().UTC()
	var id int64
	err = s.Pool.QueryRow(ctx,
		`INSERT INTO accounts (public_key, secret_ciphertext, secret_key_enc, secret_nonce, key_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING account_id`,
		publicKey, sealed.Ciphertext, sealed.EncryptedDataKey, sealed.Nonce, sealed.KeyID, now, now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}
	return &Account{ID: id, PublicKey: publicKey, CreatedAt: now, UpdatedAt: now}, nil
}

// GetAccount fetches an account by public key.
func (s *PostgresStore) GetAccount(ctx context.Context, publicKey []byte) (*Account, error) {
	var a Account
	var pk []byte
	err := s.Pool.QueryRow(ctx,
		`SELECT account_id, public_key, created_at, updated_at FROM accounts WHERE public_key = $1`,
		publicKey).Scan(&a.ID, &pk, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFound("account")
		}
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	a.PublicKey = pk
	return &a, nil
}

// ListAccounts returns all accounts (public parts only).
func (s *PostgresStore) ListAccounts(ctx context.Context) ([]*Account, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT account_id, public_key, created_at, updated_at FROM accounts ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		var a Account
		var pk []byte
		if err := rows.Scan(&a.ID, &pk, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.PublicKey = pk
		accounts = append(accounts, &a)
	}
	return accounts, rows.Err()
}

// GetAccountWithSecret fetches an account and unseals its secret key.
func (s *PostgresStore) GetAccountWithSecret(ctx context.Context, publicKey []byte) (*AccountWithSecret, error) {
	var id int64
	var pk, ct, keyEnc, nonce []byte
	var keyID string
	err := s.Pool.QueryRow(ctx,
		`SELECT account_id, public_key, secret_ciphertext, secret_key_enc, secret_nonce, key_id
		 FROM accounts WHERE public_key = $1`,
		publicKey).Scan(&id, &pk, &ct, &keyEnc, &nonce, &keyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFound("account")
		}
		return nil, fmt.Errorf("failed to query account: %w", err)
	}

	secret, err := s.encryptor.Decrypt(ctx, &crypto.EncryptedData{
		Ciphertext:       ct,
		EncryptedDataKey: keyEnc,
		Nonce:            nonce,
		KeyID:            keyID,
		AdditionalData:   pk,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unseal secret key: %w", err)
	}
	return NewAccountWithSecret(id, pk, secret), nil
}

// InitAccountAsset opts an account into an asset with a zero balance.
func (s *PostgresStore) InitAccountAsset(ctx context.Context, publicKey []byte, assetID string) (*AccountAsset, error) {
	account, err := s.GetAccount(ctx, publicKey)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetAsset(ctx, assetID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	encZero := scheme.ZeroCiphertext().Bytes()
	var id int64
	err = s.Pool.QueryRow(ctx,
		`INSERT INTO account_assets (account_id, asset_id, balance, enc_balance, version, created_at, updated_at)
		 VALUES ($1, $2, 0, $3, 1, $4, $5) RETURNING account_asset_id`,
		account.ID, assetID, encZero, now, now).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account asset: %w", err)
	}
	return &AccountAsset{
		ID: id, AccountID: account.ID, AssetID: assetID,
		Balance: 0, EncBalance: encZero, Version: 1,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

// GetAccountAsset fetches the balance row for (account public key, asset).
func (s *PostgresStore) GetAccountAsset(ctx context.Context, publicKey []byte, assetID string) (*AccountAsset, error) {
	account, err := s.GetAccount(ctx, publicKey)
	if err != nil {
		return nil, err
	}
	return s.getAccountAssetByID(ctx, account.ID, assetID)
}

func (s *PostgresStore) getAccountAssetByID(ctx context.Context, accountID int64, assetID string) (*AccountAsset, error) {
	var aa AccountAsset
	var enc []byte
	var balance int64
	err := s.Pool.QueryRow(ctx,
		`SELECT account_asset_id, account_id, asset_id, balance, enc_balance, version, created_at, updated_at
		 FROM account_assets WHERE account_id = $1 AND asset_id = $2`,
		accountID, assetID).Scan(&aa.ID, &aa.AccountID, &aa.AssetID, &balance, &enc, &aa.Version, &aa.CreatedAt, &aa.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, NotFound("account asset")
		}
		return nil, fmt.Errorf("failed to query account asset: %w", err)
	}
	aa.Balance = uint64(balance)
	aa.EncBalance = enc
	return &aa, nil
}

// GetAccountAssetWithSecret joins the balance row with the unsealed secret.
func (s *PostgresStore) GetAccountAssetWithSecret(ctx context.Context, publicKey []byte, assetID string) (*AccountAssetWithSecret, error) {
	account, err := s.GetAccountWithSecret(ctx, publicKey)
	if err != nil {
		return nil, err
	}
	aa, err := s.getAccountAssetByID(ctx, account.ID, assetID)
	if err != nil {
		account.Wipe()
		return nil, err
	}
	return &AccountAssetWithSecret{AccountAsset: *aa, Account: account}, nil
}

// ListAccountAssets returns all balance rows for an account.
func (s *PostgresStore) ListAccountAssets(ctx context.Context, publicKey []byte) ([]*AccountAsset, error) {
	account, err := s.GetAccount(ctx, publicKey)
	if err != nil {
		return nil, err
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT account_asset_id, account_id, asset_id, balance, enc_balance, version, created_at, updated_at
		 FROM account_assets WHERE account_id = $1 ORDER BY asset_id`,
		account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query account assets: %w", err)
	}
	defer rows.Close()

	var out []*AccountAsset
	for rows.Next() {
		var aa AccountAsset
		var enc []byte
		var balance int64
		if err := rows.Scan(&aa.ID, &aa.AccountID, &aa.AssetID, &balance, &enc, &aa.Version, &aa.CreatedAt, &aa.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account asset: %w", err)
		}
		aa.Balance = uint64(balance)
		aa.EncBalance = enc
		out = append(out, &aa)
	}
	return out, rows.Err()
}

// UpdateAccountAsset commits an update with a version compare-and-replace.
func (s *PostgresStore) UpdateAccountAsset(ctx context.Context, update *UpdateAccountAsset, upsert bool) (*AccountAsset, error) {
	now := time.Now().UTC()
	tag, err := s.Pool.Exec(ctx,
		`UPDATE account_assets SET balance = $1, enc_balance = $2, version = version + 1, updated_at = $3
		 WHERE account_id = $4 AND asset_id = $5 AND version = $6`,
		int64(update.Balance), update.EncBalance, now,
		update.AccountID, update.AssetID, update.PrevVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to update account asset: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return s.getAccountAssetByID(ctx, update.AccountID, update.AssetID)
	}

	_, err = s.getAccountAssetByID(ctx, update.AccountID, update.AssetID)
	if err == nil {
		return nil, ErrStaleBalance
	}
	if !IsNotFound(err) {
		return nil, err
	}
	if !upsert {
		return nil, NotFound("account asset")
	}

	_, err = s.Pool.Exec(ctx,
		`INSERT INTO account_assets (account_id, asset_id, balance, enc_balance, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 1, $5, $6)`,
		update.AccountID, update.AssetID, int64(update.Balance), update.EncBalance, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account asset: %w", err)
	}
	return s.getAccountAssetByID(ctx, update.AccountID, update.AssetID)
}
