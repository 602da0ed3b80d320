package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/confidential-ledger/internal/crypto"
	"github.com/example/confidential-ledger/internal/scheme"
)

// SQLiteStore implements Store on SQLite. Account secret keys are sealed
// with envelope encryption before they touch disk.
type SQLiteStore struct {
	db        *sql.DB
	encryptor *crypto.AEADEncryptor
}

// NewSQLiteStore creates the store and ensures the schema exists.
func NewSQLiteStore(db *sql.DB, encryptor *crypto.AEADEncryptor) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, encryptor: encryptor}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS assets (
		asset_id TEXT PRIMARY KEY,
		ticker TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS accounts (
		account_id INTEGER PRIMARY KEY AUTOINCREMENT,
		public_key BLOB UNIQUE NOT NULL,
		secret_ciphertext BLOB NOT NULL,
		secret_key_enc BLOB NOT NULL,
		secret_nonce BLOB NOT NULL,
		key_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS account_assets (
		account_asset_id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id INTEGER NOT NULL REFERENCES accounts(account_id),
		asset_id TEXT NOT NULL,
		balance INTEGER NOT NULL,
		enc_balance BLOB NOT NULL,
		version INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(account_id, asset_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateUser inserts a user.
func (s *SQLiteStore) CreateUser(ctx context.Context, username string) (*User, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, created_at, updated_at) VALUES (?, ?, ?)`,
		username, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read user id: %w", err)
	}
	return &User{ID: id, Username: username, CreatedAt: now, UpdatedAt: now}, nil
}

// GetUser fetches a user by name.
func (s *SQLiteStore) GetUser(ctx context.Context, username string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, username, created_at, updated_at FROM users WHERE username = ?`,
		username).Scan(&u.ID, &u.Username, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFound("user")
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

// ListUsers returns all users.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
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
func (s *SQLiteStore) CreateAsset(ctx context.Context, assetID, ticker string) (*Asset, error) {
	if assetID == "" {
		assetID = uuid.New().String()
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assets (asset_id, ticker, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		assetID, ticker, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert asset: %w", err)
	}
	return &Asset{ID: assetID, Ticker: ticker, CreatedAt: now, UpdatedAt: now}, nil
}

// GetAsset fetches an asset by id.
func (s *SQLiteStore) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	var a Asset
	err := s.db.QueryRowContext(ctx,
		`SELECT asset_id, ticker, created_at, updated_at FROM assets WHERE asset_id = ?`,
		assetID).Scan(&a.ID, &a.Ticker, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFound("asset")
		}
		return nil, fmt.Errorf("failed to query asset: %w", err)
	}
	return &a, nil
}

// GetAssetByTicker fetches an asset by its ticker symbol.
func (s *SQLiteStore) GetAssetByTicker(ctx context.Context, ticker string) (*Asset, error) {
	var a Asset
	err := s.db.QueryRowContext(ctx,
		`SELECT asset_id, ticker, created_at, updated_at FROM assets WHERE ticker = ?`,
		ticker).Scan(&a.ID, &a.Ticker, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFound("asset")
		}
		return nil, fmt.Errorf("failed to query asset: %w", err)
	}
	return &a, nil
}

// ListAssets returns all assets.
func (s *SQLiteStore) ListAssets(ctx context.Context) ([]*Asset, error) {
	rows, err := s.db.QueryContext(ctx,
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
func (s *SQLiteStore) EnsureAsset(ctx context.Context, assetID string) (*Asset, error) {
	asset, err := s.GetAsset(ctx, assetID)
	if err == nil {
		return asset, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}
	return s.CreateAsset(ctx, assetID, "")
}

// CreateAccount generates a fresh key pair and stores it, secret sealed.
func (s *SQLiteStore) CreateAccount(ctx context.Context) (*Account, error) {
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
	// The public key doubles as AAD so a sealed secret cannot be swapped
	// between account rows.
	sealed, err := s.encryptor.Encrypt(ctx, secretKey, keyID, publicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to seal secret key: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (public_key, secret_ciphertext, secret_key_enc, secret_nonce, key_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		publicKey, sealed.Ciphertext, sealed.EncryptedDataKey, sealed.Nonce, sealed.KeyID, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read account id: %w", err)
	}
	return &Account{ID: id, PublicKey: publicKey, CreatedAt: now, UpdatedAt: now}, nil
}

// GetAccount fetches an account by public key.
func (s *SQLiteStore) GetAccount(ctx context.Context, publicKey []byte) (*Account, error) {
	var a Account
	var pk []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT account_id, public_key, created_at, updated_at FROM accounts WHERE public_key = ?`,
		publicKey).Scan(&a.ID, &pk, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFound("account")
		}
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	a.PublicKey = pk
	return &a, nil
}

// ListAccounts returns all accounts (public parts only).
func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx,
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

// GetAccountWithSecret fetches an account and unseals its secret key. The
// caller must Wipe the result.
func (s *SQLiteStore) GetAccountWithSecret(ctx context.Context, publicKey []byte) (*AccountWithSecret, error) {
	var id int64
	var pk, ct, keyEnc, nonce []byte
	var keyID string
	err := s.db.QueryRowContext(ctx,
		`SELECT account_id, public_key, secret_ciphertext, secret_key_enc, secret_nonce, key_id
		 FROM accounts WHERE public_key = ?`,
		publicKey).Scan(&id, &pk, &ct, &keyEnc, &nonce, &keyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

// InitAccountAsset opts an account into an asset with a zero balance and the
// canonical encryption of zero.
func (s *SQLiteStore) InitAccountAsset(ctx context.Context, publicKey []byte, assetID string) (*AccountAsset, error) {
	account, err := s.GetAccount(ctx, publicKey)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetAsset(ctx, assetID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	encZero := scheme.ZeroCiphertext().Bytes()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO account_assets (account_id, asset_id, balance, enc_balance, version, created_at, updated_at)
		 VALUES (?, ?, 0, ?, 1, ?, ?)`,
		account.ID, assetID, encZero, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account asset: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read account asset id: %w", err)
	}
	return &AccountAsset{
		ID: id, AccountID: account.ID, AssetID: assetID,
		Balance: 0, EncBalance: encZero, Version: 1,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

// GetAccountAsset fetches the balance row for (account public key, asset).
func (s *SQLiteStore) GetAccountAsset(ctx context.Context, publicKey []byte, assetID string) (*AccountAsset, error) {
	account, err := s.GetAccount(ctx, publicKey)
	if err != nil {
		return nil, err
	}
	return s.getAccountAssetByID(ctx, account.ID, assetID)
}

func (s *SQLiteStore) getAccountAssetByID(ctx context.Context, accountID int64, assetID string) (*AccountAsset, error) {
	var aa AccountAsset
	var enc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT account_asset_id, account_id, asset_id, balance, enc_balance, version, created_at, updated_at
		 FROM account_assets WHERE account_id = ? AND asset_id = ?`,
		accountID, assetID).Scan(&aa.ID, &aa.AccountID, &aa.AssetID, &aa.Balance, &enc, &aa.Version, &aa.CreatedAt, &aa.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFound("account asset")
		}
		return nil, fmt.Errorf("failed to query account asset: %w", err)
	}
	aa.EncBalance = enc
	return &aa, nil
}

// GetAccountAssetWithSecret joins the balance row with the unsealed account
// secret. The caller must Wipe the embedded account.
func (s *SQLiteStore) GetAccountAssetWithSecret(ctx context.Context, publicKey []byte, assetID string) (*AccountAssetWithSecret, error) {
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
func (s *SQLiteStore) ListAccountAssets(ctx context.Context, publicKey []byte) ([]*AccountAsset, error) {
	account, err := s.GetAccount(ctx, publicKey)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_asset_id, account_id, asset_id, balance, enc_balance, version, created_at, updated_at
		 FROM account_assets WHERE account_id = ? ORDER BY asset_id`,
		account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query account assets: %w", err)
	}
	defer rows.Close()

	var out []*AccountAsset
	for rows.Next() {
		var aa AccountAsset
		var enc []byte
		if err := rows.Scan(&aa.ID, &aa.AccountID, &aa.AssetID, &aa.Balance, &enc, &aa.Version, &aa.CreatedAt, &aa.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account asset: %w", err)
		}
		aa.EncBalance = enc
		out = append(out, &aa)
	}
	return out, rows.Err()
}

// UpdateAccountAsset commits an update: a compare-and-replace on the row
// version. Plaintext and ciphertext always move together.
func (s *SQLiteStore) UpdateAccountAsset(ctx context.Context, update *UpdateAccountAsset, upsert bool) (*AccountAsset, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE account_assets SET balance = ?, enc_balance = ?, version = version + 1, updated_at = ?
		 WHERE account_id = ? AND asset_id = ? AND version = ?`,
		int64(update.Balance), update.EncBalance, now,
		update.AccountID, update.AssetID, update.PrevVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to update account asset: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 1 {
		return s.getAccountAssetByID(ctx, update.AccountID, update.AssetID)
	}

	// No row moved: either the version is stale or the row is missing.
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

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO account_assets (account_id, asset_id, balance, enc_balance, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?)`,
		update.AccountID, update.AssetID, int64(update.Balance), update.EncBalance, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account asset: %w", err)
	}
	return s.getAccountAssetByID(ctx, update.AccountID, update.AssetID)
}

func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
