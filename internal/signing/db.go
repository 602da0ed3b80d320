package signing

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/confidential-ledger/internal/crypto"
)

// DBManager is a SQL-backed Manager. Secret keys are sealed with the KMS
// envelope before they touch the database and unsealed only inside
// GetSigner; the seed buffer is overwritten as soon as the in-memory signer
// is constructed.
type DBManager struct {
	db        *sql.DB
	encryptor *crypto.AEADEncryptor
}

// NewDBManager creates the manager and ensures the signer table exists.
func NewDBManager(db *sql.DB, encryptor *crypto.AEADEncryptor) (*DBManager, error) {
	m := &DBManager{db: db, encryptor: encryptor}
	if err := m.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to init signer schema: %w", err)
	}
	return m, nil
}

func (m *DBManager) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS signers (
		signer_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		public_key BLOB NOT NULL,
		secret_ciphertext BLOB NOT NULL,
		secret_key_enc BLOB NOT NULL,
		secret_nonce BLOB NOT NULL,
		key_id TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	`
	_, err := m.db.Exec(schema)
	return err
}

// CreateSigner generates a fresh ed25519 key under the given name.
func (m *DBManager) CreateSigner(ctx context.Context, name string) (*SignerInfo, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	seed := private.Seed()
	defer wipe(seed)
	defer wipe(private)

	keyID, err := m.encryptor.KeyID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve key id: %w", err)
	}
	sealed, err := m.encryptor.Encrypt(ctx, seed, keyID, []byte(public))
	if err != nil {
		return nil, fmt.Errorf("failed to seal signing key: %w", err)
	}

	now := time.Now().UTC()
	_, err = m.db.ExecContext(ctx,
		`INSERT INTO signers (name, public_key, secret_ciphertext, secret_key_enc, secret_nonce, key_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		name, []byte(public), sealed.Ciphertext, sealed.EncryptedDataKey, sealed.Nonce, sealed.KeyID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert signer: %w", err)
	}
	return &SignerInfo{Name: name, PublicKey: public, CreatedAt: now}, nil
}

// GetSigner unseals the named key and returns a ready Signer.
func (m *DBManager) GetSigner(ctx context.Context, name string) (Signer, error) {
	var publicKey, ct, keyEnc, nonce []byte
	var keyID string
	err := m.db.QueryRowContext(ctx,
		`SELECT public_key, secret_ciphertext, secret_key_enc, secret_nonce, key_id
		 FROM signers WHERE name = ?`,
		name).Scan(&publicKey, &ct, &keyEnc, &nonce, &keyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query signer: %w", err)
	}

	seed, err := m.encryptor.Decrypt(ctx, &crypto.EncryptedData{
		Ciphertext:       ct,
		EncryptedDataKey: keyEnc,
		Nonce:            nonce,
		KeyID:            keyID,
		AdditionalData:   publicKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unseal signing key: %w", err)
	}
	private := ed25519.NewKeyFromSeed(seed)
	wipe(seed)

	return &keySigner{name: name, public: publicKey, private: private}, nil
}

// GetSignerInfo returns the public record for a signer name.
func (m *DBManager) GetSignerInfo(ctx context.Context, name string) (*SignerInfo, error) {
	var info SignerInfo
	err := m.db.QueryRowContext(ctx,
		`SELECT name, public_key, created_at FROM signers WHERE name = ?`,
		name).Scan(&info.Name, &info.PublicKey, &info.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query signer: %w", err)
	}
	return &info, nil
}

// ListSigners returns all signer records.
func (m *DBManager) ListSigners(ctx context.Context) ([]*SignerInfo, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT name, public_key, created_at FROM signers ORDER BY signer_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query signers: %w", err)
	}
	defer rows.Close()

	var out []*SignerInfo
	for rows.Next() {
		var info SignerInfo
		if err := rows.Scan(&info.Name, &info.PublicKey, &info.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan signer: %w", err)
		}
		out = append(out, &info)
	}
	return out, rows.Err()
}

type keySigner struct {
	name    string
	public  []byte
	private ed25519.PrivateKey
}

func (s *keySigner) AccountIdentity() []byte {
	return s.public
}

func (s *keySigner) Sign(payload []byte) ([]byte, error) {
	return ed25519.Sign(s.private, payload), nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
