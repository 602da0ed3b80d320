package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SQLiteClientStore backs the OAuth client registry with the embedded
// database used in development deployments. Scopes are stored as a
// space-joined string.
type SQLiteClientStore struct {
	DB *sql.DB
}

func NewSQLiteClientStore(ctx context.Context, db *sql.DB) (*SQLiteClientStore, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS oauth_clients (
			client_id   TEXT PRIMARY KEY,
			secret_hash TEXT NOT NULL,
			scopes      TEXT NOT NULL DEFAULT ''
		)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create oauth_clients table: %w", err)
	}
	return &SQLiteClientStore{DB: db}, nil
}

// RegisterClient stores a client with a bcrypt-hashed secret. The plain
// secret is never persisted.
func (s *SQLiteClientStore) RegisterClient(ctx context.Context, clientID, secret string, scopes []string) error {
	hash, err := HashClientSecret(secret)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO oauth_clients (client_id, secret_hash, scopes) VALUES (?, ?, ?)`,
		clientID, hash, strings.Join(scopes, " "))
	if err != nil {
		return fmt.Errorf("failed to register client: %w", err)
	}
	return nil
}

func (s *SQLiteClientStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	var c Client
	var scopes string
	err := s.DB.QueryRowContext(ctx,
		`SELECT client_id, secret_hash, scopes FROM oauth_clients WHERE client_id = ?`,
		clientID).Scan(&c.ID, &c.SecretHash, &scopes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}
	if scopes != "" {
		c.Scopes = strings.Fields(scopes)
	}
	return &c, nil
}
