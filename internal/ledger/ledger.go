package ledger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/example/confidential-ledger/internal/scheme"
)

// HexBytes is a byte slice that serializes as 0x-prefixed hex.
type HexBytes []byte

// String renders the bytes as 0x-prefixed hex, matching the JSON form.
func (h HexBytes) String() string {
	return "0x" + hex.EncodeToString(h)
}

// MarshalJSON implements json.Marshaler.
func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	*h = b
	return nil
}

// User identifies an API caller for account access control.
type User struct {
	ID        int64     `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Asset is a confidential asset. Identity is a UUID; the ticker is a
// human-readable alias. Immutable once created.
type Asset struct {
	ID        string    `json:"asset_id"`
	Ticker    string    `json:"ticker"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Account is a confidential account. Its identity is the ElGamal public key.
type Account struct {
	ID        int64     `json:"account_id"`
	PublicKey HexBytes  `json:"public_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccountWithSecret pairs an account with its secret key. Never serialized
// to clients; call Wipe when done with it.
type AccountWithSecret struct {
	ID        int64
	PublicKey []byte

	secretKey []byte
}

// NewAccountWithSecret builds the pair from raw key material. The struct
// takes ownership of secretKey.
func NewAccountWithSecret(id int64, publicKey, secretKey []byte) *AccountWithSecret {
	return &AccountWithSecret{ID: id, PublicKey: publicKey, secretKey: secretKey}
}

// EncryptionKeys decodes the stored key material into a scheme key pair.
func (a *AccountWithSecret) EncryptionKeys() (*scheme.KeyPair, error) {
	pk, err := scheme.DecodePublicKey(a.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	sk, err := scheme.DecodeSecretKey(a.secretKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode secret key: %w", err)
	}
	return &scheme.KeyPair{Public: pk, Secret: sk}, nil
}

// Wipe overwrites the secret key buffer.
func (a *AccountWithSecret) Wipe() {
	for i := range a.secretKey {
		a.secretKey[i] = 0
	}
}

// AccountAsset is the per-(account, asset) balance row: the plaintext shadow
// balance and the encrypted balance. The two are only ever replaced together
// through UpdateAccountAsset; after every committed mutation the ciphertext
// decrypts to the plaintext.
type AccountAsset struct {
	ID         int64     `json:"account_asset_id"`
	AccountID  int64     `json:"account_id"`
	AssetID    string    `json:"asset_id"`
	Balance    uint64    `json:"balance"`
	EncBalance HexBytes  `json:"enc_balance"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// EncryptedBalance decodes the stored ciphertext.
func (aa *AccountAsset) EncryptedBalance() (*scheme.Ciphertext, error) {
	return scheme.DecodeCiphertext(aa.EncBalance)
}

// AccountAssetWithSecret is a balance row joined with the owning account's
// secret key. Never serialized to clients.
type AccountAssetWithSecret struct {
	AccountAsset
	Account *AccountWithSecret
}

// UpdateAccountAsset is the proposed next state of a balance row, computed by
// a ledger-mutating operation before it is durably committed. PrevVersion is
// the row version the update was derived from; the store rejects the write if
// the row has moved on.
type UpdateAccountAsset struct {
	AccountID   int64
	AssetID     string
	Balance     uint64
	EncBalance  []byte
	PrevVersion int64
}

// NewUpdate derives an update from the row it read.
func (aa *AccountAsset) NewUpdate(balance uint64, enc *scheme.Ciphertext) *UpdateAccountAsset {
	return &UpdateAccountAsset{
		AccountID:   aa.AccountID,
		AssetID:     aa.AssetID,
		Balance:     balance,
		EncBalance:  enc.Bytes(),
		PrevVersion: aa.Version,
	}
}
