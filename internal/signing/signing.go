// Package signing manages the chain signing keys used to submit transactions.
// Callers work against the Manager and Signer interfaces and never learn
// which backend holds the key material.
package signing

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned for unknown signer names.
var ErrNotFound = errors.New("signer not found")

// Signer signs chain submissions on behalf of one on-chain identity.
type Signer interface {
	// AccountIdentity returns the public identity the chain knows the
	// signer by.
	AccountIdentity() []byte
	// Sign signs the canonical encoding of a chain call.
	Sign(payload []byte) ([]byte, error)
}

// SignerInfo is the public record of a managed signer.
type SignerInfo struct {
	Name      string    `json:"name"`
	PublicKey []byte    `json:"public_key"`
	CreatedAt time.Time `json:"created_at"`
}

// Manager stores signers and hands out ready-to-use Signer values.
type Manager interface {
	CreateSigner(ctx context.Context, name string) (*SignerInfo, error)
	GetSigner(ctx context.Context, name string) (Signer, error)
	GetSignerInfo(ctx context.Context, name string) (*SignerInfo, error)
	ListSigners(ctx context.Context) ([]*SignerInfo, error)
}
