// Package proofs implements the proof engine: the operations that derive
// balance updates and transfer proofs from an account's encrypted state.
//
// Engine methods never write to the store themselves. They return an
// UpdateAccountAsset carrying the version the computation was derived from;
// callers commit it with Commit only after any external submission (chain
// wait, proof delivery) has succeeded.
package proofs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/example/confidential-ledger/internal/ledger"
	"github.com/example/confidential-ledger/internal/scheme"
)

// ErrOverflow is returned when a credit would push a balance past the
// supported total supply.
var ErrOverflow = errors.New("balance overflow")

// VerifyResult is the outcome of a proof verification. Malformed or
// non-verifying proofs are reported through IsValid and ErrMsg, never as
// program errors.
type VerifyResult struct {
	IsValid bool    `json:"is_valid"`
	Amount  *uint64 `json:"amount,omitempty"`
	ErrMsg  string  `json:"err_msg,omitempty"`
}

func invalid(err error) VerifyResult {
	return VerifyResult{IsValid: false, ErrMsg: err.Error()}
}

func valid(amount uint64) VerifyResult {
	return VerifyResult{IsValid: true, Amount: &amount}
}

// Engine binds proof operations to a ledger store.
type Engine struct {
	store  ledger.Store
	logger *slog.Logger
	rng    io.Reader
}

// NewEngine creates a proof engine. rng may be nil to use crypto/rand.
func NewEngine(store ledger.Store, logger *slog.Logger, rng io.Reader) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger.With("component", "proof_engine"), rng: rng}
}

// AccountAsset loads the balance row with its unsealed secret. The caller
// owns the secret and must Wipe it.
func (e *Engine) AccountAsset(ctx context.Context, publicKey []byte, assetID string) (*ledger.AccountAssetWithSecret, error) {
	return e.store.GetAccountAssetWithSecret(ctx, publicKey, assetID)
}

// Commit applies a derived update to the store.
func (e *Engine) Commit(ctx context.Context, update *ledger.UpdateAccountAsset, upsert bool) (*ledger.AccountAsset, error) {
	return e.store.UpdateAccountAsset(ctx, update, upsert)
}

// prior resolves the ciphertext and plaintext the operation works from.
// A nil priorEnc means the local row; a supplied ciphertext (typically the
// chain's view) is decrypted so both representations stay in lock step.
func (e *Engine) prior(aa *ledger.AccountAssetWithSecret, keys *scheme.KeyPair, priorEnc []byte) (*scheme.Ciphertext, uint64, error) {
	if priorEnc == nil {
		ct, err := aa.EncryptedBalance()
		if err != nil {
			return nil, 0, fmt.Errorf("failed to decode local encrypted balance: %w", err)
		}
		return ct, aa.Balance, nil
	}
	ct, err := scheme.DecodeCiphertext(priorEnc)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode prior encrypted balance: %w", err)
	}
	balance, err := keys.Secret.Decrypt(ct, scheme.MaxTotalSupply)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decrypt prior balance: %w", err)
	}
	return ct, balance, nil
}

// Mint credits amount to the account's balance.
func (e *Engine) Mint(ctx context.Context, aa *ledger.AccountAssetWithSecret, amount uint64) (*ledger.UpdateAccountAsset, error) {
	keys, err := aa.Account.EncryptionKeys()
	if err != nil {
		return nil, err
	}
	prior, priorBalance, err := e.prior(aa, keys, nil)
	if err != nil {
		return nil, err
	}
	if amount > scheme.MaxTotalSupply || priorBalance > scheme.MaxTotalSupply-amount {
		return nil, ErrOverflow
	}
	minted, err := scheme.Encrypt(keys.Public, amount, e.rng)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt mint amount: %w", err)
	}
	return aa.NewUpdate(priorBalance+amount, prior.Add(minted)), nil
}

// CreateSendProof builds a transfer proof for amount to receiverPK and the
// matching sender balance update. Insufficient balance is rejected before any
// proof work.
func (e *Engine) CreateSendProof(ctx context.Context, aa *ledger.AccountAssetWithSecret, priorEnc []byte, receiverPK []byte, auditorPKs [][]byte, amount uint64) (*ledger.UpdateAccountAsset, *scheme.TransferProof, error) {
	keys, err := aa.Account.EncryptionKeys()
	if err != nil {
		return nil, nil, err
	}
	rpk, err := scheme.DecodePublicKey(receiverPK)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode receiver public key: %w", err)
	}
	apks, err := decodePublicKeys(auditorPKs)
	if err != nil {
		return nil, nil, err
	}
	prior, priorBalance, err := e.prior(aa, keys, priorEnc)
	if err != nil {
		return nil, nil, err
	}
	proof, err := scheme.NewTransferProof(keys, prior, priorBalance, rpk, apks, amount, e.rng)
	if err != nil {
		return nil, nil, err
	}
	return aa.NewUpdate(priorBalance-amount, prior.Sub(proof.SenderAmount())), proof, nil
}

// CreateBurnProof builds a burn proof: a transfer with no receiver.
func (e *Engine) CreateBurnProof(ctx context.Context, aa *ledger.AccountAssetWithSecret, priorEnc []byte, auditorPKs [][]byte, amount uint64) (*ledger.UpdateAccountAsset, *scheme.TransferProof, error) {
	keys, err := aa.Account.EncryptionKeys()
	if err != nil {
		return nil, nil, err
	}
	apks, err := decodePublicKeys(auditorPKs)
	if err != nil {
		return nil, nil, err
	}
	prior, priorBalance, err := e.prior(aa, keys, priorEnc)
	if err != nil {
		return nil, nil, err
	}
	proof, err := scheme.NewBurnProof(keys, prior, priorBalance, apks, amount, e.rng)
	if err != nil {
		return nil, nil, err
	}
	return aa.NewUpdate(priorBalance-amount, prior.Sub(proof.SenderAmount())), proof, nil
}

// ReceiverVerify checks a proof capsule against the receiving account and the
// claimed amount.
func (e *Engine) ReceiverVerify(ctx context.Context, proofBytes []byte, aa *ledger.AccountAssetWithSecret, amount uint64) VerifyResult {
	proof, err := scheme.DecodeTransferProof(proofBytes)
	if err != nil {
		return invalid(err)
	}
	keys, err := aa.Account.EncryptionKeys()
	if err != nil {
		return invalid(err)
	}
	if err := proof.ReceiverVerify(keys, amount); err != nil {
		return invalid(err)
	}
	return valid(amount)
}

// AuditorVerify checks the auditor slot at idx. A nil amount means "recover
// the amount"; a non-nil amount is checked against the slot.
func (e *Engine) AuditorVerify(ctx context.Context, proofBytes []byte, aa *ledger.AccountAssetWithSecret, idx int, amount *uint64) VerifyResult {
	proof, err := scheme.DecodeTransferProof(proofBytes)
	if err != nil {
		return invalid(err)
	}
	keys, err := aa.Account.EncryptionKeys()
	if err != nil {
		return invalid(err)
	}
	recovered, err := proof.AuditorVerify(idx, keys, amount)
	if err != nil {
		return invalid(err)
	}
	return valid(recovered)
}

// VerifySendProof runs the third-party checks: capsule binding, named
// parties, and the sender balance the proof was built against. senderBalance
// and receiverPK may be nil to skip those checks.
func (e *Engine) VerifySendProof(senderPK, senderBalance, receiverPK []byte, auditorPKs [][]byte, proofBytes []byte) VerifyResult {
	proof, err := scheme.DecodeTransferProof(proofBytes)
	if err != nil {
		return invalid(err)
	}
	spk, err := scheme.DecodePublicKey(senderPK)
	if err != nil {
		return invalid(fmt.Errorf("failed to decode sender public key: %w", err))
	}
	var rpk *scheme.PublicKey
	if receiverPK != nil {
		if rpk, err = scheme.DecodePublicKey(receiverPK); err != nil {
			return invalid(fmt.Errorf("failed to decode receiver public key: %w", err))
		}
	}
	var balance *scheme.Ciphertext
	if senderBalance != nil {
		if balance, err = scheme.DecodeCiphertext(senderBalance); err != nil {
			return invalid(fmt.Errorf("failed to decode sender balance: %w", err))
		}
	}
	apks, err := decodePublicKeys(auditorPKs)
	if err != nil {
		return invalid(err)
	}
	if err := proof.Verify(spk, balance, rpk, apks); err != nil {
		return invalid(err)
	}
	return VerifyResult{IsValid: true}
}

// ApplyIncoming folds a received encrypted amount into the balance.
func (e *Engine) ApplyIncoming(ctx context.Context, aa *ledger.AccountAssetWithSecret, incomingEnc []byte) (*ledger.UpdateAccountAsset, error) {
	keys, err := aa.Account.EncryptionKeys()
	if err != nil {
		return nil, err
	}
	incoming, err := scheme.DecodeCiphertext(incomingEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode incoming ciphertext: %w", err)
	}
	amount, err := keys.Secret.Decrypt(incoming, scheme.MaxTotalSupply)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt incoming amount: %w", err)
	}
	prior, priorBalance, err := e.prior(aa, keys, nil)
	if err != nil {
		return nil, err
	}
	if priorBalance > scheme.MaxTotalSupply-amount {
		return nil, ErrOverflow
	}
	return aa.NewUpdate(priorBalance+amount, prior.Add(incoming)), nil
}

// Decrypt recovers the amount of an arbitrary ciphertext under the account's
// key.
func (e *Engine) Decrypt(aa *ledger.AccountAssetWithSecret, encrypted []byte) (uint64, error) {
	keys, err := aa.Account.EncryptionKeys()
	if err != nil {
		return 0, err
	}
	ct, err := scheme.DecodeCiphertext(encrypted)
	if err != nil {
		return 0, fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	return keys.Secret.Decrypt(ct, scheme.MaxTotalSupply)
}

// UpdateBalance resyncs the local row from an externally supplied ciphertext,
// typically the chain's current view of the account balance.
func (e *Engine) UpdateBalance(ctx context.Context, aa *ledger.AccountAssetWithSecret, encrypted []byte) (*ledger.UpdateAccountAsset, error) {
	keys, err := aa.Account.EncryptionKeys()
	if err != nil {
		return nil, err
	}
	ct, err := scheme.DecodeCiphertext(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	balance, err := keys.Secret.Decrypt(ct, scheme.MaxTotalSupply)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt chain balance: %w", err)
	}
	return aa.NewUpdate(balance, ct), nil
}

func decodePublicKeys(raw [][]byte) ([]*scheme.PublicKey, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]*scheme.PublicKey, len(raw))
	for i, b := range raw {
		pk, err := scheme.DecodePublicKey(b)
		if err != nil {
			return nil, fmt.Errorf("failed to decode auditor public key %d: %w", i, err)
		}
		out[i] = pk
	}
	return out, nil
}
