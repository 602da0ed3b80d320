package scheme

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254"
)

// ErrInvalidProof means a proof capsule failed its binding or amount checks.
// Callers generally surface this as a structured verify result rather than a
// program error.
var ErrInvalidProof = errors.New("invalid proof")

const proofVersion byte = 1

const transcriptDomain = "confidential-ledger/transfer-proof/v1"

// TransferProof is the sealed capsule produced when a sender moves value. It
// carries the amount encrypted under the sender's, receiver's and every
// auditor's key, bound to the prior balance ciphertext and all party keys by
// a transcript hash. The capsule is treated as opaque bytes everywhere
// outside this package.
//
// A burn proof is a transfer proof with no receiver slot.
type TransferProof struct {
	senderPK   *PublicKey
	receiverPK *PublicKey
	auditorPKs []*PublicKey

	refBalance     *Ciphertext
	senderAmount   *Ciphertext
	receiverAmount *Ciphertext
	auditorAmounts []*Ciphertext

	transcript [sha256.Size]byte
}

// NewTransferProof builds a sender proof for moving amount to receiverPK.
// priorCT is the sender's encrypted balance the proof is computed against and
// priorBalance its known plaintext. Fails before any encryption when the
// amount is out of range or exceeds the balance.
func NewTransferProof(sender *KeyPair, priorCT *Ciphertext, priorBalance uint64, receiverPK *PublicKey, auditorPKs []*PublicKey, amount uint64, rng io.Reader) (*TransferProof, error) {
	if receiverPK == nil {
		return nil, errors.New("receiver public key is required")
	}
	return newProof(sender, priorCT, priorBalance, receiverPK, auditorPKs, amount, rng)
}

// NewBurnProof builds a proof that removes amount from circulation. It has
// no receiver slot; auditors may still be attached.
func NewBurnProof(sender *KeyPair, priorCT *Ciphertext, priorBalance uint64, auditorPKs []*PublicKey, amount uint64, rng io.Reader) (*TransferProof, error) {
	return newProof(sender, priorCT, priorBalance, nil, auditorPKs, amount, rng)
}

func newProof(sender *KeyPair, priorCT *Ciphertext, priorBalance uint64, receiverPK *PublicKey, auditorPKs []*PublicKey, amount uint64, rng io.Reader) (*TransferProof, error) {
	if amount > MaxTotalSupply {
		return nil, ErrAmountTooLarge
	}
	if amount > priorBalance {
		return nil, ErrInsufficientBalance
	}
	if priorCT == nil {
		return nil, errors.New("prior balance ciphertext is required")
	}
	if len(auditorPKs) > 255 {
		return nil, errors.New("too many auditors")
	}

	p := &TransferProof{
		senderPK:   PublicKeyOf(sender.Secret),
		receiverPK: receiverPK,
		auditorPKs: auditorPKs,
		refBalance: priorCT,
	}

	var err error
	if p.senderAmount, err = Encrypt(p.senderPK, amount, rng); err != nil {
		return nil, fmt.Errorf("failed to encrypt sender amount: %w", err)
	}
	if receiverPK != nil {
		if p.receiverAmount, err = Encrypt(receiverPK, amount, rng); err != nil {
			return nil, fmt.Errorf("failed to encrypt receiver amount: %w", err)
		}
	}
	p.auditorAmounts = make([]*Ciphertext, len(auditorPKs))
	for i, apk := range auditorPKs {
		if p.auditorAmounts[i], err = Encrypt(apk, amount, rng); err != nil {
			return nil, fmt.Errorf("failed to encrypt auditor %d amount: %w", i, err)
		}
	}

	p.transcript = p.computeTranscript()
	return p, nil
}

// SenderAmount returns the encryption of the amount under the sender's key.
// Balance arithmetic must use this ciphertext, never a re-encryption, so the
// local balance stays bit-identical to what verifiers compute.
func (p *TransferProof) SenderAmount() *Ciphertext {
	return p.senderAmount
}

// SenderPublicKey returns the sender key the proof was built with.
func (p *TransferProof) SenderPublicKey() *PublicKey { return p.senderPK }

// ReceiverPublicKey returns the receiver key, or nil for a burn proof.
func (p *TransferProof) ReceiverPublicKey() *PublicKey { return p.receiverPK }

// AuditorCount returns the number of auditor slots.
func (p *TransferProof) AuditorCount() int { return len(p.auditorPKs) }

// ReceiverVerify checks the capsule binding and that the receiver slot
// decrypts to the claimed amount under keys.
func (p *TransferProof) ReceiverVerify(keys *KeyPair, amount uint64) error {
	if err := p.checkTranscript(); err != nil {
		return err
	}
	if p.receiverAmount == nil {
		return fmt.Errorf("%w: burn proof has no receiver", ErrInvalidProof)
	}
	if !bytes.Equal(PublicKeyOf(keys.Secret).Bytes(), p.receiverPK.Bytes()) {
		return fmt.Errorf("%w: proof is not bound to this receiver", ErrInvalidProof)
	}
	return verifySlot(keys.Secret, p.receiverAmount, amount)
}

// AuditorVerify checks the capsule binding and the auditor slot at idx. When
// amount is non-nil it is checked against the slot; when nil the slot is
// decrypted. Returns the transferred amount.
func (p *TransferProof) AuditorVerify(idx int, keys *KeyPair, amount *uint64) (uint64, error) {
	if err := p.checkTranscript(); err != nil {
		return 0, err
	}
	if idx < 0 || idx >= len(p.auditorPKs) {
		return 0, fmt.Errorf("%w: no auditor slot %d", ErrInvalidProof, idx)
	}
	if !bytes.Equal(PublicKeyOf(keys.Secret).Bytes(), p.auditorPKs[idx].Bytes()) {
		return 0, fmt.Errorf("%w: proof is not bound to this auditor", ErrInvalidProof)
	}
	if amount != nil {
		if err := verifySlot(keys.Secret, p.auditorAmounts[idx], *amount); err != nil {
			return 0, err
		}
		return *amount, nil
	}
	decrypted, err := keys.Secret.Decrypt(p.auditorAmounts[idx], MaxTotalSupply)
	if err != nil {
		return 0, fmt.Errorf("%w: auditor slot does not decrypt", ErrInvalidProof)
	}
	return decrypted, nil
}

// Verify performs the third-party checks a chain verifier runs: the capsule
// binding holds, the proof names the expected parties, and it was built
// against the supplied sender balance.
func (p *TransferProof) Verify(senderPK *PublicKey, senderBalance *Ciphertext, receiverPK *PublicKey, auditorPKs []*PublicKey) error {
	if err := p.checkTranscript(); err != nil {
		return err
	}
	if !bytes.Equal(senderPK.Bytes(), p.senderPK.Bytes()) {
		return fmt.Errorf("%w: sender mismatch", ErrInvalidProof)
	}
	if receiverPK != nil {
		if p.receiverPK == nil || !bytes.Equal(receiverPK.Bytes(), p.receiverPK.Bytes()) {
			return fmt.Errorf("%w: receiver mismatch", ErrInvalidProof)
		}
	}
	if len(auditorPKs) != len(p.auditorPKs) {
		return fmt.Errorf("%w: auditor count mismatch", ErrInvalidProof)
	}
	for i, apk := range auditorPKs {
		if !bytes.Equal(apk.Bytes(), p.auditorPKs[i].Bytes()) {
			return fmt.Errorf("%w: auditor %d mismatch", ErrInvalidProof, i)
		}
	}
	if senderBalance != nil && !bytes.Equal(senderBalance.Bytes(), p.refBalance.Bytes()) {
		return fmt.Errorf("%w: proof was built against a different balance", ErrInvalidProof)
	}
	return nil
}

func verifySlot(sk *SecretKey, slot *Ciphertext, amount uint64) error {
	var masked, expected bn254.G1Affine
	decryptPoint(&masked, sk, slot)
	amountPoint(&expected, amount)
	if !masked.Equal(&expected) {
		return fmt.Errorf("%w: amount does not match", ErrInvalidProof)
	}
	return nil
}

func (p *TransferProof) checkTranscript() error {
	if p.computeTranscript() != p.transcript {
		return fmt.Errorf("%w: transcript binding check failed", ErrInvalidProof)
	}
	return nil
}

func (p *TransferProof) computeTranscript() [sha256.Size]byte {
	h := sha256.New()
	h.Write([]byte(transcriptDomain))
	h.Write(p.senderPK.Bytes())
	if p.receiverPK != nil {
		h.Write([]byte{1})
		h.Write(p.receiverPK.Bytes())
	} else {
		h.Write([]byte{0})
	}
	h.Write([]byte{byte(len(p.auditorPKs))})
	for _, apk := range p.auditorPKs {
		h.Write(apk.Bytes())
	}
	h.Write(p.refBalance.Bytes())
	h.Write(p.senderAmount.Bytes())
	if p.receiverAmount != nil {
		h.Write(p.receiverAmount.Bytes())
	}
	for _, ct := range p.auditorAmounts {
		h.Write(ct.Bytes())
	}
	var out [sha256.Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Encode serializes the capsule.
func (p *TransferProof) Encode() []byte {
	var flags byte
	if p.receiverPK != nil {
		flags |= 1
	}
	out := []byte{proofVersion, flags, byte(len(p.auditorPKs))}
	out = append(out, p.senderPK.Bytes()...)
	if p.receiverPK != nil {
		out = append(out, p.receiverPK.Bytes()...)
	}
	for _, apk := range p.auditorPKs {
		out = append(out, apk.Bytes()...)
	}
	out = append(out, p.refBalance.Bytes()...)
	out = append(out, p.senderAmount.Bytes()...)
	if p.receiverAmount != nil {
		out = append(out, p.receiverAmount.Bytes()...)
	}
	for _, ct := range p.auditorAmounts {
		out = append(out, ct.Bytes()...)
	}
	out = append(out, p.transcript[:]...)
	return out
}

// DecodeTransferProof parses a capsule encoding. A decodable but tampered
// capsule parses fine and fails verification instead.
func DecodeTransferProof(data []byte) (*TransferProof, error) {
	if len(data) < 3 {
		return nil, errors.New("proof too short")
	}
	if data[0] != proofVersion {
		return nil, fmt.Errorf("unsupported proof version %d", data[0])
	}
	hasReceiver := data[1]&1 != 0
	auditorCount := int(data[2])
	r := bytes.NewReader(data[3:])

	p := &TransferProof{}
	var err error
	if p.senderPK, err = readPublicKey(r); err != nil {
		return nil, err
	}
	if hasReceiver {
		if p.receiverPK, err = readPublicKey(r); err != nil {
			return nil, err
		}
	}
	p.auditorPKs = make([]*PublicKey, auditorCount)
	for i := range p.auditorPKs {
		if p.auditorPKs[i], err = readPublicKey(r); err != nil {
			return nil, err
		}
	}
	if p.refBalance, err = readCiphertext(r); err != nil {
		return nil, err
	}
	if p.senderAmount, err = readCiphertext(r); err != nil {
		return nil, err
	}
	if hasReceiver {
		if p.receiverAmount, err = readCiphertext(r); err != nil {
			return nil, err
		}
	}
	p.auditorAmounts = make([]*Ciphertext, auditorCount)
	for i := range p.auditorAmounts {
		if p.auditorAmounts[i], err = readCiphertext(r); err != nil {
			return nil, err
		}
	}
	if _, err := io.ReadFull(r, p.transcript[:]); err != nil {
		return nil, errors.New("proof truncated")
	}
	if r.Len() != 0 {
		return nil, errors.New("trailing bytes in proof")
	}
	return p, nil
}

func readPublicKey(r *bytes.Reader) (*PublicKey, error) {
	var buf [PointSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, errors.New("proof truncated")
	}
	return DecodePublicKey(buf[:])
}

func readCiphertext(r *bytes.Reader) (*Ciphertext, error) {
	var buf [CiphertextSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, errors.New("proof truncated")
	}
	return DecodeCiphertext(buf[:])
}
