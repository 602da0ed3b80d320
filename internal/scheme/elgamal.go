package scheme

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// MaxTotalSupply bounds every amount the scheme will encrypt and the search
// range used when decrypting. Amounts above it are rejected before any curve
// arithmetic happens.
const MaxTotalSupply uint64 = math.MaxUint32

const (
	// PointSize is the compressed size of a BN254 G1 point.
	PointSize = bn254.SizeOfG1AffineCompressed
	// CiphertextSize is the encoded size of a Ciphertext (two points).
	CiphertextSize = 2 * PointSize
	// ScalarSize is the encoded size of a secret key scalar.
	ScalarSize = fr.Bytes
)

var (
	// ErrDecryptionFailed means no value in the search range matched the
	// ciphertext. It usually indicates a key/ciphertext mismatch.
	ErrDecryptionFailed = errors.New("decryption failed: no amount in range matches ciphertext")

	// ErrInsufficientBalance means a proof was requested for more than the
	// prior balance covers.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrAmountTooLarge means the amount exceeds MaxTotalSupply.
	ErrAmountTooLarge = errors.New("amount exceeds max total supply")
)

var g1Gen bn254.G1Affine

func init() {
	_, _, g1Gen, _ = bn254.Generators()
}

// PublicKey is an ElGamal public key on BN254 G1.
type PublicKey struct {
	point bn254.G1Affine
}

// Bytes returns the compressed point encoding.
func (pk *PublicKey) Bytes() []byte {
	b := pk.point.Bytes()
	return b[:]
}

// DecodePublicKey parses a compressed G1 point as a public key.
func DecodePublicKey(data []byte) (*PublicKey, error) {
	var pk PublicKey
	if _, err := pk.point.SetBytes(data); err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	return &pk, nil
}

// SecretKey is an ElGamal secret scalar. It must never be logged or
// serialized to a client; call Wipe when done with it.
type SecretKey struct {
	scalar fr.Element
}

// Bytes returns the big-endian scalar encoding. The caller owns the copy and
// should zero it after use.
func (sk *SecretKey) Bytes() []byte {
	b := sk.scalar.Bytes()
	return b[:]
}

// Wipe overwrites the scalar. The GC gives no timing guarantee, so the
// backing words are cleared explicitly.
func (sk *SecretKey) Wipe() {
	sk.scalar.SetZero()
}

// DecodeSecretKey parses a scalar encoding as a secret key.
func DecodeSecretKey(data []byte) (*SecretKey, error) {
	if len(data) != ScalarSize {
		return nil, fmt.Errorf("invalid secret key length %d", len(data))
	}
	var sk SecretKey
	sk.scalar.SetBytes(data)
	return &sk, nil
}

// KeyPair holds an account's encryption keys.
type KeyPair struct {
	Public *PublicKey
	Secret *SecretKey
}

// GenerateKeyPair creates a fresh ElGamal key pair from rng (crypto/rand when
// rng is nil).
func GenerateKeyPair(rng io.Reader) (*KeyPair, error) {
	s, err := randomScalar(rng)
	if err != nil {
		return nil, fmt.Errorf("failed to sample secret scalar: %w", err)
	}
	sk := &SecretKey{scalar: s}
	pk := &PublicKey{}
	var sBig big.Int
	s.BigInt(&sBig)
	pk.point.ScalarMultiplication(&g1Gen, &sBig)
	return &KeyPair{Public: pk, Secret: sk}, nil
}

// PublicKeyOf derives the public key for a secret key.
func PublicKeyOf(sk *SecretKey) *PublicKey {
	pk := &PublicKey{}
	var sBig big.Int
	sk.scalar.BigInt(&sBig)
	pk.point.ScalarMultiplication(&g1Gen, &sBig)
	return pk
}

// Ciphertext is an exponential-ElGamal encryption of an amount: (rG, mG+rP).
// Addition and subtraction are homomorphic in the amount and never fail.
type Ciphertext struct {
	c1 bn254.G1Affine
	c2 bn254.G1Affine
}

// ZeroCiphertext returns the canonical encryption of zero with zero
// randomness, used to initialize fresh balances.
func ZeroCiphertext() *Ciphertext {
	var ct Ciphertext
	ct.c1.X.SetZero()
	ct.c1.Y.SetZero()
	ct.c2.X.SetZero()
	ct.c2.Y.SetZero()
	return &ct
}

// Encrypt encrypts amount under pk with fresh randomness from rng.
func Encrypt(pk *PublicKey, amount uint64, rng io.Reader) (*Ciphertext, error) {
	if amount > MaxTotalSupply {
		return nil, ErrAmountTooLarge
	}
	r, err := randomScalar(rng)
	if err != nil {
		return nil, fmt.Errorf("failed to sample randomness: %w", err)
	}
	return encryptWithRandomness(pk, amount, &r), nil
}

func encryptWithRandomness(pk *PublicKey, amount uint64, r *fr.Element) *Ciphertext {
	var ct Ciphertext
	var rBig big.Int
	r.BigInt(&rBig)
	ct.c1.ScalarMultiplication(&g1Gen, &rBig)

	var mPoint, shared bn254.G1Affine
	amountPoint(&mPoint, amount)
	shared.ScalarMultiplication(&pk.point, &rBig)
	ct.c2.Add(&mPoint, &shared)
	return &ct
}

// Add returns ct + other (component-wise point addition).
func (ct *Ciphertext) Add(other *Ciphertext) *Ciphertext {
	var out Ciphertext
	out.c1.Add(&ct.c1, &other.c1)
	out.c2.Add(&ct.c2, &other.c2)
	return &out
}

// Sub returns ct - other.
func (ct *Ciphertext) Sub(other *Ciphertext) *Ciphertext {
	var out Ciphertext
	out.c1.Sub(&ct.c1, &other.c1)
	out.c2.Sub(&ct.c2, &other.c2)
	return &out
}

// Bytes encodes the ciphertext as two compressed points.
func (ct *Ciphertext) Bytes() []byte {
	out := make([]byte, 0, CiphertextSize)
	b1 := ct.c1.Bytes()
	b2 := ct.c2.Bytes()
	out = append(out, b1[:]...)
	out = append(out, b2[:]...)
	return out
}

// DecodeCiphertext parses a 64-byte ciphertext encoding.
func DecodeCiphertext(data []byte) (*Ciphertext, error) {
	if len(data) != CiphertextSize {
		return nil, fmt.Errorf("invalid ciphertext length %d", len(data))
	}
	var ct Ciphertext
	if _, err := ct.c1.SetBytes(data[:PointSize]); err != nil {
		return nil, fmt.Errorf("invalid ciphertext: %w", err)
	}
	if _, err := ct.c2.SetBytes(data[PointSize:]); err != nil {
		return nil, fmt.Errorf("invalid ciphertext: %w", err)
	}
	return &ct, nil
}

// Decrypt recovers the amount from ct by bounded search over [0, max].
// Returns ErrDecryptionFailed when no amount in range matches, which catches
// mismatched keys as well as out-of-range values.
func (sk *SecretKey) Decrypt(ct *Ciphertext, max uint64) (uint64, error) {
	var masked bn254.G1Affine
	decryptPoint(&masked, sk, ct)
	return discreteLog(&masked, max)
}

func decryptPoint(out *bn254.G1Affine, sk *SecretKey, ct *Ciphertext) {
	var sBig big.Int
	sk.scalar.BigInt(&sBig)
	var shared bn254.G1Affine
	shared.ScalarMultiplication(&ct.c1, &sBig)
	out.Sub(&ct.c2, &shared)
}

func amountPoint(out *bn254.G1Affine, amount uint64) {
	var aBig big.Int
	aBig.SetUint64(amount)
	out.ScalarMultiplication(&g1Gen, &aBig)
}

// Baby-step/giant-step table for the bounded discrete log. The baby-step
// width is sized for MaxTotalSupply and shared process-wide.
const babyStepWidth = 1 << 16

var (
	babyStepsOnce sync.Once
	babySteps     map[[PointSize]byte]uint64
	giantStep     bn254.G1Affine
)

func initBabySteps() {
	babySteps = make(map[[PointSize]byte]uint64, babyStepWidth)
	// j = 0 is the point at infinity.
	var inf bn254.G1Affine
	babySteps[inf.Bytes()] = 0
	var cur bn254.G1Affine
	cur.Set(&g1Gen)
	for j := uint64(1); j < babyStepWidth; j++ {
		babySteps[cur.Bytes()] = j
		cur.Add(&cur, &g1Gen)
	}
	var width big.Int
	width.SetUint64(babyStepWidth)
	giantStep.ScalarMultiplication(&g1Gen, &width)
	giantStep.Neg(&giantStep)
}

func discreteLog(p *bn254.G1Affine, max uint64) (uint64, error) {
	babyStepsOnce.Do(initBabySteps)

	steps := max/babyStepWidth + 1
	var cur bn254.G1Affine
	cur.Set(p)
	for i := uint64(0); i < steps; i++ {
		if j, ok := babySteps[cur.Bytes()]; ok {
			m := i*babyStepWidth + j
			if m > max {
				return 0, ErrDecryptionFailed
			}
			return m, nil
		}
		cur.Add(&cur, &giantStep)
	}
	return 0, ErrDecryptionFailed
}

func randomScalar(rng io.Reader) (fr.Element, error) {
	if rng == nil {
		rng = rand.Reader
	}
	var buf [fr.Bytes]byte
	var s fr.Element
	if _, err := io.ReadFull(rng, buf[:]); err != nil {
		return s, err
	}
	s.SetBytes(buf[:])
	if s.IsZero() {
		// A zero scalar would leak the amount; resample.
		return randomScalar(rng)
	}
	return s, nil
}
