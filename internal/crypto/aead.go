package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// AEADEncryptor provides AES-256-GCM envelope encryption with per-record data
// keys. It protects account and signer secret keys at rest; plaintext secrets
// exist only in memory between Decrypt and the caller's wipe.
type AEADEncryptor struct {
	kms KMS
}

// NewAEADEncryptor creates a new AEAD encryptor with the given KMS.
func NewAEADEncryptor(kms KMS) *AEADEncryptor {
	return &AEADEncryptor{
		kms: kms,
	}
}

// KeyID returns the identifier of the master key records should be sealed
// under.
func (a *AEADEncryptor) KeyID(ctx context.Context) (string, error) {
	return a.kms.GetKeyID(ctx)
}

// EncryptedData holds the encrypted payload with its envelope metadata.
type EncryptedData struct {
	Ciphertext       []byte // Encrypted payload
	EncryptedDataKey []byte // Data key encrypted with master key
	Nonce            []byte // GCM nonce (12 bytes)
	KeyID            string // Master key identifier
	AdditionalData   []byte // Additional authenticated data
}

// Encrypt encrypts plaintext using AES-256-GCM with a per-record data key.
func (a *AEADEncryptor) Encrypt(ctx context.Context, plaintext []byte, keyID string, additionalData []byte) (*EncryptedData, error) {
	dataKeyPlaintext, dataKeyCiphertext, err := a.kms.GenerateDataKey(ctx, keyID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate data key: %w", err)
	}
	defer wipe(dataKeyPlaintext)

	block, err := aes.NewCipher(dataKeyPlaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, additionalData)

	return &EncryptedData{
		Ciphertext:       ciphertext,
		EncryptedDataKey: dataKeyCiphertext,
		Nonce:            nonce,
		KeyID:            keyID,
		AdditionalData:   additionalData,
	}, nil
}

// Decrypt decrypts the ciphertext using the encrypted data key. The caller
// owns the returned plaintext and should wipe it after use.
func (a *AEADEncryptor) Decrypt(ctx context.Context, encryptedData *EncryptedData) ([]byte, error) {
	dataKeyPlaintext, err := a.kms.Decrypt(ctx, encryptedData.EncryptedDataKey, encryptedData.KeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt data key: %w", err)
	}
	defer wipe(dataKeyPlaintext)

	block, err := aes.NewCipher(dataKeyPlaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, encryptedData.Nonce, encryptedData.Ciphertext, encryptedData.AdditionalData)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// wipe overwrites a secret buffer. The GC does not guarantee timely clearing,
// so sensitive material is zeroed explicitly.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
