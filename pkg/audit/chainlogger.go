package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// LogEntry is a single entry in the settlement audit trail.
type LogEntry struct {
	Timestamp     string `json:"timestamp"`
	PreviousHash  string `json:"previous_hash"`
	Kind          string `json:"kind"`
	TransactionID uint64 `json:"transaction_id"`
	Payload       string `json:"payload"`
	Hash          string `json:"hash"`
}

// ChainLogger provides a tamper-evident trail of settlement lifecycle events
// using hash chaining.
type ChainLogger struct {
	mu           sync.Mutex
	previousHash string
	entries      []*LogEntry
}

// NewChainLogger creates a new ChainLogger initialized with a zero hash.
func NewChainLogger() *ChainLogger {
	return &ChainLogger{
		previousHash: strings.Repeat("0", 64),
	}
}

// Append adds a settlement lifecycle event to the chain.
func (c *ChainLogger) Append(kind string, transactionID uint64, payload string) *LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &LogEntry{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		PreviousHash:  c.previousHash,
		Kind:          kind,
		TransactionID: transactionID,
		Payload:       payload,
	}

	entry.Hash = entryHash(entry, c.previousHash)
	c.previousHash = entry.Hash
	c.entries = append(c.entries, entry)
	return entry
}

// Entries returns a snapshot of the trail.
func (c *ChainLogger) Entries() []*LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*LogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

func entryHash(entry *LogEntry, prevHash string) string {
	hashInput := fmt.Sprintf("%s|%s|%s|%d|%s",
		prevHash, entry.Timestamp, entry.Kind, entry.TransactionID, entry.Payload)
	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

// VerifyChain checks if a slice of entries forms a valid hash chain.
func VerifyChain(entries []*LogEntry) bool {
	if len(entries) == 0 {
		return true
	}

	for i, entry := range entries {
		prevHash := entry.PreviousHash
		if i > 0 {
			prevHash = entries[i-1].Hash
			if entry.PreviousHash != prevHash {
				return false
			}
		}
		if entryHash(entry, prevHash) != entry.Hash {
			return false
		}
	}
	return true
}
