package audit

import (
	"testing"
)

func TestChainLogger(t *testing.T) {
	logger := NewChainLogger()

	e1 := logger.Append("transaction_created", 7, "venue: 1")
	e2 := logger.Append("transaction_affirmed", 7, "party: sender")
	e3 := logger.Append("transaction_executed", 7, "")

	// Verify chain integrity
	chain := []*LogEntry{e1, e2, e3}
	if !VerifyChain(chain) {
		t.Error("VerifyChain failed for valid chain")
	}
	if len(logger.Entries()) != 3 {
		t.Errorf("expected 3 entries, got %d", len(logger.Entries()))
	}

	// Tamper with e2 payload
	originalPayload := e2.Payload
	e2.Payload = "party: mediator"
	if VerifyChain(chain) {
		t.Error("VerifyChain succeeded for tampered payload")
	}

	// Restore payload, tamper with hash
	e2.Payload = originalPayload
	originalHash := e2.Hash
	e2.Hash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	if VerifyChain(chain) {
		t.Error("VerifyChain succeeded for tampered hash")
	}

	// Restore hash
	e2.Hash = originalHash

	// Tamper with e3 previous hash
	e3.PreviousHash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	if VerifyChain(chain) {
		t.Error("VerifyChain succeeded for broken link")
	}
}
