// Package settlement coordinates multi-party settlement transactions: it
// builds and submits affirmations, tracks transaction state locally and
// applies the ledger side effects once the chain reports success.
package settlement

import (
	"fmt"
	"time"
)

// Party identifies the role an account plays in a settlement leg.
type Party string

const (
	PartySender   Party = "SENDER"
	PartyReceiver Party = "RECEIVER"
	PartyMediator Party = "MEDIATOR"
)

// AssetAmount is one asset movement within a leg. A single-asset leg is the
// one-element case.
type AssetAmount struct {
	AssetID string `json:"asset_id"`
	Amount  uint64 `json:"amount"`
}

// AffirmLeg identifies the leg a party affirms and the amounts it claims.
type AffirmLeg struct {
	TransactionID uint64        `json:"transaction_id"`
	LegID         uint32        `json:"leg_id"`
	Party         Party         `json:"party"`
	Amounts       []AssetAmount `json:"amounts"`
}

// State is the locally tracked state of a settlement transaction.
type State string

const (
	StateCreated          State = "CREATED"
	StateSenderAffirmed   State = "SENDER_AFFIRMED"
	StateReceiverAffirmed State = "RECEIVER_AFFIRMED"
	StateMediatorAffirmed State = "MEDIATOR_AFFIRMED"
	StateExecuted         State = "EXECUTED"
	StateRejected         State = "REJECTED"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateExecuted || s == StateRejected
}

// InvalidTransitionError is returned for locally impossible transitions,
// such as affirming an executed transaction.
type InvalidTransitionError struct {
	TransactionID uint64
	From          State
	Event         string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s from state %s for transaction %d",
		e.Event, e.From, e.TransactionID)
}

// SettlementRecord is the local view of one settlement transaction. The
// affirmation flags are commutative; PendingAffirms mirrors the chain's
// count and is authoritative for "fully affirmed".
type SettlementRecord struct {
	TransactionID    uint64    `json:"transaction_id"`
	VenueID          uint64    `json:"venue_id"`
	State            State     `json:"state"`
	SenderAffirmed   bool      `json:"sender_affirmed"`
	ReceiverAffirmed bool      `json:"receiver_affirmed"`
	MediatorAffirmed bool      `json:"mediator_affirmed"`
	PendingAffirms   uint32    `json:"pending_affirms"`
	Memo             string    `json:"memo,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// FullyAffirmed reports whether the chain has no affirmations outstanding.
func (r *SettlementRecord) FullyAffirmed() bool {
	return r.PendingAffirms == 0
}

func affirmedState(party Party) State {
	switch party {
	case PartySender:
		return StateSenderAffirmed
	case PartyReceiver:
		return StateReceiverAffirmed
	default:
		return StateMediatorAffirmed
	}
}

// Affirm records a party affirmation. Affirmations commute: any order of
// distinct parties is valid. pendingAffirms is the chain-reported count
// after this affirmation.
func (r *SettlementRecord) Affirm(party Party, pendingAffirms uint32) error {
	if r.State.Terminal() {
		return &InvalidTransitionError{TransactionID: r.TransactionID, From: r.State, Event: "affirm_" + string(party)}
	}
	switch party {
	case PartySender:
		r.SenderAffirmed = true
	case PartyReceiver:
		r.ReceiverAffirmed = true
	case PartyMediator:
		r.MediatorAffirmed = true
	default:
		return fmt.Errorf("unknown settlement party %q", party)
	}
	r.State = affirmedState(party)
	r.PendingAffirms = pendingAffirms
	return nil
}

// Execute marks the transaction executed. Execution requires all
// affirmations to be in.
func (r *SettlementRecord) Execute() error {
	if r.State.Terminal() {
		return &InvalidTransitionError{TransactionID: r.TransactionID, From: r.State, Event: "execute"}
	}
	if !r.FullyAffirmed() {
		return &InvalidTransitionError{TransactionID: r.TransactionID, From: r.State, Event: "execute"}
	}
	r.State = StateExecuted
	return nil
}

// Reject marks the transaction rejected.
func (r *SettlementRecord) Reject() error {
	if r.State.Terminal() {
		return &InvalidTransitionError{TransactionID: r.TransactionID, From: r.State, Event: "reject"}
	}
	r.State = StateRejected
	return nil
}
