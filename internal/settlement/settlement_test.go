package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAffirmationsCommute(t *testing.T) {
	orders := [][]Party{
		{PartySender, PartyReceiver, PartyMediator},
		{PartyMediator, PartySender, PartyReceiver},
		{PartyReceiver, PartyMediator, PartySender},
	}
	for _, order := range orders {
		rec := &SettlementRecord{TransactionID: 1, State: StateCreated, PendingAffirms: 3}
		pending := rec.PendingAffirms
		for _, party := range order {
			pending--
			require.NoError(t, rec.Affirm(party, pending))
		}
		assert.True(t, rec.SenderAffirmed)
		assert.True(t, rec.ReceiverAffirmed)
		assert.True(t, rec.MediatorAffirmed)
		assert.True(t, rec.FullyAffirmed())
	}
}

func TestExecuteRequiresAllAffirmations(t *testing.T) {
	rec := &SettlementRecord{TransactionID: 2, State: StateCreated, PendingAffirms: 3}

	err := rec.Execute()
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, uint64(2), invalid.TransactionID)

	require.NoError(t, rec.Affirm(PartySender, 2))
	require.NoError(t, rec.Affirm(PartyReceiver, 1))
	assert.Error(t, rec.Execute())

	require.NoError(t, rec.Affirm(PartyMediator, 0))
	require.NoError(t, rec.Execute())
	assert.Equal(t, StateExecuted, rec.State)
	assert.True(t, rec.State.Terminal())
}

func TestAffirmAfterTerminalState(t *testing.T) {
	rec := &SettlementRecord{TransactionID: 3, State: StateExecuted}
	err := rec.Affirm(PartySender, 0)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StateExecuted, invalid.From)

	rec = &SettlementRecord{TransactionID: 4, State: StateRejected}
	assert.Error(t, rec.Affirm(PartyReceiver, 0))
	assert.Error(t, rec.Execute())
	assert.Error(t, rec.Reject())
}

func TestReject(t *testing.T) {
	rec := &SettlementRecord{TransactionID: 5, State: StateCreated, PendingAffirms: 3}
	require.NoError(t, rec.Affirm(PartySender, 2))
	require.NoError(t, rec.Reject())
	assert.Equal(t, StateRejected, rec.State)
	assert.Error(t, rec.Affirm(PartyReceiver, 1))
}
