package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contract "takahome/client/contract/domain"
)

func TestTransitionWalksBookingToActive(t *testing.T) {
	s := loadDefault(t)
	const tenant, landlord = "u-tenant-1", "u-landlord-1"

	steps := []struct {
		user     string
		action   Action
		booking  contract.BookingStatus
		contract contract.ContractStatus
	}{
		{landlord, ActionApprove, contract.BookingPendingSignature, contract.ContractPendingTenantSignature},
		{tenant, ActionSign, contract.BookingPendingSignature, contract.ContractPendingLandlordSignature},
		{landlord, ActionSign, contract.BookingAwaitingDeposit, contract.ContractSigned},
		{tenant, ActionFund, contract.BookingEscrowFundedT, contract.ContractSigned},
		{landlord, ActionFund, contract.BookingDualEscrowFunded, contract.ContractSigned},
		{tenant, ActionFund, contract.BookingReadyForHandover, contract.ContractSigned},
		{landlord, ActionHandover, contract.BookingActive, contract.ContractActive},
	}
	for _, step := range steps {
		b, _, err := s.Transition(step.user, "b-1003", step.action)
		require.NoError(t, err, "%s by %s", step.action, step.user)
		assert.Equal(t, step.booking, b.Status, "%s by %s", step.action, step.user)
		require.NotNil(t, b.Contract)
		assert.Equal(t, step.contract, b.Contract.Status)
	}

	b, err := s.Booking(tenant, "b-1003")
	require.NoError(t, err)
	assert.Equal(t, "gen-1", b.ContractID)
	assert.Equal(t, "HD-2026-0007", b.Contract.ContractCode)

	file, err := s.ContractFile(tenant, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, "https://files.takahome.test/contracts/HD-2026-0007.pdf", file.FileURL)

	escrow, err := s.EscrowBalance(landlord, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, contract.Amount("37000000"), escrow.BalanceTenant)
	assert.Equal(t, contract.Amount("37000000"), escrow.BalanceLandlord)
}

func TestTransitionGuards(t *testing.T) {
	s := loadDefault(t)

	_, _, err := s.Transition("u-tenant-1", "b-1003", ActionApprove)
	assert.ErrorIs(t, err, ErrForbidden)
	_, _, err = s.Transition("u-tenant-2", "b-1003", ActionCancel)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = s.Transition("u-landlord-1", "b-1001", ActionHandover)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, _, err = s.Transition("u-tenant-1", "b-1002", ActionSign)
	assert.ErrorIs(t, err, ErrInvalidTransition, "contract waits for the landlord")
	_, _, err = s.Transition("u-landlord-1", "b-1005", ActionFund)
	require.NoError(t, err)
	_, _, err = s.Transition("u-landlord-1", "b-1005", ActionFund)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	b, from, err := s.Transition("u-landlord-1", "b-1003", ActionReject)
	require.NoError(t, err)
	assert.Equal(t, contract.BookingPendingLandlord, from)
	assert.Equal(t, contract.BookingRejected, b.Status)
	assert.Nil(t, b.Contract)
}

func TestCancelTerminatesContract(t *testing.T) {
	s := loadDefault(t)

	b, _, err := s.Transition("u-tenant-1", "b-1002", ActionCancel)
	require.NoError(t, err)
	assert.Equal(t, contract.BookingCancelled, b.Status)
	assert.Equal(t, contract.ContractTerminated, b.Contract.Status)

	_, err = s.ContractFile("u-tenant-1", "c-1002")
	assert.ErrorIs(t, err, ErrNotFound)

	escrow, err := s.EscrowBalance("u-tenant-2", "c-1005")
	require.NoError(t, err)
	assert.Equal(t, contract.Amount("37000000"), escrow.BalanceTenant)
	assert.Equal(t, contract.Amount("0"), escrow.BalanceLandlord)
}
