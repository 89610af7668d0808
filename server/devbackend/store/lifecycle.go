package store

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	contract "takahome/client/contract/domain"
)

var ErrInvalidTransition = errors.New("booking status does not allow this action")

type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionSign     Action = "sign"
	ActionFund     Action = "fund"
	ActionHandover Action = "handover"
	ActionCancel   Action = "cancel"
)

const contractFileBase = "https://files.takahome.test/contracts/"

// Transition applies a lifecycle action of userID to the booking and returns
// the updated booking. Fund stands in for the payment gateway: the escrow
// deposit of either party, then the tenant's first rent.
func (s *Store) Transition(userID, bookingID string, action Action) (contract.Booking, contract.BookingStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i := range s.bookings {
		if s.bookings[i].ID == bookingID {
			idx = i
			break
		}
	}
	if idx < 0 || !involved(s.bookings[idx], userID) {
		return contract.Booking{}, "", ErrNotFound
	}
	b := s.bookings[idx]
	from := b.Status
	tenant := b.Tenant.ID == userID
	landlord := b.Property.Landlord.ID == userID

	var c contract.Contract
	if b.Contract != nil {
		c = *b.Contract
	}
	now := s.now()

	switch action {
	case ActionApprove, ActionReject:
		if !landlord {
			return contract.Booking{}, "", ErrForbidden
		}
		if b.Status != contract.BookingPendingLandlord {
			return contract.Booking{}, "", ErrInvalidTransition
		}
		if action == ActionReject {
			b.Status = contract.BookingRejected
			break
		}
		s.contractSeq++
		c = contract.Contract{
			ID:           s.newID(),
			ContractCode: fmt.Sprintf("HD-%d-%04d", now.Year(), s.contractSeq),
			Status:       contract.ContractPendingTenantSignature,
			StartDate:    now.AddDate(0, 0, 7).Format("2006-01-02"),
			EndDate:      now.AddDate(1, 0, 6).Format("2006-01-02"),
		}
		b.Status = contract.BookingPendingSignature
	case ActionSign:
		if b.Status != contract.BookingPendingSignature || b.Contract == nil {
			return contract.Booking{}, "", ErrInvalidTransition
		}
		switch {
		case tenant && c.Status == contract.ContractPendingTenantSignature:
			c.Status = contract.ContractPendingLandlordSignature
		case landlord && c.Status == contract.ContractPendingLandlordSignature:
			c.Status = contract.ContractSigned
			c.ContractFileURL = contractFileBase + c.ContractCode + ".pdf"
			b.Status = contract.BookingAwaitingDeposit
		default:
			return contract.Booking{}, "", ErrInvalidTransition
		}
	case ActionFund:
		next, ok := fundedStatus(b.Status, tenant)
		if !ok {
			return contract.Booking{}, "", ErrInvalidTransition
		}
		b.Status = next
	case ActionHandover:
		if !landlord {
			return contract.Booking{}, "", ErrForbidden
		}
		if b.Status != contract.BookingReadyForHandover {
			return contract.Booking{}, "", ErrInvalidTransition
		}
		b.Status = contract.BookingActive
		c.Status = contract.ContractActive
	case ActionCancel:
		switch b.Status {
		case contract.BookingPendingLandlord, contract.BookingPendingSignature, contract.BookingAwaitingDeposit:
		default:
			return contract.Booking{}, "", ErrInvalidTransition
		}
		b.Status = contract.BookingCancelled
		if b.Contract != nil {
			c.Status = contract.ContractTerminated
		}
	default:
		return contract.Booking{}, "", fmt.Errorf("unknown booking action %q", action)
	}

	if c.ID != "" {
		b.Contract = &c
		b.ContractID = c.ID
	}
	b.UpdatedAt = now.Format(time.RFC3339)
	s.bookings[idx] = b
	return b, from, nil
}

// fundedStatus is the status after one payment by the tenant or the landlord.
func fundedStatus(status contract.BookingStatus, tenant bool) (contract.BookingStatus, bool) {
	switch {
	case status == contract.BookingAwaitingDeposit && tenant:
		return contract.BookingEscrowFundedT, true
	case status == contract.BookingAwaitingDeposit:
		return contract.BookingEscrowFundedL, true
	case status == contract.BookingEscrowFundedL && tenant,
		status == contract.BookingEscrowFundedT && !tenant:
		return contract.BookingDualEscrowFunded, true
	case status == contract.BookingDualEscrowFunded && tenant:
		return contract.BookingReadyForHandover, true
	default:
		return "", false
	}
}

// escrowHeld reports which parties have deposits in escrow at status.
func escrowHeld(status contract.BookingStatus) (tenant, landlord bool) {
	switch status {
	case contract.BookingEscrowFundedT:
		return true, false
	case contract.BookingEscrowFundedL:
		return false, true
	case contract.BookingDualEscrowFunded, contract.BookingReadyForHandover, contract.BookingActive:
		return true, true
	default:
		return false, false
	}
}

func depositOf(b contract.Booking) float64 {
	if b.Property.Kind == contract.PropertyBoarding {
		if b.Room != nil && b.Room.RoomType != nil {
			return b.Room.RoomType.Deposit.Float()
		}
		return 0
	}
	return b.Property.Deposit.Float()
}

func (s *Store) bookingByContract(userID, contractID string) (contract.Booking, error) {
	for _, b := range s.bookings {
		if b.ContractID != contractID {
			continue
		}
		if !involved(b, userID) {
			return contract.Booking{}, ErrNotFound
		}
		return b, nil
	}
	return contract.Booking{}, ErrNotFound
}

// EscrowBalance derives the escrow holdings of a contract from its booking
// status.
func (s *Store) EscrowBalance(userID, contractID string) (contract.EscrowBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := s.bookingByContract(userID, contractID)
	if err != nil {
		return contract.EscrowBalance{}, err
	}
	tenant, landlord := escrowHeld(b.Status)
	deposit := depositOf(b)
	out := contract.EscrowBalance{BalanceTenant: "0", BalanceLandlord: "0", AccountID: "escrow-" + contractID}
	if tenant {
		out.BalanceTenant = contract.Amount(strconv.FormatFloat(deposit, 'f', -1, 64))
	}
	if landlord {
		out.BalanceLandlord = contract.Amount(strconv.FormatFloat(deposit, 'f', -1, 64))
	}
	return out, nil
}

// ContractFile returns the signed document link. Contracts still being signed
// have none.
func (s *Store) ContractFile(userID, contractID string) (contract.ContractFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, err := s.bookingByContract(userID, contractID)
	if err != nil {
		return contract.ContractFile{}, err
	}
	if b.Contract == nil || b.Contract.ContractFileURL == "" {
		return contract.ContractFile{}, ErrNotFound
	}
	return contract.ContractFile{FileURL: b.Contract.ContractFileURL, ExtensionFileURLs: []contract.ExtensionFileURL{}}, nil
}
