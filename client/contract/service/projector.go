package service

import (
	"strings"
	"sync/atomic"

	"takahome/client/contract/domain"
	commonlog "takahome/common/log"
)

const (
	contractTypeLabel    = "Residential lease"
	categoryApartment    = "Apartment"
	categoryBoarding     = "Boarding house"
	furnishingUnknown    = "No information"
	propertyCodeNotFound = "N/A"
)

type statusRule struct {
	booking  domain.BookingStatus
	contract domain.ContractStatus // empty matches any contract state
	result   domain.DisplayStatus
}

// statusRules is evaluated top to bottom; the first match wins. Escrow rows
// name whose turn it is next, not whose deposit arrived.
var statusRules = []statusRule{
	{booking: domain.BookingActive, result: domain.StatusActive},
	{booking: domain.BookingPendingLandlord, result: domain.StatusPendingLandlord},
	{booking: domain.BookingPendingSignature, contract: domain.ContractPendingLandlordSignature, result: domain.StatusPendingLandlord},
	{booking: domain.BookingPendingSignature, result: domain.StatusPendingSignature},
	{booking: domain.BookingAwaitingDeposit, contract: domain.ContractSigned, result: domain.StatusAwaitingDeposit},
	{booking: domain.BookingAwaitingDeposit, result: domain.StatusPendingSignature},
	{booking: domain.BookingEscrowFundedT, result: domain.StatusAwaitingLandlordDeposit},
	{booking: domain.BookingEscrowFundedL, result: domain.StatusAwaitingDeposit},
	{booking: domain.BookingDualEscrowFunded, result: domain.StatusActive},
	{booking: domain.BookingReadyForHandover, result: domain.StatusReadyForHandover},
	{booking: domain.BookingSettled, result: domain.StatusExpired},
	{booking: domain.BookingCancelled, result: domain.StatusExpired},
}

// ResolveStatus returns the display status for a booking/contract pair and
// whether a table row matched. Unmatched pairs fall back to pending_landlord.
func ResolveStatus(booking domain.BookingStatus, contract domain.ContractStatus) (domain.DisplayStatus, bool) {
	for _, rule := range statusRules {
		if rule.booking != booking {
			continue
		}
		if rule.contract != "" && rule.contract != contract {
			continue
		}
		return rule.result, true
	}
	return domain.StatusPendingLandlord, false
}

// Project builds the view model for one booking. It never fails: missing
// nested data degrades to zero values and the fallback status.
func Project(b domain.Booking) domain.ContractViewModel {
	vm, _ := project(b)
	return vm
}

func project(b domain.Booking) (domain.ContractViewModel, bool) {
	property := b.Property
	boarding := property.Kind == domain.PropertyBoarding

	var roomType *domain.RoomType
	if b.Room != nil {
		roomType = b.Room.RoomType
	}

	var contractStatus domain.ContractStatus
	if b.Contract != nil {
		contractStatus = b.Contract.Status
	}
	status, matched := ResolveStatus(b.Status, contractStatus)

	vm := domain.ContractViewModel{
		ID:             b.ID,
		BookingID:      b.ID,
		Type:           contractTypeLabel,
		Tenant:         b.Tenant.FullName,
		Landlord:       property.Landlord.FullName,
		Address:        joinAddress(property.Address, property.Ward, property.Province),
		PropertyCode:   propertyCode(b, boarding),
		PropertyType:   furnishing(property, roomType, boarding),
		Category:       categoryLabel(property.Type),
		Status:         status,
		BookingStatus:  b.Status,
		ContractStatus: contractStatus,
		Invoices:       []domain.Invoice{},
	}
	if boarding {
		if roomType != nil {
			vm.Price = roomType.Price.Float()
			vm.Deposit = roomType.Deposit.Float()
		}
	} else {
		vm.Price = property.Price.Float()
		vm.Deposit = property.Deposit.Float()
	}
	if c := b.Contract; c != nil {
		vm.StartDate = c.StartDate
		vm.EndDate = c.EndDate
		vm.ContractCode = c.ContractCode
		vm.ContractID = c.ID
		if c.ContractCode != "" {
			vm.ID = c.ContractCode
		}
	}
	if vm.ContractID == "" {
		vm.ContractID = b.ContractID
	}
	return vm, matched
}

// categoryLabel names only APARTMENT listings as apartments; any other type,
// including ones the client does not know, reads as a boarding house.
func categoryLabel(propertyType string) string {
	if strings.EqualFold(strings.TrimSpace(propertyType), "APARTMENT") {
		return categoryApartment
	}
	return categoryBoarding
}

func propertyCode(b domain.Booking, boarding bool) string {
	code := ""
	if boarding {
		if b.Room != nil {
			code = b.Room.Name
		}
	} else if b.Property.Unit != nil {
		code = b.Property.Unit.Name
	}
	if strings.TrimSpace(code) == "" {
		return propertyCodeNotFound
	}
	return code
}

func furnishing(p domain.Property, roomType *domain.RoomType, boarding bool) string {
	value := p.Furnishing
	if boarding {
		value = ""
		if roomType != nil {
			value = roomType.Furnishing
		}
	}
	if strings.TrimSpace(value) == "" {
		return furnishingUnknown
	}
	return value
}

func joinAddress(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, ", ")
}

// Projector wraps Project and records bookings that only resolved through
// the fallback row, so enum drift with the backend shows up in logs.
type Projector struct {
	unknown atomic.Int64
}

func NewProjector() *Projector {
	return &Projector{}
}

func (p *Projector) Project(b domain.Booking) domain.ContractViewModel {
	vm, matched := project(b)
	if !matched {
		p.unknown.Add(1)
		contractStatus := ""
		if b.Contract != nil {
			contractStatus = string(b.Contract.Status)
		}
		if b.Status.Known() {
			commonlog.Debugf("event=contract_projection action=resolve_status status=fallback booking_id=%s booking_status=%s contract_status=%s", b.ID, b.Status, contractStatus)
		} else {
			commonlog.Warnf("event=contract_projection action=resolve_status status=unknown booking_id=%s booking_status=%q contract_status=%s", b.ID, b.Status, contractStatus)
		}
	}
	return vm
}

// UnknownStatuses is the number of projections that used the fallback.
func (p *Projector) UnknownStatuses() int64 {
	return p.unknown.Load()
}
