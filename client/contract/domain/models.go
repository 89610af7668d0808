package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

type BookingStatus string
type ContractStatus string
type DisplayStatus string
type PropertyKind string

const (
	BookingPendingLandlord   BookingStatus = "PENDING_LANDLORD"
	BookingRejected          BookingStatus = "REJECTED"
	BookingPendingSignature  BookingStatus = "PENDING_SIGNATURE"
	BookingAwaitingDeposit   BookingStatus = "AWAITING_DEPOSIT"
	BookingEscrowFundedT     BookingStatus = "ESCROW_FUNDED_T"
	BookingEscrowFundedL     BookingStatus = "ESCROW_FUNDED_L"
	BookingDualEscrowFunded  BookingStatus = "DUAL_ESCROW_FUNDED"
	BookingReadyForHandover  BookingStatus = "READY_FOR_HANDOVER"
	BookingActive            BookingStatus = "ACTIVE"
	BookingSettlementPending BookingStatus = "SETTLEMENT_PENDING"
	BookingSettled           BookingStatus = "SETTLED"
	BookingCancelled         BookingStatus = "CANCELLED"
)

// BookingStatuses lists every status the backend is known to send.
var BookingStatuses = []BookingStatus{
	BookingPendingLandlord,
	BookingRejected,
	BookingPendingSignature,
	BookingAwaitingDeposit,
	BookingEscrowFundedT,
	BookingEscrowFundedL,
	BookingDualEscrowFunded,
	BookingReadyForHandover,
	BookingActive,
	BookingSettlementPending,
	BookingSettled,
	BookingCancelled,
}

func (s BookingStatus) Known() bool {
	for _, known := range BookingStatuses {
		if s == known {
			return true
		}
	}
	return false
}

const (
	ContractPendingLandlordSignature ContractStatus = "PENDING_LANDLORD_SIGNATURE"
	ContractPendingTenantSignature   ContractStatus = "PENDING_TENANT_SIGNATURE"
	ContractSigned                   ContractStatus = "SIGNED"
	ContractActive                   ContractStatus = "ACTIVE"
	ContractTerminated               ContractStatus = "TERMINATED"
	ContractExpired                  ContractStatus = "EXPIRED"
)

var ContractStatuses = []ContractStatus{
	ContractPendingLandlordSignature,
	ContractPendingTenantSignature,
	ContractSigned,
	ContractActive,
	ContractTerminated,
	ContractExpired,
}

const (
	StatusPendingLandlord         DisplayStatus = "pending_landlord"
	StatusPendingSignature        DisplayStatus = "pending_signature"
	StatusAwaitingDeposit         DisplayStatus = "awaiting_deposit"
	StatusAwaitingLandlordDeposit DisplayStatus = "awaiting_landlord_deposit"
	StatusReadyForHandover        DisplayStatus = "ready_for_handover"
	StatusActive                  DisplayStatus = "active"
	StatusExpired                 DisplayStatus = "expired"
)

var DisplayStatuses = []DisplayStatus{
	StatusPendingLandlord,
	StatusPendingSignature,
	StatusAwaitingDeposit,
	StatusAwaitingLandlordDeposit,
	StatusReadyForHandover,
	StatusActive,
	StatusExpired,
}

func (s DisplayStatus) Valid() bool {
	for _, known := range DisplayStatuses {
		if s == known {
			return true
		}
	}
	return false
}

const (
	PropertyApartment PropertyKind = "apartment"
	PropertyBoarding  PropertyKind = "boarding"
)

// KindFromType maps the backend property type. Only BOARDING listings are
// boarding houses; every other type is rented as a whole apartment.
func KindFromType(propertyType string) PropertyKind {
	if strings.EqualFold(strings.TrimSpace(propertyType), "BOARDING") {
		return PropertyBoarding
	}
	return PropertyApartment
}

// Amount is a money value as sent by the backend, either a JSON number or a
// numeric string.
type Amount string

func (a *Amount) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		*a = ""
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	*a = Amount(raw)
	return nil
}

// Float parses the amount as a decimal. Empty or malformed amounts are 0.
func (a Amount) Float() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(a)), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

type Party struct {
	ID       string `json:"id" yaml:"id"`
	FullName string `json:"fullName" yaml:"fullName"`
	Email    string `json:"email,omitempty" yaml:"email"`
	Phone    string `json:"phone,omitempty" yaml:"phone"`
}

type RoomType struct {
	ID         string `json:"id" yaml:"id"`
	Name       string `json:"name" yaml:"name"`
	Price      Amount `json:"price" yaml:"price"`
	Deposit    Amount `json:"deposit" yaml:"deposit"`
	Furnishing string `json:"furnishing,omitempty" yaml:"furnishing"`
}

type Room struct {
	ID       string    `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	Floor    int       `json:"floor,omitempty" yaml:"floor"`
	RoomType *RoomType `json:"roomType,omitempty" yaml:"roomType"`
}

// Unit is the apartment unit. The backend sends either the bare unit name or
// the unit object.
type Unit struct {
	ID   string `json:"id,omitempty" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

func (u *Unit) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return err
		}
		*u = Unit{Name: name}
		return nil
	}
	type plain Unit
	var out plain
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*u = Unit(out)
	return nil
}

type Property struct {
	ID         string       `json:"id" yaml:"id"`
	Title      string       `json:"title" yaml:"title"`
	Type       string       `json:"type" yaml:"type"`
	Kind       PropertyKind `json:"-" yaml:"-"`
	Address    string       `json:"address" yaml:"address"`
	Ward       string       `json:"ward" yaml:"ward"`
	Province   string       `json:"province" yaml:"province"`
	Furnishing string       `json:"furnishing,omitempty" yaml:"furnishing"`
	Price      Amount       `json:"price" yaml:"price"`
	Deposit    Amount       `json:"deposit" yaml:"deposit"`
	Landlord   Party        `json:"landlord" yaml:"landlord"`
	Unit       *Unit        `json:"unit,omitempty" yaml:"unit"`
}

// UnmarshalJSON decodes the property and fixes its Kind from the type field.
func (p *Property) UnmarshalJSON(raw []byte) error {
	type plain Property
	var out plain
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*p = Property(out)
	p.Kind = KindFromType(p.Type)
	return nil
}

type Contract struct {
	ID              string         `json:"id" yaml:"id"`
	ContractCode    string         `json:"contractCode" yaml:"contractCode"`
	Status          ContractStatus `json:"status" yaml:"status"`
	StartDate       string         `json:"startDate" yaml:"startDate"`
	EndDate         string         `json:"endDate" yaml:"endDate"`
	ContractFileURL string         `json:"contractFileUrl,omitempty" yaml:"contractFileUrl"`
}

type Booking struct {
	ID         string        `json:"id" yaml:"id"`
	Tenant     Party         `json:"tenant" yaml:"tenant"`
	Property   Property      `json:"property" yaml:"property"`
	Room       *Room         `json:"room,omitempty" yaml:"room"`
	Status     BookingStatus `json:"status" yaml:"status"`
	ContractID string        `json:"contractId,omitempty" yaml:"contractId"`
	Contract   *Contract     `json:"contract,omitempty" yaml:"contract"`
	CreatedAt  string        `json:"createdAt,omitempty" yaml:"createdAt"`
	UpdatedAt  string        `json:"updatedAt,omitempty" yaml:"updatedAt"`
}

// SigningOption picks the e-signature provider for approve and sign.
type SigningOption string

const (
	SigningVNPT   SigningOption = "VNPT"
	SigningSelfCA SigningOption = "SELF_CA"
)

func (o SigningOption) Valid() bool {
	return o == SigningVNPT || o == SigningSelfCA
}

// SigningRequest is the body of the approve and sign actions.
type SigningRequest struct {
	SigningOption SigningOption `json:"signingOption"`
}

// EscrowBalance is what each party currently holds in escrow for a contract.
type EscrowBalance struct {
	BalanceTenant   Amount `json:"balanceTenant" yaml:"balanceTenant"`
	BalanceLandlord Amount `json:"balanceLandlord" yaml:"balanceLandlord"`
	AccountID       string `json:"accountId" yaml:"accountId"`
}

type ExtensionFileURL struct {
	ExtensionID string `json:"extensionId" yaml:"extensionId"`
	FileURL     string `json:"fileUrl" yaml:"fileUrl"`
	CreatedAt   string `json:"createdAt" yaml:"createdAt"`
}

// ContractFile links the signed contract document and its extensions.
type ContractFile struct {
	FileURL           string             `json:"fileUrl" yaml:"fileUrl"`
	ExtensionFileURLs []ExtensionFileURL `json:"extensionFileUrls" yaml:"extensionFileUrls"`
}

type InvoiceItem struct {
	ID          string  `json:"id" yaml:"id"`
	Description string  `json:"description" yaml:"description"`
	Amount      float64 `json:"amount" yaml:"amount"`
}

type Invoice struct {
	ID            string        `json:"id" yaml:"id"`
	InvoiceCode   string        `json:"invoiceCode" yaml:"invoiceCode"`
	ContractID    string        `json:"contractId,omitempty" yaml:"contractId"`
	Items         []InvoiceItem `json:"items" yaml:"items"`
	TotalAmount   float64       `json:"totalAmount" yaml:"totalAmount"`
	DueDate       string        `json:"dueDate" yaml:"dueDate"`
	Status        string        `json:"status" yaml:"status"`
	BillingPeriod string        `json:"billingPeriod" yaml:"billingPeriod"`
}

// ContractViewModel is the display-ready record built from one booking.
type ContractViewModel struct {
	ID             string         `json:"id" yaml:"id"`
	BookingID      string         `json:"bookingId" yaml:"bookingId"`
	Type           string         `json:"type" yaml:"type"`
	Tenant         string         `json:"tenant" yaml:"tenant"`
	Landlord       string         `json:"landlord" yaml:"landlord"`
	StartDate      string         `json:"startDate" yaml:"startDate"`
	EndDate        string         `json:"endDate" yaml:"endDate"`
	Address        string         `json:"address" yaml:"address"`
	PropertyCode   string         `json:"propertyCode" yaml:"propertyCode"`
	PropertyType   string         `json:"propertyType" yaml:"propertyType"`
	Category       string         `json:"category" yaml:"category"`
	Price          float64        `json:"price" yaml:"price"`
	Deposit        float64        `json:"deposit" yaml:"deposit"`
	Status         DisplayStatus  `json:"status" yaml:"status"`
	ContractCode   string         `json:"contractCode,omitempty" yaml:"contractCode,omitempty"`
	ContractID     string         `json:"contractId,omitempty" yaml:"contractId,omitempty"`
	BookingStatus  BookingStatus  `json:"bookingStatus" yaml:"bookingStatus"`
	ContractStatus ContractStatus `json:"contractStatus,omitempty" yaml:"contractStatus,omitempty"`
	Invoices       []Invoice      `json:"invoices" yaml:"invoices"`
}
