package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"takahome/client/contract/domain"
	"takahome/common/apiclient"
)

// Booking list filters understood by GET /bookings/me.
const (
	ConditionNotApprovedYet = "NOT_APPROVED_YET"
	ConditionNotApproved    = "NOT_APPROVED"
	ConditionApproved       = "APPROVED"
)

type BookingClient struct {
	api *apiclient.Client
}

func NewBookingClient(api *apiclient.Client) *BookingClient {
	return &BookingClient{api: api}
}

func (c *BookingClient) MyBookings(ctx context.Context, condition string) ([]domain.Booking, error) {
	var query url.Values
	if condition = strings.TrimSpace(condition); condition != "" {
		query = url.Values{"condition": {condition}}
	}
	env, err := apiclient.Get[[]domain.Booking](ctx, c.api, "/bookings/me", query)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return env.Data, nil
}

func (c *BookingClient) BookingByID(ctx context.Context, id string) (domain.Booking, error) {
	env, err := apiclient.Get[domain.Booking](ctx, c.api, "/bookings/"+url.PathEscape(id), nil)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("get booking %s: %w", id, err)
	}
	return env.Data, nil
}

func (c *BookingClient) InvoicesByContract(ctx context.Context, contractID string) ([]domain.Invoice, error) {
	env, err := apiclient.Get[[]domain.Invoice](ctx, c.api, "/invoices/contract/"+url.PathEscape(contractID), nil)
	if err != nil {
		return nil, fmt.Errorf("list invoices for contract %s: %w", contractID, err)
	}
	return env.Data, nil
}

// CancelBooking withdraws a booking that has not reached the deposit stage.
func (c *BookingClient) CancelBooking(ctx context.Context, id string) (domain.Booking, error) {
	return c.action(ctx, id, "cancel", func(path string) (apiclient.Envelope[domain.Booking], error) {
		return apiclient.Patch[domain.Booking](ctx, c.api, path, nil)
	})
}

// ApproveBooking is the landlord accepting a request; the backend drafts the
// contract for signing.
func (c *BookingClient) ApproveBooking(ctx context.Context, id string, option domain.SigningOption) (domain.Booking, error) {
	return c.post(ctx, id, "approve", domain.SigningRequest{SigningOption: option})
}

func (c *BookingClient) RejectBooking(ctx context.Context, id string) (domain.Booking, error) {
	return c.post(ctx, id, "reject", nil)
}

// SignContract signs the booking's contract as the calling party.
func (c *BookingClient) SignContract(ctx context.Context, id string, option domain.SigningOption) (domain.Booking, error) {
	return c.post(ctx, id, "sign", domain.SigningRequest{SigningOption: option})
}

// Handover confirms the keys changed hands and activates the rental.
func (c *BookingClient) Handover(ctx context.Context, id string) (domain.Booking, error) {
	return c.post(ctx, id, "handover", nil)
}

func (c *BookingClient) post(ctx context.Context, id, action string, payload any) (domain.Booking, error) {
	return c.action(ctx, id, action, func(path string) (apiclient.Envelope[domain.Booking], error) {
		return apiclient.Post[domain.Booking](ctx, c.api, path, payload)
	})
}

func (c *BookingClient) action(ctx context.Context, id, action string, call func(path string) (apiclient.Envelope[domain.Booking], error)) (domain.Booking, error) {
	env, err := call("/bookings/" + url.PathEscape(id) + "/" + action)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("%s booking %s: %w", action, id, err)
	}
	return env.Data, nil
}

func (c *BookingClient) ContractFile(ctx context.Context, contractID string) (domain.ContractFile, error) {
	env, err := apiclient.Get[domain.ContractFile](ctx, c.api, "/contracts/"+url.PathEscape(contractID)+"/file-url", nil)
	if err != nil {
		return domain.ContractFile{}, fmt.Errorf("get file of contract %s: %w", contractID, err)
	}
	return env.Data, nil
}

func (c *BookingClient) EscrowBalance(ctx context.Context, contractID string) (domain.EscrowBalance, error) {
	env, err := apiclient.Get[domain.EscrowBalance](ctx, c.api, "/escrow/balance", url.Values{"contractId": {contractID}})
	if err != nil {
		return domain.EscrowBalance{}, fmt.Errorf("get escrow balance of contract %s: %w", contractID, err)
	}
	return env.Data, nil
}

// DevFund records one escrow or rent payment on the dev backend, which has
// no payment gateway.
func (c *BookingClient) DevFund(ctx context.Context, id string) (domain.Booking, error) {
	env, err := apiclient.Post[domain.Booking](ctx, c.api, "/dev/bookings/"+url.PathEscape(id)+"/fund", nil)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("fund booking %s: %w", id, err)
	}
	return env.Data, nil
}
