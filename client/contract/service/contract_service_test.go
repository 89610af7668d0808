package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"takahome/client/contract/domain"
	"takahome/common/apiclient"
	"takahome/common/auth"
)

type fakeBookings struct {
	mu          sync.Mutex
	bookings    []domain.Booking
	invoices    map[string][]domain.Invoice
	failInvoice map[string]bool
	invoiceReqs []string
}

func (f *fakeBookings) MyBookings(ctx context.Context, condition string) ([]domain.Booking, error) {
	return f.bookings, nil
}

func (f *fakeBookings) BookingByID(ctx context.Context, id string) (domain.Booking, error) {
	for _, b := range f.bookings {
		if b.ID == id {
			return b, nil
		}
	}
	return domain.Booking{}, errors.New("not found")
}

func (f *fakeBookings) InvoicesByContract(ctx context.Context, contractID string) ([]domain.Invoice, error) {
	f.mu.Lock()
	f.invoiceReqs = append(f.invoiceReqs, contractID)
	f.mu.Unlock()
	if f.failInvoice[contractID] {
		return nil, errors.New("boom")
	}
	return f.invoices[contractID], nil
}

func TestListContractsFiltersAndAttachesInvoices(t *testing.T) {
	src := &fakeBookings{
		bookings: []domain.Booking{
			{ID: "b1", Status: domain.BookingActive, Contract: &domain.Contract{ID: "c1", ContractCode: "HD-1"}},
			{ID: "b2", Status: domain.BookingActive, Contract: &domain.Contract{ID: "c2", ContractCode: "HD-2"}},
			{ID: "b3", Status: domain.BookingPendingLandlord},
			{ID: "b4", Status: domain.BookingRejected},
			{ID: "b5", Status: domain.BookingReadyForHandover, Contract: &domain.Contract{ID: "c5"}},
			{ID: "b6", Status: domain.BookingCancelled},
		},
		invoices:    map[string][]domain.Invoice{"c1": {{ID: "i1", InvoiceCode: "INV-1"}}},
		failInvoice: map[string]bool{"c2": true},
	}
	svc := NewContractService(src, nil)

	contracts, err := svc.ListContracts(context.Background())
	require.NoError(t, err)

	ids := make([]string, 0, len(contracts))
	for _, c := range contracts {
		ids = append(ids, c.BookingID)
	}
	assert.Equal(t, []string{"b1", "b2", "b3", "b5"}, ids)
	assert.Equal(t, []domain.Invoice{{ID: "i1", InvoiceCode: "INV-1"}}, contracts[0].Invoices)
	assert.NotNil(t, contracts[1].Invoices)
	assert.Empty(t, contracts[1].Invoices)
	assert.ElementsMatch(t, []string{"c1", "c2"}, src.invoiceReqs)
}

func TestContractByBookingID(t *testing.T) {
	src := &fakeBookings{bookings: []domain.Booking{{ID: "b1", Status: domain.BookingEscrowFundedT}}}
	vm, err := NewContractService(src, nil).Contract(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAwaitingLandlordDeposit, vm.Status)

	_, err = NewContractService(src, nil).Contract(context.Background(), "missing")
	assert.Error(t, err)
}

func TestBookingClientDecodesBackendPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/bookings/me":
			assert.Equal(t, ConditionApproved, r.URL.Query().Get("condition"))
			_, _ = w.Write([]byte(`{"code":200,"message":"Success","data":[{"id":"b1","status":"AWAITING_DEPOSIT",
				"property":{"type":"APARTMENT","price":12000000,"deposit":"0","unit":"A-1"},
				"contract":{"id":"c1","contractCode":"HD-1","status":"SIGNED"}}]}`))
		case "/api/invoices/contract/c1":
			_, _ = w.Write([]byte(`{"code":200,"message":"Success","data":[{"id":"i1","totalAmount":500000,"status":"PENDING"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":404,"message":"Booking not found"}`))
		}
	}))
	defer srv.Close()

	client := NewBookingClient(apiclient.New(auth.StaticToken("t"), apiclient.Options{}, srv.URL+"/api"))
	bookings, err := client.MyBookings(context.Background(), ConditionApproved)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	vm := Project(bookings[0])
	assert.Equal(t, domain.StatusAwaitingDeposit, vm.Status)
	assert.Equal(t, 12000000.0, vm.Price)
	assert.Equal(t, "A-1", vm.PropertyCode)

	invoices, err := client.InvoicesByContract(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 500000.0, invoices[0].TotalAmount)

	_, err = client.BookingByID(context.Background(), "nope")
	var apiErr *apiclient.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Booking not found", apiErr.Message)
}

func TestListContractsFailsOnEnvelopeErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":500,"message":"booking service unavailable"}`))
	}))
	defer srv.Close()

	svc := NewContractService(NewBookingClient(apiclient.New(nil, apiclient.Options{}, srv.URL)), nil)
	contracts, err := svc.ListContracts(context.Background())
	var apiErr *apiclient.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "500", apiErr.Code)
	assert.Nil(t, contracts)
}
