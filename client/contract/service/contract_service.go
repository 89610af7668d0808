package service

import (
	"context"
	"sync"
	"time"

	"takahome/client/contract/domain"
	commonlog "takahome/common/log"
)

type bookingSource interface {
	MyBookings(ctx context.Context, condition string) ([]domain.Booking, error)
	BookingByID(ctx context.Context, id string) (domain.Booking, error)
	InvoicesByContract(ctx context.Context, contractID string) ([]domain.Invoice, error)
}

// ContractService lists the caller's contracts with invoices attached to the
// active ones.
type ContractService struct {
	bookings  bookingSource
	projector *Projector
}

func NewContractService(bookings bookingSource, projector *Projector) *ContractService {
	if projector == nil {
		projector = NewProjector()
	}
	return &ContractService{bookings: bookings, projector: projector}
}

// ListContracts keeps bookings that already carry a contract or are still in
// the approval/signing/deposit stages.
func (s *ContractService) ListContracts(ctx context.Context) ([]domain.ContractViewModel, error) {
	startedAt := time.Now()
	bookings, err := s.bookings.MyBookings(ctx, "")
	if err != nil {
		commonlog.Errorf("event=contract_list action=fetch_bookings status=failed error=%v", err)
		return nil, err
	}
	contracts := make([]domain.ContractViewModel, 0, len(bookings))
	for _, b := range bookings {
		if !listable(b) {
			continue
		}
		contracts = append(contracts, s.projector.Project(b))
	}
	s.attachInvoices(ctx, contracts)
	commonlog.Infof("event=contract_list action=list status=ok bookings=%d contracts=%d latency_ms=%d", len(bookings), len(contracts), time.Since(startedAt).Milliseconds())
	return contracts, nil
}

func (s *ContractService) Contract(ctx context.Context, bookingID string) (domain.ContractViewModel, error) {
	b, err := s.bookings.BookingByID(ctx, bookingID)
	if err != nil {
		return domain.ContractViewModel{}, err
	}
	out := []domain.ContractViewModel{s.projector.Project(b)}
	s.attachInvoices(ctx, out)
	return out[0], nil
}

func listable(b domain.Booking) bool {
	if b.Contract != nil {
		return true
	}
	switch b.Status {
	case domain.BookingPendingLandlord, domain.BookingPendingSignature, domain.BookingAwaitingDeposit:
		return true
	default:
		return false
	}
}

// attachInvoices fetches invoices for active contracts concurrently. A failed
// fetch is logged and leaves that contract with no invoices.
func (s *ContractService) attachInvoices(ctx context.Context, contracts []domain.ContractViewModel) {
	var wg sync.WaitGroup
	for i := range contracts {
		vm := &contracts[i]
		if vm.Status != domain.StatusActive || vm.ContractID == "" {
			continue
		}
		wg.Add(1)
		go func(vm *domain.ContractViewModel) {
			defer wg.Done()
			invoices, err := s.bookings.InvoicesByContract(ctx, vm.ContractID)
			if err != nil {
				commonlog.Warnf("event=contract_list action=fetch_invoices status=failed contract_id=%s error=%v", vm.ContractID, err)
				return
			}
			if invoices != nil {
				vm.Invoices = invoices
			}
		}(vm)
	}
	wg.Wait()
}
