package service

import (
	"context"

	contract "takahome/client/contract/domain"
	commonlog "takahome/common/log"
	"takahome/server/devbackend/store"
)

const EventBookingStatusChanged = "booking.status_changed"

type BookingService struct {
	store *store.Store
	mq    eventPublisher
}

// NewBookingService wires the booking lifecycle. mq may be nil.
func NewBookingService(st *store.Store, mq eventPublisher) *BookingService {
	return &BookingService{store: st, mq: mq}
}

func (s *BookingService) UsePublisher(mq eventPublisher) {
	s.mq = mq
}

// Apply runs one lifecycle action and publishes booking.status_changed when
// the booking status moved.
func (s *BookingService) Apply(ctx context.Context, userID, bookingID string, action store.Action) (contract.Booking, error) {
	b, from, err := s.store.Transition(userID, bookingID, action)
	if err != nil {
		commonlog.Warnf("event=booking_transition action=%s status=failed booking_id=%s user_id=%s error=%v", action, bookingID, userID, err)
		return contract.Booking{}, err
	}
	commonlog.Infof("event=booking_transition action=%s status=ok booking_id=%s user_id=%s from=%s to=%s", action, bookingID, userID, from, b.Status)
	if s.mq == nil || from == b.Status {
		return b, nil
	}
	event := map[string]any{
		"event":       EventBookingStatusChanged,
		"booking_id":  b.ID,
		"contract_id": b.ContractID,
		"action":      string(action),
		"from":        string(from),
		"to":          string(b.Status),
		"actor_id":    userID,
	}
	if err := s.mq.Publish(ctx, b.ID, EventBookingStatusChanged, event); err != nil {
		commonlog.Warnf("event=booking_event_publish action=publish status=failed booking_id=%s error=%v", b.ID, err)
	}
	return b, nil
}
