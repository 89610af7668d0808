package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contract "takahome/client/contract/domain"
	contractsvc "takahome/client/contract/service"
)

func loadDefault(t *testing.T) *Store {
	t.Helper()
	s, err := Load("")
	require.NoError(t, err)
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}
	s.now = func() time.Time { return time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC) }
	return s
}

func bookingIDs(bookings []contract.Booking) []string {
	out := make([]string, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, b.ID)
	}
	return out
}

func TestLoadEmbeddedFixtures(t *testing.T) {
	s := loadDefault(t)

	b, err := s.Booking("u-tenant-1", "b-1002")
	require.NoError(t, err)
	assert.Equal(t, contract.PropertyBoarding, b.Property.Kind)
	require.NotNil(t, b.Room)
	require.NotNil(t, b.Room.RoomType)
	assert.Equal(t, contract.Amount("3500000"), b.Room.RoomType.Price)
	assert.Equal(t, "c-1002", b.ContractID)
	assert.Equal(t, "Le Van Cuong", b.Property.Landlord.FullName)

	b, err = s.Booking("u-tenant-1", "b-1001")
	require.NoError(t, err)
	assert.Equal(t, contract.PropertyApartment, b.Property.Kind)
	require.NotNil(t, b.Property.Unit)
	assert.Equal(t, "A-1203", b.Property.Unit.Name)

	user, ok := s.User("u-landlord-1")
	require.True(t, ok)
	assert.Equal(t, "LANDLORD", user.Role)
	assert.Len(t, s.Users(), 4)
}

func TestParseRejectsDanglingReferences(t *testing.T) {
	_, err := Parse([]byte(`
users:
  - {id: u1, fullName: A}
properties:
  - {id: p1, type: APARTMENT, landlordId: ghost}
`))
	assert.ErrorContains(t, err, "unknown landlord")

	_, err = Parse([]byte("users: [unclosed"))
	assert.Error(t, err)

	_, err = Load("/nonexistent/fixtures.yaml")
	assert.Error(t, err)
}

func TestBookingsForConditions(t *testing.T) {
	s := loadDefault(t)

	assert.Equal(t, []string{"b-1003", "b-1002", "b-1004", "b-1001", "b-1006"}, bookingIDs(s.BookingsFor("u-tenant-1", "")))
	assert.Equal(t, []string{"b-1003"}, bookingIDs(s.BookingsFor("u-tenant-1", contractsvc.ConditionNotApprovedYet)))
	assert.Equal(t, []string{"b-1004"}, bookingIDs(s.BookingsFor("u-tenant-1", contractsvc.ConditionNotApproved)))
	assert.Equal(t, []string{"b-1002", "b-1001", "b-1006"}, bookingIDs(s.BookingsFor("u-tenant-1", contractsvc.ConditionApproved)))
	assert.Empty(t, s.BookingsFor("u-tenant-1", "BOGUS"))

	// landlords see the bookings on their properties
	assert.ElementsMatch(t, []string{"b-1002", "b-1004"}, bookingIDs(s.BookingsFor("u-landlord-2", "")))
}

func TestBookingAndInvoiceAccess(t *testing.T) {
	s := loadDefault(t)

	_, err := s.Booking("u-tenant-2", "b-1001")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Booking("u-tenant-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	invoices, err := s.InvoicesByContract("u-tenant-1", "c-1001")
	require.NoError(t, err)
	require.Len(t, invoices, 2)
	assert.Equal(t, "2026-02", invoices[0].BillingPeriod)

	invoices, err = s.InvoicesByContract("u-landlord-1", "c-1001")
	require.NoError(t, err)
	assert.Len(t, invoices, 2)

	_, err = s.InvoicesByContract("u-tenant-2", "c-1001")
	assert.ErrorIs(t, err, ErrNotFound)

	invoices, err = s.InvoicesByContract("u-tenant-2", "c-1005")
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestChatroomsAndMessages(t *testing.T) {
	s := loadDefault(t)

	rooms := s.ChatroomsFor("u-tenant-1")
	require.Len(t, rooms, 2)
	assert.Equal(t, "cr-2", rooms[0].ID)
	require.Len(t, rooms[1].Messages, 1)
	assert.Equal(t, "m-2", rooms[1].Messages[0].ID)
	assert.Equal(t, "Tran Thi Binh", rooms[1].Peer("u-tenant-1").FullName)

	assert.True(t, s.IsMember("cr-1", "u-landlord-1"))
	assert.False(t, s.IsMember("cr-1", "u-tenant-2"))
	assert.False(t, s.IsMember("nope", "u-tenant-1"))

	_, err := s.Messages("u-tenant-2", "cr-1")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = s.Messages("u-tenant-1", "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	msg, created, err := s.AddMessage("cr-1", "u-tenant-1", "When can I move in?", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "gen-1", msg.ID)
	assert.Equal(t, "Nguyen Van An", msg.Sender.FullName)

	again, created, err := s.AddMessage("cr-1", "u-tenant-1", "ignored", "gen-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "When can I move in?", again.Content)

	_, _, err = s.AddMessage("cr-2", "u-tenant-1", "x", "gen-1")
	assert.ErrorIs(t, err, ErrForbidden)
	_, _, err = s.AddMessage("cr-1", "u-tenant-2", "x", "")
	assert.ErrorIs(t, err, ErrForbidden)

	history, err := s.Messages("u-landlord-1", "cr-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "gen-1", history[2].ID)

	assert.Equal(t, "cr-1", s.ChatroomsFor("u-tenant-1")[0].ID)
}

func TestStartChat(t *testing.T) {
	s := loadDefault(t)

	room, created, err := s.StartChat("u-tenant-1", "p-apt-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "cr-1", room.ID)

	room, created, err = s.StartChat("u-tenant-2", "p-apt-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "gen-1", room.ID)
	assert.Equal(t, "u-landlord-1", room.User2.ID)
	assert.Equal(t, "Sunrise City studio", room.Property.Title)
	assert.True(t, s.IsMember("gen-1", "u-tenant-2"))

	_, _, err = s.StartChat("u-landlord-1", "p-apt-1")
	assert.ErrorIs(t, err, ErrSelfChat)
	_, _, err = s.StartChat("u-tenant-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
