package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	chat "takahome/client/chat/domain"
	contract "takahome/client/contract/domain"
	contractsvc "takahome/client/contract/service"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrSelfChat  = errors.New("cannot start a chat with yourself")
)

type User struct {
	contract.Party
	Role string
}

type fixtureEntry struct {
	property contract.Property
	rooms    []contract.Room
}

func (e fixtureEntry) room(id string) (contract.Room, bool) {
	for _, r := range e.rooms {
		if r.ID == id {
			return r, true
		}
	}
	return contract.Room{}, false
}

// Store is the in-memory data set of the development backend.
type Store struct {
	mu         sync.RWMutex
	users      map[string]User
	properties map[string]fixtureEntry
	bookings   []contract.Booking
	invoices   map[string][]contract.Invoice
	rooms      map[string]*chat.Chatroom
	messages   map[string][]chat.Message
	messageIDs map[string]chat.Message

	contractSeq int
	newID func() string
	now   func() time.Time
}

func newStore() *Store {
	return &Store{
		users:      map[string]User{},
		properties: map[string]fixtureEntry{},
		invoices:   map[string][]contract.Invoice{},
		rooms:      map[string]*chat.Chatroom{},
		messages:   map[string][]chat.Message{},
		messageIDs: map[string]chat.Message{},
		newID:      uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) User(id string) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *Store) Users() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func involved(b contract.Booking, userID string) bool {
	return b.Tenant.ID == userID || b.Property.Landlord.ID == userID
}

func matchesCondition(status contract.BookingStatus, condition string) bool {
	switch strings.ToUpper(strings.TrimSpace(condition)) {
	case "":
		return true
	case contractsvc.ConditionNotApprovedYet:
		return status == contract.BookingPendingLandlord
	case contractsvc.ConditionNotApproved:
		return status == contract.BookingRejected
	case contractsvc.ConditionApproved:
		return status != contract.BookingPendingLandlord && status != contract.BookingRejected
	default:
		return false
	}
}

// BookingsFor lists the bookings the user takes part in as tenant or
// landlord, newest first, filtered by the approval condition when given.
func (s *Store) BookingsFor(userID, condition string) []contract.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []contract.Booking{}
	for _, b := range s.bookings {
		if involved(b, userID) && matchesCondition(b.Status, condition) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out
}

func (s *Store) Booking(userID, bookingID string) (contract.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bookings {
		if b.ID != bookingID {
			continue
		}
		if !involved(b, userID) {
			return contract.Booking{}, ErrNotFound
		}
		return b, nil
	}
	return contract.Booking{}, ErrNotFound
}

func (s *Store) InvoicesByContract(userID, contractID string) ([]contract.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bookings {
		if b.ContractID != contractID {
			continue
		}
		if !involved(b, userID) {
			return nil, ErrNotFound
		}
		out := append([]contract.Invoice{}, s.invoices[contractID]...)
		sort.SliceStable(out, func(i, j int) bool { return out[i].BillingPeriod > out[j].BillingPeriod })
		return out, nil
	}
	return nil, ErrNotFound
}

func (s *Store) addRoom(room chat.Chatroom) {
	r := room
	s.rooms[room.ID] = &r
}

func (s *Store) appendMessage(room *chat.Chatroom, msg chat.Message) {
	s.messages[room.ID] = append(s.messages[room.ID], msg)
	s.messageIDs[msg.ID] = msg
	if msg.CreatedAt.After(room.UpdatedAt) {
		room.UpdatedAt = msg.CreatedAt
	}
}

func member(room *chat.Chatroom, userID string) bool {
	return room.User1.ID == userID || room.User2.ID == userID
}

func (s *Store) IsMember(roomID, userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	return ok && member(room, userID)
}

// ChatroomsFor lists the user's rooms, most recently active first, each with
// its latest message.
func (s *Store) ChatroomsFor(userID string) []chat.Chatroom {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []chat.Chatroom{}
	for _, room := range s.rooms {
		if !member(room, userID) {
			continue
		}
		r := *room
		if msgs := s.messages[room.ID]; len(msgs) > 0 {
			r.Messages = []chat.Message{msgs[len(msgs)-1]}
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Messages returns the room history in creation order.
func (s *Store) Messages(userID, roomID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	if !member(room, userID) {
		return nil, ErrForbidden
	}
	out := append([]chat.Message{}, s.messages[roomID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// AddMessage stores a message from senderID. When id names a message that
// already exists in the room it is returned as is with created false, so a
// socket broadcast of a REST-persisted message does not store it twice.
func (s *Store) AddMessage(roomID, senderID, content, id string) (chat.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return chat.Message{}, false, ErrNotFound
	}
	if !member(room, senderID) {
		return chat.Message{}, false, ErrForbidden
	}
	if id != "" {
		if existing, ok := s.messageIDs[id]; ok {
			if existing.ChatroomID != roomID {
				return chat.Message{}, false, ErrForbidden
			}
			return existing, false, nil
		}
	} else {
		id = s.newID()
	}
	sender := s.users[senderID]
	msg := chat.Message{
		ID:         id,
		ChatroomID: roomID,
		Sender:     chat.Sender{ID: sender.ID, FullName: sender.FullName, Email: sender.Email},
		Content:    content,
		CreatedAt:  s.now(),
	}
	s.appendMessage(room, msg)
	return msg, true, nil
}

// StartChat returns the room between userID and the landlord of the property,
// creating it on first use.
func (s *Store) StartChat(userID, propertyID string) (chat.Chatroom, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.properties[propertyID]
	if !ok {
		return chat.Chatroom{}, false, ErrNotFound
	}
	user, ok := s.users[userID]
	if !ok {
		return chat.Chatroom{}, false, ErrNotFound
	}
	landlordID := entry.property.Landlord.ID
	if landlordID == userID {
		return chat.Chatroom{}, false, ErrSelfChat
	}
	for _, room := range s.rooms {
		if room.Property.ID == propertyID && member(room, userID) && member(room, landlordID) {
			return *room, false, nil
		}
	}
	now := s.now()
	room := chat.Chatroom{
		ID:        s.newID(),
		User1:     chatUser(user),
		User2:     chatUser(s.users[landlordID]),
		Property:  chatProperty(entry.property),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.addRoom(room)
	return room, true, nil
}
