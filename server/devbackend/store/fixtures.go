package store

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	chat "takahome/client/chat/domain"
	contract "takahome/client/contract/domain"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

type fixtureDoc struct {
	Users      []fixtureUser      `yaml:"users"`
	Properties []fixtureProperty  `yaml:"properties"`
	Bookings   []fixtureBooking   `yaml:"bookings"`
	Invoices   []contract.Invoice `yaml:"invoices"`
	Chatrooms  []fixtureChatroom  `yaml:"chatrooms"`
	Messages   []fixtureMessage   `yaml:"messages"`
}

type fixtureUser struct {
	ID       string `yaml:"id"`
	FullName string `yaml:"fullName"`
	Email    string `yaml:"email"`
	Phone    string `yaml:"phone"`
	Role     string `yaml:"role"`
}

type fixtureProperty struct {
	ID         string          `yaml:"id"`
	Title      string          `yaml:"title"`
	Type       string          `yaml:"type"`
	Address    string          `yaml:"address"`
	Ward       string          `yaml:"ward"`
	Province   string          `yaml:"province"`
	Furnishing string          `yaml:"furnishing"`
	Price      contract.Amount `yaml:"price"`
	Deposit    contract.Amount `yaml:"deposit"`
	LandlordID string          `yaml:"landlordId"`
	Unit       *contract.Unit  `yaml:"unit"`
	Rooms      []contract.Room `yaml:"rooms"`
}

type fixtureBooking struct {
	ID         string                 `yaml:"id"`
	TenantID   string                 `yaml:"tenantId"`
	PropertyID string                 `yaml:"propertyId"`
	RoomID     string                 `yaml:"roomId"`
	Status     contract.BookingStatus `yaml:"status"`
	CreatedAt  string                 `yaml:"createdAt"`
	Contract   *contract.Contract     `yaml:"contract"`
}

type fixtureChatroom struct {
	ID         string    `yaml:"id"`
	User1ID    string    `yaml:"user1Id"`
	User2ID    string    `yaml:"user2Id"`
	PropertyID string    `yaml:"propertyId"`
	CreatedAt  time.Time `yaml:"createdAt"`
}

type fixtureMessage struct {
	ID         string    `yaml:"id"`
	ChatroomID string    `yaml:"chatroomId"`
	SenderID   string    `yaml:"senderId"`
	Content    string    `yaml:"content"`
	CreatedAt  time.Time `yaml:"createdAt"`
}

// Load reads the fixture document at path, or the embedded default when path
// is empty.
func Load(path string) (*Store, error) {
	raw := defaultFixtures
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read fixtures: %w", err)
		}
		raw = b
	}
	return Parse(raw)
}

// Parse builds a store from a YAML fixture document. References between
// documents are checked; a dangling id is an error.
func Parse(raw []byte) (*Store, error) {
	var doc fixtureDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	s := newStore()

	for _, u := range doc.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("fixture user without id")
		}
		s.users[u.ID] = User{
			Party: contract.Party{ID: u.ID, FullName: u.FullName, Email: u.Email, Phone: u.Phone},
			Role:  u.Role,
		}
	}

	for _, p := range doc.Properties {
		landlord, ok := s.users[p.LandlordID]
		if !ok {
			return nil, fmt.Errorf("property %s: unknown landlord %q", p.ID, p.LandlordID)
		}
		s.properties[p.ID] = fixtureEntry{
			property: contract.Property{
				ID:         p.ID,
				Title:      p.Title,
				Type:       p.Type,
				Kind:       contract.KindFromType(p.Type),
				Address:    p.Address,
				Ward:       p.Ward,
				Province:   p.Province,
				Furnishing: p.Furnishing,
				Price:      p.Price,
				Deposit:    p.Deposit,
				Landlord:   landlord.Party,
				Unit:       p.Unit,
			},
			rooms: p.Rooms,
		}
	}

	for _, b := range doc.Bookings {
		tenant, ok := s.users[b.TenantID]
		if !ok {
			return nil, fmt.Errorf("booking %s: unknown tenant %q", b.ID, b.TenantID)
		}
		entry, ok := s.properties[b.PropertyID]
		if !ok {
			return nil, fmt.Errorf("booking %s: unknown property %q", b.ID, b.PropertyID)
		}
		booking := contract.Booking{
			ID:        b.ID,
			Tenant:    tenant.Party,
			Property:  entry.property,
			Status:    b.Status,
			Contract:  b.Contract,
			CreatedAt: b.CreatedAt,
			UpdatedAt: b.CreatedAt,
		}
		if b.Contract != nil {
			booking.ContractID = b.Contract.ID
		}
		if b.RoomID != "" {
			room, ok := entry.room(b.RoomID)
			if !ok {
				return nil, fmt.Errorf("booking %s: unknown room %q", b.ID, b.RoomID)
			}
			booking.Room = &room
		}
		s.bookings = append(s.bookings, booking)
	}
	s.contractSeq = len(s.bookings)

	for _, inv := range doc.Invoices {
		s.invoices[inv.ContractID] = append(s.invoices[inv.ContractID], inv)
	}

	for _, r := range doc.Chatrooms {
		u1, ok1 := s.users[r.User1ID]
		u2, ok2 := s.users[r.User2ID]
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("chatroom %s: unknown participant", r.ID)
		}
		entry, ok := s.properties[r.PropertyID]
		if !ok {
			return nil, fmt.Errorf("chatroom %s: unknown property %q", r.ID, r.PropertyID)
		}
		s.addRoom(chat.Chatroom{
			ID:        r.ID,
			User1:     chatUser(u1),
			User2:     chatUser(u2),
			Property:  chatProperty(entry.property),
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.CreatedAt,
		})
	}

	for _, m := range doc.Messages {
		room, ok := s.rooms[m.ChatroomID]
		if !ok {
			return nil, fmt.Errorf("message %s: unknown chatroom %q", m.ID, m.ChatroomID)
		}
		sender, ok := s.users[m.SenderID]
		if !ok {
			return nil, fmt.Errorf("message %s: unknown sender %q", m.ID, m.SenderID)
		}
		s.appendMessage(room, chat.Message{
			ID:         m.ID,
			ChatroomID: m.ChatroomID,
			Sender:     chat.Sender{ID: sender.ID, FullName: sender.FullName, Email: sender.Email},
			Content:    m.Content,
			CreatedAt:  m.CreatedAt,
		})
	}
	return s, nil
}

func chatUser(u User) chat.ChatUser {
	return chat.ChatUser{ID: u.ID, Email: u.Email, Phone: u.Phone, FullName: u.FullName}
}

func chatProperty(p contract.Property) chat.ChatProperty {
	return chat.ChatProperty{
		ID:       p.ID,
		Title:    p.Title,
		Type:     p.Type,
		Address:  p.Address,
		Ward:     p.Ward,
		Province: p.Province,
	}
}
