package service

import (
	"takahome/client/chat/domain"
)

type (
	MessageHandler    func(domain.Message)
	TypingHandler     func(domain.TypingUpdate)
	ErrorHandler      func(error)
	ConnectHandler    func()
	DisconnectHandler func(DisconnectInfo)
	PresenceHandler   func(domain.PresenceEvent)
)

// DisconnectInfo describes a lost session. Reconnecting is false for a
// terminal disconnect: an explicit Disconnect or an exhausted retry policy.
type DisconnectInfo struct {
	Reason       string
	Reconnecting bool
}

type handlerEntry[T any] struct {
	id uint64
	fn T
}

// handlerSet keeps subscribers in registration order. Callers hold the
// manager lock.
type handlerSet[T any] struct {
	entries []handlerEntry[T]
}

func (s *handlerSet[T]) add(id uint64, fn T) {
	s.entries = append(s.entries, handlerEntry[T]{id: id, fn: fn})
}

func (s *handlerSet[T]) remove(id uint64) {
	for i, entry := range s.entries {
		if entry.id == id {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return
		}
	}
}

func (s *handlerSet[T]) snapshot() []T {
	out := make([]T, len(s.entries))
	for i, entry := range s.entries {
		out[i] = entry.fn
	}
	return out
}
