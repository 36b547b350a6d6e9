package middleware

import (
	"sync"

	tele "gopkg.in/telebot.v4"
)

type chatLock struct {
	mu   sync.Mutex
	refs int
}

// ChatSerializer runs handlers of the same chat one at a time.
// Updates of different chats proceed concurrently.
type ChatSerializer struct {
	mu    sync.Mutex
	locks map[int64]*chatLock
}

// NewChatSerializer creates an empty serializer.
func NewChatSerializer() *ChatSerializer {
	return &ChatSerializer{locks: make(map[int64]*chatLock)}
}

// Lock blocks until the chat is free and returns the matching unlock func.
func (s *ChatSerializer) Lock(chatID int64) func() {
	s.mu.Lock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &chatLock{}
		s.locks[chatID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, chatID)
		}
		s.mu.Unlock()
	}
}

// Pending reports how many chats currently hold or wait for a lock.
func (s *ChatSerializer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

// Middleware serializes updates per chat.
func (s *ChatSerializer) Middleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		chat := c.Chat()
		if chat == nil {
			return next(c)
		}
		unlock := s.Lock(chat.ID)
		defer unlock()
		return next(c)
	}
}
