package session

import (
	"context"
	"sync"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[int64]*ChatSession
	portal   map[int64]storedPortal
}

type storedPortal struct {
	cookies []byte
	csrf    string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]*ChatSession),
		portal:   make(map[int64]storedPortal),
	}
}

func (m *MemoryStore) Get(_ context.Context, chatID int64) (*ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[chatID]; ok {
		return s.clone(), nil
	}
	return Baseline(chatID), nil
}

func (m *MemoryStore) Upsert(_ context.Context, chatID int64, patch Patch) (*ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[chatID]
	if !ok {
		s = Baseline(chatID)
	}
	s = s.clone()
	patch.Apply(s)
	m.sessions[chatID] = s
	return s.clone(), nil
}

func (m *MemoryStore) ClearAuthFields(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.portal, chatID)
	s, ok := m.sessions[chatID]
	if !ok {
		return nil
	}
	clearAuth(s)
	return nil
}

func (m *MemoryStore) LoadPortalState(_ context.Context, chatID int64) (PortalState, error) {
	m.mu.Lock()
	stored, ok := m.portal[chatID]
	m.mu.Unlock()
	if !ok {
		return PortalState{}, nil
	}
	cookies, err := decodeCookies(stored.cookies)
	if err != nil {
		return PortalState{}, err
	}
	return PortalState{Cookies: cookies, CSRFToken: stored.csrf}, nil
}

func (m *MemoryStore) SavePortalState(_ context.Context, chatID int64, state PortalState) error {
	raw, err := encodeCookies(state.Cookies)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.portal[chatID] = storedPortal{cookies: raw, csrf: state.CSRFToken}
	m.mu.Unlock()
	return nil
}
