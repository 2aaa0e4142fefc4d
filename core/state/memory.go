package state

import (
	"sync"
	"time"
)

type entry struct {
	mu   sync.Mutex
	sess Session
	// refs counts holders and waiters; guarded by memoryManager.mu.
	refs int
	// committed mirrors sess.State as of the last unlock; guarded by memoryManager.mu.
	committed State
}

type memoryManager struct {
	mu       sync.Mutex
	sessions map[int64]*entry
	now      func() time.Time
}

// NewMemoryManager constructs an in-memory Manager.
func NewMemoryManager() Manager {
	return &memoryManager{
		sessions: make(map[int64]*entry),
		now:      time.Now,
	}
}

// Lock acquires the per-chat lock, creating an idle session if necessary.
// Idle sessions are dropped on unlock once no other caller holds or awaits them.
func (m *memoryManager) Lock(chatID int64) (*Session, func()) {
	m.mu.Lock()
	e, ok := m.sessions[chatID]
	if !ok {
		e = &entry{sess: Session{ChatID: chatID, State: StateIdle}, committed: StateIdle}
		m.sessions[chatID] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
	var once sync.Once
	unlock := func() {
		once.Do(func() {
			e.sess.UpdatedAt = m.now()
			if e.sess.State == StateDone {
				e.sess.Reset()
			}
			st := e.sess.State

			m.mu.Lock()
			e.committed = st
			e.refs--
			if e.refs == 0 && st == StateIdle {
				delete(m.sessions, chatID)
			}
			m.mu.Unlock()

			e.mu.Unlock()
		})
	}
	return &e.sess, unlock
}

// GetState returns the committed FSM state of a chat, or StateIdle if none exists.
func (m *memoryManager) GetState(chatID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[chatID]; ok {
		return e.committed
	}
	return StateIdle
}

// InProgress reports whether the chat currently has an active FSM state.
func (m *memoryManager) InProgress(chatID int64) bool {
	return m.GetState(chatID) != StateIdle
}

// Len reports the number of chats with a non-idle committed state.
func (m *memoryManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.sessions {
		if e.committed != StateIdle {
			n++
		}
	}
	return n
}
