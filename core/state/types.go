package state

import (
	"image"
	"time"
)

// State identifies a finite-state-machine step of the merge conversation.
type State string

const (
	// StateIdle indicates there is no active conversation with the chat.
	StateIdle State = "idle"
	// StateAwaitingMain waits for the background image.
	StateAwaitingMain State = "awaiting_main_image"
	// StateAwaitingReference waits for the overlay image.
	StateAwaitingReference State = "awaiting_reference_image"
	// StateAwaitingName waits for the label text.
	StateAwaitingName State = "awaiting_name"
	// StateDone is transient: set after a successful composite, then reset.
	StateDone State = "done"
)

// Session stores conversation state and collected images for a chat.
// Main is set only from StateAwaitingReference onward and Reference only
// from StateAwaitingName onward.
type Session struct {
	ChatID    int64
	State     State
	Main      image.Image
	Reference image.Image
	UpdatedAt time.Time
}

// Reset drops collected images and returns the session to idle.
func (s *Session) Reset() {
	s.State = StateIdle
	s.Main = nil
	s.Reference = nil
}

// Manager owns chat sessions and serializes access per chat.
type Manager interface {
	// Lock returns the chat's session with exclusive access until unlock is called.
	// A fresh idle session is created when none exists.
	Lock(chatID int64) (sess *Session, unlock func())
	// GetState returns the last committed state, or StateIdle if none exists.
	GetState(chatID int64) State
	// InProgress reports whether the chat has an active conversation.
	InProgress(chatID int64) bool
	// Len reports how many chats hold non-idle sessions.
	Len() int
}
