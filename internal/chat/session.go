package chat

import (
	"sync/atomic"

	"github.com/threadkeep/threadkeep/internal/ai"
)

// Session carries the state of one UI conversation: the persisted chat
// id (zero until the user saves), the selected model, and the working
// history of messages that may or may not be persisted yet. It is
// passed explicitly into core operations; there is no process-wide
// session state.
//
// A session serializes turns. While a turn is streaming, History must
// not be read or mutated by the caller; it is consistent again once the
// terminal event has been delivered.
type Session struct {
	ChatID  uint64
	Model   string
	History []ai.Message

	turnActive atomic.Bool
}

func NewSession(chatID uint64, model string, history []ai.Message) *Session {
	return &Session{ChatID: chatID, Model: model, History: history}
}

// Saved reports whether the session is backed by a persisted chat.
func (s *Session) Saved() bool { return s.ChatID != 0 }

func (s *Session) beginTurn() bool { return s.turnActive.CompareAndSwap(false, true) }

func (s *Session) endTurn() { s.turnActive.Store(false) }
