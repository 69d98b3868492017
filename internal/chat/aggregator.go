package chat

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/threadkeep/threadkeep/internal/ai"
	"github.com/threadkeep/threadkeep/internal/common"
)

type EventType string

const (
	EventPartial EventType = "partial"
	EventDone    EventType = "done"
	EventFailed  EventType = "failed"
)

// Event is one step of a streamed turn. Partial events carry the
// cumulative text so far; each cumulative string is a prefix extension
// of the previous one. A turn produces zero or more partials followed
// by exactly one Done or Failed event.
type Event struct {
	Type EventType
	Text string
	Err  error
}

// Aggregator turns a user prompt plus conversation history into a fully
// assembled assistant message. It re-emits provider fragments as
// cumulative partials, in production order, concatenation only, and
// persists the assembled message all-or-nothing: only a Done turn on a
// saved session reaches the store, never fragments.
type Aggregator struct {
	store    *Store
	registry *ai.Registry
	provider string
}

func NewAggregator(store *Store, registry *ai.Registry, provider string) *Aggregator {
	if provider == "" {
		provider = "ollama"
	}
	return &Aggregator{store: store, registry: registry, provider: provider}
}

// StartTurn appends prompt to the session working history, submits the
// updated history to the provider, and returns the event stream for the
// resulting completion. The channel is closed after the terminal event.
//
// A second call on the same session before the terminal event returns
// ErrTurnActive. Cancelling ctx aborts fragment consumption; nothing is
// committed unless the turn finishes with a Done event.
func (a *Aggregator) StartTurn(ctx context.Context, sess *Session, prompt string) (<-chan Event, error) {
	if !sess.beginTurn() {
		return nil, ErrTurnActive
	}

	provider, err := a.registry.Get(ctx, a.provider, sess.Model)
	if err != nil {
		sess.endTurn()
		return nil, err
	}
	sp, ok := provider.(ai.StreamProvider)
	if !ok {
		sess.endTurn()
		return nil, errors.Errorf("provider %s does not support streaming", a.provider)
	}

	turnID, err := common.NewULID()
	if err != nil {
		sess.endTurn()
		return nil, err
	}

	sess.History = append(sess.History, ai.Message{Role: ai.RoleUser, Content: prompt})
	if sess.Saved() {
		// Persistence is auxiliary to the live turn: failures are
		// logged and absorbed, never allowed to abort streaming.
		if _, err := a.store.AppendMessage(ctx, sess.ChatID, sess.Model, ai.RoleUser, prompt); err != nil {
			log.Error().Err(err).
				Str("turn_id", turnID).
				Uint64("chat_id", sess.ChatID).
				Msg("persisting user message failed")
		}
	}

	events := make(chan Event, 16)
	go a.run(ctx, sess, sp, turnID, events)
	return events, nil
}

func (a *Aggregator) run(ctx context.Context, sess *Session, sp ai.StreamProvider, turnID string, events chan<- Event) {
	defer close(events)
	defer sess.endTurn()

	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	chunks, errs := sp.StreamChat(ctx, sess.History)

	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
		if !emit(Event{Type: EventPartial, Text: b.String()}) {
			return
		}
	}

	// Both channels are closed by the provider when the stream ends, so
	// this receive yields the error, if any, without racing the chunk
	// drain above.
	if err := <-errs; err != nil {
		// Accumulated text is discarded: the working history keeps the
		// user prompt as its last entry and nothing reaches the store.
		log.Warn().Err(err).Str("turn_id", turnID).Msg("completion stream failed")
		emit(Event{Type: EventFailed, Err: errors.Wrap(err, "completion stream")})
		return
	}

	// Zero fragments is a valid outcome: an empty assistant message,
	// distinct from failure.
	full := b.String()
	sess.History = append(sess.History, ai.Message{Role: ai.RoleAssistant, Content: full})
	if sess.Saved() {
		if _, err := a.store.AppendMessage(ctx, sess.ChatID, sess.Model, ai.RoleAssistant, full); err != nil {
			log.Error().Err(err).
				Str("turn_id", turnID).
				Uint64("chat_id", sess.ChatID).
				Msg("persisting assistant message failed")
		}
	}
	emit(Event{Type: EventDone, Text: full})
}
