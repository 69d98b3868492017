package chat

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadkeep/threadkeep/internal/ai"
)

// scriptedProvider replays a fixed fragment sequence and then,
// optionally, an error. When block is set, the stream waits until it is
// closed before producing anything.
type scriptedProvider struct {
	chunks []string
	err    error
	block  chan struct{}

	got []ai.Message
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	out := ""
	for _, c := range p.chunks {
		out += c
	}
	return out, p.err
}

func (p *scriptedProvider) StreamChat(ctx context.Context, messages []ai.Message) (<-chan string, <-chan error) {
	p.got = append([]ai.Message(nil), messages...)

	chunks := make(chan string, len(p.chunks)+1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		if p.block != nil {
			<-p.block
		}
		for _, c := range p.chunks {
			chunks <- c
		}
		if p.err != nil {
			errs <- p.err
		}
	}()
	return chunks, errs
}

func newTestAggregator(t *testing.T, s *Store, prov ai.Provider) *Aggregator {
	t.Helper()
	reg := ai.NewRegistry()
	reg.Register("scripted", func(ctx context.Context, model string) (ai.Provider, error) {
		return prov, nil
	})
	return NewAggregator(s, reg, "scripted")
}

// collect drains the event stream into partials and the terminal event.
func collect(t *testing.T, events <-chan Event) ([]string, Event) {
	t.Helper()
	var partials []string
	var terminal Event
	terminals := 0
	for ev := range events {
		if ev.Type == EventPartial {
			partials = append(partials, ev.Text)
			continue
		}
		terminal = ev
		terminals++
	}
	require.Equal(t, 1, terminals, "expected exactly one terminal event")
	return partials, terminal
}

func TestTurnHappyPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chatID, err := s.SaveChat(ctx, "n", "m", nil)
	require.NoError(t, err)

	prov := &scriptedProvider{chunks: []string{"Hel", "lo", " world"}}
	agg := newTestAggregator(t, s, prov)
	sess := NewSession(chatID, "m", nil)

	events, err := agg.StartTurn(ctx, sess, "hi")
	require.NoError(t, err)

	partials, terminal := collect(t, events)
	assert.Equal(t, []string{"Hel", "Hello", "Hello world"}, partials)
	require.Equal(t, EventDone, terminal.Type)
	assert.Equal(t, "Hello world", terminal.Text)

	// The provider saw the updated history ending with the prompt.
	require.NotEmpty(t, prov.got)
	assert.Equal(t, ai.Message{Role: ai.RoleUser, Content: "hi"}, prov.got[len(prov.got)-1])

	// Exactly one assistant message was persisted, after the user one.
	msgs, err := s.GetMessages(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, []ai.Message{
		{Role: ai.RoleUser, Content: "hi"},
		{Role: ai.RoleAssistant, Content: "Hello world"},
	}, msgs)

	require.Len(t, sess.History, 2)
	assert.Equal(t, ai.Message{Role: ai.RoleAssistant, Content: "Hello world"}, sess.History[1])
}

func TestTurnUpstreamFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chatID, err := s.SaveChat(ctx, "n", "m", nil)
	require.NoError(t, err)

	prov := &scriptedProvider{chunks: []string{"Hel"}, err: errors.New("boom")}
	agg := newTestAggregator(t, s, prov)
	sess := NewSession(chatID, "m", nil)

	events, err := agg.StartTurn(ctx, sess, "hi")
	require.NoError(t, err)

	partials, terminal := collect(t, events)
	assert.Equal(t, []string{"Hel"}, partials)
	require.Equal(t, EventFailed, terminal.Type)
	require.Error(t, terminal.Err)
	assert.Contains(t, terminal.Err.Error(), "boom")

	// Accumulated text was discarded: no assistant message anywhere,
	// and the working history still ends with the user prompt.
	msgs, err := s.GetMessages(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, []ai.Message{{Role: ai.RoleUser, Content: "hi"}}, msgs)

	require.NotEmpty(t, sess.History)
	assert.Equal(t, ai.Message{Role: ai.RoleUser, Content: "hi"}, sess.History[len(sess.History)-1])
}

func TestTurnFailureBeforeFirstFragment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prov := &scriptedProvider{err: errors.New("connection refused")}
	agg := newTestAggregator(t, s, prov)
	sess := NewSession(0, "m", nil)

	events, err := agg.StartTurn(ctx, sess, "hi")
	require.NoError(t, err)

	partials, terminal := collect(t, events)
	assert.Empty(t, partials)
	assert.Equal(t, EventFailed, terminal.Type)
}

func TestTurnEmptyCompletion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chatID, err := s.SaveChat(ctx, "n", "m", nil)
	require.NoError(t, err)

	prov := &scriptedProvider{}
	agg := newTestAggregator(t, s, prov)
	sess := NewSession(chatID, "m", nil)

	events, err := agg.StartTurn(ctx, sess, "hi")
	require.NoError(t, err)

	partials, terminal := collect(t, events)
	assert.Empty(t, partials)
	require.Equal(t, EventDone, terminal.Type)
	assert.Equal(t, "", terminal.Text)

	// An empty assistant message is a valid, persisted outcome.
	msgs, err := s.GetMessages(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, []ai.Message{
		{Role: ai.RoleUser, Content: "hi"},
		{Role: ai.RoleAssistant, Content: ""},
	}, msgs)
}

func TestTurnUnsavedSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prov := &scriptedProvider{chunks: []string{"hey"}}
	agg := newTestAggregator(t, s, prov)
	sess := NewSession(0, "m", nil)

	events, err := agg.StartTurn(ctx, sess, "hi")
	require.NoError(t, err)

	_, terminal := collect(t, events)
	require.Equal(t, EventDone, terminal.Type)

	// The reply exists only in the working history until the user
	// explicitly saves.
	var count int64
	require.NoError(t, s.db.Model(&Message{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Len(t, sess.History, 2)
}

func TestTurnsSerializedPerSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prov := &scriptedProvider{chunks: []string{"hey"}, block: make(chan struct{})}
	agg := newTestAggregator(t, s, prov)
	sess := NewSession(0, "m", nil)

	events, err := agg.StartTurn(ctx, sess, "first")
	require.NoError(t, err)

	_, err = agg.StartTurn(ctx, sess, "second")
	require.ErrorIs(t, err, ErrTurnActive)

	close(prov.block)
	_, terminal := collect(t, events)
	require.Equal(t, EventDone, terminal.Type)

	// The session accepts a new turn once the previous one terminated.
	events, err = agg.StartTurn(ctx, sess, "third")
	require.NoError(t, err)
	_, terminal = collect(t, events)
	assert.Equal(t, EventDone, terminal.Type)
}

func TestTurnUnknownProvider(t *testing.T) {
	s := newTestStore(t)
	agg := NewAggregator(s, ai.NewRegistry(), "nope")
	sess := NewSession(0, "m", nil)

	_, err := agg.StartTurn(context.Background(), sess, "hi")
	require.Error(t, err)

	// The failed start released the turn slot.
	prov := &scriptedProvider{chunks: []string{"ok"}}
	agg = newTestAggregator(t, s, prov)
	events, err := agg.StartTurn(context.Background(), sess, "hi")
	require.NoError(t, err)
	_, terminal := collect(t, events)
	assert.Equal(t, EventDone, terminal.Type)
}
