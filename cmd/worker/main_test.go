package main

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadkeep/threadkeep/internal/ai"
	"github.com/threadkeep/threadkeep/internal/chat"
	"github.com/threadkeep/threadkeep/internal/db"
)

type cannedProvider struct {
	reply string
	err   error

	got []ai.Message
}

func (p *cannedProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	p.got = append([]ai.Message(nil), messages...)
	return p.reply, p.err
}

func newWorkerFixture(t *testing.T, prov ai.Provider) (*chat.Store, *ai.Registry) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := db.Connect("sqlite", dsn)
	require.NoError(t, err)
	store := chat.NewStore(gdb)
	store.Initialize(context.Background())
	require.False(t, store.Degraded())

	reg := ai.NewRegistry()
	reg.Register("canned", func(ctx context.Context, model string) (ai.Provider, error) {
		return prov, nil
	})
	return store, reg
}

func TestHandleJobSuccess(t *testing.T) {
	prov := &cannedProvider{reply: "hey"}
	store, reg := newWorkerFixture(t, prov)
	ctx := context.Background()

	chatID, err := store.SaveChat(ctx, "n", "m", []ai.Message{
		{Role: ai.RoleUser, Content: "earlier"},
		{Role: ai.RoleAssistant, Content: "sure"},
	})
	require.NoError(t, err)

	job := &chat.TurnJob{ID: "01WORKERTESTJOB0000000000A", ChatID: chatID, Prompt: "hi", Status: chat.JobQueued}
	require.NoError(t, store.CreateJob(ctx, job))

	require.NoError(t, handleJob(ctx, store, reg, "canned", job.ID))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.JobSucceeded, got.Status)
	require.NotNil(t, got.ResultMessageID)

	// The provider saw the stored history plus the new prompt.
	require.Len(t, prov.got, 3)
	assert.Equal(t, ai.Message{Role: ai.RoleUser, Content: "hi"}, prov.got[2])

	msgs, err := store.GetMessages(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, []ai.Message{
		{Role: ai.RoleUser, Content: "earlier"},
		{Role: ai.RoleAssistant, Content: "sure"},
		{Role: ai.RoleUser, Content: "hi"},
		{Role: ai.RoleAssistant, Content: "hey"},
	}, msgs)
}

func TestHandleJobProviderFailure(t *testing.T) {
	store, reg := newWorkerFixture(t, &cannedProvider{err: errors.New("model exploded")})
	ctx := context.Background()

	chatID, err := store.SaveChat(ctx, "n", "m", nil)
	require.NoError(t, err)

	job := &chat.TurnJob{ID: "01WORKERTESTJOB0000000000B", ChatID: chatID, Prompt: "hi", Status: chat.JobQueued}
	require.NoError(t, store.CreateJob(ctx, job))

	require.Error(t, handleJob(ctx, store, reg, "canned", job.ID))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, chat.JobFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "model exploded")

	// The prompt was recorded before the completion was attempted.
	msgs, err := store.GetMessages(ctx, chatID)
	require.NoError(t, err)
	assert.Equal(t, []ai.Message{{Role: ai.RoleUser, Content: "hi"}}, msgs)
}

func TestHandleJobMissing(t *testing.T) {
	store, reg := newWorkerFixture(t, &cannedProvider{})
	require.Error(t, handleJob(context.Background(), store, reg, "canned", "nope"))
}

func TestWorkerConcurrency(t *testing.T) {
	t.Setenv("WORKER_CONCURRENCY", "")
	assert.Equal(t, 2, workerConcurrency())

	t.Setenv("WORKER_CONCURRENCY", "8")
	assert.Equal(t, 8, workerConcurrency())

	t.Setenv("WORKER_CONCURRENCY", "0")
	assert.Equal(t, 2, workerConcurrency())

	t.Setenv("WORKER_CONCURRENCY", "999")
	assert.Equal(t, 50, workerConcurrency())
}
