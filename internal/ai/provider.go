package ai

import "context"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one role-tagged turn of a conversation as exchanged with a
// completion provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider produces a complete assistant reply for a message history.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// StreamProvider is an optional interface. Providers may implement
// streaming chat. Fragments arrive in production order; both channels
// are closed when the stream ends and at most one error is sent. An
// error may arrive before the first fragment.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}

// ModelLister is an optional interface. Providers may expose the model
// catalog of their backing service.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}
