package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGetUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(context.Background(), "nope", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ai provider")
}

func TestRegistryRoutesModelToFactory(t *testing.T) {
	r := NewRegistry()

	var gotModel string
	r.Register("Ollama", func(ctx context.Context, model string) (Provider, error) {
		gotModel = model
		return NewOllamaProvider("", model, ""), nil
	})

	// Lookup is case and whitespace insensitive.
	p, err := r.Get(context.Background(), "  OLLAMA ", "llama3:latest")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "llama3:latest", gotModel)
}
