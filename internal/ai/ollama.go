package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// OllamaProvider talks to a local or remote Ollama daemon. Model is
// bound at construction; KeepAlive controls how long the daemon keeps
// the model loaded after a request ("30m", "0" to unload immediately).
type OllamaProvider struct {
	BaseURL   string
	Model     string
	KeepAlive string
	Client    *http.Client
}

func NewOllamaProvider(baseURL, model, keepAlive string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		BaseURL:   baseURL,
		Model:     model,
		KeepAlive: keepAlive,
		Client:    &http.Client{Timeout: 90 * time.Second},
	}
}

type ollamaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatReq struct {
	Model     string      `json:"model"`
	Messages  []ollamaMsg `json:"messages"`
	Stream    bool        `json:"stream"`
	KeepAlive string      `json:"keep_alive,omitempty"`
}

type ollamaChatResp struct {
	Message ollamaMsg `json:"message"`
	Done    bool      `json:"done"`
	Error   string    `json:"error,omitempty"`
}

type ollamaTagsResp struct {
	Models []struct {
		Model string `json:"model"`
	} `json:"models"`
}

func (p *OllamaProvider) newChatRequest(ctx context.Context, messages []Message, stream bool) (*http.Request, error) {
	msgs := make([]ollamaMsg, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, ollamaMsg{Role: m.Role, Content: m.Content})
	}
	body, err := json.Marshal(ollamaChatReq{
		Model:     p.Model,
		Messages:  msgs,
		Stream:    stream,
		KeepAlive: p.KeepAlive,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/chat", p.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Chat returns the full assistant reply in one shot.
func (p *OllamaProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if p.Client == nil {
		return "", errors.New("ollama: http client is nil")
	}

	req, err := p.newChatRequest(ctx, messages, false)
	if err != nil {
		return "", err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("ollama: status %d", resp.StatusCode)
	}

	var decoded ollamaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != "" {
		return "", errors.New(decoded.Error)
	}
	return decoded.Message.Content, nil
}

// StreamChat streams assistant content fragments. Both channels are
// closed when streaming ends; termination is signaled by the daemon's
// final "done" record, never inferred.
func (p *OllamaProvider) StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		if p.Client == nil {
			errs <- errors.New("ollama: http client is nil")
			return
		}

		req, err := p.newChatRequest(ctx, messages, true)
		if err != nil {
			errs <- err
			return
		}

		// ctx controls the lifetime of a streamed response, not the
		// client timeout.
		client := p.Client
		if client.Timeout > 0 {
			c := *client
			c.Timeout = 0
			client = &c
		}

		resp, err := client.Do(req)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			errs <- fmt.Errorf("ollama: status %d", resp.StatusCode)
			return
		}

		sc := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		sc.Buffer(buf, 2*1024*1024)

		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}

			var decoded ollamaChatResp
			if err := json.Unmarshal(line, &decoded); err != nil {
				errs <- err
				return
			}
			if decoded.Error != "" {
				errs <- errors.New(decoded.Error)
				return
			}

			if decoded.Message.Content != "" {
				select {
				case chunks <- decoded.Message.Content:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}

			if decoded.Done {
				return
			}
		}

		if err := sc.Err(); err != nil {
			errs <- err
		}
	}()

	return chunks, errs
}

// ListModels returns the daemon's installed model names, sorted.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]string, error) {
	if p.Client == nil {
		return nil, errors.New("ollama: http client is nil")
	}

	url := fmt.Sprintf("%s/api/tags", p.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("ollama: status %d", resp.StatusCode)
	}

	var decoded ollamaTagsResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}

	models := make([]string, 0, len(decoded.Models))
	for _, m := range decoded.Models {
		models = append(models, m.Model)
	}
	sort.Strings(models)
	return models, nil
}
