package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// OpenRouterProvider speaks the OpenAI-style chat completion API that
// OpenRouter exposes, including SSE streaming.
type OpenRouterProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	SiteURL string
	AppName string
	Client  *http.Client
}

func NewOpenRouterProvider(baseURL, apiKey, model, siteURL, appName string) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &OpenRouterProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		SiteURL: siteURL,
		AppName: appName,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

type openRouterMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterChatReq struct {
	Model    string          `json:"model"`
	Messages []openRouterMsg `json:"messages"`
	Stream   bool            `json:"stream"`
}

type openRouterChatResp struct {
	Choices []struct {
		Message openRouterMsg `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openRouterStreamResp struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type openRouterModelsResp struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (p *OpenRouterProvider) validate() error {
	if p.Client == nil {
		return errors.New("openrouter: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return errors.New("openrouter: api key is required")
	}
	return nil
}

func (p *OpenRouterProvider) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	url := fmt.Sprintf("%s%s", strings.TrimRight(p.BaseURL, "/"), path)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	if p.SiteURL != "" {
		req.Header.Set("HTTP-Referer", p.SiteURL)
	}
	if p.AppName != "" {
		req.Header.Set("X-Title", p.AppName)
	}
	return req, nil
}

func openRouterStatusErr(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return fmt.Errorf("openrouter: %s", msg)
}

func (p *OpenRouterProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if err := p.validate(); err != nil {
		return "", err
	}
	model := strings.TrimSpace(p.Model)
	if model == "" {
		return "", errors.New("openrouter: model is required")
	}

	msgs := make([]openRouterMsg, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openRouterMsg{Role: m.Role, Content: m.Content})
	}
	b, err := json.Marshal(openRouterChatReq{Model: model, Messages: msgs, Stream: false})
	if err != nil {
		return "", err
	}

	req, err := p.newRequest(ctx, http.MethodPost, "/chat/completions", bytes.NewReader(b))
	if err != nil {
		return "", err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", openRouterStatusErr(resp)
	}

	var decoded openRouterChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("openrouter: empty response")
	}
	return decoded.Choices[0].Message.Content, nil
}

// StreamChat streams assistant content fragments via SSE.
func (p *OpenRouterProvider) StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		if err := p.validate(); err != nil {
			errs <- err
			return
		}
		model := strings.TrimSpace(p.Model)
		if model == "" {
			errs <- errors.New("openrouter: model is required")
			return
		}

		msgs := make([]openRouterMsg, 0, len(messages))
		for _, m := range messages {
			msgs = append(msgs, openRouterMsg{Role: m.Role, Content: m.Content})
		}
		b, err := json.Marshal(openRouterChatReq{Model: model, Messages: msgs, Stream: true})
		if err != nil {
			errs <- err
			return
		}

		req, err := p.newRequest(ctx, http.MethodPost, "/chat/completions", bytes.NewReader(b))
		if err != nil {
			errs <- err
			return
		}

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
			errs <- openRouterStatusErr(resp)
			return
		}

		sc := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		sc.Buffer(buf, 2*1024*1024)

		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var decoded openRouterStreamResp
			if err := json.Unmarshal([]byte(data), &decoded); err != nil {
				errs <- err
				return
			}
			if decoded.Error != nil && decoded.Error.Message != "" {
				errs <- errors.New(decoded.Error.Message)
				return
			}
			if len(decoded.Choices) == 0 {
				continue
			}

			if delta := decoded.Choices[0].Delta.Content; delta != "" {
				select {
				case chunks <- delta:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}

		if err := sc.Err(); err != nil {
			errs <- err
		}
	}()

	return chunks, errs
}

// ListModels returns the ids of models routable through OpenRouter.
func (p *OpenRouterProvider) ListModels(ctx context.Context) ([]string, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	req, err := p.newRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, openRouterStatusErr(resp)
	}

	var decoded openRouterModelsResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}

	models := make([]string, 0, len(decoded.Data))
	for _, m := range decoded.Data {
		models = append(models, m.ID)
	}
	sort.Strings(models)
	return models, nil
}
