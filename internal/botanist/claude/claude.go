// Package claude adapts the Anthropic Messages API to the botanist
// interfaces via the go-anthropic SDK. Claude has no server-side response
// schema, so the contract is embedded in the system prompt and the reply is
// validated locally with the same schema used by the Gemini adapter.
package claude

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	anthropic "github.com/liushuangls/go-anthropic/v2"

	"github.com/outubeused26-commits/FloraVeda/internal/botanist"
	"github.com/outubeused26-commits/FloraVeda/internal/domain"
	"github.com/outubeused26-commits/FloraVeda/internal/prompt"
	"github.com/outubeused26-commits/FloraVeda/internal/schema"
)

// maxTokens covers a fully populated report with headroom for verbose models.
const maxTokens = 4096

type Client struct {
	client *anthropic.Client
	model  string
}

func New(apiKey, model string, opts ...anthropic.ClientOption) *Client {
	return &Client{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}
}

// analysisSystem embeds the persona and the JSON contract into the system
// prompt so the reply can be parsed with the shared schema validator.
func analysisSystem() (string, error) {
	contract, err := json.Marshal(schema.PlantReport())
	if err != nil {
		return "", fmt.Errorf("failed to marshal response schema: %w", err)
	}
	return prompt.Persona + "\n\nRespond with a single JSON object that conforms " +
		"exactly to this schema. Output raw JSON only, with no markdown fences " +
		"and no commentary:\n" + string(contract), nil
}

// Analyze issues one analysis call and parses the reply against the contract.
func (c *Client) Analyze(ctx context.Context, input botanist.AnalysisInput) (*domain.PlantReport, error) {
	system, err := analysisSystem()
	if err != nil {
		return nil, err
	}

	directive := prompt.Analysis(input.Country, input.ClaimedName, input.HasImage())
	blocks := make([]anthropic.MessageContent, 0, 2)
	if input.HasImage() {
		blocks = append(blocks, anthropic.NewImageMessageContent(
			anthropic.NewMessageContentSource(
				anthropic.MessagesContentSourceTypeBase64, input.MimeType, input.Image)))
	}
	blocks = append(blocks, anthropic.NewTextMessageContent(directive))

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		System:    system,
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{{
			Role:    anthropic.RoleUser,
			Content: blocks,
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to call claude: %w", err)
	}

	text := stripFences(resp.GetFirstContentText())
	if text == "" {
		return nil, botanist.ErrEmptyResponse
	}
	if err := schema.Validate(schema.PlantReport(), []byte(text)); err != nil {
		return nil, &botanist.MalformedResponseError{Reason: err.Error()}
	}
	var report domain.PlantReport
	if err := json.Unmarshal([]byte(text), &report); err != nil {
		return nil, &botanist.MalformedResponseError{Reason: err.Error()}
	}
	return &report, nil
}

// stripFences removes a surrounding markdown code fence if the model added
// one despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ChatSession replays its history on every exchange. History is committed
// only after a successful exchange so a retried turn is not double-counted.
type ChatSession struct {
	client  *Client
	system  string
	mu      sync.Mutex
	history []anthropic.Message
}

// NewSession implements botanist.ChatModel.
func (c *Client) NewSession(systemInstruction string) botanist.Session {
	return &ChatSession{client: c, system: systemInstruction}
}

// SendStream sends one user message and forwards text deltas as fragments.
func (s *ChatSession) SendStream(ctx context.Context, text string) (<-chan botanist.StreamEvent, error) {
	s.mu.Lock()
	userTurn := anthropic.NewUserTextMessage(text)
	messages := make([]anthropic.Message, 0, len(s.history)+1)
	messages = append(messages, s.history...)
	messages = append(messages, userTurn)
	s.mu.Unlock()

	ch := make(chan botanist.StreamEvent, 16)
	go func() {
		defer close(ch)

		var full strings.Builder
		_, err := s.client.client.CreateMessagesStream(ctx, anthropic.MessagesStreamRequest{
			MessagesRequest: anthropic.MessagesRequest{
				Model:     anthropic.Model(s.client.model),
				System:    s.system,
				MaxTokens: maxTokens,
				Messages:  messages,
			},
			OnContentBlockDelta: func(data anthropic.MessagesEventContentBlockDeltaData) {
				fragment := data.Delta.GetText()
				if fragment == "" {
					return
				}
				full.WriteString(fragment)
				ch <- botanist.StreamEvent{Text: fragment}
			},
		})
		if err != nil {
			if ctx.Err() == nil {
				ch <- botanist.StreamEvent{Err: mapStreamErr(err)}
			}
			return
		}

		s.mu.Lock()
		s.history = append(s.history, userTurn, anthropic.NewAssistantTextMessage(full.String()))
		s.mu.Unlock()
	}()

	return ch, nil
}

// mapStreamErr translates SDK errors into typed stream errors.
func mapStreamErr(err error) *botanist.StreamError {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsRateLimitErr():
			return &botanist.StreamError{Kind: botanist.KindRateLimited, Message: apiErr.Message}
		case apiErr.IsOverloadedErr():
			return &botanist.StreamError{Kind: botanist.KindUnavailable, Message: apiErr.Message}
		}
	}
	return &botanist.StreamError{Kind: botanist.KindConnection, Message: err.Error()}
}
