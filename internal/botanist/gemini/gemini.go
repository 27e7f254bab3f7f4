// Package gemini adapts the Google Gemini REST API to the botanist
// interfaces: schema-constrained generateContent for analysis and
// SSE streamGenerateContent for chat.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/outubeused26-commits/FloraVeda/internal/botanist"
	"github.com/outubeused26-commits/FloraVeda/internal/domain"
	"github.com/outubeused26-commits/FloraVeda/internal/prompt"
	"github.com/outubeused26-commits/FloraVeda/internal/schema"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// request/response types mirror the Gemini generateContent API structure.
type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMIMEType string          `json:"responseMimeType,omitempty"`
	ResponseSchema   json.RawMessage `json:"responseSchema,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason"`
}

type generateResponse struct {
	Candidates     []candidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type Client struct {
	apiKey  string
	model   string
	client  *http.Client
	baseURL string
}

func New(apiKey, model string) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{},
		baseURL: defaultBaseURL,
	}
}

// WithBaseURL overrides the API endpoint; used by tests.
func (c *Client) WithBaseURL(u string) *Client {
	c.baseURL = u
	return c
}

// buildParts constructs the multimodal payload: zero or one image part
// followed by the text directive.
func buildParts(input botanist.AnalysisInput) []part {
	parts := make([]part, 0, 2)
	if input.HasImage() {
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: input.MimeType,
			Data:     base64.StdEncoding.EncodeToString(input.Image),
		}})
	}
	parts = append(parts, part{Text: prompt.Analysis(input.Country, input.ClaimedName, input.HasImage())})
	return parts
}

// Analyze issues one structured-generation call with the report contract
// attached as a response-schema constraint.
func (c *Client) Analyze(ctx context.Context, input botanist.AnalysisInput) (*domain.PlantReport, error) {
	contract, err := json.Marshal(schema.PlantReport())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response schema: %w", err)
	}

	body := generateRequest{
		Contents:          []content{{Role: "user", Parts: buildParts(input)}},
		SystemInstruction: &content{Parts: []part{{Text: prompt.Persona}}},
		GenerationConfig: &generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   contract,
		},
	}

	var resp generateResponse
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	if err := c.doJSON(ctx, url, body, &resp); err != nil {
		return nil, err
	}

	text := firstText(resp.Candidates)
	if strings.TrimSpace(text) == "" {
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

func firstText(cands []candidate) string {
	var b strings.Builder
	if len(cands) == 0 {
		return ""
	}
	for _, p := range cands[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func (c *Client) doJSON(ctx context.Context, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call gemini: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Error("failed to close gemini response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// apiError drains an error response into a descriptive error carrying the
// HTTP status code.
func apiError(resp *http.Response) error {
	var envelope errorResponse
	_ = json.NewDecoder(resp.Body).Decode(&envelope)
	if envelope.Error.Message != "" {
		return fmt.Errorf("gemini returned status %d: %s", resp.StatusCode, envelope.Error.Message)
	}
	return fmt.Errorf("gemini returned status %d", resp.StatusCode)
}

// ChatSession keeps the conversation history client-side and replays it on
// every exchange, as the Gemini REST API is stateless. History is committed
// only after a successful exchange so a retried turn is not double-counted.
type ChatSession struct {
	client  *Client
	system  content
	mu      sync.Mutex
	history []content
}

// NewSession implements botanist.ChatModel.
func (c *Client) NewSession(systemInstruction string) botanist.Session {
	return &ChatSession{
		client: c,
		system: content{Parts: []part{{Text: systemInstruction}}},
	}
}

// SendStream sends one user message and streams the reply via SSE.
func (s *ChatSession) SendStream(ctx context.Context, text string) (<-chan botanist.StreamEvent, error) {
	s.mu.Lock()
	userTurn := content{Role: "user", Parts: []part{{Text: text}}}
	contents := make([]content, 0, len(s.history)+1)
	contents = append(contents, s.history...)
	contents = append(contents, userTurn)
	s.mu.Unlock()

	body := generateRequest{
		Contents:          contents,
		SystemInstruction: &s.system,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s",
		s.client.baseURL, s.client.model, s.client.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.client.Do(req)
	if err != nil {
		return nil, &botanist.StreamError{Kind: botanist.KindConnection, Message: err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		err := apiError(resp)
		_ = resp.Body.Close()
		return nil, &botanist.StreamError{Kind: kindForStatus(resp.StatusCode), Message: err.Error()}
	}

	ch := make(chan botanist.StreamEvent, 16)
	go func() {
		defer close(ch)
		defer func() {
			if err := resp.Body.Close(); err != nil {
				slog.Error("failed to close gemini stream body", "error", err)
			}
		}()

		var full strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := line[6:]
			if data == "[DONE]" {
				break
			}

			var chunk generateResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if chunk.PromptFeedback != nil && chunk.PromptFeedback.BlockReason != "" {
				ch <- botanist.StreamEvent{Err: &botanist.StreamError{
					Kind:    botanist.KindSafetyBlocked,
					Message: "response blocked: " + chunk.PromptFeedback.BlockReason,
				}}
				return
			}
			if len(chunk.Candidates) == 0 {
				continue
			}
			cand := chunk.Candidates[0]
			if cand.FinishReason == "SAFETY" {
				ch <- botanist.StreamEvent{Err: &botanist.StreamError{
					Kind:    botanist.KindSafetyBlocked,
					Message: "response stopped for safety reasons",
				}}
				return
			}
			for _, p := range cand.Content.Parts {
				if p.Text == "" {
					continue
				}
				full.WriteString(p.Text)
				ch <- botanist.StreamEvent{Text: p.Text}
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			ch <- botanist.StreamEvent{Err: &botanist.StreamError{
				Kind:    botanist.KindConnection,
				Message: "read gemini stream: " + err.Error(),
			}}
			return
		}

		s.mu.Lock()
		s.history = append(s.history, userTurn, content{
			Role:  "model",
			Parts: []part{{Text: full.String()}},
		})
		s.mu.Unlock()
	}()

	return ch, nil
}

func kindForStatus(status int) botanist.StreamErrorKind {
	switch status {
	case http.StatusTooManyRequests:
		return botanist.KindRateLimited
	case http.StatusServiceUnavailable:
		return botanist.KindUnavailable
	default:
		return botanist.KindConnection
	}
}
