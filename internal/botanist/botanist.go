// Package botanist defines the provider-agnostic surface of the AI model:
// a one-shot structured analysis call and a stateful chat session that
// streams text fragments. Adapters live in the gemini and claude subpackages.
package botanist

import (
	"context"
	"errors"
	"fmt"

	"github.com/outubeused26-commits/FloraVeda/internal/domain"
)

// AnalysisInput is the transient input to one analysis call. Country is
// required; when Image is empty, ClaimedName must be set (text-only mode
// needs a name to search).
type AnalysisInput struct {
	Image       []byte
	MimeType    string
	ClaimedName string
	Country     string
}

// HasImage reports whether an image part should be attached to the request.
func (in AnalysisInput) HasImage() bool { return len(in.Image) > 0 }

// ErrEmptyResponse is returned when the model replies with no text payload.
var ErrEmptyResponse = errors.New("model returned an empty response")

// MalformedResponseError is returned when the model's text payload cannot be
// parsed into the report contract.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return "malformed model response: " + e.Reason
}

// Analyzer issues one structured analysis call. Transport failures are
// propagated, not retried.
type Analyzer interface {
	Analyze(ctx context.Context, input AnalysisInput) (*domain.PlantReport, error)
}

// StreamEvent is either a text fragment or an error emitted during a chat
// stream. After an event with a non-nil Err the channel is closed.
type StreamEvent struct {
	Text string
	Err  error
}

// Session is a live conversational handle primed with a system instruction.
// SendStream delivers the model's reply incrementally on the returned channel,
// which is closed when the stream ends or fails.
type Session interface {
	SendStream(ctx context.Context, text string) (<-chan StreamEvent, error)
}

// ChatModel opens context-primed chat sessions.
type ChatModel interface {
	NewSession(systemInstruction string) Session
}

// StreamErrorKind classifies a chat stream failure.
type StreamErrorKind int

const (
	KindConnection StreamErrorKind = iota
	KindRateLimited
	KindUnavailable
	KindSafetyBlocked
)

// StreamError is a typed chat failure produced by adapters so callers do not
// have to interpret provider-specific error shapes.
type StreamError struct {
	Kind    StreamErrorKind
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("chat stream failed: %s", e.Message)
}
