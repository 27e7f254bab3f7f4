// Package app holds the application state machine that sequences the flow
// Upload -> Analyzing -> Results | Error and wires a successful analysis
// into a chat session.
package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/outubeused26-commits/FloraVeda/internal/botanist"
	"github.com/outubeused26-commits/FloraVeda/internal/chat"
	"github.com/outubeused26-commits/FloraVeda/internal/domain"
	"github.com/outubeused26-commits/FloraVeda/internal/photostore"
)

// User-facing messages surfaced in the ERROR state.
const (
	// MismatchMessage is shown verbatim when the model reports an
	// identification mismatch; the surrounding view prompts the user to retry
	// with a clearer image.
	MismatchMessage = "i am so sorry there are many plants with the image i am updating the image and recheck its"

	// AnalysisErrorMessage covers every analysis failure kind.
	AnalysisErrorMessage = "We encountered an error processing your request. Please try again."
)

// Boundary validation errors. These are rejected before any state change.
var (
	ErrCountryRequired   = errors.New("country is required")
	ErrPlantNameRequired = errors.New("plant name is required when no image is provided")
	ErrAnalysisInFlight  = errors.New("an analysis is already in progress")
)

// recorder is the subset of store.ReportStore the app requires.
type recorder interface {
	Record(ctx context.Context, report *domain.PlantReport, country string) error
}

// App is the single application state machine. Exactly one state is active at
// a time; one analysis and one chat exchange may be in flight at most.
type App struct {
	analyzer  botanist.Analyzer
	chatModel botanist.ChatModel
	reports   recorder
	photos    photostore.PhotoStore
	logger    *slog.Logger

	mu           sync.Mutex
	state        domain.AppState
	country      string
	errorMessage string
	report       *domain.PlantReport
	photoKey     string
	chat         *chat.Controller
}

func New(analyzer botanist.Analyzer, chatModel botanist.ChatModel, reports recorder, photos photostore.PhotoStore, logger *slog.Logger) *App {
	return &App{
		analyzer:  analyzer,
		chatModel: chatModel,
		reports:   reports,
		photos:    photos,
		logger:    logger,
		state:     domain.StateUpload,
	}
}

// Snapshot is the read-only view the presentation layer renders from.
type Snapshot struct {
	State        domain.AppState     `json:"state"`
	Country      string              `json:"country"`
	ErrorMessage string              `json:"errorMessage"`
	ImagePreview string              `json:"imagePreview"`
	Report       *domain.PlantReport `json:"report,omitempty"`
	Transcript   []domain.ChatTurn   `json:"transcript,omitempty"`
	IsTyping     bool                `json:"isTyping"`
}

func (a *App) Snapshot() Snapshot {
	a.mu.Lock()
	snap := Snapshot{
		State:        a.state,
		Country:      a.country,
		ErrorMessage: a.errorMessage,
		ImagePreview: a.photoKey,
		Report:       a.report,
	}
	ctrl := a.chat
	a.mu.Unlock()

	if ctrl != nil {
		snap.Transcript = ctrl.Transcript()
		snap.IsTyping = ctrl.IsTyping()
	}
	return snap
}

// Submit runs one analysis. Validation failures and single-flight rejections
// return an error without leaving UPLOAD; every other outcome lands in
// RESULTS or ERROR. On a successful match the chat session is created before
// RESULTS is entered, so a session is always present in that state.
func (a *App) Submit(ctx context.Context, image []byte, mimeType, country, plantName string) error {
	country = strings.TrimSpace(country)
	plantName = strings.TrimSpace(plantName)
	if country == "" {
		return ErrCountryRequired
	}
	if len(image) == 0 && plantName == "" {
		return ErrPlantNameRequired
	}

	a.mu.Lock()
	if a.state != domain.StateUpload {
		a.mu.Unlock()
		return ErrAnalysisInFlight
	}
	a.state = domain.StateAnalyzing
	a.country = country
	a.errorMessage = ""
	a.mu.Unlock()

	a.logger.Info("analysis started", "country", country, "has_image", len(image) > 0, "claimed_name", plantName)

	report, err := a.analyzer.Analyze(ctx, botanist.AnalysisInput{
		Image:       image,
		MimeType:    mimeType,
		ClaimedName: plantName,
		Country:     country,
	})

	a.mu.Lock()
	defer a.mu.Unlock()

	if err != nil {
		a.logger.Error("analysis failed", "error", err)
		a.state = domain.StateError
		a.errorMessage = AnalysisErrorMessage
		return nil
	}
	if !report.IsMatch {
		a.logger.Info("identification mismatch", "message", report.VerificationMessage)
		a.state = domain.StateError
		a.errorMessage = MismatchMessage
		return nil
	}

	if len(image) > 0 && a.photos != nil {
		key, err := a.photos.Save(ctx, "plant", mimeType, bytes.NewReader(image))
		if err != nil {
			a.logger.Error("failed to save preview photo", "error", err)
		} else {
			a.photoKey = key
		}
	}
	if a.reports != nil {
		if err := a.reports.Record(ctx, report, country); err != nil {
			a.logger.Error("failed to record analysis", "error", err)
		}
	}

	session := chat.NewSession(a.chatModel, report, country)
	a.chat = chat.NewController(session, a.logger)
	a.report = report
	a.state = domain.StateResults
	a.logger.Info("analysis complete", "common_name", report.CommonName, "health_status", report.HealthAssessment.Status)
	return nil
}

// SendChatMessage forwards a user message to the live chat exchange. A nil
// channel with nil error means the message was a no-op (no session, or blank
// text).
func (a *App) SendChatMessage(ctx context.Context, text string) (<-chan chat.Event, error) {
	a.mu.Lock()
	ctrl := a.chat
	a.mu.Unlock()
	if ctrl == nil {
		return nil, nil
	}
	return ctrl.Send(ctx, text)
}

// RetryChatMessage re-runs the exchange that produced turnID.
func (a *App) RetryChatMessage(ctx context.Context, turnID string) (<-chan chat.Event, error) {
	a.mu.Lock()
	ctrl := a.chat
	a.mu.Unlock()
	if ctrl == nil {
		return nil, nil
	}
	return ctrl.Retry(ctx, turnID)
}

// Reset tears down the whole flow back to UPLOAD: preview image, country,
// report, session, and error message are all cleared. There is no partial
// reset path.
func (a *App) Reset(ctx context.Context) {
	a.mu.Lock()
	photoKey := a.photoKey
	a.state = domain.StateUpload
	a.country = ""
	a.errorMessage = ""
	a.report = nil
	a.photoKey = ""
	a.chat = nil
	a.mu.Unlock()

	if photoKey != "" && a.photos != nil {
		if err := a.photos.Delete(ctx, photoKey); err != nil {
			a.logger.Error("failed to delete preview photo", "storage_key", photoKey, "error", err)
		}
	}
	a.logger.Info("flow reset")
}
