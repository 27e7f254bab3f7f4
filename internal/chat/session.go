package chat

import (
	"github.com/outubeused26-commits/FloraVeda/internal/botanist"
	"github.com/outubeused26-commits/FloraVeda/internal/domain"
	"github.com/outubeused26-commits/FloraVeda/internal/prompt"
)

// Session owns the report it was primed with, the user's country, and the
// live conversational handle. The grounding instruction is built once at
// creation and never changes for the session's lifetime.
type Session struct {
	Report      *domain.PlantReport
	Country     string
	Instruction string
	handle      botanist.Session
}

// NewSession opens a context-primed session for follow-up questions about a
// completed analysis.
func NewSession(model botanist.ChatModel, report *domain.PlantReport, country string) *Session {
	instruction := prompt.ChatSystemInstruction(report, country)
	return &Session{
		Report:      report,
		Country:     country,
		Instruction: instruction,
		handle:      model.NewSession(instruction),
	}
}
