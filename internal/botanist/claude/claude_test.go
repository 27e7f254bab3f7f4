package claude

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/outubeused26-commits/FloraVeda/internal/botanist"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"raw json", `{"isMatch": true}`, `{"isMatch": true}`},
		{"json fence", "```json\n{\"isMatch\": true}\n```", `{"isMatch": true}`},
		{"bare fence", "```\n{\"isMatch\": true}\n```", `{"isMatch": true}`},
		{"surrounding whitespace", "  {\"isMatch\": true}\n", `{"isMatch": true}`},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripFences(tt.in))
		})
	}
}

func TestMapStreamErrFallsBackToConnection(t *testing.T) {
	err := mapStreamErr(errors.New("dial tcp: i/o timeout"))
	assert.Equal(t, botanist.KindConnection, err.Kind)
	assert.Contains(t, err.Message, "i/o timeout")
}

func TestAnalysisSystemEmbedsContract(t *testing.T) {
	system, err := analysisSystem()
	assert.NoError(t, err)
	assert.Contains(t, system, "botanist")
	assert.Contains(t, system, "raw JSON only")
	assert.Contains(t, system, "healthAssessment")
}
