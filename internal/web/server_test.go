package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outubeused26-commits/FloraVeda/internal/app"
	"github.com/outubeused26-commits/FloraVeda/internal/botanist"
	"github.com/outubeused26-commits/FloraVeda/internal/db"
	"github.com/outubeused26-commits/FloraVeda/internal/domain"
	"github.com/outubeused26-commits/FloraVeda/internal/photostore"
	"github.com/outubeused26-commits/FloraVeda/internal/store"
)

type stubAnalyzer struct {
	report *domain.PlantReport
	err    error
}

func (s *stubAnalyzer) Analyze(_ context.Context, _ botanist.AnalysisInput) (*domain.PlantReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.report, nil
}

type stubChatModel struct {
	fragments []string
}

func (m *stubChatModel) NewSession(_ string) botanist.Session {
	return &stubStream{fragments: m.fragments}
}

type stubStream struct {
	fragments []string
}

func (s *stubStream) SendStream(_ context.Context, _ string) (<-chan botanist.StreamEvent, error) {
	ch := make(chan botanist.StreamEvent, len(s.fragments))
	for _, f := range s.fragments {
		ch <- botanist.StreamEvent{Text: f}
	}
	close(ch)
	return ch, nil
}

func sampleReport() *domain.PlantReport {
	return &domain.PlantReport{
		IsMatch:        true,
		CommonName:     "Snake Plant",
		ScientificName: "Dracaena trifasciata",
		HealthAssessment: domain.HealthAssessment{
			Status:     domain.StatusHealthy,
			Issues:     []string{},
			Confidence: 90,
		},
	}
}

func newTestServer(t *testing.T, analyzer *stubAnalyzer, model *stubChatModel) *Server {
	t.Helper()
	database, err := db.OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, database.Close())
	})
	photos, err := photostore.NewLocal(t.TempDir())
	require.NoError(t, err)

	reports := store.NewReportStore(database)
	application := app.New(analyzer, model, reports, photos, slog.Default())
	return NewServer(application, reports, photos, slog.Default())
}

// jpegBytes carries the JPEG magic so content sniffing accepts it.
var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 0x4A, 0x46}

func multipartBody(t *testing.T, image []byte, country, plantName string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if image != nil {
		part, err := w.CreateFormFile("image", "plant.jpg")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, w.WriteField("country", country))
	require.NoError(t, w.WriteField("plant_name", plantName))
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func submit(t *testing.T, server *Server, image []byte, country, plantName string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, image, country, plantName)
	req := httptest.NewRequest(http.MethodPost, "/analyses", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestStateEndpoint(t *testing.T) {
	server := newTestServer(t, &stubAnalyzer{report: sampleReport()}, &stubChatModel{})

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var snap app.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, domain.StateUpload, snap.State)
	assert.Nil(t, snap.Report)
}

func TestSubmitValidation(t *testing.T) {
	server := newTestServer(t, &stubAnalyzer{report: sampleReport()}, &stubChatModel{})

	tests := []struct {
		name    string
		image   []byte
		country string
		plant   string
	}{
		{"missing country", jpegBytes, "", ""},
		{"no image and no plant name", nil, "India", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := submit(t, server, tt.image, tt.country, tt.plant)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSubmitRejectsNonImageUpload(t *testing.T) {
	server := newTestServer(t, &stubAnalyzer{report: sampleReport()}, &stubChatModel{})

	rec := submit(t, server, []byte("%PDF-1.4 not a picture"), "India", "Rose")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported image format")
}

func TestSubmitSuccessFlow(t *testing.T) {
	server := newTestServer(t, &stubAnalyzer{report: sampleReport()}, &stubChatModel{})

	rec := submit(t, server, jpegBytes, "India", "Snake Plant")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap app.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, domain.StateResults, snap.State)
	require.NotNil(t, snap.Report)
	assert.Equal(t, "Snake Plant", snap.Report.CommonName)
	assert.NotEmpty(t, snap.ImagePreview)
	require.NotEmpty(t, snap.Transcript)
	assert.Equal(t, domain.RoleModel, snap.Transcript[0].Role)

	// The preview photo is servable.
	req := httptest.NewRequest(http.MethodGet, "/photo", nil)
	photoRec := httptest.NewRecorder()
	server.ServeHTTP(photoRec, req)
	require.Equal(t, http.StatusOK, photoRec.Code)
	assert.Equal(t, "image/jpeg", photoRec.Header().Get("Content-Type"))
	assert.Equal(t, jpegBytes, photoRec.Body.Bytes())

	// The analysis landed in the archive.
	req = httptest.NewRequest(http.MethodGet, "/reports", nil)
	listRec := httptest.NewRecorder()
	server.ServeHTTP(listRec, req)
	require.Equal(t, http.StatusOK, listRec.Code)

	var records []store.ReportRecord
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "Snake Plant", records[0].CommonName)
	assert.Equal(t, "India", records[0].Country)

	req = httptest.NewRequest(http.MethodGet, "/reports/"+records[0].ID, nil)
	getRec := httptest.NewRecorder()
	server.ServeHTTP(getRec, req)
	require.Equal(t, http.StatusOK, getRec.Code)

	var record store.ReportRecord
	require.NoError(t, json.Unmarshal(getRec.Body.Bytes(), &record))
	require.NotNil(t, record.Report)
	assert.Equal(t, "Dracaena trifasciata", record.Report.ScientificName)
}

func TestSubmitConflictWhileNotInUpload(t *testing.T) {
	server := newTestServer(t, &stubAnalyzer{report: sampleReport()}, &stubChatModel{})

	require.Equal(t, http.StatusOK, submit(t, server, jpegBytes, "India", "").Code)

	rec := submit(t, server, jpegBytes, "India", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetReportUnknown(t *testing.T) {
	server := newTestServer(t, &stubAnalyzer{report: sampleReport()}, &stubChatModel{})

	req := httptest.NewRequest(http.MethodGet, "/reports/no-such-id", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPhotoWithoutUpload(t *testing.T) {
	server := newTestServer(t, &stubAnalyzer{report: sampleReport()}, &stubChatModel{})

	req := httptest.NewRequest(http.MethodGet, "/photo", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResetReturnsToUpload(t *testing.T) {
	server := newTestServer(t, &stubAnalyzer{report: sampleReport()}, &stubChatModel{})

	require.Equal(t, http.StatusOK, submit(t, server, jpegBytes, "India", "").Code)

	req := httptest.NewRequest(http.MethodPost, "/reset", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap app.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, domain.StateUpload, snap.State)
	assert.Empty(t, snap.ImagePreview)
	assert.Nil(t, snap.Report)

	// The archive survives the reset.
	req = httptest.NewRequest(http.MethodGet, "/reports", nil)
	listRec := httptest.NewRecorder()
	server.ServeHTTP(listRec, req)
	var records []store.ReportRecord
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &records))
	assert.Len(t, records, 1)
}

func TestChatMessageWithoutSessionIsNoContent(t *testing.T) {
	server := newTestServer(t, &stubAnalyzer{report: sampleReport()}, &stubChatModel{})

	req := httptest.NewRequest(http.MethodPost, "/chat/messages", strings.NewReader(`{"text":"hello"}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestChatMessageInvalidBody(t *testing.T) {
	server := newTestServer(t, &stubAnalyzer{report: sampleReport()}, &stubChatModel{})

	req := httptest.NewRequest(http.MethodPost, "/chat/messages", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatMessageStreamsEvents(t *testing.T) {
	model := &stubChatModel{fragments: []string{"The ", "leaves ", "look fine."}}
	server := newTestServer(t, &stubAnalyzer{report: sampleReport()}, model)

	require.Equal(t, http.StatusOK, submit(t, server, jpegBytes, "India", "").Code)

	req := httptest.NewRequest(http.MethodPost, "/chat/messages", strings.NewReader(`{"text":"How often should I water it?"}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `"fragment":"The "`)
	assert.Contains(t, body, `"fragment":"look fine."`)
	assert.Contains(t, body, "event: done")

	// The settled exchange is visible in the next snapshot.
	stateReq := httptest.NewRequest(http.MethodGet, "/state", nil)
	stateRec := httptest.NewRecorder()
	server.ServeHTTP(stateRec, stateReq)

	var snap app.Snapshot
	require.NoError(t, json.Unmarshal(stateRec.Body.Bytes(), &snap))
	require.Len(t, snap.Transcript, 3)
	assert.Equal(t, "The leaves look fine.", snap.Transcript[2].Text)
}

// brokenPipeWriter fails every body write, as a disconnected client does.
type brokenPipeWriter struct {
	header http.Header
}

func (w *brokenPipeWriter) Header() http.Header {
	if w.header == nil {
		w.header = http.Header{}
	}
	return w.header
}

func (w *brokenPipeWriter) WriteHeader(int) {}

func (w *brokenPipeWriter) Write([]byte) (int, error) {
	return 0, errors.New("write: broken pipe")
}

func TestChatStreamClientDisconnectStillSettles(t *testing.T) {
	// More fragments than the controller's event buffer, so the exchange can
	// only settle if the handler keeps draining after the write failure.
	fragments := make([]string, 40)
	for i := range fragments {
		fragments[i] = "chunk "
	}
	model := &stubChatModel{fragments: fragments}
	server := newTestServer(t, &stubAnalyzer{report: sampleReport()}, model)

	require.Equal(t, http.StatusOK, submit(t, server, jpegBytes, "India", "").Code)

	req := httptest.NewRequest(http.MethodPost, "/chat/messages", strings.NewReader(`{"text":"Tell me everything."}`))
	server.ServeHTTP(&brokenPipeWriter{}, req)

	// The exchange settled: the full reply is in the transcript and the
	// controller is no longer busy.
	stateReq := httptest.NewRequest(http.MethodGet, "/state", nil)
	stateRec := httptest.NewRecorder()
	server.ServeHTTP(stateRec, stateReq)

	var snap app.Snapshot
	require.NoError(t, json.Unmarshal(stateRec.Body.Bytes(), &snap))
	assert.False(t, snap.IsTyping)
	require.Len(t, snap.Transcript, 3)
	assert.Equal(t, strings.Repeat("chunk ", 40), snap.Transcript[2].Text)
	assert.False(t, snap.Transcript[2].IsLoading)

	// A follow-up message is accepted, not rejected as busy.
	req = httptest.NewRequest(http.MethodPost, "/chat/messages", strings.NewReader(`{"text":"And again?"}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatRetryUnknownTurnIsNoContent(t *testing.T) {
	server := newTestServer(t, &stubAnalyzer{report: sampleReport()}, &stubChatModel{})

	require.Equal(t, http.StatusOK, submit(t, server, jpegBytes, "India", "").Code)

	req := httptest.NewRequest(http.MethodPost, "/chat/messages/no-such-turn/retry", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
