package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/outubeused26-commits/FloraVeda/internal/app"
	"github.com/outubeused26-commits/FloraVeda/internal/chat"
)

const maxPhotoSize = 50 * 1024 * 1024 // 50 MB

// allowedImageTypes is the set of MIME types accepted for uploaded photos.
// net/http.DetectContentType handles JPEG, PNG, and GIF via magic-byte
// sniffing. WebP is detected separately because the WHATWG sniff spec (and
// therefore the stdlib) does not include a WebP signature.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// allowedImageMIME returns the detected MIME type and true if the data is an
// accepted image format, or ("", false) otherwise.
func allowedImageMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.app.Snapshot())
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxPhotoSize); err != nil {
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	var imageData []byte
	var mimeType string
	file, _, err := r.FormFile("image")
	switch {
	case err == nil:
		defer closeWithLog(file, "upload file", s.logger)
		imageData, err = io.ReadAll(file)
		if err != nil {
			http.Error(w, "failed to read file", http.StatusInternalServerError)
			s.logger.Error("read upload failed", "error", err)
			return
		}
		var ok bool
		mimeType, ok = allowedImageMIME(imageData)
		if !ok {
			http.Error(w, "unsupported image format", http.StatusBadRequest)
			return
		}
	case errors.Is(err, http.ErrMissingFile):
		// Text-only mode: the plant name carries the request.
	default:
		http.Error(w, "invalid image upload", http.StatusBadRequest)
		return
	}

	country := r.FormValue("country")
	plantName := r.FormValue("plant_name")

	// Use a detached context so the analysis runs to completion even if the
	// client navigates away and the request context is cancelled.
	err = s.app.Submit(context.WithoutCancel(r.Context()), imageData, mimeType, country, plantName)
	switch {
	case errors.Is(err, app.ErrCountryRequired), errors.Is(err, app.ErrPlantNameRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, app.ErrAnalysisInFlight):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, "failed to process request", http.StatusInternalServerError)
		s.logger.Error("submit failed", "error", err)
		return
	}

	s.writeJSON(w, http.StatusOK, s.app.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.app.Reset(r.Context())
	s.writeJSON(w, http.StatusOK, s.app.Snapshot())
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	key := s.app.Snapshot().ImagePreview
	if key == "" {
		http.Error(w, "no photo", http.StatusNotFound)
		return
	}
	rc, mimeType, err := s.photos.Get(r.Context(), key)
	if err != nil {
		http.Error(w, "photo not found", http.StatusNotFound)
		return
	}
	defer closeWithLog(rc, "photo reader", s.logger)

	w.Header().Set("Content-Type", mimeType)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Error("failed to write photo", "storage_key", key, "error", err)
	}
}

type chatMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	events, err := s.app.SendChatMessage(context.WithoutCancel(r.Context()), req.Text)
	s.streamChat(w, r, events, err)
}

func (s *Server) handleChatRetry(w http.ResponseWriter, r *http.Request) {
	turnID := r.PathValue("id")
	events, err := s.app.RetryChatMessage(context.WithoutCancel(r.Context()), turnID)
	s.streamChat(w, r, events, err)
}

// streamChat renders one exchange as an SSE stream: a "data:" event per
// fragment and a final "done" event carrying the settled turn. A nil channel
// means the request was a no-op.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, events <-chan chat.Event, err error) {
	if errors.Is(err, chat.ErrBusy) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, "failed to send message", http.StatusInternalServerError)
		s.logger.Error("chat send failed", "error", err)
		return
	}
	if events == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, canFlush := w.(http.Flusher)
	enc := json.NewEncoder(w)

	// The exchange settles only once every event is consumed, so the loop
	// always drains the channel. A dead client (cancelled context or failed
	// write) just stops the writing, never the draining.
	broken := false
	for ev := range events {
		if broken || r.Context().Err() != nil {
			continue
		}
		if err := writeEvent(w, enc, ev); err != nil {
			broken = true
			continue
		}
		if canFlush {
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, enc *json.Encoder, ev chat.Event) error {
	prefix := "data: "
	if ev.Done {
		prefix = "event: done\ndata: "
	}
	if _, err := io.WriteString(w, prefix); err != nil {
		return err
	}
	if err := enc.Encode(ev); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	records, err := s.reports.List(r.Context())
	if err != nil {
		http.Error(w, "failed to list reports", http.StatusInternalServerError)
		s.logger.Error("list reports failed", "error", err)
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	record, err := s.reports.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		http.Error(w, "failed to get report", http.StatusInternalServerError)
		s.logger.Error("get report failed", "error", err)
		return
	}
	if record == nil {
		http.Error(w, "report not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}
