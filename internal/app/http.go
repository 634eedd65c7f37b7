package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/line/line-bot-sdk-go/v7/linebot"

	"ledgerbot/internal/line"
)

// LineWebhook is the signature-checked entry point for LINE events.
type LineWebhook interface {
	ParseWebhook(r *http.Request) ([]*linebot.Event, error)
	HandleEvents(ctx context.Context, events []*linebot.Event)
}

type HTTPServer struct {
	service *Service
	line    LineWebhook
}

func NewHTTPServer(service *Service, lineWebhook LineWebhook) *HTTPServer {
	return &HTTPServer{service: service, line: lineWebhook}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/webhook/ocrResult" {
		s.handleOCRResult(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/webhook/notifySavedResult" {
		s.handleSavedResult(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/webhook" {
		s.handleLineWebhook(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/receiveOcrData" {
		s.handleLineOCRData(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleOCRResult(w http.ResponseWriter, r *http.Request) {
	var payload OCRResultPayload
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.HandleOCRResult(r.Context(), payload); err != nil {
		domain := asDomainError(err)
		writeError(w, domain.Status, domain.Code, domain.Message, domain.Details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleSavedResult(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "could not read body", nil)
		return
	}
	if err := s.service.HandleSavedResult(r.Context(), raw); err != nil {
		domain := asDomainError(err)
		writeError(w, domain.Status, domain.Code, domain.Message, domain.Details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleLineWebhook(w http.ResponseWriter, r *http.Request) {
	if s.line == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "LINE is not configured", nil)
		return
	}
	events, err := s.line.ParseWebhook(r)
	if err != nil {
		if errors.Is(err, linebot.ErrInvalidSignature) {
			writeError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "Signature validation failed", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Could not parse webhook", nil)
		return
	}

	// Acknowledge before handling: the platform retries slow webhooks and a
	// retry would replay every event in the batch.
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	go s.line.HandleEvents(context.Background(), events)
}

func (s *HTTPServer) handleLineOCRData(w http.ResponseWriter, r *http.Request) {
	if s.service.lineOCR == nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_CONFIGURED", "LINE is not configured", nil)
		return
	}
	var payload line.OCRResult
	if err := decodeBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if payload.UserID == "" && payload.ReplyToken == "" {
		writeError(w, http.StatusBadRequest, "MISSING_TARGET", "user_id or reply_token is required", nil)
		return
	}
	if err := s.service.lineOCR.DeliverOCRResult(r.Context(), payload); err != nil {
		log.Printf("app: LINE recognition delivery failed: %v", err)
		writeError(w, http.StatusBadGateway, "DELIVERY_FAILED", "Could not deliver recognition result", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("Content-Type", "application/json")
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}
