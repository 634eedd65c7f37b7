package app

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"ledgerbot/internal/discord"
	"ledgerbot/internal/draft"
	"ledgerbot/internal/line"
	"ledgerbot/internal/resolve"
)

// PromptRenderer posts the recognition card that opens a correction flow.
type PromptRenderer interface {
	RenderOCRPrompt(ctx context.Context, p discord.OCRPrompt) error
}

// VerdictResolver routes a pipeline verdict back to its conversation.
type VerdictResolver interface {
	Deliver(ctx context.Context, token, channelID string, v resolve.Verdict)
}

// LineDeliverer pushes recognition results to a LINE user.
type LineDeliverer interface {
	DeliverOCRResult(ctx context.Context, res line.OCRResult) error
}

// Service is the webhook-facing half of the bot: it receives what the
// pipeline pushes back and hands it to the platform adapters.
type Service struct {
	store            *draft.Store
	prompts          PromptRenderer
	resolver         VerdictResolver
	lineOCR          LineDeliverer
	defaultChannelID string
}

func NewService(store *draft.Store, prompts PromptRenderer, resolver VerdictResolver, lineOCR LineDeliverer, defaultChannelID string) *Service {
	return &Service{
		store:            store,
		prompts:          prompts,
		resolver:         resolver,
		lineOCR:          lineOCR,
		defaultChannelID: defaultChannelID,
	}
}

// OCRResultPayload is what the pipeline posts once a Discord-submitted
// receipt image has been read.
type OCRResultPayload struct {
	InvoiceNumber string `json:"invoiceNumber"`
	Date          string `json:"date"`
	Amount        string `json:"amount"`
	ImageURL      string `json:"imageUrl"`
	UserID        string `json:"user_id"`
	ChannelID     string `json:"channel_id"`
}

// HandleOCRResult renders the recognition card for a receipt the pipeline
// finished reading.
func (s *Service) HandleOCRResult(ctx context.Context, payload OCRResultPayload) error {
	if s.prompts == nil {
		return domainError(http.StatusServiceUnavailable, "NOT_CONFIGURED", "Discord is not configured", nil)
	}

	channelID := payload.ChannelID
	if channelID == "" {
		channelID = s.defaultChannelID
	}
	if channelID == "" {
		return badRequest("MISSING_CHANNEL", "channel_id is required")
	}
	if payload.ImageURL == "" {
		return badRequest("MISSING_IMAGE", "imageUrl is required")
	}

	err := s.prompts.RenderOCRPrompt(ctx, discord.OCRPrompt{
		InvoiceNumber: payload.InvoiceNumber,
		Date:          payload.Date,
		Amount:        payload.Amount,
		ImageURL:      payload.ImageURL,
		UserID:        payload.UserID,
		ChannelID:     channelID,
	})
	if err != nil {
		log.Printf("app: recognition card failed: %v", err)
		return domainError(http.StatusBadGateway, "RENDER_FAILED", "Could not post recognition result", nil)
	}
	return nil
}

// SavedResultPayload is the asynchronous persistence verdict. The pipeline
// echoes the submitted fields back, so the payload alone can reconstruct
// the confirmation-time snapshot even when the draft is already gone.
type SavedResultPayload struct {
	Repeat        bool   `json:"repeat"`
	InteractionID string `json:"interactionId"`
	UserID        string `json:"user_id"`
	ChannelID     string `json:"channel_id"`
	InvoiceNumber string `json:"invoiceNumber"`
	Date          string `json:"date"`
	Amount        string `json:"amount"`
	Category      string `json:"category"`
	Detail        string `json:"detail"`
	ImageURL      string `json:"imageUrl"`
	DisplayName   string `json:"displayName"`
}

// HandleSavedResult finalizes the draft named by the verdict and delivers
// the outcome to the originating conversation. Raw is kept around verbatim:
// a malformed verdict still produces a failed delivery carrying the payload
// for the admins.
func (s *Service) HandleSavedResult(ctx context.Context, raw []byte) error {
	var payload SavedResultPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return badRequest("INVALID_BODY", "invalid JSON body")
	}
	if payload.ChannelID == "" {
		payload.ChannelID = s.defaultChannelID
	}
	if payload.ChannelID == "" {
		return badRequest("MISSING_CHANNEL", "channel_id is required")
	}

	outcome := resolve.OutcomeFailed
	switch {
	case payload.Repeat:
		outcome = resolve.OutcomeDuplicate
	case payload.Amount != "":
		outcome = resolve.OutcomeSaved
	}

	verdict := resolve.Verdict{
		Outcome:  outcome,
		Snapshot: s.snapshotFor(payload),
	}
	if outcome == resolve.OutcomeFailed {
		verdict.RawPayload = raw
	}

	if s.resolver != nil {
		s.resolver.Deliver(ctx, payload.InteractionID, payload.ChannelID, verdict)
	}

	if payload.InvoiceNumber != "" {
		s.finalize(payload.InvoiceNumber, outcome)
	}
	return nil
}

// snapshotFor prefers the stored draft over the echoed payload: the draft
// froze when the user confirmed, and nothing can have edited it since.
func (s *Service) snapshotFor(payload SavedResultPayload) draft.Draft {
	if d, ok := s.store.Get(payload.InvoiceNumber); ok && d.Status == draft.StatusSubmitting {
		return d
	}
	return draft.Draft{
		InvoiceNumber:    payload.InvoiceNumber,
		Date:             payload.Date,
		Amount:           payload.Amount,
		Category:         payload.Category,
		Detail:           payload.Detail,
		ImageURL:         payload.ImageURL,
		UserID:           payload.UserID,
		Username:         payload.DisplayName,
		ChannelID:        payload.ChannelID,
		CorrelationToken: payload.InteractionID,
	}
}

func (s *Service) finalize(key string, outcome resolve.Outcome) {
	status := draft.StatusFailed
	switch outcome {
	case resolve.OutcomeSaved:
		status = draft.StatusSaved
	case resolve.OutcomeDuplicate:
		status = draft.StatusDuplicate
	}
	if _, err := s.store.Finish(key, status); err != nil {
		// Already settled synchronously or swept. The key may since have
		// been reused for a fresh draft, so a replayed callback must not
		// delete anything.
		log.Printf("app: verdict for %s arrived after settlement: %v", key, err)
		return
	}
	s.store.Delete(key)
}
