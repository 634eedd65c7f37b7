// Package pipeline is the client for the external processing pipeline that
// owns OCR, categorization and the spreadsheet ledger. The bot only ever
// POSTs to it and interprets the reply; everything durable lives on the
// other side.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"ledgerbot/internal/category"
	"ledgerbot/internal/draft"
)

// DuplicateMarker is the exact message the pipeline returns when the
// invoice number already exists in the ledger. The HTTP call itself
// succeeds; duplicate is a business outcome, not a transport one.
const DuplicateMarker = "Invoice Number Repeat"

// ReasonTimeout flags a bounded-wait expiry. It is kept distinct from other
// transport failures because the caller must not assume the record was NOT
// saved when the pipeline merely ran long.
const ReasonTimeout = "pipeline did not respond in time"

// Kind classifies the outcome of a submission.
type Kind string

const (
	Accepted       Kind = "accepted"
	Duplicate      Kind = "duplicate"
	Rejected       Kind = "rejected"
	TransportError Kind = "transportError"
)

// Result is the interpreted pipeline response for one submission.
type Result struct {
	Kind   Kind
	Reason string
	Raw    json.RawMessage
}

// Gateway submits confirmed drafts and initial OCR seeds to the pipeline.
// Exactly-once per confirm is enforced upstream by the draft state machine;
// the gateway only bounds the wait and classifies the reply.
type Gateway struct {
	client      *http.Client
	baseURL     string
	callbackURL string
	timeout     time.Duration
}

func New(baseURL, callbackURL string, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Gateway{
		client:      &http.Client{},
		baseURL:     baseURL,
		callbackURL: callbackURL,
		timeout:     timeout,
	}
}

type saveResponse struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Submit sends a flattened draft to the pipeline's save webhook and
// interprets the synchronous reply.
func (g *Gateway) Submit(ctx context.Context, d draft.Draft) Result {
	payload := map[string]any{
		"invoiceNumber": d.InvoiceNumber,
		"date":          d.Date,
		"amount":        d.Amount,
		"imageUrl":      d.ImageURL,
		"category":      d.Category,
		"categoryLabel": category.Label(d.Category),
		"detail":        d.Detail,
		"userId":        d.UserID,
		"username":      d.Username,
		"interactionId": d.CorrelationToken,
		"channelId":     d.ChannelID,
		"timestamp":     time.Now().UnixMilli(),
		"webhook_url":   g.callbackURL + "/webhook/notifySavedResult",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Kind: TransportError, Reason: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/saveWebhook", bytes.NewReader(body))
	if err != nil {
		return Result{Kind: TransportError, Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Result{Kind: TransportError, Reason: ReasonTimeout}
		}
		return Result{Kind: TransportError, Reason: err.Error()}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var parsed saveResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		log.Printf("pipeline: unparsable save response (%d bytes): %v", len(raw), err)
	}

	// Duplicate is signaled through the message string regardless of the
	// HTTP status the pipeline happened to use.
	if parsed.Message == DuplicateMarker {
		return Result{Kind: Duplicate, Reason: parsed.Message, Raw: raw}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reason := parsed.Message
		if reason == "" {
			reason = fmt.Sprintf("pipeline returned %d", resp.StatusCode)
		}
		return Result{Kind: Rejected, Reason: reason, Raw: raw}
	}
	return Result{Kind: Accepted, Reason: parsed.Message, Raw: raw}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
