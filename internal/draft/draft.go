// Package draft implements the per-receipt correction engine: the draft
// record, the keyed store with per-key mutual exclusion, and the status
// transitions that decide when a draft may be submitted.
package draft

import (
	"errors"
	"time"

	"ledgerbot/internal/normalize"
)

// Status is the lifecycle stage of a draft. A draft awaiting confirmation
// moves to StatusConfirming the moment both category and detail are
// present; terminal statuses are never re-entered.
type Status string

const (
	StatusCollecting Status = "collecting"
	StatusConfirming Status = "confirming"
	StatusSubmitting Status = "submitting"
	StatusSaved      Status = "saved"
	StatusDuplicate  Status = "duplicate"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s is an end state.
func (s Status) Terminal() bool {
	return s == StatusSaved || s == StatusDuplicate || s == StatusFailed
}

// Draft is one receipt in progress, keyed by session key (the invoice
// number known at creation time).
type Draft struct {
	SessionKey    string
	InvoiceNumber string
	Date          string
	Amount        string
	ImageURL      string
	Category      string
	Detail        string

	UserID   string
	Username string

	// Set once at confirmation time, consumed by the correlation resolver.
	CorrelationToken string
	ChannelID        string

	Status    Status
	UpdatedAt time.Time
}

// Ready reports whether the draft satisfies the readiness rule: category
// and detail both set, independently of arrival order.
func (d *Draft) Ready() bool {
	return d.Category != "" && d.Detail != ""
}

func (d *Draft) apply(e normalize.Edit) {
	switch e.Field {
	case normalize.FieldInvoiceNumber:
		d.InvoiceNumber = e.Value
	case normalize.FieldDate:
		d.Date = e.Value
	case normalize.FieldAmount:
		d.Amount = e.Value
	case normalize.FieldCategory:
		d.Category = e.Value
	case normalize.FieldDetail:
		d.Detail = e.Value
	case normalize.FieldImageURL:
		d.ImageURL = e.Value
	}
}

// Errors reported by transitions. Adapters translate these into user
// messaging; none of them mutate the store.
var (
	// ErrMissingContext: the event references a key or state the engine
	// cannot act on (e.g. confirming a draft that is not ready).
	ErrMissingContext = errors.New("draft: missing context")
	// ErrAlreadySubmitting: a second confirm raced an in-flight submission.
	ErrAlreadySubmitting = errors.New("draft: already submitting")
	// ErrNotSubmitting: a verdict arrived for a draft that never reached
	// submission (stale callback).
	ErrNotSubmitting = errors.New("draft: not submitting")
)
