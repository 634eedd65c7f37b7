package draft

import (
	"ledgerbot/internal/normalize"
)

// Transition operations. Every operation runs under the owning key's lock,
// returns a snapshot of the draft after the transition, and never leaves a
// draft in a state outside the transition table.

func resetIfTerminal(d *Draft) {
	if !d.Status.Terminal() {
		return
	}
	key := d.SessionKey
	*d = Draft{
		SessionKey:    key,
		InvoiceNumber: key,
		Status:        StatusCollecting,
	}
}

// SetDetail records the free-text detail for key, creating the draft if the
// key is unknown. Reaching readiness moves the draft to confirming.
func (s *Store) SetDetail(key, userID, detail string) (Draft, error) {
	var snap Draft
	err := s.WithLock(key, func(d *Draft) error {
		resetIfTerminal(d)
		if d.Status == StatusSubmitting {
			return ErrAlreadySubmitting
		}
		d.Detail = detail
		if d.UserID == "" {
			d.UserID = userID
		}
		if d.Ready() {
			d.Status = StatusConfirming
		}
		snap = *d
		return nil
	})
	return snap, err
}

// SetCategory records the selected category for key, creating the draft if
// the key is unknown. extra carries the scalar fields echoed back by the
// platform alongside the selection (invoice number, date, amount, image).
func (s *Store) SetCategory(key, userID, code string, extra []normalize.Edit) (Draft, error) {
	var snap Draft
	err := s.WithLock(key, func(d *Draft) error {
		resetIfTerminal(d)
		if d.Status == StatusSubmitting {
			return ErrAlreadySubmitting
		}
		for _, e := range extra {
			d.apply(e)
		}
		d.Category = code
		if d.UserID == "" {
			d.UserID = userID
		}
		if d.Ready() {
			d.Status = StatusConfirming
		}
		snap = *d
		return nil
	})
	return snap, err
}

// EditFields overwrites scalar fields while the draft is still editable
// (collecting or confirming). An edit against an unknown key does not
// create a draft; the adapters refresh the rendered card regardless, so
// the store stays untouched until a category or detail event arrives.
// If the invoice number changes, the draft is re-keyed.
func (s *Store) EditFields(key string, edits []normalize.Edit) (Draft, error) {
	e := s.entryFor(key, false)
	if e == nil {
		return Draft{}, ErrMissingContext
	}

	var snap Draft
	e.mu.Lock()
	d := e.draft
	if d.Status == StatusSubmitting {
		e.mu.Unlock()
		return Draft{}, ErrAlreadySubmitting
	}
	if d.Status.Terminal() {
		e.mu.Unlock()
		return Draft{}, ErrMissingContext
	}
	for _, edit := range edits {
		d.apply(edit)
	}
	d.UpdatedAt = s.now()
	snap = *d
	e.mu.Unlock()

	if snap.InvoiceNumber != "" && snap.InvoiceNumber != key {
		s.Rekey(key, snap.InvoiceNumber)
		snap.SessionKey = snap.InvoiceNumber
	}
	return snap, nil
}

// Confirm moves a confirming draft to submitting and stamps the
// correlation context consumed later by the resolver. A second confirm for
// the same key is rejected with ErrAlreadySubmitting without touching the
// draft, which is what makes the gateway call exactly-once.
func (s *Store) Confirm(key, token, channelID, username string) (Draft, error) {
	e := s.entryFor(key, false)
	if e == nil {
		return Draft{}, ErrMissingContext
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.draft
	switch {
	case d.Status == StatusSubmitting:
		return Draft{}, ErrAlreadySubmitting
	case d.Status != StatusConfirming || !d.Ready():
		return Draft{}, ErrMissingContext
	}
	d.Status = StatusSubmitting
	d.CorrelationToken = token
	d.ChannelID = channelID
	if username != "" {
		d.Username = username
	}
	d.UpdatedAt = s.now()
	return *d, nil
}

// Cancel returns a confirming draft to collecting. Fields are kept so the
// user can fix a value and confirm again; cancel is not available once the
// draft is submitting.
func (s *Store) Cancel(key string) (Draft, error) {
	e := s.entryFor(key, false)
	if e == nil {
		return Draft{}, ErrMissingContext
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.draft
	if d.Status != StatusConfirming {
		return Draft{}, ErrMissingContext
	}
	d.Status = StatusCollecting
	d.UpdatedAt = s.now()
	return *d, nil
}

// Finish moves a submitting draft to its terminal outcome and returns the
// final snapshot. The entry stays in the store until the caller has
// delivered the result and calls Delete.
func (s *Store) Finish(key string, outcome Status) (Draft, error) {
	if !outcome.Terminal() {
		return Draft{}, ErrMissingContext
	}
	e := s.entryFor(key, false)
	if e == nil {
		return Draft{}, ErrMissingContext
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.draft
	if d.Status != StatusSubmitting {
		return Draft{}, ErrNotSubmitting
	}
	d.Status = outcome
	d.UpdatedAt = s.now()
	return *d, nil
}
