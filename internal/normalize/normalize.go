// Package normalize turns raw, front-end-specific payloads into canonical
// partial edits the draft engine understands. Everything here is pure;
// nothing returns an error to the caller, bad input degrades to the input
// itself or to a display default.
package normalize

import (
	"net/url"
	"strings"
	"time"
)

// Field names a single editable draft field.
type Field string

const (
	FieldInvoiceNumber Field = "invoiceNumber"
	FieldDate          Field = "date"
	FieldAmount        Field = "amount"
	FieldCategory      Field = "category"
	FieldDetail        Field = "detail"
	FieldImageURL      Field = "imageUrl"
)

// Edit is one canonical partial edit: which field, and the normalized value.
// Both extraction paths (summary cards and postback data) produce these, so
// the state machine never sees a platform payload.
type Edit struct {
	Field Field
	Value string
}

// Unrecognized is the sentinel display value used when a field could not
// be extracted by OCR or was submitted empty.
const Unrecognized = "無法辨識"

var dateLayouts = []string{
	"2006/01/02",
	"2006.01.02",
	"2006年01月02日",
	"01/02/2006",
	time.RFC3339,
}

// Date canonicalizes a date string to YYYY-MM-DD. Eight contiguous digits
// are regrouped directly; an already canonical string passes through; other
// shapes go through a few common layouts. Anything unparsable is returned
// unchanged.
func Date(s string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)

	if len(digits) == 8 {
		return digits[0:4] + "-" + digits[4:6] + "-" + digits[6:8]
	}

	if isCanonicalDate(s) {
		return s
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

func isCanonicalDate(s string) bool {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	for i, r := range s {
		if i == 4 || i == 7 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Sanitize collapses the sentinel "empty" shapes that arrive from the
// platforms and the pipeline (empty string, whitespace, JSON null echoed
// as text) into fallback.
func Sanitize(s, fallback string) string {
	trimmed := strings.TrimSpace(s)
	switch strings.ToLower(trimmed) {
	case "", "null", "undefined":
		return fallback
	}
	return trimmed
}

// SummaryFields extracts invoice number, date and amount from the field
// values of a previously rendered summary card. The card wraps values in
// backticks and prefixes the amount with "NT$ "; both are stripped. The
// slice is positional: number, date, amount.
func SummaryFields(values []string) []Edit {
	fields := []Field{FieldInvoiceNumber, FieldDate, FieldAmount}
	edits := make([]Edit, 0, len(fields))
	for i, f := range fields {
		if i >= len(values) {
			break
		}
		v := strings.ReplaceAll(values[i], "`", "")
		if f == FieldAmount {
			v = strings.TrimPrefix(v, "NT$ ")
		}
		if f == FieldDate {
			v = Date(v)
		}
		edits = append(edits, Edit{Field: f, Value: strings.TrimSpace(v)})
	}
	return edits
}

// Postback is a parsed flat key=value payload carried through interaction
// metadata (the one-to-one platform's postback data string).
type Postback struct {
	values url.Values
}

// ParsePostback parses a data string such as "action=classify&inv=AB12345678".
// A malformed string yields an empty Postback rather than an error.
func ParsePostback(data string) Postback {
	values, err := url.ParseQuery(data)
	if err != nil {
		return Postback{values: url.Values{}}
	}
	return Postback{values: values}
}

func (p Postback) Action() string     { return p.values.Get("action") }
func (p Postback) InvoiceKey() string { return p.values.Get("inv") }
func (p Postback) Get(key string) string {
	return p.values.Get(key)
}

// Edits converts the recognized draft fields of a postback payload into
// canonical edits. Keys that are not draft fields (action, inv) are skipped.
func (p Postback) Edits() []Edit {
	var edits []Edit
	if cat := p.values.Get("cat"); cat != "" {
		edits = append(edits, Edit{Field: FieldCategory, Value: cat})
	}
	if date := p.values.Get("date"); date != "" {
		edits = append(edits, Edit{Field: FieldDate, Value: Date(date)})
	}
	if amount := p.values.Get("amount"); amount != "" {
		edits = append(edits, Edit{Field: FieldAmount, Value: amount})
	}
	return edits
}
