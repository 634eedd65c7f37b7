package normalize

import (
	"testing"
)

func TestDateCanonicalization(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"20240115", "2024-01-15"},
		{"2024/01/15", "2024-01-15"},
		{"2024.01.15", "2024-01-15"},
		{"2024年01月15日", "2024-01-15"},
		{"2024-01-15", "2024-01-15"},
		{"not a date", "not a date"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Date(tc.in); got != tc.want {
			t.Errorf("Date(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeCollapsesEmptyShapes(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "fallback"},
		{"   ", "fallback"},
		{"null", "fallback"},
		{"NULL", "fallback"},
		{"undefined", "fallback"},
		{" AB12345678 ", "AB12345678"},
	}
	for _, tc := range cases {
		if got := Sanitize(tc.in, "fallback"); got != tc.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSummaryFieldsStripsCardFormatting(t *testing.T) {
	edits := SummaryFields([]string{"`AB12345678`", "`2024/01/15`", "`NT$ 120`"})

	if len(edits) != 3 {
		t.Fatalf("expected 3 edits, got %d", len(edits))
	}
	want := []Edit{
		{Field: FieldInvoiceNumber, Value: "AB12345678"},
		{Field: FieldDate, Value: "2024-01-15"},
		{Field: FieldAmount, Value: "120"},
	}
	for i, e := range want {
		if edits[i] != e {
			t.Errorf("edit %d = %+v, want %+v", i, edits[i], e)
		}
	}
}

func TestSummaryFieldsShortSlice(t *testing.T) {
	edits := SummaryFields([]string{"`AB12345678`"})
	if len(edits) != 1 {
		t.Fatalf("expected 1 edit, got %d", len(edits))
	}
	if edits[0].Field != FieldInvoiceNumber {
		t.Errorf("expected invoice number edit, got %s", edits[0].Field)
	}
}

func TestParsePostback(t *testing.T) {
	p := ParsePostback("action=classify&inv=AB12345678")
	if p.Action() != "classify" {
		t.Errorf("Action() = %q, want classify", p.Action())
	}
	if p.InvoiceKey() != "AB12345678" {
		t.Errorf("InvoiceKey() = %q, want AB12345678", p.InvoiceKey())
	}
}

func TestParsePostbackMalformed(t *testing.T) {
	p := ParsePostback("%zz;;;")
	if p.Action() != "" || p.InvoiceKey() != "" {
		t.Errorf("malformed postback should be empty, got action=%q inv=%q", p.Action(), p.InvoiceKey())
	}
}

func TestPostbackEdits(t *testing.T) {
	p := ParsePostback("action=setcat&inv=AB12345678&cat=food&date=20240115&amount=120")
	edits := p.Edits()
	if len(edits) != 3 {
		t.Fatalf("expected 3 edits, got %d", len(edits))
	}
	byField := map[Field]string{}
	for _, e := range edits {
		byField[e.Field] = e.Value
	}
	if byField[FieldCategory] != "food" {
		t.Errorf("category = %q, want food", byField[FieldCategory])
	}
	if byField[FieldDate] != "2024-01-15" {
		t.Errorf("date = %q, want 2024-01-15", byField[FieldDate])
	}
	if byField[FieldAmount] != "120" {
		t.Errorf("amount = %q, want 120", byField[FieldAmount])
	}
}
