package filing

import (
	"errors"
	"testing"
	"time"
)

func TestParseHeader(t *testing.T) {
	data := sampleSubmission()
	data.FileNumber = "000-10030"
	content := NewFileContent("sample", data.Bytes())
	sec, ok := Find(Scan(content), Header)
	if !ok {
		t.Fatal("no header section")
	}

	h, err := ParseHeader(content, sec)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if h.CIK != "0000320193" {
		t.Errorf("CIK = %q", h.CIK)
	}
	if h.FormType != "10-Q" {
		t.Errorf("FormType = %q", h.FormType)
	}
	if h.CompanyName != "APPLE INC" {
		t.Errorf("CompanyName = %q", h.CompanyName)
	}
	if h.FileNumber != "000-10030" {
		t.Errorf("FileNumber = %q", h.FileNumber)
	}
	if h.AccessionNumber != "0001193125-13-168288" {
		t.Errorf("AccessionNumber = %q", h.AccessionNumber)
	}
	if !h.FilingDate.Equal(time.Date(2013, 4, 24, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("FilingDate = %v", h.FilingDate)
	}
	if v, ok := h.Get("public document count"); !ok || v != "5" {
		t.Errorf("Get(public document count) = %q, %v", v, ok)
	}
	if got := h.Identity().Key(); got != "0000320193|10-Q|2013-03-30" {
		t.Errorf("Identity = %q", got)
	}
}

func TestParseHeaderFirstOccurrenceWins(t *testing.T) {
	body := []byte("CONFORMED SUBMISSION TYPE:\t10-K/A\nFILED AS OF DATE:\t20130115\n" +
		"SUBJECT COMPANY:\n\tCOMPANY CONFORMED NAME:\tFIRST CO\n\tCENTRAL INDEX KEY:\t0000000001\n" +
		"FILED BY:\n\tCOMPANY CONFORMED NAME:\tSECOND CO\n\tCENTRAL INDEX KEY:\t0000000002\n")
	h, err := ParseHeaderBytes(body)
	if err != nil {
		t.Fatal(err)
	}
	if h.CIK != "0000000001" || h.CompanyName != "FIRST CO" {
		t.Errorf("expected first block to win, got %s %s", h.CIK, h.CompanyName)
	}
	if h.FormType != "10-K_A" || !h.IsAmendment() {
		t.Errorf("FormType = %q", h.FormType)
	}
	if h.Identity().FormType != "10-K" {
		t.Errorf("amendment identity should use base form, got %q", h.Identity().FormType)
	}
}

func TestParseHeaderMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing cik", "CONFORMED SUBMISSION TYPE:\t10-K\n"},
		{"missing form", "CENTRAL INDEX KEY:\t0000320193\n"},
		{"empty", ""},
		{"no dates", "CONFORMED SUBMISSION TYPE:\t10-K\nCENTRAL INDEX KEY:\t0000320193\n"},
		{"unparseable dates", "CONFORMED SUBMISSION TYPE:\t10-K\nCENTRAL INDEX KEY:\t0000320193\nFILED AS OF DATE:\tunknown\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHeaderBytes([]byte(tt.body))
			if !errors.Is(err, ErrMalformedHeader) {
				t.Errorf("expected ErrMalformedHeader, got %v", err)
			}
		})
	}

	content := NewFileContent("x", []byte("no header here"))
	if _, err := ParseHeader(content, Scan(content)[0]); !errors.Is(err, ErrMalformedHeader) {
		t.Errorf("non-header section: expected ErrMalformedHeader, got %v", err)
	}
}

func TestIdentityFallsBackToFilingDate(t *testing.T) {
	h, err := ParseHeaderBytes([]byte("CONFORMED SUBMISSION TYPE:\t8-K\nCENTRAL INDEX KEY:\t320193\nFILED AS OF DATE:\t20130423\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got := h.Identity().Key(); got != "0000320193|8-K|2013-04-23" {
		t.Errorf("Identity = %q", got)
	}
}

func TestFormTypes(t *testing.T) {
	tests := []struct {
		in        string
		norm      string
		base      string
		amendment bool
	}{
		{"10-K", "10-K", "10-K", false},
		{"10-k/a", "10-K_A", "10-K", true},
		{" 10-Q/A ", "10-Q_A", "10-Q", true},
		{"10-KT", "10-KT", "10-KT", false},
		{"S-1", "S-1", "S-1", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeFormType(tt.in); got != tt.norm {
				t.Errorf("NormalizeFormType = %q, want %q", got, tt.norm)
			}
			if got := BaseFormType(tt.in); got != tt.base {
				t.Errorf("BaseFormType = %q, want %q", got, tt.base)
			}
			if got := IsAmendment(tt.in); got != tt.amendment {
				t.Errorf("IsAmendment = %v, want %v", got, tt.amendment)
			}
		})
	}
}
