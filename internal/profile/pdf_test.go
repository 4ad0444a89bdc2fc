package profile

import (
	"errors"
	"testing"
)

func TestExtractPDFText_TooLarge(t *testing.T) {
	_, err := ExtractPDFText(make([]byte, MaxPDFBytes+1))
	if !errors.Is(err, ErrPDFTooLarge) {
		t.Fatalf("expected ErrPDFTooLarge, got %v", err)
	}
}

func TestExtractPDFText_NotAPDF(t *testing.T) {
	_, err := ExtractPDFText([]byte("JSON-START {} JSON-END"))
	if !errors.Is(err, ErrInvalidPDF) {
		t.Fatalf("expected ErrInvalidPDF, got %v", err)
	}
}

func TestManager_IngestPDF_RejectsGarbage(t *testing.T) {
	mgr, store, _, _ := newTestManager()
	if _, err := mgr.IngestPDF("alice", []byte("%PDF-garbage")); !errors.Is(err, ErrInvalidPDF) {
		t.Fatalf("expected ErrInvalidPDF, got %v", err)
	}
	if store.saveCalls != 0 {
		t.Fatalf("expected nothing stored, got %d saves", store.saveCalls)
	}
}
