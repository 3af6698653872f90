package model

import (
	"testing"
	"time"
)

func TestTerminationState_Clone_deepCopies(t *testing.T) {
	d := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	orig := TerminationState{
		SubjectID:       "C1",
		TerminationDate: &d,
		Reason:          "Relocation",
		Media: []MediaAsset{
			{URL: "https://media.example/1.jpg", Kind: MediaKindPhoto},
		},
		Damages: []DamageRecord{
			{Description: "Broken tile", Media: []MediaAsset{{URL: "https://media.example/2.jpg", Kind: MediaKindPhoto}}},
		},
		InvoiceItems: []InvoiceLineItem{
			{Description: "Broken tile", Amount: 500, Quantity: 1},
		},
	}

	clone := orig.Clone()

	clone.Media[0].URL = "changed"
	clone.Damages[0].Description = "changed"
	clone.Damages[0].Media[0].URL = "changed"
	clone.InvoiceItems[0].Amount = 1
	*clone.TerminationDate = clone.TerminationDate.AddDate(1, 0, 0)

	if orig.Media[0].URL != "https://media.example/1.jpg" {
		t.Errorf("clone mutation leaked into original media")
	}
	if orig.Damages[0].Description != "Broken tile" {
		t.Errorf("clone mutation leaked into original damages")
	}
	if orig.Damages[0].Media[0].URL != "https://media.example/2.jpg" {
		t.Errorf("clone mutation leaked into original damage media")
	}
	if orig.InvoiceItems[0].Amount != 500 {
		t.Errorf("clone mutation leaked into original invoice items")
	}
	if !orig.TerminationDate.Equal(d) {
		t.Errorf("clone mutation leaked into original termination date")
	}
}

func TestTerminationState_Clone_emptySlicesStayNil(t *testing.T) {
	clone := TerminationState{SubjectID: "C2"}.Clone()
	if clone.Media != nil || clone.Damages != nil || clone.InvoiceItems != nil {
		t.Errorf("Clone() of empty state allocated slices: %+v", clone)
	}
	if clone.TerminationDate != nil {
		t.Errorf("Clone() of empty state allocated termination date")
	}
}
