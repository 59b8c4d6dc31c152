package services

import (
	"context"
	"testing"

	"github.com/caio-sobreiro/dicomcore/dimse"
)

func TestEchoServiceRespondsSuccess(t *testing.T) {
	svc := NewEchoService()
	req := dimse.Command{CommandField: dimse.CEchoRQ, MessageID: 9, AffectedSOPClassUID: verificationSOPClassUID}

	resp, dataset, err := svc.HandleDIMSE(context.Background(), 1, req, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dataset != nil {
		t.Fatalf("expected no dataset in C-ECHO response")
	}
	if resp.CommandField != dimse.CEchoRSP {
		t.Fatalf("expected CEchoRSP, got 0x%04x", resp.CommandField)
	}
	if resp.MessageIDBeingRespondedTo != 9 {
		t.Fatalf("expected echoed message id 9, got %d", resp.MessageIDBeingRespondedTo)
	}
	if resp.Status != dimse.StatusSuccess {
		t.Fatalf("expected success status, got 0x%04x", resp.Status)
	}
	if resp.CommandDataSetType != dimse.NoDataSet {
		t.Fatalf("expected NoDataSet, got 0x%04x", resp.CommandDataSetType)
	}
}

func TestEchoServiceHealthCheck(t *testing.T) {
	svc := NewEchoService()
	if err := svc.HealthCheck(context.Background()); err != nil {
		t.Fatalf("expected healthy echo service, got %v", err)
	}
}
