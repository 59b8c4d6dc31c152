package services

import (
	"testing"

	"github.com/caio-sobreiro/dicomcore/dimse"
)

func TestCEchoResponse(t *testing.T) {
	req := dimse.Command{MessageID: 5}
	resp := NewCEchoResponse(req, dimse.StatusSuccess)
	if resp.CommandField != dimse.CEchoRSP {
		t.Fatalf("expected CEchoRSP, got 0x%04x", resp.CommandField)
	}
	if resp.AffectedSOPClassUID != verificationSOPClassUID {
		t.Fatalf("expected verification SOP class, got %q", resp.AffectedSOPClassUID)
	}
	if resp.CommandDataSetType != dimse.NoDataSet {
		t.Fatalf("expected no dataset, got 0x%04x", resp.CommandDataSetType)
	}
}

func TestCFindPendingAndSuccessResponses(t *testing.T) {
	req := dimse.Command{MessageID: 11, AffectedSOPClassUID: "1.2.840.10008.5.1.4.1.2.1.1"}

	pending := NewCFindPendingResponse(req)
	if pending.Status != dimse.StatusPending {
		t.Fatalf("expected pending status, got 0x%04x", pending.Status)
	}
	if pending.CommandDataSetType == dimse.NoDataSet {
		t.Fatalf("expected pending response to carry a dataset")
	}

	success := NewCFindSuccessResponse(req)
	if success.Status != dimse.StatusSuccess {
		t.Fatalf("expected success status, got 0x%04x", success.Status)
	}
	if success.CommandDataSetType != dimse.NoDataSet {
		t.Fatalf("expected final response to carry no dataset")
	}
}

func TestCFindErrorResponse(t *testing.T) {
	req := dimse.Command{MessageID: 3, AffectedSOPClassUID: "1.2.840.10008.5.1.4.1.2.1.1"}
	resp := NewCFindErrorResponse(req, dimse.StatusFailureLow)
	if !dimse.IsFailure(resp.Status) {
		t.Fatalf("expected failure status, got 0x%04x", resp.Status)
	}
}

func TestCMoveResponses(t *testing.T) {
	req := dimse.Command{MessageID: 21, AffectedSOPClassUID: "1.2.840.10008.5.1.4.1.2.1.2"}

	pending := NewCMovePendingResponse(req, 2, 0, 0, 3)
	if pending.Status != dimse.StatusPending {
		t.Fatalf("expected pending status, got 0x%04x", pending.Status)
	}
	if pending.NumberOfRemainingSubops != 3 {
		t.Fatalf("expected 3 remaining subops, got %d", pending.NumberOfRemainingSubops)
	}

	success := NewCMoveSuccessResponse(req, 5, 0, 0)
	if success.Status != dimse.StatusSuccess {
		t.Fatalf("expected success status, got 0x%04x", success.Status)
	}
	if success.NumberOfCompletedSubops != 5 {
		t.Fatalf("expected 5 completed subops, got %d", success.NumberOfCompletedSubops)
	}

	errResp := NewCMoveErrorResponse(req, dimse.StatusFailureLow)
	if !dimse.IsFailure(errResp.Status) {
		t.Fatalf("expected failure status, got 0x%04x", errResp.Status)
	}
}

func TestCStoreResponse(t *testing.T) {
	req := dimse.Command{MessageID: 8, AffectedSOPClassUID: "1.2.840.10008.5.1.4.1.1.2", AffectedSOPInstanceUID: "1.2.3.4"}
	resp := NewCStoreResponse(req, dimse.StatusSuccess)
	if resp.CommandField != dimse.CStoreRSP {
		t.Fatalf("expected CStoreRSP, got 0x%04x", resp.CommandField)
	}
	if resp.AffectedSOPInstanceUID != "1.2.3.4" {
		t.Fatalf("expected echoed SOP instance UID, got %q", resp.AffectedSOPInstanceUID)
	}
}
