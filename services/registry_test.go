package services

import (
	"context"
	"testing"

	"github.com/caio-sobreiro/dicomcore/dimse"
)

type fakeHandler struct {
	called bool
	resp   dimse.Command
}

func (f *fakeHandler) HandleDIMSE(ctx context.Context, contextID byte, cmd dimse.Command, dataset []byte, responder dimse.Responder) (dimse.Command, []byte, error) {
	f.called = true
	return f.resp, nil, nil
}

func TestRegistryDispatchesToRegisteredHandler(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandler{resp: dimse.Command{CommandField: dimse.CEchoRSP, Status: dimse.StatusSuccess}}
	reg.RegisterHandler(dimse.CEchoRQ, h)

	if !reg.HasHandler(dimse.CEchoRQ) {
		t.Fatalf("expected handler registered")
	}

	resp, _, err := reg.HandleDIMSE(context.Background(), 1, dimse.Command{CommandField: dimse.CEchoRQ, MessageID: 7}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.called {
		t.Fatalf("expected handler to be invoked")
	}
	if resp.Status != dimse.StatusSuccess {
		t.Fatalf("expected success status, got 0x%04x", resp.Status)
	}
}

func TestRegistryReturnsFailureForUnregisteredCommand(t *testing.T) {
	reg := NewRegistry()
	resp, _, err := reg.HandleDIMSE(context.Background(), 1, dimse.Command{CommandField: dimse.CStoreRQ, MessageID: 3}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dimse.IsFailure(resp.Status) {
		t.Fatalf("expected failure status for unregistered command, got 0x%04x", resp.Status)
	}
	if resp.MessageIDBeingRespondedTo != 3 {
		t.Fatalf("expected echoed message id 3, got %d", resp.MessageIDBeingRespondedTo)
	}
}

func TestUnregisterHandlerRemovesDispatch(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterHandler(dimse.CEchoRQ, &fakeHandler{})
	reg.UnregisterHandler(dimse.CEchoRQ)
	if reg.HasHandler(dimse.CEchoRQ) {
		t.Fatalf("expected handler to be removed")
	}
}

func TestRegisteredCommandsListsAll(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterHandler(dimse.CEchoRQ, &fakeHandler{})
	reg.RegisterHandler(dimse.CStoreRQ, &fakeHandler{})
	cmds := reg.RegisteredCommands()
	if len(cmds) != 2 {
		t.Fatalf("expected 2 registered commands, got %d", len(cmds))
	}
}

func TestCreateErrorResponseEchoesIdentity(t *testing.T) {
	req := dimse.Command{CommandField: dimse.CStoreRQ, MessageID: 42, AffectedSOPClassUID: "1.2.3"}
	resp := CreateErrorResponse(req, dimse.StatusFailureLow)
	if resp.CommandField != dimse.CStoreRSP {
		t.Fatalf("expected CStoreRSP, got 0x%04x", resp.CommandField)
	}
	if resp.MessageIDBeingRespondedTo != 42 {
		t.Fatalf("expected message id 42, got %d", resp.MessageIDBeingRespondedTo)
	}
	if resp.AffectedSOPClassUID != "1.2.3" {
		t.Fatalf("expected echoed SOP class UID, got %q", resp.AffectedSOPClassUID)
	}
}
