package association

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/caio-sobreiro/dicomcore/acse"
	"github.com/caio-sobreiro/dicomcore/dimse"
	"github.com/caio-sobreiro/dicomcore/ulpdu"
	"github.com/caio-sobreiro/dicomcore/ulsm"
)

const verificationSOP = "1.2.840.10008.1.1"
const implicitVRLE = "1.2.840.10008.1.2"

type echoHandler struct{}

func (echoHandler) HandleDIMSE(ctx context.Context, contextID byte, cmd dimse.Command, dataset []byte, responder dimse.Responder) (dimse.Command, []byte, error) {
	return dimse.Command{
		CommandField:              dimse.ResponseFor(cmd.CommandField),
		MessageIDBeingRespondedTo: cmd.MessageID,
		Status:                    dimse.StatusSuccess,
		CommandDataSetType:        dimse.NoDataSet,
	}, nil, nil
}

func acceptAlways(rq *ulpdu.AAssociateRQ) acse.Decision {
	results := make(map[byte]acse.AcceptedContext, len(rq.PresentationCtxs))
	for _, pc := range rq.PresentationCtxs {
		ts := implicitVRLE
		if len(pc.TransferSyntaxes) > 0 {
			ts = pc.TransferSyntaxes[0]
		}
		results[pc.ID] = acse.AcceptedContext{Result: ulpdu.ResultAcceptance, TransferSyntax: ts}
	}
	return acse.Decision{Accept: true, Results: results}
}

func TestOpenAcceptEstablishesAssociationAndEcho(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	scpCfg := Config{CalledAETitle: "SCP_AET", MaxPDULength: 16384}
	scuCfg := Config{CallingAETitle: "SCU_AET", CalledAETitle: "SCP_AET", MaxPDULength: 16384}

	scpReady := make(chan *Association, 1)
	scpErr := make(chan error, 1)
	go func() {
		scp, err := Accept(serverConn, scpCfg, acceptAlways)
		if err != nil {
			scpErr <- err
			return
		}
		scp.Provider().SetHandler(echoHandler{})
		scpReady <- scp
	}()

	proposed := []acse.ProposedContext{
		{ID: 1, AbstractSyntax: verificationSOP, TransferSyntaxes: []string{implicitVRLE}},
	}

	scuDone := make(chan struct{})
	var scu *Association
	var openErr error
	go func() {
		scu, openErr = openOverConn(clientConn, scuCfg, proposed)
		close(scuDone)
	}()

	select {
	case err := <-scpErr:
		t.Fatalf("accept failed: %v", err)
	case <-scpReady:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for SCP accept")
	}

	<-scuDone
	if openErr != nil {
		t.Fatalf("open failed: %v", openErr)
	}
	if len(scu.Contexts()) != 1 {
		t.Fatalf("expected 1 negotiated context, got %d", len(scu.Contexts()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	respCh, err := scu.Provider().Request(ctx, 1, dimse.Command{
		CommandField:        dimse.CEchoRQ,
		AffectedSOPClassUID: verificationSOP,
		CommandDataSetType:  dimse.NoDataSet,
	}, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	select {
	case ex := <-respCh:
		if ex.Command.Status != dimse.StatusSuccess {
			t.Fatalf("expected success status, got %x", ex.Command.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for C-ECHO response")
	}
}

// TestReleaseUnblocksOnAcceptorAutoResponse covers the maintainer-flagged
// gap where a requestor's Release() blocked forever because the acceptor
// never answered A-RELEASE-RQ with A-RELEASE-RP.
func TestReleaseUnblocksOnAcceptorAutoResponse(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	scpCfg := Config{CalledAETitle: "SCP_AET", MaxPDULength: 16384}
	scuCfg := Config{CallingAETitle: "SCU_AET", CalledAETitle: "SCP_AET", MaxPDULength: 16384}

	scpReady := make(chan *Association, 1)
	scpErr := make(chan error, 1)
	go func() {
		scp, err := Accept(serverConn, scpCfg, acceptAlways)
		if err != nil {
			scpErr <- err
			return
		}
		scp.Provider().SetHandler(echoHandler{})
		scpReady <- scp
	}()

	proposed := []acse.ProposedContext{
		{ID: 1, AbstractSyntax: verificationSOP, TransferSyntaxes: []string{implicitVRLE}},
	}

	scuDone := make(chan struct{})
	var scu *Association
	var openErr error
	go func() {
		scu, openErr = openOverConn(clientConn, scuCfg, proposed)
		close(scuDone)
	}()

	select {
	case err := <-scpErr:
		t.Fatalf("accept failed: %v", err)
	case <-scpReady:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for SCP accept")
	}
	<-scuDone
	if openErr != nil {
		t.Fatalf("open failed: %v", openErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := scu.Release(ctx); err != nil {
		t.Fatalf("Release did not converge: %v", err)
	}
}

// openOverConn mirrors Open but reuses an already-connected net.Conn
// (net.Pipe has no dialer), grounded on the same handshake sequence.
func openOverConn(conn net.Conn, cfg Config, proposed []acse.ProposedContext) (*Association, error) {
	cfg.setDefaults()
	a := newAssociation(conn, cfg)
	a.machine.Step(ulsm.EvAAssociateRequest)
	a.machine.Step(ulsm.EvTransportConnectConfirm)

	rq := acse.BuildAssociateRQ(acse.RequestParams{
		CallingAETitle:            cfg.CallingAETitle,
		CalledAETitle:             cfg.CalledAETitle,
		MaximumLength:             cfg.MaxPDULength,
		ImplementationClassUID:    cfg.ImplementationClassUID,
		ImplementationVersionName: cfg.ImplementationVersionName,
		Contexts:                  proposed,
	})
	if err := a.sendPDU(ulpdu.PDU{Type: ulpdu.TypeAssociateRQ, AssociateRQ: rq}); err != nil {
		return nil, err
	}

	raw, err := a.transport.Recv()
	if err != nil {
		return nil, err
	}
	pdu, err := ulpdu.Decode(raw)
	if err != nil {
		return nil, err
	}
	negotiated := acse.ReconcileAccepted(proposed, pdu.AssociateAC)
	a.mu.Lock()
	a.contexts = negotiated
	a.peerMax = pdu.AssociateAC.UserInfo.MaximumLength
	a.mu.Unlock()

	a.provider = dimse.NewProvider(a, cfg.DIMSETimeout)
	go a.readLoop()
	return a, nil
}
