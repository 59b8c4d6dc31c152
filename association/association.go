package association

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/caio-sobreiro/dicomcore/acse"
	"github.com/caio-sobreiro/dicomcore/dimse"
	dcmerrors "github.com/caio-sobreiro/dicomcore/errors"
	"github.com/caio-sobreiro/dicomcore/ulpdu"
	"github.com/caio-sobreiro/dicomcore/ulsm"
	"github.com/caio-sobreiro/dicomcore/ultransport"
)

// Config are the per-association timeouts and identity fields shared by
// both the requestor and acceptor sides (spec.md §4.8, realized here
// rather than in ae so association.Association stays self-sufficient
// for tests that bypass the AE entirely).
type Config struct {
	CallingAETitle            string
	CalledAETitle             string
	MaxPDULength              uint32
	ImplementationClassUID    string
	ImplementationVersionName string
	ACSETimeout               time.Duration // ARTIM duration
	DIMSETimeout              time.Duration
	NetworkTimeout            time.Duration
	Logger                    *slog.Logger
}

func (c *Config) setDefaults() {
	if c.MaxPDULength == 0 {
		c.MaxPDULength = 16384
	}
	if c.ImplementationClassUID == "" {
		c.ImplementationClassUID = "1.2.826.0.1.3680043.9.4321.1"
	}
	if c.ImplementationVersionName == "" {
		c.ImplementationVersionName = "DICOMCORE_01"
	}
	if c.ACSETimeout == 0 {
		c.ACSETimeout = 30 * time.Second
	}
	if c.DIMSETimeout == 0 {
		c.DIMSETimeout = 60 * time.Second
	}
	if c.NetworkTimeout == 0 {
		c.NetworkTimeout = 0
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Association is the user-facing façade over one Upper Layer connection:
// it owns the transport, the state machine, the ACSE-negotiated contexts
// and the DIMSE provider, and fans out lifecycle notifications on
// Events() (spec.md §4.7).
type Association struct {
	cfg       Config
	transport *ultransport.Transport
	machine   *ulsm.Machine
	provider  *dimse.Provider
	logger    *slog.Logger

	mu       sync.RWMutex
	contexts map[byte]acse.NegotiatedContext
	peerMax  uint32

	events chan Event

	reassemblersMu sync.Mutex
	reassemblers   map[byte]*inflight

	closeOnce sync.Once
}

// Open is the SCU entry point: dial, send A-ASSOCIATE-RQ, await the
// response, and return an established Association (spec.md §4.4/§4.7).
func Open(ctx context.Context, addr string, cfg Config, proposed []acse.ProposedContext, userIdentity *ulpdu.UserIdentityRQ) (*Association, error) {
	cfg.setDefaults()
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("association: dial: %w", err)
	}

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
		UserIdentity:              userIdentity,
	})
	if err := a.sendPDU(ulpdu.PDU{Type: ulpdu.TypeAssociateRQ, AssociateRQ: rq}); err != nil {
		conn.Close()
		return nil, err
	}

	a.transport.SetReadDeadline(cfg.ACSETimeout)
	raw, err := a.transport.Recv()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("association: awaiting A-ASSOCIATE-AC/-RJ: %w", err)
	}
	pdu, err := ulpdu.Decode(raw)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("association: decoding response: %w", err)
	}
	switch pdu.Type {
	case ulpdu.TypeAssociateAC:
		a.machine.Step(ulsm.EvRecvAssociateAC)
		negotiated := acse.ReconcileAccepted(proposed, pdu.AssociateAC)
		a.mu.Lock()
		a.contexts = negotiated
		a.peerMax = pdu.AssociateAC.UserInfo.MaximumLength
		a.mu.Unlock()
	case ulpdu.TypeAssociateRJ:
		a.machine.Step(ulsm.EvRecvAssociateRJ)
		conn.Close()
		return nil, dcmerrors.NewAssociationError(
			dcmerrors.AssociationRejectSource(pdu.AssociateRJ.Source),
			dcmerrors.AssociationRejectReason(pdu.AssociateRJ.Reason),
			"peer rejected A-ASSOCIATE-RQ")
	default:
		a.abortLocally(ulpdu.AbortReasonUnexpectedPDU)
		conn.Close()
		return nil, fmt.Errorf("association: unexpected PDU type 0x%02x awaiting AC/RJ", pdu.Type)
	}

	a.transport.SetReadDeadline(cfg.NetworkTimeout)
	a.provider = dimse.NewProvider(a, cfg.DIMSETimeout)
	go a.readLoop()
	a.emit(Event{Kind: EvtEstablished, Contexts: a.Contexts()})
	return a, nil
}

// Accept is the SCP entry point, used by the ae package's server loop:
// conn has already been accepted; this reads the A-ASSOCIATE-RQ and
// asks negotiate for a verdict before sending AC/RJ.
func Accept(conn net.Conn, cfg Config, negotiate func(*ulpdu.AAssociateRQ) acse.Decision) (*Association, error) {
	cfg.setDefaults()
	a := newAssociation(conn, cfg)
	a.machine.Step(ulsm.EvTransportConnectConfirm)
	a.transport.ArmARTIM(cfg.ACSETimeout)

	raw, err := a.transport.Recv()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("association: awaiting A-ASSOCIATE-RQ: %w", err)
	}
	pdu, err := ulpdu.Decode(raw)
	if err != nil || pdu.Type != ulpdu.TypeAssociateRQ {
		a.abortLocally(ulpdu.AbortReasonUnrecognizedPDU)
		conn.Close()
		return nil, fmt.Errorf("association: expected A-ASSOCIATE-RQ: %v", err)
	}
	a.machine.Step(ulsm.EvRecvAssociateRQ)
	a.transport.DisarmARTIM()

	decision := negotiate(pdu.AssociateRQ)
	if !decision.Accept {
		a.machine.Step(ulsm.EvAAssociateResponseReject)
		rj := acse.BuildAssociateRJ(decision.Reject)
		a.sendPDU(ulpdu.PDU{Type: ulpdu.TypeAssociateRJ, AssociateRJ: rj})
		conn.Close()
		return nil, fmt.Errorf("association: local policy rejected request")
	}

	ac, err := acse.BuildAssociateAC(pdu.AssociateRQ, cfg.CalledAETitle, decision, cfg.MaxPDULength, cfg.ImplementationClassUID, cfg.ImplementationVersionName)
	if err != nil {
		conn.Close()
		return nil, err
	}
	a.machine.Step(ulsm.EvAAssociateResponseAccept)
	if err := a.sendPDU(ulpdu.PDU{Type: ulpdu.TypeAssociateAC, AssociateAC: ac}); err != nil {
		conn.Close()
		return nil, err
	}

	proposedByID := make(map[byte]acse.ProposedContext, len(pdu.AssociateRQ.PresentationCtxs))
	for _, pc := range pdu.AssociateRQ.PresentationCtxs {
		proposedByID[pc.ID] = acse.ProposedContext{ID: pc.ID, AbstractSyntax: pc.AbstractSyntax}
	}
	negotiated := make(map[byte]acse.NegotiatedContext, len(ac.PresentationCtxs))
	for _, pc := range ac.PresentationCtxs {
		negotiated[pc.ID] = acse.NegotiatedContext{
			ID:             pc.ID,
			AbstractSyntax: proposedByID[pc.ID].AbstractSyntax,
			TransferSyntax: pc.TransferSyntax,
			Result:         pc.Result,
		}
	}
	a.mu.Lock()
	a.contexts = negotiated
	a.peerMax = pdu.AssociateRQ.UserInfo.MaximumLength
	a.mu.Unlock()

	a.provider = dimse.NewProvider(a, cfg.DIMSETimeout)
	go a.readLoop()
	a.emit(Event{Kind: EvtEstablished, Contexts: a.Contexts()})
	return a, nil
}

func newAssociation(conn net.Conn, cfg Config) *Association {
	return &Association{
		cfg:          cfg,
		transport:    ultransport.New(conn, cfg.MaxPDULength),
		machine:      ulsm.NewMachine(),
		logger:       cfg.Logger,
		contexts:     make(map[byte]acse.NegotiatedContext),
		events:       make(chan Event, 32),
		reassemblers: make(map[byte]*inflight),
	}
}

// Events returns the channel of lifecycle/traffic notifications.
func (a *Association) Events() <-chan Event { return a.events }

// Contexts returns a copy of the negotiated presentation contexts.
func (a *Association) Contexts() map[byte]acse.NegotiatedContext {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[byte]acse.NegotiatedContext, len(a.contexts))
	for k, v := range a.contexts {
		out[k] = v
	}
	return out
}

// Provider exposes the DIMSE provider for issuing SCU requests and
// registering an SCP Handler.
func (a *Association) Provider() *dimse.Provider { return a.provider }

func (a *Association) sendPDU(p ulpdu.PDU) error {
	encoded, err := ulpdu.Encode(p)
	if err != nil {
		return fmt.Errorf("association: encode: %w", err)
	}
	if err := a.transport.Send(encoded); err != nil {
		return fmt.Errorf("association: send: %w", err)
	}
	a.emit(Event{Kind: EvtPDUSent, PDUType: p.Type})
	return nil
}

// SendDIMSE implements dimse.Sender: fragment and transmit a command
// (plus optional data set) as P-DATA-TF PDVs sized to the peer's
// declared Maximum PDU Length (spec.md §4.5/§4.7).
func (a *Association) SendDIMSE(ctx context.Context, contextID byte, cmd dimse.Command, dataset []byte) error {
	a.mu.RLock()
	peerMax := a.peerMax
	a.mu.RUnlock()
	encoded := dimse.EncodeCommand(cmd)
	pdvs := dimse.Fragment(contextID, encoded, dataset, peerMax)
	// Fragment sizes each PDV to fill one P-DATA-TF PDU on its own, so
	// every PDV goes out in its own PDU.
	for _, pdv := range pdvs {
		pdu := ulpdu.PDU{Type: ulpdu.TypePDataTF, PDataTF: &ulpdu.PDataTF{PDVs: []ulpdu.PDV{pdv}}}
		if err := a.sendPDU(pdu); err != nil {
			return err
		}
	}
	a.emit(Event{Kind: EvtDataSent, ContextID: contextID, ByteCount: len(dataset)})
	return nil
}

// Release performs a graceful AR-1/AR-2 release and blocks until the
// peer's A-RELEASE-RP closes the association (spec.md §4.3).
func (a *Association) Release(ctx context.Context) error {
	a.machine.Step(ulsm.EvAReleaseRequest)
	if err := a.sendPDU(ulpdu.PDU{Type: ulpdu.TypeReleaseRQ, ReleaseRQ: &ulpdu.AReleaseRQ{}}); err != nil {
		return err
	}
	for {
		select {
		case ev := <-a.events:
			switch ev.Kind {
			case EvtReleased:
				return nil
			case EvtAborted:
				return fmt.Errorf("association: peer aborted during release")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Abort sends A-ABORT immediately; if block is true it waits for the
// transport to close before returning (spec.md §4.7 "abort(block)").
func (a *Association) Abort(block bool) {
	a.abortLocally(ulpdu.AbortReasonNotSpecified)
	if block {
		a.transport.Close()
	}
}

func (a *Association) abortLocally(reason byte) {
	res := a.machine.Step(ulsm.EvAAbortRequest)
	_ = res
	// Reason codes other than "not specified" are provider diagnostics
	// (protocol errors), so they go out with the provider source.
	source := ulpdu.AbortSourceServiceUser
	if reason != ulpdu.AbortReasonNotSpecified {
		source = ulpdu.AbortSourceServiceProvider
	}
	a.sendPDU(ulpdu.PDU{Type: ulpdu.TypeAbort, Abort: &ulpdu.AAbort{Source: source, Reason: reason}})
}

func (a *Association) emit(e Event) {
	select {
	case a.events <- e:
	default:
		a.logger.Warn("association: event channel full, dropping event", "kind", e.Kind.String())
	}
}

// readLoop is the reactor's single reader goroutine (spec.md §5): it
// owns Transport.Recv exclusively and feeds decoded PDUs into the state
// machine, the DIMSE provider, or lifecycle events.
func (a *Association) readLoop() {
	defer a.transport.Close()
	for {
		raw, err := a.transport.Recv()
		if err != nil {
			a.machine.Step(ulsm.EvTransportClosed)
			a.emit(Event{Kind: EvtAborted})
			return
		}
		pdu, err := ulpdu.Decode(raw)
		if err != nil {
			a.machine.Step(ulsm.EvInvalidPDU)
			a.abortLocally(ulpdu.AbortReasonUnrecognizedPDU)
			return
		}
		a.emit(Event{Kind: EvtPDURecv, PDUType: pdu.Type})

		switch pdu.Type {
		case ulpdu.TypePDataTF:
			res := a.machine.Step(ulsm.EvRecvPDataTF)
			if containsAction(res.Actions, ulsm.ActionIssuePDataIndication) {
				a.handlePData(pdu.PDataTF)
				continue
			}
			// AA-8: P-DATA-TF arrived outside any state that accepts it.
			if containsAction(res.Actions, ulsm.ActionSendAbort) {
				a.sendPDU(ulpdu.PDU{Type: ulpdu.TypeAbort, Abort: &ulpdu.AAbort{Source: ulpdu.AbortSourceServiceProvider, Reason: ulpdu.AbortReasonUnexpectedPDU}})
			}
			a.emit(Event{Kind: EvtAborted})
			return
		case ulpdu.TypeReleaseRQ:
			res := a.machine.Step(ulsm.EvRecvReleaseRQ)
			a.executeReleaseActions(res)
		case ulpdu.TypeReleaseRP:
			res := a.machine.Step(ulsm.EvRecvReleaseRP)
			a.emit(Event{Kind: EvtReleased})
			a.executeReleaseActions(res)
			if res.NextState.IsTerminal() {
				return
			}
		case ulpdu.TypeAbort:
			a.machine.Step(ulsm.EvRecvAbort)
			a.logger.Warn("association: peer aborted", "error", dcmerrors.NewAbortError(pdu.Abort.Source, pdu.Abort.Reason))
			a.emit(Event{Kind: EvtAborted, AbortSource: pdu.Abort.Source, AbortReason: pdu.Abort.Reason})
			return
		default:
			a.machine.Step(ulsm.EvInvalidPDU)
			a.abortLocally(ulpdu.AbortReasonUnexpectedPDU)
			return
		}
	}
}

// executeReleaseActions runs the actions returned by a Step call made
// for a release-related event. ActionIssueAReleaseIndication is handled
// by immediately confirming the release on the acceptor's behalf
// (AR-2/AR-4): this provider has no user-arbitrated release policy, so
// every A-RELEASE-RQ is accepted, matching client.Association's
// auto-respond behavior.
func (a *Association) executeReleaseActions(res ulsm.Result) {
	for _, act := range res.Actions {
		switch act {
		case ulsm.ActionSendReleaseRP:
			a.sendPDU(ulpdu.PDU{Type: ulpdu.TypeReleaseRP, ReleaseRP: &ulpdu.AReleaseRP{}})
		case ulsm.ActionCloseTransport:
			a.emit(Event{Kind: EvtReleased})
		case ulsm.ActionIssueAReleaseIndication:
			a.executeReleaseActions(a.machine.Step(ulsm.EvAReleaseResponse))
		}
	}
}

func containsAction(actions []ulsm.Action, want ulsm.Action) bool {
	for _, act := range actions {
		if act == want {
			return true
		}
	}
	return false
}

// inflight tracks one Presentation Context ID's message as it arrives:
// its reassembler, the decoded command once known, and whether a data
// set is still expected (spec.md §4.5).
type inflight struct {
	reasm      *dimse.Reassembler
	cmd        dimse.Command
	cmdDecoded bool
	wantsData  bool
}

func (a *Association) handlePData(pd *ulpdu.PDataTF) {
	for _, pdv := range pd.PDVs {
		a.reassemblersMu.Lock()
		inf, ok := a.reassemblers[pdv.PresentationContextID]
		a.reassemblersMu.Unlock()
		if !ok {
			inf = newInflight()
		}

		if pdv.IsCommand() {
			if cmdBytes, done := inf.reasm.FeedCommand(pdv); done {
				cmd, err := dimse.DecodeCommand(cmdBytes)
				if err != nil {
					a.logger.Error("association: malformed DIMSE command", "error", err)
					a.reassemblersMu.Lock()
					delete(a.reassemblers, pdv.PresentationContextID)
					a.reassemblersMu.Unlock()
					continue
				}
				inf.cmd = cmd
				inf.cmdDecoded = true
				inf.wantsData = cmd.CommandDataSetType != dimse.NoDataSet
			}
		} else {
			inf.reasm.FeedDataSet(pdv)
		}

		if !inf.cmdDecoded || (inf.wantsData && !dataSetComplete(inf.reasm)) {
			a.reassemblersMu.Lock()
			a.reassemblers[pdv.PresentationContextID] = inf
			a.reassemblersMu.Unlock()
			continue
		}

		a.reassemblersMu.Lock()
		delete(a.reassemblers, pdv.PresentationContextID)
		a.reassemblersMu.Unlock()

		dataBytes := inf.reasm.DataSetBytes()
		a.emit(Event{Kind: EvtDataRecv, ContextID: pdv.PresentationContextID, ByteCount: len(dataBytes)})
		a.provider.Deliver(context.Background(), pdv.PresentationContextID, inf.cmd, dataBytes)
	}
}

func newInflight() *inflight { return &inflight{reasm: dimse.NewReassembler()} }

func dataSetComplete(r *dimse.Reassembler) bool { return r.DataSetComplete() }
