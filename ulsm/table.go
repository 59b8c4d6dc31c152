package ulsm

// transitionKey indexes the table by (state, event).
type transitionKey struct {
	State State
	Event Event
}

// table maps every explicitly-defined (state, event) pair to its result.
// Built once; Evaluate falls back to the AA-8 abort action for any pair
// missing here outside Sta1 (in Sta1 such events are ignored), per spec.md §4.3 ("any event not listed ... MUST raise
// the ... error action AA-8 ... do not silently discard").
var table = buildTable()

func r(next State, actions ...Action) Result { return Result{Actions: actions, NextState: next} }

func buildTable() map[transitionKey]Result {
	t := make(map[transitionKey]Result)
	set := func(s State, e Event, res Result) { t[transitionKey{s, e}] = res }

	// AE-1/AE-2: requestor opens the transport, sends A-ASSOCIATE-RQ.
	set(Sta1, EvAAssociateRequest, r(Sta4, ActionIssueTransportConnect))
	set(Sta4, EvTransportConnectConfirm, r(Sta5, ActionSendAssociateRQ, ActionStartARTIM))

	// AE-5/AE-6: acceptor side of a freshly accepted transport connection.
	set(Sta1, EvTransportConnectConfirm, r(Sta2, ActionStartARTIM))
	set(Sta2, EvRecvAssociateRQ, r(Sta3, ActionStopARTIM, ActionIssueAAssociateIndication))
	set(Sta2, EvARTIMExpired, r(Sta1, ActionCloseTransport))
	set(Sta2, EvTransportClosed, r(Sta1))

	// AE-7/AE-8: local accept/reject decision on the acceptor side.
	set(Sta3, EvAAssociateResponseAccept, r(Sta6, ActionSendAssociateAC))
	set(Sta3, EvAAssociateResponseReject, r(Sta13, ActionSendAssociateRJ, ActionStartARTIM))

	// AE-3/AE-4: requestor awaiting A-ASSOCIATE-AC/-RJ.
	set(Sta5, EvRecvAssociateAC, r(Sta6, ActionStopARTIM, ActionIssueAAssociateConfirmAccept))
	set(Sta5, EvRecvAssociateRJ, r(Sta1, ActionStopARTIM, ActionIssueAAssociateConfirmReject, ActionCloseTransport))
	set(Sta5, EvARTIMExpired, r(Sta1, ActionCloseTransport))
	set(Sta5, EvTransportClosed, r(Sta1, ActionIssueAPAbortIndication))

	// DT-1/DT-2: data transfer in the established state.
	set(Sta6, EvPDataRequest, r(Sta6, ActionSendPData))
	set(Sta6, EvRecvPDataTF, r(Sta6, ActionIssuePDataIndication))

	// ARTIM does not run in Sta6; ignore spurious expiry rather than abort.
	set(Sta6, EvARTIMExpired, r(Sta6))

	// AR-1/AR-2: graceful release, non-colliding path.
	set(Sta6, EvAReleaseRequest, r(Sta7, ActionSendReleaseRQ))
	set(Sta6, EvRecvReleaseRQ, r(Sta8, ActionIssueAReleaseIndication))
	set(Sta7, EvRecvReleaseRP, r(Sta1, ActionIssueAReleaseConfirm, ActionCloseTransport))
	set(Sta8, EvAReleaseResponse, r(Sta13, ActionSendReleaseRP, ActionCloseTransport))

	// AR-3/AR-4: release collision. Sta9/11 is the requestor-of-release
	// path that had already sent A-RELEASE-RQ; Sta10/12 is the acceptor
	// path that had already received one, per spec.md §4.3.
	set(Sta7, EvRecvReleaseRQ, r(Sta9, ActionIssueAReleaseIndication))
	set(Sta9, EvAReleaseResponse, r(Sta11, ActionSendReleaseRP))
	set(Sta11, EvRecvReleaseRP, r(Sta1, ActionIssueAReleaseConfirm, ActionCloseTransport))

	set(Sta8, EvAReleaseRequest, r(Sta10, ActionSendReleaseRQ))
	set(Sta10, EvRecvReleaseRP, r(Sta12, ActionIssueAReleaseConfirm))
	set(Sta12, EvAReleaseResponse, r(Sta1, ActionSendReleaseRP, ActionCloseTransport))

	// P-DATA-TF may still arrive while a release is pending in any of
	// Sta8..Sta12 (required for interleaved N-EVENT-REPORT, spec.md
	// §4.3); forward it to DIMSE rather than falling through to AA-8.
	for _, s := range []State{Sta8, Sta9, Sta10, Sta11, Sta12} {
		set(s, EvRecvPDataTF, r(s, ActionIssuePDataIndication))
	}

	// AA-1..AA-7: local abort request, any state Sta3..Sta12.
	for _, s := range []State{Sta3, Sta4, Sta5, Sta6, Sta7, Sta8, Sta9, Sta10, Sta11, Sta12} {
		set(s, EvAAbortRequest, r(Sta13, ActionSendAbort, ActionStartARTIM))
	}

	// Peer A-ABORT received in any non-idle, non-Sta13 state: surface
	// A-P-ABORT and close.
	for _, s := range []State{Sta2, Sta3, Sta4, Sta5, Sta6, Sta7, Sta8, Sta9, Sta10, Sta11, Sta12} {
		set(s, EvRecvAbort, r(Sta1, ActionIssueAPAbortIndication, ActionCloseTransport))
	}

	// Transport closed unexpectedly in any association state surfaces
	// A-P-ABORT (the peer never sent A-ABORT, but the effect is the same).
	for _, s := range []State{Sta3, Sta4, Sta6, Sta7, Sta8, Sta9, Sta10, Sta11, Sta12} {
		set(s, EvTransportClosed, r(Sta1, ActionIssueAPAbortIndication))
	}

	// Sta13: awaiting socket close; PDUs are discarded, ARTIM forces close.
	set(Sta13, EvARTIMExpired, r(Sta1, ActionCloseTransport))
	set(Sta13, EvTransportClosed, r(Sta1))
	for _, e := range []Event{
		EvRecvAssociateRQ, EvRecvAssociateAC, EvRecvAssociateRJ,
		EvRecvPDataTF, EvRecvReleaseRQ, EvRecvReleaseRP, EvRecvAbort, EvInvalidPDU,
	} {
		set(Sta13, e, r(Sta13)) // silently discarded, per spec.md §4.3
	}

	return t
}

// Evaluate is the pure function from (state, event) to (actions, next
// state) required by spec.md §4.3/§8. Any pair absent from the table
// resolves to the AA-8 action: send A-ABORT, issue A-P-ABORT
// indication, next state Sta13 — the totality invariant. The one
// exception is Sta1, where there is no association to abort: an absent
// pair there yields no actions and stays in Sta1.
func Evaluate(state State, event Event) Result {
	if res, ok := table[transitionKey{state, event}]; ok {
		return res
	}
	if state == Sta1 {
		// Idle: nothing to abort; unexpected events are simply ignored.
		return r(Sta1)
	}
	return r(Sta13, ActionSendAbort, ActionIssueAPAbortIndication)
}
