// Package acse implements the Association Control Service Element:
// building and parsing A-ASSOCIATE-RQ/AC/RJ, presentation context and
// role negotiation (PS3.8 Annex D, PS3.7 Annex D). Grounded on the
// teacher's pdu.Layer presentation-context parsing, generalized into
// immutable negotiated views rather than mutated "proposed" objects
// (spec.md §9 redesign flag).
package acse

import (
	"fmt"

	"github.com/caio-sobreiro/dicomcore/ulpdu"
)

// ProposedContext is one abstract syntax a requestor offers, together
// with the transfer syntaxes and roles it is willing to negotiate.
type ProposedContext struct {
	ID               byte
	AbstractSyntax   string
	TransferSyntaxes []string
	SCURole          bool // proposed SCU role; used only when RoleProposed is set
	SCPRole          bool // proposed SCP role; used only when RoleProposed is set
	RoleProposed     bool // whether an SCP/SCU Role Selection item was sent
}

// NegotiatedContext is the immutable, final view of one presentation
// context after acceptance — never mutated afterwards (spec.md §3
// invariant: "accepted contexts are immutable for the association's
// lifetime").
type NegotiatedContext struct {
	ID             byte
	AbstractSyntax string
	TransferSyntax string
	Result         byte
	SCURole        bool
	SCPRole        bool
}

// Accepted reports whether the peer accepted this context.
func (n NegotiatedContext) Accepted() bool { return n.Result == ulpdu.ResultAcceptance }

// RequestParams are the caller-supplied inputs to BuildAssociateRQ.
type RequestParams struct {
	CallingAETitle            string
	CalledAETitle             string
	MaximumLength             uint32
	ImplementationClassUID    string
	ImplementationVersionName string
	Contexts                  []ProposedContext
	AsyncOpsWindow            *ulpdu.AsyncOperationsWindow
	ExtendedNegotiations      []ulpdu.SOPClassExtendedNegotiation
	CommonExtended            []ulpdu.SOPClassCommonExtendedNegotiation
	UserIdentity              *ulpdu.UserIdentityRQ
}

// BuildAssociateRQ assembles an A-ASSOCIATE-RQ PDU value from the
// caller's requested contexts and user information (spec.md §4.4).
func BuildAssociateRQ(p RequestParams) *ulpdu.AAssociateRQ {
	rq := &ulpdu.AAssociateRQ{
		CalledAETitle:     p.CalledAETitle,
		CallingAETitle:    p.CallingAETitle,
		ApplicationCtxUID: ulpdu.ApplicationContextUID,
		UserInfo: ulpdu.UserInformation{
			MaximumLength:             p.MaximumLength,
			ImplementationClassUID:    p.ImplementationClassUID,
			ImplementationVersionName: p.ImplementationVersionName,
			AsyncOpsWindow:            p.AsyncOpsWindow,
			ExtendedNegotiations:      p.ExtendedNegotiations,
			CommonExtended:            p.CommonExtended,
			UserIdentityRQ:            p.UserIdentity,
		},
	}
	for _, c := range p.Contexts {
		rq.PresentationCtxs = append(rq.PresentationCtxs, ulpdu.PresentationContextRQ{
			ID:               c.ID,
			AbstractSyntax:   c.AbstractSyntax,
			TransferSyntaxes: c.TransferSyntaxes,
		})
		if c.RoleProposed {
			scu, scp := c.SCURole, c.SCPRole
			rq.UserInfo.RoleSelections = append(rq.UserInfo.RoleSelections, ulpdu.RoleSelection{
				SOPClassUID: c.AbstractSyntax,
				SCURole:     scu,
				SCPRole:     scp,
			})
		}
	}
	return rq
}

// ReconcileAccepted builds the NegotiatedContext set from an
// A-ASSOCIATE-AC in response to the proposed contexts (spec.md §4.4):
//  1. a proposed ID missing from the AC is treated as refused;
//  2. accepted contexts keep the single transfer syntax the AC returned;
//  3. role selection follows Annex D intersection semantics.
func ReconcileAccepted(proposed []ProposedContext, ac *ulpdu.AAssociateAC) map[byte]NegotiatedContext {
	byID := make(map[byte]ulpdu.PresentationContextAC, len(ac.PresentationCtxs))
	for _, pc := range ac.PresentationCtxs {
		byID[pc.ID] = pc
	}
	peerRoles := make(map[string]ulpdu.RoleSelection, len(ac.UserInfo.RoleSelections))
	for _, rs := range ac.UserInfo.RoleSelections {
		peerRoles[rs.SOPClassUID] = rs
	}

	out := make(map[byte]NegotiatedContext, len(proposed))
	for _, p := range proposed {
		ackd, ok := byID[p.ID]
		if !ok {
			out[p.ID] = NegotiatedContext{ID: p.ID, AbstractSyntax: p.AbstractSyntax, Result: ulpdu.ResultNoReasonGiven}
			continue
		}
		nc := NegotiatedContext{
			ID:             p.ID,
			AbstractSyntax: p.AbstractSyntax,
			TransferSyntax: ackd.TransferSyntax,
			Result:         ackd.Result,
			SCURole:        true,
			SCPRole:        false,
		}
		if peer, ok := peerRoles[p.AbstractSyntax]; ok && p.RoleProposed {
			// Intersection: a role is granted to us only if both peers
			// agreed to offer it (spec.md §4.4 point 3).
			nc.SCURole = p.SCURole && peer.SCURole
			nc.SCPRole = p.SCPRole && peer.SCPRole
		}
		out[p.ID] = nc
	}
	return out
}

// RequestHandler decides the fate of an inbound A-ASSOCIATE-RQ
// (spec.md §4.4 "acceptor side"). It returns the per-context
// acceptance decision; Accept=false rejects the whole association.
type RequestHandler interface {
	Negotiate(rq *ulpdu.AAssociateRQ) Decision
}

// Decision is the application-layer verdict on an inbound association.
type Decision struct {
	Accept  bool
	Reject  RejectReason
	Results map[byte]AcceptedContext // per-context decision, keyed by ID
}

// AcceptedContext is the acceptor's per-context verdict.
type AcceptedContext struct {
	Result         byte
	TransferSyntax string
}

// RejectReason carries the A-ASSOCIATE-RJ tuple for a rejected request.
type RejectReason struct {
	Result byte
	Source byte
	Reason byte
}

// BuildAssociateAC renders Decision into the wire PDU, skipping no
// contexts (every proposed ID from the RQ is echoed back, accepted or
// refused, per PS3.8 §9.3.3.3).
func BuildAssociateAC(rq *ulpdu.AAssociateRQ, calledAET string, d Decision, maxLength uint32, implClassUID, implVersion string) (*ulpdu.AAssociateAC, error) {
	if !d.Accept {
		return nil, fmt.Errorf("acse: decision rejects association")
	}
	ac := &ulpdu.AAssociateAC{
		CalledAETitle:     calledAET,
		CallingAETitle:    rq.CallingAETitle,
		ApplicationCtxUID: ulpdu.ApplicationContextUID,
		UserInfo: ulpdu.UserInformation{
			MaximumLength:             maxLength,
			ImplementationClassUID:    implClassUID,
			ImplementationVersionName: implVersion,
		},
	}
	for _, pc := range rq.PresentationCtxs {
		res, ok := d.Results[pc.ID]
		if !ok {
			res = AcceptedContext{Result: ulpdu.ResultNoReasonGiven}
		}
		ac.PresentationCtxs = append(ac.PresentationCtxs, ulpdu.PresentationContextAC{
			ID:             pc.ID,
			Result:         res.Result,
			TransferSyntax: res.TransferSyntax,
		})
	}
	return ac, nil
}

// BuildAssociateRJ renders a rejection tuple into the wire PDU.
func BuildAssociateRJ(reason RejectReason) *ulpdu.AAssociateRJ {
	return &ulpdu.AAssociateRJ{Result: reason.Result, Source: reason.Source, Reason: reason.Reason}
}
