package acse

import (
	"testing"

	"github.com/caio-sobreiro/dicomcore/ulpdu"
)

const verificationSOP = "1.2.840.10008.1.1"
const implicitVRLE = "1.2.840.10008.1.2"

func TestBuildAssociateRQContexts(t *testing.T) {
	rq := BuildAssociateRQ(RequestParams{
		CallingAETitle: "SCU_AET",
		CalledAETitle:  "SCP_AET",
		MaximumLength:  16384,
		Contexts: []ProposedContext{
			{ID: 1, AbstractSyntax: verificationSOP, TransferSyntaxes: []string{implicitVRLE}},
		},
	})
	if len(rq.PresentationCtxs) != 1 {
		t.Fatalf("expected 1 presentation context, got %d", len(rq.PresentationCtxs))
	}
	if rq.PresentationCtxs[0].AbstractSyntax != verificationSOP {
		t.Fatalf("unexpected abstract syntax %q", rq.PresentationCtxs[0].AbstractSyntax)
	}
	if rq.ApplicationCtxUID != ulpdu.ApplicationContextUID {
		t.Fatalf("unexpected application context %q", rq.ApplicationCtxUID)
	}
}

func TestReconcileAcceptedMissingContextRefused(t *testing.T) {
	proposed := []ProposedContext{
		{ID: 1, AbstractSyntax: verificationSOP, TransferSyntaxes: []string{implicitVRLE}},
	}
	ac := &ulpdu.AAssociateAC{} // AC omits context 1 entirely
	got := ReconcileAccepted(proposed, ac)
	nc, ok := got[1]
	if !ok {
		t.Fatalf("expected an entry for context 1")
	}
	if nc.Accepted() {
		t.Fatalf("expected missing context to be treated as refused")
	}
}

func TestReconcileAcceptedRoleIntersection(t *testing.T) {
	proposed := []ProposedContext{
		{ID: 1, AbstractSyntax: verificationSOP, SCURole: true, SCPRole: true, RoleProposed: true},
	}
	ac := &ulpdu.AAssociateAC{
		PresentationCtxs: []ulpdu.PresentationContextAC{
			{ID: 1, Result: ulpdu.ResultAcceptance, TransferSyntax: implicitVRLE},
		},
		UserInfo: ulpdu.UserInformation{
			RoleSelections: []ulpdu.RoleSelection{
				{SOPClassUID: verificationSOP, SCURole: false, SCPRole: true},
			},
		},
	}
	got := ReconcileAccepted(proposed, ac)
	nc := got[1]
	if !nc.Accepted() {
		t.Fatalf("expected context to be accepted")
	}
	if nc.SCURole {
		t.Fatalf("expected SCU role to be denied by intersection (peer refused it)")
	}
	if !nc.SCPRole {
		t.Fatalf("expected SCP role to be granted by intersection")
	}
}

func TestBuildAssociateACEchoesAllProposedContexts(t *testing.T) {
	rq := &ulpdu.AAssociateRQ{
		CallingAETitle: "SCU",
		PresentationCtxs: []ulpdu.PresentationContextRQ{
			{ID: 1, AbstractSyntax: verificationSOP, TransferSyntaxes: []string{implicitVRLE}},
			{ID: 3, AbstractSyntax: "1.2.840.10008.5.1.4.1.1.7", TransferSyntaxes: []string{implicitVRLE}},
		},
	}
	d := Decision{
		Accept: true,
		Results: map[byte]AcceptedContext{
			1: {Result: ulpdu.ResultAcceptance, TransferSyntax: implicitVRLE},
			// context 3 intentionally left out of Results: must still be echoed, refused
		},
	}
	ac, err := BuildAssociateAC(rq, "SCP", d, 16384, "1.2.3.4", "CORE_01")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ac.PresentationCtxs) != 2 {
		t.Fatalf("expected both proposed contexts echoed back, got %d", len(ac.PresentationCtxs))
	}
	if ac.PresentationCtxs[1].Result == ulpdu.ResultAcceptance {
		t.Fatalf("expected context 3 (absent from Results) to be refused")
	}
}

func TestBuildAssociateACRejectsWhenDecisionRejects(t *testing.T) {
	rq := &ulpdu.AAssociateRQ{}
	_, err := BuildAssociateAC(rq, "SCP", Decision{Accept: false}, 16384, "1.2.3.4", "CORE_01")
	if err == nil {
		t.Fatalf("expected an error when Decision.Accept is false")
	}
}

func TestBuildAssociateRJ(t *testing.T) {
	rj := BuildAssociateRJ(RejectReason{
		Result: ulpdu.RJResultRejectedPermanent,
		Source: ulpdu.RJSourceACSEUser,
		Reason: 1,
	})
	if rj.Result != ulpdu.RJResultRejectedPermanent {
		t.Fatalf("unexpected result %d", rj.Result)
	}
}
