package association

import (
	"context"
	"fmt"

	"github.com/caio-sobreiro/dicomcore/dicom"
	"github.com/caio-sobreiro/dicomcore/dimse"
	dcmerrors "github.com/caio-sobreiro/dicomcore/errors"
)

const verificationSOPClassUID = "1.2.840.10008.1.1"

// ContextIDFor returns the negotiated Presentation Context ID whose
// abstract syntax matches, and whether it was accepted. Grounded on the
// teacher's Association.GetPresentationContextID, generalized to read
// from the immutable NegotiatedContext map instead of a mutable lookup.
func (a *Association) ContextIDFor(abstractSyntax string) (byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for id, ctx := range a.contexts {
		if ctx.AbstractSyntax == abstractSyntax && ctx.Accepted() {
			return id, nil
		}
	}
	return 0, fmt.Errorf("association: %w for %q", dcmerrors.ErrNoPresentationCtx, abstractSyntax)
}

// SendCEcho performs a C-ECHO verification and returns its status
// (spec.md §4.4/§8 scenario 1). Grounded on client.Association.SendCEcho.
func (a *Association) SendCEcho(ctx context.Context) (uint16, error) {
	contextID, err := a.ContextIDFor(verificationSOPClassUID)
	if err != nil {
		return 0, err
	}
	respCh, err := a.provider.Request(ctx, contextID, dimse.Command{
		CommandField:        dimse.CEchoRQ,
		AffectedSOPClassUID: verificationSOPClassUID,
		CommandDataSetType:  dimse.NoDataSet,
	}, nil)
	if err != nil {
		return 0, err
	}
	ex, ok := <-respCh
	if !ok {
		return 0, fmt.Errorf("association: C-ECHO response channel closed without a reply")
	}
	return ex.Command.Status, nil
}

// SendCStore stores one SOP Instance on the peer, returning its final
// status (spec.md §8 scenario 2). Grounded on client.Association.SendCStore.
func (a *Association) SendCStore(ctx context.Context, sopClassUID, sopInstanceUID string, ds *dicom.Dataset) (uint16, error) {
	contextID, err := a.ContextIDFor(sopClassUID)
	if err != nil {
		return 0, err
	}
	respCh, err := a.provider.Request(ctx, contextID, dimse.Command{
		CommandField:           dimse.CStoreRQ,
		AffectedSOPClassUID:    sopClassUID,
		AffectedSOPInstanceUID: sopInstanceUID,
		Priority:               0x0000,
		CommandDataSetType:     0x0001,
	}, ds.EncodeDataset())
	if err != nil {
		return 0, err
	}
	ex, ok := <-respCh
	if !ok {
		return 0, fmt.Errorf("association: C-STORE response channel closed without a reply")
	}
	return ex.Command.Status, nil
}

// FindResult is one streamed C-FIND match, or the terminal status once
// Dataset is nil.
type FindResult struct {
	Status  uint16
	Dataset *dicom.Dataset
}

// SendCFind issues a C-FIND query, returning every Pending match
// followed by the terminal status (spec.md §8 scenario 6). Grounded on
// client.Association.SendCFind, generalized to stream via a channel
// instead of buffering every response.
func (a *Association) SendCFind(ctx context.Context, sopClassUID string, query *dicom.Dataset) (<-chan FindResult, error) {
	contextID, err := a.ContextIDFor(sopClassUID)
	if err != nil {
		return nil, err
	}
	respCh, err := a.provider.Request(ctx, contextID, dimse.Command{
		CommandField:        dimse.CFindRQ,
		AffectedSOPClassUID: sopClassUID,
		Priority:            0x0000,
		CommandDataSetType:  0x0001,
	}, query.EncodeDataset())
	if err != nil {
		return nil, err
	}

	out := make(chan FindResult, 4)
	go func() {
		defer close(out)
		for ex := range respCh {
			var ds *dicom.Dataset
			if len(ex.Dataset) > 0 {
				parsed, perr := dicom.ParseDataset(ex.Dataset)
				if perr == nil {
					ds = parsed
				}
			}
			out <- FindResult{Status: ex.Command.Status, Dataset: ds}
		}
	}()
	return out, nil
}

// SendCCancel cancels an outstanding C-FIND/C-GET/C-MOVE request
// identified by messageID on the given context (PS3.7 9.3.1.5).
// Grounded on client/cancel.go.
func (a *Association) SendCCancel(ctx context.Context, contextID byte, messageID uint16) error {
	return a.SendDIMSE(ctx, contextID, dimse.NewCCancelRQ(messageID), nil)
}
