// Package services provides reusable DICOM service implementations:
// a command-field dispatcher and the standard response builders,
// adapted from the teacher's types.Message-based registry onto
// dimse.Command so it can be handed directly to
// association.Association.Provider().SetHandler (spec.md §4.6/§4.7).
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/caio-sobreiro/dicomcore/dimse"
)

// CommandHandler processes one DIMSE command field.
type CommandHandler interface {
	HandleDIMSE(ctx context.Context, contextID byte, cmd dimse.Command, dataset []byte, responder dimse.Responder) (dimse.Command, []byte, error)
}

// Registry routes incoming DIMSE requests to the handler registered for
// their command field. Registry itself implements dimse.Handler, so it
// can be installed as the sole SCP dispatch target for an association.
type Registry struct {
	handlers map[uint16]CommandHandler
}

// NewRegistry creates an empty registry. Use RegisterHandler to add
// service handlers before passing the Registry to dimse.Provider.SetHandler.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[uint16]CommandHandler)}
}

// RegisterHandler registers handler for commandField (e.g. dimse.CEchoRQ).
// Only one handler may be registered per command field.
func (r *Registry) RegisterHandler(commandField uint16, handler CommandHandler) {
	r.handlers[commandField] = handler
}

// UnregisterHandler removes the handler for commandField.
func (r *Registry) UnregisterHandler(commandField uint16) {
	delete(r.handlers, commandField)
}

// HasHandler reports whether a handler is registered for commandField.
func (r *Registry) HasHandler(commandField uint16) bool {
	_, ok := r.handlers[commandField]
	return ok
}

// RegisteredCommands lists every command field with a registered handler.
func (r *Registry) RegisteredCommands() []uint16 {
	out := make([]uint16, 0, len(r.handlers))
	for cmd := range r.handlers {
		out = append(out, cmd)
	}
	return out
}

// HandleDIMSE implements dimse.Handler: it dispatches cmd to the handler
// registered for its CommandField, or synthesizes a Failure response if
// none is registered.
func (r *Registry) HandleDIMSE(ctx context.Context, contextID byte, cmd dimse.Command, dataset []byte, responder dimse.Responder) (dimse.Command, []byte, error) {
	handler, ok := r.handlers[cmd.CommandField]
	if !ok {
		slog.WarnContext(ctx, "no handler registered for DIMSE command", "command_field", fmt.Sprintf("0x%04x", cmd.CommandField))
		return CreateErrorResponse(cmd, dimse.StatusFailureLow), nil, nil
	}
	return handler.HandleDIMSE(ctx, contextID, cmd, dataset, responder)
}

// CreateErrorResponse builds a standard failure response for req,
// setting the response command bit and echoing its identity fields.
func CreateErrorResponse(req dimse.Command, status uint16) dimse.Command {
	return dimse.Command{
		CommandField:              dimse.ResponseFor(req.CommandField),
		MessageIDBeingRespondedTo: req.MessageID,
		AffectedSOPClassUID:       req.AffectedSOPClassUID,
		CommandDataSetType:        dimse.NoDataSet,
		Status:                    status,
	}
}
