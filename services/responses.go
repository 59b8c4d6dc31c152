package services

import (
	"github.com/caio-sobreiro/dicomcore/dimse"
)

const verificationSOPClassUID = "1.2.840.10008.1.1"

// ResponseBuilder provides convenient methods for creating standard DIMSE
// response commands.
//
// These builders ensure that response messages are properly formatted
// according to the DICOM standard and include all required fields.
type ResponseBuilder struct {
	request dimse.Command
}

// NewResponseBuilder creates a new response builder for the given request.
//
// The builder will automatically populate common fields like
// MessageIDBeingRespondedTo and AffectedSOPClassUID from the request.
func NewResponseBuilder(request dimse.Command) *ResponseBuilder {
	return &ResponseBuilder{request: request}
}

// CEchoResponse creates a C-ECHO-RSP command with no dataset.
func (b *ResponseBuilder) CEchoResponse(status uint16) dimse.Command {
	return dimse.Command{
		CommandField:              dimse.CEchoRSP,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       verificationSOPClassUID,
		CommandDataSetType:        dimse.NoDataSet,
		Status:                    status,
	}
}

// CFindResponse creates a C-FIND-RSP command.
//
// For pending responses with matches, set status=dimse.StatusPending and
// hasDataset=true. For the final response, set status=dimse.StatusSuccess
// and hasDataset=false.
func (b *ResponseBuilder) CFindResponse(status uint16, hasDataset bool) dimse.Command {
	datasetType := dimse.NoDataSet
	if hasDataset {
		datasetType = 0x0000
	}

	return dimse.Command{
		CommandField:              dimse.CFindRSP,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       b.request.AffectedSOPClassUID,
		CommandDataSetType:        datasetType,
		Status:                    status,
	}
}

// CMoveResponse creates a C-MOVE-RSP command with sub-operation counts.
//
// For pending responses during the move's C-STORE sub-operations, use
// dimse.StatusPending. For the final response, use dimse.StatusSuccess.
func (b *ResponseBuilder) CMoveResponse(status uint16, completed, failed, warning, remaining uint16) dimse.Command {
	return dimse.Command{
		CommandField:              dimse.CMoveRSP,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       b.request.AffectedSOPClassUID,
		CommandDataSetType:        dimse.NoDataSet,
		Status:                    status,
		NumberOfCompletedSubops:   completed,
		NumberOfFailedSubops:      failed,
		NumberOfWarningSubops:     warning,
		NumberOfRemainingSubops:   remaining,
	}
}

// CStoreResponse creates a C-STORE-RSP command with no dataset.
func (b *ResponseBuilder) CStoreResponse(status uint16, sopInstanceUID string) dimse.Command {
	if sopInstanceUID == "" {
		sopInstanceUID = b.request.AffectedSOPInstanceUID
	}

	return dimse.Command{
		CommandField:              dimse.CStoreRSP,
		MessageIDBeingRespondedTo: b.request.MessageID,
		AffectedSOPClassUID:       b.request.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    sopInstanceUID,
		CommandDataSetType:        dimse.NoDataSet,
		Status:                    status,
	}
}

// Helper functions for creating responses without a builder instance.

// NewCEchoResponse creates a C-ECHO-RSP command from a request.
func NewCEchoResponse(request dimse.Command, status uint16) dimse.Command {
	return NewResponseBuilder(request).CEchoResponse(status)
}

// NewCFindPendingResponse creates a pending C-FIND-RSP command (with dataset).
func NewCFindPendingResponse(request dimse.Command) dimse.Command {
	return NewResponseBuilder(request).CFindResponse(dimse.StatusPending, true)
}

// NewCFindSuccessResponse creates a final success C-FIND-RSP command (no dataset).
func NewCFindSuccessResponse(request dimse.Command) dimse.Command {
	return NewResponseBuilder(request).CFindResponse(dimse.StatusSuccess, false)
}

// NewCFindErrorResponse creates an error C-FIND-RSP command.
func NewCFindErrorResponse(request dimse.Command, status uint16) dimse.Command {
	return NewResponseBuilder(request).CFindResponse(status, false)
}

// NewCMoveSuccessResponse creates a final success C-MOVE-RSP command with sub-operation counts.
func NewCMoveSuccessResponse(request dimse.Command, completed, failed, warning uint16) dimse.Command {
	return NewResponseBuilder(request).CMoveResponse(dimse.StatusSuccess, completed, failed, warning, 0)
}

// NewCMovePendingResponse creates a pending C-MOVE-RSP command with sub-operation counts.
func NewCMovePendingResponse(request dimse.Command, completed, failed, warning, remaining uint16) dimse.Command {
	return NewResponseBuilder(request).CMoveResponse(dimse.StatusPending, completed, failed, warning, remaining)
}

// NewCMoveErrorResponse creates an error C-MOVE-RSP command.
func NewCMoveErrorResponse(request dimse.Command, status uint16) dimse.Command {
	return NewResponseBuilder(request).CMoveResponse(status, 0, 0, 0, 0)
}

// NewCStoreResponse creates a C-STORE-RSP command.
func NewCStoreResponse(request dimse.Command, status uint16) dimse.Command {
	return NewResponseBuilder(request).CStoreResponse(status, "")
}
