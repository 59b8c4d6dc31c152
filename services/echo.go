// Package services provides reusable DICOM service implementations.
//
// This package contains standard DICOM service implementations that can be
// used by any DICOM server application. These implementations follow the
// DICOM standard and have no external backend dependencies.
package services

import (
	"context"
	"log/slog"

	"github.com/caio-sobreiro/dicomcore/dimse"
)

// EchoService handles C-ECHO verification requests.
//
// C-ECHO is used to verify connectivity and application-level communication
// between two DICOM Application Entities (AEs). It's the DICOM equivalent
// of a "ping" operation.
//
// The C-ECHO service is stateless and requires no external dependencies.
// It simply echoes back a success response to verify that the DICOM
// application entity is operational.
type EchoService struct {
	// No configuration or dependencies needed for echo service
}

// NewEchoService creates a new C-ECHO service instance.
func NewEchoService() *EchoService {
	return &EchoService{}
}

// HandleDIMSE processes a C-ECHO request and returns a success response.
//
// According to DICOM standard PS3.4, C-ECHO has no dataset and simply
// returns a status indicating whether the AE is operational.
//
// This method implements the CommandHandler interface.
func (s *EchoService) HandleDIMSE(ctx context.Context, contextID byte, cmd dimse.Command, dataset []byte, responder dimse.Responder) (dimse.Command, []byte, error) {
	slog.DebugContext(ctx, "processing C-ECHO request",
		"context_id", contextID,
		"message_id", cmd.MessageID,
		"affected_sop_class", cmd.AffectedSOPClassUID)

	response := dimse.Command{
		CommandField:              dimse.CEchoRSP,
		MessageIDBeingRespondedTo: cmd.MessageID,
		AffectedSOPClassUID:       cmd.AffectedSOPClassUID,
		CommandDataSetType:        dimse.NoDataSet,
		Status:                    dimse.StatusSuccess,
	}

	slog.InfoContext(ctx, "C-ECHO request successful", "message_id", cmd.MessageID)

	return response, nil, nil
}

// HealthCheck verifies that the echo service is operational.
//
// Since echo service is stateless with no external dependencies,
// this always returns healthy.
func (s *EchoService) HealthCheck(ctx context.Context) error {
	return nil
}
