package dimse

// This file supplements the distilled spec with the Normalized DIMSE
// services (PS3.7 Annex E): N-EVENT-REPORT, N-GET, N-SET, N-ACTION,
// N-CREATE, N-DELETE. The teacher implements only the Composite
// services (C-STORE/C-FIND/C-GET/C-MOVE/C-ECHO); these constructors
// follow the same builder shape as createDIMSECommand, generalized to
// the Command type in command.go.

// NewCCancelRQ builds a C-CANCEL-RQ for the request identified by
// messageID, the sole field PS3.7 9.3.1.5 requires.
func NewCCancelRQ(messageID uint16) Command {
	return Command{
		CommandField:              CCancelRQ,
		MessageIDBeingRespondedTo: messageID,
		CommandDataSetType:        NoDataSet,
	}
}

// NewNEventReportRQ builds an N-EVENT-REPORT-RQ (PS3.7 9.3.5).
func NewNEventReportRQ(sopClassUID, sopInstanceUID string, eventTypeID uint16, hasDataSet bool) Command {
	return Command{
		CommandField:           NEventReportRQ,
		AffectedSOPClassUID:    sopClassUID,
		AffectedSOPInstanceUID: sopInstanceUID,
		EventTypeID:            eventTypeID,
		CommandDataSetType:     dataSetType(hasDataSet),
	}
}

// NewNGetRQ builds an N-GET-RQ (PS3.7 9.3.2). attrs lists the
// (group<<16|element) tags of the requested attributes.
func NewNGetRQ(sopClassUID, sopInstanceUID string, attrs []uint32) Command {
	return Command{
		CommandField:            NGetRQ,
		RequestedSOPClassUID:    sopClassUID,
		RequestedSOPInstanceUID: sopInstanceUID,
		AttributeIdentifierList: attrs,
		CommandDataSetType:      NoDataSet,
	}
}

// NewNSetRQ builds an N-SET-RQ (PS3.7 9.3.3); the modification list
// travels as the associated data set.
func NewNSetRQ(sopClassUID, sopInstanceUID string) Command {
	return Command{
		CommandField:           NSetRQ,
		RequestedSOPClassUID:   sopClassUID,
		RequestedSOPInstanceUID: sopInstanceUID,
		CommandDataSetType:     0x0001,
	}
}

// NewNActionRQ builds an N-ACTION-RQ (PS3.7 9.3.4).
func NewNActionRQ(sopClassUID, sopInstanceUID string, actionTypeID uint16, hasDataSet bool) Command {
	return Command{
		CommandField:            NActionRQ,
		RequestedSOPClassUID:    sopClassUID,
		RequestedSOPInstanceUID: sopInstanceUID,
		ActionTypeID:            actionTypeID,
		CommandDataSetType:      dataSetType(hasDataSet),
	}
}

// NewNCreateRQ builds an N-CREATE-RQ (PS3.7 9.3.6). sopInstanceUID may
// be empty to let the SCP assign one.
func NewNCreateRQ(sopClassUID, sopInstanceUID string, hasDataSet bool) Command {
	return Command{
		CommandField:           NCreateRQ,
		AffectedSOPClassUID:    sopClassUID,
		AffectedSOPInstanceUID: sopInstanceUID,
		CommandDataSetType:     dataSetType(hasDataSet),
	}
}

// NewNDeleteRQ builds an N-DELETE-RQ (PS3.7 9.3.7).
func NewNDeleteRQ(sopClassUID, sopInstanceUID string) Command {
	return Command{
		CommandField:           NDeleteRQ,
		RequestedSOPClassUID:   sopClassUID,
		RequestedSOPInstanceUID: sopInstanceUID,
		CommandDataSetType:     NoDataSet,
	}
}

func dataSetType(hasDataSet bool) uint16 {
	if hasDataSet {
		return 0x0001
	}
	return NoDataSet
}
