// Package dimse implements the DICOM Message Service Element: the
// Command Set codec (always Implicit VR Little Endian per PS3.7
// Annex E), PDV fragmentation/reassembly, and the request/response
// provider that correlates DIMSE exchanges across a P-DATA stream.
// Grounded on the teacher's parseDIMSECommand/createDIMSECommand
// element walk, generalized to a full tag table and both directions.
package dimse

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Command Field values (PS3.7 Table 9-1, Annex E).
const (
	CStoreRQ        uint16 = 0x0001
	CStoreRSP       uint16 = 0x8001
	CGetRQ          uint16 = 0x0010
	CGetRSP         uint16 = 0x8010
	CFindRQ         uint16 = 0x0020
	CFindRSP        uint16 = 0x8020
	CMoveRQ         uint16 = 0x0021
	CMoveRSP        uint16 = 0x8021
	CEchoRQ         uint16 = 0x0030
	CEchoRSP        uint16 = 0x8030
	CCancelRQ       uint16 = 0x0FFF
	NEventReportRQ  uint16 = 0x0100
	NEventReportRSP uint16 = 0x8100
	NGetRQ          uint16 = 0x0110
	NGetRSP         uint16 = 0x8110
	NSetRQ          uint16 = 0x0120
	NSetRSP         uint16 = 0x8120
	NActionRQ       uint16 = 0x0130
	NActionRSP      uint16 = 0x8130
	NCreateRQ       uint16 = 0x0140
	NCreateRSP      uint16 = 0x8140
	NDeleteRQ       uint16 = 0x0150
	NDeleteRSP      uint16 = 0x8150
)

// Status codes (PS3.7 Annex C); ranges, not exhaustive enumerations.
const (
	StatusSuccess           uint16 = 0x0000
	StatusCancel            uint16 = 0xFE00
	StatusWarningLow        uint16 = 0x0001
	StatusWarningHigh       uint16 = 0x01FF
	StatusFailureLow        uint16 = 0x0100
	StatusFailureHigh       uint16 = 0xFDFF
	StatusPendingLow        uint16 = 0xFF00
	StatusPendingHigh       uint16 = 0xFFFF
	StatusPending           uint16 = 0xFF00
	StatusPendingWarning    uint16 = 0xFF01
)

// IsPending reports whether status falls in the Pending range.
func IsPending(status uint16) bool { return status >= StatusPendingLow && status <= StatusPendingHigh }

// IsWarning reports whether status falls in the Warning range.
func IsWarning(status uint16) bool { return status >= StatusWarningLow && status <= StatusWarningHigh }

// IsFailure reports whether status falls in the Failure range.
func IsFailure(status uint16) bool { return status >= StatusFailureLow && status <= StatusFailureHigh }

// DataSetType values for the Command Data Set Type (0000,0800) element.
const NoDataSet uint16 = 0x0101

// ResponseFor maps a DIMSE request command to its response command.
func ResponseFor(request uint16) uint16 {
	switch request {
	case CCancelRQ:
		return 0 // C-CANCEL has no response
	default:
		return request | 0x8000
	}
}

// IsRequest reports whether command is an -RQ (odd response bit unset
// except for the 0x8000 response flag).
func IsRequest(command uint16) bool { return command&0x8000 == 0 }

// Command is a decoded DIMSE Command Set — the superset of fields used
// across C-STORE/C-FIND/C-GET/C-MOVE/C-ECHO/C-CANCEL and the N-services.
// Not every field is meaningful for every CommandField value.
type Command struct {
	CommandField              uint16
	MessageID                 uint16
	MessageIDBeingRespondedTo uint16
	AffectedSOPClassUID       string
	AffectedSOPInstanceUID    string
	RequestedSOPClassUID      string
	RequestedSOPInstanceUID   string
	MoveDestination           string
	Priority                  uint16
	CommandDataSetType        uint16
	Status                    uint16
	NumberOfRemainingSubops   uint16
	NumberOfCompletedSubops   uint16
	NumberOfFailedSubops      uint16
	NumberOfWarningSubops     uint16
	EventTypeID               uint16
	ActionTypeID              uint16
	AttributeIdentifierList   []uint32
	ErrorComment              string
}

// command element tags, group 0000 (PS3.7 Annex E.1).
const (
	tagCommandField              = 0x0100
	tagMessageID                 = 0x0110
	tagMessageIDBeingRespondedTo = 0x0120
	tagAffectedSOPClassUID       = 0x0002
	tagRequestedSOPClassUID      = 0x0003
	tagAffectedSOPInstanceUID    = 0x1000
	tagRequestedSOPInstanceUID   = 0x1001
	tagMoveDestination           = 0x0600
	tagPriority                  = 0x0700
	tagCommandDataSetType        = 0x0800
	tagStatus                    = 0x0900
	tagNumberOfRemainingSubops   = 0x1020
	tagNumberOfCompletedSubops   = 0x1021
	tagNumberOfFailedSubops      = 0x1022
	tagNumberOfWarningSubops     = 0x1023
	tagEventTypeID               = 0x1002
	tagActionTypeID              = 0x1008
	tagErrorComment              = 0x0902
)

// EncodeCommand renders a Command into its Implicit VR Little Endian
// byte stream, the wire form DIMSE always uses for the Command Set
// regardless of the negotiated transfer syntax for the data set
// (PS3.7 Annex E, spec.md §4.5).
func EncodeCommand(c Command) []byte {
	var buf []byte
	putUint16 := func(tag uint32, v uint16) {
		buf = appendElementHeader(buf, tag, 2)
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, v)
		buf = append(buf, b...)
	}
	putUID := func(tag uint32, v string) {
		if v == "" {
			return
		}
		b := []byte(v)
		if len(b)%2 == 1 {
			b = append(b, 0x00)
		}
		buf = appendElementHeader(buf, tag, uint32(len(b)))
		buf = append(buf, b...)
	}

	putUint16(tagCommandField, c.CommandField)
	if c.MessageID != 0 || IsRequest(c.CommandField) {
		putUint16(tagMessageID, c.MessageID)
	}
	if c.MessageIDBeingRespondedTo != 0 {
		putUint16(tagMessageIDBeingRespondedTo, c.MessageIDBeingRespondedTo)
	}
	putUID(tagAffectedSOPClassUID, c.AffectedSOPClassUID)
	putUID(tagRequestedSOPClassUID, c.RequestedSOPClassUID)
	putUID(tagAffectedSOPInstanceUID, c.AffectedSOPInstanceUID)
	putUID(tagRequestedSOPInstanceUID, c.RequestedSOPInstanceUID)
	putUID(tagMoveDestination, c.MoveDestination)
	if c.CommandField == CStoreRQ || c.CommandField == CFindRQ || c.CommandField == CGetRQ || c.CommandField == CMoveRQ {
		putUint16(tagPriority, c.Priority)
	}
	putUint16(tagCommandDataSetType, c.CommandDataSetType)
	if !IsRequest(c.CommandField) {
		putUint16(tagStatus, c.Status)
	}
	if c.CommandField == CGetRSP || c.CommandField == CMoveRSP {
		putUint16(tagNumberOfRemainingSubops, c.NumberOfRemainingSubops)
		putUint16(tagNumberOfCompletedSubops, c.NumberOfCompletedSubops)
		putUint16(tagNumberOfFailedSubops, c.NumberOfFailedSubops)
		putUint16(tagNumberOfWarningSubops, c.NumberOfWarningSubops)
	}
	if c.CommandField == NEventReportRQ || c.CommandField == NEventReportRSP {
		putUint16(tagEventTypeID, c.EventTypeID)
	}
	if c.CommandField == NActionRQ || c.CommandField == NActionRSP {
		putUint16(tagActionTypeID, c.ActionTypeID)
	}
	putUID(tagErrorComment, c.ErrorComment)

	// Group length element (0000,0000) must lead the stream.
	header := appendElementHeader(nil, 0x00000000, 4)
	lenBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBytes, uint32(len(buf)))
	return append(append(header, lenBytes...), buf...)
}

func appendElementHeader(buf []byte, tag uint32, length uint32) []byte {
	group := uint16(tag >> 16)
	element := uint16(tag & 0xFFFF)
	b := make([]byte, 8)
	binary.LittleEndian.PutUint16(b[0:2], group)
	binary.LittleEndian.PutUint16(b[2:4], element)
	binary.LittleEndian.PutUint32(b[4:8], length)
	return append(buf, b...)
}

// DecodeCommand parses an Implicit VR Little Endian Command Set,
// generalizing the teacher's element walk to the full tag table above.
func DecodeCommand(data []byte) (Command, error) {
	var c Command
	offset := 0
	for offset+8 <= len(data) {
		group := binary.LittleEndian.Uint16(data[offset : offset+2])
		element := binary.LittleEndian.Uint16(data[offset+2 : offset+4])
		length := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		valueStart := offset + 8
		valueEnd := valueStart + int(length)
		if length > uint32(len(data)) || valueEnd > len(data) {
			return c, fmt.Errorf("dimse: element (%04x,%04x) length %d exceeds buffer", group, element, length)
		}
		value := data[valueStart:valueEnd]

		if group == 0x0000 {
			switch element {
			case tagCommandField:
				c.CommandField = le16(value)
			case tagMessageID:
				c.MessageID = le16(value)
			case tagMessageIDBeingRespondedTo:
				c.MessageIDBeingRespondedTo = le16(value)
			case tagAffectedSOPClassUID:
				c.AffectedSOPClassUID = trimUID(value)
			case tagRequestedSOPClassUID:
				c.RequestedSOPClassUID = trimUID(value)
			case tagAffectedSOPInstanceUID:
				c.AffectedSOPInstanceUID = trimUID(value)
			case tagRequestedSOPInstanceUID:
				c.RequestedSOPInstanceUID = trimUID(value)
			case tagMoveDestination:
				c.MoveDestination = trimUID(value)
			case tagPriority:
				c.Priority = le16(value)
			case tagCommandDataSetType:
				c.CommandDataSetType = le16(value)
			case tagStatus:
				c.Status = le16(value)
			case tagNumberOfRemainingSubops:
				c.NumberOfRemainingSubops = le16(value)
			case tagNumberOfCompletedSubops:
				c.NumberOfCompletedSubops = le16(value)
			case tagNumberOfFailedSubops:
				c.NumberOfFailedSubops = le16(value)
			case tagNumberOfWarningSubops:
				c.NumberOfWarningSubops = le16(value)
			case tagEventTypeID:
				c.EventTypeID = le16(value)
			case tagActionTypeID:
				c.ActionTypeID = le16(value)
			case tagErrorComment:
				c.ErrorComment = trimUID(value)
			}
		}

		offset = valueEnd
		if length%2 == 1 {
			offset++
		}
	}
	return c, nil
}

func le16(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func trimUID(b []byte) string {
	s := string(b)
	if idx := strings.IndexByte(s, 0); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
