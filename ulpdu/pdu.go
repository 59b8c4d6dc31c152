// Package ulpdu implements the DICOM Upper Layer PDU codec: bit-exact
// encoding and decoding of the seven PDU types and their sub-items
// defined in DICOM PS3.8 Section 9.3.
package ulpdu

import "fmt"

// PDU type codes (PS3.8 Table 9-1).
const (
	TypeAssociateRQ byte = 0x01
	TypeAssociateAC byte = 0x02
	TypeAssociateRJ byte = 0x03
	TypePDataTF     byte = 0x04
	TypeReleaseRQ   byte = 0x05
	TypeReleaseRP   byte = 0x06
	TypeAbort       byte = 0x07
)

// Sub-item type codes (PS3.8 Section 9.3).
const (
	ItemApplicationContext       byte = 0x10
	ItemPresentationContextRQ    byte = 0x20
	ItemPresentationContextAC    byte = 0x21
	ItemAbstractSyntax           byte = 0x30
	ItemTransferSyntax           byte = 0x40
	ItemUserInformation          byte = 0x50
	ItemMaximumLength            byte = 0x51
	ItemImplementationClassUID   byte = 0x52
	ItemAsyncOperationsWindow    byte = 0x53
	ItemSCPSCURoleSelection      byte = 0x54
	ItemImplementationVersion    byte = 0x55
	ItemSOPClassExtendedNeg      byte = 0x56
	ItemSOPClassCommonExtended   byte = 0x57
	ItemUserIdentityRQ           byte = 0x58
	ItemUserIdentityAC           byte = 0x59
)

// ApplicationContextUID is the only application context this core negotiates.
const ApplicationContextUID = "1.2.840.10008.3.1.1.1"

// Presentation context result codes (PS3.8 Table 9-18).
const (
	ResultAcceptance                  byte = 0
	ResultUserRejection                byte = 1
	ResultNoReasonGiven                 byte = 2
	ResultAbstractSyntaxNotSupported    byte = 3
	ResultTransferSyntaxesNotSupported byte = 4
)

// A-ASSOCIATE-RJ Result values (PS3.8 Table 9-21).
const (
	RJResultRejectedPermanent byte = 1
	RJResultRejectedTransient byte = 2
)

// A-ASSOCIATE-RJ Source values.
const (
	RJSourceACSEUser              byte = 1
	RJSourceACSEProvider          byte = 2
	RJSourcePresentationProvider  byte = 3
)

// A-ABORT Source values (PS3.8 Table 9-26).
const (
	AbortSourceServiceUser     byte = 0
	AbortSourceServiceProvider byte = 2
)

// A-ABORT Reason/Diagnostic values (PS3.8 Table 9-26), source-provider only.
const (
	AbortReasonNotSpecified                      byte = 0
	AbortReasonUnrecognizedPDU                    byte = 1
	AbortReasonUnexpectedPDU                      byte = 2
	AbortReasonUnrecognizedPDUParameter           byte = 4
	AbortReasonUnexpectedPDUParameter             byte = 5
	AbortReasonInvalidPDUParameterValue           byte = 6
)

// DecodeError enumerates the well-typed decode failures spec.md §4.1 requires.
type DecodeError struct {
	Kind string
	Msg  string
}

func (e *DecodeError) Error() string { return fmt.Sprintf("ulpdu: %s: %s", e.Kind, e.Msg) }

func newDecodeError(kind, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

const (
	KindShortBuffer      = "ShortBuffer"
	KindUnknownPduType   = "UnknownPduType"
	KindMalformedSubItem = "MalformedSubItem"
	KindLengthMismatch   = "LengthMismatch"
)

// PDU is the tagged-variant envelope for all seven Upper Layer PDUs.
// Exactly one of the typed fields is non-nil, selected by Type.
type PDU struct {
	Type byte

	AssociateRQ *AAssociateRQ
	AssociateAC *AAssociateAC
	AssociateRJ *AAssociateRJ
	PDataTF     *PDataTF
	ReleaseRQ   *AReleaseRQ
	ReleaseRP   *AReleaseRP
	Abort       *AAbort
}

// AAssociateRQ is the A-ASSOCIATE-RQ PDU (PS3.8 Section 9.3.2).
type AAssociateRQ struct {
	CalledAETitle    string
	CallingAETitle   string
	ApplicationCtxUID string
	PresentationCtxs []PresentationContextRQ
	UserInfo         UserInformation
}

// AAssociateAC is the A-ASSOCIATE-AC PDU (PS3.8 Section 9.3.3).
type AAssociateAC struct {
	CalledAETitle    string
	CallingAETitle   string
	ApplicationCtxUID string
	PresentationCtxs []PresentationContextAC
	UserInfo         UserInformation
}

// AAssociateRJ is the A-ASSOCIATE-RJ PDU (PS3.8 Section 9.3.4).
type AAssociateRJ struct {
	Result byte
	Source byte
	Reason byte
}

// PDataTF is the P-DATA-TF PDU (PS3.8 Section 9.3.5): one or more PDVs.
type PDataTF struct {
	PDVs []PDV
}

// PDV is one Presentation Data Value fragment.
type PDV struct {
	PresentationContextID byte
	// MessageControlHeader bit0 = command(1)/data(0), bit1 = last fragment.
	MessageControlHeader byte
	Data                 []byte
}

// IsCommand reports whether this PDV carries Command Set bytes.
func (p PDV) IsCommand() bool { return p.MessageControlHeader&0x01 != 0 }

// IsLast reports whether this PDV is the last fragment of its kind.
func (p PDV) IsLast() bool { return p.MessageControlHeader&0x02 != 0 }

// MakeMCH builds a Message Control Header byte.
func MakeMCH(isCommand, isLast bool) byte {
	var b byte
	if isCommand {
		b |= 0x01
	}
	if isLast {
		b |= 0x02
	}
	return b
}

// AReleaseRQ is the A-RELEASE-RQ PDU (PS3.8 Section 9.3.6).
type AReleaseRQ struct{}

// AReleaseRP is the A-RELEASE-RP PDU (PS3.8 Section 9.3.7).
type AReleaseRP struct{}

// AAbort is the A-ABORT PDU (PS3.8 Section 9.3.8).
type AAbort struct {
	Source byte
	Reason byte
}

// PresentationContextRQ is a proposed presentation context (RQ side).
type PresentationContextRQ struct {
	ID               byte
	AbstractSyntax   string
	TransferSyntaxes []string
	// SCURole/SCPRole non-nil only when an SCP/SCU Role Selection item
	// was proposed for this abstract syntax.
	SCURole *bool
	SCPRole *bool
}

// PresentationContextAC is a negotiated presentation context (AC side).
type PresentationContextAC struct {
	ID             byte
	Result         byte
	TransferSyntax string
	SCURole        *bool
	SCPRole        *bool
}

// UserInformation aggregates the User Information sub-items (PS3.8 Annex D).
type UserInformation struct {
	MaximumLength             uint32
	ImplementationClassUID    string
	ImplementationVersionName string
	AsyncOpsWindow            *AsyncOperationsWindow
	RoleSelections            []RoleSelection
	ExtendedNegotiations      []SOPClassExtendedNegotiation
	CommonExtended            []SOPClassCommonExtendedNegotiation
	UserIdentityRQ            *UserIdentityRQ
	UserIdentityAC            *UserIdentityAC
	// Unknown preserves any sub-item this codec does not recognize,
	// verbatim, for forward-compatible re-emission.
	Unknown []RawItem
}

// RawItem is an unparsed sub-item, preserved byte-for-byte.
type RawItem struct {
	Type byte
	Data []byte
}

// AsyncOperationsWindow is the Asynchronous Operations Window sub-item.
type AsyncOperationsWindow struct {
	MaxOperationsInvoked  uint16
	MaxOperationsPerformed uint16
}

// RoleSelection is the SCP/SCU Role Selection sub-item.
type RoleSelection struct {
	SOPClassUID string
	SCURole     bool
	SCPRole     bool
}

// SOPClassExtendedNegotiation is the SOP Class Extended Negotiation sub-item.
type SOPClassExtendedNegotiation struct {
	SOPClassUID   string
	ServiceClassAppInfo []byte
}

// SOPClassCommonExtendedNegotiation is the SOP Class Common Extended
// Negotiation sub-item.
type SOPClassCommonExtendedNegotiation struct {
	SOPClassUID           string
	ServiceClassUID       string
	RelatedGeneralSOPClassUIDs []string
}

// UserIdentityRQ is the User Identity RQ sub-item (PS3.7 Annex D).
type UserIdentityRQ struct {
	Type                  byte
	PositiveResponseRequested bool
	PrimaryField          []byte
	SecondaryField        []byte
}

// UserIdentityAC is the User Identity AC sub-item.
type UserIdentityAC struct {
	ServerResponse []byte
}
