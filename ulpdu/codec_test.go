package ulpdu

import (
	"bytes"
	"testing"
)

func samplePDUs() []PDU {
	return []PDU{
		{
			Type: TypeAssociateRQ,
			AssociateRQ: &AAssociateRQ{
				CalledAETitle:  "ECHOSCP",
				CallingAETitle: "ECHOSCU",
				PresentationCtxs: []PresentationContextRQ{
					{
						ID:               1,
						AbstractSyntax:   "1.2.840.10008.1.1",
						TransferSyntaxes: []string{"1.2.840.10008.1.2", "1.2.840.10008.1.2.1"},
					},
				},
				UserInfo: UserInformation{
					MaximumLength:             16384,
					ImplementationClassUID:    "1.2.3.4.5",
					ImplementationVersionName: "DICOMCORE_1",
					RoleSelections: []RoleSelection{
						{SOPClassUID: "1.2.840.10008.5.1.4.1.1.2", SCURole: true, SCPRole: true},
					},
					Unknown: []RawItem{{Type: 0x70, Data: []byte{0x01, 0x02}}},
				},
			},
		},
		{
			Type: TypeAssociateAC,
			AssociateAC: &AAssociateAC{
				CalledAETitle:  "ECHOSCP",
				CallingAETitle: "ECHOSCU",
				PresentationCtxs: []PresentationContextAC{
					{ID: 1, Result: ResultAcceptance, TransferSyntax: "1.2.840.10008.1.2"},
					{ID: 3, Result: ResultAbstractSyntaxNotSupported},
				},
				UserInfo: UserInformation{MaximumLength: 16384, ImplementationClassUID: "1.2.3.4.5"},
			},
		},
		{
			Type: TypeAssociateRJ,
			AssociateRJ: &AAssociateRJ{
				Result: RJResultRejectedPermanent,
				Source: RJSourceACSEProvider,
				Reason: 2,
			},
		},
		{
			Type: TypePDataTF,
			PDataTF: &PDataTF{
				PDVs: []PDV{
					{PresentationContextID: 1, MessageControlHeader: MakeMCH(true, true), Data: []byte("command")},
					{PresentationContextID: 1, MessageControlHeader: MakeMCH(false, true), Data: []byte("dataset")},
				},
			},
		},
		{Type: TypeReleaseRQ, ReleaseRQ: &AReleaseRQ{}},
		{Type: TypeReleaseRP, ReleaseRP: &AReleaseRP{}},
		{Type: TypeAbort, Abort: &AAbort{Source: AbortSourceServiceProvider, Reason: AbortReasonUnexpectedPDU}},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, p := range samplePDUs() {
		encoded, err := Encode(p)
		if err != nil {
			t.Fatalf("Encode(%v): %v", p.Type, err)
		}
		decoded, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%v): %v", p.Type, err)
		}
		reencoded, err := Encode(decoded)
		if err != nil {
			t.Fatalf("re-Encode(%v): %v", p.Type, err)
		}
		if !bytes.Equal(encoded, reencoded) {
			t.Fatalf("round-trip mismatch for type 0x%02x:\nwant %x\ngot  %x", p.Type, encoded, reencoded)
		}
	}
}

func TestEncodeLengthMatchesHeader(t *testing.T) {
	for _, p := range samplePDUs() {
		encoded, err := Encode(p)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if len(encoded) < 6 {
			t.Fatalf("encoded PDU shorter than 6 bytes")
		}
		declared := int(encoded[2])<<24 | int(encoded[3])<<16 | int(encoded[4])<<8 | int(encoded[5])
		if len(encoded) != 6+declared {
			t.Fatalf("type 0x%02x: encoded length %d, want 6 + declared %d", p.Type, len(encoded), declared)
		}
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	_, err := Decode([]byte{0x01, 0x02})
	var de *DecodeError
	if err == nil {
		t.Fatal("expected error on short buffer")
	}
	if !asDecodeError(err, &de) || de.Kind != KindShortBuffer {
		t.Fatalf("expected ShortBuffer error, got %v", err)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	buf := []byte{0xEE, 0x00, 0x00, 0x00, 0x00, 0x00}
	_, err := Decode(buf)
	var de *DecodeError
	if !asDecodeError(err, &de) || de.Kind != KindUnknownPduType {
		t.Fatalf("expected UnknownPduType error, got %v", err)
	}
}

func TestDecodeLengthMismatch(t *testing.T) {
	buf := []byte{TypeReleaseRQ, 0x00, 0x00, 0x00, 0x00, 0x10} // declares 16, has 0
	_, err := Decode(buf)
	var de *DecodeError
	if !asDecodeError(err, &de) || de.Kind != KindLengthMismatch {
		t.Fatalf("expected LengthMismatch error, got %v", err)
	}
}

func TestUnknownUserInformationSubItemPreserved(t *testing.T) {
	rq := &AAssociateRQ{
		CalledAETitle:  "A",
		CallingAETitle: "B",
		UserInfo: UserInformation{
			MaximumLength: 100,
			Unknown:       []RawItem{{Type: 0x71, Data: []byte{0xAA, 0xBB, 0xCC}}},
		},
	}
	encoded, err := Encode(PDU{Type: TypeAssociateRQ, AssociateRQ: rq})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded.AssociateRQ.UserInfo.Unknown) != 1 {
		t.Fatalf("expected 1 unknown sub-item preserved, got %d", len(decoded.AssociateRQ.UserInfo.Unknown))
	}
	got := decoded.AssociateRQ.UserInfo.Unknown[0]
	if got.Type != 0x71 || !bytes.Equal(got.Data, []byte{0xAA, 0xBB, 0xCC}) {
		t.Fatalf("unknown sub-item not preserved verbatim: %+v", got)
	}
}

// asDecodeError is a small helper since errors.As needs an addressable target.
func asDecodeError(err error, target **DecodeError) bool {
	de, ok := err.(*DecodeError)
	if !ok {
		return false
	}
	*target = de
	return true
}
