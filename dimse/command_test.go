package dimse

import "testing"

func TestEncodeDecodeCommandRoundTrip(t *testing.T) {
	c := Command{
		CommandField:           CStoreRQ,
		MessageID:              7,
		AffectedSOPClassUID:    "1.2.840.10008.5.1.4.1.1.7",
		AffectedSOPInstanceUID: "1.2.3.4.5",
		Priority:               0,
		CommandDataSetType:     1,
	}
	encoded := EncodeCommand(c)
	got, err := DecodeCommand(encoded)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.CommandField != c.CommandField {
		t.Fatalf("CommandField mismatch: got %x want %x", got.CommandField, c.CommandField)
	}
	if got.MessageID != c.MessageID {
		t.Fatalf("MessageID mismatch: got %d want %d", got.MessageID, c.MessageID)
	}
	if got.AffectedSOPClassUID != c.AffectedSOPClassUID {
		t.Fatalf("AffectedSOPClassUID mismatch: got %q want %q", got.AffectedSOPClassUID, c.AffectedSOPClassUID)
	}
	if got.AffectedSOPInstanceUID != c.AffectedSOPInstanceUID {
		t.Fatalf("AffectedSOPInstanceUID mismatch: got %q want %q", got.AffectedSOPInstanceUID, c.AffectedSOPInstanceUID)
	}
}

func TestResponseFor(t *testing.T) {
	if ResponseFor(CStoreRQ) != CStoreRSP {
		t.Fatalf("expected CStoreRSP")
	}
	if ResponseFor(CCancelRQ) != 0 {
		t.Fatalf("C-CANCEL has no response command")
	}
}

func TestStatusRanges(t *testing.T) {
	if !IsPending(StatusPending) {
		t.Fatalf("expected StatusPending to be pending")
	}
	if !IsWarning(0x0001) {
		t.Fatalf("expected 0x0001 to be a warning status")
	}
	if !IsFailure(0x0110) {
		t.Fatalf("expected 0x0110 to be a failure status")
	}
	if IsFailure(StatusSuccess) {
		t.Fatalf("success must not be classified as failure")
	}
}

func TestOddLengthUIDPadding(t *testing.T) {
	c := Command{CommandField: CEchoRQ, AffectedSOPClassUID: "1.2.3", CommandDataSetType: NoDataSet}
	encoded := EncodeCommand(c)
	got, err := DecodeCommand(encoded)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.AffectedSOPClassUID != "1.2.3" {
		t.Fatalf("expected odd-length UID to round-trip without padding leaking, got %q", got.AffectedSOPClassUID)
	}
}
