package dicom

import (
	"bytes"
	"testing"
)

func TestPart10RoundTripIdentifyingAttributes(t *testing.T) {
	ds := NewDataset()
	ds.AddElement(Tag{Group: 0x0010, Element: 0x0010}, VR_PN, "DOE^JOHN")
	ds.AddElement(Tag{Group: 0x0010, Element: 0x0020}, VR_LO, "PID001")
	ds.AddElement(Tag{Group: 0x0020, Element: 0x000D}, VR_UI, "1.2.840.10008.1.1.2.3")
	ds.AddElement(Tag{Group: 0x0008, Element: 0x0018}, VR_UI, "1.2.840.10008.1.1.2.4")

	var buf bytes.Buffer
	if err := WritePart10(&buf, ds); err != nil {
		t.Fatalf("WritePart10: %v", err)
	}

	back, err := ReadPart10(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("ReadPart10: %v", err)
	}

	if got := back.GetString(Tag{Group: 0x0010, Element: 0x0010}); got != "DOE^JOHN" {
		t.Errorf("PatientName: got %q", got)
	}
	if got := back.GetString(Tag{Group: 0x0010, Element: 0x0020}); got != "PID001" {
		t.Errorf("PatientID: got %q", got)
	}
	if got := back.GetString(Tag{Group: 0x0020, Element: 0x000D}); got != "1.2.840.10008.1.1.2.3" {
		t.Errorf("StudyInstanceUID: got %q", got)
	}
}
