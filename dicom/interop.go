package dicom

import (
	"fmt"
	"io"

	suyashdicom "github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// ReadPart10 decodes a full DICOM Part 10 stream (preamble, File Meta
// Information, and Data Set) using the suyashkumar/dicom parser, then
// projects it onto our own Dataset for use by the DIMSE layer. Grounded
// on flatmapit-crgodicom's dicom.Write/dicom.Parse usage; this package's
// hand-rolled ParseDataset/EncodeDataset remain the codec for the bare
// DIMSE Data Set (no preamble, no File Meta group), since DIMSE never
// exchanges Part 10 files on the wire (PS3.10 vs PS3.7).
func ReadPart10(r io.Reader, size int64) (*Dataset, error) {
	src, err := suyashdicom.Parse(r, size, nil)
	if err != nil {
		return nil, fmt.Errorf("dicom: parse part 10 stream: %w", err)
	}
	return fromInteropDataset(src), nil
}

// WritePart10 encodes ds as a full DICOM Part 10 stream via
// suyashkumar/dicom, synthesizing File Meta Information from the
// dataset's SOP Class/Instance UID elements.
func WritePart10(w io.Writer, ds *Dataset) error {
	out, err := toInteropDataset(ds)
	if err != nil {
		return fmt.Errorf("dicom: build part 10 dataset: %w", err)
	}
	meta := []struct {
		dt    tag.Tag
		value string
	}{
		{tag.MediaStorageSOPClassUID, ds.GetString(Tag{Group: 0x0008, Element: 0x0016})},
		{tag.MediaStorageSOPInstanceUID, ds.GetString(Tag{Group: 0x0008, Element: 0x0018})},
		{tag.TransferSyntaxUID, TransferSyntaxExplicitVRLittleEndian},
	}
	for _, m := range meta {
		elem, err := suyashdicom.NewElement(m.dt, []string{m.value})
		if err != nil {
			return fmt.Errorf("dicom: build file meta element: %w", err)
		}
		out.Elements = append(out.Elements, elem)
	}
	if err := suyashdicom.Write(w, out); err != nil {
		return fmt.Errorf("dicom: write part 10 stream: %w", err)
	}
	return nil
}

// interopTags lists the Data Set elements this package round-trips
// through suyashkumar/dicom; it covers the identifying attributes DIMSE
// services actually inspect (PS3.3 patient/study/series/instance
// modules), not an exhaustive data dictionary walk.
var interopTags = []struct {
	tag Tag
	vr  string
	dt  tag.Tag
}{
	{Tag{Group: 0x0008, Element: 0x0016}, VR_UI, tag.SOPClassUID},
	{Tag{Group: 0x0008, Element: 0x0018}, VR_UI, tag.SOPInstanceUID},
	{Tag{Group: 0x0008, Element: 0x0020}, VR_DA, tag.StudyDate},
	{Tag{Group: 0x0008, Element: 0x0030}, VR_TM, tag.StudyTime},
	{Tag{Group: 0x0008, Element: 0x0050}, VR_SH, tag.AccessionNumber},
	{Tag{Group: 0x0008, Element: 0x0060}, VR_CS, tag.Modality},
	{Tag{Group: 0x0008, Element: 0x1030}, VR_LO, tag.StudyDescription},
	{Tag{Group: 0x0010, Element: 0x0010}, VR_PN, tag.PatientName},
	{Tag{Group: 0x0010, Element: 0x0020}, VR_LO, tag.PatientID},
	{Tag{Group: 0x0010, Element: 0x0030}, VR_DA, tag.PatientBirthDate},
	{Tag{Group: 0x0010, Element: 0x0040}, VR_CS, tag.PatientSex},
	{Tag{Group: 0x0020, Element: 0x000D}, VR_UI, tag.StudyInstanceUID},
	{Tag{Group: 0x0020, Element: 0x000E}, VR_UI, tag.SeriesInstanceUID},
	{Tag{Group: 0x0020, Element: 0x0011}, VR_IS, tag.SeriesNumber},
	{Tag{Group: 0x0020, Element: 0x0013}, VR_IS, tag.InstanceNumber},
}

func fromInteropDataset(src suyashdicom.Dataset) *Dataset {
	ds := NewDataset()
	for _, spec := range interopTags {
		elem, err := src.FindElementByTag(spec.dt)
		if err != nil || elem.Value == nil {
			continue
		}
		if strs, ok := elem.Value.GetValue().([]string); ok && len(strs) > 0 {
			ds.AddElement(spec.tag, spec.vr, strs[0])
		}
	}
	return ds
}

func toInteropDataset(ds *Dataset) (suyashdicom.Dataset, error) {
	out := suyashdicom.Dataset{Elements: make([]*suyashdicom.Element, 0, len(interopTags))}
	for _, spec := range interopTags {
		value := ds.GetString(spec.tag)
		if value == "" {
			continue
		}
		elem, err := suyashdicom.NewElement(spec.dt, []string{value})
		if err != nil {
			return out, fmt.Errorf("dicom: build element %s: %w", spec.tag, err)
		}
		out.Elements = append(out.Elements, elem)
	}
	return out, nil
}
