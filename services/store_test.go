package services

import (
	"context"
	"testing"

	"github.com/caio-sobreiro/dicomcore/dicom"
	"github.com/caio-sobreiro/dicomcore/dimse"
	"github.com/caio-sobreiro/dicomcore/types"
)

func TestStoreServicePersistsInstance(t *testing.T) {
	store := NewInMemoryDataStore()
	svc := NewStoreService(store)

	ds := dicom.NewDataset()
	ds.AddElement(dicom.Tag{Group: 0x0020, Element: 0x0013}, dicom.VR_IS, "1")

	req := dimse.Command{
		CommandField:           dimse.CStoreRQ,
		MessageID:              1,
		AffectedSOPInstanceUID: "1.2.3.4",
	}
	resp, _, err := svc.HandleDIMSE(context.Background(), 1, req, ds.EncodeDataset(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != dimse.StatusSuccess {
		t.Fatalf("expected success, got 0x%04x", resp.Status)
	}

	img, err := store.GetImage("1.2.3.4")
	if err != nil {
		t.Fatalf("expected stored image: %v", err)
	}
	if img.InstanceNumber != "1" {
		t.Fatalf("expected instance number 1, got %q", img.InstanceNumber)
	}
}

func TestStoreServiceStripsPart10Header(t *testing.T) {
	store := NewInMemoryDataStore()
	svc := NewStoreService(store)

	ds := dicom.NewDataset()
	ds.AddElement(dicom.Tag{Group: 0x0020, Element: 0x0013}, dicom.VR_IS, "7")
	wrapped := append(make([]byte, 128), []byte("DICM")...)
	wrapped = append(wrapped, ds.EncodeDataset()...)
	if !dicom.HasPart10Header(wrapped) {
		t.Fatalf("expected HasPart10Header to detect the preamble we just added")
	}

	req := dimse.Command{
		CommandField:           dimse.CStoreRQ,
		MessageID:              3,
		AffectedSOPInstanceUID: "1.2.3.5",
	}
	resp, _, err := svc.HandleDIMSE(context.Background(), 1, req, wrapped, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != dimse.StatusSuccess {
		t.Fatalf("expected success, got 0x%04x", resp.Status)
	}

	img, err := store.GetImage("1.2.3.5")
	if err != nil {
		t.Fatalf("expected stored image: %v", err)
	}
	if img.InstanceNumber != "7" {
		t.Fatalf("expected instance number 7, got %q", img.InstanceNumber)
	}
}

type capturingResponder struct {
	sent []dimse.Command
}

func (c *capturingResponder) Send(ctx context.Context, cmd dimse.Command, dataset []byte) error {
	c.sent = append(c.sent, cmd)
	return nil
}

func TestFindServiceStreamsPendingThenSuccess(t *testing.T) {
	store := NewInMemoryDataStore()
	if err := store.StoreStudy(&types.Study{InstanceUID: "1.2.3", AccessionNum: "ACC1"}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	svc := NewFindService(store)

	query := dicom.NewDataset()
	req := dimse.Command{CommandField: dimse.CFindRQ, MessageID: 2}
	responder := &capturingResponder{}

	final, _, err := svc.HandleDIMSE(context.Background(), 1, req, query.EncodeDataset(), responder)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(responder.sent) != 1 {
		t.Fatalf("expected 1 pending response, got %d", len(responder.sent))
	}
	if responder.sent[0].Status != dimse.StatusPending {
		t.Fatalf("expected pending status, got 0x%04x", responder.sent[0].Status)
	}
	if final.Status != dimse.StatusSuccess {
		t.Fatalf("expected final success, got 0x%04x", final.Status)
	}
}
