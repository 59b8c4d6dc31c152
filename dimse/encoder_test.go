package dimse

import (
	"bytes"
	"testing"

	"github.com/caio-sobreiro/dicomcore/ulpdu"
)

func TestFragmentRespectsMaxPDU(t *testing.T) {
	command := make([]byte, 10)
	dataset := make([]byte, 50)
	for i := range dataset {
		dataset[i] = byte(i)
	}
	pdvs := Fragment(1, command, dataset, 30)
	for _, pdv := range pdvs {
		if len(pdv.Data) > maxChunk(30) {
			t.Fatalf("fragment exceeds max chunk: %d > %d", len(pdv.Data), maxChunk(30))
		}
	}
	// last dataset PDV must be marked last and not a command.
	last := pdvs[len(pdvs)-1]
	if last.IsCommand() {
		t.Fatalf("expected last PDV to belong to the data set")
	}
	if !last.IsLast() {
		t.Fatalf("expected last PDV to be marked last")
	}
}

func TestFragmentUnlimitedSinglePDV(t *testing.T) {
	command := []byte{1, 2, 3}
	pdvs := Fragment(1, command, nil, 0)
	if len(pdvs) != 1 {
		t.Fatalf("expected single PDV for small unlimited payload, got %d", len(pdvs))
	}
	if !pdvs[0].IsCommand() || !pdvs[0].IsLast() {
		t.Fatalf("expected single command PDV marked last")
	}
}

func TestReassemblerRoundTrip(t *testing.T) {
	command := []byte("command-bytes")
	dataset := []byte("dataset-bytes-that-is-longer")
	pdvs := Fragment(1, command, dataset, 20)

	r := NewReassembler()
	var gotCmd, gotData []byte
	var cmdDone, dataDone bool
	for _, pdv := range pdvs {
		if pdv.IsCommand() {
			gotCmd, cmdDone = r.FeedCommand(pdv)
		} else {
			gotData, dataDone = r.FeedDataSet(pdv)
		}
	}
	if !cmdDone || !dataDone {
		t.Fatalf("reassembly never completed: cmdDone=%v dataDone=%v", cmdDone, dataDone)
	}
	if !bytes.Equal(gotCmd, command) {
		t.Fatalf("command mismatch: got %q want %q", gotCmd, command)
	}
	if !bytes.Equal(gotData, dataset) {
		t.Fatalf("dataset mismatch: got %q want %q", gotData, dataset)
	}
}

func TestReassemblerNoDataSet(t *testing.T) {
	pdvs := Fragment(1, []byte("cmd-only"), nil, 0)
	r := NewReassembler()
	var done bool
	for _, pdv := range pdvs {
		_, done = r.FeedCommand(pdv)
	}
	if !done {
		t.Fatalf("expected command reassembly to complete")
	}
	if !r.CommandComplete() {
		t.Fatalf("expected CommandComplete to report true")
	}
}

func TestPDVContextIDPreserved(t *testing.T) {
	pdvs := Fragment(5, []byte{1}, nil, 0)
	for _, pdv := range pdvs {
		if pdv.PresentationContextID != 5 {
			t.Fatalf("expected context id 5, got %d", pdv.PresentationContextID)
		}
	}
	_ = ulpdu.PDV{}
}
