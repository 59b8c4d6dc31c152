package dimse

import "github.com/caio-sobreiro/dicomcore/ulpdu"

// Fragment splits a command stream and an optional data-set stream into
// PDVs sized to fit the peer's negotiated Maximum PDU Length (spec.md
// §4.5). Each PDV's payload is capped so that PDU header + one item
// header + PDV header + payload never exceeds maxPDU; a maxPDU of 0
// means unlimited (PS3.8 Annex D.1 "zero indicates no maximum").
func Fragment(contextID byte, command, dataset []byte, maxPDU uint32) []ulpdu.PDV {
	var pdvs []ulpdu.PDV
	pdvs = append(pdvs, fragmentOne(contextID, command, true, maxPDU)...)
	if dataset != nil {
		pdvs = append(pdvs, fragmentOne(contextID, dataset, false, maxPDU)...)
	}
	return pdvs
}

func fragmentOne(contextID byte, payload []byte, isCommand bool, maxPDU uint32) []ulpdu.PDV {
	chunk := maxChunk(maxPDU)
	if len(payload) == 0 {
		return []ulpdu.PDV{{
			PresentationContextID: contextID,
			MessageControlHeader:  ulpdu.MakeMCH(isCommand, true),
			Data:                  nil,
		}}
	}
	var out []ulpdu.PDV
	for off := 0; off < len(payload); off += chunk {
		end := off + chunk
		if end > len(payload) {
			end = len(payload)
		}
		last := end == len(payload)
		out = append(out, ulpdu.PDV{
			PresentationContextID: contextID,
			MessageControlHeader:  ulpdu.MakeMCH(isCommand, last),
			Data:                  payload[off:end],
		})
	}
	return out
}

// maxChunk derives the per-PDV payload ceiling from the peer's declared
// Maximum PDU Length. The PDV item itself carries a 4-byte length field
// plus a 1-byte presentation context ID and 1-byte control header; the
// P-DATA-TF PDU wraps that with its own 6-byte header, so the usable
// payload is maxPDU minus that fixed overhead (spec.md §4.5).
func maxChunk(maxPDU uint32) int {
	const fixedOverhead = 6 + 4 + 1 + 1
	if maxPDU == 0 {
		return 1 << 20 // unlimited: fragment in generous 1MiB chunks anyway
	}
	n := int(maxPDU) - fixedOverhead
	if n < 1 {
		n = 1
	}
	return n
}

// Reassembler accumulates PDV fragments for one Presentation Context ID
// until a last-fragment PDV completes the command stream, then the
// data-set stream if the command declares one (spec.md §4.5 "reassembly
// keyed by Presentation Context ID"). Whether a data set follows is only
// knowable once the command itself has been fully reassembled and
// decoded (PS3.7 Command Data Set Type element), so FeedCommand and
// FeedDataSet are separate phases rather than a single hasDataSet flag
// supplied up front.
type Reassembler struct {
	commandBuf  []byte
	commandDone bool
	datasetBuf  []byte
	datasetDone bool
}

// NewReassembler returns a fresh, empty reassembler.
func NewReassembler() *Reassembler { return &Reassembler{} }

// FeedCommand appends one command-fragment PDV. It returns the fully
// reassembled command bytes once the last fragment arrives.
func (r *Reassembler) FeedCommand(pdv ulpdu.PDV) (command []byte, done bool) {
	r.commandBuf = append(r.commandBuf, pdv.Data...)
	if pdv.IsLast() {
		r.commandDone = true
		return r.commandBuf, true
	}
	return nil, false
}

// FeedDataSet appends one data-set-fragment PDV. It returns the fully
// reassembled data set once the last fragment arrives.
func (r *Reassembler) FeedDataSet(pdv ulpdu.PDV) (dataset []byte, done bool) {
	r.datasetBuf = append(r.datasetBuf, pdv.Data...)
	if pdv.IsLast() {
		r.datasetDone = true
		return r.datasetBuf, true
	}
	return nil, false
}

// CommandComplete reports whether the command stream has fully arrived.
func (r *Reassembler) CommandComplete() bool { return r.commandDone }

// DataSetComplete reports whether the data-set stream has fully arrived.
func (r *Reassembler) DataSetComplete() bool { return r.datasetDone }

// DataSetBytes returns whatever data-set bytes have been accumulated so far.
func (r *Reassembler) DataSetBytes() []byte { return r.datasetBuf }
