package ulpdu

import "encoding/binary"

// Encode serializes a PDU to its wire representation: 1-byte type, 1
// reserved byte, 4-byte big-endian length, then the body. The result's
// total length always equals 6 + the declared length.
func Encode(p PDU) ([]byte, error) {
	var body []byte
	switch p.Type {
	case TypeAssociateRQ:
		body = encodeAssociateRQ(p.AssociateRQ)
	case TypeAssociateAC:
		body = encodeAssociateAC(p.AssociateAC)
	case TypeAssociateRJ:
		body = []byte{0x00, p.AssociateRJ.Result, p.AssociateRJ.Source, p.AssociateRJ.Reason}
	case TypePDataTF:
		body = encodePDataTF(p.PDataTF)
	case TypeReleaseRQ:
		body = make([]byte, 4)
	case TypeReleaseRP:
		body = make([]byte, 4)
	case TypeAbort:
		body = []byte{0x00, 0x00, p.Abort.Source, p.Abort.Reason}
	default:
		return nil, newDecodeError(KindUnknownPduType, "0x%02x", p.Type)
	}

	out := make([]byte, 6+len(body))
	out[0] = p.Type
	out[1] = 0x00
	binary.BigEndian.PutUint32(out[2:6], uint32(len(body)))
	copy(out[6:], body)
	return out, nil
}

// Decode parses a byte buffer of at least 6 bytes into a PDU value, or
// returns a well-typed *DecodeError. Never panics on untrusted input.
func Decode(buf []byte) (PDU, error) {
	if len(buf) < 6 {
		return PDU{}, newDecodeError(KindShortBuffer, "need at least 6 bytes, got %d", len(buf))
	}
	pduType := buf[0]
	length := binary.BigEndian.Uint32(buf[2:6])
	if uint32(len(buf)-6) != length {
		return PDU{}, newDecodeError(KindLengthMismatch, "declared %d, have %d", length, len(buf)-6)
	}
	body := buf[6:]

	p := PDU{Type: pduType}
	var err error
	switch pduType {
	case TypeAssociateRQ:
		p.AssociateRQ, err = decodeAssociateRQ(body)
	case TypeAssociateAC:
		p.AssociateAC, err = decodeAssociateAC(body)
	case TypeAssociateRJ:
		if len(body) < 4 {
			return PDU{}, newDecodeError(KindShortBuffer, "A-ASSOCIATE-RJ body too short")
		}
		p.AssociateRJ = &AAssociateRJ{Result: body[1], Source: body[2], Reason: body[3]}
	case TypePDataTF:
		p.PDataTF, err = decodePDataTF(body)
	case TypeReleaseRQ:
		p.ReleaseRQ = &AReleaseRQ{}
	case TypeReleaseRP:
		p.ReleaseRP = &AReleaseRP{}
	case TypeAbort:
		if len(body) < 4 {
			return PDU{}, newDecodeError(KindShortBuffer, "A-ABORT body too short")
		}
		p.Abort = &AAbort{Source: body[2], Reason: body[3]}
	default:
		return PDU{}, newDecodeError(KindUnknownPduType, "0x%02x", pduType)
	}
	if err != nil {
		return PDU{}, err
	}
	return p, nil
}

func encodeAssociateRQ(rq *AAssociateRQ) []byte {
	body := make([]byte, 68)
	binary.BigEndian.PutUint16(body[0:2], 0x0001) // protocol version
	called := padAETitle(rq.CalledAETitle)
	calling := padAETitle(rq.CallingAETitle)
	copy(body[4:20], called[:])
	copy(body[20:36], calling[:])

	appCtx := rq.ApplicationCtxUID
	if appCtx == "" {
		appCtx = ApplicationContextUID
	}
	body = append(body, writeUIDItemStandalone(ItemApplicationContext, appCtx)...)

	for _, pc := range rq.PresentationCtxs {
		body = append(body, encodePresentationContextRQ(pc)...)
	}
	body = append(body, encodeUserInformation(rq.UserInfo)...)
	return body
}

func writeUIDItemStandalone(itemType byte, uid string) []byte {
	return writeUIDItem(nil, itemType, uid)
}

func decodeAssociateRQ(body []byte) (*AAssociateRQ, error) {
	if len(body) < 68 {
		return nil, newDecodeError(KindShortBuffer, "A-ASSOCIATE-RQ body shorter than 68 bytes")
	}
	rq := &AAssociateRQ{
		CalledAETitle:  trimUID(body[4:20]),
		CallingAETitle: trimUID(body[20:36]),
	}
	items, err := parseSubItems(body[68:])
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		switch it.Type {
		case ItemApplicationContext:
			rq.ApplicationCtxUID = trimUID(it.Value)
		case ItemPresentationContextRQ:
			pc, err := decodePresentationContextRQ(it.Value)
			if err != nil {
				return nil, err
			}
			rq.PresentationCtxs = append(rq.PresentationCtxs, pc)
		case ItemUserInformation:
			rq.UserInfo, err = decodeUserInformation(it.Value)
			if err != nil {
				return nil, err
			}
		}
	}
	return rq, nil
}

func encodeAssociateAC(ac *AAssociateAC) []byte {
	body := make([]byte, 68)
	binary.BigEndian.PutUint16(body[0:2], 0x0001)
	called := padAETitle(ac.CalledAETitle)
	calling := padAETitle(ac.CallingAETitle)
	copy(body[4:20], called[:])
	copy(body[20:36], calling[:])

	appCtx := ac.ApplicationCtxUID
	if appCtx == "" {
		appCtx = ApplicationContextUID
	}
	body = append(body, writeUIDItemStandalone(ItemApplicationContext, appCtx)...)

	for _, pc := range ac.PresentationCtxs {
		body = append(body, encodePresentationContextAC(pc)...)
	}
	body = append(body, encodeUserInformation(ac.UserInfo)...)
	return body
}

func decodeAssociateAC(body []byte) (*AAssociateAC, error) {
	if len(body) < 68 {
		return nil, newDecodeError(KindShortBuffer, "A-ASSOCIATE-AC body shorter than 68 bytes")
	}
	ac := &AAssociateAC{
		CalledAETitle:  trimUID(body[4:20]),
		CallingAETitle: trimUID(body[20:36]),
	}
	items, err := parseSubItems(body[68:])
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		switch it.Type {
		case ItemApplicationContext:
			ac.ApplicationCtxUID = trimUID(it.Value)
		case ItemPresentationContextAC:
			pc, err := decodePresentationContextAC(it.Value)
			if err != nil {
				return nil, err
			}
			ac.PresentationCtxs = append(ac.PresentationCtxs, pc)
		case ItemUserInformation:
			ac.UserInfo, err = decodeUserInformation(it.Value)
			if err != nil {
				return nil, err
			}
		}
	}
	return ac, nil
}

func encodePDataTF(pd *PDataTF) []byte {
	var body []byte
	for _, pdv := range pd.PDVs {
		pdvBody := make([]byte, 2+len(pdv.Data))
		pdvBody[0] = pdv.PresentationContextID
		pdvBody[1] = pdv.MessageControlHeader
		copy(pdvBody[2:], pdv.Data)

		l := make([]byte, 4)
		binary.BigEndian.PutUint32(l, uint32(len(pdvBody)))
		body = append(body, l...)
		body = append(body, pdvBody...)
	}
	return body
}

func decodePDataTF(body []byte) (*PDataTF, error) {
	pd := &PDataTF{}
	offset := 0
	for offset < len(body) {
		if offset+4 > len(body) {
			return nil, newDecodeError(KindMalformedSubItem, "truncated PDV length")
		}
		pdvLen := int(binary.BigEndian.Uint32(body[offset : offset+4]))
		valueStart := offset + 4
		valueEnd := valueStart + pdvLen
		if valueEnd > len(body) {
			return nil, newDecodeError(KindMalformedSubItem, "PDV length %d exceeds PDU body", pdvLen)
		}
		if pdvLen < 2 {
			return nil, newDecodeError(KindMalformedSubItem, "PDV shorter than context-id+header")
		}
		value := body[valueStart:valueEnd]
		pd.PDVs = append(pd.PDVs, PDV{
			PresentationContextID: value[0],
			MessageControlHeader:  value[1],
			Data:                  append([]byte(nil), value[2:]...),
		})
		offset = valueEnd
	}
	return pd, nil
}
