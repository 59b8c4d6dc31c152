package ulpdu

import (
	"encoding/binary"
	"strings"
)

// padUID right-pads an ASCII UID with a trailing NUL to even length.
func padUID(uid string) string {
	if len(uid)%2 == 1 {
		return uid + "\x00"
	}
	return uid
}

// trimUID strips the trailing NUL/space padding PS3.8 allows on read.
func trimUID(raw []byte) string {
	return strings.TrimRight(string(raw), "\x00 ")
}

// padAETitle returns the 16-byte space-padded AE title field.
func padAETitle(title string) [16]byte {
	var out [16]byte
	for i := range out {
		out[i] = ' '
	}
	copy(out[:], title)
	return out
}

// writeItemHeader appends a 4-byte sub-item header (type, reserved, length).
func writeItemHeader(buf []byte, itemType byte, length int) []byte {
	buf = append(buf, itemType, 0x00)
	var l [2]byte
	binary.BigEndian.PutUint16(l[:], uint16(length))
	return append(buf, l[:]...)
}

func writeUIDItem(buf []byte, itemType byte, uid string) []byte {
	padded := padUID(uid)
	buf = writeItemHeader(buf, itemType, len(padded))
	return append(buf, []byte(padded)...)
}

// subItem is one parsed (type, value) sub-item within a container.
type subItem struct {
	Type  byte
	Value []byte
}

// parseSubItems walks a flat run of 4-byte-header sub-items, bounds-checked
// against the enclosing container. Never panics on truncated input.
func parseSubItems(data []byte) ([]subItem, error) {
	var items []subItem
	offset := 0
	for offset < len(data) {
		if offset+4 > len(data) {
			return nil, newDecodeError(KindMalformedSubItem, "truncated sub-item header at offset %d", offset)
		}
		itemType := data[offset]
		length := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		valueStart := offset + 4
		valueEnd := valueStart + length
		if valueEnd > len(data) {
			return nil, newDecodeError(KindMalformedSubItem, "sub-item type 0x%02x length %d exceeds container", itemType, length)
		}
		items = append(items, subItem{Type: itemType, Value: data[valueStart:valueEnd]})
		offset = valueEnd
	}
	return items, nil
}

func encodePresentationContextRQ(pc PresentationContextRQ) []byte {
	var body []byte
	body = append(body, pc.ID, 0x00, 0x00, 0x00) // ID + 3 reserved bytes
	body = writeUIDItem(body, ItemAbstractSyntax, pc.AbstractSyntax)
	for _, ts := range pc.TransferSyntaxes {
		body = writeUIDItem(body, ItemTransferSyntax, ts)
	}
	out := writeItemHeader(nil, ItemPresentationContextRQ, len(body))
	return append(out, body...)
}

func decodePresentationContextRQ(value []byte) (PresentationContextRQ, error) {
	if len(value) < 4 {
		return PresentationContextRQ{}, newDecodeError(KindMalformedSubItem, "presentation context RQ too short")
	}
	pc := PresentationContextRQ{ID: value[0]}
	items, err := parseSubItems(value[4:])
	if err != nil {
		return PresentationContextRQ{}, err
	}
	for _, it := range items {
		switch it.Type {
		case ItemAbstractSyntax:
			pc.AbstractSyntax = trimUID(it.Value)
		case ItemTransferSyntax:
			pc.TransferSyntaxes = append(pc.TransferSyntaxes, trimUID(it.Value))
		}
	}
	return pc, nil
}

func encodePresentationContextAC(pc PresentationContextAC) []byte {
	var body []byte
	body = append(body, pc.ID, pc.Result, 0x00, 0x00)
	if pc.Result == ResultAcceptance && pc.TransferSyntax != "" {
		body = writeUIDItem(body, ItemTransferSyntax, pc.TransferSyntax)
	}
	out := writeItemHeader(nil, ItemPresentationContextAC, len(body))
	return append(out, body...)
}

func decodePresentationContextAC(value []byte) (PresentationContextAC, error) {
	if len(value) < 4 {
		return PresentationContextAC{}, newDecodeError(KindMalformedSubItem, "presentation context AC too short")
	}
	pc := PresentationContextAC{ID: value[0], Result: value[1]}
	items, err := parseSubItems(value[4:])
	if err != nil {
		return PresentationContextAC{}, err
	}
	for _, it := range items {
		if it.Type == ItemTransferSyntax {
			pc.TransferSyntax = trimUID(it.Value)
		}
	}
	return pc, nil
}

func encodeUserInformation(ui UserInformation) []byte {
	var body []byte

	maxLen := make([]byte, 4)
	binary.BigEndian.PutUint32(maxLen, ui.MaximumLength)
	body = writeItemHeader(body, ItemMaximumLength, 4)
	body = append(body, maxLen...)

	if ui.ImplementationClassUID != "" {
		body = writeUIDItem(body, ItemImplementationClassUID, ui.ImplementationClassUID)
	}

	if ui.AsyncOpsWindow != nil {
		val := make([]byte, 4)
		binary.BigEndian.PutUint16(val[0:2], ui.AsyncOpsWindow.MaxOperationsInvoked)
		binary.BigEndian.PutUint16(val[2:4], ui.AsyncOpsWindow.MaxOperationsPerformed)
		body = writeItemHeader(body, ItemAsyncOperationsWindow, 4)
		body = append(body, val...)
	}

	for _, rs := range ui.RoleSelections {
		uid := padUID(rs.SOPClassUID)
		val := make([]byte, 2+len(uid)+2)
		binary.BigEndian.PutUint16(val[0:2], uint16(len(uid)))
		copy(val[2:2+len(uid)], uid)
		idx := 2 + len(uid)
		val[idx] = boolByte(rs.SCURole)
		val[idx+1] = boolByte(rs.SCPRole)
		body = writeItemHeader(body, ItemSCPSCURoleSelection, len(val))
		body = append(body, val...)
	}

	if ui.ImplementationVersionName != "" {
		body = writeItemHeader(body, ItemImplementationVersion, len(ui.ImplementationVersionName))
		body = append(body, []byte(ui.ImplementationVersionName)...)
	}

	for _, en := range ui.ExtendedNegotiations {
		uid := padUID(en.SOPClassUID)
		val := make([]byte, 2+len(uid))
		binary.BigEndian.PutUint16(val[0:2], uint16(len(uid)))
		copy(val[2:], uid)
		val = append(val, en.ServiceClassAppInfo...)
		body = writeItemHeader(body, ItemSOPClassExtendedNeg, len(val))
		body = append(body, val...)
	}

	for _, cn := range ui.CommonExtended {
		var val []byte
		val = appendUIDField(val, cn.SOPClassUID)
		val = appendUIDField(val, cn.ServiceClassUID)
		related := make([]byte, 2)
		var relatedBody []byte
		for _, r := range cn.RelatedGeneralSOPClassUIDs {
			relatedBody = appendUIDField(relatedBody, r)
		}
		binary.BigEndian.PutUint16(related, uint16(len(relatedBody)))
		val = append(val, related...)
		val = append(val, relatedBody...)
		body = writeItemHeader(body, ItemSOPClassCommonExtended, len(val))
		body = append(body, val...)
	}

	if ui.UserIdentityRQ != nil {
		uidrq := ui.UserIdentityRQ
		val := []byte{uidrq.Type, boolByte(uidrq.PositiveResponseRequested)}
		pf := make([]byte, 2)
		binary.BigEndian.PutUint16(pf, uint16(len(uidrq.PrimaryField)))
		val = append(val, pf...)
		val = append(val, uidrq.PrimaryField...)
		sf := make([]byte, 2)
		binary.BigEndian.PutUint16(sf, uint16(len(uidrq.SecondaryField)))
		val = append(val, sf...)
		val = append(val, uidrq.SecondaryField...)
		body = writeItemHeader(body, ItemUserIdentityRQ, len(val))
		body = append(body, val...)
	}

	if ui.UserIdentityAC != nil {
		sr := make([]byte, 2)
		binary.BigEndian.PutUint16(sr, uint16(len(ui.UserIdentityAC.ServerResponse)))
		val := append(sr, ui.UserIdentityAC.ServerResponse...)
		body = writeItemHeader(body, ItemUserIdentityAC, len(val))
		body = append(body, val...)
	}

	for _, unk := range ui.Unknown {
		body = writeItemHeader(body, unk.Type, len(unk.Data))
		body = append(body, unk.Data...)
	}

	out := writeItemHeader(nil, ItemUserInformation, len(body))
	return append(out, body...)
}

func appendUIDField(buf []byte, uid string) []byte {
	padded := padUID(uid)
	l := make([]byte, 2)
	binary.BigEndian.PutUint16(l, uint16(len(padded)))
	buf = append(buf, l...)
	return append(buf, []byte(padded)...)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func decodeUserInformation(value []byte) (UserInformation, error) {
	var ui UserInformation
	items, err := parseSubItems(value)
	if err != nil {
		return ui, err
	}
	for _, it := range items {
		switch it.Type {
		case ItemMaximumLength:
			if len(it.Value) != 4 {
				return ui, newDecodeError(KindMalformedSubItem, "maximum length sub-item must be 4 bytes")
			}
			ui.MaximumLength = binary.BigEndian.Uint32(it.Value)
		case ItemImplementationClassUID:
			ui.ImplementationClassUID = trimUID(it.Value)
		case ItemImplementationVersion:
			ui.ImplementationVersionName = string(it.Value)
		case ItemAsyncOperationsWindow:
			if len(it.Value) != 4 {
				return ui, newDecodeError(KindMalformedSubItem, "async ops window sub-item must be 4 bytes")
			}
			ui.AsyncOpsWindow = &AsyncOperationsWindow{
				MaxOperationsInvoked:   binary.BigEndian.Uint16(it.Value[0:2]),
				MaxOperationsPerformed: binary.BigEndian.Uint16(it.Value[2:4]),
			}
		case ItemSCPSCURoleSelection:
			if len(it.Value) < 2 {
				return ui, newDecodeError(KindMalformedSubItem, "role selection sub-item too short")
			}
			uidLen := int(binary.BigEndian.Uint16(it.Value[0:2]))
			if len(it.Value) < 2+uidLen+2 {
				return ui, newDecodeError(KindMalformedSubItem, "role selection sub-item truncated")
			}
			ui.RoleSelections = append(ui.RoleSelections, RoleSelection{
				SOPClassUID: trimUID(it.Value[2 : 2+uidLen]),
				SCURole:     it.Value[2+uidLen] != 0,
				SCPRole:     it.Value[2+uidLen+1] != 0,
			})
		case ItemSOPClassExtendedNeg:
			if len(it.Value) < 2 {
				return ui, newDecodeError(KindMalformedSubItem, "extended negotiation sub-item too short")
			}
			uidLen := int(binary.BigEndian.Uint16(it.Value[0:2]))
			if len(it.Value) < 2+uidLen {
				return ui, newDecodeError(KindMalformedSubItem, "extended negotiation sub-item truncated")
			}
			ui.ExtendedNegotiations = append(ui.ExtendedNegotiations, SOPClassExtendedNegotiation{
				SOPClassUID:         trimUID(it.Value[2 : 2+uidLen]),
				ServiceClassAppInfo: append([]byte(nil), it.Value[2+uidLen:]...),
			})
		case ItemSOPClassCommonExtended:
			cn, err := decodeCommonExtended(it.Value)
			if err != nil {
				return ui, err
			}
			ui.CommonExtended = append(ui.CommonExtended, cn)
		case ItemUserIdentityRQ:
			uidrq, err := decodeUserIdentityRQ(it.Value)
			if err != nil {
				return ui, err
			}
			ui.UserIdentityRQ = &uidrq
		case ItemUserIdentityAC:
			if len(it.Value) < 2 {
				return ui, newDecodeError(KindMalformedSubItem, "user identity AC sub-item too short")
			}
			rl := int(binary.BigEndian.Uint16(it.Value[0:2]))
			if len(it.Value) < 2+rl {
				return ui, newDecodeError(KindMalformedSubItem, "user identity AC sub-item truncated")
			}
			ui.UserIdentityAC = &UserIdentityAC{ServerResponse: append([]byte(nil), it.Value[2:2+rl]...)}
		default:
			// Unknown sub-items MUST be preserved verbatim (spec.md §4.1).
			ui.Unknown = append(ui.Unknown, RawItem{Type: it.Type, Data: append([]byte(nil), it.Value...)})
		}
	}
	return ui, nil
}

func decodeCommonExtended(value []byte) (SOPClassCommonExtendedNegotiation, error) {
	var cn SOPClassCommonExtendedNegotiation
	offset := 0
	readField := func() (string, error) {
		if offset+2 > len(value) {
			return "", newDecodeError(KindMalformedSubItem, "common extended negotiation sub-item truncated")
		}
		l := int(binary.BigEndian.Uint16(value[offset : offset+2]))
		offset += 2
		if offset+l > len(value) {
			return "", newDecodeError(KindMalformedSubItem, "common extended negotiation sub-item truncated")
		}
		s := trimUID(value[offset : offset+l])
		offset += l
		return s, nil
	}
	var err error
	if cn.SOPClassUID, err = readField(); err != nil {
		return cn, err
	}
	if cn.ServiceClassUID, err = readField(); err != nil {
		return cn, err
	}
	if offset+2 > len(value) {
		return cn, newDecodeError(KindMalformedSubItem, "common extended negotiation related-UIDs length missing")
	}
	relatedLen := int(binary.BigEndian.Uint16(value[offset : offset+2]))
	offset += 2
	end := offset + relatedLen
	if end > len(value) {
		return cn, newDecodeError(KindMalformedSubItem, "common extended negotiation related-UIDs truncated")
	}
	for offset < end {
		uid, err := readField()
		if err != nil {
			return cn, err
		}
		cn.RelatedGeneralSOPClassUIDs = append(cn.RelatedGeneralSOPClassUIDs, uid)
	}
	return cn, nil
}

func decodeUserIdentityRQ(value []byte) (UserIdentityRQ, error) {
	if len(value) < 4 {
		return UserIdentityRQ{}, newDecodeError(KindMalformedSubItem, "user identity RQ sub-item too short")
	}
	u := UserIdentityRQ{Type: value[0], PositiveResponseRequested: value[1] != 0}
	pl := int(binary.BigEndian.Uint16(value[2:4]))
	offset := 4
	if offset+pl+2 > len(value) {
		return u, newDecodeError(KindMalformedSubItem, "user identity RQ primary field truncated")
	}
	u.PrimaryField = append([]byte(nil), value[offset:offset+pl]...)
	offset += pl
	sl := int(binary.BigEndian.Uint16(value[offset : offset+2]))
	offset += 2
	if offset+sl > len(value) {
		return u, newDecodeError(KindMalformedSubItem, "user identity RQ secondary field truncated")
	}
	u.SecondaryField = append([]byte(nil), value[offset:offset+sl]...)
	return u, nil
}
