package page

import (
	"encoding/binary"
)

// A record slot is [valid:1][size:2][payload]. A zero valid byte marks a
// live record.
const (
	slotValidOffset = 0
	slotSizeOffset  = 1
	SlotHeaderSize  = 3

	slotLive    byte = 0
	slotInvalid byte = 1
)

func WrapSlot(payload []byte) []byte {
	raw := make([]byte, SlotHeaderSize+len(payload))
	raw[slotValidOffset] = slotLive
	binary.BigEndian.PutUint16(raw[slotSizeOffset:SlotHeaderSize], uint16(len(payload)))
	copy(raw[SlotHeaderSize:], payload)

	return raw
}

func SetSlotInvalid(raw []byte) {
	raw[slotValidOffset] = slotInvalid
}

func SlotIsValid(raw []byte) bool {
	return raw[slotValidOffset] == slotLive
}

// SlotSize reads the payload length of the slot starting at raw[0].
func SlotSize(raw []byte) uint16 {
	return binary.BigEndian.Uint16(raw[slotSizeOffset:SlotHeaderSize])
}
