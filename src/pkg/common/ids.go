package common

import (
	"fmt"
)

// TxnID is a monotonically increasing transaction identifier. Id 0 is the
// implicit super transaction used for bootstrap writes.
type TxnID uint64

const SuperTxnID TxnID = 0

// PageNo is a 1-based page number inside the heap file.
type PageNo uint32

const NilPageNo PageNo = 0

// UID names one record slot. Consumers treat it as opaque; only the record
// layer encodes and decodes it.
type UID uint64

const (
	uidOffsetBits = 16
	uidPageShift  = 32
	uidOffsetMask = (1 << uidOffsetBits) - 1
	uidUnusedMask = ((1 << uidPageShift) - 1) &^ uidOffsetMask
)

// Address is the decoded form of a UID: the page and the byte offset of the
// slot inside it.
type Address struct {
	PageNo PageNo
	Offset uint16
}

func (a Address) UID() UID {
	return UID(uint64(a.PageNo)<<uidPageShift | uint64(a.Offset))
}

func (a Address) String() string {
	return fmt.Sprintf("%d:%d", a.PageNo, a.Offset)
}

// Address decodes the uid. ok is false when the reserved bits [16,32) are set.
func (u UID) Address() (addr Address, ok bool) {
	addr = Address{
		PageNo: PageNo(uint64(u) >> uidPageShift),
		Offset: uint16(uint64(u) & uidOffsetMask),
	}

	return addr, uint64(u)&uidUnusedMask == 0
}
