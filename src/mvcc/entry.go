package mvcc

import (
	"encoding/binary"
	"slices"

	"github.com/llifei/db2023/src/pkg/common"
	"github.com/llifei/db2023/src/storage/engine"
)

// Entry layout: [xmin:8][xmax:8][payload]. xmax is zero until a transaction
// deletes the version.
const (
	xminOffset  = 0
	xmaxOffset  = 8
	entryHeader = 16
)

func WrapEntryRaw(xid common.TxnID, data []byte) []byte {
	raw := make([]byte, entryHeader+len(data))
	binary.BigEndian.PutUint64(raw[xminOffset:xmaxOffset], uint64(xid))
	copy(raw[entryHeader:], data)

	return raw
}

// Entry is one version of a row, backed by a cached data item.
type Entry struct {
	uid  common.UID
	item *engine.DataItem
	vm   *VersionManager
}

func (e *Entry) UID() common.UID {
	return e.uid
}

// Data returns a copy of the payload.
func (e *Entry) Data() []byte {
	e.item.RLock()
	defer e.item.RUnlock()

	return slices.Clone(e.item.Data()[entryHeader:])
}

func (e *Entry) XMIN() common.TxnID {
	e.item.RLock()
	defer e.item.RUnlock()

	return common.TxnID(binary.BigEndian.Uint64(e.item.Data()[xminOffset:xmaxOffset]))
}

func (e *Entry) XMAX() common.TxnID {
	e.item.RLock()
	defer e.item.RUnlock()

	return common.TxnID(binary.BigEndian.Uint64(e.item.Data()[xmaxOffset:entryHeader]))
}

// SetXMAX marks the version as deleted by xid.
func (e *Entry) SetXMAX(xid common.TxnID) error {
	return e.item.Update(xid, func(data []byte) error {
		binary.BigEndian.PutUint64(data[xmaxOffset:entryHeader], uint64(xid))
		return nil
	})
}

func (e *Entry) Release() {
	e.vm.entries.Release(e.uid)
}
