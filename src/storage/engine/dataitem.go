package engine

import (
	"slices"
	"sync"

	"github.com/llifei/db2023/src/pkg/common"
	"github.com/llifei/db2023/src/storage/page"
)

// DataItem is a record slot pinned in the page cache. raw aliases the page
// bytes of the slot, so writes go straight to the page.
//
// Mutations follow Before, change Data, then After (or UnBefore to roll the
// change back). Update wraps the three calls.
type DataItem struct {
	rw sync.RWMutex

	raw    []byte
	oldRaw []byte

	uid  common.UID
	page *page.Page
	dm   *DataManager
}

func newDataItem(raw []byte, uid common.UID, p *page.Page, dm *DataManager) *DataItem {
	return &DataItem{
		raw:    raw,
		oldRaw: make([]byte, len(raw)),
		uid:    uid,
		page:   p,
		dm:     dm,
	}
}

func (di *DataItem) IsValid() bool {
	return page.SlotIsValid(di.raw)
}

// Data is the payload view. Writes to it are only allowed between Before and
// After.
func (di *DataItem) Data() []byte {
	return di.raw[page.SlotHeaderSize:]
}

func (di *DataItem) Before() {
	di.rw.Lock()
	di.page.SetDirtiness(true)
	copy(di.oldRaw, di.raw)
}

func (di *DataItem) UnBefore() {
	copy(di.raw, di.oldRaw)
	di.rw.Unlock()
}

// After logs the change made since Before on behalf of xid. If the log
// append fails the change is rolled back.
func (di *DataItem) After(xid common.TxnID) error {
	defer di.rw.Unlock()

	if err := di.dm.logUpdate(xid, di); err != nil {
		copy(di.raw, di.oldRaw)
		return err
	}

	return nil
}

// Update runs fn on the payload under the write lock and logs the result.
func (di *DataItem) Update(xid common.TxnID, fn func(data []byte) error) error {
	di.Before()

	if err := fn(di.Data()); err != nil {
		di.UnBefore()
		return err
	}

	return di.After(xid)
}

// ReadData returns a copy of the payload taken under the read lock.
func (di *DataItem) ReadData() []byte {
	di.rw.RLock()
	defer di.rw.RUnlock()

	return slices.Clone(di.Data())
}

func (di *DataItem) Lock()    { di.rw.Lock() }
func (di *DataItem) Unlock()  { di.rw.Unlock() }
func (di *DataItem) RLock()   { di.rw.RLock() }
func (di *DataItem) RUnlock() { di.rw.RUnlock() }

func (di *DataItem) Release() {
	di.dm.Release(di)
}

func (di *DataItem) UID() common.UID {
	return di.uid
}

func (di *DataItem) Page() *page.Page {
	return di.page
}

func (di *DataItem) snapshots() (oldRaw, newRaw []byte) {
	return slices.Clone(di.oldRaw), slices.Clone(di.raw)
}
