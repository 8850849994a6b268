// Package mvcc layers multi-version rows over the record layer. Every row
// version carries the ids of the transactions that created and deleted it,
// and each transaction only sees the versions its isolation level allows.
package mvcc

import (
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/multierr"

	"github.com/llifei/db2023/src"
	"github.com/llifei/db2023/src/pkg/cache"
	"github.com/llifei/db2023/src/pkg/common"
	"github.com/llifei/db2023/src/pkg/metrics"
	"github.com/llifei/db2023/src/pkg/optional"
	"github.com/llifei/db2023/src/storage/engine"
	"github.com/llifei/db2023/src/txns"
)

var errNullEntry = errors.New("null entry")

type VersionManager struct {
	ledger  common.TxnLedger
	dm      *engine.DataManager
	entries *cache.Cache[common.UID, *Entry]
	locks   *txns.LockTable

	mu     sync.Mutex
	active map[common.TxnID]*Transaction

	logger src.Logger
}

func New(ledger common.TxnLedger, dm *engine.DataManager, logger src.Logger) *VersionManager {
	vm := &VersionManager{
		ledger: ledger,
		dm:     dm,
		locks:  txns.NewLockTable(),
		active: map[common.TxnID]*Transaction{
			common.SuperTxnID: newTransaction(common.SuperTxnID, ReadCommitted, nil),
		},
		logger: logger,
	}
	vm.entries = cache.New(0, vm.loadEntry, vm.evictEntry)

	return vm
}

func (vm *VersionManager) loadEntry(uid common.UID) (*Entry, error) {
	di, err := vm.dm.Read(uid)
	if err != nil {
		return nil, err
	}

	if di == nil {
		return nil, errNullEntry
	}

	if len(di.Data()) < entryHeader {
		di.Release()
		return nil, errors.Wrapf(common.ErrInvalidUID, "record %d is not a version", uid)
	}

	return &Entry{uid: uid, item: di, vm: vm}, nil
}

func (vm *VersionManager) evictEntry(_ common.UID, e *Entry) {
	e.item.Release()
}

// getEntry returns the live version at uid. ok is false when the record was
// invalidated.
func (vm *VersionManager) getEntry(uid common.UID) (e *Entry, ok bool, err error) {
	e, err = vm.entries.Get(uid)
	if errors.Is(err, errNullEntry) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, err
	}

	return e, true, nil
}

func (vm *VersionManager) txn(xid common.TxnID) (*Transaction, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	t, ok := vm.active[xid]
	if !ok {
		return nil, errors.Wrapf(common.ErrNoSuchTxn, "xid %d", xid)
	}

	return t, t.err
}

// Begin starts a transaction. A repeatable-read transaction remembers the
// transactions that are active at this point.
func (vm *VersionManager) Begin(level IsolationLevel) (common.TxnID, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	xid, err := vm.ledger.Begin()
	if err != nil {
		return 0, err
	}

	vm.active[xid] = newTransaction(xid, level, vm.active)
	metrics.Inc(metrics.Get().TxnBegun)

	vm.logger.Debugw("transaction begun", "xid", xid, "level", level)

	return xid, nil
}

// Read returns the payload at uid as seen by xid.
func (vm *VersionManager) Read(xid common.TxnID, uid common.UID) (optional.Optional[[]byte], error) {
	t, err := vm.txn(xid)
	if err != nil {
		return optional.None[[]byte](), err
	}

	e, ok, err := vm.getEntry(uid)
	if err != nil || !ok {
		return optional.None[[]byte](), err
	}
	defer e.Release()

	visible, err := IsVisible(vm.ledger, t, e)
	if err != nil || !visible {
		return optional.None[[]byte](), err
	}

	return optional.Some(e.Data()), nil
}

// Insert stores data as a new version created by xid.
func (vm *VersionManager) Insert(xid common.TxnID, data []byte) (common.UID, error) {
	if _, err := vm.txn(xid); err != nil {
		return 0, err
	}

	return vm.dm.Insert(xid, WrapEntryRaw(xid, data))
}

// Delete marks the version at uid as deleted by xid. It blocks while another
// transaction holds the version and reports false when there is nothing
// visible to delete.
//
// A deadlock or a version-skip aborts xid; every later call on it fails with
// the same error.
func (vm *VersionManager) Delete(xid common.TxnID, uid common.UID) (bool, error) {
	t, err := vm.txn(xid)
	if err != nil {
		return false, err
	}

	e, ok, err := vm.getEntry(uid)
	if err != nil || !ok {
		return false, err
	}
	defer e.Release()

	visible, err := IsVisible(vm.ledger, t, e)
	if err != nil || !visible {
		return false, err
	}

	wait, err := vm.locks.Add(xid, uid)
	if errors.Is(err, common.ErrDeadlock) {
		metrics.Inc(metrics.Get().LockDeadlocks)
		vm.logger.Warnw("deadlock, aborting transaction", "xid", xid, "uid", uid)

		return false, vm.autoAbort(t, errors.Wrapf(common.ErrDeadlock, "xid %d on uid %d", xid, uid))
	}

	if err != nil {
		return false, err
	}

	if wait != nil {
		<-wait
	}

	if !vm.locks.Holds(xid, uid) {
		// the transaction ended while waiting
		if _, err := vm.txn(xid); err != nil {
			return false, err
		}

		return false, errors.Wrapf(common.ErrNoSuchTxn, "xid %d ended while waiting", xid)
	}

	if e.XMAX() == xid {
		return false, nil
	}

	skip, err := IsVersionSkip(vm.ledger, t, e)
	if err != nil {
		return false, err
	}

	if skip {
		vm.logger.Infow("version skip, aborting transaction", "xid", xid, "uid", uid)

		return false, vm.autoAbort(t, errors.Wrapf(common.ErrConcurrentUpdate, "xid %d on uid %d", xid, uid))
	}

	if err := e.SetXMAX(xid); err != nil {
		return false, err
	}

	return true, nil
}

// Commit makes xid durable and releases its locks. A transaction aborted by
// a conflict reports that conflict instead.
func (vm *VersionManager) Commit(xid common.TxnID) error {
	t, err := vm.end(xid)
	if err != nil {
		return err
	}

	if t.err != nil {
		return t.err
	}

	// status is durable before waiters wake up and look at it
	if err := vm.ledger.Commit(xid); err != nil {
		return err
	}
	vm.locks.Remove(xid)

	metrics.Inc(metrics.Get().TxnCommitted)
	vm.logger.Debugw("transaction committed", "xid", xid)

	return nil
}

// Abort rolls xid back. It is a no-op for a transaction that was already
// aborted by a conflict.
func (vm *VersionManager) Abort(xid common.TxnID) error {
	t, err := vm.end(xid)
	if err != nil {
		return err
	}

	if t.autoAborted {
		return nil
	}

	return vm.abort(t)
}

func (vm *VersionManager) end(xid common.TxnID) (*Transaction, error) {
	if xid == common.SuperTxnID {
		return nil, errors.Wrap(common.ErrNoSuchTxn, "super transaction never ends")
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()

	t, ok := vm.active[xid]
	if !ok {
		return nil, errors.Wrapf(common.ErrNoSuchTxn, "xid %d", xid)
	}

	delete(vm.active, xid)

	return t, nil
}

func (vm *VersionManager) abort(t *Transaction) error {
	if err := vm.ledger.Abort(t.ID); err != nil {
		return err
	}
	vm.locks.Remove(t.ID)

	metrics.Inc(metrics.Get().TxnAborted)
	vm.logger.Debugw("transaction aborted", "xid", t.ID)

	return nil
}

// autoAbort poisons t with cause and aborts it. t stays registered so later
// calls keep failing until the caller ends it.
func (vm *VersionManager) autoAbort(t *Transaction, cause error) error {
	vm.mu.Lock()
	t.err = cause
	t.autoAborted = true
	vm.mu.Unlock()

	return multierr.Append(cause, vm.abort(t))
}

// Close drops every cached version. The record layer is closed by its owner.
func (vm *VersionManager) Close() {
	vm.entries.Close()
}

// Active reports how many user transactions are in flight.
func (vm *VersionManager) Active() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	return len(vm.active) - 1
}
