package txns

import (
	"slices"
	"sync"

	"github.com/llifei/db2023/src/pkg/assert"
	"github.com/llifei/db2023/src/pkg/common"
)

// LockTable grants exclusive logical locks on records to transactions.
// Waiters queue up in FIFO order per record. A request that would close a
// cycle in the wait-for graph is rejected with common.ErrDeadlock.
type LockTable struct {
	mu sync.Mutex

	holders  map[common.UID]common.TxnID
	held     map[common.TxnID][]common.UID
	waiters  map[common.UID][]common.TxnID
	waitsFor map[common.TxnID]common.UID
	notifier map[common.TxnID]chan struct{}

	stamp     int
	xidStamps map[common.TxnID]int
}

func NewLockTable() *LockTable {
	return &LockTable{
		holders:  map[common.UID]common.TxnID{},
		held:     map[common.TxnID][]common.UID{},
		waiters:  map[common.UID][]common.TxnID{},
		waitsFor: map[common.TxnID]common.UID{},
		notifier: map[common.TxnID]chan struct{}{},
	}
}

// Add requests uid on behalf of xid. A nil channel means the lock is held
// right away. Otherwise the returned channel is closed once ownership is
// transferred to xid.
func (lt *LockTable) Add(xid common.TxnID, uid common.UID) (<-chan struct{}, error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if slices.Contains(lt.held[xid], uid) {
		return nil, nil
	}

	if _, ok := lt.holders[uid]; !ok {
		lt.grant(xid, uid)
		return nil, nil
	}

	_, alreadyWaiting := lt.waitsFor[xid]
	assert.Assert(!alreadyWaiting, "transaction %d is already waiting", xid)

	lt.waitsFor[xid] = uid
	lt.waiters[uid] = append(lt.waiters[uid], xid)

	if lt.hasDeadlock() {
		delete(lt.waitsFor, xid)
		lt.dropWaiter(uid, xid)

		return nil, common.ErrDeadlock
	}

	n := make(chan struct{})
	lt.notifier[xid] = n

	return n, nil
}

// Remove releases every lock held by xid, handing each record to the oldest
// transaction still waiting for it. A pending wait of xid is cancelled and
// its channel closed without granting the record.
func (lt *LockTable) Remove(xid common.TxnID) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	for _, uid := range lt.held[xid] {
		lt.transfer(uid)
	}

	if uid, ok := lt.waitsFor[xid]; ok {
		delete(lt.waitsFor, xid)
		lt.dropWaiter(uid, xid)

		// wake the cancelled waiter; it finds the record still not held
		close(lt.notifier[xid])
	}

	delete(lt.held, xid)
	delete(lt.notifier, xid)
}

// Holds reports whether xid currently holds uid.
func (lt *LockTable) Holds(xid common.TxnID, uid common.UID) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	return slices.Contains(lt.held[xid], uid)
}

// Waiting reports whether xid is queued for some record.
func (lt *LockTable) Waiting(xid common.TxnID) bool {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	_, ok := lt.waitsFor[xid]
	return ok
}

// Holder reports which transaction holds uid.
func (lt *LockTable) Holder(uid common.UID) (common.TxnID, bool) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	xid, ok := lt.holders[uid]
	return xid, ok
}

func (lt *LockTable) grant(xid common.TxnID, uid common.UID) {
	lt.holders[uid] = xid
	lt.held[xid] = append(lt.held[xid], uid)
}

func (lt *LockTable) transfer(uid common.UID) {
	delete(lt.holders, uid)

	queue := lt.waiters[uid]
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		if _, waiting := lt.waitsFor[next]; !waiting {
			continue
		}

		delete(lt.waitsFor, next)
		lt.grant(next, uid)

		n, ok := lt.notifier[next]
		assert.Assert(ok, "no notifier for waiting transaction %d", next)
		delete(lt.notifier, next)
		close(n)

		break
	}

	if len(queue) == 0 {
		delete(lt.waiters, uid)
		return
	}

	lt.waiters[uid] = queue
}

func (lt *LockTable) dropWaiter(uid common.UID, xid common.TxnID) {
	queue := slices.DeleteFunc(lt.waiters[uid], func(x common.TxnID) bool {
		return x == xid
	})

	if len(queue) == 0 {
		delete(lt.waiters, uid)
		return
	}

	lt.waiters[uid] = queue
}

func (lt *LockTable) hasDeadlock() bool {
	lt.xidStamps = map[common.TxnID]int{}
	lt.stamp = 1

	for xid := range lt.held {
		if s := lt.xidStamps[xid]; s > 0 {
			continue
		}

		lt.stamp++
		if lt.dfs(xid) {
			return true
		}
	}

	return false
}

func (lt *LockTable) dfs(xid common.TxnID) bool {
	s, visited := lt.xidStamps[xid]
	if visited && s == lt.stamp {
		return true
	}

	if visited && s < lt.stamp {
		return false
	}

	lt.xidStamps[xid] = lt.stamp

	uid, ok := lt.waitsFor[xid]
	if !ok {
		return false
	}

	holder, ok := lt.holders[uid]
	assert.Assert(ok, "record %d has waiters but no holder", uid)

	return lt.dfs(holder)
}
