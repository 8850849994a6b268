package mvcc

import (
	"github.com/llifei/db2023/src/pkg/common"
)

type IsolationLevel int

const (
	ReadCommitted  IsolationLevel = 0
	RepeatableRead IsolationLevel = 1
)

func (l IsolationLevel) String() string {
	switch l {
	case ReadCommitted:
		return "read-committed"
	case RepeatableRead:
		return "repeatable-read"
	default:
		return "unknown"
	}
}

// Transaction is the runtime state of one begun transaction.
type Transaction struct {
	ID    common.TxnID
	Level IsolationLevel

	// ids active when a repeatable-read transaction began
	snapshot map[common.TxnID]struct{}

	err         error
	autoAborted bool
}

func newTransaction(
	xid common.TxnID,
	level IsolationLevel,
	active map[common.TxnID]*Transaction,
) *Transaction {
	t := &Transaction{
		ID:    xid,
		Level: level,
	}

	if level == RepeatableRead {
		t.snapshot = make(map[common.TxnID]struct{}, len(active))
		for id := range active {
			if id != xid && id != common.SuperTxnID {
				t.snapshot[id] = struct{}{}
			}
		}
	}

	return t
}

func (t *Transaction) InSnapshot(xid common.TxnID) bool {
	if xid == common.SuperTxnID {
		return false
	}

	_, ok := t.snapshot[xid]
	return ok
}
