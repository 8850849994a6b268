package mvcc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llifei/db2023/src/pkg/common"
)

type fakeLedger map[common.TxnID]bool

func (l fakeLedger) IsActive(xid common.TxnID) (bool, error) {
	committed, known := l[xid]
	return xid != common.SuperTxnID && known && !committed, nil
}

func (l fakeLedger) IsCommitted(xid common.TxnID) (bool, error) {
	return xid == common.SuperTxnID || l[xid], nil
}

func (l fakeLedger) IsAborted(common.TxnID) (bool, error) {
	return false, nil
}

func TestVisibility(t *testing.T) {
	// 1, 3 and 6 committed; 2 and 7 still running
	ledger := fakeLedger{1: true, 2: false, 3: true, 6: true, 7: false}

	rc := &Transaction{ID: 5, Level: ReadCommitted}
	rr := &Transaction{
		ID:       5,
		Level:    RepeatableRead,
		snapshot: map[common.TxnID]struct{}{3: {}},
	}

	tests := []struct {
		name       string
		xmin, xmax common.TxnID
		rc, rr     bool
	}{
		{"own insert", 5, 0, true, true},
		{"own insert, own delete", 5, 5, false, false},
		{"super insert", 0, 0, true, true},
		{"committed before", 1, 0, true, true},
		{"uncommitted insert", 2, 0, false, false},
		{"committed but in snapshot", 3, 0, true, false},
		{"committed after begin", 6, 0, true, false},
		{"deleted by self", 1, 5, false, false},
		{"deletion not committed", 1, 2, true, true},
		{"deletion committed before", 1, 1, false, false},
		{"deletion committed, in snapshot", 1, 3, false, true},
		{"deletion committed after begin", 1, 6, false, true},
		{"deletion by running newer", 1, 7, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := isVisible(ledger, rc, tt.xmin, tt.xmax)
			require.NoError(t, err)
			assert.Equal(t, tt.rc, got, "read committed")

			got, err = isVisible(ledger, rr, tt.xmin, tt.xmax)
			require.NoError(t, err)
			assert.Equal(t, tt.rr, got, "repeatable read")
		})
	}
}

func TestVersionSkip(t *testing.T) {
	ledger := fakeLedger{1: true, 3: true, 6: true, 7: false}

	rc := &Transaction{ID: 5, Level: ReadCommitted}
	rr := &Transaction{
		ID:       5,
		Level:    RepeatableRead,
		snapshot: map[common.TxnID]struct{}{3: {}},
	}

	tests := []struct {
		name string
		xmax common.TxnID
		rr   bool
	}{
		{"not deleted", 0, false},
		{"deleted before begin", 1, false},
		{"deleted by snapshot member", 3, true},
		{"deleted after begin", 6, true},
		{"deletion still running", 7, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			skip, err := isVersionSkip(ledger, rc, tt.xmax)
			require.NoError(t, err)
			assert.False(t, skip, "read committed never skips")

			skip, err = isVersionSkip(ledger, rr, tt.xmax)
			require.NoError(t, err)
			assert.Equal(t, tt.rr, skip)
		})
	}
}

func TestSnapshotExcludesSelfAndSuper(t *testing.T) {
	active := map[common.TxnID]*Transaction{
		common.SuperTxnID: nil,
		2:                 nil,
		4:                 nil,
	}

	txn := newTransaction(4, RepeatableRead, active)
	assert.True(t, txn.InSnapshot(2))
	assert.False(t, txn.InSnapshot(4))
	assert.False(t, txn.InSnapshot(common.SuperTxnID))

	assert.Nil(t, newTransaction(5, ReadCommitted, active).snapshot)
}

func TestWrapEntryRaw(t *testing.T) {
	raw := WrapEntryRaw(0x0102, []byte("ab"))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 1, 2, 0, 0, 0, 0, 0, 0, 0, 0, 'a', 'b'}, raw)
}
