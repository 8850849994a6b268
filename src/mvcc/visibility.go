package mvcc

import (
	"github.com/llifei/db2023/src/pkg/common"
)

// IsVersionSkip reports whether t is about to change a version whose latest
// committed deletion it cannot see. Read-committed never skips.
func IsVersionSkip(ledger common.TxnStatusReader, t *Transaction, e *Entry) (bool, error) {
	return isVersionSkip(ledger, t, e.XMAX())
}

func isVersionSkip(ledger common.TxnStatusReader, t *Transaction, xmax common.TxnID) (bool, error) {
	if t.Level == ReadCommitted {
		return false, nil
	}

	committed, err := ledger.IsCommitted(xmax)
	if err != nil {
		return false, err
	}

	return committed && (xmax > t.ID || t.InSnapshot(xmax)), nil
}

func IsVisible(ledger common.TxnStatusReader, t *Transaction, e *Entry) (bool, error) {
	return isVisible(ledger, t, e.XMIN(), e.XMAX())
}

func isVisible(
	ledger common.TxnStatusReader,
	t *Transaction,
	xmin, xmax common.TxnID,
) (bool, error) {
	if t.Level == ReadCommitted {
		return readCommitted(ledger, t, xmin, xmax)
	}

	return repeatableRead(ledger, t, xmin, xmax)
}

func readCommitted(
	ledger common.TxnStatusReader,
	t *Transaction,
	xmin, xmax common.TxnID,
) (bool, error) {
	if xmin == t.ID && xmax == 0 {
		return true, nil
	}

	committed, err := ledger.IsCommitted(xmin)
	if err != nil || !committed {
		return false, err
	}

	if xmax == 0 {
		return true, nil
	}

	if xmax == t.ID {
		return false, nil
	}

	deleted, err := ledger.IsCommitted(xmax)
	if err != nil {
		return false, err
	}

	return !deleted, nil
}

func repeatableRead(
	ledger common.TxnStatusReader,
	t *Transaction,
	xmin, xmax common.TxnID,
) (bool, error) {
	if xmin == t.ID && xmax == 0 {
		return true, nil
	}

	if xmin >= t.ID || t.InSnapshot(xmin) {
		return false, nil
	}

	committed, err := ledger.IsCommitted(xmin)
	if err != nil || !committed {
		return false, err
	}

	if xmax == 0 {
		return true, nil
	}

	if xmax == t.ID {
		return false, nil
	}

	deleted, err := ledger.IsCommitted(xmax)
	if err != nil {
		return false, err
	}

	return !deleted || xmax > t.ID || t.InSnapshot(xmax), nil
}
