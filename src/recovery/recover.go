package recovery

import (
	"maps"
	"slices"

	"github.com/go-faster/errors"
	"go.uber.org/multierr"

	"github.com/llifei/db2023/src"
	"github.com/llifei/db2023/src/bufferpool"
	"github.com/llifei/db2023/src/pkg/common"
	"github.com/llifei/db2023/src/pkg/metrics"
	"github.com/llifei/db2023/src/storage/page"
)

type Stats struct {
	MaxPageNo   common.PageNo
	Redone      int
	Undone      int
	AbortedTxns []common.TxnID
}

// Recover brings the heap file back to a consistent state after an unclean
// shutdown: effects of committed transactions are redone, effects of aborted
// transactions are rolled back in log order, and transactions still marked
// active are undone in reverse and aborted. Running it again over its own
// result changes nothing. Every error it returns wraps common.ErrRecovery.
func Recover(
	ledger common.TxnLedger,
	wal *Logger,
	pool bufferpool.BufferPool,
	logger src.Logger,
) (Stats, error) {
	logger.Infow("recovery started")

	stats, err := replay(ledger, wal, pool, logger)
	if err != nil {
		return stats, multierr.Combine(common.ErrRecovery, err)
	}

	logger.Infow(
		"recovery finished",
		"max_page", stats.MaxPageNo,
		"redone", stats.Redone,
		"undone", stats.Undone,
		"aborted", len(stats.AbortedTxns),
	)

	return stats, nil
}

func replay(
	ledger common.TxnLedger,
	wal *Logger,
	pool bufferpool.BufferPool,
	logger src.Logger,
) (Stats, error) {
	stats := Stats{}

	records, err := readAll(wal)
	if err != nil {
		return stats, err
	}

	for _, r := range records {
		addr, err := r.Location()
		if err != nil {
			return stats, err
		}

		stats.MaxPageNo = max(stats.MaxPageNo, addr.PageNo)
	}

	if stats.MaxPageNo == common.NilPageNo {
		stats.MaxPageNo = 1
	}

	if err := pool.TruncateByPageNo(stats.MaxPageNo); err != nil {
		return stats, err
	}

	logger.Debugw("heap truncated", "pages", stats.MaxPageNo)

	active := make(map[common.TxnID][]LogRecord)
	rolledBack := make(map[slotOwner]struct{})

	for _, r := range records {
		status, err := statusOf(ledger, r.Txn())
		if err != nil {
			return stats, err
		}

		switch status {
		case txnActive:
			active[r.Txn()] = append(active[r.Txn()], r)
		case txnAborted:
			// Only the earliest image of a slot written by an aborted
			// transaction is restored, the same one a reverse undo ends on.
			key, err := ownerOf(r)
			if err != nil {
				return stats, err
			}

			if _, done := rolledBack[key]; done {
				continue
			}
			rolledBack[key] = struct{}{}

			if err := apply(pool, r, undo); err != nil {
				return stats, err
			}

			stats.Undone++
			metrics.Inc(metrics.Get().RecoveryUndone)
		default:
			if err := apply(pool, r, redo); err != nil {
				return stats, err
			}

			stats.Redone++
			metrics.Inc(metrics.Get().RecoveryRedone)
		}
	}

	logger.Debugw("redo finished", "records", stats.Redone)

	xids := slices.Sorted(maps.Keys(active))
	for _, xid := range xids {
		txnRecords := active[xid]
		for i := len(txnRecords) - 1; i >= 0; i-- {
			if err := apply(pool, txnRecords[i], undo); err != nil {
				return stats, err
			}

			stats.Undone++
			metrics.Inc(metrics.Get().RecoveryUndone)
		}

		if err := ledger.Abort(xid); err != nil {
			return stats, err
		}

		stats.AbortedTxns = append(stats.AbortedTxns, xid)
	}

	logger.Debugw("undo finished", "records", stats.Undone, "txns", len(xids))

	return stats, nil
}

type txnState int

const (
	txnCommitted txnState = iota
	txnActive
	txnAborted
)

func statusOf(ledger common.TxnStatusReader, xid common.TxnID) (txnState, error) {
	isActive, err := ledger.IsActive(xid)
	if err != nil || isActive {
		return txnActive, err
	}

	isAborted, err := ledger.IsAborted(xid)
	if err != nil {
		return txnActive, err
	}

	if isAborted {
		return txnAborted, nil
	}

	return txnCommitted, nil
}

type slotOwner struct {
	xid  common.TxnID
	addr common.Address
}

func ownerOf(r LogRecord) (slotOwner, error) {
	addr, err := r.Location()
	if err != nil {
		return slotOwner{}, err
	}

	return slotOwner{xid: r.Txn(), addr: addr}, nil
}

func readAll(wal *Logger) ([]LogRecord, error) {
	var records []LogRecord

	wal.Rewind()
	for {
		data, ok := wal.Next()
		if !ok {
			break
		}

		r, err := ReadLogRecord(data)
		if err != nil {
			return nil, err
		}

		records = append(records, r)
	}

	return records, nil
}

type direction int

const (
	redo direction = iota
	undo
)

func apply(pool bufferpool.BufferPool, r LogRecord, dir direction) error {
	addr, err := r.Location()
	if err != nil {
		return err
	}

	p, err := pool.GetPage(addr.PageNo)
	if err != nil {
		return err
	}
	defer pool.Release(p)

	p.Lock()
	defer p.Unlock()

	switch r := r.(type) {
	case *InsertLogRecord:
		raw := r.Raw
		if dir == undo {
			raw = slices.Clone(r.Raw)
			page.SetSlotInvalid(raw)
		}

		page.RecoverInsert(p, raw, addr.Offset)
	case *UpdateLogRecord:
		raw := r.NewRaw
		if dir == undo {
			raw = r.OldRaw
		}

		page.RecoverUpdate(p, raw, addr.Offset)
	default:
		return errors.Wrapf(common.ErrUnknownLogRecord, "%T", r)
	}

	return nil
}
