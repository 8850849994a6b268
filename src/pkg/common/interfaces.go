package common

// TxnStatusReader exposes the durable transaction states recorded by the
// ledger. Recovery and visibility checks depend only on this.
type TxnStatusReader interface {
	IsActive(xid TxnID) (bool, error)
	IsCommitted(xid TxnID) (bool, error)
	IsAborted(xid TxnID) (bool, error)
}

// TxnLedger is the full ledger contract used by the version manager and
// recovery.
type TxnLedger interface {
	TxnStatusReader

	Begin() (TxnID, error)
	Commit(xid TxnID) error
	Abort(xid TxnID) error
}
