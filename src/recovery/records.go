package recovery

import (
	"github.com/llifei/db2023/src/pkg/common"
)

type LogRecordTypeTag byte

// Type tags for each log record type.
const (
	TypeInsert LogRecordTypeTag = iota
	TypeUpdate
)

func (t LogRecordTypeTag) String() string {
	switch t {
	case TypeInsert:
		return "insert"
	case TypeUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// InsertLogRecord describes a record slot appended to a heap page.
type InsertLogRecord struct {
	TxnID  common.TxnID
	PageNo common.PageNo
	Offset uint16
	Raw    []byte
}

func NewInsertLogRecord(
	txnID common.TxnID,
	pageNo common.PageNo,
	offset uint16,
	raw []byte,
) InsertLogRecord {
	return InsertLogRecord{
		TxnID:  txnID,
		PageNo: pageNo,
		Offset: offset,
		Raw:    raw,
	}
}

// UpdateLogRecord describes an in-place rewrite of a record slot. OldRaw and
// NewRaw always have the same length.
type UpdateLogRecord struct {
	TxnID  common.TxnID
	UID    common.UID
	OldRaw []byte
	NewRaw []byte
}

func NewUpdateLogRecord(
	txnID common.TxnID,
	uid common.UID,
	oldRaw []byte,
	newRaw []byte,
) UpdateLogRecord {
	return UpdateLogRecord{
		TxnID:  txnID,
		UID:    uid,
		OldRaw: oldRaw,
		NewRaw: newRaw,
	}
}

// LogRecord is implemented by both record variants.
type LogRecord interface {
	Tag() LogRecordTypeTag
	Txn() common.TxnID
	Location() (common.Address, error)
	MarshalBinary() ([]byte, error)
}

var (
	_ LogRecord = &InsertLogRecord{}
	_ LogRecord = &UpdateLogRecord{}
)

func (r *InsertLogRecord) Tag() LogRecordTypeTag { return TypeInsert }
func (r *UpdateLogRecord) Tag() LogRecordTypeTag { return TypeUpdate }

func (r *InsertLogRecord) Txn() common.TxnID { return r.TxnID }
func (r *UpdateLogRecord) Txn() common.TxnID { return r.TxnID }

func (r *InsertLogRecord) Location() (common.Address, error) {
	return common.Address{PageNo: r.PageNo, Offset: r.Offset}, nil
}

func (r *UpdateLogRecord) Location() (common.Address, error) {
	addr, ok := r.UID.Address()
	if !ok {
		return common.Address{}, common.ErrInvalidUID
	}

	return addr, nil
}
