package recovery

import (
	"bytes"
	"encoding/binary"

	"github.com/go-faster/errors"

	"github.com/llifei/db2023/src/pkg/common"
)

const (
	tagSize          = 1
	txnIDSize        = 8
	insertHeaderSize = tagSize + txnIDSize + 4 + 2
	updateHeaderSize = tagSize + txnIDSize + 8
)

var ErrMalformedRecord = errors.New("malformed log record")

// MarshalBinary for InsertLogRecord.
func (r *InsertLogRecord) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Grow(insertHeaderSize + len(r.Raw))
	buf.WriteByte(byte(TypeInsert))

	if err := binary.Write(buf, binary.BigEndian, uint64(r.TxnID)); err != nil {
		return nil, err
	}

	if err := binary.Write(buf, binary.BigEndian, uint32(r.PageNo)); err != nil {
		return nil, err
	}

	if err := binary.Write(buf, binary.BigEndian, r.Offset); err != nil {
		return nil, err
	}

	buf.Write(r.Raw)

	return buf.Bytes(), nil
}

func (r *InsertLogRecord) UnmarshalBinary(data []byte) error {
	if len(data) < insertHeaderSize {
		return errors.Wrapf(ErrMalformedRecord, "insert record of %d bytes", len(data))
	}

	if data[0] != byte(TypeInsert) {
		return errors.Wrapf(ErrMalformedRecord, "invalid type tag for InsertLogRecord: %x", data[0])
	}

	reader := bytes.NewReader(data[tagSize:insertHeaderSize])

	var (
		txnID  uint64
		pageNo uint32
	)

	if err := binary.Read(reader, binary.BigEndian, &txnID); err != nil {
		return err
	}

	if err := binary.Read(reader, binary.BigEndian, &pageNo); err != nil {
		return err
	}

	if err := binary.Read(reader, binary.BigEndian, &r.Offset); err != nil {
		return err
	}

	r.TxnID = common.TxnID(txnID)
	r.PageNo = common.PageNo(pageNo)
	r.Raw = bytes.Clone(data[insertHeaderSize:])

	return nil
}

// MarshalBinary for UpdateLogRecord.
func (r *UpdateLogRecord) MarshalBinary() ([]byte, error) {
	if len(r.OldRaw) != len(r.NewRaw) {
		return nil, errors.Wrapf(
			ErrMalformedRecord,
			"old and new images differ in length: %d != %d",
			len(r.OldRaw),
			len(r.NewRaw),
		)
	}

	buf := new(bytes.Buffer)
	buf.Grow(updateHeaderSize + 2*len(r.OldRaw))
	buf.WriteByte(byte(TypeUpdate))

	if err := binary.Write(buf, binary.BigEndian, uint64(r.TxnID)); err != nil {
		return nil, err
	}

	if err := binary.Write(buf, binary.BigEndian, uint64(r.UID)); err != nil {
		return nil, err
	}

	buf.Write(r.OldRaw)
	buf.Write(r.NewRaw)

	return buf.Bytes(), nil
}

func (r *UpdateLogRecord) UnmarshalBinary(data []byte) error {
	if len(data) < updateHeaderSize {
		return errors.Wrapf(ErrMalformedRecord, "update record of %d bytes", len(data))
	}

	if data[0] != byte(TypeUpdate) {
		return errors.Wrapf(ErrMalformedRecord, "invalid type tag for UpdateLogRecord: %x", data[0])
	}

	images := data[updateHeaderSize:]
	if len(images)%2 != 0 {
		return errors.Wrapf(ErrMalformedRecord, "odd image length %d", len(images))
	}

	r.TxnID = common.TxnID(binary.BigEndian.Uint64(data[tagSize : tagSize+txnIDSize]))
	r.UID = common.UID(binary.BigEndian.Uint64(data[tagSize+txnIDSize : updateHeaderSize]))

	half := len(images) / 2
	r.OldRaw = bytes.Clone(images[:half])
	r.NewRaw = bytes.Clone(images[half:])

	return nil
}

// ReadLogRecord decodes data with the variant named by its type tag.
func ReadLogRecord(data []byte) (LogRecord, error) {
	if len(data) < tagSize {
		return nil, errors.Wrap(ErrMalformedRecord, "empty record")
	}

	switch LogRecordTypeTag(data[0]) {
	case TypeInsert:
		r := &InsertLogRecord{}
		if err := r.UnmarshalBinary(data); err != nil {
			return nil, err
		}

		return r, nil
	case TypeUpdate:
		r := &UpdateLogRecord{}
		if err := r.UnmarshalBinary(data); err != nil {
			return nil, err
		}

		return r, nil
	default:
		return nil, errors.Wrapf(common.ErrUnknownLogRecord, "type tag %x", data[0])
	}
}
