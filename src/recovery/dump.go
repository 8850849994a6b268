package recovery

import (
	"io"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// EncodeJSON writes r as one JSON object. Slot images are base64.
func EncodeJSON(e *jx.Encoder, r LogRecord) {
	e.ObjStart()

	e.FieldStart("type")
	e.Str(r.Tag().String())
	e.FieldStart("xid")
	e.UInt64(uint64(r.Txn()))

	switch r := r.(type) {
	case *InsertLogRecord:
		e.FieldStart("page")
		e.UInt32(uint32(r.PageNo))
		e.FieldStart("offset")
		e.UInt32(uint32(r.Offset))
		e.FieldStart("raw")
		e.Base64(r.Raw)
	case *UpdateLogRecord:
		e.FieldStart("uid")
		e.UInt64(uint64(r.UID))
		if addr, err := r.Location(); err == nil {
			e.FieldStart("page")
			e.UInt32(uint32(addr.PageNo))
			e.FieldStart("offset")
			e.UInt32(uint32(addr.Offset))
		}
		e.FieldStart("old")
		e.Base64(r.OldRaw)
		e.FieldStart("new")
		e.Base64(r.NewRaw)
	}

	e.ObjEnd()
}

// Dump writes every record of wal to w as JSON lines, from the start of the
// log. It returns the number of records written.
func Dump(w io.Writer, wal *Logger) (int, error) {
	wal.Rewind()

	var (
		e jx.Encoder
		n int
	)

	for {
		data, ok := wal.Next()
		if !ok {
			return n, nil
		}

		r, err := ReadLogRecord(data)
		if err != nil {
			return n, errors.Wrapf(err, "record %d", n)
		}

		e.Reset()
		EncodeJSON(&e, r)

		if _, err := w.Write(append(e.Bytes(), '\n')); err != nil {
			return n, err
		}

		n++
	}
}
