package recovery

import (
	"github.com/go-faster/errors"

	"github.com/llifei/db2023/src/bufferpool"
	"github.com/llifei/db2023/src/pkg/common"
	"github.com/llifei/db2023/src/storage/page"
)

// TxnLogChain scripts heap mutations the way the record layer performs them:
// log first, then change the page. It stops at the first error, which Err
// reports.
type TxnLogChain struct {
	wal   *Logger
	pool  bufferpool.BufferPool
	txnID common.TxnID

	uids []common.UID
	err  error
}

func NewTxnLogChain(
	wal *Logger,
	pool bufferpool.BufferPool,
	txnID common.TxnID,
) *TxnLogChain {
	return &TxnLogChain{
		wal:   wal,
		pool:  pool,
		txnID: txnID,
	}
}

func (c *TxnLogChain) SwitchTransactionID(txnID common.TxnID) *TxnLogChain {
	if c.err != nil {
		return c
	}

	c.txnID = txnID
	return c
}

// Insert appends payload as a live slot to pageNo.
func (c *TxnLogChain) Insert(pageNo common.PageNo, payload []byte) *TxnLogChain {
	if c.err != nil {
		return c
	}

	p, err := c.pool.GetPage(pageNo)
	if err != nil {
		c.err = err
		return c
	}
	defer c.pool.Release(p)

	p.Lock()
	defer p.Unlock()

	raw := page.WrapSlot(payload)
	if page.FreeSpace(p) < len(raw) {
		c.err = errors.Wrapf(common.ErrDataTooLarge, "page %d", pageNo)
		return c
	}

	offset := page.FSO(p)
	r := NewInsertLogRecord(c.txnID, pageNo, offset, raw)
	if c.err = c.wal.LogRecord(&r); c.err != nil {
		return c
	}

	page.Insert(p, raw)
	c.uids = append(c.uids, common.Address{PageNo: pageNo, Offset: offset}.UID())

	return c
}

// Update rewrites the payload of uid. The new payload must keep its length.
func (c *TxnLogChain) Update(uid common.UID, payload []byte) *TxnLogChain {
	if c.err != nil {
		return c
	}

	addr, ok := uid.Address()
	if !ok {
		c.err = common.ErrInvalidUID
		return c
	}

	p, err := c.pool.GetPage(addr.PageNo)
	if err != nil {
		c.err = err
		return c
	}
	defer c.pool.Release(p)

	p.Lock()
	defer p.Unlock()

	slot := p.Data()[addr.Offset:]
	size := int(page.SlotSize(slot))
	if size != len(payload) {
		c.err = errors.Errorf("payload of %d bytes replaces %d bytes", len(payload), size)
		return c
	}

	oldRaw := append([]byte(nil), slot[:page.SlotHeaderSize+size]...)
	newRaw := append([]byte(nil), oldRaw...)
	copy(newRaw[page.SlotHeaderSize:], payload)

	r := NewUpdateLogRecord(c.txnID, uid, oldRaw, newRaw)
	if c.err = c.wal.LogRecord(&r); c.err != nil {
		return c
	}

	page.RecoverUpdate(p, newRaw, addr.Offset)

	return c
}

// UIDs lists the uids of every inserted slot in insertion order.
func (c *TxnLogChain) UIDs() []common.UID {
	return c.uids
}

func (c *TxnLogChain) Err() error {
	return c.err
}
