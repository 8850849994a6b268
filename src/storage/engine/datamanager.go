// Package engine is the record layer: it stores length-prefixed byte records
// in heap pages, addressed by uids, and logs every change ahead of the page
// write.
package engine

import (
	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/llifei/db2023/src"
	"github.com/llifei/db2023/src/bufferpool"
	"github.com/llifei/db2023/src/pkg/assert"
	"github.com/llifei/db2023/src/pkg/cache"
	"github.com/llifei/db2023/src/pkg/common"
	"github.com/llifei/db2023/src/pkg/optional"
	"github.com/llifei/db2023/src/recovery"
	"github.com/llifei/db2023/src/storage/disk"
	"github.com/llifei/db2023/src/storage/index"
	"github.com/llifei/db2023/src/storage/page"
)

const maxInsertAttempts = 5

const pageOneNo common.PageNo = 1

type DataManager struct {
	pool  bufferpool.BufferPool
	wal   *recovery.Logger
	index *index.FreeSpaceIndex
	items *cache.Cache[common.UID, *DataItem]

	pageOne *page.Page
	session uuid.UUID

	recovered optional.Optional[recovery.Stats]

	logger src.Logger
}

func newDataManager(
	pool bufferpool.BufferPool,
	wal *recovery.Logger,
	logger src.Logger,
) *DataManager {
	dm := &DataManager{
		pool:      pool,
		wal:       wal,
		index:     index.NewFreeSpaceIndex(),
		session:   uuid.New(),
		recovered: optional.None[recovery.Stats](),
		logger:    logger,
	}
	dm.items = cache.New(0, dm.loadItem, dm.evictItem)

	return dm
}

// Create makes the heap file and the log for a new database at path. mem is
// the page cache budget in bytes.
func Create(
	fs afero.Fs,
	path string,
	mem int64,
	logger src.Logger,
) (*DataManager, error) {
	d, err := disk.Create(fs, GetHeapFilePath(path))
	if err != nil {
		return nil, err
	}

	pool, err := bufferpool.New(bufferpool.ResidentPages(mem), d, logger)
	if err != nil {
		return nil, multierr.Append(err, d.Close())
	}

	wal, err := recovery.CreateLogger(fs, GetLogFilePath(path), logger)
	if err != nil {
		return nil, multierr.Append(err, pool.Close())
	}

	dm := newDataManager(pool, wal, logger)
	if err := dm.initPageOne(); err != nil {
		return nil, multierr.Combine(err, wal.Close(), pool.Close())
	}

	logger.Infow("heap created", "path", path, "session", dm.session)

	return dm, nil
}

// Open loads an existing database, running recovery when the previous
// session did not close cleanly.
func Open(
	fs afero.Fs,
	path string,
	mem int64,
	ledger common.TxnLedger,
	logger src.Logger,
) (*DataManager, error) {
	d, err := disk.Open(fs, GetHeapFilePath(path))
	if err != nil {
		return nil, err
	}

	pool, err := bufferpool.New(bufferpool.ResidentPages(mem), d, logger)
	if err != nil {
		return nil, multierr.Append(err, d.Close())
	}

	wal, err := recovery.OpenLogger(fs, GetLogFilePath(path), logger)
	if err != nil {
		return nil, multierr.Append(err, pool.Close())
	}

	dm := newDataManager(pool, wal, logger)

	clean, err := dm.loadCheckPageOne()
	if err != nil {
		return nil, multierr.Combine(err, dm.releasePageOne(), wal.Close(), pool.Close())
	}

	if !clean {
		logger.Warnw("database was not closed cleanly", "path", path)

		stats, err := recovery.Recover(ledger, wal, pool, logger)
		if err != nil {
			return nil, multierr.Combine(err, dm.releasePageOne(), wal.Close(), pool.Close())
		}

		dm.recovered = optional.Some(stats)
	}

	if err := dm.fillPageIndex(); err != nil {
		return nil, multierr.Combine(err, dm.releasePageOne(), wal.Close(), pool.Close())
	}

	page.SetVcOpen(dm.pageOne, dm.session)
	if err := pool.FlushPage(dm.pageOne); err != nil {
		return nil, multierr.Combine(err, dm.releasePageOne(), wal.Close(), pool.Close())
	}

	logger.Infow(
		"heap opened",
		"path", path,
		"session", dm.session,
		"pages", pool.PageCount(),
		"recovered", !clean,
	)

	return dm, nil
}

func (dm *DataManager) initPageOne() error {
	pageNo, err := dm.pool.NewPage(page.InitPageOneRaw(dm.session))
	if err != nil {
		return err
	}

	assert.Assert(pageNo == pageOneNo, "page one was allocated as page %d", pageNo)

	dm.pageOne, err = dm.pool.GetPage(pageOneNo)

	return err
}

// loadCheckPageOne pins page one and reports whether the last session closed
// cleanly. A heap without a stamped page one was never fully created.
func (dm *DataManager) loadCheckPageOne() (bool, error) {
	if dm.pool.PageCount() < pageOneNo {
		return false, errors.Wrap(common.ErrBadHeapFile, "page one is missing")
	}

	p, err := dm.pool.GetPage(pageOneNo)
	if err != nil {
		return false, err
	}

	dm.pageOne = p

	if !page.HasVc(p) {
		return false, errors.Wrap(common.ErrBadHeapFile, "page one has no open marker")
	}

	return page.CheckVc(p), nil
}

func (dm *DataManager) releasePageOne() error {
	if dm.pageOne == nil {
		return nil
	}

	dm.pool.Release(dm.pageOne)
	dm.pageOne = nil

	return nil
}

func (dm *DataManager) fillPageIndex() error {
	count := dm.pool.PageCount()

	for pageNo := pageOneNo + 1; pageNo <= count; pageNo++ {
		p, err := dm.pool.GetPage(pageNo)
		if err != nil {
			return err
		}

		dm.index.Add(pageNo, page.FreeSpace(p))
		dm.pool.Release(p)
	}

	return nil
}

func (dm *DataManager) loadItem(uid common.UID) (*DataItem, error) {
	addr, ok := uid.Address()
	if !ok || addr.PageNo <= pageOneNo || addr.PageNo > dm.pool.PageCount() {
		return nil, errors.Wrapf(common.ErrInvalidUID, "%d", uid)
	}

	if int(addr.Offset)+page.SlotHeaderSize > page.PageSize {
		return nil, errors.Wrapf(common.ErrInvalidUID, "%s", addr)
	}

	p, err := dm.pool.GetPage(addr.PageNo)
	if err != nil {
		return nil, err
	}

	data := p.Data()
	end := int(addr.Offset) + page.SlotHeaderSize + int(page.SlotSize(data[addr.Offset:]))
	if end > page.PageSize {
		dm.pool.Release(p)
		return nil, errors.Wrapf(common.ErrInvalidUID, "%s", addr)
	}

	return newDataItem(data[addr.Offset:end:end], uid, p, dm), nil
}

func (dm *DataManager) evictItem(_ common.UID, di *DataItem) {
	dm.pool.Release(di.page)
}

// Read returns the item at uid, or nil when the slot has been invalidated.
// A non-nil item must be released.
func (dm *DataManager) Read(uid common.UID) (*DataItem, error) {
	di, err := dm.items.Get(uid)
	if err != nil {
		return nil, err
	}

	if !di.IsValid() {
		di.Release()
		return nil, nil
	}

	return di, nil
}

func (dm *DataManager) Release(di *DataItem) {
	dm.items.Release(di.uid)
}

// Insert stores data as a new record of xid and returns its uid.
func (dm *DataManager) Insert(xid common.TxnID, data []byte) (common.UID, error) {
	raw := page.WrapSlot(data)
	if len(raw) > page.MaxFreeSpace {
		return 0, errors.Wrapf(common.ErrDataTooLarge, "%d bytes", len(data))
	}

	info, err := dm.selectPage(len(raw))
	if err != nil {
		return 0, err
	}

	p, err := dm.pool.GetPage(info.PageNo)
	if err != nil {
		dm.index.Add(info.PageNo, info.FreeSpace)
		return 0, err
	}

	freeSpace := info.FreeSpace
	defer func() {
		dm.index.Add(p.PageNo(), freeSpace)
		dm.pool.Release(p)
	}()

	p.Lock()
	defer p.Unlock()

	assert.Assert(
		page.FreeSpace(p) >= len(raw),
		"page %d has %d free bytes, index promised %d",
		p.PageNo(),
		page.FreeSpace(p),
		info.FreeSpace,
	)

	offset := page.FSO(p)

	r := recovery.NewInsertLogRecord(xid, p.PageNo(), offset, raw)
	if err := dm.wal.LogRecord(&r); err != nil {
		return 0, err
	}

	page.Insert(p, raw)
	freeSpace = page.FreeSpace(p)

	return common.Address{PageNo: p.PageNo(), Offset: offset}.UID(), nil
}

func (dm *DataManager) selectPage(need int) (index.PageInfo, error) {
	for range maxInsertAttempts {
		if info, ok := dm.index.Select(need).Get(); ok {
			return info, nil
		}

		pageNo, err := dm.pool.NewPage(page.InitHeapRaw())
		if err != nil {
			return index.PageInfo{}, err
		}

		dm.index.Add(pageNo, page.MaxFreeSpace)
	}

	return index.PageInfo{}, common.ErrDatabaseBusy
}

func (dm *DataManager) logUpdate(xid common.TxnID, di *DataItem) error {
	oldRaw, newRaw := di.snapshots()
	r := recovery.NewUpdateLogRecord(xid, di.uid, oldRaw, newRaw)

	return dm.wal.LogRecord(&r)
}

// Close releases every cached record, closes the log and marks the heap as
// cleanly closed. When a page could not be written back the mark is left out,
// so the next Open replays the log.
func (dm *DataManager) Close() error {
	// releasing the items evicts every heap page but page one
	dm.items.Close()

	var err error
	err = multierr.Append(err, dm.wal.Close())

	if flushErr := dm.pool.FlushErr(); flushErr != nil {
		dm.logger.Errorw("heap left unclean, next open recovers", "error", flushErr)
	} else {
		page.SetVcClose(dm.pageOne)
		err = multierr.Append(err, dm.pool.FlushPage(dm.pageOne))
	}

	err = multierr.Append(err, dm.releasePageOne())
	err = multierr.Append(err, dm.pool.Close())

	if err == nil {
		dm.logger.Infow("heap closed", "session", dm.session)
	}

	return err
}

// Session identifies this open of the heap file; it seeds the page one
// marker.
func (dm *DataManager) Session() uuid.UUID {
	return dm.session
}

// Recovered holds what recovery did during Open, if it ran.
func (dm *DataManager) Recovered() optional.Optional[recovery.Stats] {
	return dm.recovered
}
