package bufferpool

import (
	"sync"
	"sync/atomic"

	"github.com/go-faster/errors"
	"go.uber.org/multierr"

	"github.com/llifei/db2023/src"
	"github.com/llifei/db2023/src/pkg/cache"
	"github.com/llifei/db2023/src/pkg/common"
	"github.com/llifei/db2023/src/storage/page"
)

// MinResidentPages is the smallest page cache the engine can run with.
const MinResidentPages = 10

type DiskManager interface {
	ReadPage(pageNo common.PageNo) ([]byte, error)
	WritePage(pageNo common.PageNo, data []byte) error
	Truncate(pageCount common.PageNo) error
	PageCount() (common.PageNo, error)
	Close() error
}

type BufferPool interface {
	// NewPage appends a page holding initData to the file. The page is written
	// through and is not cached.
	NewPage(initData []byte) (common.PageNo, error)
	GetPage(pageNo common.PageNo) (*page.Page, error)
	Release(p *page.Page)
	FlushPage(p *page.Page) error
	TruncateByPageNo(maxPageNo common.PageNo) error
	PageCount() common.PageNo
	// FlushErr reports the first write-back of an evicted page that failed.
	// After it is set the pool refuses further work.
	FlushErr() error
	Close() error
}

type Manager struct {
	pages     *cache.Cache[common.PageNo, *page.Page]
	disk      DiskManager
	pageCount atomic.Uint32
	logger    src.Logger

	mu       sync.Mutex
	flushErr error
}

var (
	_ BufferPool = &Manager{}
)

// ResidentPages converts a memory budget in bytes to a page cache capacity.
func ResidentPages(mem int64) int {
	return int(mem / page.PageSize)
}

func New(maxResident int, disk DiskManager, logger src.Logger) (*Manager, error) {
	if maxResident < MinResidentPages {
		return nil, errors.Wrapf(
			common.ErrMemTooSmall,
			"%d resident pages, need at least %d",
			maxResident,
			MinResidentPages,
		)
	}

	count, err := disk.PageCount()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		disk:   disk,
		logger: logger,
	}
	m.pageCount.Store(uint32(count))
	m.pages = cache.New(maxResident, m.load, m.evict)

	return m, nil
}

func (m *Manager) load(pageNo common.PageNo) (*page.Page, error) {
	data, err := m.disk.ReadPage(pageNo)
	if err != nil {
		return nil, err
	}

	return page.New(pageNo, data), nil
}

func (m *Manager) evict(pageNo common.PageNo, p *page.Page) {
	if !p.IsDirty() {
		return
	}

	if err := m.flush(p); err != nil {
		m.logger.Errorw("failed to flush evicted page", "page", pageNo, "error", err)

		m.mu.Lock()
		if m.flushErr == nil {
			m.flushErr = multierr.Append(errors.Wrapf(common.ErrLostWrite, "page %d", pageNo), err)
		}
		m.mu.Unlock()

		return
	}

	p.SetDirtiness(false)
}

func (m *Manager) FlushErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.flushErr
}

func (m *Manager) flush(p *page.Page) error {
	return m.disk.WritePage(p.PageNo(), p.Data())
}

func (m *Manager) NewPage(initData []byte) (common.PageNo, error) {
	pageNo := common.PageNo(m.pageCount.Add(1))

	if err := m.disk.WritePage(pageNo, initData); err != nil {
		return common.NilPageNo, err
	}

	return pageNo, nil
}

func (m *Manager) GetPage(pageNo common.PageNo) (*page.Page, error) {
	if err := m.FlushErr(); err != nil {
		return nil, err
	}

	return m.pages.Get(pageNo)
}

func (m *Manager) Release(p *page.Page) {
	m.pages.Release(p.PageNo())
}

func (m *Manager) FlushPage(p *page.Page) error {
	if err := m.FlushErr(); err != nil {
		return err
	}

	return m.flush(p)
}

// TruncateByPageNo shrinks the heap file to maxPageNo pages. Recovery uses it
// to drop pages that were allocated but never logged.
func (m *Manager) TruncateByPageNo(maxPageNo common.PageNo) error {
	if err := m.disk.Truncate(maxPageNo); err != nil {
		return err
	}

	m.pageCount.Store(uint32(maxPageNo))

	return nil
}

func (m *Manager) PageCount() common.PageNo {
	return common.PageNo(m.pageCount.Load())
}

// Close flushes every dirty resident page and closes the file. A page that
// could not be written back is reported here too.
func (m *Manager) Close() error {
	m.pages.Close()

	return multierr.Combine(m.FlushErr(), m.disk.Close())
}
