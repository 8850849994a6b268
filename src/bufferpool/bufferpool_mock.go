package bufferpool

import (
	"maps"
	"slices"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/multierr"

	"github.com/llifei/db2023/src/pkg/assert"
	"github.com/llifei/db2023/src/pkg/common"
	"github.com/llifei/db2023/src/storage/page"
)

// BufferPool_mock keeps the "disk" in memory. Flushed bytes live in disk,
// resident pages in pages, so tests can observe what would survive a crash.
type BufferPool_mock struct {
	mu sync.Mutex

	disk      map[common.PageNo][]byte
	pages     map[common.PageNo]*page.Page
	pinCounts map[common.PageNo]int
	pageCount common.PageNo

	flushes   int
	failWrite error
	flushErr  error
}

var (
	_ BufferPool = &BufferPool_mock{}
)

func NewBufferPoolMock() *BufferPool_mock {
	return &BufferPool_mock{
		disk:      make(map[common.PageNo][]byte),
		pages:     make(map[common.PageNo]*page.Page),
		pinCounts: make(map[common.PageNo]int),
	}
}

func (b *BufferPool_mock) NewPage(initData []byte) (common.PageNo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pageCount++
	b.disk[b.pageCount] = slices.Clone(initData)
	b.flushes++

	return b.pageCount, nil
}

func (b *BufferPool_mock) GetPage(pageNo common.PageNo) (*page.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.pages[pageNo]; ok {
		b.pinCounts[pageNo]++
		return p, nil
	}

	data, ok := b.disk[pageNo]
	if !ok {
		data = make([]byte, page.PageSize)
	}

	p := page.New(pageNo, slices.Clone(data))
	b.pages[pageNo] = p
	b.pinCounts[pageNo] = 1

	return p, nil
}

func (b *BufferPool_mock) Release(p *page.Page) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pageNo := p.PageNo()
	pinCount, ok := b.pinCounts[pageNo]
	assert.Assert(ok, "page %d not found in pin counts", pageNo)
	assert.Assert(pinCount > 0, "page %d has already been released", pageNo)

	pinCount--
	if pinCount > 0 {
		b.pinCounts[pageNo] = pinCount
		return
	}

	if p.IsDirty() {
		b.flushLocked(p)
	}

	delete(b.pinCounts, pageNo)
	delete(b.pages, pageNo)
}

func (b *BufferPool_mock) FlushPage(p *page.Page) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.flushErr != nil {
		return b.flushErr
	}

	if b.failWrite != nil {
		return b.failWrite
	}

	b.flushLocked(p)

	return nil
}

// flushLocked writes back an unpinned page. A failed write is remembered the
// way Manager remembers it.
func (b *BufferPool_mock) flushLocked(p *page.Page) {
	if b.failWrite != nil {
		if b.flushErr == nil {
			b.flushErr = multierr.Append(
				errors.Wrapf(common.ErrLostWrite, "page %d", p.PageNo()),
				b.failWrite,
			)
		}

		return
	}

	b.disk[p.PageNo()] = slices.Clone(p.Data())
	b.flushes++
}

// FailWrites makes every later write-back fail with err.
func (b *BufferPool_mock) FailWrites(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failWrite = err
}

func (b *BufferPool_mock) FlushErr() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.flushErr
}

func (b *BufferPool_mock) TruncateByPageNo(maxPageNo common.PageNo) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for pageNo := range b.disk {
		if pageNo > maxPageNo {
			delete(b.disk, pageNo)
		}
	}

	b.pageCount = maxPageNo

	return nil
}

func (b *BufferPool_mock) PageCount() common.PageNo {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.pageCount
}

func (b *BufferPool_mock) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for pageNo, p := range b.pages {
		if p.IsDirty() {
			b.flushLocked(p)
		}

		delete(b.pages, pageNo)
		delete(b.pinCounts, pageNo)
	}

	return b.flushErr
}

// DiskImage returns a copy of the flushed bytes of pageNo.
func (b *BufferPool_mock) DiskImage(pageNo common.PageNo) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.Clone(b.disk[pageNo])
}

// Snapshot copies every flushed page.
func (b *BufferPool_mock) Snapshot() map[common.PageNo][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	res := make(map[common.PageNo][]byte, len(b.disk))
	for pageNo, data := range b.disk {
		res[pageNo] = slices.Clone(data)
	}

	return res
}

// PinnedPages lists the pages that still have outstanding references.
func (b *BufferPool_mock) PinnedPages() []common.PageNo {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.Sorted(maps.Keys(b.pinCounts))
}

func (b *BufferPool_mock) Flushes() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.flushes
}
