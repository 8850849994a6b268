package page

import (
	"sync"
	"sync/atomic"

	"github.com/llifei/db2023/src/pkg/assert"
	"github.com/llifei/db2023/src/pkg/common"
)

const PageSize = 1 << 13

// Page is an in-memory copy of one heap file page. The byte slice is shared
// by every holder of the page; the latch serializes structural changes such
// as appending a record.
type Page struct {
	latch sync.Mutex
	dirty atomic.Bool

	pageNo common.PageNo
	data   []byte
}

func New(pageNo common.PageNo, data []byte) *Page {
	assert.Assert(len(data) == PageSize, "page %d has %d bytes", pageNo, len(data))

	return &Page{
		pageNo: pageNo,
		data:   data,
	}
}

func (p *Page) PageNo() common.PageNo {
	return p.pageNo
}

func (p *Page) Data() []byte {
	return p.data
}

func (p *Page) SetDirtiness(val bool) {
	p.dirty.Store(val)
}

func (p *Page) IsDirty() bool {
	return p.dirty.Load()
}

func (p *Page) Lock() {
	p.latch.Lock()
}

func (p *Page) Unlock() {
	p.latch.Unlock()
}
