package page

import (
	"encoding/binary"

	"github.com/llifei/db2023/src/pkg/assert"
)

// Heap pages start with a 2 byte free space offset followed by records
// appended back to back.
const (
	fsoOffset = 0
	fsoSize   = 2

	MaxFreeSpace = PageSize - fsoSize
)

func InitHeapRaw() []byte {
	raw := make([]byte, PageSize)
	setFSO(raw, fsoSize)

	return raw
}

func setFSO(raw []byte, fso uint16) {
	binary.BigEndian.PutUint16(raw[fsoOffset:fsoOffset+fsoSize], fso)
}

func FSO(p *Page) uint16 {
	return getFSO(p.Data())
}

func getFSO(raw []byte) uint16 {
	return binary.BigEndian.Uint16(raw[fsoOffset : fsoOffset+fsoSize])
}

// FreeSpace is the number of bytes still available at the tail of the page.
func FreeSpace(p *Page) int {
	return PageSize - int(FSO(p))
}

// Insert appends raw to the page and returns its offset. The caller must hold
// the page exclusively and have checked the free space.
func Insert(p *Page, raw []byte) uint16 {
	p.SetDirtiness(true)

	offset := FSO(p)
	assert.Assert(
		int(offset)+len(raw) <= PageSize,
		"record of %d bytes does not fit page %d at %d",
		len(raw),
		p.PageNo(),
		offset,
	)

	copy(p.Data()[offset:], raw)
	setFSO(p.Data(), offset+uint16(len(raw)))

	return offset
}

// RecoverInsert writes raw at offset and moves the free space offset past it
// when needed.
func RecoverInsert(p *Page, raw []byte, offset uint16) {
	p.SetDirtiness(true)
	copy(p.Data()[offset:], raw)

	end := offset + uint16(len(raw))
	if FSO(p) < end {
		setFSO(p.Data(), end)
	}
}

func RecoverUpdate(p *Page, raw []byte, offset uint16) {
	p.SetDirtiness(true)
	copy(p.Data()[offset:], raw)
}
