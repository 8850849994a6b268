// Package index keeps the advisory free-space index used to pick insert
// pages. It lives only in memory and is rebuilt from the heap on open.
package index

import (
	"sync"

	"github.com/llifei/db2023/src/pkg/common"
	"github.com/llifei/db2023/src/pkg/optional"
	"github.com/llifei/db2023/src/storage/page"
)

const (
	IntervalsNo = 40
	Threshold   = page.PageSize / IntervalsNo
)

type PageInfo struct {
	PageNo    common.PageNo
	FreeSpace int
}

// FreeSpaceIndex buckets pages by free space in Threshold wide intervals.
// The last bucket collects pages that are (nearly) empty. A page selected
// for an insert is removed from the index until the caller adds it back.
type FreeSpaceIndex struct {
	mu      sync.Mutex
	buckets [IntervalsNo + 1][]PageInfo
}

func NewFreeSpaceIndex() *FreeSpaceIndex {
	return &FreeSpaceIndex{}
}

func bucketOf(freeSpace int) int {
	return min(freeSpace/Threshold, IntervalsNo)
}

func (i *FreeSpaceIndex) Add(pageNo common.PageNo, freeSpace int) {
	i.mu.Lock()
	defer i.mu.Unlock()

	b := bucketOf(freeSpace)
	i.buckets[b] = append(i.buckets[b], PageInfo{PageNo: pageNo, FreeSpace: freeSpace})
}

// Select checks out a page with at least need free bytes. The search starts
// one bucket above the one need falls into, so every page in it has strictly
// more room than asked for.
func (i *FreeSpaceIndex) Select(need int) optional.Optional[PageInfo] {
	i.mu.Lock()
	defer i.mu.Unlock()

	number := bucketOf(need)
	if number < IntervalsNo {
		number++
	}

	for ; number <= IntervalsNo; number++ {
		bucket := i.buckets[number]

		for idx, info := range bucket {
			if info.FreeSpace < need {
				// only the last bucket mixes pages below and above need
				continue
			}

			i.buckets[number] = append(bucket[:idx], bucket[idx+1:]...)

			return optional.Some(info)
		}
	}

	return optional.None[PageInfo]()
}

// Len reports how many pages are currently indexed.
func (i *FreeSpaceIndex) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()

	n := 0
	for _, bucket := range i.buckets {
		n += len(bucket)
	}

	return n
}
