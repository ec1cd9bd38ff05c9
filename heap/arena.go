// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package heap

// arena hands out byte slices sized to page-size multiples and
// recycles the backing arrays of chunks freed by CollectGarbage. The
// free list is kept as a min-heap ordered by capacity, so get only
// ever considers the smallest free buffer; larger free buffers are
// not searched.
type arena struct {
	pageSize int
	free     []page
}

type page struct {
	buf []byte
}

func newArena() *arena {
	return &arena{pageSize: nativePageSize()}
}

func roundUpToPage(n, pageSize int) int {
	if pageSize <= 0 {
		return n
	}
	if r := n % pageSize; r != 0 {
		n += pageSize - r
	}
	return n
}

// get returns a slice of length n. It reuses the smallest freed
// buffer when that buffer's capacity is at least n; otherwise it
// allocates a fresh page-rounded buffer, even if a larger freed buffer
// is on the list.
func (a *arena) get(n int) []byte {
	if len(a.free) > 0 && cap(a.free[0].buf) >= n {
		return a.popFree().buf[:n]
	}
	want := roundUpToPage(n, a.pageSize)
	return make([]byte, n, want)
}

// put returns buf's backing array to the pool for reuse by a later
// get. It must only be called with buffers this arena produced, once
// nothing else references them (i.e. after the owning datum has been
// swept).
func (a *arena) put(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	a.pushFree(page{buf: buf[:0]})
}

// popFree removes and returns the smallest-capacity page on the free
// list, restoring the min-heap invariant over the rest.
func (a *arena) popFree() page {
	free := a.free
	top := free[0]
	last := len(free) - 1
	free[0] = free[last]
	a.free = free[:last]
	if last > 0 {
		a.siftDown(0)
	}
	return top
}

// pushFree adds p to the free list, restoring the min-heap invariant.
func (a *arena) pushFree(p page) {
	a.free = append(a.free, p)
	a.siftUp(len(a.free) - 1)
}

func (a *arena) siftUp(index int) {
	free := a.free
	for index > 0 {
		parent := (index - 1) / 2
		if cap(free[parent].buf) <= cap(free[index].buf) {
			return
		}
		free[parent], free[index] = free[index], free[parent]
		index = parent
	}
}

func (a *arena) siftDown(index int) {
	free := a.free
	for {
		left, right := index*2+1, index*2+2
		if left >= len(free) {
			return
		}
		smallest := left
		if right < len(free) && cap(free[right].buf) < cap(free[left].buf) {
			smallest = right
		}
		if cap(free[index].buf) <= cap(free[smallest].buf) {
			return
		}
		free[index], free[smallest] = free[smallest], free[index]
		index = smallest
	}
}
