// Package arena implements a bump-allocated, page-list allocator whose
// pages are all released together when the arena itself is dropped. It
// backs every AST node, name, and array produced by a decompilation job
// (see internal/ast, internal/reader, internal/lifter).
package arena

import "unsafe"

// pageCapacity is the data region size of a page, absent an oversized
// request that needs a dedicated, larger page.
const pageCapacity = 8192

// wordAlign is the alignment granted to every allocation; callers needing
// wider alignment must over-allocate.
const wordAlign = int(unsafe.Sizeof(uintptr(0)))

type page struct {
	buf []byte
	off int
}

func newPage(minSize int) *page {
	size := pageCapacity
	if minSize > size {
		size = minSize
	}
	return &page{buf: make([]byte, size)}
}

// Arena is a single-threaded bump allocator. It is not safe for concurrent
// use; a decompilation job owns exactly one Arena (see internal/reader,
// internal/lifter, internal/optimizer, internal/printer).
type Arena struct {
	pages []*page
}

// New returns an empty Arena with one initial page.
func New() *Arena {
	return &Arena{pages: []*page{newPage(0)}}
}

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// allocate returns a zeroed, pointer-aligned region of size bytes. A
// request larger than one page's capacity gets its own dedicated page.
func (a *Arena) allocate(size int) unsafe.Pointer {
	if size <= 0 {
		size = wordAlign
	}
	cur := a.pages[len(a.pages)-1]
	off := alignUp(cur.off, wordAlign)
	if off+size > len(cur.buf) {
		cur = newPage(size)
		a.pages = append(a.pages, cur)
		off = 0
	}
	cur.off = off + size
	return unsafe.Pointer(&cur.buf[off])
}

// Alloc returns a new zero-valued T owned by the arena.
func Alloc[T any](a *Arena) *T {
	var zero T
	p := (*T)(a.allocate(int(unsafe.Sizeof(zero))))
	*p = zero
	return p
}

// AllocSlice returns a zeroed slice of n T values owned by the arena. A
// request for n == 0 returns nil, matching Go's usual empty-slice
// convention rather than a zero-length arena allocation.
func AllocSlice[T any](a *Arena, n int) []T {
	if n == 0 {
		return nil
	}
	var zero T
	elemSize := int(unsafe.Sizeof(zero))
	p := a.allocate(elemSize * n)
	return unsafe.Slice((*T)(p), n)
}

// Pages reports the number of backing pages currently held, for tests
// that want to assert an oversized allocation got its own page.
func (a *Arena) Pages() int {
	return len(a.pages)
}

// CopyString copies raw into arena-owned storage and returns it as a
// string, so the returned value stays valid independent of raw's
// lifetime (spec.md §4.2: string-table entries must outlive the input
// buffer they were decoded from for as long as the job runs).
func (a *Arena) CopyString(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	buf := AllocSlice[byte](a, len(raw))
	copy(buf, raw)
	return unsafe.String(&buf[0], len(buf))
}
