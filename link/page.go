package link

import (
	"net/url"
	"strconv"
)

// Page is the pagination state of a collection in the current request.
type Page struct {
	// Cursor of the page being rendered. Empty on the first page.
	Cursor string
	Size   int
	// Next is the cursor of the following page. Empty means this is the last page.
	Next string
	// Prev is the cursor of the previous page; empty with HasPrev set points at the first page.
	Prev    string
	HasPrev bool
	// Last is the cursor of the last page, when the loader knows it.
	Last string
}

func (p Page) IsFirst() bool {
	return p.Cursor == ""
}

func (p Page) IsLast() bool {
	return p.Next == ""
}

// PageRels names the pagination relations and query parameters.
type PageRels struct {
	First string
	Prev  string
	Next  string
	Last  string

	CursorParam string
	SizeParam   string
}

func DefaultPageRels() PageRels {
	return PageRels{
		First:       "first",
		Prev:        "prev",
		Next:        "next",
		Last:        "last",
		CursorParam: "cursor",
		SizeParam:   "limit",
	}
}

// WithDefaults fills unset names from DefaultPageRels.
func (r PageRels) WithDefaults() PageRels {
	def := DefaultPageRels()
	if r.First == "" {
		r.First = def.First
	}
	if r.Prev == "" {
		r.Prev = def.Prev
	}
	if r.Next == "" {
		r.Next = def.Next
	}
	if r.Last == "" {
		r.Last = def.Last
	}
	if r.CursorParam == "" {
		r.CursorParam = def.CursorParam
	}
	if r.SizeParam == "" {
		r.SizeParam = def.SizeParam
	}
	return r
}

func (r PageRels) href(base string, cursor string, size int) string {
	q := url.Values{}
	if cursor != "" {
		q.Set(r.CursorParam, cursor)
	}
	if size > 0 {
		q.Set(r.SizeParam, strconv.Itoa(size))
	}
	if len(q) == 0 {
		return base
	}
	return base + "?" + q.Encode()
}

// ParseQuery extracts the cursor and size from request query values.
// A missing or invalid size yields fallback.
func (r PageRels) ParseQuery(q url.Values, fallback int) (cursor string, size int) {
	r = r.WithDefaults()
	cursor = q.Get(r.CursorParam)
	size = fallback
	if raw := q.Get(r.SizeParam); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			size = n
		}
	}
	return cursor, size
}
