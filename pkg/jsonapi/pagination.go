package jsonapi

import (
	"net/url"
	"strconv"
)

// Pagination describes one page of a collection.
type Pagination struct {
	Total   int
	Page    int // 1-based
	PerPage int
	BaseURL string
}

// TotalPages returns the number of pages, at least 1.
func (p Pagination) TotalPages() int {
	if p.Total == 0 || p.PerPage < 1 {
		return 1
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

// Links returns the navigation links; empty when BaseURL is unset.
func (p Pagination) Links() *Links {
	if p.BaseURL == "" {
		return nil
	}
	last := p.TotalPages()
	links := &Links{Self: p.url(p.Page), First: p.url(1), Last: p.url(last)}
	if p.Page > 1 {
		links.Prev = p.url(p.Page - 1)
	}
	if p.Page < last {
		links.Next = p.url(p.Page + 1)
	}
	return links
}

// Meta returns the paging metadata.
func (p Pagination) Meta() Meta {
	return Meta{"total": p.Total, "page": p.Page, "pageSize": p.PerPage, "pages": p.TotalPages()}
}

func (p Pagination) url(page int) string {
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return p.BaseURL
	}
	q := u.Query()
	q.Set("page[number]", strconv.Itoa(page))
	q.Set("page[size]", strconv.Itoa(p.PerPage))
	u.RawQuery = q.Encode()
	return u.String()
}

// ParsePage reads page[number] and page[size] (or page and pageSize).
// Missing values are returned as 0 so callers apply their own defaults;
// non-numeric or negative values are errors naming the parameter.
func ParsePage(query url.Values) (page, size int, err error) {
	if page, err = intParam(query, "page[number]", "page"); err != nil {
		return 0, 0, err
	}
	if size, err = intParam(query, "page[size]", "pageSize"); err != nil {
		return 0, 0, err
	}
	return page, size, nil
}

// ParamError reports an unusable query parameter.
type ParamError struct {
	Param string
}

func (e *ParamError) Error() string {
	return "invalid value for query parameter " + e.Param
}

func intParam(query url.Values, names ...string) (int, error) {
	for _, name := range names {
		v := query.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, &ParamError{Param: name}
		}
		return n, nil
	}
	return 0, nil
}
