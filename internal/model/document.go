package model

// DocumentChunk is a contiguous page range cut from the merged flyer
// document. Page numbers are global and 1-indexed across all input PDFs.
type DocumentChunk struct {
	Content   []byte `json:"-"`
	StartPage int    `json:"start_page"`
	EndPage   int    `json:"end_page"`
	PageCount int    `json:"page_count"`
}

// Pages returns the chunk's global page numbers in order.
func (c DocumentChunk) Pages() []int {
	pages := make([]int, 0, c.PageCount)
	for p := c.StartPage; p <= c.EndPage; p++ {
		pages = append(pages, p)
	}
	return pages
}

// Contains reports whether page falls inside the chunk.
func (c DocumentChunk) Contains(page int) bool {
	return page >= c.StartPage && page <= c.EndPage
}
