package ocr

import (
	"bytes"
	"context"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

// Native reads the text layer of a PDF in process. Rows are emitted top to
// bottom so header lines come first.
type Native struct{}

// NewNative creates a Native extractor.
func NewNative() *Native { return &Native{} }

// ExtractPages returns one string per page. Pages without a text layer
// yield "".
func (n *Native) ExtractPages(ctx context.Context, data []byte) (pages []string, err error) {
	defer func() {
		// The reader panics on some malformed content streams.
		if r := recover(); r != nil {
			err = eris.Errorf("ocr: read pdf text: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "ocr: open pdf")
	}

	total := r.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "ocr: extract pages")
		}
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			return nil, eris.Wrapf(err, "ocr: read page %d", i)
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			words := make([]string, 0, len(row.Content))
			for _, t := range row.Content {
				words = append(words, t.S)
			}
			lines = append(lines, strings.Join(strings.Fields(strings.Join(words, " ")), " "))
		}
		pages = append(pages, strings.Join(lines, "\n"))
	}
	return pages, nil
}
