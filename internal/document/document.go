// Package document merges flyer PDFs into one page sequence and splits it
// into fixed-size chunks for scoring requests.
package document

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/odgsully/renoscore/internal/model"
)

// ErrNoPages is returned when the inputs contain no pages at all.
var ErrNoPages = eris.New("document: no pages")

func init() {
	api.DisableConfigDir()
}

// PageRange is an inclusive, 1-indexed page span.
type PageRange struct {
	Start int
	End   int
}

// Len returns the number of pages in the range.
func (r PageRange) Len() int { return r.End - r.Start + 1 }

func (r PageRange) selector() string {
	if r.Start == r.End {
		return fmt.Sprintf("%d", r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// PlanChunks splits totalPages into consecutive ranges of at most
// maxPerChunk pages. A non-positive maxPerChunk is treated as 1.
func PlanChunks(totalPages, maxPerChunk int) []PageRange {
	if totalPages <= 0 {
		return nil
	}
	if maxPerChunk < 1 {
		maxPerChunk = 1
	}
	ranges := make([]PageRange, 0, (totalPages+maxPerChunk-1)/maxPerChunk)
	for start := 1; start <= totalPages; start += maxPerChunk {
		end := min(start+maxPerChunk-1, totalPages)
		ranges = append(ranges, PageRange{Start: start, End: end})
	}
	return ranges
}

// Assembly is the merged page sequence and its chunks.
type Assembly struct {
	Chunks     []model.DocumentChunk
	TotalPages int
	// Merged holds the concatenated document, used for text extraction.
	Merged []byte
}

// Assemble concatenates buffers in order and splits the result into chunks
// of at most maxPagesPerChunk pages. Empty buffers are skipped. It returns
// ErrNoPages when nothing remains to score.
func Assemble(buffers [][]byte, maxPagesPerChunk int) (*Assembly, error) {
	log := zap.L().With(zap.String("component", "document"))
	conf := newConfig()

	var inputs []io.ReadSeeker
	for i, b := range buffers {
		if len(b) == 0 {
			log.Debug("skipping empty input", zap.Int("index", i))
			continue
		}
		inputs = append(inputs, bytes.NewReader(b))
	}
	if len(inputs) == 0 {
		return nil, ErrNoPages
	}

	merged, err := merge(inputs, conf)
	if err != nil {
		return nil, err
	}

	total, err := api.PageCount(bytes.NewReader(merged), conf)
	if err != nil {
		return nil, eris.Wrap(err, "document: count pages")
	}
	if total == 0 {
		return nil, ErrNoPages
	}

	ranges := PlanChunks(total, maxPagesPerChunk)
	chunks := make([]model.DocumentChunk, 0, len(ranges))
	for _, r := range ranges {
		content, err := extract(merged, r, conf)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, model.DocumentChunk{
			Content:   content,
			StartPage: r.Start,
			EndPage:   r.End,
			PageCount: r.Len(),
		})
	}

	log.Info("assembled document",
		zap.Int("inputs", len(inputs)),
		zap.Int("pages", total),
		zap.Int("chunks", len(chunks)),
	)
	return &Assembly{Chunks: chunks, TotalPages: total, Merged: merged}, nil
}

func newConfig() *pdfmodel.Configuration {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	return conf
}

func merge(inputs []io.ReadSeeker, conf *pdfmodel.Configuration) ([]byte, error) {
	if len(inputs) == 1 {
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, inputs[0]); err != nil {
			return nil, eris.Wrap(err, "document: read input")
		}
		if err := api.Validate(bytes.NewReader(buf.Bytes()), conf); err != nil {
			return nil, eris.Wrap(err, "document: invalid pdf")
		}
		return buf.Bytes(), nil
	}
	var buf bytes.Buffer
	if err := api.MergeRaw(inputs, &buf, false, conf); err != nil {
		return nil, eris.Wrap(err, "document: merge")
	}
	return buf.Bytes(), nil
}

func extract(merged []byte, r PageRange, conf *pdfmodel.Configuration) ([]byte, error) {
	var buf bytes.Buffer
	if err := api.Trim(bytes.NewReader(merged), &buf, []string{r.selector()}, conf); err != nil {
		return nil, eris.Wrapf(err, "document: extract pages %s", r.selector())
	}
	return buf.Bytes(), nil
}

// CountPages returns the total page count across buffers without merging
// them. Empty buffers count as zero.
func CountPages(buffers [][]byte) (int, error) {
	conf := newConfig()
	total := 0
	for i, b := range buffers {
		if len(b) == 0 {
			continue
		}
		n, err := api.PageCount(bytes.NewReader(b), conf)
		if err != nil {
			return 0, eris.Wrapf(err, "document: count pages of input %d", i)
		}
		total += n
	}
	return total, nil
}
