// Package chunk groups page records into bounded, contiguous chunks for
// extraction calls. Chunking is deterministic: the same pages and budget
// always produce the same chunks.
package chunk

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// DefaultBudget is the per-chunk size limit in runes of page text.
const DefaultBudget = 12000

// Chunk is a run of consecutive pages.
type Chunk struct {
	Index int
	Pages []models.PageRecord
	Size  int
}

// PageNumbers returns the page numbers in the chunk, in order.
func (c Chunk) PageNumbers() []int {
	out := make([]int, len(c.Pages))
	for i, p := range c.Pages {
		out[i] = p.Page
	}
	return out
}

// Render formats the chunk as citation-prefixed lines, one per non-blank
// page line: "[p{page}:l{line}] text".
func (c Chunk) Render() string {
	var b strings.Builder
	for _, p := range c.Pages {
		for _, l := range p.Lines {
			if !Rendered(l) {
				continue
			}
			fmt.Fprintf(&b, "[p%d:l%d] %s\n", p.Page, l.N, l.Text)
		}
	}
	return b.String()
}

// Rendered reports whether Render emits l. Blank lines are never sent.
func Rendered(l models.PageLine) bool {
	return strings.TrimSpace(l.Text) != ""
}

// Split packs pages greedily into chunks of at most budget runes. A page
// larger than the budget becomes a chunk on its own. No page is dropped and
// page order is preserved. A budget <= 0 selects DefaultBudget.
func Split(pages []models.PageRecord, budget int) []Chunk {
	if budget <= 0 {
		budget = DefaultBudget
	}
	chunks := []Chunk{}
	var cur Chunk
	for _, p := range pages {
		size := utf8.RuneCountInString(p.Text)
		if len(cur.Pages) > 0 && cur.Size+size > budget {
			chunks = append(chunks, cur)
			cur = Chunk{Index: len(chunks)}
		}
		cur.Pages = append(cur.Pages, p)
		cur.Size += size
	}
	if len(cur.Pages) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}
