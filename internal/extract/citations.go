package extract

import (
	"github.com/kiranshivaraju/steelsched/internal/chunk"
	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// lineIndex knows which page lines were shown to the backend. Only rendered
// lines count; a citation at a blank line points at nothing the backend saw.
type lineIndex struct {
	lines   map[int]map[int]bool
	dropped map[int]bool
}

func newLineIndex(sent []chunk.Chunk) *lineIndex {
	idx := &lineIndex{lines: map[int]map[int]bool{}, dropped: map[int]bool{}}
	for _, c := range sent {
		for _, p := range c.Pages {
			set := map[int]bool{}
			for _, l := range p.Lines {
				if chunk.Rendered(l) {
					set[l.N] = true
				}
			}
			idx.lines[p.Page] = set
		}
	}
	return idx
}

// valid reports whether c points at lines that exist on a sent page.
func (idx *lineIndex) valid(c models.Citation) bool {
	set, ok := idx.lines[c.Page]
	if !ok || c.LineStart < 1 || c.LineEnd < c.LineStart {
		return false
	}
	return set[c.LineStart] && set[c.LineEnd]
}

func (idx *lineIndex) str(v *models.CitedString) *models.CitedString {
	if v == nil {
		return nil
	}
	if !idx.valid(v.Citation) {
		idx.dropped[v.Citation.Page] = true
		return nil
	}
	return v
}

func (idx *lineIndex) num(v *models.CitedNumber) *models.CitedNumber {
	if v == nil {
		return nil
	}
	if !idx.valid(v.Citation) {
		idx.dropped[v.Citation.Page] = true
		return nil
	}
	return v
}

func (idx *lineIndex) list(in []models.CitedString) []models.CitedString {
	out := []models.CitedString{}
	for i := range in {
		if v := idx.str(&in[i]); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// apply copies every value with a valid citation from out into res and
// returns the sorted pages cited by discarded values.
func (idx *lineIndex) apply(out *backendOutput, res *models.ExtractionResult) []int {
	res.DocumentType = idx.str(out.DocumentType)
	res.Title = idx.str(out.Title)
	res.Supplier = idx.str(out.Supplier)
	res.Client = idx.str(out.Client)
	res.ProjectName = idx.str(out.ProjectName)
	res.DocumentDate = idx.str(out.DocumentDate)
	res.ValidUntil = idx.str(out.ValidUntil)
	res.Currency = idx.str(out.Currency)
	if out.Totals != nil {
		res.Totals = models.Totals{
			Subtotal: idx.num(out.Totals.Subtotal),
			Tax:      idx.num(out.Totals.Tax),
			Total:    idx.num(out.Totals.Total),
		}
	}

	for _, it := range out.LineItems {
		if idx.str(&it.Description) == nil {
			continue
		}
		it.Quantity = idx.num(it.Quantity)
		it.Unit = idx.str(it.Unit)
		it.UnitPrice = idx.num(it.UnitPrice)
		it.Amount = idx.num(it.Amount)
		res.LineItems = append(res.LineItems, it)
	}
	res.Terms = idx.list(out.Terms)
	res.Exclusions = idx.list(out.Exclusions)
	return sortedKeys(idx.dropped)
}
