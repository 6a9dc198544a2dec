package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

func TestScanLine_CompleteRow(t *testing.T) {
	c := models.Citation{Page: 2, LineStart: 7, LineEnd: 7}
	item := ScanLine("B10 610UB125 Beam 120 Nullifire SC902 1200", c)
	require.NotNil(t, item)

	assert.Equal(t, "610UB125", item.SectionSizeRaw)
	assert.Equal(t, "610UB125", item.SectionSizeNormalized)
	assert.Equal(t, 120, *item.FRRMinutes)
	assert.Equal(t, "120/-/-", *item.FRRFormat)
	assert.Equal(t, 1200, *item.DFTRequiredMicrons)
	assert.Equal(t, "Nullifire SC902", *item.CoatingProduct)
	assert.Equal(t, "B10", *item.MemberMark)
	assert.Equal(t, "beam", *item.ElementType)
	assert.Equal(t, 1.0, item.Confidence)
	assert.False(t, item.NeedsReview)
	assert.Equal(t, c, item.Citation)
}

func TestScanLine_Rejects(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"too short", "1UB R60"},
		{"no section", "Column C4 R60 Nullifire S707 900"},
		{"no frr", "C4 310UC97 column Nullifire S707 900"},
		{"frr out of range", "C4 310UC97 column 10 Nullifire S707 900"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, ScanLine(tt.text, models.Citation{Page: 1, LineStart: 1, LineEnd: 1}))
		})
	}
}

func TestScanLine_PartialRowNeedsReview(t *testing.T) {
	item := ScanLine("C4 310UC97 column R60 see notes", models.Citation{Page: 1, LineStart: 3, LineEnd: 3})
	require.NotNil(t, item)

	assert.Equal(t, 60, *item.FRRMinutes)
	assert.Nil(t, item.DFTRequiredMicrons)
	assert.Nil(t, item.CoatingProduct)
	assert.Equal(t, "column", *item.ElementType)
	assert.Equal(t, 0.5, item.Confidence)
	assert.True(t, item.NeedsReview)
}

func TestScanLine_SlashTriple(t *testing.T) {
	item := ScanLine("B2 250UB37 beam 90/90/90 Carboline Firefilm 750um", models.Citation{Page: 1, LineStart: 1, LineEnd: 1})
	require.NotNil(t, item)

	assert.Equal(t, 90, *item.FRRMinutes)
	assert.Equal(t, "90/90/90", *item.FRRFormat)
	assert.Equal(t, 750, *item.DFTRequiredMicrons)
	assert.Equal(t, "Carboline Firefilm", *item.CoatingProduct)
}

func TestStitchLines(t *testing.T) {
	rows := stitchLines([]models.PageLine{
		{N: 1, Text: "7"},
		{N: 2, Text: "B1 200UB25 beam 60 Nullifire S707 10"},
		{N: 3, Text: "00"},
		{N: 4, Text: ""},
		{N: 5, Text: "B2 250UB37 beam 90 Nullifire S707 800"},
	})
	require.Len(t, rows, 2)

	assert.Equal(t, "B1 200UB25 beam 60 Nullifire S707 10 00", rows[0].text)
	assert.Equal(t, 2, rows[0].start)
	assert.Equal(t, 3, rows[0].end)
	assert.Equal(t, 5, rows[1].start)
}

func TestScanPages(t *testing.T) {
	pages := []models.PageRecord{
		{Page: 1, Lines: []models.PageLine{{N: 1, Text: "LOADING SCHEDULE LEVEL 3"}}},
		{Page: 2, Lines: []models.PageLine{
			{N: 1, Text: "Mark Section Element FRR Product DFT"},
			{N: 2, Text: "C1 310UC158 column 120 Steelguard FM585 1450"},
		}},
	}
	items := ScanPages(pages)
	require.Len(t, items, 1)
	assert.Equal(t, models.Citation{Page: 2, LineStart: 2, LineEnd: 2}, items[0].Citation)
	assert.Equal(t, "C1", *items[0].MemberMark)
	assert.Equal(t, 1450, *items[0].DFTRequiredMicrons)
}

func TestScanPages_Empty(t *testing.T) {
	assert.Empty(t, ScanPages(nil))
	assert.NotNil(t, ScanPages(nil))
}
