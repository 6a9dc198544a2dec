package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

var cite = models.Citation{Page: 1, LineStart: 2, LineEnd: 2}

func TestParseRow_FullRow(t *testing.T) {
	item := ParseRow(map[string]string{
		"section": "610UB125",
		"frr":     "90",
		"dft":     "425",
		"coating": "SC601",
	}, cite)
	require.NotNil(t, item)

	assert.Equal(t, "610UB125", item.SectionSizeNormalized)
	require.NotNil(t, item.FRRMinutes)
	assert.Equal(t, 90, *item.FRRMinutes)
	require.NotNil(t, item.FRRFormat)
	assert.Equal(t, "90/-/-", *item.FRRFormat)
	require.NotNil(t, item.DFTRequiredMicrons)
	assert.Equal(t, 425, *item.DFTRequiredMicrons)
	require.NotNil(t, item.CoatingProduct)
	assert.Equal(t, "SC601", *item.CoatingProduct)
	assert.Equal(t, 1.0, item.Confidence)
	assert.False(t, item.NeedsReview)
	assert.Equal(t, cite, item.Citation)
}

func TestParseRow_MissingDFTAndCoating(t *testing.T) {
	item := ParseRow(map[string]string{"section": "310UC97", "frr": "60", "dft": "", "coating": ""}, cite)
	require.NotNil(t, item)

	assert.Equal(t, 0.5, item.Confidence)
	assert.True(t, item.NeedsReview)
	assert.Nil(t, item.DFTRequiredMicrons)
	assert.Nil(t, item.CoatingProduct)
}

func TestParseRow_NoSectionColumnReturnsNil(t *testing.T) {
	tests := []struct {
		name string
		row  map[string]string
	}{
		{"no section header", map[string]string{"frr": "90", "dft": "425", "coating": "SC601"}},
		{"blank section value", map[string]string{"section": "   ", "frr": "90"}},
		{"empty row", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, ParseRow(tt.row, cite))
		})
	}
}

func TestParseRow_ConfidenceFloorsAtZeroAndRounds(t *testing.T) {
	item := ParseRow(map[string]string{"section": "200UC46"}, cite)
	require.NotNil(t, item)
	assert.Equal(t, 0.2, item.Confidence)
	assert.True(t, item.NeedsReview)
}

func TestParseRow_SlashFormatKeptVerbatim(t *testing.T) {
	item := ParseRow(map[string]string{"section": "250UB37", "frr": " 120/120/120 ", "dft": "900", "coating": "S607"}, cite)
	require.NotNil(t, item)
	assert.Equal(t, 120, *item.FRRMinutes)
	assert.Equal(t, "120/120/120", *item.FRRFormat)
}

func TestParseRow_HeaderSpellings(t *testing.T) {
	item := ParseRow(map[string]string{
		"Section_Size":    "460 ub 67",
		"FIRE-RATING":     "R60",
		"DFT (microns)":   "1,150",
		"Coating Product": "Nullifire SC902",
		"Member Mark":     "B12",
		"Element Type":    "Beam",
	}, cite)
	require.NotNil(t, item)

	assert.Equal(t, "460UB67", item.SectionSizeNormalized)
	assert.Equal(t, 60, *item.FRRMinutes)
	assert.Equal(t, "B12", *item.MemberMark)
	assert.Equal(t, "beam", *item.ElementType)
	// "dft (microns)" does not normalize to a known alias.
	assert.Nil(t, item.DFTRequiredMicrons)
}

func TestParseRow_FirstNonBlankAliasWins(t *testing.T) {
	item := ParseRow(map[string]string{"section": "", "size": "150UC23", "profile": "999UB1"}, cite)
	require.NotNil(t, item)
	assert.Equal(t, "150UC23", item.SectionSizeRaw)

	item = ParseRow(map[string]string{"section": "200UB25", "size": "150UC23"}, cite)
	require.NotNil(t, item)
	assert.Equal(t, "200UB25", item.SectionSizeRaw)
}

func TestParseRow_ElementFallsBackToKeywords(t *testing.T) {
	item := ParseRow(map[string]string{"section": "200UC46", "mark": "C4 column"}, cite)
	require.NotNil(t, item)
	require.NotNil(t, item.ElementType)
	assert.Equal(t, "column", *item.ElementType)
}

func TestNormalizeSection(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"610 UB 125", "610UB125"},
		{"610 ub 125", "610UB125"},
		{"610UB125", "610UB125"},
		{" 200x200x9 shs\t", "200X200X9SHS"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := NormalizeSection(tt.input)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, got, NormalizeSection(got), "normalization must be idempotent")
		})
	}
	assert.Equal(t, NormalizeSection("610 ub 125"), NormalizeSection("610UB125"))
}

func TestParseFRR(t *testing.T) {
	minutes, format := ParseFRR("no rating")
	assert.Nil(t, minutes)
	assert.Nil(t, format)

	minutes, format = ParseFRR("90 min")
	require.NotNil(t, minutes)
	assert.Equal(t, 90, *minutes)
	assert.Equal(t, "90/-/-", *format)
}

func TestScore(t *testing.T) {
	n := 1
	s := "x"
	tests := []struct {
		name       string
		frr, dft   *int
		coating    *string
		confidence float64
		review     bool
	}{
		{"all present", &n, &n, &s, 1.0, false},
		{"no coating", &n, &n, nil, 0.8, true},
		{"no dft", &n, nil, &s, 0.7, true},
		{"no frr no dft", nil, nil, &s, 0.4, true},
		{"nothing", nil, nil, nil, 0.2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf, review := Score(tt.frr, tt.dft, tt.coating)
			assert.Equal(t, tt.confidence, conf)
			assert.Equal(t, tt.review, review)
		})
	}
}

func TestNormalizeHeader(t *testing.T) {
	assert.Equal(t, "section size", NormalizeHeader("  Section__Size "))
	assert.Equal(t, "frr minutes", NormalizeHeader("FRR-Minutes:"))
	assert.Equal(t, "dft required", NormalizeHeader("dft   required"))
}

func TestClassifyElement(t *testing.T) {
	tests := []struct {
		text     string
		expected string
	}{
		{"Primary BEAM", "beam"},
		{"col", "column"},
		{"C1 col.", "column"},
		{"COLUMNS grid A", "column"},
		{"Cross brace", "brace"},
		{"purlin", ""},
		{"per protocol 7", ""},
		{"colour red", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := ClassifyElement(tt.text)
			if tt.expected == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.expected, *got)
		})
	}
}

func TestParseFields_ColumnOrderWins(t *testing.T) {
	headers := []string{"Section", "section_", "frr", "notes"}
	item := ParseFields(headers, []string{"610UB125", "310UC97", "90", "per protocol"}, cite)
	require.NotNil(t, item)
	assert.Equal(t, "610UB125", item.SectionSizeRaw)
	assert.Equal(t, "610UB125 | 310UC97 | 90 | per protocol", item.RawText)
	assert.Nil(t, item.ElementType)

	item = ParseFields(headers, []string{" ", "310UC97", "90"}, cite)
	require.NotNil(t, item)
	assert.Equal(t, "310UC97", item.SectionSizeRaw)
}

func TestParseRow_CollidingHeadersAreStable(t *testing.T) {
	row := map[string]string{"Section": "610UB125", "section_": "310UC97", "frr": "90"}
	for i := 0; i < 50; i++ {
		item := ParseRow(row, cite)
		require.NotNil(t, item)
		assert.Equal(t, "610UB125", item.SectionSizeRaw, "sorted header order puts Section first")
	}
}
