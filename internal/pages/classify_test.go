package pages

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "member"
	}
	return strings.Join(w, " ")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		method     models.PageMethod
		confidence float64
	}{
		{"empty", "", models.PageMethodNone, 0.0},
		{"five words", "only five words here today", models.PageMethodNone, 0.0},
		{"many words but short", strings.Repeat("a ", 40), models.PageMethodNone, 0.0},
		{"long but few words", strings.Repeat("x", 80) + " y", models.PageMethodNone, 0.0},
		{"ten words", words(10), models.PageMethodText, 0.5},
		{"twenty nine words", words(29), models.PageMethodText, 0.5},
		{"thirty words", words(30), models.PageMethodText, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method, conf := Classify(tt.text)
			assert.Equal(t, tt.method, method)
			assert.Equal(t, tt.confidence, conf)
		})
	}
}

func TestNewPageRecord_LowConfidence(t *testing.T) {
	assert.True(t, NewPageRecord(1, words(5)).IsLowConfidence())
	assert.True(t, NewPageRecord(1, words(15)).IsLowConfidence())
	assert.False(t, NewPageRecord(1, words(30)).IsLowConfidence())
}

func TestNewPageRecord_CharCountSkipsWhitespace(t *testing.T) {
	rec := NewPageRecord(1, "B1  200UB25\n\tµm 60 ")
	assert.Equal(t, 13, rec.CharCount)
	assert.Equal(t, CountNonSpace(rec.Text), rec.CharCount)
	assert.Equal(t, 4, rec.WordCount)
}

func TestSplitLines(t *testing.T) {
	lines := SplitLines("first  \r\n\nthird\n\n")
	assert.Equal(t, []models.PageLine{
		{N: 1, Text: "first"},
		{N: 2, Text: ""},
		{N: 3, Text: "third"},
	}, lines)

	assert.Empty(t, SplitLines("   \n "))
	assert.NotNil(t, SplitLines(""))
}

func TestComputeLowConfidencePages_MatchesRecords(t *testing.T) {
	recs := []models.PageRecord{
		NewPageRecord(1, words(40)),
		NewPageRecord(2, words(5)),
		NewPageRecord(3, words(12)),
		NewPageRecord(4, words(31)),
	}
	assert.Equal(t, []int{2, 3}, models.ComputeLowConfidencePages(recs))
}
