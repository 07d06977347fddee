package pdfpages

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPDF(t *testing.T, pages int) []byte {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetFont("Arial", "", 12)
	for i := 0; i < pages; i++ {
		doc.AddPage()
		doc.Cell(40, 10, "pagina")
	}
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func TestCountReadsGeneratedPDF(t *testing.T) {
	n, err := Count(buildPDF(t, 3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCountRejectsGarbage(t *testing.T) {
	_, err := Count([]byte("not a pdf at all"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidDocument))

	_, err = Count(nil)
	assert.True(t, errors.Is(err, ErrInvalidDocument))
}

func TestSelectedPages(t *testing.T) {
	cases := []struct {
		expr  string
		total int
		want  int
	}{
		{"", 10, 10},
		{"   ", 4, 4},
		{"1", 10, 1},
		{"1-3", 10, 3},
		{"1-3, 2-4", 10, 4},
		{"1,1,1", 10, 1},
		{"2, 5-7, 10", 10, 5},
		{"3-3", 3, 1},
	}
	for _, tc := range cases {
		got, err := SelectedPages(tc.expr, tc.total)
		require.NoError(t, err, tc.expr)
		assert.Equal(t, tc.want, got, tc.expr)
	}
}

func TestSelectedPagesRejects(t *testing.T) {
	for _, expr := range []string{"0", "4-2", "1-2-3", "a", "2-x", "11", "5-11", ",", "-3"} {
		_, err := SelectedPages(expr, 10)
		var rangeErr *RangeError
		require.True(t, errors.As(err, &rangeErr), expr)
	}
}

func TestConsumedPages(t *testing.T) {
	assert.Equal(t, 10, ConsumedPages(10, 1, false, 1))
	assert.Equal(t, 5, ConsumedPages(10, 2, false, 1))
	assert.Equal(t, 3, ConsumedPages(10, 4, false, 1))
	assert.Equal(t, 3, ConsumedPages(10, 2, true, 1))
	assert.Equal(t, 6, ConsumedPages(5, 1, true, 2))
	assert.Equal(t, 30, ConsumedPages(10, 1, false, 3))
}
