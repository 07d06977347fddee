// Package pdfpages counts document pages and evaluates page-range expressions.
package pdfpages

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrInvalidDocument is returned when the upload cannot be read as a PDF.
var ErrInvalidDocument = errors.New("document is not a readable PDF")

// RangeError describes a malformed or out-of-bounds page-range item.
type RangeError struct {
	Item   string
	Reason string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("invalid page range %q: %s", e.Item, e.Reason)
}

// Count returns the number of pages of the PDF in data.
func Count(data []byte) (n int, err error) {
	if len(data) == 0 {
		return 0, ErrInvalidDocument
	}
	// The reader panics on some malformed trailers.
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("%w: %v", ErrInvalidDocument, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	n = reader.NumPage()
	if n <= 0 {
		return 0, ErrInvalidDocument
	}
	return n, nil
}

// SelectedPages evaluates expr against a document of total pages and returns how many
// distinct pages it selects. Items are "N" or "A-B" separated by commas; an empty
// expression selects every page.
func SelectedPages(expr string, total int) (int, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return total, nil
	}

	pages := make(map[int]struct{})
	for _, raw := range strings.Split(expr, ",") {
		item := strings.TrimSpace(raw)
		if item == "" {
			continue
		}

		if strings.Contains(item, "-") {
			bounds := strings.Split(item, "-")
			if len(bounds) != 2 {
				return 0, &RangeError{Item: item, Reason: "expected start-end"}
			}
			start, errStart := parsePage(bounds[0])
			end, errEnd := parsePage(bounds[1])
			if errStart != nil || errEnd != nil || start > end {
				return 0, &RangeError{Item: item, Reason: "expected ascending positive page numbers"}
			}
			if end > total {
				return 0, &RangeError{Item: item, Reason: fmt.Sprintf("page %d does not exist, document has %d", end, total)}
			}
			for p := start; p <= end; p++ {
				pages[p] = struct{}{}
			}
			continue
		}

		page, err := parsePage(item)
		if err != nil {
			return 0, &RangeError{Item: item, Reason: "expected a positive page number"}
		}
		if page > total {
			return 0, &RangeError{Item: item, Reason: fmt.Sprintf("page %d does not exist, document has %d", page, total)}
		}
		pages[page] = struct{}{}
	}

	if len(pages) == 0 {
		return 0, &RangeError{Item: expr, Reason: "no pages selected"}
	}
	return len(pages), nil
}

func parsePage(s string) (int, error) {
	s = strings.TrimSpace(s)
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a number: %q", s)
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("page must be positive: %d", n)
	}
	return n, nil
}

// ConsumedPages converts selected pages into billed sheets: pages are combined
// sheetsPerSide to a side, duplex halves the sheet count, and every copy is billed.
func ConsumedPages(selected, sheetsPerSide int, duplex bool, copies int) int {
	if sheetsPerSide <= 0 {
		sheetsPerSide = 1
	}
	sheets := ceilDiv(selected, sheetsPerSide)
	if duplex {
		sheets = ceilDiv(sheets, 2)
	}
	return sheets * copies
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
