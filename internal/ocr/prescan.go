package ocr

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

// referencePattern matches procurement order references: "45" followed by
// eight more digits. The word boundaries keep the pattern from matching
// inside longer numbers.
var referencePattern = regexp.MustCompile(`\b45\d{8}\b`)

// prescanPages bounds how many pages are text-scanned before the OCR call.
const prescanPages = 2

// PrescanReference searches the first pages of a digital PDF for a
// procurement order reference without calling the OCR service. It returns ""
// for non-PDF input, scanned PDFs without a text layer, and anything
// unreadable; the prescan is a best-effort fast pass and never fails a
// document.
func PrescanReference(source []byte, filename string) (ref string) {
	if strings.ToLower(filepath.Ext(filename)) != ".pdf" {
		return ""
	}
	defer func() {
		// The pdf reader panics on some malformed files.
		if r := recover(); r != nil {
			ref = ""
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(source), int64(len(source)))
	if err != nil {
		return ""
	}

	pages := reader.NumPage()
	if pages > prescanPages {
		pages = prescanPages
	}
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if m := matchReference(text); m != "" {
			return m
		}
	}
	return ""
}

func matchReference(text string) string {
	return referencePattern.FindString(text)
}
