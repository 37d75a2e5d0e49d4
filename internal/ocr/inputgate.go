package ocr

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// magicBytes maps extensions to their file signature.
var magicBytes = map[string][]byte{
	".pdf":  []byte("%PDF"),
	".jpg":  {0xff, 0xd8, 0xff},
	".jpeg": {0xff, 0xd8, 0xff},
	".png":  {0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'},
}

const (
	minFileSize       = 100
	maxFileSizeMB     = 50
	scannedCheckPages = 3
	// Fewer than this many extractable characters per page means the PDF is
	// most likely a scan.
	scannedCharsPerPage = 20
)

// GateResult is the outcome of the pre-OCR input check.
type GateResult struct {
	Valid     bool
	Reason    string
	PageCount int
	IsScanned bool
	SizeBytes int
}

// Gate validates a file before it is sent to the OCR service: signature,
// size limits, and (for PDFs) page metrics used later as pipeline telemetry.
type Gate struct {
	MaxSizeMB int
}

// NewGate returns a Gate with the default size limit.
func NewGate() *Gate {
	return &Gate{MaxSizeMB: maxFileSizeMB}
}

// Check inspects the file and reports whether it may enter the pipeline.
func (g *Gate) Check(source []byte, filename string) GateResult {
	res := GateResult{SizeBytes: len(source)}

	if len(source) < minFileSize {
		res.Reason = "file too small, probably corrupt"
		return res
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if expected, ok := magicBytes[ext]; ok && !bytes.HasPrefix(source, expected) {
		res.Reason = fmt.Sprintf("invalid %s signature", strings.ToUpper(strings.TrimPrefix(ext, ".")))
		return res
	}

	maxSize := g.MaxSizeMB
	if maxSize <= 0 {
		maxSize = maxFileSizeMB
	}
	if len(source) > maxSize<<20 {
		res.Reason = fmt.Sprintf("file exceeds %d MB limit", maxSize)
		return res
	}

	if ext == ".pdf" {
		pages, scanned, err := analyzePDF(source)
		if err != nil {
			res.Reason = "PDF not readable: " + err.Error()
			return res
		}
		res.PageCount = pages
		res.IsScanned = scanned
	}

	res.Valid = true
	return res
}

// analyzePDF counts pages and estimates whether the document is a scan by
// sampling extractable text on the first pages.
func analyzePDF(source []byte) (pageCount int, isScanned bool, err error) {
	defer func() {
		// The pdf reader panics on some malformed files.
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(source), int64(len(source)))
	if err != nil {
		return 0, false, err
	}
	pageCount = reader.NumPage()

	check := scannedCheckPages
	if pageCount < check {
		check = pageCount
	}
	if check == 0 {
		return pageCount, false, nil
	}

	textLen := 0
	for i := 1; i <= check; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		if content, err := page.GetPlainText(nil); err == nil {
			textLen += len(content)
		}
	}
	return pageCount, textLen/check < scannedCharsPerPage, nil
}
