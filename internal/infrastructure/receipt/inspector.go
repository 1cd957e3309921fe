// Package receipt validates uploaded receipt files before they are queued.
package receipt

import (
	"bytes"
	"fmt"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

const mimePDF = "application/pdf"

// Formats accepted by the receipt analysis backend.
var supportedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/bmp",
	"image/tiff",
	mimePDF,
}

type Inspector struct {
	maxPDFPages int
}

func NewInspector(maxPDFPages int) *Inspector {
	if maxPDFPages <= 0 {
		maxPDFPages = 2
	}
	return &Inspector{maxPDFPages: maxPDFPages}
}

// Inspect sniffs the content type from the bytes, ignoring whatever the client
// claimed. PDFs must parse and stay within the page limit.
func (i *Inspector) Inspect(data []byte) (string, error) {
	detected := mimetype.Detect(data)

	var mimeType string
	for _, candidate := range supportedTypes {
		if detected.Is(candidate) {
			mimeType = candidate
			break
		}
	}
	if mimeType == "" {
		return "", fmt.Errorf("unsupported receipt type %s", detected.String())
	}

	if mimeType == mimePDF {
		if err := i.checkPDF(data); err != nil {
			return "", err
		}
	}
	return mimeType, nil
}

func (i *Inspector) checkPDF(data []byte) (err error) {
	// The pdf reader panics on some truncated inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unreadable pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("unreadable pdf: %w", err)
	}
	pages := reader.NumPage()
	if pages < 1 {
		return fmt.Errorf("pdf has no pages")
	}
	if pages > i.maxPDFPages {
		return fmt.Errorf("pdf has %d pages, receipts are limited to %d", pages, i.maxPDFPages)
	}
	return nil
}
