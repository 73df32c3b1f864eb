package loader

import (
	"bytes"
	"context"
	"errors"

	"github.com/ledongthuc/pdf"
)

// loadPDF yields one segment per page with extractable text.
func loadPDF(ctx context.Context, data []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var pages []string
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text := normalizeExtractedText(content); text != "" {
			pages = append(pages, text)
		}
	}

	if len(pages) == 0 {
		return nil, errors.New("no extractable text found in pdf")
	}
	return pages, nil
}
