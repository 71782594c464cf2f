package pdftext

import (
	"fmt"

	"github.com/ledongthuc/pdf"
)

// Page is the plain text of one PDF page. Numbers are 1-based, matching what
// a viewer displays.
type Page struct {
	Number int
	Text   string
}

// Extract parses the PDF at path into one entry per page.
func Extract(path string) ([]Page, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := r.NumPage()
	pages := make([]Page, 0, total)
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", i, err)
		}
		pages = append(pages, Page{Number: i, Text: content})
	}
	return pages, nil
}

// Parser adapts Extract to the loader's parser interface.
type Parser struct{}

func (Parser) Pages(path string) ([]Page, error) {
	return Extract(path)
}
