// Package pdftext extracts plain text from PDF book uploads. PDFs carry no
// chapter structure we can trust, so the whole document becomes a single
// chapter with word-count stats.
package pdftext

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/oyinkolade/readstack/internal/model"
)

// Process reads PDF bytes and returns a one-chapter parse result.
func Process(data []byte) (model.ParseResult, error) {
	var result model.ParseResult
	text, err := extractText(data)
	if err != nil {
		return result, err
	}
	words := len(strings.Fields(text))
	result.Chapters = []model.Chapter{{
		ID:              "chapter-1",
		Title:           "Chapter 1",
		Content:         "<pre>" + text + "</pre>",
		Order:           1,
		WordCount:       words,
		ReadingTimeMins: model.ReadingTimeMinutes(words),
	}}
	return result, nil
}

func extractText(data []byte) (string, error) {
	reader := bytes.NewReader(data)
	doc, err := pdf.NewReader(reader, int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("new pdf reader: %w", err)
	}
	var builder strings.Builder
	total := doc.NumPage()
	for page := 1; page <= total; page++ {
		p := doc.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", page, err)
		}
		builder.WriteString(content)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}
