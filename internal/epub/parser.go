// Package epub parses untrusted ZIP-based book archives into validated
// metadata and ordered chapter content. Every entry is vetted before any
// entry content is read.
package epub

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/oyinkolade/readstack/internal/htmldoc"
	"github.com/oyinkolade/readstack/internal/model"
)

// Parse runs the full pipeline over raw archive bytes: enumerate entries,
// validate them all, extract manifest metadata, then extract and sanitize
// chapters in enumeration order. A single unreadable chapter is skipped
// with a warning; validator violations and manifest decode errors fail the
// whole parse with no partial result.
func Parse(data []byte) (model.ParseResult, error) {
	var result model.ParseResult

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return result, fmt.Errorf("open archive: %w", err)
	}

	entries := make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		entries = append(entries, Entry{
			Path:             f.Name,
			UncompressedSize: int64(f.UncompressedSize64),
		})
	}
	if err := ValidateEntries(entries); err != nil {
		return result, err
	}

	manifestPath, ok, err := locateManifest(zr)
	if err != nil {
		return result, err
	}
	if ok {
		mf := findEntry(zr, manifestPath)
		if mf == nil {
			return result, fmt.Errorf("manifest %q not present in archive", manifestPath)
		}
		raw, err := readEntry(mf)
		if err != nil {
			return result, fmt.Errorf("read manifest %q: %w", manifestPath, err)
		}
		md, err := parseManifest(raw)
		if err != nil {
			return result, err
		}
		result.Metadata = md
	}

	order := 0
	for _, f := range zr.File {
		if !isChapterEntry(f.Name) {
			continue
		}
		raw, err := readEntry(f)
		if err != nil {
			log.Printf("skipping chapter %s: %v", f.Name, err)
			continue
		}
		order++
		content := htmldoc.Sanitize(string(raw))
		title := htmldoc.ExtractTitle(content)
		if title == "" {
			title = fmt.Sprintf("Chapter %d", order)
		}
		words := htmldoc.CountWords(content)
		result.Chapters = append(result.Chapters, model.Chapter{
			ID:              fmt.Sprintf("chapter-%d", order),
			Title:           title,
			Content:         content,
			Order:           order,
			WordCount:       words,
			ReadingTimeMins: model.ReadingTimeMinutes(words),
		})
	}

	return result, nil
}

// isChapterEntry selects content documents: html/xhtml files that are not
// navigation aids. The toc/nav exclusion is a substring match on purpose;
// publishers name these files inconsistently.
func isChapterEntry(name string) bool {
	lower := strings.ToLower(normalizePath(name))
	if strings.Contains(lower, "toc") || strings.Contains(lower, "nav") {
		return false
	}
	return strings.HasSuffix(lower, ".html") ||
		strings.HasSuffix(lower, ".xhtml") ||
		strings.HasSuffix(lower, ".htm")
}

// readEntry reads one entry's bytes, re-checking the size limit against the
// actual decompressed stream since the declared size can be forged.
func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("read entry: %w", err)
	}
	if int64(len(data)) > maxEntrySize {
		return nil, fmt.Errorf("%w: %q decompresses past %d bytes", ErrEntryTooLarge, f.Name, maxEntrySize)
	}
	return data, nil
}
