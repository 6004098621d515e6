package htmldoc

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oyinkolade/readstack/internal/model"
)

var headingRe = regexp.MustCompile(`(?is)<h[1-6][^>]*>.*?</h[1-6]>`)

// Process turns a standalone HTML upload into chapters. Content is split
// at h1..h6 headings; a document without headings becomes one chapter.
func Process(content string) model.ParseResult {
	var result model.ParseResult
	result.Metadata.Title = ExtractTitle(content)
	result.Metadata.Creator = ExtractMetaAuthor(content)

	segments := splitOnHeadings(content)
	for i, seg := range segments {
		clean := Sanitize(seg.body)
		words := CountWords(clean)
		title := seg.title
		if title == "" {
			title = fmt.Sprintf("Chapter %d", i+1)
		}
		result.Chapters = append(result.Chapters, model.Chapter{
			ID:              fmt.Sprintf("chapter-%d", i+1),
			Title:           title,
			Content:         clean,
			Order:           i + 1,
			WordCount:       words,
			ReadingTimeMins: model.ReadingTimeMinutes(words),
		})
	}
	return result
}

type segment struct {
	title string
	body  string
}

// splitOnHeadings cuts content at each heading open tag. The heading
// itself stays inside its segment so readers still see it.
func splitOnHeadings(content string) []segment {
	matches := headingRe.FindAllStringSubmatchIndex(content, -1)
	if len(matches) == 0 {
		return []segment{{title: "", body: content}}
	}
	segs := make([]segment, 0, len(matches))
	for i, m := range matches {
		start := m[0]
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := content[start:end]
		title := strings.Join(strings.Fields(ExtractText(content[m[0]:m[1]])), " ")
		segs = append(segs, segment{title: title, body: body})
	}
	return segs
}
