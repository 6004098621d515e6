package htmldoc

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oyinkolade/readstack/internal/model"
)

var mdHeadingRe = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.+?)[ \t]*#*[ \t]*$`)

// ProcessMarkdown turns a markdown book into chapters. Content is split at
// ATX headings, mirroring the HTML path; the book title comes from the
// first level-1 heading. A document without headings becomes one chapter.
func ProcessMarkdown(content string) model.ParseResult {
	var result model.ParseResult

	matches := mdHeadingRe.FindAllStringSubmatchIndex(content, -1)
	for _, m := range matches {
		if m[2] != -1 && content[m[2]:m[3]] == "#" {
			result.Metadata.Title = strings.TrimSpace(content[m[4]:m[5]])
			break
		}
	}

	if len(matches) == 0 {
		result.Chapters = append(result.Chapters, markdownChapter(1, "", content))
		return result
	}
	for i, m := range matches {
		start := m[0]
		end := len(content)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		title := strings.TrimSpace(content[m[4]:m[5]])
		result.Chapters = append(result.Chapters, markdownChapter(i+1, title, content[start:end]))
	}
	return result
}

func markdownChapter(order int, title, body string) model.Chapter {
	clean := Sanitize(body)
	words := len(strings.Fields(clean))
	if title == "" {
		title = fmt.Sprintf("Chapter %d", order)
	}
	return model.Chapter{
		ID:              fmt.Sprintf("chapter-%d", order),
		Title:           title,
		Content:         clean,
		Order:           order,
		WordCount:       words,
		ReadingTimeMins: model.ReadingTimeMinutes(words),
	}
}
