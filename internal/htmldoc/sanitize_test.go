package htmldoc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeStripsActiveContent(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"script block", `<p>hi</p><script>alert("x")</script><p>bye</p>`},
		{"script with attrs", `<script type="text/javascript" src="evil.js"></script><p>ok</p>`},
		{"unclosed script tag", `<p>before</p><script src="x.js"/>`},
		{"event handler double quoted", `<img src="a.png" onerror="steal()">`},
		{"event handler single quoted", `<div onclick='run()'>x</div>`},
		{"event handler unquoted", `<div onmouseover=run()>x</div>`},
		{"javascript scheme", `<a href="javascript:alert(1)">link</a>`},
		{"data scheme", `<a href="data:text/html;base64,xxx">link</a>`},
		{"scheme with spaces", `<a href="javascript  :alert(1)">link</a>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Sanitize(tt.input)
			lower := strings.ToLower(out)
			assert.NotContains(t, lower, "<script")
			assert.NotRegexp(t, `(?i)\son\w+\s*=`, out)
			assert.NotContains(t, lower, "javascript:")
			assert.NotContains(t, lower, "data:")
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	input := `<h1 onclick="x()">Title</h1><script>bad()</script><a href="javascript:void(0)">x</a><p>body</p>`
	once := Sanitize(input)
	twice := Sanitize(once)
	assert.Equal(t, once, twice)
}

func TestSanitizeKeepsStructure(t *testing.T) {
	input := `<h1>Chapter One</h1><p class="lead">It was a dark and stormy night.</p>`
	assert.Equal(t, input, Sanitize(input))
}

func TestExtractText(t *testing.T) {
	doc := `<html><head><style>p{color:red}</style><script>x()</script></head>
		<body><h1>Title</h1><p>Two   words</p></body></html>`
	assert.Equal(t, "Title Two words", ExtractText(doc))
	assert.Equal(t, 3, CountWords(doc))
}

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "From Title", ExtractTitle(`<html><head><title>From Title</title></head><body><h1>H</h1></body></html>`))
	assert.Equal(t, "From Heading", ExtractTitle(`<body><h2>From Heading</h2><p>x</p></body>`))
	assert.Equal(t, "", ExtractTitle(`<p>no title here</p>`))
}

func TestExtractMetaAuthor(t *testing.T) {
	doc := `<html><head><meta name="Author" content="Jane Doe"></head><body></body></html>`
	assert.Equal(t, "Jane Doe", ExtractMetaAuthor(doc))
	assert.Equal(t, "", ExtractMetaAuthor(`<p>anonymous</p>`))
}

func TestProcessSplitsOnHeadings(t *testing.T) {
	doc := `<h1>One</h1><p>first chapter body</p><h1>Two</h1><p>second chapter body</p>`
	result := Process(doc)

	assert.Len(t, result.Chapters, 2)
	for i, ch := range result.Chapters {
		assert.Equal(t, i+1, ch.Order)
	}
	assert.Equal(t, "One", result.Chapters[0].Title)
	assert.Equal(t, "Two", result.Chapters[1].Title)
	assert.Contains(t, result.Chapters[0].Content, "first chapter body")
	assert.Contains(t, result.Chapters[1].Content, "second chapter body")
}

func TestProcessWithoutHeadings(t *testing.T) {
	result := Process(`<p>just a plain document with some words in it</p>`)

	assert.Len(t, result.Chapters, 1)
	assert.Equal(t, "Chapter 1", result.Chapters[0].Title)
	assert.Equal(t, 9, result.Chapters[0].WordCount)
}

func TestProcessSanitizesChapters(t *testing.T) {
	result := Process(`<h1>One</h1><p>text</p><script>bad()</script>`)

	assert.Len(t, result.Chapters, 1)
	assert.NotContains(t, result.Chapters[0].Content, "<script")
}
