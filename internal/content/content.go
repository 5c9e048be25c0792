package content

import (
	"regexp"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// ExcerptLength is the maximum length of a stored excerpt, in characters.
const ExcerptLength = 300

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Normalized is the derived text of a post's raw content.
type Normalized struct {
	Excerpt   string
	WordCount int
}

// StripTags removes every <...> sequence. Entities are left as-is.
func StripTags(s string) string {
	return tagPattern.ReplaceAllString(s, "")
}

// Normalize strips markup from raw item content, counts whitespace
// separated words, and keeps the first ExcerptLength characters.
func Normalize(raw string) Normalized {
	text := StripTags(raw)
	n := Normalized{WordCount: len(strings.Fields(text))}
	if utf8.RuneCountInString(text) > ExcerptLength {
		text = string([]rune(text)[:ExcerptLength])
	}
	n.Excerpt = text
	return n
}

// ExcerptPtr returns the excerpt, or nil when it is empty.
func (n Normalized) ExcerptPtr() *string {
	if n.Excerpt == "" {
		return nil
	}
	s := n.Excerpt
	return &s
}

// WordCountPtr returns the word count, or nil when there are no words.
func (n Normalized) WordCountPtr() *int {
	if n.WordCount == 0 {
		return nil
	}
	c := n.WordCount
	return &c
}

// ToMarkdown converts HTML to Markdown for terminal rendering.
func ToMarkdown(html string) (string, error) {
	return htmltomarkdown.ConvertString(html)
}
