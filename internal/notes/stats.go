package notes

import (
	"regexp"
	"strings"
)

const wordsPerMinute = 200

var markupTagPattern = regexp.MustCompile(`<[^>]+>`)

// Stats summarises the readable text of a note's content.
type Stats struct {
	WordCount   int `json:"word_count"`
	ReadMinutes int `json:"read_minutes"`
}

// ComputeStats counts the words of rich-text content with markup removed.
func ComputeStats(content string) Stats {
	text := strings.TrimSpace(markupTagPattern.ReplaceAllString(content, " "))
	if text == "" {
		return Stats{}
	}
	wordCount := len(strings.Fields(text))
	return Stats{
		WordCount:   wordCount,
		ReadMinutes: (wordCount + wordsPerMinute - 1) / wordsPerMinute,
	}
}
