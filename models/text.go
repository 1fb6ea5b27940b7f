package models

import "strings"

func splitWords(s string) []string {
	return strings.Fields(s)
}

// WordCount counts whitespace-separated words in s.
func WordCount(s string) int {
	return len(splitWords(s))
}
