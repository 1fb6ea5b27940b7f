package planner

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"about", "after", "again", "also", "among", "because", "been",
		"before", "being", "between", "could", "did", "does", "doing",
		"down", "during", "each", "from", "further", "have", "having", "here",
		"into", "itself", "just", "more", "most", "once", "only", "other",
		"over", "same", "should", "some", "such", "than", "that", "their",
		"them", "then", "there", "these", "they", "this", "those", "through",
		"under", "until", "very", "were", "what", "when", "where", "which",
		"while", "whom", "with", "would", "your", "tell", "explain", "describe",
		"happened", "role", "play", "played",
	} {
		stopwords[w] = struct{}{}
	}
}

func isStopword(tok string) bool {
	_, ok := stopwords[toLowerASCII(tok)]
	return ok
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}
