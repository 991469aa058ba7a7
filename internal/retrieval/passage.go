package retrieval

import "unicode/utf8"

// Passage is a single retrieved unit of context. It is built per turn and never persisted.
type Passage struct {
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	SourceURL     string   `json:"source_url,omitempty"`
	PublishedDate string   `json:"published_date,omitempty"`
	Score         *float64 `json:"score,omitempty"`
}

// Truncate returns a copy whose content holds at most max runes.
func (p Passage) Truncate(max int) Passage {
	if max <= 0 || utf8.RuneCountInString(p.Content) <= max {
		return p
	}
	r := []rune(p.Content)
	p.Content = string(r[:max])
	return p
}
