// Package citation recovers the resource list an assistant appends to its reply.
package citation

import (
	"regexp"
	"strings"
)

type Citation struct {
	Title string  `json:"title"`
	URL   *string `json:"url"`
	Date  *string `json:"date"`
}

var (
	sectionRe    = regexp.MustCompile(`(?i)Related Resources?:?\s*\n((?:[-•]\s*.*\n?)+)`)
	bulletRe     = regexp.MustCompile(`[-•]\s*([^\n]+)`)
	urlRe        = regexp.MustCompile(`https?://[^\s\)]+`)
	urlWrapperRe = regexp.MustCompile(`\s*[\(\[]?\s*https?://[^\s\)\]]+[\)\]]?\s*`)
	trailingSep  = regexp.MustCompile(`:\s*$`)
)

// Extract parses a "Related Resources" bullet list out of a complete reply.
// Text without such a section yields no citations.
func Extract(text string) []Citation {
	m := sectionRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}

	var out []Citation
	for _, line := range bulletRe.FindAllStringSubmatch(m[1], -1) {
		if c, ok := parseLine(line[1]); ok {
			out = append(out, c)
		}
	}
	return out
}

func parseLine(line string) (Citation, bool) {
	var c Citation
	title := strings.TrimSpace(line)
	if u := urlRe.FindString(line); u != "" {
		c.URL = &u
		title = strings.TrimSpace(urlWrapperRe.ReplaceAllString(line, ""))
		title = strings.TrimSpace(trailingSep.ReplaceAllString(title, ""))
	}
	title = strings.TrimSpace(strings.Trim(title, "- •:"))
	if title == "" {
		return Citation{}, false
	}
	c.Title = title
	return c, true
}
