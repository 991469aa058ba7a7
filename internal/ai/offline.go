package ai

import (
	"context"
	"fmt"
	"strings"
)

const (
	rothReply = "A Roth conversion moves money from a traditional IRA to a Roth IRA. You pay taxes now, but get tax-free growth and withdrawals later. It often makes sense if you expect higher taxes in retirement or want to avoid RMDs.\n\n" +
		"Want me to explain tax strategies, timing considerations, or walk through an example?"

	socialSecurityReply = "You can claim Social Security between ages 62-70. Claiming at 62 gets you reduced benefits but more years of payments. Waiting until 70 maximizes your monthly benefit (8% more per year you delay).\n\n" +
		"The right choice depends on your health, financial needs, and other income sources. Want to discuss break-even ages or specific scenarios?"

	genericReply = "I can help with retirement planning questions like Social Security timing, Roth conversions, tax strategies, withdrawal rates, and Medicare planning.\n\n" +
		"What specific aspect would you like to explore?"
)

type topicReply struct {
	keywords []string
	reply    string
}

// first match wins
var offlineTopics = []topicReply{
	{keywords: []string{"roth", "conversion"}, reply: rothReply},
	{keywords: []string{"social security", "timing"}, reply: socialSecurityReply},
}

const offlineCitationCount = 2

// OfflineStage answers without any external dependency. Identical requests
// always yield identical output.
type OfflineStage struct{}

func NewOfflineStage() *OfflineStage { return &OfflineStage{} }

func (*OfflineStage) Name() string { return "offline" }

func (s *OfflineStage) Open(ctx context.Context, req Request) Attempt {
	words := strings.SplitAfter(OfflineReply(req), " ")

	chunks := make(chan string, 16)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		for _, w := range words {
			select {
			case chunks <- w:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return Available(&Stream{Chunks: chunks, Errs: errs})
}

// OfflineReply picks a canned answer for the latest user message and lists
// up to two context passages as sources.
func OfflineReply(req Request) string {
	latest := req.Latest
	if latest == "" {
		for i := len(req.History) - 1; i >= 0; i-- {
			if req.History[i].Role == RoleUser {
				latest = req.History[i].Content
				break
			}
		}
	}
	latest = strings.ToLower(latest)

	reply := genericReply
	for _, t := range offlineTopics {
		if containsAny(latest, t.keywords) {
			reply = t.reply
			break
		}
	}

	n := min(len(req.Context), offlineCitationCount)
	if n == 0 {
		return reply
	}
	lines := make([]string, 0, n)
	for _, p := range req.Context[:n] {
		title := p.Title
		if title == "" {
			title = "Document"
		}
		date := p.PublishedDate
		if date == "" {
			date = "N/A"
		}
		lines = append(lines, fmt.Sprintf("- %s (%s)", title, date))
	}
	return reply + "\n\n**Sources:**\n" + strings.Join(lines, "\n")
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
