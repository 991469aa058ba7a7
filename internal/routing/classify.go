// Package routing classifies a conversation transcript into a lead bucket and
// meeting type and resolves the matching booking link.
package routing

import (
	"regexp"
	"strings"
)

const (
	BucketTaxForward = "tax_forward"
	BucketIncome     = "income"
	BucketBusiness   = "business"
	BucketEstate     = "estate"
	BucketGeneral    = "general"

	MeetingCall15  = "clarity_call_15"
	MeetingVisit60 = "clarity_visit_60"
)

type rule struct {
	bucket   string
	patterns []*regexp.Regexp
}

// rules are scored in declaration order; the first bucket wins a tie.
var rules = []rule{
	{BucketTaxForward, compile(
		`\b(tax|taxes|roth|irmaa|conversion|medicare)\b`,
		`\b(tax planning|tax strategy|tax bracket)\b`,
	)},
	{BucketIncome, compile(
		`\b(retirement income|social security|pension|annuity)\b`,
		`\b(withdrawal|distribution|rmd|required minimum)\b`,
	)},
	{BucketBusiness, compile(
		`\b(business owner|sell.*business|liquidity event)\b`,
		`\b(exit strategy|company sale|equity compensation)\b`,
	)},
	{BucketEstate, compile(
		`\b(estate|legacy|inheritance|trust|beneficiary)\b`,
		`\b(gift|charitable|philanthrop)\b`,
	)},
}

var urgency = compile(
	`\b(retiring (soon|within|in \d+)|retire next year|retiring in \d+)\b`,
	`\b(major (event|decision|change)|urgent|time-sensitive)\b`,
	`\b(selling business|sold company|windfall)\b`,
)

var bookingURLs = map[string]string{
	"tax_forward_15": "https://calendly.com/fiat-wealth/tax-clarity-call-15min",
	"tax_forward_60": "https://calendly.com/fiat-wealth/tax-clarity-visit-60min",
	"income_15":      "https://calendly.com/fiat-wealth/income-clarity-call-15min",
	"income_60":      "https://calendly.com/fiat-wealth/income-clarity-visit-60min",
	"business_15":    "https://calendly.com/fiat-wealth/business-clarity-call-15min",
	"business_60":    "https://calendly.com/fiat-wealth/business-clarity-visit-60min",
	"estate_15":      "https://calendly.com/fiat-wealth/estate-clarity-call-15min",
	"estate_60":      "https://calendly.com/fiat-wealth/estate-clarity-visit-60min",
	"general_15":     "https://calendly.com/fiat-wealth/clarity-call-15min",
	"general_60":     "https://calendly.com/fiat-wealth/clarity-visit-60min",
}

// DefaultBookingURL is used when a lead has no stored link.
var DefaultBookingURL = bookingURLs["general_15"]

type Result struct {
	Bucket      string `json:"bucket"`
	MeetingType string `json:"meeting_type"`
	BookingURL  string `json:"booking_url"`
	Urgent      bool   `json:"urgent"`
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

func Classify(transcript string) Result {
	text := strings.ToLower(transcript)
	bucket := Bucket(text)
	urgent := IsUrgent(text)

	meeting := MeetingCall15
	if urgent {
		meeting = MeetingVisit60
	}
	return Result{
		Bucket:      bucket,
		MeetingType: meeting,
		BookingURL:  BookingURL(bucket, meeting),
		Urgent:      urgent,
	}
}

// Bucket returns the highest scoring bucket, or general when nothing matches.
func Bucket(transcript string) string {
	best, bestScore := BucketGeneral, 0
	for _, r := range rules {
		score := 0
		for _, re := range r.patterns {
			score += len(re.FindAllStringIndex(transcript, -1))
		}
		if score > bestScore {
			best, bestScore = r.bucket, score
		}
	}
	return best
}

func IsUrgent(transcript string) bool {
	for _, re := range urgency {
		if re.MatchString(transcript) {
			return true
		}
	}
	return false
}

// BookingURL maps a bucket and meeting type to its scheduling link. Unknown
// combinations resolve to the general 15 minute call.
func BookingURL(bucket, meetingType string) string {
	suffix := meetingType
	if i := strings.LastIndexByte(meetingType, '_'); i >= 0 {
		suffix = meetingType[i+1:]
	}
	if u, ok := bookingURLs[bucket+"_"+suffix]; ok {
		return u
	}
	return DefaultBookingURL
}
