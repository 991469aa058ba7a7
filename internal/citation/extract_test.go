package citation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestExtract(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []Citation
	}{
		{
			name: "title with url and bare title",
			text: "Some answer.\n\nRelated Resources:\n- Title A: https://x/y\n- Title B",
			want: []Citation{{Title: "Title A", URL: ptr("https://x/y")}, {Title: "Title B"}},
		},
		{
			name: "case insensitive singular heading with bullets and parens",
			text: "Answer\nrelated resource\n• Roth Guide (https://fiatwm.com/roth)\n• [https://fiatwm.com/rmd]\n",
			want: []Citation{{Title: "Roth Guide", URL: ptr("https://fiatwm.com/roth")}},
		},
		{
			name: "stops at first non bullet line",
			text: "Related Resources:\n- One\nSee you soon\n- Not a citation",
			want: []Citation{{Title: "One"}},
		},
		{
			name: "no section",
			text: "A Roth conversion moves money.\n- a stray bullet",
			want: nil,
		},
		{
			name: "heading without list",
			text: "Related Resources:\nnothing here",
			want: nil,
		},
		{
			name: "empty",
			text: "",
			want: nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Extract(tc.text))
		})
	}
}

func TestExtract_NeverPanicsOnMalformedInput(t *testing.T) {
	inputs := []string{
		"Related Resources:\n-\n-   \n- :\n",
		"Related Resources\n- (https://",
		"Related Resources:\n- \xff\xfe broken utf8 https://x\n",
		"RELATED RESOURCES:\n\n\n",
	}
	for _, in := range inputs {
		require.NotPanics(t, func() { _ = Extract(in) })
	}
}
