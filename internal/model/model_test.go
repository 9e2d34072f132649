package model

import "testing"

func TestEstimateTokens_CountsWordsAcrossWhitespace(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"hello", 1},
		{"hello world", 2},
		{"hello\nworld\tfoo", 3},
		{"  leading and trailing  ", 3},
	}
	for _, c := range cases {
		if got := EstimateTokens(c.in); got != c.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestEstimateTokens_PunctuationAttachedToWordCountsOnce(t *testing.T) {
	got := EstimateTokens("func (h *Handler) Process(ctx context.Context) error {")
	if got != 7 {
		t.Errorf("got %d, want 7", got)
	}
}
