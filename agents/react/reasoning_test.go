package react

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeRemovesGibberish(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"blank", "  \n\t ", ""},
		{"repeated punctuation run", "Think~~~~~~ hard", "Think hard"},
		{"repeated word char run", "okaaaaaaaay then", "oky then"},
		{"five letters kept", "aaaaa", "aaaaa"},
		{"control chars", "a\x00b\x07c", "abc"},
		{"angle bar noise", "x ||<> y", "x y"},
		{"punctuation collapse", "Wait?!? Really", "Wait? Really"},
		{"dots collapse", "Hmm... ok", "Hmm. ok"},
		{"header artifact", "## ***\nReal text", "Real text"},
		{"whitespace", "a  \t b\n\n\n\nc", "a b\n\nc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Sanitize(tc.in))
		})
	}
}

func TestSanitizeDropsConsecutiveDuplicates(t *testing.T) {
	in := "I should read the config file\nI should read the config file\nThen run it"
	assert.Equal(t, "I should read the config file\nThen run it", Sanitize(in))

	near := "we need to check the input file here\nwe need to check the input file now\nDone"
	assert.Equal(t, "we need to check the input file here\nDone", Sanitize(near))

	// a blank line in between resets the comparison
	spaced := "same line\n\nsame line"
	assert.Equal(t, "same line\n\nsame line", Sanitize(spaced))
}

func TestSanitizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"Let me think.....\n\n\n\nThe answer is 42!!!",
		"okaaaaaaaay ||||| fine\nfine\nfine",
		"## !!!\n  spaced   out  ",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), in)
	}
}

func TestExtractTitle(t *testing.T) {
	cases := []struct {
		in    string
		want  string
		found bool
	}{
		{"1. analyze the problem carefully. Then more", "Analyze the problem carefully", true},
		{"First, gather requirements.", "Gather requirements", true},
		{"Let me check the weather data.", "Check the weather data", true},
		{"Examining the stack trace\nmore text", "The stack trace", true},
		{"The user wants a summary of the file! ok", "The user wants a summary of the file", true},
		{"Short.", "", false},
		{"", "", false},
		{"Let me do", "", false},
	}
	for _, tc := range cases {
		got, ok := ExtractTitle(tc.in)
		assert.Equal(t, tc.found, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestSegment(t *testing.T) {
	assert.Nil(t, Segment("   "))
	assert.Equal(t, []string{"just one thought"}, Segment("just one thought"))

	text := "1. Read the input file carefully\n2. Parse every line\nThen print the result"
	assert.Equal(t, []string{
		"1. Read the input file carefully",
		"2. Parse every line",
		"Then print the result",
	}, Segment(text))

	paragraphs := "The first paragraph is long enough.\n\nshort\n\nThe last one"
	assert.Equal(t, []string{
		"The first paragraph is long enough.",
		"short The last one",
	}, Segment(paragraphs))

	bullets := "Plan:\n- fetch\n- parse"
	assert.Equal(t, []string{"Plan:", "- fetch", "- parse"}, Segment(bullets))
}
