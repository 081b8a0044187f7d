package react

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	controlChars    = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	headerArtifact  = regexp.MustCompile(`(?m)^#{1,6}\s*[^\p{L}\p{N}_]{3,}$`)
	angleBarRuns    = regexp.MustCompile(`[|<>]{4,}`)
	punctuationRuns = regexp.MustCompile(`[!?,.;:]{3,}`)
	horizontalSpace = regexp.MustCompile(`[ \t]+`)
	blankLineRuns   = regexp.MustCompile(`\n\s*\n\s*\n+`)
	sentenceBreak   = regexp.MustCompile(`[.!?]`)
)

var titlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\d+[.):]\s*(.+?)(?:\.|$)`),
	regexp.MustCompile(`(?i)^(?:First|Second|Third|Fourth|Fifth),?\s*(.+?)(?:\.|$)`),
	regexp.MustCompile(`(?i)^(?:Let me|I need to|I should|I'll|I will|Now I|Next I)\s+(.+?)(?:\.|$)`),
	regexp.MustCompile(`(?i)^(?:Analyzing|Examining|Considering|Evaluating|Looking at|Reviewing)\s+(.+?)(?:\.|$)`),
}

var stepIndicators = []*regexp.Regexp{
	regexp.MustCompile(`^\d+[.):]\s`),
	regexp.MustCompile(`^\s*[-•]\s`),
	regexp.MustCompile(`(?i)^(first|second|third|fourth|fifth|finally|next|then|lastly|alternatively|moreover|furthermore|therefore|thus|consequently|as\s+a\s+result)\b`),
}

// Sanitize strips decoding artifacts from raw model reasoning: long runs of
// one character, control characters, punctuation noise, consecutive
// duplicate lines and excess whitespace. Blank input yields "".
func Sanitize(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	text := removeGibberish(raw)
	text = removeDuplicateLines(text)
	text = horizontalSpace.ReplaceAllString(text, " ")
	text = blankLineRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func removeGibberish(text string) string {
	text = dropRuns(text, 5, func(r rune) bool { return !isWordRune(r) && !unicode.IsSpace(r) })
	text = dropRuns(text, 6, isWordRune)
	text = controlChars.ReplaceAllString(text, "")
	text = headerArtifact.ReplaceAllString(text, "")
	text = angleBarRuns.ReplaceAllString(text, "")
	return punctuationRuns.ReplaceAllStringFunc(text, func(m string) string {
		return m[:1]
	})
}

// dropRuns deletes every run of at least min identical runes matching class.
func dropRuns(text string, min int, class func(rune) bool) string {
	var b strings.Builder
	b.Grow(len(text))
	runes := []rune(text)
	for i := 0; i < len(runes); {
		j := i + 1
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		if !(j-i >= min && class(runes[i])) {
			b.WriteString(string(runes[i:j]))
		}
		i = j
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// removeDuplicateLines drops a line equal to, or with word-set Jaccard
// similarity above 0.7 to, the line kept just before it.
func removeDuplicateLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	last := ""
	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped != "" && stripped == last {
			continue
		}
		if stripped != "" && last != "" && jaccard(stripped, last) > 0.7 {
			continue
		}
		kept = append(kept, line)
		last = stripped
	}
	return strings.Join(kept, "\n")
}

func jaccard(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

// ExtractTitle derives a short heading for a Thought from sanitized
// reasoning. ok is false when no pattern or short first sentence fits.
func ExtractTitle(reasoning string) (title string, ok bool) {
	trimmed := strings.TrimSpace(reasoning)
	if trimmed == "" {
		return "", false
	}
	firstLine, _, _ := strings.Cut(trimmed, "\n")
	for _, re := range titlePatterns {
		m := re.FindStringSubmatch(firstLine)
		if m == nil || m[1] == "" {
			continue
		}
		extracted := strings.TrimSpace(m[1])
		if n := utf8.RuneCountInString(extracted); n > 5 && n < 80 {
			return capitalizeFirst(extracted), true
		}
	}
	first := strings.TrimSpace(sentenceBreak.Split(reasoning, 2)[0])
	if n := utf8.RuneCountInString(first); n > 10 && n < 60 {
		return capitalizeFirst(first), true
	}
	return "", false
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// Segment splits reasoning into logical steps at blank lines, numbered or
// bulleted lines and transition words. Non-blank text always yields at least
// one segment.
func Segment(reasoning string) []string {
	if strings.TrimSpace(reasoning) == "" {
		return nil
	}
	var segments []string
	current := ""
	for _, line := range strings.Split(reasoning, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			if len(strings.TrimSpace(current)) > 20 {
				segments = append(segments, strings.TrimSpace(current))
				current = ""
			}
			continue
		}
		if startsStep(stripped) && strings.TrimSpace(current) != "" {
			segments = append(segments, strings.TrimSpace(current))
			current = line
			continue
		}
		if current != "" {
			current += " "
		}
		current += line
	}
	if strings.TrimSpace(current) != "" {
		segments = append(segments, strings.TrimSpace(current))
	}
	if len(segments) == 0 {
		segments = append(segments, strings.TrimSpace(reasoning))
	}
	return segments
}

func startsStep(line string) bool {
	for _, re := range stepIndicators {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
