package services

import (
	"math"
	"strings"

	"github.com/lzcjsyr/AIGC-Video/domain"
)

// sentence-ending punctuation, CJK and Latin; newlines also break.
const sentenceBreaks = "。！？；.!?\n"

// SplitIntoSegments cuts the narration into exactly n parts, preferring
// sentence boundaries and balancing parts by character count. When the
// text has fewer sentences than requested parts it falls back to an
// even character-level split.
func SplitIntoSegments(text string, n int) []string {
	trimmed := strings.TrimSpace(text)
	if n <= 1 || trimmed == "" {
		return []string{trimmed}
	}

	sentences := splitSentences(trimmed)
	if len(sentences) < n {
		return splitEvenRunes(trimmed, n)
	}

	total := 0
	for _, s := range sentences {
		total += len([]rune(s))
	}
	ideal := float64(total) / float64(n)

	segments := make([]string, 0, n)
	var builder strings.Builder
	consumed := 0
	for i, s := range sentences {
		builder.WriteString(s)
		consumed += len([]rune(s))

		remainingSentences := len(sentences) - i - 1
		remainingSegments := n - len(segments) - 1
		if remainingSegments == 0 {
			continue
		}
		// Close the segment once the cumulative count crosses the ideal
		// boundary, but never leave fewer sentences than open segments.
		threshold := ideal * float64(len(segments)+1)
		if float64(consumed) >= threshold || remainingSentences == remainingSegments {
			segments = append(segments, strings.TrimSpace(builder.String()))
			builder.Reset()
		}
	}
	if builder.Len() > 0 || len(segments) < n {
		segments = append(segments, strings.TrimSpace(builder.String()))
	}

	// Sentence boundaries can only over-shoot by one; merge the two
	// shortest neighbours until the count is exact.
	for len(segments) > n {
		minIdx, minSum := 0, math.MaxInt
		for i := 0; i < len(segments)-1; i++ {
			sum := len([]rune(segments[i])) + len([]rune(segments[i+1]))
			if sum < minSum {
				minSum, minIdx = sum, i
			}
		}
		merged := segments[minIdx] + segments[minIdx+1]
		segments = append(segments[:minIdx+1], segments[minIdx+2:]...)
		segments[minIdx] = merged
	}
	for len(segments) < n {
		segments = append(segments, "")
	}
	return segments
}

func splitSentences(text string) []string {
	var sentences []string
	var builder strings.Builder
	for _, r := range text {
		builder.WriteRune(r)
		if strings.ContainsRune(sentenceBreaks, r) {
			if s := strings.TrimSpace(builder.String()); s != "" {
				sentences = append(sentences, s)
			}
			builder.Reset()
		}
	}
	if s := strings.TrimSpace(builder.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func splitEvenRunes(text string, n int) []string {
	runes := []rune(text)
	base := len(runes) / n
	rem := len(runes) % n
	parts := make([]string, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		length := base
		if i < rem {
			length++
		}
		parts = append(parts, string(runes[start:start+length]))
		start += length
	}
	return parts
}

// BuildScript turns the summarized narration into the stage 2 script:
// exactly numSegments parts with per-segment duration estimates at the
// given speech rate (characters per minute).
func BuildScript(raw domain.RawScript, numSegments int, speechRate int) domain.Script {
	parts := SplitIntoSegments(raw.Content, numSegments)
	if speechRate < 1 {
		speechRate = 1
	}

	script := domain.Script{
		Title:       raw.Title,
		GoldenQuote: raw.GoldenQuote,
		TotalLength: len([]rune(raw.Content)),
		NumSegments: len(parts),
		Segments:    make([]domain.Segment, 0, len(parts)),
	}
	for i, part := range parts {
		length := len([]rune(part))
		duration := float64(length) / float64(speechRate) * 60
		script.Segments = append(script.Segments, domain.Segment{
			Index:             i + 1,
			Content:           part,
			Length:            length,
			EstimatedDuration: math.Round(duration*10) / 10,
		})
	}
	return script
}
