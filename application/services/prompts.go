package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lzcjsyr/AIGC-Video/domain"
)

const summarizeSystemPrompt = `You condense long documents into narration scripts for short videos.
Respond with a single JSON object: {"title": "...", "golden_quote": "...", "content": "..."}.
The content field holds the complete narration as one unbroken text, suitable for reading aloud.
Do not split the narration into sections and do not add any text outside the JSON object.`

const keywordsSystemPrompt = `You extract visual keywords from narration segments for image generation.
Respond with a single JSON object: {"segments": [{"keywords": ["..."], "atmosphere": ["..."]}]}.
Produce exactly one entry per input segment, in order: keywords name concrete subjects and objects,
atmosphere names mood and lighting. Do not add any text outside the JSON object.`

func buildSummarizeUserPrompt(content string, targetLength int) string {
	return fmt.Sprintf(`Condense the following document into a narration script of roughly %d characters.

Document:
%s

Keep the core information and a clear spoken-language flow. Output the full narration in the content field without splitting it.`, targetLength, content)
}

func buildKeywordsUserPrompt(script domain.Script) string {
	var sb strings.Builder
	sb.WriteString("Extract keywords and atmosphere terms for each of the following narration segments:\n")
	for _, seg := range script.Segments {
		sb.WriteString(fmt.Sprintf("\nSegment %d: %s\n", seg.Index, seg.Content))
	}
	return sb.String()
}

// parseJSONReply tolerates models that wrap the JSON object in markdown
// fences or prose: it decodes the outermost brace-delimited object.
func parseJSONReply(reply string, v interface{}) error {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return domain.NewServiceError(false, "model reply contained no JSON object", nil)
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), v); err != nil {
		return domain.NewServiceError(false, "model reply was not valid JSON", err)
	}
	return nil
}

// buildImagePrompt assembles the per-segment image prompt from keywords
// and atmosphere terms, skipping any the content filter flagged.
func buildImagePrompt(kw domain.SegmentKeywords, flagged []string) string {
	blocked := make(map[string]struct{}, len(flagged))
	for _, f := range flagged {
		blocked[strings.ToLower(f)] = struct{}{}
	}
	keep := func(terms []string) []string {
		var out []string
		for _, t := range terms {
			if _, bad := blocked[strings.ToLower(t)]; !bad {
				out = append(out, t)
			}
		}
		return out
	}

	keywords := keep(kw.Keywords)
	atmosphere := keep(kw.Atmosphere)

	var parts []string
	if len(keywords) > 0 {
		parts = append(parts, strings.Join(keywords, ", "))
	}
	if len(atmosphere) > 0 {
		parts = append(parts, strings.Join(atmosphere, ", "))
	}
	if len(parts) == 0 {
		return "abstract atmospheric illustration, soft light"
	}
	return strings.Join(parts, " | ") + ", illustration style"
}

// sanitizeImagePrompt derives the fallback prompt after a policy
// rejection: flagged terms are removed; when the provider named none,
// the concrete keywords are dropped entirely and only atmosphere terms
// remain.
func sanitizeImagePrompt(kw domain.SegmentKeywords, flagged []string) string {
	if len(flagged) > 0 {
		return buildImagePrompt(kw, flagged)
	}
	return buildImagePrompt(domain.SegmentKeywords{Atmosphere: kw.Atmosphere}, nil)
}
