package provider

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultMaxSourceLines caps how much of a block is sent to the model.
const DefaultMaxSourceLines = 200

var (
	thinkRe      = regexp.MustCompile(`(?s)<think>.*?</think>`)
	summaryRe    = regexp.MustCompile(`(?s)SUMMARY:\s*(.*?)(?:\nPSEUDOCODE:|$)`)
	pseudocodeRe = regexp.MustCompile(`(?s)PSEUDOCODE:\s*(.*)`)
)

// BuildPrompt renders the analysis prompt for a block. Source beyond
// maxLines lines is dropped; maxLines <= 0 uses DefaultMaxSourceLines.
func BuildPrompt(req Request, model string, maxLines int) string {
	if maxLines <= 0 {
		maxLines = DefaultMaxSourceLines
	}
	language := req.Language
	if language == "" {
		language = "unknown"
	}
	source := req.Source
	if lines := strings.Split(source, "\n"); len(lines) > maxLines {
		source = strings.Join(lines[:maxLines], "\n")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a code explainer for non-programmers. Given the following %s code, provide:\n\n", language)
	b.WriteString("1. SUMMARY: A plain English explanation (1-3 sentences) that a non-programmer can understand. ")
	b.WriteString("Explain WHAT it does and WHY, not HOW. Avoid jargon.\n\n")
	b.WriteString("2. PSEUDOCODE: A simplified pseudocode version using plain English function/variable names. Keep it short.\n\n")
	b.WriteString("Respond in exactly this format:\nSUMMARY: <your summary>\nPSEUDOCODE:\n<your pseudocode>\n\n")
	fmt.Fprintf(&b, "Here is the code:\n```%s\n%s\n```", language, source)

	if strings.Contains(strings.ToLower(model), "qwen3") {
		b.WriteString("\n\n/no_think")
	}
	return b.String()
}

// ParseResponse extracts the summary and pseudocode from raw model output.
// When no SUMMARY section is found the first non-empty line is used.
func ParseResponse(raw string) Result {
	text := strings.TrimSpace(thinkRe.ReplaceAllString(raw, ""))

	var res Result
	if m := summaryRe.FindStringSubmatch(text); m != nil {
		res.Summary = strings.TrimSpace(m[1])
	}
	if m := pseudocodeRe.FindStringSubmatch(text); m != nil {
		res.Pseudocode = strings.TrimSpace(m[1])
	}
	if res.Summary == "" {
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				res.Summary = line
				break
			}
		}
	}
	return res
}
