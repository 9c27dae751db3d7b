package usecase

import (
	"errors"
	"regexp"
	"strings"
)

// Heuristic string surgery for malformed chart JSON. Each helper is one
// stage of the repair cascade in parseBlock; stages only run when the
// previous one failed to yield a parseable object.

var (
	codeFenceRe = regexp.MustCompile("(?i)```(?:json)?")

	lineCommentRe  = regexp.MustCompile(`(?m)(^|[,{\[:\s])//[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	singleQuoteRe  = regexp.MustCompile(`'([^'\\]*)'`)
	trailingComma  = regexp.MustCompile(`,\s*([}\]])`)
	duplicateComma = regexp.MustCompile(`,\s*,`)
	nonPrintableRe = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f]`)
	multiSpaceRe   = regexp.MustCompile(`[ \t]{2,}`)

	smartQuotes = strings.NewReplacer(
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
	)
)

func stripCodeFences(s string) string {
	return strings.TrimSpace(codeFenceRe.ReplaceAllString(s, ""))
}

// sanitizeJSON normalizes the model's most common JSON mistakes: comments,
// single quotes, smart quotes, trailing/duplicate commas, control characters
// and runs of whitespace.
func sanitizeJSON(s string) string {
	s = smartQuotes.Replace(s)
	s = blockCommentRe.ReplaceAllString(s, "")
	s = lineCommentRe.ReplaceAllString(s, "$1")
	s = singleQuoteRe.ReplaceAllString(s, `"$1"`)
	for duplicateComma.MatchString(s) {
		s = duplicateComma.ReplaceAllString(s, ",")
	}
	s = trailingComma.ReplaceAllString(s, "$1")
	s = nonPrintableRe.ReplaceAllString(s, "")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

var (
	reconstructID    = regexp.MustCompile(`(?i)"?(?:chart_?id|id)"?\s*[:=]\s*["']?([\w.-]+)`)
	reconstructType  = regexp.MustCompile(`(?i)"?(?:chart_?type|type)"?\s*[:=]\s*["']?([a-z]+)`)
	reconstructTitle = regexp.MustCompile(`(?i)"?(?:chart_?title|title)"?\s*[:=]\s*["']([^"'\n]*)["']`)
	reconstructDesc  = regexp.MustCompile(`(?i)"?(?:chart_?description|description)"?\s*[:=]\s*["']([^"'\n]*)["']`)
	// data rows are flat objects, so the first closing bracket ends the array
	reconstructData = regexp.MustCompile(`(?is)"?(?:chart_?data|data)"?\s*[:=]\s*(\[.*?\])`)
)

var errReconstruct = errors.New("no recoverable chart fields")

// reconstructFields salvages known fields straight out of malformed text,
// producing a best-effort object instead of discarding the block. It fails
// only when neither a title, a type nor a data array can be located.
func reconstructFields(s string) (map[string]any, error) {
	out := map[string]any{}

	if m := reconstructID.FindStringSubmatch(s); m != nil && strings.ToLower(m[1]) != "null" {
		out["id"] = m[1]
	}
	if m := reconstructType.FindStringSubmatch(s); m != nil {
		out["type"] = m[1]
	}
	if m := reconstructTitle.FindStringSubmatch(s); m != nil {
		out["title"] = m[1]
	}
	if m := reconstructDesc.FindStringSubmatch(s); m != nil {
		out["description"] = m[1]
	}
	if m := reconstructData.FindStringSubmatch(s); m != nil {
		if arr, err := strictParse(`{"data":` + sanitizeJSON(m[1]) + `}`); err == nil {
			out["data"] = arr["data"]
		}
	}

	_, hasType := out["type"]
	_, hasTitle := out["title"]
	_, hasData := out["data"]
	if !hasType && !hasTitle && !hasData {
		return nil, errReconstruct
	}
	return out, nil
}
