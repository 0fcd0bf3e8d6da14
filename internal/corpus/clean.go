package corpus

import (
	"regexp"
	"strings"
)

var (
	carriageReturns  = regexp.MustCompile(`\r`)
	runsOfSpaces     = regexp.MustCompile(`[ \t]{2,}`)
	runsOfNewlines   = regexp.MustCompile(`\n{3,}`)
	bracketRefs      = regexp.MustCompile(`(?i)\[(Table|Fig|Figure|See)[^\]]*\]`)
	pageCrossRefs    = regexp.MustCompile(`(?i)\(see p\.[^)]*\)`)
	standalonePages  = regexp.MustCompile(`\n\d{1,4}\n`)
	hyphenLineBreaks = regexp.MustCompile(`-\n`)
	brokenSentences  = regexp.MustCompile(`([^.\n])\n([a-z])`)
)

// CleanText runs the full normalization pipeline on extracted page
// text: whitespace normalization, header/footer removal, structural
// noise removal, and line break repair. Order matters; the final
// whitespace pass collapses gaps the earlier stages open up.
func CleanText(text string) string {
	text = NormalizeWhitespace(text)
	text = RemoveHeadersFooters(text)
	text = RemoveStructuralNoise(text)
	text = FixLineBreaks(text)
	return NormalizeWhitespace(text)
}

// NormalizeWhitespace collapses repeated spaces and blank-line runs
// while preserving paragraph structure.
func NormalizeWhitespace(text string) string {
	text = carriageReturns.ReplaceAllString(text, "\n")
	text = runsOfSpaces.ReplaceAllString(text, " ")
	text = runsOfNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// RemoveHeadersFooters drops recurring page furniture lines.
func RemoveHeadersFooters(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))

	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			cleaned = append(cleaned, "")
			continue
		}
		if strings.Contains(stripped, "Merck Manual") {
			continue
		}
		if strings.Contains(stripped, "Copyright") {
			continue
		}
		cleaned = append(cleaned, line)
	}
	return strings.Join(cleaned, "\n")
}

// RemoveStructuralNoise strips cross references and standalone page
// numbers without touching clinical content.
func RemoveStructuralNoise(text string) string {
	text = bracketRefs.ReplaceAllString(text, "")
	text = pageCrossRefs.ReplaceAllString(text, "")
	text = standalonePages.ReplaceAllString(text, "\n")
	return text
}

// FixLineBreaks repairs PDF-extraction artifacts: hyphenated word
// splits and sentences broken mid-line. A newline is merged only when
// the previous character is not a period and the next line starts
// lowercase, so headings stay on their own lines.
func FixLineBreaks(text string) string {
	text = hyphenLineBreaks.ReplaceAllString(text, "")
	return brokenSentences.ReplaceAllString(text, "$1 $2")
}
