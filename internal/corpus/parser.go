package corpus

import (
	"regexp"
	"strconv"
	"strings"
)

// chapterHeading matches lines like "Chapter 12. Hypertension".
var chapterHeading = regexp.MustCompile(`^Chapter\s+(\d+)\.\s+(.+)`)

// ParseChapters splits cleaned corpus text into chapter-level records.
// Content before the first chapter heading is discarded; chapters with
// no body text are dropped. Deterministic, no section heuristics.
func ParseChapters(text string) []*Chapter {
	var (
		chapters []*Chapter
		current  *Chapter
		body     []string
	)

	flush := func() {
		if current == nil {
			return
		}
		content := strings.TrimSpace(strings.Join(body, " "))
		if content != "" {
			current.Content = content
			chapters = append(chapters, current)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)

		if m := chapterHeading.FindStringSubmatch(stripped); m != nil {
			flush()
			number, _ := strconv.Atoi(m[1])
			current = &Chapter{Number: number, Title: strings.TrimSpace(m[2])}
			body = body[:0]
			continue
		}
		if current == nil {
			continue
		}
		if stripped != "" {
			body = append(body, stripped)
		}
	}
	flush()

	return chapters
}
