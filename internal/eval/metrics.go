// Package eval measures retrieval quality against gold queries labeled
// with their relevant chapter. Metrics operate on chapter identity, not
// chunk identity, because several chunks of the same chapter are all
// correct answers.
package eval

import "math"

// RecallAtK reports whether the relevant chapter appears in the top k
// results. Binary per query; averaged across queries by the runner.
func RecallAtK(chapters []int, relevantChapter, k int) float64 {
	if k > len(chapters) {
		k = len(chapters)
	}
	for _, ch := range chapters[:k] {
		if ch == relevantChapter {
			return 1.0
		}
	}
	return 0.0
}

// MRR returns the reciprocal rank of the relevant chapter. Repeated
// chapters are collapsed so rank counts distinct chapters, matching how
// a reader scans a result list.
func MRR(chapters []int, relevantChapter int) float64 {
	seen := make(map[int]struct{}, len(chapters))
	rank := 0
	for _, ch := range chapters {
		if _, dup := seen[ch]; dup {
			continue
		}
		seen[ch] = struct{}{}
		rank++
		if ch == relevantChapter {
			return 1.0 / float64(rank)
		}
	}
	return 0.0
}

// NDCGAtK returns binary NDCG over the deduplicated top k chapters.
// With a single relevant chapter the ideal DCG is 1.0, so the score is
// 1/log2(pos+1) at the position where the chapter first appears.
func NDCGAtK(chapters []int, relevantChapter, k int) float64 {
	if k > len(chapters) {
		k = len(chapters)
	}
	seen := make(map[int]struct{}, k)
	pos := 0
	for _, ch := range chapters[:k] {
		if _, dup := seen[ch]; dup {
			continue
		}
		seen[ch] = struct{}{}
		pos++
		if ch == relevantChapter {
			return 1.0 / math.Log2(float64(pos)+1)
		}
	}
	return 0.0
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
