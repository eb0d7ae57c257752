package chunker

import (
	"unicode"
	"unicode/utf8"
)

// hardWrap splits one oversized block's content into ordered pieces, each
// estimating within maxTokens wherever achievable. Pieces are contiguous
// substrings of the content, so interior layout survives and any fence
// markers stay on the first and last piece only.
//
// Cuts land at whitespace boundaries, found by greedily accumulating
// whitespace-delimited runs. A run that alone exceeds the budget is cut
// at the largest character position still within budget; a single rune
// estimating over the budget is the one case a piece can exceed it.
//
// When overlapTokens > 0, each whitespace-boundary piece restarts inside
// the previous piece's tail, re-emitting up to overlapTokens of trailing
// content. The restart backs off only as far as keeps the next run within
// budget, so every piece always covers new content. Raw character cuts
// never carry overlap: a fragment boundary mid-word is not a legitimate
// overlap source.
func hardWrap(content string, maxTokens, overlapTokens int, est Estimator) []string {
	var pieces []string
	n := len(content)
	i := 0
	for i < n {
		end, wordCut := wrapCut(content, i, maxTokens, est)
		pieces = append(pieces, content[i:end])
		if end >= n {
			break
		}
		if !wordCut {
			i = end
			continue
		}

		next := skipSpace(content, end)
		if next >= n {
			break
		}
		if overlapTokens > 0 {
			wordEnd := nextWordEnd(content, next)
			tail := tailSlice(content[i:end], overlapTokens, est)
			r := end - len(tail)
			// back off no further than keeps the next run in budget
			for r < end && est.Estimate(content[r:wordEnd]) > maxTokens {
				_, size := utf8.DecodeRuneInString(content[r:])
				r += size
			}
			if r < end {
				next = r
			}
		}
		i = next
	}
	return pieces
}

// wrapCut finds where the piece starting at i ends. It returns the byte
// offset one past the piece and whether the cut landed on a whitespace
// boundary (false for raw character cuts and for end of content).
func wrapCut(content string, i, maxTokens int, est Estimator) (int, bool) {
	n := len(content)
	if est.Estimate(content[i:]) <= maxTokens {
		return n, false
	}

	lastGood := -1
	pos := i
	for pos < n {
		wordEnd := nextWordEnd(content, pos)
		if wordEnd == pos {
			break // only whitespace remains
		}
		if est.Estimate(content[i:wordEnd]) > maxTokens {
			break
		}
		lastGood = wordEnd
		pos = wordEnd
	}
	if lastGood > i {
		return lastGood, true
	}

	// The first whitespace-delimited run alone exceeds the budget (a long
	// unbroken line or URL): raw cut at the token budget, one rune minimum.
	return rawCut(content, i, maxTokens, est), false
}

// nextWordEnd returns the offset one past the next whitespace-delimited
// run at or after pos, or pos itself when only whitespace remains
func nextWordEnd(content string, pos int) int {
	j := skipSpace(content, pos)
	if j >= len(content) {
		return pos
	}
	for j < len(content) {
		r, size := utf8.DecodeRuneInString(content[j:])
		if unicode.IsSpace(r) {
			return j
		}
		j += size
	}
	return j
}

// skipSpace returns the offset of the first non-whitespace rune at or
// after pos
func skipSpace(content string, pos int) int {
	for pos < len(content) {
		r, size := utf8.DecodeRuneInString(content[pos:])
		if !unicode.IsSpace(r) {
			return pos
		}
		pos += size
	}
	return pos
}

// rawCut returns the end of the largest prefix of content[i:] whose
// estimate fits maxTokens, taking at least one rune so splitting always
// makes progress
func rawCut(content string, i, maxTokens int, est Estimator) int {
	n := len(content)
	lo, hi := i, n
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if est.Estimate(content[i:mid]) <= maxTokens {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	end := lo
	for end > i && end < n && !utf8.RuneStart(content[end]) {
		end--
	}
	if end == i {
		_, size := utf8.DecodeRuneInString(content[i:])
		end = i + size
	}
	return end
}
