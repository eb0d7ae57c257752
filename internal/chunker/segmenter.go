package chunker

import (
	"strings"

	"github.com/corpusloom/corpusloom/pkg/types"
)

// fenceState tracks whether the line scan is inside a fenced code region
type fenceState int

const (
	outsideFence fenceState = iota
	insideFence
)

// minFenceLen is the shortest backtick run that opens a fence
const minFenceLen = 3

// Normalize converts Windows and legacy Mac line endings to plain newlines.
// Block offsets refer to the normalized text.
func Normalize(text string) string {
	if !strings.ContainsRune(text, '\r') {
		return text
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}

// Segment splits normalized document text into an ordered sequence of typed
// blocks: fenced code regions and prose paragraphs.
//
// The scan is a line state machine. A line opening with a run of three or
// more backticks (an info string may follow) enters a fence; the fence
// closes on a line consisting solely of a same-or-longer backtick run.
// Unterminated fences run to the end of the document. Outside fences,
// paragraphs break on blank lines and before markdown headings.
//
// Empty and whitespace-only documents yield no blocks. Re-running Segment
// on the same input always yields the identical block sequence.
func Segment(text string, est Estimator) []types.Block {
	t := Normalize(text)
	if strings.TrimSpace(t) == "" {
		return nil
	}
	if est == nil {
		est = Heuristic()
	}

	var blocks []types.Block

	state := outsideFence
	fenceLen := 0  // backtick run length of the open fence
	fenceAt := 0   // offset of the opening fence line
	paraAt := -1   // offset of the current paragraph's first line, -1 when none
	paraEnd := 0   // offset just past the current paragraph's last line

	emit := func(kind types.BlockKind, start, end int) {
		content := t[start:end]
		blocks = append(blocks, types.Block{
			Kind:          kind,
			Content:       content,
			StartOffset:   start,
			EndOffset:     end,
			TokenEstimate: est.Estimate(content),
		})
	}
	flushPara := func() {
		if paraAt >= 0 {
			emit(types.BlockText, paraAt, paraEnd)
			paraAt = -1
		}
	}

	pos := 0
	for pos <= len(t) {
		lineEnd := len(t)
		if i := strings.IndexByte(t[pos:], '\n'); i >= 0 {
			lineEnd = pos + i
		}
		line := t[pos:lineEnd]

		switch state {
		case insideFence:
			if closingFenceLen(line) >= fenceLen {
				emit(types.BlockCode, fenceAt, lineEnd)
				state = outsideFence
			}
		case outsideFence:
			switch {
			case isBlank(line):
				flushPara()
			case openingFenceLen(line) >= minFenceLen:
				flushPara()
				state = insideFence
				fenceLen = openingFenceLen(line)
				fenceAt = pos
			case isHeading(line):
				flushPara()
				paraAt = pos
				paraEnd = lineEnd
			default:
				if paraAt < 0 {
					paraAt = pos
				}
				paraEnd = lineEnd
			}
		}

		pos = lineEnd + 1
	}

	if state == insideFence {
		// unterminated fence runs to end of document
		end := len(strings.TrimRight(t, "\n"))
		if end > fenceAt {
			emit(types.BlockCode, fenceAt, end)
		}
	}
	flushPara()

	return blocks
}

// isBlank reports whether the line contains only whitespace
func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

// openingFenceLen returns the length of the backtick run opening a fence,
// or 0 when the line opens none. Leading spaces are allowed and an info
// string may follow the run, as long as it contains no further backticks.
func openingFenceLen(line string) int {
	s := strings.TrimLeft(line, " \t")
	n := 0
	for n < len(s) && s[n] == '`' {
		n++
	}
	if n < minFenceLen {
		return 0
	}
	if strings.ContainsRune(s[n:], '`') {
		return 0
	}
	return n
}

// closingFenceLen returns the length of the backtick run when the line
// consists solely of one (surrounding whitespace allowed), or 0 otherwise.
func closingFenceLen(line string) int {
	s := strings.TrimSpace(line)
	if s == "" {
		return 0
	}
	for i := 0; i < len(s); i++ {
		if s[i] != '`' {
			return 0
		}
	}
	return len(s)
}

// isHeading reports whether the line is a markdown heading (1-6 hashes
// followed by whitespace and text). Headings start a new paragraph even
// without a preceding blank line.
func isHeading(line string) bool {
	s := strings.TrimLeft(line, " \t")
	n := 0
	for n < len(s) && s[n] == '#' {
		n++
	}
	if n < 1 || n > 6 || n == len(s) {
		return false
	}
	if s[n] != ' ' && s[n] != '\t' {
		return false
	}
	return strings.TrimSpace(s[n+1:]) != ""
}
