// Package chunk splits markdown note content into bounded, semantically
// coherent segments for embedding.
//
// Splitting rules:
//   - Markdown ATX headings (#..###### followed by whitespace) are hard
//     section breaks; every section begins with its own heading line.
//   - Fenced code blocks are atomic and never split internally.
//   - Sections longer than the maximum chunk size are cut with a sliding
//     window that prefers natural break points (blank lines, newlines,
//     sentence ends, heading markers) at or past the window midpoint.
//   - Consecutive chunks from the same section overlap by a configured
//     number of characters.
//
// All offsets are rune positions into the normalized (CRLF-folded, trimmed)
// content.
package chunk

import (
	"regexp"
	"strings"
	"unicode"
)

// Chunk is one bounded segment of a note.
type Chunk struct {
	// Index is the zero-based position of the chunk within the note.
	Index int

	// Section is the text of the nearest preceding heading, without the
	// leading # markers. Empty for content before the first heading.
	Section string

	// Start and End are rune offsets of the (trimmed) chunk into the
	// normalized note content; End is exclusive.
	Start int
	End   int

	// Content is the trimmed chunk text.
	Content string
}

// Splitter splits note content with a fixed size budget and overlap.
type Splitter struct {
	maxSize int
	overlap int
}

var headingRe = regexp.MustCompile(`^#{1,6}\s`)

// NewSplitter creates a Splitter. The overlap is clamped to half the maximum
// chunk size so the window always makes progress.
func NewSplitter(maxSize, overlap int) *Splitter {
	if maxSize < 1 {
		maxSize = 1
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap > maxSize/2 {
		overlap = maxSize / 2
	}
	return &Splitter{maxSize: maxSize, overlap: overlap}
}

// Split returns the ordered chunk sequence for content. Empty or
// whitespace-only input yields no chunks; callers saving a non-empty note
// must treat that case as "embed the whole note as one chunk".
func (s *Splitter) Split(content string) []Chunk {
	normalized := strings.TrimSpace(strings.ReplaceAll(content, "\r\n", "\n"))
	if normalized == "" {
		return nil
	}

	text := []rune(normalized)
	var chunks []Chunk
	for _, sec := range parseSections(text) {
		chunks = s.appendSection(chunks, text, sec)
	}

	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks
}

// span is a half-open rune range.
type span struct {
	start, end int
}

// section is a heading-delimited region with the fenced code spans inside it.
type section struct {
	label  string
	span   span
	fences []span
}

// parseSections walks the normalized text line by line, breaking at headings
// and recording fenced code block extents. Headings inside a fence do not
// break sections.
func parseSections(text []rune) []section {
	var sections []section
	cur := section{span: span{start: 0}}
	started := false

	inFence := false
	fenceStart := 0

	lineStart := 0
	for lineStart <= len(text) {
		lineEnd := lineStart
		for lineEnd < len(text) && text[lineEnd] != '\n' {
			lineEnd++
		}
		line := string(text[lineStart:lineEnd])
		trimmed := strings.TrimLeft(line, " \t")

		switch {
		case strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~"):
			if inFence {
				cur.fences = append(cur.fences, span{start: fenceStart, end: lineEnd})
				inFence = false
			} else {
				inFence = true
				fenceStart = lineStart
			}

		case !inFence && headingRe.MatchString(line):
			if started {
				cur.span.end = lineStart
				sections = append(sections, cur)
			}
			cur = section{
				label: headingLabel(line),
				span:  span{start: lineStart},
			}
		}
		if !started && len(strings.TrimSpace(line)) > 0 {
			started = true
		}

		if lineEnd >= len(text) {
			break
		}
		lineStart = lineEnd + 1
	}

	// An unclosed fence runs to the end of the text.
	if inFence {
		cur.fences = append(cur.fences, span{start: fenceStart, end: len(text)})
	}
	cur.span.end = len(text)
	sections = append(sections, cur)
	return sections
}

// headingLabel strips the leading # markers from a heading line.
func headingLabel(line string) string {
	return strings.TrimSpace(strings.TrimLeft(line, "#"))
}

// appendSection emits the chunks for one section. A section that fits in a
// single window becomes exactly one chunk with no overlap applied.
func (s *Splitter) appendSection(chunks []Chunk, text []rune, sec section) []Chunk {
	if sec.span.end-sec.span.start <= s.maxSize {
		return appendTrimmed(chunks, text, sec.label, sec.span.start, sec.span.end)
	}

	// Decompose into splittable text runs and atomic code runs.
	pos := sec.span.start
	for _, fence := range sec.fences {
		if fence.start > pos {
			chunks = s.appendWindowed(chunks, text, sec.label, pos, fence.start)
		}
		// A code block is emitted whole even when it exceeds the budget.
		chunks = appendTrimmed(chunks, text, sec.label, fence.start, fence.end)
		pos = fence.end
	}
	if pos < sec.span.end {
		chunks = s.appendWindowed(chunks, text, sec.label, pos, sec.span.end)
	}
	return chunks
}

// appendWindowed performs the sliding-window split over a splittable run.
func (s *Splitter) appendWindowed(chunks []Chunk, text []rune, label string, start, end int) []Chunk {
	for start < end {
		winEnd := start + s.maxSize
		if winEnd > end {
			winEnd = end
		}

		cut := winEnd
		if winEnd < end {
			if candidate := breakCandidate(text, start, winEnd); candidate > 0 {
				cut = candidate
			}
		}

		chunks = appendTrimmed(chunks, text, label, start, cut)

		if cut >= end {
			break
		}
		next := cut - s.overlap
		if next <= start {
			// Forward progress even when overlap >= chunk size.
			next = start + 1
		}
		start = next
	}
	return chunks
}

// breakCandidate returns the latest natural break position at or past the
// midpoint of the window [start, winEnd), or 0 when none exists. Candidates
// are blank lines, newlines, sentence-ending punctuation followed by a space,
// and heading markers.
func breakCandidate(text []rune, start, winEnd int) int {
	half := start + (winEnd-start)/2
	best := 0
	for _, pat := range []string{"\n\n", "\n#", "\n", ". ", "! ", "? "} {
		if idx := lastIndexWithin(text, start, winEnd, []rune(pat)); idx >= 0 {
			// Cut after the first rune of the pattern: past the newline
			// or the punctuation, before what follows.
			candidate := idx + 1
			if candidate >= half && candidate < winEnd && candidate > best {
				best = candidate
			}
		}
	}
	return best
}

// lastIndexWithin finds the last occurrence of pat fully inside
// text[start:end), returning its absolute rune index or -1.
func lastIndexWithin(text []rune, start, end int, pat []rune) int {
	for i := end - len(pat); i >= start; i-- {
		match := true
		for j := range pat {
			if text[i+j] != pat[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// appendTrimmed appends the chunk for [start, end) with surrounding
// whitespace stripped from both the text and the offsets. Chunks that trim
// to nothing are dropped.
func appendTrimmed(chunks []Chunk, text []rune, label string, start, end int) []Chunk {
	for start < end && unicode.IsSpace(text[start]) {
		start++
	}
	for end > start && unicode.IsSpace(text[end-1]) {
		end--
	}
	if start >= end {
		return chunks
	}
	return append(chunks, Chunk{
		Section: label,
		Start:   start,
		End:     end,
		Content: string(text[start:end]),
	})
}
