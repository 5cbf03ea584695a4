package note

import (
	"context"
	"regexp"
	"strings"

	"github.com/halvard/minne/internal/ollama"
)

const titlePrompt = "Generate a concise, descriptive title of 2-4 words for the provided note. Reply with the title only."

var (
	headingLineRe  = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	nonTitleCharRe = regexp.MustCompile(`[^\w\s'-]`)
	spaceRunRe     = regexp.MustCompile(`\s+`)
)

// titleFor produces a title for the note content. When a chat model is
// configured it asks the model; any failure there falls back to a
// deterministic title derived from the content, so titling never fails a
// save.
func (p *Pipeline) titleFor(ctx context.Context, chatModel *string, content string) string {
	fallback := fallbackTitle(content)

	if chatModel == nil {
		return fallback
	}

	reply, err := p.client.Chat(ctx, *chatModel, []ollama.Message{
		{Role: "system", Content: titlePrompt},
		{Role: "user", Content: content},
	})
	if err != nil {
		p.logger.Warn("title generation failed, using fallback", "error", err)
		return fallback
	}

	if normalized := normalizeTitle(reply.Content); normalized != "" {
		return normalized
	}
	return fallback
}

// fallbackTitle derives a title from the first heading, or failing that the
// first non-empty line.
func fallbackTitle(content string) string {
	if m := headingLineRe.FindStringSubmatch(content); m != nil {
		if normalized := normalizeTitle(m[1]); normalized != "" {
			return normalized
		}
	}

	for line := range strings.Lines(content) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if normalized := normalizeTitle(line); normalized != "" {
			return normalized
		}
		break
	}

	return "Personal Note"
}

// normalizeTitle strips punctuation, collapses whitespace, and bounds the
// result to 2-4 words. Returns "" when nothing usable remains.
func normalizeTitle(raw string) string {
	sanitized := nonTitleCharRe.ReplaceAllString(raw, " ")
	sanitized = strings.TrimSpace(spaceRunRe.ReplaceAllString(sanitized, " "))
	if sanitized == "" {
		return ""
	}

	words := strings.Fields(sanitized)
	if len(words) > 4 {
		words = words[:4]
	}
	for len(words) < 2 {
		words = append(words, "Note")
	}
	return strings.Join(words, " ")
}
