package note

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/halvard/minne/internal/log"
	"github.com/halvard/minne/internal/ollama"
)

type fakeTitleClient struct {
	reply   string
	chatErr error
}

func (f *fakeTitleClient) Embeddings(context.Context, string, string) ([]float32, error) {
	return nil, errors.New("not used")
}

func (f *fakeTitleClient) Chat(_ context.Context, _ string, messages []ollama.Message) (ollama.Message, error) {
	if f.chatErr != nil {
		return ollama.Message{}, f.chatErr
	}
	return ollama.Message{Role: "assistant", Content: f.reply}, nil
}

func titlePipeline(client ModelClient) *Pipeline {
	return NewPipeline(nil, nil, client, nil, 1, 0, log.NewNop())
}

func strptr(s string) *string { return &s }

func TestTitleForUsesModelReply(t *testing.T) {
	t.Parallel()

	p := titlePipeline(&fakeTitleClient{reply: "Trip Planning Notes"})
	got := p.titleFor(context.Background(), strptr("llama3"), "some note content")
	if got != "Trip Planning Notes" {
		t.Errorf("title = %q", got)
	}
}

func TestTitleForNormalizesModelReply(t *testing.T) {
	t.Parallel()

	p := titlePipeline(&fakeTitleClient{reply: `"Trip: Planning, Notes & More Words Here!"`})
	got := p.titleFor(context.Background(), strptr("llama3"), "content")

	words := strings.Fields(got)
	if len(words) < 2 || len(words) > 4 {
		t.Errorf("title %q should have 2-4 words", got)
	}
	if strings.ContainsAny(got, `":,&!`) {
		t.Errorf("title %q should have punctuation stripped", got)
	}
}

func TestTitleForFallsBackOnModelError(t *testing.T) {
	t.Parallel()

	p := titlePipeline(&fakeTitleClient{chatErr: errors.New("model not loaded")})
	got := p.titleFor(context.Background(), strptr("llama3"), "# Weekend Plans\n\ndetails")
	if got != "Weekend Plans" {
		t.Errorf("title = %q, want the heading fallback", got)
	}
}

func TestTitleForWithoutChatModel(t *testing.T) {
	t.Parallel()

	p := titlePipeline(&fakeTitleClient{reply: "should not be used"})
	got := p.titleFor(context.Background(), nil, "# Garden Layout\n\ndetails")
	if got != "Garden Layout" {
		t.Errorf("title = %q, want the heading fallback", got)
	}
}

func TestFallbackTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "heading", content: "# Recipe Ideas\n\nbody", want: "Recipe Ideas"},
		{name: "deep heading", content: "intro\n\n### Later Section Title\n\nbody", want: "Later Section Title"},
		{name: "first line", content: "shopping list for saturday\nmore", want: "shopping list for saturday"},
		{name: "no usable text", content: "???", want: "Personal Note"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := fallbackTitle(tt.content); got != tt.want {
				t.Errorf("fallbackTitle(%q) = %q, want %q", tt.content, got, tt.want)
			}
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "clean", raw: "Garden Layout", want: "Garden Layout"},
		{name: "too many words", raw: "one two three four five six", want: "one two three four"},
		{name: "single word padded", raw: "Groceries", want: "Groceries Note"},
		{name: "punctuation stripped", raw: `"Groceries!" (urgent)`, want: "Groceries urgent"},
		{name: "nothing usable", raw: "!!!", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := normalizeTitle(tt.raw); got != tt.want {
				t.Errorf("normalizeTitle(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
