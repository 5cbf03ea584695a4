package note

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/halvard/minne/internal/chunk"
	"github.com/halvard/minne/internal/log"
	"github.com/halvard/minne/internal/ollama"
)

// fakeEmbedClient returns a vector encoding the prompt so tests can verify
// result placement, and can inject failures and delays.
type fakeEmbedClient struct {
	mu        sync.Mutex
	delay     time.Duration
	failOn    string
	inFlight  atomic.Int32
	maxSeen   atomic.Int32
	callCount atomic.Int32
}

func (f *fakeEmbedClient) Embeddings(ctx context.Context, _ string, prompt string) ([]float32, error) {
	f.callCount.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxSeen.Load()
		if cur <= max || f.maxSeen.CompareAndSwap(max, cur) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	failOn := f.failOn
	f.mu.Unlock()
	if failOn != "" && strings.Contains(prompt, failOn) {
		return nil, errors.New("embedding failed")
	}

	// Encode the chunk number so the test can check slot placement.
	var n float32
	if i := strings.LastIndex(prompt, "#"); i >= 0 {
		v, _ := strconv.Atoi(prompt[i+1:])
		n = float32(v)
	}
	return []float32{n}, nil
}

func (f *fakeEmbedClient) Chat(context.Context, string, []ollama.Message) (ollama.Message, error) {
	return ollama.Message{}, errors.New("not used")
}

func numberedChunks(n int) []chunk.Chunk {
	pieces := make([]chunk.Chunk, n)
	for i := range pieces {
		pieces[i] = chunk.Chunk{Index: i, Content: fmt.Sprintf("chunk text #%d", i)}
	}
	return pieces
}

func TestEmbedChunksPreservesOrder(t *testing.T) {
	t.Parallel()

	client := &fakeEmbedClient{delay: time.Millisecond}
	p := NewPipeline(nil, nil, client, nil, 4, 0, log.NewNop())

	embedded, err := p.embedChunks(context.Background(), "m", numberedChunks(12))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(embedded) != 12 {
		t.Fatalf("got %d embedded chunks, want 12", len(embedded))
	}
	for i, e := range embedded {
		if e.Index != i {
			t.Errorf("slot %d holds chunk index %d", i, e.Index)
		}
		if len(e.Vector) != 1 || e.Vector[0] != float32(i) {
			t.Errorf("slot %d holds the vector for chunk %v", i, e.Vector)
		}
		if e.ID == uuid.Nil {
			t.Errorf("slot %d has no id", i)
		}
	}
}

func TestEmbedChunksBoundsConcurrency(t *testing.T) {
	t.Parallel()

	client := &fakeEmbedClient{delay: 5 * time.Millisecond}
	p := NewPipeline(nil, nil, client, nil, 3, 0, log.NewNop())

	if _, err := p.embedChunks(context.Background(), "m", numberedChunks(20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if max := client.maxSeen.Load(); max > 3 {
		t.Errorf("observed %d concurrent embedding calls, limit is 3", max)
	}
}

func TestEmbedChunksRejectsWrongDimension(t *testing.T) {
	t.Parallel()

	// The fake produces 1-dimensional vectors; the pipeline expects 768.
	client := &fakeEmbedClient{}
	p := NewPipeline(nil, nil, client, nil, 4, 768, log.NewNop())

	_, err := p.embedChunks(context.Background(), "m", numberedChunks(3))
	if err == nil {
		t.Fatal("expected mismatched vectors to abort the batch")
	}
	if !strings.Contains(err.Error(), "want 768") {
		t.Errorf("error should name the expected dimension, got %v", err)
	}
}

func TestEmbedChunksFailureAbortsBatch(t *testing.T) {
	t.Parallel()

	client := &fakeEmbedClient{failOn: "#7"}
	p := NewPipeline(nil, nil, client, nil, 4, 0, log.NewNop())

	_, err := p.embedChunks(context.Background(), "m", numberedChunks(10))
	if err == nil {
		t.Fatal("expected the failing chunk to abort the batch")
	}
	if !strings.Contains(err.Error(), "chunk 7") {
		t.Errorf("error should name the failing chunk, got %v", err)
	}
}
