package chat

import (
	"iter"

	"github.com/halvard/minne/internal/ollama"
	"github.com/halvard/minne/internal/retrieval"
)

// EventType discriminates the events in a chat answer stream.
type EventType string

const (
	// EventReferences carries the ranked note references. It is always the
	// first event of a stream, even when no notes matched.
	EventReferences EventType = "references"
	// EventData carries one fragment of the model's answer text.
	EventData EventType = "data"
	// EventError reports a failure that occurred after streaming began. It
	// terminates the stream.
	EventError EventType = "error"
)

// Event is one element of a chat answer stream.
type Event struct {
	Type       EventType                 `json:"type"`
	References []retrieval.NoteReference `json:"references,omitempty"`
	Data       string                    `json:"data,omitempty"`
	Error      string                    `json:"error,omitempty"`
}

// Compose merges the retrieval references and the model's token stream into
// one event sequence. The references event is emitted first, then one data
// event per non-empty fragment. An upstream error surfaces as a terminal
// error event rather than aborting silently; a consumer that stops ranging
// early tears the upstream iterator down with it.
func Compose(refs []retrieval.NoteReference, upstream iter.Seq2[ollama.ChatFragment, error]) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if refs == nil {
			refs = []retrieval.NoteReference{}
		}
		if !yield(Event{Type: EventReferences, References: refs}) {
			return
		}

		for fragment, err := range upstream {
			if err != nil {
				yield(Event{Type: EventError, Error: err.Error()})
				return
			}
			if fragment.Message.Content == "" {
				continue
			}
			if !yield(Event{Type: EventData, Data: fragment.Message.Content}) {
				return
			}
		}
	}
}
