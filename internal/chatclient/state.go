// Package chatclient implements the client side of the chat protocol:
// an explicit state machine with optimistic local updates, incremental
// stream reconciliation, and rollback on failure.
package chatclient

import "time"

// Phase is the client state machine's current state.
type Phase int

const (
	// PhaseIdle: no in-flight request; the local list mirrors the last
	// fetched server state.
	PhaseIdle Phase = iota
	// PhaseOptimisticPending: a submission was appended locally as if
	// already confirmed; the request is in flight.
	PhaseOptimisticPending
	// PhaseStreaming: response accepted, body being consumed chunk by
	// chunk.
	PhaseStreaming
	// PhaseSettled: stream exhausted or the request failed; awaiting a
	// refetch of server truth.
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseOptimisticPending:
		return "optimistic-pending"
	case PhaseStreaming:
		return "streaming"
	case PhaseSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// PlaceholderID marks the locally-synthesized assistant message whose
// text is replaced, not appended, on every chunk.
const PlaceholderID = "ai-response"

// DisplayMessage is one entry of the rendered message list.
type DisplayMessage struct {
	ID            string
	Text          string
	IsUserMessage bool
	CreatedAt     time.Time
}

// ChatState is the full client state. Values are treated as immutable:
// Reduce returns a new state and never mutates its input's slices.
type ChatState struct {
	Phase       Phase
	Messages    []DisplayMessage // newest first
	InputText   string
	BackupText  string // submitted text retained for rollback
	Accumulated string // running assistant response

	snapshot []DisplayMessage // pre-submit list for rollback
}

// Event is a state machine input. The set is closed.
type Event interface{ isChatEvent() }

// SetInput replaces the input field contents.
type SetInput struct{ Text string }

// Submit turns the current input into an optimistic user message. The
// caller supplies identity and timestamp so Reduce stays pure.
type Submit struct {
	MessageID string
	At        time.Time
}

// ResponseOK: the transport accepted the request; streaming begins.
type ResponseOK struct{}

// Chunk is one decoded piece of the response stream.
type Chunk struct {
	Delta string
	At    time.Time
}

// StreamEnd: the body is exhausted.
type StreamEnd struct{}

// RequestFailed: the submission was rejected before any stream arrived.
type RequestFailed struct{}

// RefetchComplete replaces the local list with server truth.
type RefetchComplete struct{ Messages []DisplayMessage }

func (SetInput) isChatEvent()        {}
func (Submit) isChatEvent()          {}
func (ResponseOK) isChatEvent()      {}
func (Chunk) isChatEvent()           {}
func (StreamEnd) isChatEvent()       {}
func (RequestFailed) isChatEvent()   {}
func (RefetchComplete) isChatEvent() {}

// Reduce applies one event to the state. Events that are invalid in the
// current phase are ignored: the input affordance is disabled while a
// response is outstanding, so a stray Submit must not corrupt state.
func Reduce(s ChatState, ev Event) ChatState {
	switch ev := ev.(type) {
	case SetInput:
		s.InputText = ev.Text
		return s

	case Submit:
		if s.Phase != PhaseIdle || s.InputText == "" {
			return s
		}
		s.snapshot = s.Messages
		s.BackupText = s.InputText
		s.Messages = prepend(s.Messages, DisplayMessage{
			ID:            ev.MessageID,
			Text:          s.InputText,
			IsUserMessage: true,
			CreatedAt:     ev.At,
		})
		s.InputText = ""
		s.Accumulated = ""
		s.Phase = PhaseOptimisticPending
		return s

	case ResponseOK:
		if s.Phase != PhaseOptimisticPending {
			return s
		}
		s.Phase = PhaseStreaming
		return s

	case Chunk:
		if s.Phase != PhaseStreaming {
			return s
		}
		s.Accumulated += ev.Delta
		s.Messages = upsertPlaceholder(s.Messages, s.Accumulated, ev.At)
		return s

	case StreamEnd:
		if s.Phase != PhaseStreaming {
			return s
		}
		s.Phase = PhaseSettled
		return s

	case RequestFailed:
		switch s.Phase {
		case PhaseOptimisticPending:
			// Rollback: discard the optimistic message and give the
			// user their text back.
			s.Messages = s.snapshot
			s.InputText = s.BackupText
			s.Phase = PhaseSettled
		case PhaseStreaming:
			// Emitted output stands; the refetch reconciles.
			s.Phase = PhaseSettled
		}
		return s

	case RefetchComplete:
		if s.Phase != PhaseSettled {
			return s
		}
		s.Messages = ev.Messages
		s.snapshot = nil
		s.BackupText = ""
		s.Phase = PhaseIdle
		return s
	}

	return s
}

func prepend(messages []DisplayMessage, msg DisplayMessage) []DisplayMessage {
	out := make([]DisplayMessage, 0, len(messages)+1)
	out = append(out, msg)
	return append(out, messages...)
}

// upsertPlaceholder replaces the sentinel assistant message's text, or
// inserts it at the head on the first chunk.
func upsertPlaceholder(messages []DisplayMessage, text string, at time.Time) []DisplayMessage {
	out := make([]DisplayMessage, len(messages))
	copy(out, messages)

	for i := range out {
		if out[i].ID == PlaceholderID {
			out[i].Text = text
			return out
		}
	}
	return prepend(out, DisplayMessage{
		ID:        PlaceholderID,
		Text:      text,
		CreatedAt: at,
	})
}
