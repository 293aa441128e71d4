package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pdf-chat-saas/models"
)

// ErrRequestInFlight is returned by Submit while a previous submission
// has not settled. One request at a time.
var ErrRequestInFlight = errors.New("chatclient: a request is already in flight")

// ErrEmptyInput is returned by Submit when the input holds no text.
var ErrEmptyInput = errors.New("chatclient: input is empty")

const streamReadSize = 512

// Session drives the chat state machine over HTTP for one file. All
// state transitions go through Reduce; the session owns the transport,
// the reducer owns the semantics.
type Session struct {
	baseURL    string
	token      string
	fileID     string
	httpClient *http.Client
	pageLimit  int

	mu       sync.Mutex
	state    ChatState
	onChange func(ChatState)
}

// NewSession creates a session for fileID against baseURL, authorized
// with a bearer token. A nil client falls back to a default with a
// conservative timeout on the refetch path; the streaming request
// itself is bounded only by the caller's context.
func NewSession(baseURL, token, fileID string, client *http.Client) *Session {
	if client == nil {
		client = &http.Client{}
	}
	return &Session{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		fileID:     fileID,
		httpClient: client,
		pageLimit:  10,
		state:      ChatState{Phase: PhaseIdle},
	}
}

// OnChange registers an observer invoked after every state transition
// with a copy of the new state. Must be set before the session is used.
func (s *Session) OnChange(fn func(ChatState)) { s.onChange = fn }

// State returns a copy of the current state.
func (s *Session) State() ChatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetInput updates the input field.
func (s *Session) SetInput(text string) {
	s.apply(SetInput{Text: text})
}

func (s *Session) apply(ev Event) ChatState {
	s.mu.Lock()
	s.state = Reduce(s.state, ev)
	next := s.state
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(next)
	}
	return next
}

// Submit sends the current input and consumes the response stream to
// completion. It returns ErrRequestInFlight if a submission is already
// outstanding and a transport or server error if the request was
// rejected; a stream that breaks mid-way is not an error, the partial
// response stands and the refetch reconciles. There is no cancellation
// of an accepted stream short of the caller's context expiring.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Phase != PhaseIdle {
		s.mu.Unlock()
		return ErrRequestInFlight
	}
	text := s.state.InputText
	if strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return ErrEmptyInput
	}
	s.state = Reduce(s.state, Submit{MessageID: uuid.NewString(), At: time.Now().UTC()})
	next := s.state
	s.mu.Unlock()
	if s.onChange != nil {
		s.onChange(next)
	}

	body, err := json.Marshal(models.SendMessageRequest{FileID: s.fileID, Message: text})
	if err != nil {
		s.fail(ctx)
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/message", bytes.NewReader(body))
	if err != nil {
		s.fail(ctx)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.fail(ctx)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		s.fail(ctx)
		return fmt.Errorf("chatclient: send message: unexpected status %d", resp.StatusCode)
	}

	s.apply(ResponseOK{})
	s.consume(resp.Body)
	s.apply(StreamEnd{})

	return s.refetch(ctx)
}

// consume reads the body incrementally, applying each read as a chunk.
// A read error after acceptance is swallowed: whatever arrived stands.
func (s *Session) consume(body io.Reader) {
	buf := make([]byte, streamReadSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			s.apply(Chunk{Delta: string(buf[:n]), At: time.Now().UTC()})
		}
		if err != nil {
			return
		}
	}
}

// fail rolls the optimistic state back, then still refetches so the
// local list converges on whatever the server managed to persist.
func (s *Session) fail(ctx context.Context) {
	s.apply(RequestFailed{})
	s.refetch(ctx)
}

// refetch pulls the first page of server history and settles back to
// idle. If the fetch itself fails the local list is kept as-is so the
// session stays usable.
func (s *Session) refetch(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/files/%s/messages?limit=%d", s.baseURL, s.fileID, s.pageLimit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		s.settleInPlace()
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.settleInPlace()
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		s.settleInPlace()
		return fmt.Errorf("chatclient: fetch messages: unexpected status %d", resp.StatusCode)
	}

	var page models.MessagePage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		s.settleInPlace()
		return err
	}

	display := make([]DisplayMessage, 0, len(page.Messages))
	for _, m := range page.Messages {
		display = append(display, DisplayMessage{
			ID:            m.ID,
			Text:          m.Text,
			IsUserMessage: m.IsUserMessage,
			CreatedAt:     m.CreatedAt,
		})
	}
	s.apply(RefetchComplete{Messages: display})
	return nil
}

// settleInPlace returns to idle with the local list untouched.
func (s *Session) settleInPlace() {
	s.mu.Lock()
	if s.state.Phase == PhaseSettled {
		s.state.Phase = PhaseIdle
		s.state.snapshot = nil
		s.state.BackupText = ""
	}
	next := s.state
	s.mu.Unlock()
	if s.onChange != nil {
		s.onChange(next)
	}
}
