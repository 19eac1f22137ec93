// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echochat/echo/internal/api"
	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/offline"
	"github.com/echochat/echo/internal/session"
	"github.com/echochat/echo/internal/storage"
	"github.com/echochat/echo/internal/storage/device"
)

// newSession opens a guest session over a real device file.
func newSession(t *testing.T) *session.Store {
	t.Helper()
	store, err := device.NewFileStore(filepath.Join(t.TempDir(), "device.json"))
	require.NoError(t, err)
	s := session.New(storage.NewBackends(store, nil, zerolog.Nop()), model.Guest)
	require.NoError(t, s.Open(context.Background()))
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

// chatService fakes the Echo HTTP service and counts calls per endpoint.
type chatService struct {
	*httptest.Server
	chats  atomic.Int32
	titles atomic.Int32
}

func newChatService(t *testing.T, chat http.HandlerFunc) *chatService {
	t.Helper()
	cs := &chatService{}
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/", func(w http.ResponseWriter, r *http.Request) {
		cs.chats.Add(1)
		chat(w, r)
	})
	mux.HandleFunc("/generate-chat-title/", func(w http.ResponseWriter, r *http.Request) {
		cs.titles.Add(1)
		json.NewEncoder(w).Encode(api.TitleResponse{Title: "Weekend Trip"})
	})
	cs.Server = httptest.NewServer(mux)
	t.Cleanup(cs.Close)
	return cs
}

func echoBack(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	json.NewDecoder(r.Body).Decode(&req)
	json.NewEncoder(w).Encode(api.ChatResponse{Response: "you said: " + req.UserInput})
}

func texts(c *model.Chat) []string {
	out := make([]string, len(c.Messages))
	for i, m := range c.Messages {
		out[i] = m.Text
	}
	return out
}

func currentChat(t *testing.T, s *session.Store) *model.Chat {
	t.Helper()
	c, err := s.Chat(s.CurrentID())
	require.NoError(t, err)
	return c
}

// =============================================================================
// SEND
// =============================================================================

func TestSend_EmptyInputChangesNothing(t *testing.T) {
	s := newSession(t)
	svc := newChatService(t, echoBack)
	d := New(s, api.New(svc.URL), offline.Static(true))
	before := currentChat(t, s)

	for _, input := range []string{"", "   ", "\n\t "} {
		_, err := d.Send(context.Background(), input)
		assert.ErrorIs(t, err, ErrEmptyInput)
	}
	assert.Equal(t, before, currentChat(t, s))
	assert.Zero(t, svc.chats.Load())
}

func TestSend_Success(t *testing.T) {
	s := newSession(t)
	svc := newChatService(t, echoBack)
	d := New(s, api.New(svc.URL), offline.Static(true))

	res, err := d.Send(context.Background(), "  hello  ")
	require.NoError(t, err)
	require.NotNil(t, res.Reply)
	assert.Equal(t, "you said: hello", res.Reply.Text)
	assert.False(t, res.Canned)

	c := currentChat(t, s)
	assert.Equal(t, []string{model.GreetingText, "hello", "you said: hello"}, texts(c))
	assert.Equal(t, model.SenderUser, c.Messages[1].Sender)
	assert.Equal(t, model.SenderEcho, c.Messages[2].Sender)
	assert.False(t, s.Snapshot().Typing[c.ID], "typing is cleared")
}

func TestSend_OfflineScenario(t *testing.T) {
	s := newSession(t)
	svc := newChatService(t, echoBack)
	d := New(s, api.New(svc.URL), offline.Static(false))

	res, err := d.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, model.ErrorOffline, res.Error)
	assert.True(t, res.ErrorShown)

	c := currentChat(t, s)
	require.Len(t, c.Messages, 3)
	assert.Equal(t, model.Message{ID: c.Messages[0].ID, Sender: model.SenderEcho, Text: model.GreetingText}, c.Messages[0])
	assert.Equal(t, model.SenderUser, c.Messages[1].Sender)
	assert.Equal(t, "hello", c.Messages[1].Text)
	assert.Equal(t, model.SenderEcho, c.Messages[2].Sender)
	assert.Equal(t, "⚠️ No internet connection. Please check your network.", c.Messages[2].Text)

	res, err = d.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.False(t, res.ErrorShown, "no second error while still offline")

	c = currentChat(t, s)
	assert.Equal(t, []string{model.GreetingText, "hello", model.OfflineText, "hello"}, texts(c))
	assert.Zero(t, svc.chats.Load())
	assert.False(t, s.Snapshot().Typing[c.ID])
}

func TestSend_IdentityQuestionMakesNoNetworkCall(t *testing.T) {
	s := newSession(t)
	svc := newChatService(t, echoBack)
	d := New(s, api.New(svc.URL), offline.Static(true))
	before := len(currentChat(t, s).Messages)

	res, err := d.Send(context.Background(), "who are you")
	require.NoError(t, err)
	assert.True(t, res.Canned)

	c := currentChat(t, s)
	require.Len(t, c.Messages, before+2)
	last := c.Messages[len(c.Messages)-1]
	assert.Equal(t, model.SenderEcho, last.Sender)
	assert.Equal(t, "I'm Echo! Your friendly AI best friend. 😊", last.Text)
	assert.Zero(t, svc.chats.Load())
}

func TestSend_QuestionsStartingLikeIdentityReachService(t *testing.T) {
	s := newSession(t)
	svc := newChatService(t, echoBack)
	d := New(s, api.New(svc.URL), offline.Static(true))

	res, err := d.Send(context.Background(), "what are you doing tonight?")
	require.NoError(t, err)
	assert.False(t, res.Canned)
	require.NotNil(t, res.Reply)
	assert.Equal(t, "you said: what are you doing tonight?", res.Reply.Text)
	assert.EqualValues(t, 1, svc.chats.Load())
}

func TestSend_Timeout(t *testing.T) {
	s := newSession(t)
	release := make(chan struct{})
	svc := newChatService(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	d := New(s, api.New(svc.URL), offline.Static(true), WithTimeout(50*time.Millisecond))

	res, err := d.Send(context.Background(), "are you there")
	require.NoError(t, err)
	assert.Equal(t, model.ErrorTimeout, res.Error)

	c := currentChat(t, s)
	assert.Equal(t, model.TimeoutText, c.Messages[len(c.Messages)-1].Text)
}

func TestSend_FailureAndDedupe(t *testing.T) {
	s := newSession(t)
	svc := newChatService(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	d := New(s, api.New(svc.URL), offline.Static(true))

	res, err := d.Send(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, model.ErrorFailure, res.Error)
	assert.True(t, res.ErrorShown)

	res, err = d.Send(context.Background(), "second")
	require.NoError(t, err)
	assert.False(t, res.ErrorShown)

	c := currentChat(t, s)
	assert.Equal(t, []string{model.GreetingText, "first", model.FailureText, "second"}, texts(c))
}

func TestSend_UnknownChat(t *testing.T) {
	s := newSession(t)
	d := New(s, api.New("http://127.0.0.1:1"), offline.Static(true))
	_, err := d.SendTo(context.Background(), "guest-0", "hi")
	assert.ErrorIs(t, err, session.ErrChatNotFound)
}

// =============================================================================
// AUTO TITLE
// =============================================================================

func TestAutoTitle_FiresOnce(t *testing.T) {
	s := newSession(t)
	svc := newChatService(t, echoBack)
	client := api.New(svc.URL)
	d := New(s, client, offline.Static(true), WithTitler(client))
	ctx := context.Background()

	_, err := d.Send(ctx, "plan a trip")
	require.NoError(t, err)
	d.Wait()
	assert.Zero(t, svc.titles.Load(), "one user message is not enough")

	_, err = d.Send(ctx, "to Lisbon")
	require.NoError(t, err)
	d.Wait()
	assert.Equal(t, int32(1), svc.titles.Load())
	assert.Equal(t, "Weekend Trip", currentChat(t, s).Name)

	require.NoError(t, s.RenameChat(s.CurrentID(), "My Trip"))
	_, err = d.Send(ctx, "in May")
	require.NoError(t, err)
	d.Wait()
	assert.Equal(t, int32(1), svc.titles.Load())
	assert.Equal(t, "My Trip", currentChat(t, s).Name)
}

// slowTitler waits for release, so a rename can land first.
type slowTitler struct {
	release chan struct{}
}

func (st slowTitler) GenerateTitle(ctx context.Context, _ []model.Message) (string, error) {
	select {
	case <-st.release:
		return "Generated", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestAutoTitle_UserRenameWins(t *testing.T) {
	s := newSession(t)
	svc := newChatService(t, echoBack)
	titler := slowTitler{release: make(chan struct{})}
	d := New(s, api.New(svc.URL), offline.Static(true), WithTitler(titler))
	ctx := context.Background()

	_, err := d.Send(ctx, "one")
	require.NoError(t, err)
	_, err = d.Send(ctx, "two")
	require.NoError(t, err)

	require.NoError(t, s.RenameChat(s.CurrentID(), "Renamed by user"))
	close(titler.release)
	d.Wait()

	assert.Equal(t, "Renamed by user", currentChat(t, s).Name)
}

func TestAutoTitle_NotOnFailedSend(t *testing.T) {
	s := newSession(t)
	titler := &countingTitler{}
	d := New(s, failingCompleter{}, offline.Static(true), WithTitler(titler))

	for _, msg := range []string{"one", "two"} {
		_, err := d.Send(context.Background(), msg)
		require.NoError(t, err)
	}
	d.Wait()
	assert.Zero(t, titler.calls.Load())
}

type countingTitler struct{ calls atomic.Int32 }

func (c *countingTitler) GenerateTitle(context.Context, []model.Message) (string, error) {
	c.calls.Add(1)
	return "t", nil
}

type failingCompleter struct{}

func (failingCompleter) Complete(context.Context, string, model.Personality) (string, error) {
	return "", errors.New("connection refused")
}

// =============================================================================
// CONCURRENCY
// =============================================================================

// trackingCompleter records the peak number of concurrent calls per chat.
type trackingCompleter struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	delay    time.Duration
}

func (tc *trackingCompleter) Complete(_ context.Context, input string, _ model.Personality) (string, error) {
	tc.mu.Lock()
	tc.inFlight++
	if tc.inFlight > tc.peak {
		tc.peak = tc.inFlight
	}
	tc.mu.Unlock()

	time.Sleep(tc.delay)

	tc.mu.Lock()
	tc.inFlight--
	tc.mu.Unlock()
	return "re: " + input, nil
}

func TestSend_SerializedPerChat(t *testing.T) {
	s := newSession(t)
	tc := &trackingCompleter{delay: 5 * time.Millisecond}
	d := New(s, tc, offline.Static(true))
	chatID := s.CurrentID()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := d.SendTo(context.Background(), chatID, string(rune('a'+i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, tc.peak, "one request in flight per chat")

	c := currentChat(t, s)
	require.Len(t, c.Messages, 1+16)
	for i := 1; i < len(c.Messages); i += 2 {
		assert.Equal(t, model.SenderUser, c.Messages[i].Sender)
		assert.Equal(t, "re: "+c.Messages[i].Text, c.Messages[i+1].Text, "each reply follows its own question")
	}
}

// barrierCompleter returns only once two calls are in flight at the same time.
type barrierCompleter struct {
	arrived chan struct{}
}

func (b barrierCompleter) Complete(ctx context.Context, input string, _ model.Personality) (string, error) {
	b.arrived <- struct{}{}
	select {
	case <-time.After(20 * time.Millisecond):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return "ok", nil
}

func TestSend_DifferentChatsRunInParallel(t *testing.T) {
	s := newSession(t)
	first := s.CurrentID()
	second, err := s.CreateChat()
	require.NoError(t, err)

	bc := barrierCompleter{arrived: make(chan struct{}, 2)}
	d := New(s, bc, offline.Static(true), WithTimeout(2*time.Second))

	var wg sync.WaitGroup
	for _, id := range []string{first, second} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := d.SendTo(context.Background(), id, "hi")
			assert.NoError(t, err)
		}(id)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-bc.arrived:
		case <-time.After(time.Second):
			t.Fatal("sends to different chats did not overlap")
		}
	}
	wg.Wait()
}

// =============================================================================
// IDENTITY QUESTIONS
// =============================================================================

func TestIsIdentityQuestion(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"who are you", true},
		{"Who are you?", true},
		{"hey, WHO ARE YOU!!", true},
		{"What's your name?", true},
		{"what is your name", true},
		{"Tell me about yourself.", true},
		{"who are your friends", false},
		{"what are you", true},
		{"Hey Echo, who are you really?", true},
		{"what are you exactly", true},
		{"what are you doing tonight?", false},
		{"what are you up to", false},
		{"who are you going to vote for", false},
		{"hey", false},
		{"how are you", false},
		{"I know who you are", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, IsIdentityQuestion(tt.text))
		})
	}
}

func TestKeyedMutex_ForgetsKeys(t *testing.T) {
	var k keyedMutex
	unlock := k.lock("a")
	unlock()
	assert.Empty(t, k.locks)
}
