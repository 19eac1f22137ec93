// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli tests run the real command tree against a temporary home
// directory and a fake chat service.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echochat/echo/internal/api"
	"github.com/echochat/echo/internal/config"
	"github.com/echochat/echo/internal/model"
	"github.com/echochat/echo/internal/session"
	"github.com/echochat/echo/internal/storage"
)

// =============================================================================
// HARNESS
// =============================================================================

type testEnv struct {
	home  string
	chats atomic.Int32
	url   string
}

// newEnv points echo at a temp home and a fake chat service that echoes
// the input back.
func newEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{home: t.TempDir()}

	mux := http.NewServeMux()
	mux.HandleFunc("/chat/", func(w http.ResponseWriter, r *http.Request) {
		e.chats.Add(1)
		var req api.ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(api.ChatResponse{Response: "you said: " + req.UserInput})
	})
	mux.HandleFunc("/generate-chat-title/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(api.TitleResponse{Title: "Small Talk"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	e.url = srv.URL

	for _, key := range []string{"ECHO_CONFIG", "ECHO_OFFLINE", "ECHO_PERSONALITY", "ECHO_DEVICE_STORE",
		"ECHO_DEVICE_PATH", "ECHO_REMOTE_DRIVER", "ECHO_REMOTE_DSN", "ECHO_JWT_SECRET",
		"ECHO_VOICE_COMMAND", "ECHO_LOG_FILE", "API_BASE", "NEXT_PUBLIC_API_BASE"} {
		t.Setenv(key, "")
	}
	t.Setenv("ECHO_HOME", e.home)
	t.Setenv("ECHO_API_BASE", srv.URL)
	t.Setenv("ECHO_LOG_LEVEL", "error")
	t.Setenv("NO_COLOR", "1")
	return e
}

// run executes one echo invocation and returns stdout, stderr and the exit code.
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, string, int) {
	t.Helper()
	root, o := newRoot(BuildInfo{Version: "test"})
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	code := run(context.Background(), root, o, args, &errOut)
	return out.String(), errOut.String(), code
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, code := e.run(t, "", args...)
	require.Equal(t, 0, code, "echo %v failed: %s", args, errOut)
	return out
}

func (e *testEnv) listChats(t *testing.T) []storage.ChatMeta {
	t.Helper()
	var metas []storage.ChatMeta
	require.NoError(t, json.Unmarshal([]byte(e.mustRun(t, "chats", "list", "--json")), &metas))
	return metas
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_PrintsReplyAndPersists(t *testing.T) {
	e := newEnv(t)

	out := e.mustRun(t, "ask", "hello", "there")
	assert.Equal(t, "you said: hello there\n", out)
	assert.EqualValues(t, 1, e.chats.Load())

	shown := e.mustRun(t, "chats", "show")
	assert.Contains(t, shown, model.GreetingText)
	assert.Contains(t, shown, "You: hello there")
	assert.Contains(t, shown, "Echo: you said: hello there")
}

func TestAsk_ReadsStdin(t *testing.T) {
	e := newEnv(t)

	out, _, code := e.run(t, "piped question\n", "ask")
	require.Equal(t, 0, code)
	assert.Equal(t, "you said: piped question\n", out)
}

func TestAsk_NothingToSend(t *testing.T) {
	e := newEnv(t)

	_, errOut, code := e.run(t, "  \n", "ask")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "nothing to send")
}

func TestAsk_OfflineShowsWarningOnce(t *testing.T) {
	e := newEnv(t)

	out, errOut, code := e.run(t, "", "--offline", "ask", "hi")
	assert.Equal(t, 1, code)
	assert.Equal(t, model.OfflineText+"\n", out)
	assert.Contains(t, errOut, ErrNotDelivered.Error())

	_, _, code = e.run(t, "", "--offline", "ask", "hi again")
	assert.Equal(t, 1, code)
	assert.Zero(t, e.chats.Load())

	shown := e.mustRun(t, "chats", "show")
	assert.Equal(t, 1, strings.Count(shown, model.OfflineText), "repeated offline errors are not duplicated")
}

func TestAsk_IdentityQuestionJSON(t *testing.T) {
	e := newEnv(t)

	var res askResult
	out := e.mustRun(t, "ask", "--json", "who are you?")
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, model.IdentityReply, res.Reply)
	assert.True(t, res.Canned)
	assert.Empty(t, res.Error)
	assert.Zero(t, e.chats.Load())
}

func TestAsk_NewAndChatFlags(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "ask", "first")
	e.mustRun(t, "ask", "--new", "second")

	metas := e.listChats(t)
	require.Len(t, metas, 2)
	assert.True(t, metas[0].Current)
	assert.Equal(t, 3, metas[0].MessageCount)

	e.mustRun(t, "ask", "--chat", "2", "third")
	metas = e.listChats(t)
	assert.Equal(t, 5, metas[1].MessageCount)
	assert.True(t, metas[0].Current, "--chat does not change the selection")

	_, errOut, code := e.run(t, "", "ask", "--chat", "9", "x")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "no chat number 9")
}

func TestAsk_AutoTitleAfterSecondMessage(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "ask", "one")
	e.mustRun(t, "ask", "two")

	metas := e.listChats(t)
	require.Len(t, metas, 1)
	assert.Equal(t, "Small Talk", metas[0].Name)
}

// =============================================================================
// CHATS AND MESSAGES
// =============================================================================

func TestChats_Lifecycle(t *testing.T) {
	e := newEnv(t)

	first := e.listChats(t)
	require.Len(t, first, 1)

	id := strings.TrimSpace(e.mustRun(t, "chats", "new"))
	metas := e.listChats(t)
	require.Len(t, metas, 2)
	assert.Equal(t, id, metas[0].ID)
	assert.True(t, metas[0].Current)

	assert.Contains(t, e.mustRun(t, "chats", "rename", "1", "Road", "Trip"), `"Road Trip"`)
	assert.Contains(t, e.mustRun(t, "chats", "switch", first[0].ID), "Switched to")
	metas = e.listChats(t)
	assert.Equal(t, "Road Trip", metas[0].Name)
	assert.True(t, metas[1].Current)

	assert.Contains(t, e.mustRun(t, "chats", "delete", id), `Deleted "Road Trip"`)
	assert.Len(t, e.listChats(t), 1)

	_, errOut, code := e.run(t, "", "chats", "rename", "1", " ")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, session.ErrEmptyName.Error())
}

func TestChats_DeleteLastCreatesFresh(t *testing.T) {
	e := newEnv(t)
	only := e.listChats(t)[0].ID

	e.mustRun(t, "chats", "delete", "1")
	metas := e.listChats(t)
	require.Len(t, metas, 1)
	assert.NotEqual(t, only, metas[0].ID)
	assert.True(t, metas[0].Current)
}

func TestChats_ListSearch(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "ask", "pancakes recipe")
	e.mustRun(t, "ask", "--new", "weather")

	out := e.mustRun(t, "chats", "list", "--search", "PANCAKES")
	assert.Contains(t, out, "pancakes")
	assert.NotContains(t, out, "weather")

	assert.Contains(t, e.mustRun(t, "chats", "list", "--search", "zzz"), "No chats found.")
}

func TestChats_Clear(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "ask", "hello")

	assert.Contains(t, e.mustRun(t, "chats", "clear"), "Chat cleared.")
	metas := e.listChats(t)
	assert.Equal(t, 1, metas[0].MessageCount)
}

func TestChats_Export(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "ask", "hello")
	dir := t.TempDir()

	path := strings.TrimSpace(e.mustRun(t, "chats", "export", "--json", "-o", dir))
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Equal(t, ".json", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "you said: hello")

	_, errOut, code := e.run(t, "", "chats", "export", "--format", "pdf")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "pdf")
}

func TestMessages_EditAndDelete(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "ask", "helo")

	assert.Contains(t, e.mustRun(t, "messages", "edit", "1", "2", "hello"), "Message updated.")
	shown := e.mustRun(t, "chats", "show")
	assert.Contains(t, shown, "You: hello")
	assert.NotContains(t, shown, "You: helo")

	assert.Contains(t, e.mustRun(t, "messages", "delete", "1", "3"), "Message deleted.")
	assert.Equal(t, 2, e.listChats(t)[0].MessageCount)

	_, errOut, code := e.run(t, "", "messages", "delete", "1", "7")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, session.ErrMessageNotFound.Error())

	_, errOut, code = e.run(t, "", "messages", "edit", "1", "1", "   ")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, session.ErrEmptyText.Error())
}

func TestResolveMessageRef(t *testing.T) {
	c := model.NewChat("guest-1")
	c.Append(model.NewUserMessage("hi"))

	id, err := resolveMessageRef(c, "2")
	require.NoError(t, err)
	assert.Equal(t, c.Messages[1].ID, id)

	id, err = resolveMessageRef(c, c.Messages[0].ID)
	require.NoError(t, err)
	assert.Equal(t, c.Messages[0].ID, id)

	for _, ref := range []string{"0", "3", "nope"} {
		_, err := resolveMessageRef(c, ref)
		assert.ErrorIs(t, err, session.ErrMessageNotFound, ref)
	}
}

// =============================================================================
// IDENTITY
// =============================================================================

func signedToken(t *testing.T, sub, name string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub, "name": name}).
		SignedString([]byte("not-checked"))
	require.NoError(t, err)
	return tok
}

func TestLoginMigratesGuestChatsAndLogoutReturnsToGuest(t *testing.T) {
	e := newEnv(t)
	t.Setenv("ECHO_REMOTE_DRIVER", "sqlite")
	t.Setenv("ECHO_REMOTE_DSN", filepath.Join(e.home, "remote.db"))

	e.mustRun(t, "ask", "remember me")
	e.mustRun(t, "chats", "new")
	assert.Len(t, e.listChats(t), 2)

	out := e.mustRun(t, "login", "--token", signedToken(t, "u-42", "Ada"))
	assert.Contains(t, out, "Signed in as Ada.")
	assert.NotContains(t, out, "No remote chat store")

	assert.Contains(t, e.mustRun(t, "whoami"), "Ada [u-42]")
	metas := e.listChats(t)
	require.Len(t, metas, 1, "only chats with user messages are migrated")
	assert.True(t, strings.HasPrefix(metas[0].ID, string(model.PrefixUser)))
	assert.Contains(t, e.mustRun(t, "chats", "show"), "You: remember me")

	assert.Contains(t, e.mustRun(t, "logout"), "Signed out.")
	assert.Contains(t, e.mustRun(t, "whoami"), "Guest")
	metas = e.listChats(t)
	require.Len(t, metas, 1)
	assert.Equal(t, 1, metas[0].MessageCount, "guest storage starts fresh after migration")

	assert.Contains(t, e.mustRun(t, "logout"), "Not signed in.")
}

func TestLogin_WithoutRemoteKeepsGuestStorage(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "ask", "stay local")

	out := e.mustRun(t, "login", "--token", signedToken(t, "u-1", "Bo"))
	assert.Contains(t, out, "No remote chat store is configured")
	assert.Contains(t, e.mustRun(t, "chats", "show"), "You: stay local")
	assert.Contains(t, e.mustRun(t, "whoami"), "stored on this device")
}

func TestLogin_RejectsBadTokens(t *testing.T) {
	e := newEnv(t)

	_, errOut, code := e.run(t, "", "login")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "token is required")

	_, errOut, code = e.run(t, "", "login", "--token", "garbage")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid session token")

	out, _, code := e.run(t, signedToken(t, "u-7", "Cy")+"\n", "login", "--token", "-")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Signed in as Cy.")
}

func TestDescribeIdentity(t *testing.T) {
	assert.Equal(t, "Guest (chats are stored on this device)", describeIdentity(model.Guest, true))
	assert.Equal(t, "Ada [u-1] (chats are stored in your account, backend remote)",
		describeIdentity(model.Identity{UserID: "u-1", DisplayName: "Ada"}, true))
	assert.Contains(t, describeIdentity(model.Identity{UserID: "u-1"}, false), "backend local")
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfig_InitPathShow(t *testing.T) {
	e := newEnv(t)
	want := filepath.Join(e.home, "config.toml")

	assert.Equal(t, want+"\n", e.mustRun(t, "config", "path"))
	assert.Contains(t, e.mustRun(t, "config", "init"), want)
	_, err := os.Stat(want)
	require.NoError(t, err)

	_, errOut, code := e.run(t, "", "config", "init")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "already exists")
	e.mustRun(t, "config", "init", "--force")

	shown := e.mustRun(t, "config", "show")
	assert.Contains(t, shown, "[api]")
	assert.Contains(t, shown, e.url)
}

func TestConfig_ShowMasksSecrets(t *testing.T) {
	e := newEnv(t)
	t.Setenv("ECHO_JWT_SECRET", "hunter2")

	shown := e.mustRun(t, "config", "show")
	assert.NotContains(t, shown, "hunter2")
}

func TestConfig_InitWorksWithMissingExplicitFile(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(e.home, "custom", "echo.toml")

	assert.Contains(t, e.mustRun(t, "--config", path, "config", "init"), path)
	_, err := config.Load(path)
	assert.NoError(t, err)

	_, errOut, code := e.run(t, "", "--config", filepath.Join(e.home, "missing.toml"), "chats", "list")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "missing.toml")
}

func TestBuildInfo_String(t *testing.T) {
	assert.Equal(t, "dev", BuildInfo{}.String())
	assert.Equal(t, "1.2.0", BuildInfo{Version: "1.2.0"}.String())
	assert.Equal(t, "1.2.0 (abc123, 2025-01-01)", BuildInfo{Version: "1.2.0", Commit: "abc123", Date: "2025-01-01"}.String())
}

// =============================================================================
// REPL
// =============================================================================

// scriptReader feeds fixed lines and records the suggestions it was given.
type scriptReader struct {
	lines       []string
	suggestions []string
	closed      bool
}

func (r *scriptReader) ReadInput(_, suggestion string) (string, error) {
	r.suggestions = append(r.suggestions, suggestion)
	if len(r.lines) == 0 {
		return "", io.EOF
	}
	line := r.lines[0]
	r.lines = r.lines[1:]
	return line, nil
}

func (r *scriptReader) Close() { r.closed = true }

type fixedVoice string

func (fixedVoice) Available() bool                          { return true }
func (v fixedVoice) Listen(context.Context) (string, error) { return string(v), nil }

func openTestApp(t *testing.T, e *testEnv) *App {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.WatchDevice = false
	a, err := OpenApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestREPL_SendsAndRunsCommands(t *testing.T) {
	e := newEnv(t)
	a := openTestApp(t, e)
	in := &scriptReader{lines: []string{"hello", "", "/rename Trip", "/new", "/bogus", "/quit", "never read"}}
	var out bytes.Buffer

	require.NoError(t, runREPL(context.Background(), a, in, &out))
	assert.True(t, in.closed)
	assert.Equal(t, []string{"never read"}, in.lines)

	text := out.String()
	assert.Contains(t, text, "Echo signed in as Guest, personality")
	assert.Contains(t, text, "Echo: "+model.GreetingText)
	assert.Contains(t, text, "Echo: you said: hello")
	assert.Contains(t, text, `Renamed chat to "Trip".`)
	assert.Contains(t, text, "Started a new chat.")
	assert.Contains(t, text, "Error: ")

	snap := a.Store.Snapshot()
	assert.Len(t, snap.Chats, 2)
	assert.Equal(t, model.DefaultChatName, snap.Current().Name)
}

func TestREPL_EndOfInputExits(t *testing.T) {
	e := newEnv(t)
	a := openTestApp(t, e)

	require.NoError(t, runREPL(context.Background(), a, &scriptReader{}, io.Discard))
}

func TestREPL_VoiceSuggestsTranscript(t *testing.T) {
	e := newEnv(t)
	a := openTestApp(t, e)
	a.Voice = fixedVoice("from the mic")
	in := &scriptReader{lines: []string{"/voice"}}

	require.NoError(t, runREPL(context.Background(), a, in, io.Discard))
	require.Len(t, in.suggestions, 2)
	assert.Equal(t, "from the mic", in.suggestions[1])
}

func TestREPL_VoiceUnsupported(t *testing.T) {
	e := newEnv(t)
	a := openTestApp(t, e)
	var out bytes.Buffer

	require.NoError(t, runREPL(context.Background(), a, &scriptReader{lines: []string{"/voice"}}, &out))
	assert.Contains(t, out.String(), "Voice input is not available")
}

func TestREPL_OfflineErrorPrinted(t *testing.T) {
	e := newEnv(t)
	a := openTestApp(t, e)
	a.Monitor.SetForced(true)
	var out bytes.Buffer

	require.NoError(t, runREPL(context.Background(), a, &scriptReader{lines: []string{"hi", "hi"}}, &out))
	assert.Equal(t, 1, strings.Count(out.String(), model.OfflineText))
	assert.Zero(t, e.chats.Load())
}

func TestREPL_LogoutAsGuest(t *testing.T) {
	e := newEnv(t)
	a := openTestApp(t, e)
	var out bytes.Buffer

	require.NoError(t, runREPL(context.Background(), a, &scriptReader{lines: []string{"/logout"}}, &out))
	assert.Contains(t, out.String(), "Not signed in.")
}
