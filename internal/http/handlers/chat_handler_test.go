package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/persona-chat-backend/internal/domain"
	"github.com/tbourn/persona-chat-backend/internal/services"
)

type chatFixture struct {
	*testEnv
	tok, other string
	char       *domain.Character
	conv       *domain.Conversation
}

func newChatFixture(t *testing.T) chatFixture {
	t.Helper()
	e := newEnv(t, Options{})
	_, tok := e.user(t, "watson")
	_, other := e.user(t, "lestrade")
	ch := newCharacter(t, e, tok, CharacterRequest{Name: strp("Sherlock"), Description: strp("Detective"), AvatarURL: strp("https://img/s.png")}).Character
	conv := newConversation(t, e, tok, ch.ID, "").Conversation
	return chatFixture{testEnv: e, tok: tok, other: other, char: ch, conv: conv}
}

func (f chatFixture) send(t *testing.T, msg string, header map[string]string) *services.SendResult {
	t.Helper()
	w := f.do(t, call{method: http.MethodPost, path: "/api/chat/send", token: f.tok, header: header,
		body: SendMessageRequest{ConversationID: f.conv.ID, Message: msg}})
	if w.Code != http.StatusCreated && w.Code != http.StatusOK {
		t.Fatalf("send status=%d body=%s", w.Code, w.Body.String())
	}
	res := decode[services.SendResult](t, w)
	return &res
}

func TestSendMessage(t *testing.T) {
	f := newChatFixture(t)

	w := f.do(t, call{method: http.MethodPost, path: "/api/chat/send", token: f.tok,
		body: SendMessageRequest{ConversationID: f.conv.ID, Message: "  hi  "}})
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get(HeaderIdempotentReplay) != "" {
		t.Fatal("fresh send marked as replay")
	}
	res := decode[services.SendResult](t, w)
	if res.UserMessage.Content != "hi" || res.UserMessage.Role != domain.RoleUser {
		t.Fatalf("user message=%+v", res.UserMessage)
	}
	meta := res.AssistantMessage.Meta()
	if res.AssistantMessage.Content != "Sherlock says reply #1" || meta.CharacterID != f.char.ID || meta.Provider != "openai" {
		t.Fatalf("assistant message=%+v meta=%+v", res.AssistantMessage, meta)
	}
	if res.Character != (services.CharacterRef{ID: f.char.ID, Name: "Sherlock", AvatarURL: "https://img/s.png"}) {
		t.Fatalf("character=%+v", res.Character)
	}
}

func TestSendMessage_Errors(t *testing.T) {
	f := newChatFixture(t)

	cases := []struct {
		name   string
		tok    string
		body   any
		status int
		code   string
	}{
		{"anonymous", "", SendMessageRequest{ConversationID: f.conv.ID, Message: "hi"}, http.StatusUnauthorized, ErrCodeUnauthorized},
		{"missing message", f.tok, map[string]any{"conversation_id": f.conv.ID}, http.StatusBadRequest, ErrCodeValidation},
		{"blank message", f.tok, SendMessageRequest{ConversationID: f.conv.ID, Message: "   "}, http.StatusBadRequest, ErrCodeValidation},
		{"bad conversation id", f.tok, SendMessageRequest{ConversationID: "x", Message: "hi"}, http.StatusBadRequest, ErrCodeValidation},
		{"too long", f.tok, SendMessageRequest{ConversationID: f.conv.ID, Message: strings.Repeat("a", 4001)}, http.StatusBadRequest, ErrCodeMessageTooLong},
		{"not owner", f.other, SendMessageRequest{ConversationID: f.conv.ID, Message: "hi"}, http.StatusNotFound, ErrCodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, call{method: http.MethodPost, path: "/api/chat/send", token: tc.tok, body: tc.body})
			expectError(t, w, tc.status, tc.code)
		})
	}
	if f.gen.calls != 0 {
		t.Fatalf("generator called %d times", f.gen.calls)
	}
}

func TestSendMessage_IdempotentReplay(t *testing.T) {
	f := newChatFixture(t)
	key := map[string]string{"Idempotency-Key": "send-0001"}

	first := f.send(t, "hello", key)

	w := f.do(t, call{method: http.MethodPost, path: "/api/chat/send", token: f.tok, header: key,
		body: SendMessageRequest{ConversationID: f.conv.ID, Message: "hello"}})
	if w.Code != http.StatusOK || w.Header().Get(HeaderIdempotentReplay) != "true" {
		t.Fatalf("replay status=%d header=%q", w.Code, w.Header().Get(HeaderIdempotentReplay))
	}
	again := decode[services.SendResult](t, w)
	if again.UserMessage.ID != first.UserMessage.ID || again.AssistantMessage.ID != first.AssistantMessage.ID {
		t.Fatalf("replay returned a new exchange")
	}
	if f.gen.calls != 1 {
		t.Fatalf("generator calls=%d", f.gen.calls)
	}

	w = f.do(t, call{method: http.MethodPost, path: "/api/chat/send", token: f.tok,
		header: map[string]string{"Idempotency-Key": "bad key!"},
		body:   SendMessageRequest{ConversationID: f.conv.ID, Message: "hello"}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad key status=%d", w.Code)
	}
}

func TestSendMessage_KeyReusedAcrossConversations(t *testing.T) {
	f := newChatFixture(t)
	key := map[string]string{"Idempotency-Key": "send-0002"}
	f.send(t, "one", key)
	second := newConversation(t, f.testEnv, f.tok, f.char.ID, "second").Conversation

	w := f.do(t, call{method: http.MethodPost, path: "/api/chat/send", token: f.tok, header: key,
		body: SendMessageRequest{ConversationID: second.ID, Message: "two"}})
	expectError(t, w, http.StatusConflict, ErrCodeIdempotency)
	if w.Header().Get(HeaderIdempotentReplay) != "" {
		t.Fatal("conflict marked as replay")
	}
	if f.gen.calls != 1 {
		t.Fatalf("generator calls=%d", f.gen.calls)
	}

	w = f.do(t, call{method: http.MethodGet, path: "/api/chat/" + second.ID + "/messages", token: f.tok})
	if page := decode[services.MessagePage](t, w); len(page.Messages) != 0 {
		t.Fatalf("second conversation has %d messages", len(page.Messages))
	}
}

func TestRegenerateMessage(t *testing.T) {
	f := newChatFixture(t)
	regen := func(tok string) *httptest.ResponseRecorder {
		return f.do(t, call{method: http.MethodPost, path: "/api/chat/regenerate", token: tok,
			body: RegenerateRequest{ConversationID: f.conv.ID}})
	}

	expectError(t, regen(f.tok), http.StatusBadRequest, ErrCodeCannotRegenerate)

	sent := f.send(t, "deduce", nil)
	w := regen(f.tok)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	res := decode[services.RegenerateResult](t, w)
	meta := res.AssistantMessage.Meta()
	if res.AssistantMessage.ID != sent.AssistantMessage.ID || res.AssistantMessage.Content != "Sherlock says reply #2" || !meta.Regenerated || meta.Revision != 1 {
		t.Fatalf("regenerated=%+v meta=%+v", res.AssistantMessage, meta)
	}

	w = f.do(t, call{method: http.MethodGet, path: "/api/chat/messages/" + sent.AssistantMessage.ID + "/revisions", token: f.tok})
	revs := decode[RevisionsResponse](t, w).Revisions
	if len(revs) != 1 || revs[0].Content != "Sherlock says reply #1" {
		t.Fatalf("revisions=%+v", revs)
	}
	w = f.do(t, call{method: http.MethodGet, path: "/api/chat/messages/" + sent.AssistantMessage.ID + "/revisions", token: f.other})
	expectError(t, w, http.StatusNotFound, ErrCodeNotFound)

	expectError(t, regen(f.other), http.StatusNotFound, ErrCodeNotFound)

	// Without the reply the exchange can no longer be regenerated.
	w = f.do(t, call{method: http.MethodDelete, path: "/api/chat/messages/" + sent.AssistantMessage.ID, token: f.tok})
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", w.Code)
	}
	expectError(t, regen(f.tok), http.StatusBadRequest, ErrCodeCannotRegenerate)
}

func TestListMessages(t *testing.T) {
	f := newChatFixture(t)
	for _, m := range []string{"one", "two", "three"} {
		f.send(t, m, nil)
	}
	path := "/api/chat/" + f.conv.ID + "/messages"

	w := f.do(t, call{method: http.MethodGet, path: path + "?limit=4", token: f.tok})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	page := decode[services.MessagePage](t, w)
	if len(page.Messages) != 4 || !page.HasMore || page.Limit != 4 {
		t.Fatalf("page=%d has_more=%v limit=%d", len(page.Messages), page.HasMore, page.Limit)
	}
	if page.Messages[0].Content != "two" || page.Messages[3].Content != "Sherlock says reply #3" {
		t.Fatalf("order: first=%q last=%q", page.Messages[0].Content, page.Messages[3].Content)
	}

	cursor := page.Messages[0].CreatedAt.Format(time.RFC3339Nano)
	w = f.do(t, call{method: http.MethodGet, path: path + "?before=" + cursor, token: f.tok})
	older := decode[services.MessagePage](t, w)
	if len(older.Messages) != 2 || older.HasMore || older.Messages[0].Content != "one" {
		t.Fatalf("older=%+v", older)
	}

	expectError(t, f.do(t, call{method: http.MethodGet, path: path + "?before=yesterday", token: f.tok}), http.StatusBadRequest, ErrCodeBadRequest)
	expectError(t, f.do(t, call{method: http.MethodGet, path: path, token: f.other}), http.StatusNotFound, ErrCodeNotFound)
}

func TestDeleteMessage_NotOwner(t *testing.T) {
	f := newChatFixture(t)
	sent := f.send(t, "hi", nil)

	w := f.do(t, call{method: http.MethodDelete, path: "/api/chat/messages/" + sent.UserMessage.ID, token: f.other})
	expectError(t, w, http.StatusNotFound, ErrCodeNotFound)

	w = f.do(t, call{method: http.MethodDelete, path: "/api/chat/messages/" + sent.UserMessage.ID, token: f.tok})
	if w.Code != http.StatusNoContent {
		t.Fatalf("status=%d", w.Code)
	}
	w = f.do(t, call{method: http.MethodDelete, path: "/api/chat/messages/" + sent.UserMessage.ID, token: f.tok})
	expectError(t, w, http.StatusNotFound, ErrCodeNotFound)
}
