package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"

	modelchat "github.com/jonieats/assistant/internal/model/chat"
	"github.com/jonieats/assistant/internal/model/profile"
	"github.com/jonieats/assistant/internal/retrieval"
	"github.com/jonieats/assistant/internal/service/ai"
	chatservice "github.com/jonieats/assistant/internal/service/chat"
)

type stubCompleter struct {
	err error
}

func (s stubCompleter) Complete(_ context.Context, messages []*schema.Message, _ ai.Options) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "echo: " + messages[len(messages)-1].Content, nil
}

func (s stubCompleter) Stream(ctx context.Context, messages []*schema.Message, opts ai.Options, onDelta func(string) error) (string, error) {
	reply, err := s.Complete(ctx, messages, opts)
	if err != nil {
		return "", err
	}
	return reply, onDelta(reply)
}

func setupRouter(completer chatservice.Completer) (*chi.Mux, *chatservice.Service) {
	store := profile.NewMemoryStore(profile.Seed(retrieval.Corpus{}, 3))
	chatSvc := chatservice.NewService(completer, store, chatservice.Options{})

	r := chi.NewRouter()
	New(chatSvc).RegisterRoutes(r)
	return r, chatSvc
}

func do(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func createSession(t *testing.T, r http.Handler) string {
	t.Helper()
	resp := do(r, http.MethodPost, "/session", map[string]string{"profileId": profile.Minimal})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	var session modelchat.Session
	if err := json.Unmarshal(resp.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if session.ID == "" || session.ProfileID != profile.Minimal {
		t.Fatalf("unexpected session %+v", session)
	}
	return session.ID
}

func TestCreateSessionValidProfile(t *testing.T) {
	r, _ := setupRouter(stubCompleter{})
	createSession(t, r)
}

func TestCreateSessionInvalidProfile(t *testing.T) {
	r, _ := setupRouter(stubCompleter{})

	resp := do(r, http.MethodPost, "/session", map[string]string{"profileId": "non-existent"})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestCreateSessionMissingProfileID(t *testing.T) {
	r, _ := setupRouter(stubCompleter{})

	resp := do(r, http.MethodPost, "/session", map[string]string{})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestChatTurn(t *testing.T) {
	r, _ := setupRouter(stubCompleter{})
	id := createSession(t, r)

	resp := do(r, http.MethodPost, "/chat/"+id, map[string]string{"message": "  Hello  "})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var result chatservice.Result
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.SessionID != id || result.Reply != "echo: Hello" {
		t.Fatalf("unexpected result %+v", result)
	}

	resp = do(r, http.MethodGet, "/session/"+id+"/history", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var turns []modelchat.Turn
	if err := json.Unmarshal(resp.Body.Bytes(), &turns); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(turns) != 2 || turns[0].Role != modelchat.RoleUser || turns[1].Content != "echo: Hello" {
		t.Fatalf("unexpected history %+v", turns)
	}
}

func TestChatErrors(t *testing.T) {
	r, _ := setupRouter(stubCompleter{})
	id := createSession(t, r)

	if resp := do(r, http.MethodPost, "/chat/"+id, map[string]string{"message": "   "}); resp.Code != http.StatusBadRequest {
		t.Fatalf("empty message: expected 400, got %d", resp.Code)
	}
	if resp := do(r, http.MethodPost, "/chat/missing", map[string]string{"message": "hi"}); resp.Code != http.StatusNotFound {
		t.Fatalf("unknown session: expected 404, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/chat/"+id, bytes.NewReader([]byte("{")))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("bad body: expected 400, got %d", resp.Code)
	}
}

func TestChatCompletionFailure(t *testing.T) {
	r, chatSvc := setupRouter(stubCompleter{err: errors.New("upstream down")})
	id := createSession(t, r)

	resp := do(r, http.MethodPost, "/chat/"+id, map[string]string{"message": "hi"})
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}

	turns, err := chatSvc.History(context.Background(), id)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(turns) != 1 || turns[0].Role != modelchat.RoleUser {
		t.Fatalf("expected the user turn to remain, got %+v", turns)
	}
}

func TestClearAndEndSession(t *testing.T) {
	r, chatSvc := setupRouter(stubCompleter{})
	id := createSession(t, r)
	do(r, http.MethodPost, "/chat/"+id, map[string]string{"message": "hi"})

	if resp := do(r, http.MethodDelete, "/session/"+id+"/history", nil); resp.Code != http.StatusNoContent {
		t.Fatalf("clear: expected 204, got %d", resp.Code)
	}
	turns, _ := chatSvc.History(context.Background(), id)
	if len(turns) != 0 {
		t.Fatalf("expected empty history, got %d turns", len(turns))
	}

	if resp := do(r, http.MethodDelete, "/session/"+id, nil); resp.Code != http.StatusNoContent {
		t.Fatalf("end: expected 204, got %d", resp.Code)
	}
	if resp := do(r, http.MethodDelete, "/session/"+id, nil); resp.Code != http.StatusNotFound {
		t.Fatalf("end twice: expected 404, got %d", resp.Code)
	}
	if resp := do(r, http.MethodGet, "/session/"+id+"/history", nil); resp.Code != http.StatusNotFound {
		t.Fatalf("history after end: expected 404, got %d", resp.Code)
	}
}
