package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/database"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/drafts"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/export"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/uploads"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// stubGenerator answers the first call with response and every later call with nothing.
type stubGenerator struct {
	response *string
	err      error
	calls    int
}

func (g *stubGenerator) Generate(context.Context, assistant.Prompt) (*string, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	if g.calls > 1 {
		return nil, nil
	}
	return g.response, nil
}

type testServer struct {
	handler    http.Handler
	drafts     *drafts.Service
	dispatcher *RealtimeDispatcher
}

type testServerOptions struct {
	generator assistant.Generator
	maxBytes  int64
}

func newTestServer(t *testing.T, options testServerOptions) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "lexdraft.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	dispatcher := NewRealtimeDispatcher()
	draftsService, err := drafts.NewService(drafts.ServiceConfig{
		Database:   db,
		IDProvider: drafts.NewUUIDProvider(),
		Notifier:   dispatcher,
	})
	if err != nil {
		t.Fatalf("failed to construct drafts service: %v", err)
	}
	assistantService, err := assistant.NewService(assistant.Config{
		Generator: options.generator,
		Drafts:    draftsService,
	})
	if err != nil {
		t.Fatalf("failed to construct assistant: %v", err)
	}
	handler, err := NewHTTPHandler(Dependencies{
		DraftsService: draftsService,
		Exporter:      export.NewPipeline(export.Config{}),
		Assistant:     assistantService,
		Uploads:       uploads.NewService(uploads.Config{MaxBytes: options.maxBytes}),
		Realtime:      dispatcher,
		Logger:        zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}
	return testServer{handler: handler, drafts: draftsService, dispatcher: dispatcher}
}

func (s testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, target, reader)
	if body != "" {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeJSON[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err != errMissingDraftsService {
		t.Fatalf("expected missing drafts service error, got %v", err)
	}
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, testServerOptions{})
	recorder := server.do(http.MethodGet, "/healthz", "")
	if recorder.Code != http.StatusOK || recorder.Body.String() != `{"status":"ok"}` {
		t.Fatalf("unexpected health response %d %s", recorder.Code, recorder.Body.String())
	}
}

func TestDraftLifecycleOverHTTP(t *testing.T) {
	server := newTestServer(t, testServerOptions{})

	created := server.do(http.MethodPost, "/conversations/matter-1/drafts", `{"content":"<p>A</p>"}`)
	if created.Code != http.StatusCreated {
		t.Fatalf("expected created status, got %d: %s", created.Code, created.Body.String())
	}
	transition := decodeJSON[transitionPayload](t, created)
	if transition.Event != "new_version" || transition.VersionIndex != 0 || transition.Content != "<p>A</p>" {
		t.Fatalf("unexpected transition %#v", transition)
	}

	for _, content := range []string{"<p>AB</p>", "<p>ABC</p>"} {
		edited := server.do(http.MethodPut, "/conversations/matter-1/drafts/0", `{"content":"`+content+`"}`)
		if edited.Code != http.StatusOK {
			t.Fatalf("expected ok for edit, got %d", edited.Code)
		}
	}

	undone := decodeJSON[transitionPayload](t, server.do(http.MethodPost, "/conversations/matter-1/drafts/0/undo", ""))
	if !undone.Changed || undone.Content != "<p>AB</p>" {
		t.Fatalf("unexpected undo transition %#v", undone)
	}
	redone := decodeJSON[transitionPayload](t, server.do(http.MethodPost, "/conversations/matter-1/drafts/0/redo", ""))
	if !redone.Changed || redone.Content != "<p>ABC</p>" {
		t.Fatalf("unexpected redo transition %#v", redone)
	}
	noRedo := decodeJSON[transitionPayload](t, server.do(http.MethodPost, "/conversations/matter-1/drafts/0/redo", ""))
	if noRedo.Changed || noRedo.Content != "<p>ABC</p>" {
		t.Fatalf("expected unchanged redo, got %#v", noRedo)
	}

	server.do(http.MethodPost, "/conversations/matter-1/drafts", `{"content":"<p>B</p>"}`)
	selected := decodeJSON[transitionPayload](t, server.do(http.MethodPost, "/conversations/matter-1/drafts/0/select", ""))
	if selected.ActiveIndex != 0 || selected.Content != "<p>ABC</p>" {
		t.Fatalf("unexpected select transition %#v", selected)
	}

	state := decodeJSON[draftStatePayload](t, server.do(http.MethodGet, "/conversations/matter-1/drafts", ""))
	if state.ActiveIndex != 0 || len(state.Versions) != 2 {
		t.Fatalf("unexpected state %#v", state)
	}
	if state.Content == nil || *state.Content != "<p>ABC</p>" {
		t.Fatalf("unexpected current content %v", state.Content)
	}
	if !state.Versions[0].CanUndo || state.Versions[0].CanRedo || state.Versions[1].CanUndo {
		t.Fatalf("unexpected version flags %#v", state.Versions)
	}

	journal := decodeJSON[struct {
		Entries []journalEntryPayload `json:"entries"`
	}](t, server.do(http.MethodGet, "/conversations/matter-1/drafts/journal", ""))
	// the unchanged redo is not journaled
	if len(journal.Entries) != 7 {
		t.Fatalf("expected 7 journal entries, got %d", len(journal.Entries))
	}
	if journal.Entries[0].Event != "new_version" || len(journal.Entries[0].ContentSHA256) != 64 {
		t.Fatalf("unexpected first journal entry %#v", journal.Entries[0])
	}
}

func TestDraftStateOfEmptyConversation(t *testing.T) {
	server := newTestServer(t, testServerOptions{})
	recorder := server.do(http.MethodGet, "/conversations/matter-empty/drafts", "")
	state := decodeJSON[draftStatePayload](t, recorder)
	if state.ActiveIndex != -1 || state.Content != nil || len(state.Versions) != 0 {
		t.Fatalf("unexpected empty state %s", recorder.Body.String())
	}
}

func TestDraftRequestValidation(t *testing.T) {
	server := newTestServer(t, testServerOptions{})
	server.do(http.MethodPost, "/conversations/matter-1/drafts", `{"content":"<p>A</p>"}`)

	testCases := []struct {
		name           string
		method         string
		target         string
		body           string
		expectedStatus int
		expectedError  string
		expectedCode   string
	}{
		{name: "missing content", method: http.MethodPost, target: "/conversations/matter-1/drafts", body: `{}`, expectedStatus: http.StatusBadRequest, expectedError: "invalid_request"},
		{name: "empty snapshot", method: http.MethodPost, target: "/conversations/matter-1/drafts", body: `{"content":""}`, expectedStatus: http.StatusBadRequest, expectedError: "draft_update_failed", expectedCode: "drafts.new_version.empty_snapshot"},
		{name: "non numeric version", method: http.MethodPost, target: "/conversations/matter-1/drafts/first/undo", expectedStatus: http.StatusBadRequest, expectedError: "invalid_version"},
		{name: "negative version", method: http.MethodPut, target: "/conversations/matter-1/drafts/-1", body: `{"content":"x"}`, expectedStatus: http.StatusBadRequest, expectedError: "invalid_version"},
		{name: "missing version", method: http.MethodPost, target: "/conversations/matter-1/drafts/4/undo", expectedStatus: http.StatusNotFound, expectedError: "draft_update_failed", expectedCode: "drafts.undo.version_not_found"},
		{name: "blank conversation", method: http.MethodGet, target: "/conversations/%20/drafts", expectedStatus: http.StatusBadRequest, expectedError: "invalid_conversation_id"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			recorder := server.do(testCase.method, testCase.target, testCase.body)
			if recorder.Code != testCase.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", testCase.expectedStatus, recorder.Code, recorder.Body.String())
			}
			payload := decodeJSON[map[string]string](t, recorder)
			if payload["error"] != testCase.expectedError {
				t.Fatalf("expected error %q, got %q", testCase.expectedError, payload["error"])
			}
			if payload["code"] != testCase.expectedCode {
				t.Fatalf("expected code %q, got %q", testCase.expectedCode, payload["code"])
			}
		})
	}
}

func conversationIDForTest(raw string) drafts.ConversationID {
	conversationID, err := drafts.NewConversationID(raw)
	if err != nil {
		panic(err)
	}
	return conversationID
}
