package server

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/assistant"
	"github.com/MarcoPoloResearchLab/lexdraft/backend/internal/export"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func TestExportReturnsAttachment(t *testing.T) {
	server := newTestServer(t, testServerOptions{})
	server.do(http.MethodPost, "/conversations/matter-1/drafts", `{"content":"<h1>Lease</h1><p>Rent is <strong>due</strong>.</p>"}`)

	recorder := server.do(http.MethodPost, "/conversations/matter-1/export", `{"format":"txt","file_name":"lease"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if status := recorder.Header().Get(exportStatusHeader); status != exportStatusOK {
		t.Fatalf("expected export status ok, got %q", status)
	}
	if disposition := recorder.Header().Get("Content-Disposition"); disposition != `attachment; filename=lease.txt` {
		t.Fatalf("unexpected content disposition %q", disposition)
	}
	if !strings.Contains(recorder.Body.String(), "Rent is due.") {
		t.Fatalf("unexpected export body %q", recorder.Body.String())
	}
}

func TestExportPDFWithoutRasterizerFallsBack(t *testing.T) {
	server := newTestServer(t, testServerOptions{})
	server.do(http.MethodPost, "/conversations/matter-1/drafts", `{"content":"<p>Notice to quit</p>"}`)

	recorder := server.do(http.MethodPost, "/conversations/matter-1/export", `{"format":"pdf"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d", recorder.Code)
	}
	if status := recorder.Header().Get(exportStatusHeader); status != exportStatusFailed {
		t.Fatalf("expected fallback export status, got %q", status)
	}
	if recorder.Header().Get(exportErrorHeader) == "" {
		t.Fatal("expected export error header on fallback")
	}
	if !bytes.HasPrefix(recorder.Body.Bytes(), []byte("%PDF")) {
		t.Fatal("expected fallback body to be a pdf document")
	}
	if contentType := recorder.Header().Get("Content-Type"); contentType != "application/pdf" {
		t.Fatalf("unexpected content type %q", contentType)
	}
}

func TestExportRequestValidation(t *testing.T) {
	server := newTestServer(t, testServerOptions{})

	missingDraft := server.do(http.MethodPost, "/conversations/matter-1/export", `{"format":"docx"}`)
	if missingDraft.Code != http.StatusNotFound {
		t.Fatalf("expected not found without draft, got %d", missingDraft.Code)
	}

	server.do(http.MethodPost, "/conversations/matter-1/drafts", `{"content":"<p>x</p>"}`)
	unsupported := server.do(http.MethodPost, "/conversations/matter-1/export", `{"format":"odt"}`)
	if unsupported.Code != http.StatusBadRequest || unsupported.Body.String() != `{"error":"unsupported_format"}` {
		t.Fatalf("unexpected unsupported format response %d %s", unsupported.Code, unsupported.Body.String())
	}
}

type pendingExporter struct{}

func (pendingExporter) Export(context.Context, export.Request) (export.Result, error) {
	return export.Result{}, export.ErrExportPending
}

func TestHandleExportReportsPendingExport(t *testing.T) {
	server := newTestServer(t, testServerOptions{})
	server.do(http.MethodPost, "/conversations/matter-1/drafts", `{"content":"<p>x</p>"}`)

	recorder := httptest.NewRecorder()
	context, _ := gin.CreateTestContext(recorder)
	context.Set(conversationParam, conversationIDForTest("matter-1"))
	request := httptest.NewRequest(http.MethodPost, "/conversations/matter-1/export", strings.NewReader(`{"format":"docx"}`))
	request.Header.Set("Content-Type", "application/json")
	context.Request = request

	handler := &httpHandler{
		drafts:        server.drafts,
		exporter:      pendingExporter{},
		logger:        zap.NewNop(),
		exportTimeout: defaultExportTimeout,
	}
	handler.handleExport(context)

	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected conflict status, got %d", recorder.Code)
	}
	if recorder.Body.String() != `{"error":"export_pending"}` {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
}

func TestAssistDraftCreatesVersion(t *testing.T) {
	response := "Dear landlord,\n\nPlease repair the heating."
	server := newTestServer(t, testServerOptions{generator: &stubGenerator{response: &response}})

	recorder := server.do(http.MethodPost, "/conversations/matter-1/assist", `{"mode":"draft","instruction":"write a repair demand"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d: %s", recorder.Code, recorder.Body.String())
	}
	reply := decodeJSON[assistResponsePayload](t, recorder)
	if reply.Draft == nil || reply.Draft.VersionIndex != 0 || reply.Draft.Event != "new_version" {
		t.Fatalf("expected a new draft version, got %#v", reply.Draft)
	}
	if !strings.HasPrefix(reply.Text, assistant.SummaryHeading) {
		t.Fatalf("expected summary text, got %q", reply.Text)
	}
	if current, ok := server.drafts.Current("matter-1"); !ok || !strings.Contains(current.String(), "Please repair the heating.") {
		t.Fatalf("expected stored draft, got %q", current)
	}
}

func TestAssistRecoversGeneratorFailure(t *testing.T) {
	server := newTestServer(t, testServerOptions{generator: &stubGenerator{err: errors.New("quota exceeded")}})

	recorder := server.do(http.MethodPost, "/conversations/matter-1/assist", `{"mode":"chatbot","instruction":"hello"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d", recorder.Code)
	}
	reply := decodeJSON[assistResponsePayload](t, recorder)
	if reply.Error != "external_service_failure" || !strings.HasPrefix(reply.Text, "Sorry, an error occurred") {
		t.Fatalf("unexpected recovered reply %#v", reply)
	}
	if reply.Mode != "chat" {
		t.Fatalf("expected chat mode, got %q", reply.Mode)
	}
}

func TestAssistRequestValidation(t *testing.T) {
	server := newTestServer(t, testServerOptions{})

	invalidMode := server.do(http.MethodPost, "/conversations/matter-1/assist", `{"mode":"poetry","instruction":"x"}`)
	if invalidMode.Code != http.StatusBadRequest || invalidMode.Body.String() != `{"error":"invalid_mode"}` {
		t.Fatalf("unexpected invalid mode response %d %s", invalidMode.Code, invalidMode.Body.String())
	}
	empty := server.do(http.MethodPost, "/conversations/matter-1/assist", `{"mode":"chat","instruction":"  "}`)
	if empty.Code != http.StatusBadRequest || empty.Body.String() != `{"error":"empty_instruction"}` {
		t.Fatalf("unexpected empty instruction response %d %s", empty.Code, empty.Body.String())
	}
}

func TestPasteEscapesMarkup(t *testing.T) {
	server := newTestServer(t, testServerOptions{})
	recorder := server.do(http.MethodPost, "/markup/paste", `{"text":"**Term** <b>x</b>"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d", recorder.Code)
	}
	payload := decodeJSON[map[string]string](t, recorder)
	if !strings.Contains(payload["markup"], "<strong>Term</strong>") {
		t.Fatalf("expected bold markup, got %q", payload["markup"])
	}
	if strings.Contains(payload["markup"], "<b>") {
		t.Fatalf("expected pasted tags to be escaped, got %q", payload["markup"])
	}
}

func TestCopyAsMarkdown(t *testing.T) {
	server := newTestServer(t, testServerOptions{})
	recorder := server.do(http.MethodPost, "/markup/markdown", `{"content":"<h2>Terms</h2><ul><li>Rent</li></ul>"}`)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d", recorder.Code)
	}
	payload := decodeJSON[map[string]string](t, recorder)
	if !strings.Contains(payload["markdown"], "## Terms") || !strings.Contains(payload["markdown"], "- Rent") {
		t.Fatalf("unexpected markdown %q", payload["markdown"])
	}
}

func multipartUpload(t *testing.T, fileName string, data []byte, mode string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if mode != "" {
		if err := writer.WriteField("mode", mode); err != nil {
			t.Fatalf("failed to write mode field: %v", err)
		}
	}
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func (s testServer) upload(body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	request := httptest.NewRequest(http.MethodPost, "/uploads", body)
	request.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func TestUploadExtractsText(t *testing.T) {
	server := newTestServer(t, testServerOptions{})
	body, contentType := multipartUpload(t, "facts.txt", []byte("The tenant moved in on 1 May."), "")

	recorder := server.upload(body, contentType)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected ok, got %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeJSON[uploadResponsePayload](t, recorder)
	if !payload.Extracted || payload.Text != "The tenant moved in on 1 May." || payload.Mode != "extract" {
		t.Fatalf("unexpected upload payload %#v", payload)
	}
}

func TestUploadRejections(t *testing.T) {
	testCases := []struct {
		name           string
		maxBytes       int64
		fileName       string
		data           []byte
		expectedStatus int
		expectedError  string
	}{
		{name: "oversize", maxBytes: 8, fileName: "big.txt", data: []byte("more than eight bytes"), expectedStatus: http.StatusRequestEntityTooLarge, expectedError: "oversize_input"},
		{name: "unsupported type", fileName: "tool.exe", data: []byte("MZ"), expectedStatus: http.StatusUnsupportedMediaType, expectedError: "unsupported_type"},
		{name: "unreadable text", fileName: "broken.txt", data: []byte{0xff, 0xfe, 0xfd}, expectedStatus: http.StatusUnprocessableEntity, expectedError: "extraction_failed"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			server := newTestServer(t, testServerOptions{maxBytes: testCase.maxBytes})
			body, contentType := multipartUpload(t, testCase.fileName, testCase.data, "")
			recorder := server.upload(body, contentType)
			if recorder.Code != testCase.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", testCase.expectedStatus, recorder.Code, recorder.Body.String())
			}
			payload := decodeJSON[map[string]any](t, recorder)
			if payload["error"] != testCase.expectedError {
				t.Fatalf("expected error %q, got %v", testCase.expectedError, payload["error"])
			}
		})
	}
}

func TestUploadRejectsOversizeContentLength(t *testing.T) {
	server := newTestServer(t, testServerOptions{})
	request := httptest.NewRequest(http.MethodPost, "/uploads", strings.NewReader(""))
	request.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	request.ContentLength = 150 * 1024 * 1024

	recorder := httptest.NewRecorder()
	server.handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected status %d, got %d", http.StatusRequestEntityTooLarge, recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "100 MB") {
		t.Fatalf("expected limit in message, got %s", recorder.Body.String())
	}
}

func TestUploadRequiresFile(t *testing.T) {
	server := newTestServer(t, testServerOptions{})
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("mode", "context")
	_ = writer.Close()

	recorder := server.upload(&body, writer.FormDataContentType())
	if recorder.Code != http.StatusBadRequest || recorder.Body.String() != `{"error":"missing_file"}` {
		t.Fatalf("unexpected response %d %s", recorder.Code, recorder.Body.String())
	}
}
