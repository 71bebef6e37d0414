package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type sseEvent struct {
	name string
	data string
}

// readEvents parses server-sent events from reader until it fails.
func readEvents(reader *bufio.Reader, events chan<- sseEvent) {
	defer close(events)
	current := sseEvent{}
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if current.name != "" {
				events <- current
			}
			current = sseEvent{}
		case strings.HasPrefix(line, "event:"):
			current.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			current.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func awaitEvent(t *testing.T, events <-chan sseEvent, name string) sseEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", name)
		case event, ok := <-events:
			if !ok {
				t.Fatalf("stream closed before %s event", name)
			}
			if event.name == name {
				return event
			}
		}
	}
}

func TestRealtimeStreamEmitsDraftChangeEvents(t *testing.T) {
	app := newTestServer(t, testServerOptions{})
	server := httptest.NewServer(app.handler)
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	streamRequest, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/conversations/matter-9/drafts/stream", http.NoBody)
	if err != nil {
		t.Fatalf("failed to construct stream request: %v", err)
	}
	streamResp, err := http.DefaultClient.Do(streamRequest)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	t.Cleanup(func() {
		_ = streamResp.Body.Close()
	})
	if streamResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected stream status: %d", streamResp.StatusCode)
	}
	if contentType := streamResp.Header.Get("Content-Type"); !strings.HasPrefix(contentType, "text/event-stream") {
		t.Fatalf("unexpected stream content type %q", contentType)
	}

	events := make(chan sseEvent, 8)
	go readEvents(bufio.NewReader(streamResp.Body), events)
	awaitEvent(t, events, realtimeEventReady)

	createResp, err := http.Post(server.URL+"/conversations/matter-9/drafts", "application/json",
		bytes.NewBufferString(`{"content":"<p>Notice</p>"}`))
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	_ = createResp.Body.Close()
	if createResp.StatusCode != http.StatusCreated {
		t.Fatalf("unexpected create status: %d", createResp.StatusCode)
	}

	event := awaitEvent(t, events, RealtimeEventDraftChanged)
	var payload realtimeEventPayload
	if err := json.Unmarshal([]byte(event.data), &payload); err != nil {
		t.Fatalf("failed to decode event payload %q: %v", event.data, err)
	}
	if payload.ConversationID != "matter-9" || payload.Source != realtimeSourceBackend {
		t.Fatalf("unexpected event envelope %#v", payload)
	}
	if payload.Transition.Event != "new_version" || payload.Transition.Content != "<p>Notice</p>" {
		t.Fatalf("unexpected transition %#v", payload.Transition)
	}
}
