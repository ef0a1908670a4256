package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"chaincast/internal/engine"
	"chaincast/internal/filter"
)

type stubPubSub struct {
	published int
}

func (p *stubPubSub) CreateOrGetTopic(ctx context.Context, name string) (string, error) {
	return "topic:" + name, nil
}

func (p *stubPubSub) Subscribe(ctx context.Context, topicHandle, endpoint string, policy filter.Policy) (string, error) {
	return "handle", nil
}

func (p *stubPubSub) Unsubscribe(ctx context.Context, handle string) error { return nil }

func (p *stubPubSub) Publish(ctx context.Context, topicHandle string, attributes map[string]string, body []byte) error {
	p.published++
	return nil
}

func testEventHandler() (*EventHandler, *stubPubSub) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	pubsub := &stubPubSub{}
	return NewEventHandler(engine.NewPublisher(pubsub, logger)), pubsub
}

func TestEventCreate_AcceptsLog(t *testing.T) {
	h, pubsub := testEventHandler()

	body := `{
		"address": "0xAAA",
		"topics": ["0xt0"],
		"data": "0x",
		"blockNumber": "0x1",
		"blockHash": "0xbb",
		"transactionHash": "0xcc",
		"transactionIndex": "0x0",
		"logIndex": "0x0"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if pubsub.published != 1 {
		t.Errorf("published %d messages, want 1", pubsub.published)
	}

	var resp ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Kind != "log" {
		t.Errorf("kind = %q, want log", resp.Kind)
	}
}

func TestEventCreate_RejectsUnrecognizedShape(t *testing.T) {
	h, pubsub := testEventHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`{"hello": "world"}`))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if pubsub.published != 0 {
		t.Error("unrecognized payload must not be published")
	}
}

func TestEventCreate_RejectsInvalidJSON(t *testing.T) {
	h, _ := testEventHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestEventCreate_RejectsEmptyBody(t *testing.T) {
	h, _ := testEventHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(""))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestValidWebhookURL(t *testing.T) {
	valid := []string{"https://example.com/hook", "http://localhost:8080/x"}
	for _, u := range valid {
		if !validWebhookURL(u) {
			t.Errorf("%q rejected", u)
		}
	}

	invalid := []string{"", "example.com/hook", "ftp://example.com", "https://", "/relative/path"}
	for _, u := range invalid {
		if validWebhookURL(u) {
			t.Errorf("%q accepted", u)
		}
	}
}
