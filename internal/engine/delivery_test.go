package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"chaincast/internal/domain"
	"chaincast/internal/filter"
	"chaincast/internal/transport"
)

type fakeStore struct {
	subs     map[string]*domain.Subscription // by transport handle
	receipts []domain.Receipt
	putErr   error
}

func (s *fakeStore) GetSubscriptionByTransportHandle(ctx context.Context, handle string) (*domain.Subscription, error) {
	return s.subs[handle], nil
}

func (s *fakeStore) PutReceipt(ctx context.Context, r *domain.Receipt) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.receipts = append(s.receipts, *r)
	return nil
}

type fakeNotifier struct {
	notified int
	result   domain.ReceiptResult
}

func (n *fakeNotifier) Notify(ctx context.Context, sub *domain.Subscription, body []byte) domain.Receipt {
	n.notified++
	now := time.Now()
	return domain.Receipt{
		ID:             uuid.NewString(),
		SubscriptionID: sub.ID,
		Timestamp:      now.Unix(),
		TTL:            now.Add(domain.ReceiptTTL).Unix(),
		Result:         n.result,
	}
}

func taskMessage(t *testing.T, handle string, payload []byte) transport.Message {
	t.Helper()
	body, err := json.Marshal(transport.Task{
		ID:              uuid.NewString(),
		TransportHandle: handle,
		Payload:         payload,
	})
	if err != nil {
		t.Fatalf("marshaling task: %v", err)
	}
	return transport.Message{ID: "msg-1", ReceiptHandle: "rh-1", Body: body}
}

func deliveryLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func matchingLogPayload() []byte {
	return []byte(`{
		"address": "0xaaa",
		"topics": ["0xt0"],
		"data": "0x",
		"blockNumber": "0x1",
		"blockHash": "0xbb",
		"transactionHash": "0xcc",
		"transactionIndex": "0x0",
		"logIndex": "0x0"
	}`)
}

func deliverySub(handle string) *domain.Subscription {
	return &domain.Subscription{
		ID:              "sub-1",
		Kind:            domain.KindLog,
		Status:          domain.StatusActive,
		WebhookURL:      "https://example.com/hook",
		Secret:          "secret",
		TransportHandle: handle,
		Filters:         domain.Filter{filter.AttrAddress: {"0xAAA"}},
	}
}

func TestDeliveryHandle_NotifiesAndRecords(t *testing.T) {
	store := &fakeStore{subs: map[string]*domain.Subscription{"h-1": deliverySub("h-1")}}
	n := &fakeNotifier{result: domain.ReceiptResult{Success: true, StatusCode: 200}}
	d := NewDelivery(store, n, nil, deliveryLogger())

	err := d.Handle(context.Background(), taskMessage(t, "h-1", matchingLogPayload()))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	if n.notified != 1 {
		t.Errorf("notified %d times, want 1", n.notified)
	}
	if len(store.receipts) != 1 {
		t.Fatalf("recorded %d receipts, want 1", len(store.receipts))
	}
	if store.receipts[0].SubscriptionID != "sub-1" {
		t.Errorf("receipt for %q, want sub-1", store.receipts[0].SubscriptionID)
	}
}

func TestDeliveryHandle_NonMatchingSkipsNotify(t *testing.T) {
	sub := deliverySub("h-1")
	sub.Filters = domain.Filter{filter.AttrAddress: {"0xbbb"}}
	store := &fakeStore{subs: map[string]*domain.Subscription{"h-1": sub}}
	n := &fakeNotifier{result: domain.ReceiptResult{Success: true, StatusCode: 200}}
	d := NewDelivery(store, n, nil, deliveryLogger())

	err := d.Handle(context.Background(), taskMessage(t, "h-1", matchingLogPayload()))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	if n.notified != 0 {
		t.Error("non-matching message must not be delivered")
	}
	if len(store.receipts) != 0 {
		t.Error("no receipt without a delivery attempt")
	}
}

func TestDeliveryHandle_DeactivatedSubscriptionSkips(t *testing.T) {
	sub := deliverySub("h-1")
	sub.Status = domain.StatusDeactivated
	store := &fakeStore{subs: map[string]*domain.Subscription{"h-1": sub}}
	n := &fakeNotifier{}
	d := NewDelivery(store, n, nil, deliveryLogger())

	if err := d.Handle(context.Background(), taskMessage(t, "h-1", matchingLogPayload())); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if n.notified != 0 {
		t.Error("deactivated subscription must not be delivered to")
	}
}

func TestDeliveryHandle_UnknownHandleAcks(t *testing.T) {
	store := &fakeStore{subs: map[string]*domain.Subscription{}}
	n := &fakeNotifier{}
	d := NewDelivery(store, n, nil, deliveryLogger())

	// nil error acknowledges: the task is undeliverable, redelivery
	// cannot fix it.
	if err := d.Handle(context.Background(), taskMessage(t, "gone", matchingLogPayload())); err != nil {
		t.Errorf("expected ack for unknown handle, got %v", err)
	}
}

func TestDeliveryHandle_CorruptTaskAcks(t *testing.T) {
	store := &fakeStore{subs: map[string]*domain.Subscription{}}
	d := NewDelivery(store, &fakeNotifier{}, nil, deliveryLogger())

	msg := transport.Message{ID: "msg-1", ReceiptHandle: "rh-1", Body: []byte("not json")}
	if err := d.Handle(context.Background(), msg); err != nil {
		t.Errorf("expected ack for corrupt task, got %v", err)
	}
}

func TestDeliveryHandle_ReceiptErrorLeavesMessage(t *testing.T) {
	store := &fakeStore{
		subs:   map[string]*domain.Subscription{"h-1": deliverySub("h-1")},
		putErr: errors.New("db down"),
	}
	n := &fakeNotifier{result: domain.ReceiptResult{Success: true, StatusCode: 200}}
	d := NewDelivery(store, n, nil, deliveryLogger())

	if err := d.Handle(context.Background(), taskMessage(t, "h-1", matchingLogPayload())); err == nil {
		t.Error("a failed receipt write must leave the message for redelivery")
	}
}

func TestPublisherIngest_Classifies(t *testing.T) {
	pub := &recordingPubSub{}
	p := NewPublisher(pub, deliveryLogger())

	kind, err := p.Ingest(context.Background(), matchingLogPayload())
	if err != nil {
		t.Fatalf("ingest log: %v", err)
	}
	if kind != domain.KindLog {
		t.Errorf("kind = %q, want log", kind)
	}
	if pub.lastTopic != "topic:"+LogTopic {
		t.Errorf("published to %q", pub.lastTopic)
	}
	if pub.lastAttrs[filter.AttrAddress] != "0xaaa" {
		t.Errorf("attributes = %v", pub.lastAttrs)
	}

	txJSON := []byte(`{"hash":"0xaa","nonce":"0x1","from":"0xBB","to":"0xcc","input":"0xa9059cbb00","value":"0x0","gas":"0x0","gasPrice":"0x0","blockHash":"0xdd","blockNumber":"0x1","transactionIndex":"0x0"}`)
	kind, err = p.Ingest(context.Background(), txJSON)
	if err != nil {
		t.Fatalf("ingest tx: %v", err)
	}
	if kind != domain.KindTransaction {
		t.Errorf("kind = %q, want transaction", kind)
	}
	if pub.lastAttrs[filter.AttrMethodSignature] != "0xa9059cbb" {
		t.Errorf("attributes = %v", pub.lastAttrs)
	}

	if _, err := p.Ingest(context.Background(), []byte(`{"neither": true}`)); !errors.Is(err, ErrUnrecognizedPayload) {
		t.Errorf("expected ErrUnrecognizedPayload, got %v", err)
	}
}

// recordingPubSub records the last publish for assertions.
type recordingPubSub struct {
	lastTopic string
	lastAttrs map[string]string
}

func (p *recordingPubSub) CreateOrGetTopic(ctx context.Context, name string) (string, error) {
	return "topic:" + name, nil
}

func (p *recordingPubSub) Subscribe(ctx context.Context, topicHandle, endpoint string, policy filter.Policy) (string, error) {
	return uuid.NewString(), nil
}

func (p *recordingPubSub) Unsubscribe(ctx context.Context, handle string) error { return nil }

func (p *recordingPubSub) Publish(ctx context.Context, topicHandle string, attributes map[string]string, body []byte) error {
	p.lastTopic = topicHandle
	p.lastAttrs = attributes
	return nil
}
