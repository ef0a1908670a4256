package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"chaincast/internal/filter"
)

// DefaultVisibilityTimeout is how long a received message stays invisible
// before the queue redelivers it.
const DefaultVisibilityTimeout = 30 * time.Second

const receivePollInterval = 100 * time.Millisecond

// binding is the stored record of one subscription on a topic.
type binding struct {
	Endpoint string        `json:"endpoint"`
	Policy   filter.Policy `json:"policy"`
}

// RedisTransport implements PubSub on Redis: a hash per topic holds the
// subscription bindings (endpoint + filter policy), and each endpoint is a
// sorted-set queue scored by visibility time.
type RedisTransport struct {
	client *redis.Client
	topics *TopicCache
	logger *slog.Logger
}

func NewRedisTransport(client *redis.Client, topics *TopicCache, logger *slog.Logger) *RedisTransport {
	return &RedisTransport{
		client: client,
		topics: topics,
		logger: logger,
	}
}

func topicKey(name string) string         { return "topic:" + name }
func subsKey(topicHandle string) string   { return topicHandle + ":subs" }
func subTopicKey(subHandle string) string { return "subtopic:" + subHandle }
func queueKey(endpoint string) string     { return "queue:" + endpoint }

// CreateOrGetTopic registers a topic by name. Creation is idempotent, so
// the handle is cacheable for the life of the process.
func (t *RedisTransport) CreateOrGetTopic(ctx context.Context, name string) (string, error) {
	return t.topics.GetOrCreate(ctx, name, func(ctx context.Context, name string) (string, error) {
		if err := t.client.SAdd(ctx, "topics", name).Err(); err != nil {
			return "", fmt.Errorf("creating topic %q: %w", name, err)
		}
		t.logger.Info("topic ready", "topic", name)
		return topicKey(name), nil
	})
}

func (t *RedisTransport) Subscribe(ctx context.Context, topicHandle, endpoint string, policy filter.Policy) (string, error) {
	subHandle := uuid.NewString()

	data, err := json.Marshal(binding{Endpoint: endpoint, Policy: policy})
	if err != nil {
		return "", fmt.Errorf("marshaling subscription binding: %w", err)
	}

	pipe := t.client.TxPipeline()
	pipe.HSet(ctx, subsKey(topicHandle), subHandle, string(data))
	pipe.Set(ctx, subTopicKey(subHandle), topicHandle, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("storing subscription binding: %w", err)
	}

	t.logger.Info("subscribed to topic",
		"topic_handle", topicHandle,
		"subscription_handle", subHandle,
		"endpoint", endpoint,
	)

	return subHandle, nil
}

// Unsubscribe releases a subscription handle. A handle that no longer
// exists is not an error, so deactivation stays idempotent.
func (t *RedisTransport) Unsubscribe(ctx context.Context, subHandle string) error {
	topicHandle, err := t.client.Get(ctx, subTopicKey(subHandle)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolving subscription handle: %w", err)
	}

	pipe := t.client.TxPipeline()
	pipe.HDel(ctx, subsKey(topicHandle), subHandle)
	pipe.Del(ctx, subTopicKey(subHandle))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("removing subscription binding: %w", err)
	}

	t.logger.Info("unsubscribed", "subscription_handle", subHandle, "topic_handle", topicHandle)
	return nil
}

// Publish fans the message out to every binding on the topic whose policy
// the attributes satisfy, enqueuing one compressed delivery task each.
func (t *RedisTransport) Publish(ctx context.Context, topicHandle string, attributes map[string]string, body []byte) error {
	bindings, err := t.client.HGetAll(ctx, subsKey(topicHandle)).Result()
	if err != nil {
		return fmt.Errorf("loading topic subscriptions: %w", err)
	}
	if len(bindings) == 0 {
		return nil
	}

	pipe := t.client.Pipeline()
	now := float64(time.Now().UnixMilli())
	matched := 0

	for subHandle, data := range bindings {
		var b binding
		if err := json.Unmarshal([]byte(data), &b); err != nil {
			t.logger.Error("skipping corrupt subscription binding",
				"subscription_handle", subHandle, "error", err)
			continue
		}

		if !b.Policy.MatchesAttributes(attributes) {
			continue
		}

		task := Task{
			ID:              uuid.NewString(),
			TransportHandle: subHandle,
			Payload:         body,
		}
		taskJSON, err := json.Marshal(task)
		if err != nil {
			t.logger.Error("failed to marshal delivery task",
				"subscription_handle", subHandle, "error", err)
			continue
		}
		member, err := EncodeBody(taskJSON)
		if err != nil {
			t.logger.Error("failed to encode delivery task",
				"subscription_handle", subHandle, "error", err)
			continue
		}

		pipe.ZAdd(ctx, queueKey(b.Endpoint), redis.Z{Score: now, Member: member})
		matched++
	}

	if matched == 0 {
		return nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueuing delivery tasks: %w", err)
	}

	t.logger.Info("published message",
		"topic_handle", topicHandle,
		"candidates", len(bindings),
		"matched", matched,
	)
	return nil
}

// RedisQueue implements Queue on a sorted set. Members are scored by the
// time they become visible; receiving bumps the score by the visibility
// timeout so unacknowledged messages come back.
type RedisQueue struct {
	client     *redis.Client
	key        string
	visibility time.Duration
	logger     *slog.Logger
}

func NewRedisQueue(client *redis.Client, endpoint string, visibility time.Duration, logger *slog.Logger) *RedisQueue {
	if visibility <= 0 {
		visibility = DefaultVisibilityTimeout
	}
	return &RedisQueue{
		client:     client,
		key:        queueKey(endpoint),
		visibility: visibility,
		logger:     logger,
	}
}

// receiveScript atomically claims due members: fetch up to max with a
// score at or below now, then push their scores past the visibility
// window so no concurrent consumer claims them too.
var receiveScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
local invisible = tonumber(ARGV[1]) + tonumber(ARGV[2])

for _, member in ipairs(due) do
    redis.call('ZADD', KEYS[1], invisible, member)
end

return due
`)

func (q *RedisQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	deadline := time.Now().Add(wait)

	for {
		now := time.Now().UnixMilli()
		members, err := receiveScript.Run(ctx, q.client, []string{q.key},
			now, q.visibility.Milliseconds(), max,
		).StringSlice()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("receiving from queue: %w", err)
		}

		if len(members) > 0 {
			messages := make([]Message, 0, len(members))
			for _, member := range members {
				body, err := DecodeBody(member)
				if err != nil {
					// Undecodable members still need an ack path, so hand
					// the raw member to the handler.
					q.logger.Error("failed to decode queued message", "error", err)
					body = []byte(member)
				}
				messages = append(messages, Message{
					ID:            messageID(member),
					ReceiptHandle: member,
					Body:          body,
				})
			}
			return messages, nil
		}

		if !time.Now().Add(receivePollInterval).Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(receivePollInterval):
		}
	}
}

func (q *RedisQueue) DeleteBatch(ctx context.Context, receiptHandles []string) error {
	if len(receiptHandles) == 0 {
		return nil
	}

	members := make([]interface{}, len(receiptHandles))
	for i, h := range receiptHandles {
		members[i] = h
	}

	if err := q.client.ZRem(ctx, q.key, members...).Err(); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}
	return nil
}

// Depth returns the number of messages currently in the queue, visible or
// not.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key).Result()
}

// messageID is stable across redeliveries of the same member.
func messageID(member string) string {
	sum := sha256.Sum256([]byte(member))
	return hex.EncodeToString(sum[:8])
}
