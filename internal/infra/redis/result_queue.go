package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"inclusion-quiz-service/internal/domain"
)

// DefaultResultsKey is the list graded results are pushed to.
const DefaultResultsKey = "quiz:results"

// savedGuardTTL bounds how long a pushed attempt id is remembered.
const savedGuardTTL = 24 * time.Hour

// pushOnce pushes ARGV[1] onto KEYS[1] only if the guard KEYS[2] was not set.
var pushOnce = redis.NewScript(`
if redis.call("SET", KEYS[2], "1", "NX", "EX", ARGV[2]) then
	redis.call("RPUSH", KEYS[1], ARGV[1])
	return 1
end
return 0
`)

// ResultQueue hands graded results to downstream consumers through a Redis
// list. Consumers pop from the head; records are appended at the tail.
type ResultQueue struct {
	client *redis.Client
	key    string
}

func NewResultQueue(client *redis.Client, key string) *ResultQueue {
	if key == "" {
		key = DefaultResultsKey
	}
	return &ResultQueue{client: client, key: key}
}

// SaveResult queues a record once per attempt id. Saving the same attempt
// again, for example after a timed-out push that did land, is a no-op.
func (q *ResultQueue) SaveResult(ctx context.Context, record domain.ResultRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	keys := []string{q.key, SavedKey(record.AttemptID)}
	if err := pushOnce.Run(ctx, q.client, keys, payload, int(savedGuardTTL.Seconds())).Err(); err != nil {
		return fmt.Errorf("push result: %w", err)
	}
	return nil
}

// SavedKey guards against queueing an attempt's result twice.
func SavedKey(attemptID string) string {
	return "quiz:result:" + attemptID
}

// Pop removes the oldest queued record. ok is false when the queue is empty.
func (q *ResultQueue) Pop(ctx context.Context) (record domain.ResultRecord, ok bool, err error) {
	raw, err := q.client.LPop(ctx, q.key).Bytes()
	if err == redis.Nil {
		return domain.ResultRecord{}, false, nil
	}
	if err != nil {
		return domain.ResultRecord{}, false, err
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.ResultRecord{}, false, fmt.Errorf("decode result: %w", err)
	}
	return record, true, nil
}
